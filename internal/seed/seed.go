// Package seed provides database seeding utilities for development and
// testing: a YAML fixture loader for the curated show lineup and a gofakeit
// generator for bulk fake shows.
package seed

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/brianvoe/gofakeit/v6"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/egypcoder/grouptherapy-radio/internal/models"
)

// Options configures a seeding run.
type Options struct {
	NumShows    int
	ShouldClean bool
	FixturePath string
}

// Seeder populates the show catalog.
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a Seeder bound to the provided Gorm DB.
func NewSeeder(db *gorm.DB) *Seeder {
	gofakeit.Seed(0)
	return &Seeder{db: db}
}

// ClearAll removes all shows and history entries.
func (s *Seeder) ClearAll() error {
	if err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.HistoryEntry{}).Error; err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	if err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Show{}).Error; err != nil {
		return fmt.Errorf("clearing shows: %w", err)
	}
	return nil
}

// fixture mirrors the YAML document layout: a flat list of shows.
type fixture struct {
	Shows []fixtureShow `yaml:"shows"`
}

type fixtureShow struct {
	Title       string  `yaml:"title"`
	HostName    string  `yaml:"host_name"`
	HostBio     string  `yaml:"host_bio"`
	CoverURL    string  `yaml:"cover_url"`
	StreamURL   string  `yaml:"stream_url"`
	RecordedURL string  `yaml:"recorded_url"`
	DayOfWeek   *int    `yaml:"day_of_week"`
	StartTime   *string `yaml:"start_time"`
	EndTime     *string `yaml:"end_time"`
	Repeat24h   bool    `yaml:"repeat_24h"`
	Published   bool    `yaml:"published"`
}

// LoadFixture reads the YAML lineup at path and inserts every show.
func (s *Seeder) LoadFixture(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading fixture: %w", err)
	}

	var f fixture
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return 0, fmt.Errorf("parsing fixture: %w", err)
	}

	for _, fs := range f.Shows {
		show := models.Show{
			Title:       fs.Title,
			HostName:    fs.HostName,
			HostBio:     fs.HostBio,
			CoverURL:    fs.CoverURL,
			StreamURL:   fs.StreamURL,
			RecordedURL: fs.RecordedURL,
			DayOfWeek:   fs.DayOfWeek,
			StartTime:   fs.StartTime,
			EndTime:     fs.EndTime,
			Repeat24h:   fs.Repeat24h,
			Published:   fs.Published,
		}
		if err := s.db.Create(&show).Error; err != nil {
			return 0, fmt.Errorf("inserting fixture show %q: %w", fs.Title, err)
		}
	}
	return len(f.Shows), nil
}

var showFormats = []string{
	"%s Radio", "%s Sessions", "%s Hour", "Deep Into %s", "%s Frequencies",
	"%s Therapy", "Late Night %s", "%s Selections",
}

// SeedShows generates n fake published shows spread across the week. Roughly
// one day in seven becomes a 24-hour rotation day.
func (s *Seeder) SeedShows(n int) ([]models.Show, error) {
	shows := make([]models.Show, 0, n)
	for i := 0; i < n; i++ {
		show := s.buildShow(i)
		if err := s.db.Create(&show).Error; err != nil {
			return nil, fmt.Errorf("inserting show %q: %w", show.Title, err)
		}
		shows = append(shows, show)
	}
	return shows, nil
}

func (s *Seeder) buildShow(i int) models.Show {
	day := i % 7
	host := gofakeit.Name()
	show := models.Show{
		Title:        fmt.Sprintf(showFormats[rand.Intn(len(showFormats))], gofakeit.NounAbstract()),
		HostName:     host,
		HostBio:      gofakeit.Paragraph(1, 2, 12, " "),
		HostImageURL: fmt.Sprintf("https://picsum.photos/seed/%s/400/400", gofakeit.UUID()),
		CoverURL:     fmt.Sprintf("https://picsum.photos/seed/%s/800/800", gofakeit.UUID()),
		RecordedURL:  fmt.Sprintf("https://cdn.example.com/shows/%s.mp3", gofakeit.UUID()),
		DayOfWeek:    &day,
		Published:    true,
	}

	if day == 0 {
		// Sunday is the all-day rotation.
		show.Repeat24h = true
		return show
	}

	startHour := 8 + rand.Intn(12)
	start := fmt.Sprintf("%02d:00", startHour)
	end := fmt.Sprintf("%02d:00", startHour+1+rand.Intn(2))
	show.StartTime = &start
	show.EndTime = &end
	return show
}

// Run performs a full seeding pass per the options.
func (s *Seeder) Run(opts Options) error {
	if opts.ShouldClean {
		if err := s.ClearAll(); err != nil {
			return err
		}
	}
	if opts.FixturePath != "" {
		n, err := s.LoadFixture(opts.FixturePath)
		if err != nil {
			return err
		}
		fmt.Printf("Loaded %d fixture shows\n", n)
	}
	if opts.NumShows > 0 {
		shows, err := s.SeedShows(opts.NumShows)
		if err != nil {
			return err
		}
		fmt.Printf("Generated %d fake shows\n", len(shows))
	}
	return nil
}
