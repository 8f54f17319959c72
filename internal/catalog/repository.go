// Package catalog reads the label's show catalog and keeps a fresh snapshot
// of it available to the scheduling resolver.
package catalog

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/egypcoder/grouptherapy-radio/internal/models"
)

// ShowRepository defines the interface for show catalog reads. The catalog is
// owned by the CMS; the engine never writes to it.
type ShowRepository interface {
	ListPublished(ctx context.Context) ([]models.Show, error)
	GetShow(ctx context.Context, id uint) (*models.Show, error)
}

type showRepository struct {
	db *gorm.DB
}

// NewShowRepository creates a new show repository.
func NewShowRepository(db *gorm.DB) ShowRepository {
	return &showRepository{db: db}
}

func (r *showRepository) ListPublished(ctx context.Context) ([]models.Show, error) {
	var shows []models.Show
	err := r.db.WithContext(ctx).
		Where("published = ?", true).
		Order("day_of_week ASC, start_time ASC").
		Find(&shows).Error
	return shows, err
}

func (r *showRepository) GetShow(ctx context.Context, id uint) (*models.Show, error) {
	var show models.Show
	err := r.db.WithContext(ctx).First(&show, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("show", id)
	}
	if err != nil {
		return nil, err
	}
	return &show, nil
}
