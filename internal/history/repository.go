// Package history keeps the append-only, size-bounded ledger of completed
// streams backing the "recently played" view and on-demand replay.
package history

import (
	"context"

	"gorm.io/gorm"

	"github.com/egypcoder/grouptherapy-radio/internal/models"
	"github.com/egypcoder/grouptherapy-radio/internal/observability"
)

const (
	// Cap bounds the ledger; appending beyond it evicts the oldest entries
	// by PlayedAt.
	Cap = 20
	// DisplayLimit is the short "recently played" list length.
	DisplayLimit = 10
)

// Repository defines the interface for history ledger operations. Appends are
// not deduplicated: a replay is a legitimate distinct entry.
type Repository interface {
	Append(ctx context.Context, entry *models.HistoryEntry) error
	Recent(ctx context.Context, n int) ([]models.HistoryEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new history repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Append(ctx context.Context, entry *models.HistoryEntry) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		return evictOverflow(tx)
	})
	if err != nil {
		observability.HistoryAppendsTotal.WithLabelValues("error").Inc()
		return err
	}
	observability.HistoryAppendsTotal.WithLabelValues("ok").Inc()
	return nil
}

func (r *repository) Recent(ctx context.Context, n int) ([]models.HistoryEntry, error) {
	if n <= 0 {
		n = DisplayLimit
	}
	var entries []models.HistoryEntry
	err := r.db.WithContext(ctx).
		Order("played_at DESC").
		Limit(n).
		Find(&entries).Error
	return entries, err
}

// evictOverflow deletes the oldest entries by PlayedAt until the ledger is at
// or under Cap.
func evictOverflow(tx *gorm.DB) error {
	var total int64
	if err := tx.Model(&models.HistoryEntry{}).Count(&total).Error; err != nil {
		return err
	}
	overflow := int(total) - Cap
	if overflow <= 0 {
		return nil
	}

	var victims []uint
	err := tx.Model(&models.HistoryEntry{}).
		Order("played_at ASC, id ASC").
		Limit(overflow).
		Pluck("id", &victims).Error
	if err != nil {
		return err
	}
	return tx.Delete(&models.HistoryEntry{}, victims).Error
}
