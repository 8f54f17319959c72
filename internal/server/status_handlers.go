package server

import (
	"github.com/gofiber/fiber/v2"

	"github.com/egypcoder/grouptherapy-radio/internal/history"
	"github.com/egypcoder/grouptherapy-radio/internal/models"
)

// GetStatus handles GET /api/status.
func (s *Server) GetStatus(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(s.engine.State(c.Context()))
}

// ForceSync handles POST /api/sync: runs one reconciliation step immediately
// and returns the resulting state so the caller can see the corrected
// position.
func (s *Server) ForceSync(c *fiber.Ctx) error {
	s.engine.SyncToSharedTime()
	return c.Status(fiber.StatusOK).JSON(s.engine.State(c.Context()))
}

// GetHistory handles GET /api/history. The limit query parameter is clamped
// to the ledger cap; the default is the short display list.
func (s *Server) GetHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", history.DisplayLimit)
	if limit < 1 {
		limit = history.DisplayLimit
	}
	if limit > history.Cap {
		limit = history.Cap
	}

	entries, err := s.historyRepo.Recent(c.Context(), limit)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"streams": entries,
		"count":   len(entries),
	})
}

// GetTodaysShows handles GET /api/shows/today: the published shows scheduled
// for the current shared-timeline day, in catalog order.
func (s *Server) GetTodaysShows(c *fiber.Ctx) error {
	shows, err := s.showRepo.ListPublished(c.Context())
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	today := s.shared.Now().Weekday()
	scheduled := make([]models.Show, 0, len(shows))
	for _, show := range shows {
		if show.ScheduledOn(today) {
			scheduled = append(scheduled, show)
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"day":   today.String(),
		"shows": scheduled,
	})
}
