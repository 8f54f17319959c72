package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/egypcoder/grouptherapy-radio/internal/models"
	"github.com/egypcoder/grouptherapy-radio/internal/session"
)

// StartBroadcast handles POST /api/broadcast/start. A show_id alone is
// enough: missing fields are filled from the catalog entry.
func (s *Server) StartBroadcast(c *fiber.Ctx) error {
	var in session.StartInput
	if err := c.BodyParser(&in); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	if in.ShowID != 0 {
		show, err := s.showRepo.GetShow(c.Context(), in.ShowID)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusNotFound, err)
		}
		if in.ShowName == "" {
			in.ShowName = show.Title
		}
		if in.HostName == "" {
			in.HostName = show.HostName
		}
		if in.CoverURL == "" {
			in.CoverURL = show.CoverURL
		}
		if in.AudioURL == "" {
			if url, ok := show.PlayableURL(); ok {
				in.AudioURL = url
			}
		}
	}

	sess, err := s.broadcaster.Start(c.Context(), in)
	if err != nil {
		return respondBroadcastError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sess)
}

// RestartBroadcast handles POST /api/broadcast/restart.
func (s *Server) RestartBroadcast(c *fiber.Ctx) error {
	sess, err := s.broadcaster.Restart(c.Context())
	if err != nil {
		return respondBroadcastError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(sess)
}

// EndBroadcast handles POST /api/broadcast/end. The finished stream is
// recorded to the ledger before the session transition so a failed history
// write cannot block the end.
func (s *Server) EndBroadcast(c *fiber.Ctx) error {
	if current, err := s.store.Current(c.Context()); err == nil && current != nil && current.IsActive {
		s.recordEndedSession(c.Context(), current)
	}

	sess, err := s.broadcaster.End(c.Context())
	if err != nil {
		return respondBroadcastError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(sess)
}

func (s *Server) recordEndedSession(ctx context.Context, sess *models.Session) {
	if s.historyRepo == nil {
		return
	}
	entry := sess.HistoryRecord(s.shared.Now())
	if err := s.historyRepo.Append(ctx, entry); err != nil {
		s.logger.Error("history append failed",
			slog.String("error", err.Error()),
			slog.String("show", sess.ShowName),
		)
	}
}

func respondBroadcastError(c *fiber.Ctx, err error) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case "VALIDATION_ERROR":
			return models.RespondWithError(c, fiber.StatusBadRequest, err)
		case "NOT_FOUND":
			return models.RespondWithError(c, fiber.StatusNotFound, err)
		}
	}
	if errors.Is(err, session.ErrStaleWrite) {
		return models.RespondWithError(c, fiber.StatusConflict,
			models.NewConflictError("A newer session version was published concurrently"))
	}
	return models.RespondWithError(c, fiber.StatusInternalServerError, err)
}
