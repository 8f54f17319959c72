package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const statePushEvery = time.Second

// WebSocketStateHandler handles /ws/state. Each connection receives a state
// snapshot once per second and counts as one listener for the duration of the
// connection.
func (s *Server) WebSocketStateHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		leave := s.presence.Join(ctx)
		defer leave()

		s.logger.Info("listener connected", slog.String("remote", conn.RemoteAddr().String()))
		defer s.logger.Info("listener disconnected", slog.String("remote", conn.RemoteAddr().String()))

		// Read pump: we expect no listener messages, but reading is what
		// detects the peer closing the connection.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(statePushEvery)
		defer ticker.Stop()

		// First snapshot immediately so clients render without waiting a tick.
		if err := conn.WriteJSON(s.engine.State(ctx)); err != nil {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteJSON(s.engine.State(ctx)); err != nil {
					return
				}
			}
		}
	})
}
