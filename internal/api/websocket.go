package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"sitegrade/internal/logging"
	"sitegrade/internal/services"
	"sitegrade/internal/workflow"
)

const wsWriteTimeout = 10 * time.Second

// wsResult is the single message a non-streaming advance writes.
type wsResult struct {
	Type string `json:"type"`
	AdvanceResponse
}

// handleAdvanceWS upgrades the connection, runs one advance and relays its
// result. A Recommendations advance relays every stream event.
func (s *Server) handleAdvanceWS(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	state, err := s.ownedSession(r, user)
	if err == nil {
		err = requireStreamable(state)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "closing")

	ctx := conn.CloseRead(r.Context())
	outcome, err := s.sessions.Advance(ctx, state.ID)
	if err != nil {
		_ = s.writeWS(ctx, conn, streamError(err))
		return
	}
	if outcome.Stream == nil {
		_ = s.writeWS(ctx, conn, wsResult{Type: "result", AdvanceResponse: FromOutcome(outcome)})
		return
	}

	relay := outcome.Stream
	for {
		select {
		case event, ok := <-relay.Events():
			if !ok {
				if err := relay.Err(); err != nil {
					_ = s.writeWS(ctx, conn, streamError(err))
				}
				return
			}
			if err := s.writeWS(ctx, conn, event); err != nil {
				relay.Stop()
				return
			}
		case <-ctx.Done():
			relay.Stop()
			return
		}
	}
}

func (s *Server) writeWS(ctx context.Context, conn *websocket.Conn, payload any) error {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	err := wsjson.Write(writeCtx, conn, payload)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debug("websocket write failed", logging.Error(err))
	}
	return err
}

// requireStreamable rejects websocket upgrades that would not stream.
func requireStreamable(state workflow.SessionState) error {
	if state.Complete {
		return services.Wrap(services.ErrValidation, "api", "advance", "evaluation is complete", nil)
	}
	return nil
}
