package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/cuemby/ember/pkg/events"
)

const eventWriteTimeout = 5 * time.Second

// streamEvents upgrades to a websocket and writes one JSON event per
// message. Repeated ?type= parameters filter the stream.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if s.broker == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "event stream is not enabled", Kind: "not_found"})
		return
	}

	var filter []events.EventType
	for _, t := range r.URL.Query()["type"] {
		filter = append(filter, events.EventType(t))
	}

	opts := &websocket.AcceptOptions{}
	if len(s.corsOrigins) > 0 {
		opts.OriginPatterns = s.corsOrigins
	}
	c, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer func() {
		_ = c.Close(websocket.StatusInternalError, "server error")
	}()

	sub := s.broker.Subscribe(filter...)
	defer s.broker.Unsubscribe(sub)

	// the client never sends; CloseRead handles its close frame
	ctx := c.CloseRead(r.Context())

	s.logger.Debug().Str("remote", r.RemoteAddr).Int("filters", len(filter)).Msg("event stream opened")

	for {
		select {
		case <-ctx.Done():
			_ = c.Close(websocket.StatusNormalClosure, "")
			return
		case e, ok := <-sub:
			if !ok {
				_ = c.Close(websocket.StatusGoingAway, "broker stopped")
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			if err := writeMessage(ctx, c, data); err != nil {
				return
			}
		}
	}
}

func writeMessage(ctx context.Context, c *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return c.Write(ctx, websocket.MessageText, data)
}
