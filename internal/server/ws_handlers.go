package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/skarlatos/scoreline/internal/work"
)

// JobStreamHandler pushes job status transitions to websocket clients.
type JobStreamHandler struct {
	manager *work.Manager
	log     zerolog.Logger
}

// NewJobStreamHandler creates the job event stream handler.
func NewJobStreamHandler(manager *work.Manager, log zerolog.Logger) *JobStreamHandler {
	return &JobStreamHandler{
		manager: manager,
		log:     log.With().Str("component", "job_stream").Logger(),
	}
}

// HandleJobStream upgrades to a websocket and streams job events until the
// client disconnects. On connect the current live jobs are sent first so a
// late subscriber sees a consistent picture.
// GET /api/jobs/ws
func (h *JobStreamHandler) HandleJobStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The API is same-origin-agnostic already (CORS allows all).
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	// CloseRead processes control frames and cancels the context when the
	// client goes away.
	ctx := conn.CloseRead(r.Context())

	events, unsubscribe := h.manager.Subscribe()
	defer unsubscribe()

	for _, job := range h.manager.ListJobs() {
		if err := h.write(ctx, conn, work.Event{Job: job}); err != nil {
			return
		}
	}

	h.log.Debug().Msg("Job stream client connected")

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case event, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := h.write(ctx, conn, event); err != nil {
				h.log.Debug().Err(err).Msg("Job stream client dropped")
				return
			}
		}
	}
}

func (h *JobStreamHandler) write(ctx context.Context, conn *websocket.Conn, event work.Event) error {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(writeCtx, conn, event)
}
