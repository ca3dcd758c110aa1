package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/ultraswap/service/metrics"
	natspkg "github.com/brojonat/ultraswap/service/nats"
)

// keepaliveInterval is how often an idle stream gets a comment line.
var keepaliveInterval = 10 * time.Second

// handleStreamConsole streams console events as Server-Sent Events.
// GET /api/v1/stream/console?kind={kind}
// Without kind every console event is streamed.
func handleStreamConsole(subscriber natspkg.Subscriber, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		kind := r.URL.Query().Get("kind")

		events, err := subscriber.Subscribe(ctx, kind)
		if err != nil {
			logger.ErrorContext(ctx, "failed to subscribe to console", "kind", kind, "error", err)
			writeError(w, "failed to subscribe", http.StatusServiceUnavailable)
			return
		}

		// The stream outlives the server's write timeout.
		rc := http.NewResponseController(w)
		if err := rc.SetWriteDeadline(time.Time{}); err != nil {
			logger.DebugContext(ctx, "could not clear write deadline", "error", err)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		m.RecordSSEConnectionChange(1)
		defer m.RecordSSEConnectionChange(-1)

		logger.DebugContext(ctx, "SSE client connected",
			"kind", kind,
			"remote_addr", r.RemoteAddr,
		)

		fmt.Fprintf(w, "event: connected\ndata: {\"kind\":%q}\n\n", kind)
		rc.Flush()

		keepalive := time.NewTicker(keepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				rc.Flush()

			case event, ok := <-events:
				if !ok {
					return
				}
				data, err := json.Marshal(event)
				if err != nil {
					logger.WarnContext(ctx, "failed to marshal event", "error", err)
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind, data)
				rc.Flush()
				m.RecordSSEEventSent(event.Kind)

			case <-ctx.Done():
				logger.DebugContext(ctx, "SSE client disconnected",
					"kind", kind,
					"remote_addr", r.RemoteAddr,
				)
				return
			}
		}
	})
}
