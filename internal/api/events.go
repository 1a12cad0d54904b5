package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/framestream/internal/events"
)

// registerSSERoutes registers the event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of produced and dropped frames, rotations, sessions and streaming state",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, events.Names(), func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 64)
		if s.eventBus != nil {
			unsubscribe := events.SubscribeAllToChannel(s.eventBus, eventCh)
			defer unsubscribe()
		}

		// Current state first, so clients do not wait for the next toggle.
		initial := events.StreamingStateChangedEvent{
			Reason:    "connected",
			Timestamp: time.Now().Format(time.RFC3339),
		}
		if s.streamer != nil {
			initial.Enabled = s.streamer.Status().Enabled
		}
		if err := send.Data(initial); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
