package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/framestream/internal/api/models"
)

const reasonAPI = "api"

// registerStreamerRoutes registers the pipeline status and control routes.
func (s *Server) registerStreamerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-streamer",
		Method:      http.MethodGet,
		Path:        "/api/streamer",
		Summary:     "Streamer Status",
		Description: "Get the streaming toggle, sink mode, scheduler window and worker pool state",
		Tags:        []string{"streamer"},
		Security:    withAuth(),
		Errors:      []int{401, 503},
	}, func(_ context.Context, _ *struct{}) (*models.StreamerResponse, error) {
		if s.streamer == nil {
			return nil, huma.Error503ServiceUnavailable("pipeline not running")
		}
		return s.streamerResponse(), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-streamer-enabled",
		Method:      http.MethodPut,
		Path:        "/api/streamer/enabled",
		Summary:     "Enable Or Disable Streaming",
		Description: "Toggle frame production. Capture events are ignored while disabled.",
		Tags:        []string{"streamer"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 422, 503},
	}, func(_ context.Context, input *models.SetEnabledRequest) (*models.StreamerResponse, error) {
		if s.streamer == nil {
			return nil, huma.Error503ServiceUnavailable("pipeline not running")
		}
		reason := input.Body.Reason
		if reason == "" {
			reason = reasonAPI
		}
		s.streamer.SetEnabled(input.Body.Enabled, reason)
		return s.streamerResponse(), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-streamer-delay",
		Method:      http.MethodPut,
		Path:        "/api/streamer/delay",
		Summary:     "Set Delay",
		Description: "Set the number of capture events skipped between frames of one source",
		Tags:        []string{"streamer"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 422, 503},
	}, func(_ context.Context, input *models.SetDelayRequest) (*models.StreamerResponse, error) {
		if s.streamer == nil {
			return nil, huma.Error503ServiceUnavailable("pipeline not running")
		}
		s.streamer.SetDelay(input.Body.Delay)
		return s.streamerResponse(), nil
	})
}

func (s *Server) streamerResponse() *models.StreamerResponse {
	st := s.streamer.Status()
	return &models.StreamerResponse{
		Body: models.StreamerData{
			Enabled:   st.Enabled,
			Mode:      st.Mode.String(),
			Async:     st.Async,
			Delay:     s.streamer.Delay(),
			Sources:   st.Sources,
			Window:    st.Window,
			Scheduler: st.Sched,
			Pool:      st.Pool,
			Sessions:  s.sessions(),
		},
	}
}
