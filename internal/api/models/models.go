package models

import (
	"github.com/smazurov/framestream/internal/logging"
	"github.com/smazurov/framestream/internal/scheduler"
	"github.com/smazurov/framestream/internal/worker"
)

// Health check models
type HealthData struct {
	Status   string `json:"status" example:"ok" doc:"Service status"`
	Message  string `json:"message" example:"API is healthy" doc:"Status message"`
	Sessions int    `json:"sessions" example:"2" doc:"Connected socket sessions"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.2.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"a1b2c3d" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	BuildID   string `json:"build_id" doc:"Build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go runtime version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"OS and architecture"`
}

type VersionResponse struct {
	Body VersionData
}

// Streamer models
type StreamerData struct {
	Enabled   bool            `json:"enabled" doc:"Whether frames are being produced"`
	Mode      string          `json:"mode" example:"socket" doc:"Sink mode: none, disk or socket"`
	Async     bool            `json:"async" doc:"Whether encode and dispatch run on the worker pool"`
	Delay     int             `json:"delay" example:"3" doc:"Capture events skipped between frames"`
	Sources   []string        `json:"sources" doc:"Registered sources in index order"`
	Window    []string        `json:"window,omitempty" doc:"Active sources when iterating"`
	Scheduler scheduler.State `json:"scheduler" doc:"Scheduler snapshot"`
	Pool      *worker.Stats   `json:"pool,omitempty" doc:"Worker pool statistics"`
	Sessions  int             `json:"sessions" doc:"Connected socket sessions"`
}

type StreamerResponse struct {
	Body StreamerData
}

type SetEnabledData struct {
	Enabled bool   `json:"enabled" doc:"Enable or disable streaming"`
	Reason  string `json:"reason,omitempty" example:"maintenance" doc:"Reason reported on the event stream"`
}

type SetEnabledRequest struct {
	Body SetEnabledData
}

type SetDelayData struct {
	Delay int `json:"delay" minimum:"0" example:"3" doc:"Capture events skipped between frames"`
}

type SetDelayRequest struct {
	Body SetDelayData
}

// Log models
type LogsRequest struct {
	Limit int `query:"limit" default:"100" minimum:"0" maximum:"500" doc:"Maximum number of entries, 0 for all"`
}

type LogsData struct {
	Entries []logging.LogEntry `json:"entries" doc:"Most recent log entries, oldest first"`
	Count   int                `json:"count" example:"100" doc:"Number of entries returned"`
}

type LogsResponse struct {
	Body LogsData
}
