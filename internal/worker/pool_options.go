package worker

import (
	"context"
	"log/slog"
)

// Job is a unit of background work. The context is cancelled by ShutdownAll.
type Job func(ctx context.Context)

// ScratchJob is a Job that borrows the slot's reusable scratch buffer.
// The buffer is not zeroed between jobs and must not be retained after
// the job returns.
type ScratchJob func(ctx context.Context, scratch []byte)

// SizeFunc returns the scratch size for a slot. Called on first use of a
// slot and whenever a later request needs more room.
type SizeFunc func() int

// Options configures a new Pool.
type Options struct {
	// Name labels the pool in logs and metrics.
	Name string

	// MaxSlots caps the slot table when > 0. Zero leaves growth unbounded.
	MaxSlots int

	// Logger for pool operations. If nil, uses slog.Default().
	Logger *slog.Logger
}
