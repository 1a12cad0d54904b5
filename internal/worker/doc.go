// Package worker provides a pool of reusable background workers for frame
// encode and dispatch jobs.
//
// Each slot runs at most one job at a time. Submit claims the first free
// slot (compare-and-swap on the slot state, under the table lock) and starts
// a goroutine bound to the job; when no slot is free a new one is appended.
// Sequential submissions therefore reuse a single slot, while bursts grow
// the table up to the number of jobs in flight. Growth is unbounded unless
// Options.MaxSlots is set.
//
// Slots own an optional scratch buffer for SubmitWithScratch, allocated on
// first use and handed to exactly one job at a time.
//
// ShutdownAll cancels the context passed to every job and returns without
// waiting. Jobs that ignore the context run to completion; anything they
// were writing when shutdown began carries no durability guarantee.
//
// Example:
//
//	pool := worker.New(worker.Options{Name: "encode"})
//	defer pool.ShutdownAll()
//
//	_ = pool.SubmitWithScratch(func(ctx context.Context, buf []byte) {
//	    encodeInto(buf)
//	}, func() int { return 640 * 480 * 4 })
package worker
