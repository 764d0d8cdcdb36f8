// services/frame-poller/pkg/shard/shard.go

// Package shard assigns stream indices to workers.
//
// Every poller that reads the same stream must use the same NumWorkers;
// a mismatch silently duplicates some indices and drops others, and no single
// poller can detect it.
package shard

import (
	"context"
	"fmt"
)

// Assignment is one worker's slot among NumWorkers.
type Assignment struct {
	WorkerID   int `mapstructure:"worker_id"`
	NumWorkers int `mapstructure:"num_workers"`
}

// Single is the assignment used when no worker context is present.
var Single = Assignment{WorkerID: 0, NumWorkers: 1}

// Validate checks 0 <= WorkerID < NumWorkers.
func (a Assignment) Validate() error {
	if a.NumWorkers < 1 {
		return fmt.Errorf("shard: num_workers must be >= 1, got %d", a.NumWorkers)
	}
	if a.WorkerID < 0 || a.WorkerID >= a.NumWorkers {
		return fmt.Errorf("shard: worker_id must be in [0, %d), got %d", a.NumWorkers, a.WorkerID)
	}
	return nil
}

// Owns reports whether index belongs to this worker. Negative indices use
// the mathematical modulo, so -1 belongs to worker NumWorkers-1.
func (a Assignment) Owns(index int64) bool {
	n := int64(a.NumWorkers)
	return ((index%n)+n)%n == int64(a.WorkerID)
}

func (a Assignment) String() string {
	return fmt.Sprintf("%d/%d", a.WorkerID, a.NumWorkers)
}

type ctxKey struct{}

// WithAssignment stores a in ctx.
func WithAssignment(ctx context.Context, a Assignment) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// FromContext returns the assignment stored in ctx, or Single.
func FromContext(ctx context.Context) Assignment {
	if a, ok := ctx.Value(ctxKey{}).(Assignment); ok {
		return a
	}
	return Single
}

// All returns the assignments 0..n-1 of n workers.
func All(n int) []Assignment {
	out := make([]Assignment, n)
	for i := range out {
		out[i] = Assignment{WorkerID: i, NumWorkers: n}
	}
	return out
}
