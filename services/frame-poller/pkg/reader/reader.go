// services/frame-poller/pkg/reader/reader.go

// Package reader defines the pull capability a poller drives: connect once,
// read records one at a time, close once.
package reader

import (
	"context"
	"errors"

	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/tensor"
)

// Record is one unit pulled from the upstream source.
type Record struct {
	OriginID int64        // producer of the frame (camera, sensor, ...)
	Index    int64        // position in the upstream stream, used for sharding
	Payload  tensor.Array // 2-D (H, W)
}

// Reader is a single-owner handle to an upstream source.
//
// Read returns (rec, true, nil) for a record and (_, false, nil) when nothing
// is available right now. Errors marked with Fatal mean the source is unusable;
// any other error is transient. Close must be safe to call more than once and
// before Connect.
type Reader interface {
	Connect(ctx context.Context) error
	Read(ctx context.Context) (Record, bool, error)
	Close() error
}

// Factory creates a fresh, unconnected Reader.
type Factory func() Reader

// ErrNotConnected is returned by Read before a successful Connect.
var ErrNotConnected = errors.New("reader: not connected")

// ErrClosed is the fatal error readers return after Close or when the
// upstream stream ended.
var ErrClosed = Fatal(errors.New("reader: closed"))
