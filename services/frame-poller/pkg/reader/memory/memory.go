// services/frame-poller/pkg/reader/memory/memory.go

// Package memory provides in-process readers: a scripted one for tests and a
// synthetic frame generator for local runs.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/tensor"
)

// ErrExhausted is the fatal error returned once the script has been consumed.
var ErrExhausted = reader.Fatal(errors.New("memory: script exhausted"))

// Step is one scripted Read result.
type Step struct {
	Record reader.Record
	Empty  bool
	Err    error
	Panic  any
}

// Stats counts calls made on a Reader.
type Stats struct {
	Connects int
	Reads    int
	Closes   int
}

// Reader replays a fixed script. Safe for concurrent inspection.
type Reader struct {
	mu         sync.Mutex
	script     []Step
	pos        int
	connectErr error
	connected  bool
	closed     bool
	stats      Stats
}

// New returns a Reader that replays steps and then fails with ErrExhausted.
func New(steps ...Step) *Reader {
	return &Reader{script: steps}
}

// FailConnect makes Connect return err.
func (r *Reader) FailConnect(err error) *Reader {
	r.mu.Lock()
	r.connectErr = err
	r.mu.Unlock()
	return r
}

func (r *Reader) Connect(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Connects++
	if r.connectErr != nil {
		return r.connectErr
	}
	r.connected = true
	return nil
}

func (r *Reader) Read(context.Context) (reader.Record, bool, error) {
	r.mu.Lock()
	r.stats.Reads++
	if r.closed {
		r.mu.Unlock()
		return reader.Record{}, false, reader.ErrClosed
	}
	if !r.connected {
		r.mu.Unlock()
		return reader.Record{}, false, reader.ErrNotConnected
	}
	if r.pos >= len(r.script) {
		r.mu.Unlock()
		return reader.Record{}, false, ErrExhausted
	}
	step := r.script[r.pos]
	r.pos++
	r.mu.Unlock()

	switch {
	case step.Panic != nil:
		panic(step.Panic)
	case step.Err != nil:
		return reader.Record{}, false, step.Err
	case step.Empty:
		return reader.Record{}, false, nil
	}
	return step.Record, true, nil
}

func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Closes++
	r.closed = true
	r.connected = false
	return nil
}

// Stats returns a snapshot of the call counters.
func (r *Reader) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Remaining is the number of unread steps.
func (r *Reader) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.script) - r.pos
}

// Frame builds a record whose (h, w) float32 payload is filled with index.
func Frame(index int64, h, w int) reader.Record {
	vals := make([]float32, h*w)
	for i := range vals {
		vals[i] = float32(index)
	}
	p, _ := tensor.FromFloat32([]int{h, w}, vals)
	return reader.Record{OriginID: 1, Index: index, Payload: p}
}

// Records returns one 2x2 frame step per index.
func Records(indices ...int64) []Step {
	steps := make([]Step, 0, len(indices))
	for _, i := range indices {
		steps = append(steps, Step{Record: Frame(i, 2, 2)})
	}
	return steps
}

// Range returns frame steps for indices [0, k).
func Range(k int) []Step {
	idx := make([]int64, k)
	for i := range idx {
		idx[i] = int64(i)
	}
	return Records(idx...)
}

// Empties returns n empty-signal steps.
func Empties(n int) []Step {
	steps := make([]Step, n)
	for i := range steps {
		steps[i].Empty = true
	}
	return steps
}

// Concat joins step lists.
func Concat(parts ...[]Step) []Step {
	var out []Step
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
