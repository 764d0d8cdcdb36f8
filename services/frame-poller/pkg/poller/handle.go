// services/frame-poller/pkg/poller/handle.go
package poller

import (
	"context"
	"sync"

	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader"
)

type handleState uint8

const (
	stateUnconnected handleState = iota
	stateConnected
	stateClosed
)

func (s handleState) String() string {
	switch s {
	case stateUnconnected:
		return "unconnected"
	case stateConnected:
		return "connected"
	default:
		return "closed"
	}
}

// handle owns the poller's single Reader: created on first open, connected
// once, closed once.
type handle struct {
	factory reader.Factory

	mu    sync.Mutex
	r     reader.Reader
	state handleState
}

// open creates and connects the reader. A reader whose Connect failed is
// kept so that close releases it.
func (h *handle) open(ctx context.Context) (reader.Reader, error) {
	h.mu.Lock()
	if h.state == stateClosed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	if h.r != nil {
		r := h.r
		h.mu.Unlock()
		return r, nil
	}
	r := h.factory()
	h.r = r
	h.mu.Unlock()

	if err := r.Connect(ctx); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == stateClosed {
		return nil, ErrClosed
	}
	h.state = stateConnected
	return r, nil
}

// close releases the reader if one was created. Safe to call repeatedly.
func (h *handle) close() error {
	h.mu.Lock()
	r := h.r
	h.r = nil
	h.state = stateClosed
	h.mu.Unlock()

	if r == nil {
		return nil
	}
	return r.Close()
}

func (h *handle) current() handleState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}
