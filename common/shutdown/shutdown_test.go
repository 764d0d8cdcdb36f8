// common/shutdown/shutdown_test.go
package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/YaganovValera/detector-stream/common/logger"
)

func TestGracefulShutdown(t *testing.T) {
	log := logger.NewNop()

	if err := GracefulShutdown("ok", time.Second, func(context.Context) error { return nil }, log); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sentinel := errors.New("close failed")
	if err := GracefulShutdown("bad", time.Second, func(context.Context) error { return sentinel }, log); !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}

	err := GracefulShutdown("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, log)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestWithSignals_ParentCancel(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := WithSignals(parent, logger.NewNop())
	defer cancel()

	cancelParent()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("ctx not cancelled after parent")
	}
}
