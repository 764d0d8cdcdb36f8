// services/frame-poller/internal/app/app_test.go
package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/YaganovValera/detector-stream/common/logger"
	"github.com/YaganovValera/detector-stream/services/frame-poller/internal/config"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/poller"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader/memory"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/shard"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/tensor"
)

// recordingSink запоминает индексы кадров по воркерам; memory.Frame заполняет
// кадр его индексом.
type recordingSink struct {
	mu     sync.Mutex
	got    map[int][]int64
	closed bool
}

func newRecordingSink() *recordingSink { return &recordingSink{got: map[int][]int64{}} }

func (s *recordingSink) Publish(_ context.Context, a shard.Assignment, buf tensor.Array) error {
	vals, err := buf.Float32s()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.got[a.WorkerID] = append(s.got[a.WorkerID], int64(vals[0]))
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) Close() error { s.closed = true; return nil }

func testConfig(workers int) *config.Config {
	return &config.Config{
		ServiceName:    "frame-poller",
		ServiceVersion: "test",
		Workers:        workers,
		Shard:          shard.Single,
		Poller:         poller.Config{EmptyInterval: 5 * time.Millisecond, ErrorInterval: 5 * time.Millisecond},
		Reader:         config.ReaderConfig{Kind: config.ReaderSynthetic},
		Sink:           config.SinkConfig{Kind: config.SinkNone},
		Logging:        config.LoggingConfig{Level: "info"},
	}
}

func TestApp_WorkersPartitionStream(t *testing.T) {
	const n, k = 3, 30
	var mu sync.Mutex
	var readers []*memory.Reader
	factory := func() reader.Reader {
		r := memory.New(memory.Concat(memory.Empties(2), memory.Range(k))...)
		mu.Lock()
		readers = append(readers, r)
		mu.Unlock()
		return r
	}
	rs := newRecordingSink()
	a, err := New(context.Background(), testConfig(n), logger.NewNop(),
		WithReaderFactory(factory), WithSink(rs), WithoutHTTP())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(readers) != 0 {
		t.Fatal("readers must not be created before Run")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var all []int64
	for id, idx := range rs.got {
		for _, i := range idx {
			if i%n != int64(id) {
				t.Errorf("worker %d got index %d", id, i)
			}
		}
		all = append(all, idx...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	if len(all) != k {
		t.Fatalf("got %d buffers, want %d", len(all), k)
	}
	for i, v := range all {
		if v != int64(i) {
			t.Fatalf("index %d missing or duplicated: %v", i, all)
		}
	}
	for _, r := range readers {
		if s := r.Stats(); s.Closes != 1 {
			t.Errorf("reader closed %d times", s.Closes)
		}
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !rs.closed {
		t.Error("sink not closed")
	}
}

func TestApp_ConnectErrorStopsRun(t *testing.T) {
	boom := errors.New("refused")
	var mu sync.Mutex
	blocked := 0
	factory := func() reader.Reader {
		mu.Lock()
		defer mu.Unlock()
		blocked++
		if blocked == 1 {
			return memory.New().FailConnect(boom)
		}
		return memory.New(memory.Empties(10000)...)
	}
	a, err := New(context.Background(), testConfig(2), logger.NewNop(),
		WithReaderFactory(factory), WithSink(newRecordingSink()), WithoutHTTP())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = a.Run(ctx)
	var ce *poller.ConnectError
	if !errors.As(err, &ce) || !errors.Is(err, boom) {
		t.Fatalf("want ConnectError(refused), got %v", err)
	}
	if ctx.Err() != nil {
		t.Fatal("Run must return before the deadline")
	}
	_ = a.Close()
}

func TestApp_ReadyAndCancel(t *testing.T) {
	factory := func() reader.Reader { return memory.New(memory.Empties(100000)...) }
	a, err := New(context.Background(), testConfig(2), logger.NewNop(),
		WithReaderFactory(factory), WithSink(newRecordingSink()), WithoutHTTP())
	if err != nil {
		t.Fatal(err)
	}
	if a.Ready() == nil {
		t.Fatal("must not be ready before Run")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for a.Ready() != nil {
		if time.Now().After(deadline) {
			t.Fatal("workers never became ready")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run after cancel: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if a.Ready() == nil {
		t.Error("must not be ready after shutdown")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNewReaderFactory(t *testing.T) {
	cases := []struct {
		kind string
		ok   bool
	}{
		{config.ReaderSynthetic, true},
		{config.ReaderKafka, true},
		{config.ReaderRedis, true},
		{config.ReaderAMQP, true},
		{config.ReaderWebSocket, true},
		{"ftp", false},
	}
	for _, tc := range cases {
		t.Run(tc.kind, func(t *testing.T) {
			f, err := NewReaderFactory(config.ReaderConfig{Kind: tc.kind}, logger.NewNop())
			if (err == nil) != tc.ok {
				t.Fatalf("err = %v", err)
			}
			if !tc.ok {
				return
			}
			r := f()
			if _, ok := r.(interface{ Unwrap() reader.Reader }); !ok {
				t.Fatalf("%T is not instrumented", r)
			}
			if err := r.Close(); err != nil {
				t.Fatalf("Close on unconnected reader: %v", err)
			}
		})
	}
}

func TestApp_SyntheticEndToEnd(t *testing.T) {
	cfg := testConfig(2)
	cfg.Reader.Synthetic = memory.GeneratorConfig{Height: 2, Width: 3, DType: "float32", Limit: 10}
	rs := newRecordingSink()
	a, err := New(context.Background(), cfg, logger.NewNop(), WithSink(rs), WithoutHTTP())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	total := len(rs.got[0]) + len(rs.got[1])
	if total != 10 {
		t.Fatalf("got %d buffers, want 10", total)
	}
}
