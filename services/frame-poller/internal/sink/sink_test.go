// services/frame-poller/internal/sink/sink_test.go
package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/YaganovValera/detector-stream/common/backoff"
	commonkafka "github.com/YaganovValera/detector-stream/common/kafka"
	"github.com/YaganovValera/detector-stream/common/kafka/producer"
	"github.com/YaganovValera/detector-stream/common/logger"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/record"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/shard"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/tensor"
)

type sent struct {
	topic   string
	key     []byte
	value   []byte
	headers map[string]string
}

type fakeProducer struct {
	mu     sync.Mutex
	msgs   []sent
	err    error
	closed bool
}

func (f *fakeProducer) Publish(_ context.Context, topic string, key, value []byte, headers ...commonkafka.Header) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	h := make(map[string]string, len(headers))
	for _, x := range headers {
		h[x.Key] = string(x.Value)
	}
	f.msgs = append(f.msgs, sent{topic, key, value, h})
	return nil
}

func (f *fakeProducer) Ping(context.Context) error { return nil }
func (f *fakeProducer) Close() error               { f.closed = true; return nil }

func frame(t *testing.T) tensor.Array {
	t.Helper()
	a, err := tensor.FromFloat32([]int{1, 2, 2}, []float32{1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestKafkaSink_KeyHeadersValue(t *testing.T) {
	fp := &fakeProducer{}
	s := NewKafka(fp, "frames", logger.NewNop())
	a := shard.Assignment{WorkerID: 2, NumWorkers: 3}

	for i := 0; i < 2; i++ {
		if err := s.Publish(context.Background(), a, frame(t)); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if len(fp.msgs) != 2 {
		t.Fatalf("sent %d messages", len(fp.msgs))
	}
	m := fp.msgs[1]
	if m.topic != "frames" || string(m.key) != "2" {
		t.Errorf("topic/key = %q/%q", m.topic, m.key)
	}
	if m.headers[HeaderWorkerID] != "2" || m.headers[HeaderNumWorkers] != "3" || m.headers[HeaderSeq] != "2" {
		t.Errorf("headers = %v", m.headers)
	}
	if m.headers[HeaderShape] != "[1 2 2]" {
		t.Errorf("shape header = %q", m.headers[HeaderShape])
	}
	rec, err := record.Unmarshal(m.value)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if rec.Index != 2 || !rec.Payload.Equal(frame(t)) {
		t.Errorf("decoded = %d %v", rec.Index, rec.Payload)
	}

	if err := s.Close(); err != nil || !fp.closed {
		t.Fatalf("Close: %v closed=%v", err, fp.closed)
	}
}

func TestKafkaSink_Error(t *testing.T) {
	boom := errors.New("boom")
	s := NewKafka(&fakeProducer{err: boom}, "frames", logger.NewNop())
	if err := s.Publish(context.Background(), shard.Single, frame(t)); !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
}

func TestKafkaSink_SaramaMock(t *testing.T) {
	mp := mocks.NewSyncProducer(t, sarama.NewConfig())
	mp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		rec, err := record.Unmarshal(val)
		if err != nil {
			return err
		}
		if rec.Payload.NDim() != 3 {
			return errors.New("payload must be 3-D")
		}
		return nil
	})
	mp.ExpectSendMessageAndFail(sarama.ErrMessageSizeTooLarge)

	bo := backoff.Config{InitialInterval: time.Millisecond, Multiplier: 1, MaxInterval: time.Millisecond, MaxElapsedTime: 50 * time.Millisecond}
	s := NewKafka(producer.NewFromSyncProducer(mp, bo, logger.NewNop()), "frames", logger.NewNop())

	if err := s.Publish(context.Background(), shard.Single, frame(t)); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := s.Publish(context.Background(), shard.Single, frame(t)); err == nil {
		t.Fatal("second publish must fail")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestLogAndNop(t *testing.T) {
	for _, s := range []Sink{NewLog(logger.NewNop()), Nop()} {
		if err := s.Publish(context.Background(), shard.Single, frame(t)); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
}
