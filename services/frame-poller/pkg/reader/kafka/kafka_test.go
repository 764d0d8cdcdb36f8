// services/frame-poller/pkg/reader/kafka/kafka_test.go
package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	commonkafka "github.com/YaganovValera/detector-stream/common/kafka"
	"github.com/YaganovValera/detector-stream/common/kafka/consumer"
	"github.com/YaganovValera/detector-stream/common/logger"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader/memory"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/record"
)

func newMockReader(t *testing.T) (*Reader, *mocks.PartitionConsumer) {
	t.Helper()
	sc := sarama.NewConfig()
	sc.Consumer.Return.Errors = true
	mc := mocks.NewConsumer(t, sc)
	mc.SetTopicMetadata(map[string][]int32{"frames": {0}})
	pc := mc.ExpectConsumePartition("frames", 0, sarama.OffsetNewest)

	cfg := Config{Config: consumer.Config{Topic: "frames"}, PollTimeout: time.Second}
	r := NewWithSubscriber(func(context.Context) (commonkafka.Subscriber, error) {
		return consumer.Subscribe(mc, cfg.Config, logger.NewNop())
	}, cfg, logger.NewNop())
	return r, pc
}

func TestReader_DecodesFrames(t *testing.T) {
	r, pc := newMockReader(t)
	ctx := context.Background()

	if _, _, err := r.Read(ctx); !errors.Is(err, reader.ErrNotConnected) {
		t.Fatalf("read before connect: %v", err)
	}
	if err := r.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	pc.YieldMessage(&sarama.ConsumerMessage{Value: record.Marshal(memory.Frame(12, 3, 2))})
	rec, ok, err := r.Read(ctx)
	if err != nil || !ok {
		t.Fatalf("Read: %v %v", ok, err)
	}
	if rec.Index != 12 || rec.Payload.Shape[0] != 3 || rec.Payload.Shape[1] != 2 {
		t.Fatalf("record %+v", rec)
	}

	pc.YieldMessage(&sarama.ConsumerMessage{Value: []byte{0xff, 0xff}})
	if _, _, err := r.Read(ctx); err == nil || reader.IsFatal(err) || !errors.Is(err, record.ErrMalformed) {
		t.Fatalf("malformed frame must be a transient error, got %v", err)
	}

	pc.YieldError(sarama.ErrOffsetOutOfRange)
	if _, _, err := r.Read(ctx); err == nil || reader.IsFatal(err) {
		t.Fatalf("partition error must be transient, got %v", err)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, _, err := r.Read(ctx); !reader.IsFatal(err) {
		t.Fatalf("read after close must be fatal, got %v", err)
	}
}

func TestReader_EmptyWithoutTimeout(t *testing.T) {
	r, _ := newMockReader(t)
	r.cfg.PollTimeout = 0
	ctx := context.Background()
	if err := r.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if _, ok, err := r.Read(ctx); ok || err != nil {
		t.Fatalf("expected empty signal, got %v %v", ok, err)
	}
}

func TestClassify(t *testing.T) {
	if !reader.IsFatal(classify(sarama.ErrOutOfBrokers)) {
		t.Error("out of brokers must be fatal")
	}
	if reader.IsFatal(classify(sarama.ErrNotLeaderForPartition)) {
		t.Error("leader change must be transient")
	}
}

func TestConnect_SubscribeError(t *testing.T) {
	boom := errors.New("no brokers")
	r := NewWithSubscriber(func(context.Context) (commonkafka.Subscriber, error) {
		return nil, boom
	}, Config{}, logger.NewNop())
	if err := r.Connect(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close never-connected: %v", err)
	}
}
