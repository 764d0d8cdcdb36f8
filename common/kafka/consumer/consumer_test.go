// common/kafka/consumer/consumer_test.go
package consumer

import (
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/YaganovValera/detector-stream/common/logger"
)

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"empty", Config{}, true},
		{"no topic", Config{Brokers: []string{"b"}}, true},
		{"bad offset", Config{Brokers: []string{"b"}, Topic: "t", Offset: "middle"}, true},
		{"ok", Config{Brokers: []string{"b"}, Topic: "t"}, false},
		{"oldest", Config{Brokers: []string{"b"}, Topic: "t", Offset: "OLDEST"}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := c.cfg
			cfg.ApplyDefaults()
			if err := cfg.Validate(); (err != nil) != c.wantErr {
				t.Errorf("Validate() = %v; wantErr=%v", err, c.wantErr)
			}
		})
	}
}

func newMock(t *testing.T) (*mocks.Consumer, []*mocks.PartitionConsumer) {
	sc := sarama.NewConfig()
	sc.Consumer.Return.Errors = true
	c := mocks.NewConsumer(t, sc)
	c.SetTopicMetadata(map[string][]int32{"frames": {0, 1}})
	return c, []*mocks.PartitionConsumer{
		c.ExpectConsumePartition("frames", 0, sarama.OffsetNewest),
		c.ExpectConsumePartition("frames", 1, sarama.OffsetNewest),
	}
}

func TestSubscribe_MergesPartitions(t *testing.T) {
	c, pcs := newMock(t)
	sub, err := Subscribe(c, Config{Topic: "frames"}, logger.NewNop())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	pcs[0].YieldMessage(&sarama.ConsumerMessage{Value: []byte("a")})
	pcs[1].YieldMessage(&sarama.ConsumerMessage{Value: []byte("b")})

	got := map[string]bool{}
	for len(got) < 2 {
		select {
		case m := <-sub.Messages():
			got[string(m.Value)] = true
		case <-time.After(time.Second):
			t.Fatalf("timeout, got %v", got)
		}
	}

	if err := sub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, ok := <-sub.Messages(); ok {
		t.Fatal("messages channel must be closed after Close")
	}
}

func TestSubscribe_ForwardsErrors(t *testing.T) {
	c, pcs := newMock(t)
	sub, err := Subscribe(c, Config{Topic: "frames"}, logger.NewNop())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	pcs[1].YieldError(sarama.ErrOffsetOutOfRange)
	select {
	case err := <-sub.Errors():
		if !errors.Is(err, sarama.ErrOffsetOutOfRange) {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("error not forwarded")
	}
}

func TestSubscribe_NoPartitions(t *testing.T) {
	c := mocks.NewConsumer(t, sarama.NewConfig())
	c.SetTopicMetadata(map[string][]int32{"frames": {}})
	if _, err := Subscribe(c, Config{Topic: "frames"}, logger.NewNop()); err == nil {
		t.Fatal("expected error for empty topic")
	}
}
