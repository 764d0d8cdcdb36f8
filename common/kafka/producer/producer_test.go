// common/kafka/producer/producer_test.go
package producer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/YaganovValera/detector-stream/common/backoff"
	commonkafka "github.com/YaganovValera/detector-stream/common/kafka"
	"github.com/YaganovValera/detector-stream/common/logger"
)

var fastBackoff = backoff.Config{
	InitialInterval: time.Millisecond,
	Multiplier:      1,
	MaxInterval:     time.Millisecond,
	MaxElapsedTime:  50 * time.Millisecond,
}

// Проверяем applyDefaults и validate.
func TestConfigDefaultsAndValidate(t *testing.T) {
	cases := []struct {
		name     string
		input    Config
		wantErr  bool
		wantAcks string
		wantComp string
	}{
		{"empty", Config{}, true, "all", "none"},
		{"noBrokers", Config{Compression: "gzip"}, true, "all", "gzip"},
		{"ok", Config{Brokers: []string{"b1"}}, false, "all", "none"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := c.input
			cfg.applyDefaults()
			if got := cfg.RequiredAcks; got != c.wantAcks {
				t.Errorf("RequiredAcks = %q; want %q", got, c.wantAcks)
			}
			if got := cfg.Compression; got != c.wantComp {
				t.Errorf("Compression = %q; want %q", got, c.wantComp)
			}
			if err := cfg.validate(); (err != nil) != c.wantErr {
				t.Errorf("validate() error = %v; wantErr=%v", err, c.wantErr)
			}
		})
	}
}

func TestBuildSaramaConfig(t *testing.T) {
	cases := []struct {
		acks, comp string
		wantErr    bool
		wantAcks   sarama.RequiredAcks
		idempotent bool
	}{
		{"all", "none", false, sarama.WaitForAll, true},
		{"LeAdEr", "gzip", false, sarama.WaitForLocal, false},
		{"none", "zstd", false, sarama.NoResponse, false},
		{"invalid", "none", true, 0, false},
		{"all", "bogus", true, 0, false},
	}
	for _, c := range cases {
		t.Run(c.acks+"/"+c.comp, func(t *testing.T) {
			sc, err := buildSaramaConfig(Config{RequiredAcks: c.acks, Compression: c.comp, Brokers: []string{"x"}})
			if c.wantErr {
				if err == nil {
					t.Errorf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sc.Producer.RequiredAcks != c.wantAcks {
				t.Errorf("acks %v; want %v", sc.Producer.RequiredAcks, c.wantAcks)
			}
			if sc.Producer.Idempotent != c.idempotent {
				t.Errorf("idempotent %v; want %v", sc.Producer.Idempotent, c.idempotent)
			}
			if err := sc.Validate(); err != nil {
				t.Errorf("sarama config invalid: %v", err)
			}
		})
	}
}

// Publish: сначала ошибка, потом успех.
func TestPublish_RetryAndSuccess(t *testing.T) {
	mockProd := mocks.NewSyncProducer(t, sarama.NewConfig())
	mockProd.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	mockProd.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != "value" {
			return errors.New("unexpected payload " + string(val))
		}
		return nil
	})

	kp := NewFromSyncProducer(mockProd, fastBackoff, logger.NewNop())
	err := kp.Publish(context.Background(), "topic", []byte("key"), []byte("value"),
		commonkafka.Header{Key: "worker_id", Value: []byte("1")})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := kp.Ping(context.Background()); err != nil {
		t.Errorf("Ping without client: %v", err)
	}
	if err := kp.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestPublish_TooLargeIsPermanent(t *testing.T) {
	mockProd := mocks.NewSyncProducer(t, sarama.NewConfig())
	mockProd.ExpectSendMessageAndFail(sarama.ErrMessageSizeTooLarge)

	kp := NewFromSyncProducer(mockProd, fastBackoff, logger.NewNop())
	err := kp.Publish(context.Background(), "topic", nil, []byte("v"))
	var maxErr *backoff.ErrMaxRetries
	if !errors.As(err, &maxErr) || maxErr.Attempts != 1 {
		t.Fatalf("expected a single attempt, got %v", err)
	}
	_ = kp.Close()
}

func TestNew_InvalidConfig(t *testing.T) {
	if _, err := New(context.Background(), Config{}, logger.NewNop()); err == nil {
		t.Fatal("expected error for empty Config")
	}
	cfg := Config{Brokers: []string{"dummy"}, RequiredAcks: "invalid"}
	if _, err := New(context.Background(), cfg, logger.NewNop()); err == nil {
		t.Fatal("expected error for invalid RequiredAcks")
	}
}
