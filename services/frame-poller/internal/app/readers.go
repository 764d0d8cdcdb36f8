// services/frame-poller/internal/app/readers.go
package app

import (
	"fmt"
	"strings"

	"github.com/YaganovValera/detector-stream/common/logger"
	"github.com/YaganovValera/detector-stream/services/frame-poller/internal/config"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader"
	readeramqp "github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader/amqp"
	readerkafka "github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader/kafka"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader/memory"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader/redisstream"
	readerws "github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader/websocket"
)

// NewReaderFactory строит фабрику ридеров выбранного транспорта.
// Каждый вызов фабрики даёт новый, не подключённый ридер в инструментирующей обёртке.
func NewReaderFactory(cfg config.ReaderConfig, log *logger.Logger) (reader.Factory, error) {
	kind := strings.ToLower(cfg.Kind)
	var build reader.Factory

	switch kind {
	case config.ReaderSynthetic:
		gc := cfg.Synthetic
		if _, err := memory.NewGenerator(gc); err != nil {
			return nil, err
		}
		build = func() reader.Reader {
			g, err := memory.NewGenerator(gc)
			if err != nil {
				return memory.New().FailConnect(err)
			}
			return g
		}
	case config.ReaderKafka:
		build = func() reader.Reader { return readerkafka.New(cfg.Kafka, log) }
	case config.ReaderRedis:
		build = func() reader.Reader { return redisstream.New(cfg.Redis, log) }
	case config.ReaderAMQP:
		build = func() reader.Reader { return readeramqp.New(cfg.AMQP, log) }
	case config.ReaderWebSocket:
		build = func() reader.Reader { return readerws.New(cfg.WebSocket, log) }
	default:
		return nil, fmt.Errorf("app: unknown reader kind %q", cfg.Kind)
	}

	return func() reader.Reader { return reader.Instrument(build(), kind) }, nil
}
