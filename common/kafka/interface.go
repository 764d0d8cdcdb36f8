// common/kafka/interface.go
//
// Пакет kafka задаёт минимальные контракты обмена сообщениями, не тянет
// за собой Sarama и никак не зависит от конкретной реализации.
package kafka

import (
	"context"
	"time"
)

// Header: заголовок сообщения.
type Header struct {
	Key   string
	Value []byte
}

// Message представляет запись, полученную из Kafka.
type Message struct {
	Key       []byte // ключ сообщения (может быть nil)
	Value     []byte // полезная нагрузка
	Topic     string // имя топика
	Partition int32  // раздел
	Offset    int64  // смещение
	Timestamp time.Time
	Headers   map[string][]byte
}

// Subscriber: поток сообщений одного топика.
//
// Messages закрывается, когда поток больше не может выдавать сообщения
// (Close или потеря всех разделов). Errors не закрывается до Close.
type Subscriber interface {
	Messages() <-chan *Message
	Errors() <-chan error
	Close() error
}

// Producer публикует сообщения в Kafka.
type Producer interface {
	// Publish доставляет сообщение согласно политике RequiredAcks;
	// возможен внутренний retry согласно стратегии back-off.
	Publish(ctx context.Context, topic string, key, value []byte, headers ...Header) error
	// Ping проверяет достижимость кластера (обновление метаданных).
	Ping(ctx context.Context) error
	Close() error
}
