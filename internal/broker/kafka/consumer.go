package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ErrSkip: handler просит закоммитить сообщение без обработки (битый payload).
var ErrSkip = errors.New("skip message")

// Handler получает ключ (номер отправления для shipment.scanned, email
// получателя для email.requested) и JSON-тело.
type Handler = func(key, value []byte) error

// Consumer читает один топик в consumer group: shipdesk-api читает сканы,
// shipdesk-mailer читает письма.
type Consumer struct {
	r     messageReader
	topic string
}

// NewConsumer. Новая группа начинает с начала топика: сканы, пришедшие до
// первого запуска, тоже попадают в историю.
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		StartOffset:       kafka.FirstOffset,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return &Consumer{r: kafka.NewReader(cfg), topic: topic}
}

func newConsumerWithReader(r messageReader, topic string) *Consumer {
	return &Consumer{r: r, topic: topic}
}

func (c *Consumer) Topic() string { return c.topic }

func (c *Consumer) Close() error {
	return c.r.Close()
}

// Consume обрабатывает сообщения по одному до первой ошибки.
//
// Коммит только после успеха или ErrSkip. Любая другая ошибка останавливает
// чтение без коммита: после перезапуска группа перечитает это сообщение.
func (c *Consumer) Consume(ctx context.Context, handle Handler) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrapf(err, "fetch %s", c.topic)
		}
		if err := handle(msg.Key, msg.Value); err != nil {
			if !errors.Is(err, ErrSkip) {
				return errors.Wrapf(err, "handle %s key=%s offset=%d", c.topic, msg.Key, msg.Offset)
			}
			slog.Warn("kafka message skipped",
				"topic", c.topic, "key", string(msg.Key), "partition", msg.Partition, "offset", msg.Offset, "reason", err.Error())
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrapf(err, "commit %s offset=%d", c.topic, msg.Offset)
		}
	}
}
