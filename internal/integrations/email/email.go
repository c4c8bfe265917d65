package email

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/ShipDesk/internal/broker/messages"
)

// ErrPermanent: провайдер отверг письмо окончательно, повторять бессмысленно.
var ErrPermanent = errors.New("email rejected")

type Message struct {
	To       string
	Subject  string
	Text     string
	HTML     string
	Template string
}

// Domain: домен получателя, ключ для rate limit.
func (m Message) Domain() string {
	i := strings.LastIndexByte(m.To, '@')
	if i < 0 {
		return ""
	}
	return strings.ToLower(m.To[i+1:])
}

type Sender interface {
	Send(ctx context.Context, m Message) error
}

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// KafkaSender отдаёт письмо в отдельный процесс shipdesk-mailer через Kafka.
type KafkaSender struct {
	pub   Publisher
	topic string
}

func NewKafkaSender(pub Publisher, topic string) *KafkaSender {
	if topic == "" {
		topic = messages.TopicEmailRequested
	}
	return &KafkaSender{pub: pub, topic: topic}
}

func (k *KafkaSender) Send(ctx context.Context, m Message) error {
	b, err := json.Marshal(ToRequested(m, time.Now().UTC()))
	if err != nil {
		return errors.Wrap(err, "encode email request")
	}
	return k.pub.Publish(ctx, k.topic, []byte(strings.ToLower(m.To)), b)
}

func ToRequested(m Message, at time.Time) messages.EmailRequested {
	return messages.EmailRequested{
		To:          m.To,
		Subject:     m.Subject,
		Text:        m.Text,
		HTML:        m.HTML,
		Template:    m.Template,
		RequestedAt: at,
	}
}

func FromRequested(r messages.EmailRequested) Message {
	return Message{To: r.To, Subject: r.Subject, Text: r.Text, HTML: r.HTML, Template: r.Template}
}
