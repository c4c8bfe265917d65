package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type Event string

const (
	EventInsert Event = "insert"
	EventUpdate Event = "update"
	EventDelete Event = "delete"
	EventAll    Event = "*"
)

const (
	TableShipments     = "shipments"
	TableNotifications = "notifications"
	TableTickets       = "support_tickets"
	TableReplies       = "ticket_replies"
	TableChatSessions  = "chat_sessions"
	TableChatMessages  = "chat_messages"
)

// Change: изменённая строка. Key — значение, по которому подписчики фильтруют
// (номер отправления, user_id получателя, id тикета).
type Change struct {
	Table string          `json:"table"`
	Event Event           `json:"event"`
	Key   string          `json:"key"`
	Row   json.RawMessage `json:"row,omitempty"`
	At    time.Time       `json:"at"`
}

func NewChange(table string, ev Event, key string, row any) (Change, error) {
	b, err := json.Marshal(row)
	if err != nil {
		return Change{}, errors.Wrap(err, "encode change row")
	}
	return Change{Table: table, Event: ev, Key: key, Row: b, At: time.Now().UTC()}, nil
}

// Feed: лента изменений поверх Redis pub/sub, один канал на таблицу.
type Feed struct {
	c      *redis.Client
	prefix string
	buf    int
}

func NewFeed(c *redis.Client, prefix string) *Feed {
	if prefix == "" {
		prefix = "shipdesk:rt:"
	}
	return &Feed{c: c, prefix: prefix, buf: 64}
}

func (f *Feed) channel(table string) string { return f.prefix + table }

func (f *Feed) Publish(ctx context.Context, ch Change) error {
	if ch.At.IsZero() {
		ch.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ch)
	if err != nil {
		return errors.Wrap(err, "encode change")
	}
	if err := f.c.Publish(ctx, f.channel(ch.Table), payload).Err(); err != nil {
		return errors.Wrap(err, "redis publish")
	}
	return nil
}

// Subscribe возвращает подписку на изменения таблицы. key == "" значит все строки.
// Без events подписка получает всё. Подписка живёт до Close или отмены ctx.
func (f *Feed) Subscribe(ctx context.Context, table, key string, events ...Event) (*Subscription, error) {
	ps := f.c.Subscribe(ctx, f.channel(table))
	// ждём подтверждения, иначе ранние Publish теряются
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, errors.Wrap(err, "redis subscribe")
	}

	s := &Subscription{
		ps:     ps,
		out:    make(chan Change, f.buf),
		done:   make(chan struct{}),
		key:    key,
		events: events,
	}
	go s.loop(ctx)
	return s, nil
}

type Subscription struct {
	ps     *redis.PubSub
	out    chan Change
	done   chan struct{}
	once   sync.Once
	key    string
	events []Event
}

// C закрывается после Close или отмены контекста подписки.
func (s *Subscription) C() <-chan Change { return s.out }

func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

func (s *Subscription) matches(ch Change) bool {
	if s.key != "" && ch.Key != s.key {
		return false
	}
	if len(s.events) == 0 {
		return true
	}
	for _, e := range s.events {
		if e == EventAll || e == ch.Event {
			return true
		}
	}
	return false
}

func (s *Subscription) loop(ctx context.Context) {
	defer close(s.out)
	msgs := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = s.Close()
			return
		case <-s.done:
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			var ch Change
			if err := json.Unmarshal([]byte(m.Payload), &ch); err != nil {
				slog.Warn("realtime: bad payload", "channel", m.Channel, "error", err)
				continue
			}
			if !s.matches(ch) {
				continue
			}
			select {
			case s.out <- ch:
			case <-s.done:
				return
			case <-ctx.Done():
				_ = s.Close()
				return
			}
		}
	}
}
