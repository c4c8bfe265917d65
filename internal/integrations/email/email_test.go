package email

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BearBump/ShipDesk/internal/broker/messages"
)

type pubFunc func(ctx context.Context, topic string, key, value []byte) error

func (f pubFunc) Publish(ctx context.Context, topic string, key, value []byte) error {
	return f(ctx, topic, key, value)
}

func TestMessage_Domain(t *testing.T) {
	require.Equal(t, "example.com", Message{To: "Bob@Example.COM"}.Domain())
	require.Equal(t, "", Message{To: "nobody"}.Domain())
}

func TestKafkaSender_Send(t *testing.T) {
	var gotTopic string
	var gotKey []byte
	var got messages.EmailRequested

	s := NewKafkaSender(pubFunc(func(ctx context.Context, topic string, key, value []byte) error {
		gotTopic, gotKey = topic, key
		return json.Unmarshal(value, &got)
	}), "")

	err := s.Send(context.Background(), Message{To: "A@x.com", Subject: "s", Text: "t", Template: "statusUpdate"})
	require.NoError(t, err)
	require.Equal(t, messages.TopicEmailRequested, gotTopic)
	require.Equal(t, "a@x.com", string(gotKey))
	require.Equal(t, "A@x.com", got.To)
	require.Equal(t, "statusUpdate", got.Template)
	require.False(t, got.RequestedAt.IsZero())

	back := FromRequested(got)
	require.Equal(t, "s", back.Subject)
}
