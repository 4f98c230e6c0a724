package realtime

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func replies(t *testing.T, conn *Conn) []serverMessage {
	t.Helper()

	var msgs []serverMessage

	for _, payload := range drain(t, conn) {
		var msg serverMessage
		require.NoError(t, sonic.Unmarshal(payload, &msg))

		msgs = append(msgs, msg)
	}

	return msgs
}

func TestHandleMessage(t *testing.T) {
	t.Parallel()

	t.Run("ping is answered with pong", func(t *testing.T) {
		t.Parallel()

		registry := newTestRegistry(t)
		conn := registry.NewConn(nil)

		conn.handleMessage([]byte(`{"type":"ping"}`))

		msgs := replies(t, conn)
		require.Len(t, msgs, 1)
		assert.Equal(t, msgPong, msgs[0].Type)
	})

	t.Run("subscribe acks and joins the channel", func(t *testing.T) {
		t.Parallel()

		registry := newTestRegistry(t)
		conn := registry.NewConn(nil)
		channel := PollChannel(uuid.New())

		conn.handleMessage([]byte(`{"type":"subscribe","channel":"` + channel + `"}`))

		msgs := replies(t, conn)
		require.Len(t, msgs, 1)
		assert.Equal(t, msgSubscribed, msgs[0].Type)
		assert.Equal(t, channel, msgs[0].Channel)
		assert.Len(t, registry.SubscribersOf(channel), 1)
	})

	t.Run("unsubscribe acks and leaves the channel", func(t *testing.T) {
		t.Parallel()

		registry := newTestRegistry(t)
		conn := registry.NewConn(nil)
		channel := PollChannel(uuid.New())
		registry.Subscribe(conn, channel)

		conn.handleMessage([]byte(`{"type":"unsubscribe","channel":"` + channel + `"}`))

		msgs := replies(t, conn)
		require.Len(t, msgs, 1)
		assert.Equal(t, msgUnsubscribed, msgs[0].Type)
		assert.Equal(t, channel, msgs[0].Channel)
		assert.Empty(t, registry.SubscribersOf(channel))
	})

	t.Run("invalid JSON gets a structured error", func(t *testing.T) {
		t.Parallel()

		registry := newTestRegistry(t)
		conn := registry.NewConn(nil)

		conn.handleMessage([]byte(`{"type":`))

		msgs := replies(t, conn)
		require.Len(t, msgs, 1)
		assert.Equal(t, msgError, msgs[0].Type)
		assert.Equal(t, "invalid JSON", msgs[0].Message)
	})

	t.Run("unknown channel is rejected without a subscription", func(t *testing.T) {
		t.Parallel()

		registry := newTestRegistry(t)
		conn := registry.NewConn(nil)

		conn.handleMessage([]byte(`{"type":"subscribe","channel":"topic:news"}`))

		msgs := replies(t, conn)
		require.Len(t, msgs, 1)
		assert.Equal(t, msgError, msgs[0].Type)
		assert.Equal(t, "topic:news", msgs[0].Channel)
		assert.Empty(t, registry.Stats().Channels)
	})

	t.Run("unknown message type gets a structured error", func(t *testing.T) {
		t.Parallel()

		registry := newTestRegistry(t)
		conn := registry.NewConn(nil)

		conn.handleMessage([]byte(`{"type":"shout"}`))

		msgs := replies(t, conn)
		require.Len(t, msgs, 1)
		assert.Equal(t, msgError, msgs[0].Type)
		assert.Equal(t, "unknown message type", msgs[0].Message)
	})

	t.Run("protocol errors never terminate the connection", func(t *testing.T) {
		t.Parallel()

		registry := newTestRegistry(t)
		conn := registry.NewConn(nil)
		channel := PollChannel(uuid.New())

		conn.handleMessage([]byte(`not json at all`))
		conn.handleMessage([]byte(`{"type":"subscribe","channel":"` + channel + `"}`))

		msgs := replies(t, conn)
		require.Len(t, msgs, 2)
		assert.Equal(t, msgError, msgs[0].Type)
		assert.Equal(t, msgSubscribed, msgs[1].Type)
		assert.Equal(t, 1, registry.Stats().TotalConnections)
	})
}
