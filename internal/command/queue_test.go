package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

func TestQueuePollNeverBlocks(t *testing.T) {
	q := NewQueue(2, nil)

	_, ok := q.Poll()
	assert.False(t, ok)

	assert.True(t, q.Push(domain.PauseCommand{}))
	assert.True(t, q.Push(domain.ResumeCommand{}))
	assert.False(t, q.Push(domain.StopCommand{}), "full queue drops")
	assert.Equal(t, 2, q.Len())

	cmd, ok := q.Poll()
	require.True(t, ok)
	assert.Equal(t, domain.CommandPause, cmd.Kind())
	cmd, ok = q.Poll()
	require.True(t, ok)
	assert.Equal(t, domain.CommandResume, cmd.Kind())
}

func TestQueueReadyStaysArmedWhileCommandsRemain(t *testing.T) {
	q := NewQueue(4, nil)
	var _ Notifier = q

	select {
	case <-q.Ready():
		t.Fatal("empty queue signalled ready")
	default:
	}

	require.True(t, q.Push(domain.PauseCommand{}))
	require.True(t, q.Push(domain.StopCommand{}))
	<-q.Ready()

	_, ok := q.Poll()
	require.True(t, ok)
	select {
	case <-q.Ready():
	default:
		t.Fatal("ready not re-armed with a command left")
	}

	_, ok = q.Poll()
	require.True(t, ok)
	select {
	case <-q.Ready():
		t.Fatal("ready re-armed on an empty queue")
	default:
	}
}

func TestQueuePushRaw(t *testing.T) {
	q := NewQueue(4, nil)

	require.NoError(t, q.PushRaw([]byte(`{"name":"cancel_order","args":["abc"]}`)))
	assert.ErrorIs(t, q.PushRaw([]byte(`{"name":"self_destruct"}`)), domain.ErrUnknownCommand)
	assert.Error(t, q.PushRaw([]byte(`{`)))

	cmd, ok := q.Poll()
	require.True(t, ok)
	assert.Equal(t, domain.CancelOrderCommand{OrderID: "abc"}, cmd)
	_, ok = q.Poll()
	assert.False(t, ok)
}

type chanBus struct{ ch chan []byte }

func (b *chanBus) Publish(context.Context, string, []byte) error { return nil }
func (b *chanBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return b.ch, nil
}
func (b *chanBus) StreamAppend(context.Context, string, []byte) error { return nil }
func (b *chanBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func TestListen(t *testing.T) {
	bus := &chanBus{ch: make(chan []byte, 3)}
	bus.ch <- []byte(`{"name":"pause","kwargs":{"reason":"news"}}`)
	bus.ch <- []byte(`{"name":"bogus"}`)
	bus.ch <- []byte(`{"name":"stop"}`)
	close(bus.ch)

	q := NewQueue(8, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, Listen(ctx, bus, "", q))

	cmd, ok := q.Poll()
	require.True(t, ok)
	assert.Equal(t, domain.PauseCommand{Reason: "news"}, cmd)
	cmd, ok = q.Poll()
	require.True(t, ok)
	assert.Equal(t, domain.StopCommand{}, cmd)
	_, ok = q.Poll()
	assert.False(t, ok)
}
