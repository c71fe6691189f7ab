package box

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxdb/pkg/boxerr"
)

func TestNotifier_PublishDeliversToAllSubscribers(t *testing.T) {
	n := newNotifier(nil, "test")
	h1, err := n.watch(nil)
	require.NoError(t, err)
	h2, err := n.watch(nil)
	require.NoError(t, err)
	defer h1.Close()
	defer h2.Close()

	n.publish(ChangeEvent{Key: "a", Value: 1})

	e1 := <-h1.Events()
	e2 := <-h2.Events()
	assert.Equal(t, "a", e1.Key)
	assert.Equal(t, "a", e2.Key)
}

func TestNotifier_KeyFilterOnlyDeliversMatchingKey(t *testing.T) {
	n := newNotifier(nil, "test")
	h, err := n.watch("a")
	require.NoError(t, err)
	defer h.Close()

	n.publish(ChangeEvent{Key: "b", Value: 1})
	n.publish(ChangeEvent{Key: "a", Value: 2})

	event := <-h.Events()
	assert.Equal(t, "a", event.Key)
	assert.Equal(t, 2, event.Value)

	select {
	case <-h.Events():
		t.Fatal("unexpected second event")
	default:
	}
}

func TestNotifier_SlowSubscriberDropsRatherThanBlocks(t *testing.T) {
	n := newNotifier(nil, "test")
	h, err := n.watch(nil)
	require.NoError(t, err)
	defer h.Close()

	for i := 0; i < 1000; i++ {
		n.publish(ChangeEvent{Key: i})
	}
	// No deadlock/hang means the writer never blocked on a full channel.
}

func TestNotifier_CloseStopsDeliveryAndClosesChannels(t *testing.T) {
	n := newNotifier(nil, "test")
	h, err := n.watch(nil)
	require.NoError(t, err)

	n.close()

	_, ok := <-h.Events()
	assert.False(t, ok)

	// publish after close must not panic.
	n.publish(ChangeEvent{Key: "x"})
}

func TestNotifier_HandleCloseUnregisters(t *testing.T) {
	n := newNotifier(nil, "test")
	h, err := n.watch(nil)
	require.NoError(t, err)
	h.Close()

	n.publish(ChangeEvent{Key: "a"})
	assert.Empty(t, n.subs)
}

func TestNotifier_WatchAfterCloseFails(t *testing.T) {
	n := newNotifier(nil, "test")
	n.close()

	h, err := n.watch(nil)
	assert.Nil(t, h)
	assert.ErrorIs(t, err, boxerr.ErrBoxClosed)
}
