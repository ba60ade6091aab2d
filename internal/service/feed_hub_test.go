package service

import (
	"context"
	"testing"
	"time"

	"aiko-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedHub_FilterByKey(t *testing.T) {
	hub := NewFeedHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	all, _ := hub.Subscribe(ctx, "")
	onlyA, _ := hub.Subscribe(ctx, "a")

	require.NoError(t, hub.OnExchange(ctx, &model.Exchange{ExchangeID: "1", ConversationKey: "a"}))
	require.NoError(t, hub.OnExchange(ctx, &model.Exchange{ExchangeID: "2", ConversationKey: "b"}))

	assert.Equal(t, "1", (<-all).ExchangeID)
	assert.Equal(t, "2", (<-all).ExchangeID)
	assert.Equal(t, "1", (<-onlyA).ExchangeID)
	select {
	case ev := <-onlyA:
		t.Fatalf("unexpected event %s", ev.ExchangeID)
	default:
	}
}

func TestFeedHub_SlowSubscriberDrops(t *testing.T) {
	hub := NewFeedHub()
	ch, _ := hub.Subscribe(context.Background(), "")

	for i := 0; i < feedBufferSize+10; i++ {
		require.NoError(t, hub.OnExchange(context.Background(), &model.Exchange{ConversationKey: "a"}))
	}
	assert.Len(t, ch, feedBufferSize)
	hub.Close()
	assert.Zero(t, hub.Subscribers())
}

func TestFeedHub_UnsubscribeOnCancel(t *testing.T) {
	hub := NewFeedHub()
	ctx, cancel := context.WithCancel(context.Background())
	ch, id := hub.Subscribe(ctx, "")
	assert.Equal(t, 1, hub.Subscribers())

	cancel()
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, time.Second, time.Millisecond)
	_, open := <-ch
	assert.False(t, open)

	hub.Unsubscribe(id)
}
