package service

import (
	"context"
	"sync"

	"aiko-go/internal/model"
	"aiko-go/pkg/events"
	"aiko-go/pkg/log"

	"github.com/google/uuid"
)

const feedBufferSize = 64

// FeedHub 把完成的问答实时推送给管理端订阅者。慢订阅者会丢事件而不会阻塞回复流程。
type FeedHub struct {
	mu          sync.RWMutex
	subscribers map[string]feedSubscriber
}

type feedSubscriber struct {
	key model.ConversationKey // 为空表示订阅全部会话
	ch  chan events.ExchangeEvent
}

// NewFeedHub 创建一个新的 FeedHub。
func NewFeedHub() *FeedHub {
	return &FeedHub{subscribers: make(map[string]feedSubscriber)}
}

// Subscribe 注册一个订阅者，ctx 取消时自动注销并关闭通道。
func (h *FeedHub) Subscribe(ctx context.Context, key model.ConversationKey) (<-chan events.ExchangeEvent, string) {
	id := uuid.NewString()
	ch := make(chan events.ExchangeEvent, feedBufferSize)

	h.mu.Lock()
	h.subscribers[id] = feedSubscriber{key: key, ch: ch}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.Unsubscribe(id)
	}()
	return ch, id
}

// Unsubscribe 注销订阅者并关闭其通道，重复调用无副作用。
func (h *FeedHub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subscribers[id]
	if !ok {
		return
	}
	delete(h.subscribers, id)
	close(sub.ch)
}

// Subscribers 返回当前订阅者数量。
func (h *FeedHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// OnExchange 实现 ExchangeObserver。
func (h *FeedHub) OnExchange(_ context.Context, exchange *model.Exchange) error {
	ev := events.FromExchange(exchange)
	key := model.ConversationKey(exchange.ConversationKey)

	// 发送时持有读锁，保证不会向已关闭的通道写入
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, sub := range h.subscribers {
		if sub.key != "" && sub.key != key {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			log.Debugf("订阅者过慢，丢弃事件: sub=%s, exchange=%s", id, ev.ExchangeID)
		}
	}
	return nil
}

// Close 注销全部订阅者。
func (h *FeedHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subscribers {
		close(sub.ch)
		delete(h.subscribers, id)
	}
}
