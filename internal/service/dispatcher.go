package service

import (
	"container/list"
	"context"
	"errors"
	"runtime/debug"
	"sync"

	"aiko-go/internal/model"
	"aiko-go/pkg/log"
)

// ErrDispatcherClosed 在关闭后继续提交任务时返回。
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Job 是一次需要按会话串行执行的处理。
type Job func(ctx context.Context)

// Dispatcher 保证同一会话的任务按提交顺序逐个执行，不同会话之间并发执行。
// 每个有任务的会话对应一个 worker goroutine，队列清空后退出。
type Dispatcher struct {
	ctx context.Context

	mu     sync.Mutex
	queues map[model.ConversationKey]*list.List
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher 创建一个 Dispatcher。任务拿到的 ctx 保留 ctx 的值但不随其取消，
// 已开始的问答会执行到完成或失败，停机时由 Close 等待。
func NewDispatcher(ctx context.Context) *Dispatcher {
	return &Dispatcher{
		ctx:    context.WithoutCancel(ctx),
		queues: make(map[model.ConversationKey]*list.List),
	}
}

// Submit 把任务追加到会话队列末尾，不阻塞。
func (d *Dispatcher) Submit(key model.ConversationKey, job Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}
	q, running := d.queues[key]
	if !running {
		q = list.New()
		d.queues[key] = q
	}
	q.PushBack(job)
	if !running {
		d.wg.Add(1)
		go d.run(key, q)
	}
	return nil
}

// Pending 返回某个会话中尚未开始执行的任务数。
func (d *Dispatcher) Pending(key model.ConversationKey) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if q, ok := d.queues[key]; ok {
		return q.Len()
	}
	return 0
}

// Close 拒绝新任务并等待已提交的任务全部执行完。
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) run(key model.ConversationKey, q *list.List) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		front := q.Front()
		if front == nil {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		q.Remove(front)
		d.mu.Unlock()

		d.execute(key, front.Value.(Job))
	}
}

// execute 单个任务 panic 时记录堆栈，不影响同一会话后续任务以及其他会话。
func (d *Dispatcher) execute(key model.ConversationKey, job Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("会话任务 panic", "key", key, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	job(d.ctx)
}
