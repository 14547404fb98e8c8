package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
)

// Event 是 hub 订阅者收到的事件。
type Event struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

const subscriberBuffer = 16

// Hub 把事件分发给进程内订阅者（WebSocket、SSE 连接）。
// 订阅者处理过慢时丢弃事件，不阻塞其他订阅者。
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	nextID  uint64
	dropped atomic.Uint64
	closed  bool
}

// NewHub 创建空的 hub。
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]chan Event)}
}

func (h *Hub) Name() string { return "hub" }

// Subscribe 注册订阅者。订阅者离开时必须调用返回的 cancel，它会关闭通道。
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.nextID++
	id := h.nextID
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
}

// Subscribers 返回当前订阅者数量。
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped 返回因订阅者缓冲已满而跳过的投递次数。
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) Publish(_ context.Context, channel, event string, payload json.RawMessage) error {
	ev := Event{Channel: channel, Event: event, Data: payload}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Close 断开所有订阅者。
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
	h.closed = true
	return nil
}
