package websocket

import (
	"context"
	"sync"
)

// Hub 按预订索引在线的 WebSocket 客户端。
// 注册和注销只在 Run 的 goroutine 中处理，计数方法可并发调用。
type Hub struct {
	Register   chan *Client
	Unregister chan *Client

	mu        sync.RWMutex
	byBooking map[string]map[*Client]struct{}
	total     int

	done chan struct{}
}

// NewHub 创建 Hub，需要调用 Run 才会处理注册
func NewHub() *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		byBooking:  make(map[string]map[*Client]struct{}),
		done:       make(chan struct{}),
	}
}

// Run 处理注册和注销，ctx 结束时关闭全部连接
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.Register:
			h.add(c)
		case c := <-h.Unregister:
			if h.remove(c) {
				c.close()
			}
		case <-ctx.Done():
			h.mu.Lock()
			for id, set := range h.byBooking {
				for c := range set {
					c.close()
				}
				delete(h.byBooking, id)
			}
			h.total = 0
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.byBooking[c.BookingID]
	if !ok {
		set = make(map[*Client]struct{})
		h.byBooking[c.BookingID] = set
	}
	if _, dup := set[c]; !dup {
		set[c] = struct{}{}
		h.total++
	}
}

func (h *Hub) remove(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.byBooking[c.BookingID]
	if _, ok := set[c]; !ok {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.byBooking, c.BookingID)
	}
	h.total--
	return true
}

// unregister 在 Hub 已停止时直接返回
func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// GetClientCount 在线客户端总数
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// BookingClientCount 订阅某个预订的客户端数
func (h *Hub) BookingClientCount(bookingID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byBooking[bookingID])
}
