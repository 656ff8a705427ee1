package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mautops/turk-gin/internal/lifecycle"
	"github.com/sirupsen/logrus"
)

// message 带批次路由信息的广播消息
type message struct {
	batchID string
	payload []byte
}

// Hub 管理所有 WebSocket 连接, 按批次转发状态变更
type Hub struct {
	// 已注册的客户端
	clients map[*Client]bool

	// 待广播的消息
	broadcast chan message

	// 注册新客户端
	Register chan *Client

	// 注销客户端
	Unregister chan *Client

	logger logrus.FieldLogger

	// Run 退出后关闭
	done chan struct{}

	// 互斥锁，保护 clients map
	mu sync.RWMutex
}

// NewHub 创建新的 Hub
func NewHub(logger logrus.FieldLogger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Run 运行 Hub, ctx 结束时关闭所有客户端
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.Subscribed(msg.batchID) {
					continue
				}
				select {
				case client.Send <- msg.payload:
				default:
					// 消费过慢的客户端直接断开
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Publish 实现 lifecycle.Notifier, 队列已满时丢弃事件
func (h *Hub) Publish(event lifecycle.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).Warn("failed to encode event")
		return
	}
	select {
	case h.broadcast <- message{batchID: event.BatchID, payload: payload}:
	default:
		h.logger.WithFields(logrus.Fields{
			"entity": event.Entity,
			"id":     event.ID,
		}).Warn("event dropped, broadcast queue full")
	}
}

// unregister 注销客户端, Hub 已停止时直接返回
func (h *Hub) unregister(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

// register 注册客户端, Hub 已停止时返回 false
func (h *Hub) register(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

// HasClient 检查客户端是否存在
func (h *Hub) HasClient(clientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.ID == clientID {
			return true
		}
	}
	return false
}

// GetClientCount 获取客户端数量
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}
