package websocket

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/progenxxx/hris-sub006/internal/workflow"
)

// message 待广播的消息,kind 为空时发给所有客户端
type message struct {
	kind string
	data []byte
}

// Hub 管理所有 WebSocket 连接,按记录类型分组广播变更
type Hub struct {
	// 已注册的客户端
	clients map[*Client]bool

	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// 互斥锁,保护 clients map
	mu  sync.RWMutex
	log logrus.FieldLogger
}

// NewHub 创建新的 Hub
func NewHub(logger logrus.FieldLogger) *Hub {
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        logger,
	}
}

// Run 运行 Hub,直到 ctx 结束
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if msg.kind != "" && client.Kind != msg.kind {
					continue
				}
				select {
				case client.Send <- msg.data:
				default:
					// 慢客户端直接断开,重连后会重新拉取
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// join 注册客户端; Hub 已停止时返回 false
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// leave 注销客户端
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
	}
}

// Publish 广播记录变更; 队列满时丢弃并记录日志
func (h *Hub) Publish(event workflow.ChangeEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.WithError(err).Error("Failed to encode change event")
		return
	}
	select {
	case h.broadcast <- message{kind: event.Kind, data: data}:
	default:
		h.log.WithField("kind", event.Kind).Warn("Change event dropped, broadcast queue full")
	}
}

// GetClientCount 获取客户端数量,kind 为空时统计全部
func (h *Hub) GetClientCount(kind string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if kind == "" {
		return len(h.clients)
	}
	n := 0
	for client := range h.clients {
		if client.Kind == kind {
			n++
		}
	}
	return n
}
