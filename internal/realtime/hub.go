// Package realtime 通知的 websocket 推送
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"careerhub/internal/model"
	"careerhub/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// 推送消息类型
const (
	TypeNotification = "notification"
	TypeUnreadCount  = "unread_count"
	TypeError        = "error"
)

// 客户端控制消息类型
const (
	ControlMarkRead    = "mark_read"
	ControlMarkAllRead = "mark_all_read"
)

type NotificationMessage struct {
	Type         string              `json:"type"`
	Notification *model.Notification `json:"notification"`
}

type UnreadCountMessage struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

type ErrorMessage struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

// ControlMessage 客户端发来的消息
type ControlMessage struct {
	Type           string `json:"type"`
	NotificationID string `json:"notification_id,omitempty"`
}

// Controller 处理 mark_read / mark_all_read；实现方负责推送新的未读数
type Controller interface {
	MarkRead(ctx context.Context, userID, id uuid.UUID) (int64, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

// Hub 维护每个用户的在线连接；锁只保护连接表，写 socket 在各连接的 writer 中完成
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*client]struct{}

	controller Controller
	logger     *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]map[*client]struct{}),
		logger:  logger,
	}
}

// SetController 在通知服务创建后注入
func (h *Hub) SetController(c Controller) {
	h.controller = c
}

type client struct {
	hub    *Hub
	userID uuid.UUID
	conn   *websocket.Conn
	send   chan []byte

	// mu 保护 closed，send 关闭后不再写入
	mu     sync.Mutex
	closed bool
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	metrics.RealtimeConnections.Inc()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	set, ok := h.clients[c.userID]
	if ok {
		if _, present := set[c]; present {
			delete(set, c)
			metrics.RealtimeConnections.Dec()
		}
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()
	c.close()
}

// Connections 用户当前的连接数
func (h *Hub) Connections(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Send 序列化一次后投递到用户的所有连接；发送缓冲已满的连接会被断开
func (h *Hub) Send(userID uuid.UUID, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal realtime message", zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(data) {
			h.logger.Warn("Realtime client too slow, dropping connection", zap.String("user_id", userID.String()))
			h.unregister(c)
		}
	}
}

// enqueue 非阻塞写入；连接已关闭时直接丢弃，返回 false 表示缓冲已满
func (c *client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (h *Hub) PushNotification(userID uuid.UUID, n *model.Notification) {
	h.Send(userID, NotificationMessage{Type: TypeNotification, Notification: n})
}

func (h *Hub) PushUnreadCount(userID uuid.UUID, count int64) {
	h.Send(userID, UnreadCountMessage{Type: TypeUnreadCount, Count: count})
}

// Serve 接管已升级的连接，阻塞直到连接关闭
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, userID uuid.UUID, initialUnread int64) {
	c := &client{hub: h, userID: userID, conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(c)
	h.logger.Info("Realtime client connected", zap.String("user_id", userID.String()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump()
	}()

	if data, err := json.Marshal(UnreadCountMessage{Type: TypeUnreadCount, Count: initialUnread}); err == nil {
		c.enqueue(data)
	}

	c.readPump(ctx)
	h.unregister(c)
	<-done
	h.logger.Info("Realtime client disconnected", zap.String("user_id", userID.String()))
}

func (c *client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ControlMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("Realtime read error", zap.Error(err))
			}
			return
		}
		c.handleControl(ctx, msg)
	}
}

func (c *client) handleControl(ctx context.Context, msg ControlMessage) {
	h := c.hub
	if h.controller == nil {
		return
	}
	var err error
	switch msg.Type {
	case ControlMarkRead:
		id, perr := uuid.Parse(msg.NotificationID)
		if perr != nil {
			c.reply(ErrorMessage{Type: TypeError, Detail: "invalid notification_id"})
			return
		}
		_, err = h.controller.MarkRead(ctx, c.userID, id)
	case ControlMarkAllRead:
		_, err = h.controller.MarkAllRead(ctx, c.userID)
	default:
		c.reply(ErrorMessage{Type: TypeError, Detail: "unknown message type"})
		return
	}
	if err != nil {
		h.logger.Warn("Realtime control message failed",
			zap.String("user_id", c.userID.String()),
			zap.String("type", msg.Type),
			zap.Error(err))
		c.reply(ErrorMessage{Type: TypeError, Detail: "could not update notifications"})
	}
}

func (c *client) reply(msg any) {
	if data, err := json.Marshal(msg); err == nil {
		c.enqueue(data)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
