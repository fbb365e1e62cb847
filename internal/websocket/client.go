package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/propagation"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// 写超时时间
	writeWait = 10 * time.Second

	// 读超时时间
	pongWait = 60 * time.Second

	// ping 周期 (必须小于 pongWait)
	pingPeriod = (pongWait * 9) / 10

	// 客户端只发控制帧
	maxMessageSize = 4 * 1024

	sendBuffer = 256
)

// Client 订阅一个预订变更的 WebSocket 客户端
type Client struct {
	// ID 客户端 ID
	ID string

	// UserID 用户 ID
	UserID string

	// BookingID 订阅的预订
	BookingID string

	// Hub Hub 实例
	Hub *Hub

	// Conn WebSocket 连接
	Conn *websocket.Conn

	// Send 发送消息的 channel
	Send chan []byte

	replica *propagation.Replica
	sub     *propagation.Subscription
	logger  logrus.FieldLogger

	mu     sync.Mutex
	closed bool
}

// NewClient 创建新的客户端
func NewClient(id, userID, bookingID string, hub *Hub, logger logrus.FieldLogger) *Client {
	return &Client{
		ID:        id,
		UserID:    userID,
		BookingID: bookingID,
		Hub:       hub,
		Send:      make(chan []byte, sendBuffer),
		replica:   propagation.NewReplica(),
		logger:    logger,
	}
}

// Deliver 订阅回调：重复或过期的事件不转发，发送队列满时断开慢客户端
func (c *Client) Deliver(evt propagation.ChangeEvent) {
	if !c.replica.Apply(evt) {
		return
	}
	msg, err := json.Marshal(evt)
	if err != nil {
		c.logger.WithError(err).WithField("event_id", evt.ID).Warn("failed to encode change event")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- msg:
	default:
		c.logger.WithFields(logrus.Fields{
			"client_id":  c.ID,
			"booking_id": c.BookingID,
		}).Warn("websocket send buffer full, dropping client")
		go c.Hub.unregister(c)
	}
}

// close 取消订阅并关闭发送队列，只由 Hub 调用
func (c *Client) close() {
	if c.sub != nil {
		c.sub.Unsubscribe()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// ReadPump 从 WebSocket 连接读取消息，只用于检测断开
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).WithField("client_id", c.ID).Debug("websocket closed unexpectedly")
			}
			break
		}
	}
}

// WritePump 向 WebSocket 连接写入消息，每个事件一帧
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了 channel
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
