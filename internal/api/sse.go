package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/propagation"
	"github.com/AbuAli85/business-services-hub-sub014/internal/service"
	"github.com/gin-gonic/gin"
)

const sseBuffer = 256

// SSEHandler GET /sse/bookings/:id，推送预订的变更事件
// 每个连接持有自己的 Replica，重复或过期的事件不推送；发送队列溢出时结束流，客户端重连后用 /events 补齐
func SSEHandler(subs service.SubscriptionService, heartbeat time.Duration) gin.HandlerFunc {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}

	return func(c *gin.Context) {
		caller, ok := requireCaller(c)
		if !ok {
			return
		}
		bookingID, ok := pathID(c, "id")
		if !ok {
			return
		}

		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			Error(c, http.StatusInternalServerError, "streaming not supported", "")
			return
		}

		replica := propagation.NewReplica()
		messages := make(chan propagation.ChangeEvent, sseBuffer)
		overflow := make(chan struct{})
		var overflowOnce sync.Once

		sub, err := subs.Subscribe(c.Request.Context(), caller, bookingID, func(evt propagation.ChangeEvent) {
			if !replica.Apply(evt) {
				return
			}
			select {
			case messages <- evt:
			default:
				overflowOnce.Do(func() { close(overflow) })
			}
		})
		if err != nil {
			HandleError(c, err, nil)
			return
		}
		defer sub.Unsubscribe()

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no") // 禁用 Nginx 缓冲
		c.Status(http.StatusOK)

		hello, _ := json.Marshal(gin.H{"bookingId": bookingID, "userId": caller.UserID})
		if err := sendSSEMessage(c.Writer, "connected", "", hello); err != nil {
			return
		}
		flusher.Flush()

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-c.Request.Context().Done():
				return
			case <-overflow:
				_ = sendSSEMessage(c.Writer, "overflow", "", []byte(`{}`))
				flusher.Flush()
				return
			case <-ticker.C:
				// 注释行作为心跳，浏览器 EventSource 会忽略
				if _, err := io.WriteString(c.Writer, ": ping\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case evt := <-messages:
				data, err := json.Marshal(evt)
				if err != nil {
					continue
				}
				if err := sendSSEMessage(c.Writer, "change", evt.ID, data); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

// sendSSEMessage 写一条 SSE 消息
func sendSSEMessage(w io.Writer, event, id string, data []byte) error {
	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
