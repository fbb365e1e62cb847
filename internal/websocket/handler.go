package websocket

import (
	"net/http"

	"github.com/AbuAli85/business-services-hub-sub014/internal/apperror"
	"github.com/AbuAli85/business-services-hub-sub014/internal/auth"
	"github.com/AbuAli85/business-services-hub-sub014/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Handler 预订变更推送
type Handler struct {
	hub      *Hub
	subs     service.SubscriptionService
	upgrader gorillaWS.Upgrader
	logger   logrus.FieldLogger
}

// NewHandler 创建处理器；allowedOrigins 为空时不校验 Origin
func NewHandler(hub *Hub, subs service.SubscriptionService, allowedOrigins []string, logger logrus.FieldLogger) *Handler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &Handler{
		hub:    hub,
		subs:   subs,
		logger: logger,
		upgrader: gorillaWS.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 || origins["*"] {
					return true
				}
				return origins[r.Header.Get("Origin")]
			},
		},
	}
}

// ServeBooking GET /ws/bookings/:id
// 认证由 KeycloakAuthMiddleware 完成，浏览器可通过 ?token= 传递
func (h *Handler) ServeBooking(c *gin.Context) {
	caller, ok := auth.CallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	bookingID := c.Param("id")

	client := NewClient(uuid.New().String(), caller.UserID, bookingID, h.hub, h.logger)

	// 升级前订阅，拒绝时仍能返回普通 HTTP 错误
	sub, err := h.subs.Subscribe(c.Request.Context(), caller, bookingID, client.Deliver)
	if err != nil {
		c.JSON(apperror.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	client.sub = sub

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sub.Unsubscribe()
		h.logger.WithError(err).WithField("booking_id", bookingID).Debug("websocket upgrade failed")
		return
	}
	client.Conn = conn

	h.hub.Register <- client

	go client.ReadPump()
	go client.WritePump()
}
