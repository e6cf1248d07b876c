package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/robolearn/learning-backend/internal/service"
	"github.com/robolearn/learning-backend/internal/ws"
)

// WSHandler устанавливает WebSocket соединения для push-уведомлений
// о прогрессе (badge_earned, level_up, course_completed).
type WSHandler struct {
	hub      *ws.Hub
	tokens   *service.TokenManager
	upgrader websocket.Upgrader
}

// NewWSHandler создаёт хэндлер. Origin проверяется по тому же списку,
// что и CORS: браузер не шлёт кастомные заголовки при upgrade.
func NewWSHandler(hub *ws.Hub, tokens *service.TokenManager, allowedOrigins []string) *WSHandler {
	originSet := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		originSet[origin] = struct{}{}
	}

	return &WSHandler{
		hub:    hub,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					// Не-браузерные клиенты (мобильные, тесты)
					return true
				}
				_, ok := originSet[origin]
				return ok
			},
		},
	}
}

// Handle обслуживает GET /api/ws. Access-токен принимается либо
// в query-параметре token (браузерный WebSocket API не умеет
// заголовки), либо в Authorization: Bearer.
func (h *WSHandler) Handle(c *gin.Context) {
	rawToken := c.Query("token")
	if rawToken == "" {
		header := c.GetHeader("Authorization")
		rawToken, _ = strings.CutPrefix(header, "Bearer ")
	}
	if rawToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "access токен обязателен"})
		return
	}

	userID, _, err := h.tokens.ParseAccess(rawToken)
	if err != nil || userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "невалидный access токен"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade сам пишет ответ при ошибке рукопожатия
		return
	}

	client := ws.NewClient(conn, h.hub, userID)
	h.hub.Register(client)

	client.Run(c.Request.Context())
}
