package notifyserver

import (
	"log"
	"net/http"

	"santa-go/internal/auth"
	"santa-go/internal/config"
	"santa-go/internal/websocket"
)

// WebSocketHandler 负责通知连接的认证和升级。
type WebSocketHandler struct {
	hub       *websocket.Hub
	blacklist auth.TokenBlacklist
	cfg       config.Config
}

// NewWebSocketHandler 创建一个新的 WebSocketHandler 实例。
func NewWebSocketHandler(hub *websocket.Hub, blacklist auth.TokenBlacklist, cfg config.Config) *WebSocketHandler {
	return &WebSocketHandler{
		hub:       hub,
		blacklist: blacklist,
		cfg:       cfg,
	}
}

// ServeWS 处理通知连接请求。浏览器的 WebSocket API 不能带自定义头，
// 所以 token 走查询参数。
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		http.Error(w, "缺少认证 token", http.StatusUnauthorized)
		return
	}

	claims, err := auth.ValidateToken(r.Context(), tokenString, h.cfg.Auth.JWTSecretKey, h.blacklist)
	if err != nil {
		log.Printf("WebSocket 认证失败: %v", err)
		http.Error(w, "无效的认证 token", http.StatusUnauthorized)
		return
	}

	websocket.ServeWs(h.hub, claims.UserID, w, r, h.cfg.WebSocket)
}
