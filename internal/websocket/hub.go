package websocket

import (
	"encoding/json"
	"log"
	"time"
)

// Notification 是推送给单个用户的通知消息，整体序列化为 JSON 下发。
type Notification struct {
	Type      string    `json:"type"` // 对应群组事件类型
	GroupID   string    `json:"groupId"`
	GroupName string    `json:"groupName"`
	Body      string    `json:"body"` // 展示用文案
	Timestamp time.Time `json:"timestamp"`
}

// delivery 是 hub 内部的投递指令：一条通知和它的目标用户。
type delivery struct {
	userID  uint
	payload []byte
}

// Hub 维护所有活跃的通知连接，按用户ID投递消息。
// 每个用户只保留一条连接，新连接会顶掉旧的。
type Hub struct {
	clients map[uint]*Client

	register   chan *Client
	unregister chan *Client
	deliveries chan delivery
}

// NewHub 创建一个新的 Hub。
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uint]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliveries: make(chan delivery, 256),
	}
}

// Notify 把通知投递给指定用户。非阻塞：投递通道满了就丢弃并记日志，
// 通知只是提示，不承诺送达，调用方（Kafka 消费循环）不能被推送阻塞。
func (h *Hub) Notify(userID uint, n *Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		log.Printf("序列化通知失败: %v", err)
		return
	}
	select {
	case h.deliveries <- delivery{userID: userID, payload: payload}:
	default:
		log.Printf("警告: 通知投递通道已满，丢弃发给用户 %d 的通知", userID)
	}
}

// Run 启动 hub 的事件循环。
func (h *Hub) Run() {
	log.Println("通知 Hub 事件循环已启动")
	for {
		select {
		case client := <-h.register:
			if existing, ok := h.clients[client.userID]; ok {
				log.Printf("用户 %d 已有连接，替换旧连接", client.userID)
				close(existing.send)
			}
			h.clients[client.userID] = client
			log.Printf("通知客户端已注册: 用户 %d", client.userID)

		case client := <-h.unregister:
			// 只注销仍然在册的那条连接，避免误关同一用户的新连接
			if stored, ok := h.clients[client.userID]; ok && stored == client {
				delete(h.clients, client.userID)
				close(client.send)
				log.Printf("通知客户端已注销: 用户 %d", client.userID)
			}

		case d := <-h.deliveries:
			client, ok := h.clients[d.userID]
			if !ok {
				continue // 用户不在线，通知直接丢弃
			}
			select {
			case client.send <- d.payload:
			default:
				// 发送缓冲满了视为连接已死
				log.Printf("警告: 用户 %d 的发送通道已满，移除客户端", d.userID)
				close(client.send)
				delete(h.clients, d.userID)
			}
		}
	}
}
