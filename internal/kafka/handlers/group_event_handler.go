package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	confluentKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"

	appkafka "santa-go/internal/kafka"
	"santa-go/internal/websocket"
)

// GroupEventHandler 消费群组生命周期事件并转成在线通知推送。
// 事件体不携带配对信息，这里推送的也只是"发生了什么"，
// 各人的送礼对象仍要走 API 查询。
type GroupEventHandler struct {
	hub *websocket.Hub
}

// NewGroupEventHandler 创建一个新的 GroupEventHandler 实例。
func NewGroupEventHandler(hub *websocket.Hub) *GroupEventHandler {
	return &GroupEventHandler{hub: hub}
}

// HandleMessage 处理一条来自群组事件 topic 的 Kafka 消息。
// 返回 error 会阻止 offset 提交，所以格式错误的消息只记日志后吞掉，
// 避免坏消息卡死整个分区。
func (h *GroupEventHandler) HandleMessage(ctx context.Context, msg *confluentKafka.Message) error {
	var event appkafka.GroupEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Printf("无法反序列化群组事件 (offset %v): %v", msg.TopicPartition.Offset, err)
		return nil
	}

	notification := &websocket.Notification{
		Type:      event.Type,
		GroupID:   event.GroupID,
		GroupName: event.GroupName,
		Body:      notificationBody(&event),
		Timestamp: event.OccurredAt,
	}

	for _, pid := range event.ParticipantIDs {
		if pid == event.ActorID && event.Type == appkafka.EventParticipantJoined {
			continue // 不用通知刚加入的人"你加入了"
		}
		uid, err := strconv.ParseUint(pid, 10, 32)
		if err != nil {
			continue // 非本系统用户没有通知连接
		}
		h.hub.Notify(uint(uid), notification)
	}
	return nil
}

// notificationBody 生成通知的展示文案。
func notificationBody(event *appkafka.GroupEvent) string {
	switch event.Type {
	case appkafka.EventParticipantJoined:
		return fmt.Sprintf("有新成员加入了群组「%s」", event.GroupName)
	case appkafka.EventGroupDistributed:
		return fmt.Sprintf("群组「%s」已完成抽签，快去看看你要送给谁", event.GroupName)
	case appkafka.EventGroupCompleted:
		return fmt.Sprintf("群组「%s」的礼物交换已结束", event.GroupName)
	default:
		return fmt.Sprintf("群组「%s」有新动态", event.GroupName)
	}
}
