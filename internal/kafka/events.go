package kafka

import "time"

// 群组生命周期事件类型。
const (
	EventParticipantJoined = "participant_joined"
	EventGroupDistributed  = "group_distributed"
	EventGroupCompleted    = "group_completed"
)

// GroupEvent 是发布到群组事件 topic 的消息体。
// 刻意不携带任何配对信息：谁送给谁只能通过 API 按查看者过滤后获取。
type GroupEvent struct {
	Type           string    `json:"type"`
	GroupID        string    `json:"groupId"`
	GroupName      string    `json:"groupName"`
	ActorID        string    `json:"actorId,omitempty"` // 触发事件的参与者（如新加入者）
	ParticipantIDs []string  `json:"participantIds"`    // 需要收到通知的用户
	OccurredAt     time.Time `json:"occurredAt"`
}
