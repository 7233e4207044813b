package models

import (
	"fmt"
	"time"
)

// GroupStatus 表示一个神秘圣诞老人群组的生命周期状态。
type GroupStatus string

const (
	GroupActive      GroupStatus = "active"      // 可加入，尚未分配
	GroupDistributed GroupStatus = "distributed" // 已分配，成员名单冻结
	GroupCompleted   GroupStatus = "completed"   // 交换结束（由发起人手动标记）
)

// SantaGroup 代表一个礼物交换群组。
// 与 User 不同，它不存放在关系数据库中，而是以 JSON 形式整体写入 KV 存储。
type SantaGroup struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	CreatedBy    string        `json:"createdBy"` // 发起人的用户ID
	CreatedAt    time.Time     `json:"createdAt"`
	Status       GroupStatus   `json:"status"`
	Participants []Participant `json:"participants"`
	Distribution *Distribution `json:"distribution,omitempty"`
}

// Participant 是群组内的一名参与者。
// ID 在群组内唯一（对应用户ID），Name 仅用于展示，可随时从身份源刷新。
type Participant struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Wishlist string    `json:"wishlist,omitempty"` // 自由文本的礼物愿望
	JoinedAt time.Time `json:"joinedAt"`
}

// Distribution 是一次分配的结果：每个参与者恰好对应一条 pair。
type Distribution struct {
	Pairs         []DistributionPair `json:"pairs"`
	DistributedAt time.Time          `json:"distributedAt"`
}

// DistributionPair 记录"谁送给谁"。SantaId 送礼，RecipientId 收礼。
type DistributionPair struct {
	SantaID     string `json:"santaId"`
	RecipientID string `json:"recipientId"`
}

// FindParticipant 按ID查找参与者，未找到返回 nil。
func (g *SantaGroup) FindParticipant(id string) *Participant {
	for i := range g.Participants {
		if g.Participants[i].ID == id {
			return &g.Participants[i]
		}
	}
	return nil
}

// RecipientFor 返回给定参与者要送礼的对象ID。未分配或不是送礼人时返回空串。
func (g *SantaGroup) RecipientFor(santaID string) string {
	if g.Distribution == nil {
		return ""
	}
	for _, p := range g.Distribution.Pairs {
		if p.SantaID == santaID {
			return p.RecipientID
		}
	}
	return ""
}

// Validate 在反序列化边界校验群组记录的完整性。
// KV 存储中的记录可能被外部写坏，先校验再使用，避免把坏数据继续传播。
func (g *SantaGroup) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("群组记录缺少 id")
	}
	if g.Name == "" {
		return fmt.Errorf("群组 %s 缺少名称", g.ID)
	}
	switch g.Status {
	case GroupActive, GroupDistributed, GroupCompleted:
	default:
		return fmt.Errorf("群组 %s 的状态 %q 无效", g.ID, g.Status)
	}

	seen := make(map[string]struct{}, len(g.Participants))
	for _, p := range g.Participants {
		if p.ID == "" {
			return fmt.Errorf("群组 %s 含有缺少 id 的参与者", g.ID)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("群组 %s 的参与者 %s 重复", g.ID, p.ID)
		}
		seen[p.ID] = struct{}{}
	}

	// 不变式：distribution 存在 当且仅当 状态为 distributed 或之后。
	if g.Status == GroupActive && g.Distribution != nil {
		return fmt.Errorf("群组 %s 状态为 active 却带有分配结果", g.ID)
	}
	if g.Status != GroupActive {
		if g.Distribution == nil {
			return fmt.Errorf("群组 %s 状态为 %s 却没有分配结果", g.ID, g.Status)
		}
		if len(g.Distribution.Pairs) != len(g.Participants) {
			return fmt.Errorf("群组 %s 的 pair 数 %d 与参与者数 %d 不一致",
				g.ID, len(g.Distribution.Pairs), len(g.Participants))
		}
	}
	return nil
}
