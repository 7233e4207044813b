package models

import (
	"fmt"
	"time"
)

// InviteStatus 表示邀请令牌的状态。过期通过 ExpiresAt 判断，不单独设状态。
type InviteStatus string

const (
	InviteActive  InviteStatus = "active"
	InviteRevoked InviteStatus = "revoked"
)

// InviteMetadata 是邀请落地页展示用的快照信息，不参与任何校验逻辑。
type InviteMetadata struct {
	GroupName   string `json:"groupName"`
	CreatorName string `json:"creatorName"`
}

// Invite 是可通过链接分享的群组邀请令牌，以 JSON 形式整体写入 KV 存储。
type Invite struct {
	ID          string         `json:"id"`
	GroupID     string         `json:"groupId"`
	CreatedBy   string         `json:"createdBy"`
	CreatedAt   time.Time      `json:"createdAt"`
	ExpiresAt   time.Time      `json:"expiresAt"`
	Status      InviteStatus   `json:"status"`
	MaxUses     int            `json:"maxUses"`
	CurrentUses int            `json:"currentUses"`
	Metadata    InviteMetadata `json:"metadata"`
}

// Expired 判断邀请在给定时刻是否已过期。
func (i *Invite) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// Exhausted 判断使用次数是否已达上限。MaxUses <= 0 视为不限次数。
func (i *Invite) Exhausted() bool {
	return i.MaxUses > 0 && i.CurrentUses >= i.MaxUses
}

// Validate 在反序列化边界校验邀请记录。
func (i *Invite) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("邀请记录缺少 id")
	}
	if i.GroupID == "" {
		return fmt.Errorf("邀请 %s 缺少 groupId", i.ID)
	}
	switch i.Status {
	case InviteActive, InviteRevoked:
	default:
		return fmt.Errorf("邀请 %s 的状态 %q 无效", i.ID, i.Status)
	}
	if i.CurrentUses < 0 {
		return fmt.Errorf("邀请 %s 的使用次数为负", i.ID)
	}
	return nil
}
