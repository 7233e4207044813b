package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"santa-go/internal/models"
)

// 键方案沿用客户端时代的布局：群组、邀请各占一键，
// 另外按用户维护一份其所属群组ID的索引。
const (
	groupKeyPrefix      = "ss:group:"
	inviteKeyPrefix     = "ss:invite:"
	userGroupsKeyPrefix = "ss:userGroups:"
)

// ErrCorruptRecord 表示存储中的记录无法解析或未通过校验。
// 坏记录在这里被拦下，不会以字段缺失的形式传播到服务层。
var ErrCorruptRecord = errors.New("存储记录已损坏")

// GroupStore 定义了群组与邀请记录的持久化接口。
type GroupStore interface {
	GetGroup(ctx context.Context, groupID string) (*models.SantaGroup, error)
	SaveGroup(ctx context.Context, group *models.SantaGroup) error
	DeleteGroup(ctx context.Context, groupID string) error

	GetInvite(ctx context.Context, inviteID string) (*models.Invite, error)
	SaveInvite(ctx context.Context, invite *models.Invite) error

	GetUserGroupIDs(ctx context.Context, userID string) ([]string, error)
	AddUserGroup(ctx context.Context, userID, groupID string) error
}

// kvGroupStore 把记录序列化为 JSON 后整体写入底层 KVStore。
type kvGroupStore struct {
	kv KVStore
}

// NewKVGroupStore 创建一个基于 KVStore 的 GroupStore。
func NewKVGroupStore(kv KVStore) GroupStore {
	return &kvGroupStore{kv: kv}
}

// GetGroup 读取并校验群组记录。键不存在返回 ErrKeyNotFound。
func (s *kvGroupStore) GetGroup(ctx context.Context, groupID string) (*models.SantaGroup, error) {
	raw, err := s.kv.Get(ctx, groupKeyPrefix+groupID)
	if err != nil {
		return nil, err
	}
	var group models.SantaGroup
	if err := json.Unmarshal(raw, &group); err != nil {
		return nil, fmt.Errorf("%w: 群组 %s: %v", ErrCorruptRecord, groupID, err)
	}
	if err := group.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return &group, nil
}

// SaveGroup 写入群组记录。写入前同样校验，避免把坏状态固化到存储。
func (s *kvGroupStore) SaveGroup(ctx context.Context, group *models.SantaGroup) error {
	if err := group.Validate(); err != nil {
		return fmt.Errorf("拒绝写入无效的群组记录: %w", err)
	}
	raw, err := json.Marshal(group)
	if err != nil {
		return fmt.Errorf("序列化群组 %s 失败: %w", group.ID, err)
	}
	return s.kv.Put(ctx, groupKeyPrefix+group.ID, raw)
}

// DeleteGroup 删除群组记录。
func (s *kvGroupStore) DeleteGroup(ctx context.Context, groupID string) error {
	return s.kv.Delete(ctx, groupKeyPrefix+groupID)
}

// GetInvite 读取并校验邀请记录。
func (s *kvGroupStore) GetInvite(ctx context.Context, inviteID string) (*models.Invite, error) {
	raw, err := s.kv.Get(ctx, inviteKeyPrefix+inviteID)
	if err != nil {
		return nil, err
	}
	var invite models.Invite
	if err := json.Unmarshal(raw, &invite); err != nil {
		return nil, fmt.Errorf("%w: 邀请 %s: %v", ErrCorruptRecord, inviteID, err)
	}
	if err := invite.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return &invite, nil
}

// SaveInvite 写入邀请记录。
func (s *kvGroupStore) SaveInvite(ctx context.Context, invite *models.Invite) error {
	if err := invite.Validate(); err != nil {
		return fmt.Errorf("拒绝写入无效的邀请记录: %w", err)
	}
	raw, err := json.Marshal(invite)
	if err != nil {
		return fmt.Errorf("序列化邀请 %s 失败: %w", invite.ID, err)
	}
	return s.kv.Put(ctx, inviteKeyPrefix+invite.ID, raw)
}

// GetUserGroupIDs 返回用户所属群组的ID列表，索引不存在视为空列表。
func (s *kvGroupStore) GetUserGroupIDs(ctx context.Context, userID string) ([]string, error) {
	raw, err := s.kv.Get(ctx, userGroupsKeyPrefix+userID)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("%w: 用户 %s 的群组索引: %v", ErrCorruptRecord, userID, err)
	}
	return ids, nil
}

// AddUserGroup 把群组ID追加到用户索引中，已存在则不重复追加。
func (s *kvGroupStore) AddUserGroup(ctx context.Context, userID, groupID string) error {
	ids, err := s.GetUserGroupIDs(ctx, userID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == groupID {
			return nil
		}
	}
	ids = append(ids, groupID)
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("序列化用户 %s 的群组索引失败: %w", userID, err)
	}
	return s.kv.Put(ctx, userGroupsKeyPrefix+userID, raw)
}
