package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"santa-go/internal/config"
	"santa-go/internal/models"
	"santa-go/internal/storage"
)

// InviteService 定义了群组邀请令牌的签发、查询与兑换接口。
type InviteService interface {
	// CreateInvite 签发邀请并返回可分享的链接。
	CreateInvite(ctx context.Context, groupID string, caller *models.User) (*models.Invite, string, error)
	// GetInvite 供邀请落地页展示元信息，不做兑换。
	GetInvite(ctx context.Context, inviteID string) (*models.Invite, error)
	// RedeemInvite 校验邀请并把用户加入目标群组。
	RedeemInvite(ctx context.Context, inviteID string, user *models.User) (*models.SantaGroup, error)
	RevokeInvite(ctx context.Context, inviteID, callerID string) error
}

// inviteService 是 InviteService 的实现。
type inviteService struct {
	store    storage.GroupStore
	groupSvc GroupService
	cfg      config.InviteConfig
}

// NewInviteService 创建一个新的 InviteService 实例。
func NewInviteService(store storage.GroupStore, groupSvc GroupService, cfg config.InviteConfig) InviteService {
	return &inviteService{store: store, groupSvc: groupSvc, cfg: cfg}
}

// loadInvite 读取邀请并把存储层错误翻译成业务错误。
func (s *inviteService) loadInvite(ctx context.Context, inviteID string) (*models.Invite, error) {
	invite, err := s.store.GetInvite(ctx, inviteID)
	if errors.Is(err, storage.ErrKeyNotFound) || errors.Is(err, storage.ErrCorruptRecord) {
		if errors.Is(err, storage.ErrCorruptRecord) {
			log.Printf("邀请 %s 的存储记录损坏: %v", inviteID, err)
		}
		return nil, ErrInviteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("读取邀请 %s 失败: %w", inviteID, err)
	}
	return invite, nil
}

// CreateInvite 为指定群组签发邀请令牌，只有发起人可以签发。
func (s *inviteService) CreateInvite(ctx context.Context, groupID string, caller *models.User) (*models.Invite, string, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if errors.Is(err, storage.ErrKeyNotFound) || errors.Is(err, storage.ErrCorruptRecord) {
		return nil, "", ErrGroupNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("读取群组 %s 失败: %w", groupID, err)
	}

	callerID := caller.IDString()
	if group.CreatedBy != callerID {
		return nil, "", ErrNotOrganizer
	}
	if group.Status != models.GroupActive {
		return nil, "", ErrGroupNotJoinable
	}

	now := time.Now()
	invite := &models.Invite{
		ID:        uuid.NewString(),
		GroupID:   group.ID,
		CreatedBy: callerID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
		Status:    models.InviteActive,
		MaxUses:   s.cfg.MaxUses,
		Metadata: models.InviteMetadata{
			GroupName:   group.Name,
			CreatorName: caller.DisplayName(),
		},
	}

	if err := s.store.SaveInvite(ctx, invite); err != nil {
		return nil, "", fmt.Errorf("保存邀请失败: %w", err)
	}

	link := fmt.Sprintf("%s/invite/secretsanta/%s", s.cfg.BaseURL, invite.ID)
	return invite, link, nil
}

// GetInvite 返回邀请记录，供落地页展示群组名和发起人。
func (s *inviteService) GetInvite(ctx context.Context, inviteID string) (*models.Invite, error) {
	return s.loadInvite(ctx, inviteID)
}

// RedeemInvite 兑换邀请：依次校验状态、有效期、使用上限，
// 然后把用户加入目标群组。重复加入是 no-op，且不消耗使用次数。
func (s *inviteService) RedeemInvite(ctx context.Context, inviteID string, user *models.User) (*models.SantaGroup, error) {
	invite, err := s.loadInvite(ctx, inviteID)
	if err != nil {
		return nil, err
	}
	if invite.Status != models.InviteActive {
		return nil, ErrInviteNotActive
	}
	if invite.Expired(time.Now()) {
		return nil, ErrInviteExpired
	}
	if invite.Exhausted() {
		return nil, ErrInviteExhausted
	}

	participant := models.Participant{
		ID:       user.IDString(),
		Name:     user.DisplayName(),
		JoinedAt: time.Now(),
	}
	group, joined, err := s.groupSvc.AddParticipant(ctx, invite.GroupID, participant)
	if err != nil {
		return nil, err
	}

	if joined {
		// 计数与加入跨越两个键，存储不提供事务。加入已经生效，
		// 计数回写失败只记日志，不把错误抛给已经入群的用户。
		invite.CurrentUses++
		if err := s.store.SaveInvite(ctx, invite); err != nil {
			log.Printf("回写邀请 %s 的使用次数失败: %v", invite.ID, err)
		}
	}
	return group, nil
}

// RevokeInvite 吊销邀请，只有邀请的签发者（群组发起人）可以操作。
func (s *inviteService) RevokeInvite(ctx context.Context, inviteID, callerID string) error {
	invite, err := s.loadInvite(ctx, inviteID)
	if err != nil {
		return err
	}
	if invite.CreatedBy != callerID {
		return ErrNotOrganizer
	}
	if invite.Status == models.InviteRevoked {
		return nil
	}

	invite.Status = models.InviteRevoked
	if err := s.store.SaveInvite(ctx, invite); err != nil {
		return fmt.Errorf("保存邀请 %s 失败: %w", invite.ID, err)
	}
	return nil
}
