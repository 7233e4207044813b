package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"santa-go/internal/config"
	"santa-go/internal/models"
	"santa-go/internal/storage"
)

func testInviteConfig() config.InviteConfig {
	return config.InviteConfig{
		BaseURL: "https://giftidea.app",
		TTL:     30 * 24 * time.Hour,
		MaxUses: 1000,
	}
}

// newTestInviteService 在 GroupService 之上组装 InviteService，共享同一个 KV 存储。
func newTestInviteService(t *testing.T, users int) (InviteService, GroupService, storage.GroupStore, *fakeUserRepo) {
	t.Helper()
	groupSvc, store, repo := newTestGroupService(t, users)
	inviteSvc := NewInviteService(store, groupSvc, testInviteConfig())
	return inviteSvc, groupSvc, store, repo
}

func TestCreateInvite(t *testing.T) {
	inviteSvc, groupSvc, _, repo := newTestInviteService(t, 2)
	ctx := context.Background()

	group, err := groupSvc.CreateGroup(ctx, 1, "邀请测试", true)
	if err != nil {
		t.Fatal(err)
	}
	owner, err := repo.GetByID(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	other, err := repo.GetByID(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}

	invite, link, err := inviteSvc.CreateInvite(ctx, group.ID, owner)
	if err != nil {
		t.Fatalf("CreateInvite() error = %v", err)
	}
	wantSuffix := fmt.Sprintf("/invite/secretsanta/%s", invite.ID)
	if !strings.HasPrefix(link, "https://giftidea.app") || !strings.HasSuffix(link, wantSuffix) {
		t.Errorf("link = %s", link)
	}
	if invite.Status != models.InviteActive {
		t.Errorf("status = %s, want active", invite.Status)
	}
	if invite.Metadata.GroupName != "邀请测试" {
		t.Errorf("metadata group name = %s", invite.Metadata.GroupName)
	}
	if invite.MaxUses != 1000 || invite.CurrentUses != 0 {
		t.Errorf("uses = %d/%d", invite.CurrentUses, invite.MaxUses)
	}

	// 非发起人不能签发
	if _, _, err := inviteSvc.CreateInvite(ctx, group.ID, other); !errors.Is(err, ErrNotOrganizer) {
		t.Fatalf("invite by non-organizer: err = %v, want ErrNotOrganizer", err)
	}

	// 不存在的群组
	if _, _, err := inviteSvc.CreateInvite(ctx, "no-such-group", owner); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("invite for missing group: err = %v, want ErrGroupNotFound", err)
	}
}

func TestCreateInviteFrozenGroup(t *testing.T) {
	inviteSvc, groupSvc, _, repo := newTestInviteService(t, 3)
	ctx := context.Background()

	group, err := groupSvc.CreateGroup(ctx, 1, "已分配群组", true)
	if err != nil {
		t.Fatal(err)
	}
	for i := uint(2); i <= 3; i++ {
		if _, _, err := groupSvc.AddParticipant(ctx, group.ID, participantForUser(i)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := groupSvc.Distribute(ctx, group.ID, "1"); err != nil {
		t.Fatal(err)
	}

	owner, err := repo.GetByID(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := inviteSvc.CreateInvite(ctx, group.ID, owner); !errors.Is(err, ErrGroupNotJoinable) {
		t.Fatalf("invite for distributed group: err = %v, want ErrGroupNotJoinable", err)
	}
}

func TestRedeemInvite(t *testing.T) {
	inviteSvc, groupSvc, store, repo := newTestInviteService(t, 2)
	ctx := context.Background()

	group, err := groupSvc.CreateGroup(ctx, 1, "入群测试", true)
	if err != nil {
		t.Fatal(err)
	}
	owner, err := repo.GetByID(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	joiner, err := repo.GetByID(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}

	invite, _, err := inviteSvc.CreateInvite(ctx, group.ID, owner)
	if err != nil {
		t.Fatal(err)
	}

	joinedGroup, err := inviteSvc.RedeemInvite(ctx, invite.ID, joiner)
	if err != nil {
		t.Fatalf("RedeemInvite() error = %v", err)
	}
	if joinedGroup.FindParticipant("2") == nil {
		t.Fatal("joiner not in group after redeem")
	}

	// 重复兑换是 no-op，且不消耗使用次数
	if _, err := inviteSvc.RedeemInvite(ctx, invite.ID, joiner); err != nil {
		t.Fatalf("second redeem: %v", err)
	}
	reloaded, err := store.GetInvite(ctx, invite.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.CurrentUses != 1 {
		t.Errorf("currentUses = %d, want 1", reloaded.CurrentUses)
	}

	// 不存在的邀请
	if _, err := inviteSvc.RedeemInvite(ctx, "no-such-invite", joiner); !errors.Is(err, ErrInviteNotFound) {
		t.Fatalf("redeem missing invite: err = %v, want ErrInviteNotFound", err)
	}
}

func TestRedeemInviteRejections(t *testing.T) {
	inviteSvc, groupSvc, store, repo := newTestInviteService(t, 2)
	ctx := context.Background()

	group, err := groupSvc.CreateGroup(ctx, 1, "拒绝场景", true)
	if err != nil {
		t.Fatal(err)
	}
	owner, err := repo.GetByID(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	joiner, err := repo.GetByID(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}

	baseInvite, _, err := inviteSvc.CreateInvite(ctx, group.ID, owner)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		mutate  func(inv *models.Invite)
		wantErr error
	}{
		{
			name:    "revoked",
			mutate:  func(inv *models.Invite) { inv.Status = models.InviteRevoked },
			wantErr: ErrInviteNotActive,
		},
		{
			name:    "expired",
			mutate:  func(inv *models.Invite) { inv.ExpiresAt = time.Now().Add(-time.Hour) },
			wantErr: ErrInviteExpired,
		},
		{
			name: "exhausted",
			mutate: func(inv *models.Invite) {
				inv.MaxUses = 3
				inv.CurrentUses = 3
			},
			wantErr: ErrInviteExhausted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := *baseInvite
			tt.mutate(&inv)
			if err := store.SaveInvite(ctx, &inv); err != nil {
				t.Fatal(err)
			}
			if _, err := inviteSvc.RedeemInvite(ctx, inv.ID, joiner); !errors.Is(err, tt.wantErr) {
				t.Fatalf("RedeemInvite() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRedeemInviteUnlimitedUses(t *testing.T) {
	inviteSvc, groupSvc, store, repo := newTestInviteService(t, 2)
	ctx := context.Background()

	group, err := groupSvc.CreateGroup(ctx, 1, "无上限邀请", true)
	if err != nil {
		t.Fatal(err)
	}
	owner, err := repo.GetByID(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	joiner, err := repo.GetByID(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}

	invite, _, err := inviteSvc.CreateInvite(ctx, group.ID, owner)
	if err != nil {
		t.Fatal(err)
	}
	// MaxUses <= 0 表示不限次数
	invite.MaxUses = 0
	invite.CurrentUses = 99999
	if err := store.SaveInvite(ctx, invite); err != nil {
		t.Fatal(err)
	}

	if _, err := inviteSvc.RedeemInvite(ctx, invite.ID, joiner); err != nil {
		t.Fatalf("redeem unlimited invite: %v", err)
	}
}

func TestRevokeInvite(t *testing.T) {
	inviteSvc, groupSvc, _, repo := newTestInviteService(t, 2)
	ctx := context.Background()

	group, err := groupSvc.CreateGroup(ctx, 1, "吊销测试", true)
	if err != nil {
		t.Fatal(err)
	}
	owner, err := repo.GetByID(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}

	invite, _, err := inviteSvc.CreateInvite(ctx, group.ID, owner)
	if err != nil {
		t.Fatal(err)
	}

	if err := inviteSvc.RevokeInvite(ctx, invite.ID, "2"); !errors.Is(err, ErrNotOrganizer) {
		t.Fatalf("revoke by non-issuer: err = %v, want ErrNotOrganizer", err)
	}
	if err := inviteSvc.RevokeInvite(ctx, invite.ID, "1"); err != nil {
		t.Fatalf("RevokeInvite() error = %v", err)
	}
	// 重复吊销是 no-op
	if err := inviteSvc.RevokeInvite(ctx, invite.ID, "1"); err != nil {
		t.Fatalf("second revoke: %v", err)
	}

	got, err := inviteSvc.GetInvite(ctx, invite.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.InviteRevoked {
		t.Errorf("status = %s, want revoked", got.Status)
	}
}
