package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"sync"
	"testing"

	"gorm.io/gorm"

	"santa-go/internal/config"
	"santa-go/internal/models"
	"santa-go/internal/storage"
)

// fakeUserRepo 是测试用的进程内 UserRepository。
type fakeUserRepo struct {
	mu     sync.Mutex
	nextID uint
	users  map[uint]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{nextID: 1, users: make(map[uint]*models.User)}
}

func (r *fakeUserRepo) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.ID = r.nextID
	r.nextID++
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id uint) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *fakeUserRepo) GetByUsername(_ context.Context, username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) Update(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *fakeUserRepo) SearchUsers(_ context.Context, _ string, _ uint) ([]models.User, error) {
	return nil, nil
}

// newTestGroupService 构造一个带固定种子随机源的 GroupService 和 n 个已注册用户。
func newTestGroupService(t *testing.T, n int) (GroupService, storage.GroupStore, *fakeUserRepo) {
	t.Helper()
	repo := newFakeUserRepo()
	for i := 1; i <= n; i++ {
		if err := repo.Create(context.Background(), &models.User{
			Username: fmt.Sprintf("user%d", i),
			Nickname: fmt.Sprintf("昵称%d", i),
		}); err != nil {
			t.Fatalf("seed user %d: %v", i, err)
		}
	}
	store := storage.NewKVGroupStore(storage.NewMemoryKVStore())
	svc := NewGroupService(store, repo, nil, config.KafkaConfig{}, rand.New(rand.NewSource(7)))
	return svc, store, repo
}

func participantForUser(id uint) models.Participant {
	return models.Participant{
		ID:   fmt.Sprintf("%d", id),
		Name: fmt.Sprintf("昵称%d", id),
	}
}

func TestCreateGroup(t *testing.T) {
	svc, _, _ := newTestGroupService(t, 1)
	ctx := context.Background()

	tests := []struct {
		name              string
		groupName         string
		participateMyself bool
		wantErr           error
		wantParticipants  int
	}{
		{name: "owner participates", groupName: "新年交换", participateMyself: true, wantParticipants: 1},
		{name: "owner organizes only", groupName: "公司活动", participateMyself: false, wantParticipants: 0},
		{name: "empty name rejected", groupName: "", wantErr: ErrInvalidInput},
		{name: "whitespace name rejected", groupName: "   ", wantErr: ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			group, err := svc.CreateGroup(ctx, 1, tt.groupName, tt.participateMyself)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("CreateGroup() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateGroup() error = %v", err)
			}
			if group.Status != models.GroupActive {
				t.Errorf("status = %s, want active", group.Status)
			}
			if len(group.Participants) != tt.wantParticipants {
				t.Errorf("participants = %d, want %d", len(group.Participants), tt.wantParticipants)
			}
			if group.CreatedBy != "1" {
				t.Errorf("createdBy = %s, want 1", group.CreatedBy)
			}
		})
	}
}

func TestAddParticipantIdempotent(t *testing.T) {
	svc, _, _ := newTestGroupService(t, 3)
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, 1, "测试群组", true)
	if err != nil {
		t.Fatal(err)
	}

	if _, joined, err := svc.AddParticipant(ctx, group.ID, participantForUser(2)); err != nil || !joined {
		t.Fatalf("first join: joined=%v err=%v", joined, err)
	}
	// 重复加入同一参与者是 no-op
	updated, joined, err := svc.AddParticipant(ctx, group.ID, participantForUser(2))
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if joined {
		t.Error("second join reported as new member")
	}
	if len(updated.Participants) != 2 {
		t.Errorf("participants = %d, want 2", len(updated.Participants))
	}
}

func TestDistributeRequiresThreeParticipants(t *testing.T) {
	svc, _, _ := newTestGroupService(t, 2)
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, 1, "两人群组", true)
	if err != nil {
		t.Fatal(err)
	}

	// 1 人
	if _, err := svc.Distribute(ctx, group.ID, "1"); !errors.Is(err, ErrInsufficientParticipants) {
		t.Fatalf("distribute with 1 participant: err = %v, want ErrInsufficientParticipants", err)
	}

	// 2 人：互送闭环，同样拒绝
	if _, _, err := svc.AddParticipant(ctx, group.ID, participantForUser(2)); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Distribute(ctx, group.ID, "1"); !errors.Is(err, ErrInsufficientParticipants) {
		t.Fatalf("distribute with 2 participants: err = %v, want ErrInsufficientParticipants", err)
	}
}

func TestDistributeLifecycle(t *testing.T) {
	svc, store, _ := newTestGroupService(t, 4)
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, 1, "四人群组", true)
	if err != nil {
		t.Fatal(err)
	}
	for i := uint(2); i <= 4; i++ {
		if _, _, err := svc.AddParticipant(ctx, group.ID, participantForUser(i)); err != nil {
			t.Fatal(err)
		}
	}

	// 非发起人无权分配
	if _, err := svc.Distribute(ctx, group.ID, "2"); !errors.Is(err, ErrNotOrganizer) {
		t.Fatalf("distribute by non-organizer: err = %v, want ErrNotOrganizer", err)
	}

	distributed, err := svc.Distribute(ctx, group.ID, "1")
	if err != nil {
		t.Fatalf("Distribute() error = %v", err)
	}
	if distributed.Status != models.GroupDistributed {
		t.Errorf("status = %s, want distributed", distributed.Status)
	}
	if distributed.Distribution == nil || len(distributed.Distribution.Pairs) != 4 {
		t.Fatalf("distribution = %+v, want 4 pairs", distributed.Distribution)
	}
	firstPairs := append([]models.DistributionPair(nil), distributed.Distribution.Pairs...)

	// 第二次分配必须失败，且第一次的结果保持不变
	if _, err := svc.Distribute(ctx, group.ID, "1"); !errors.Is(err, ErrAlreadyDistributed) {
		t.Fatalf("second distribute: err = %v, want ErrAlreadyDistributed", err)
	}
	reloaded, err := store.GetGroup(ctx, group.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(reloaded.Distribution.Pairs, firstPairs) {
		t.Error("distribution changed after failed second distribute")
	}

	// 分配后群组冻结，不能再加入
	if _, _, err := svc.AddParticipant(ctx, group.ID, participantForUser(3)); !errors.Is(err, ErrGroupNotJoinable) {
		t.Fatalf("join after distribute: err = %v, want ErrGroupNotJoinable", err)
	}
}

// 两个请求竞争分配，只允许一个成功，另一个必须观察到 ErrAlreadyDistributed。
func TestDistributeAtMostOnce(t *testing.T) {
	svc, _, _ := newTestGroupService(t, 4)
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, 1, "并发分配", true)
	if err != nil {
		t.Fatal(err)
	}
	for i := uint(2); i <= 4; i++ {
		if _, _, err := svc.AddParticipant(ctx, group.ID, participantForUser(i)); err != nil {
			t.Fatal(err)
		}
	}

	const racers = 8
	errs := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Distribute(ctx, group.ID, "1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var successes, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrAlreadyDistributed):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Errorf("successes = %d, want exactly 1", successes)
	}
	if conflicts != racers-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, racers-1)
	}
}

func TestGetAssignmentAndViewerFiltering(t *testing.T) {
	svc, _, _ := newTestGroupService(t, 4)
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, 1, "隐私检查", true)
	if err != nil {
		t.Fatal(err)
	}
	for i := uint(2); i <= 4; i++ {
		if _, _, err := svc.AddParticipant(ctx, group.ID, participantForUser(i)); err != nil {
			t.Fatal(err)
		}
	}

	// 分配前查询自己的对象
	if _, err := svc.GetAssignment(ctx, group.ID, "1"); !errors.Is(err, ErrNotDistributed) {
		t.Fatalf("assignment before distribute: err = %v, want ErrNotDistributed", err)
	}

	if _, err := svc.Distribute(ctx, group.ID, "1"); err != nil {
		t.Fatal(err)
	}

	// 每个成员都能拿到自己的对象，且对象不是自己
	recipients := make(map[string]string)
	for i := uint(1); i <= 4; i++ {
		callerID := fmt.Sprintf("%d", i)
		recipient, err := svc.GetAssignment(ctx, group.ID, callerID)
		if err != nil {
			t.Fatalf("assignment for %s: %v", callerID, err)
		}
		if recipient.ID == callerID {
			t.Errorf("participant %s drew themselves", callerID)
		}
		recipients[callerID] = recipient.ID
	}
	// 收礼人互不相同（双射）
	seen := make(map[string]bool)
	for _, r := range recipients {
		if seen[r] {
			t.Errorf("recipient %s assigned twice", r)
		}
		seen[r] = true
	}

	// 非成员查询
	if _, err := svc.GetAssignment(ctx, group.ID, "999"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("assignment for outsider: err = %v, want ErrNotMember", err)
	}

	// 视图只含查看者自己的对象，不含完整配对表
	view, err := svc.GetGroupForViewer(ctx, group.ID, "2")
	if err != nil {
		t.Fatal(err)
	}
	if view.MyRecipient == nil || view.MyRecipient.ID != recipients["2"] {
		t.Errorf("viewer 2 recipient = %+v, want id %s", view.MyRecipient, recipients["2"])
	}
	if view.DistributedAt == nil {
		t.Error("view missing distributedAt")
	}
	// 读模型的结构体本身就不携带 pairs 字段，这里确认非成员视图也不含对象
	outsiderView, err := svc.GetGroupForViewer(ctx, group.ID, "999")
	if err != nil {
		t.Fatal(err)
	}
	if outsiderView.MyRecipient != nil {
		t.Error("outsider view leaked a recipient")
	}
}

func TestRefreshParticipantNames(t *testing.T) {
	svc, store, repo := newTestGroupService(t, 3)
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, 1, "改名测试", true)
	if err != nil {
		t.Fatal(err)
	}
	for i := uint(2); i <= 3; i++ {
		if _, _, err := svc.AddParticipant(ctx, group.ID, participantForUser(i)); err != nil {
			t.Fatal(err)
		}
	}
	// 群组里混入一个外部参与者，身份源查不到，应原样保留
	if _, _, err := svc.AddParticipant(ctx, group.ID, models.Participant{ID: "guest-1", Name: "客人"}); err != nil {
		t.Fatal(err)
	}

	// 用户2改了昵称
	user2, err := repo.GetByID(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	user2.Nickname = "新昵称"
	if err := repo.Update(ctx, user2); err != nil {
		t.Fatal(err)
	}

	view, err := svc.GetGroupForViewer(ctx, group.ID, "1")
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Participants) != 4 {
		t.Fatalf("participants = %d, want 4", len(view.Participants))
	}
	byID := make(map[string]models.Participant)
	for _, p := range view.Participants {
		byID[p.ID] = p
	}
	if byID["2"].Name != "新昵称" {
		t.Errorf("participant 2 name = %s, want 新昵称", byID["2"].Name)
	}
	if byID["guest-1"].Name != "客人" {
		t.Errorf("guest name = %s, want unchanged", byID["guest-1"].Name)
	}

	// 刷新已持久化
	reloaded, err := store.GetGroup(ctx, group.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.FindParticipant("2").Name != "新昵称" {
		t.Error("refreshed name was not persisted")
	}
}

func TestCompleteGroup(t *testing.T) {
	svc, _, _ := newTestGroupService(t, 3)
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, 1, "收尾测试", true)
	if err != nil {
		t.Fatal(err)
	}
	for i := uint(2); i <= 3; i++ {
		if _, _, err := svc.AddParticipant(ctx, group.ID, participantForUser(i)); err != nil {
			t.Fatal(err)
		}
	}

	// 未分配不能结束
	if _, err := svc.CompleteGroup(ctx, group.ID, "1"); !errors.Is(err, ErrNotDistributed) {
		t.Fatalf("complete before distribute: err = %v, want ErrNotDistributed", err)
	}

	if _, err := svc.Distribute(ctx, group.ID, "1"); err != nil {
		t.Fatal(err)
	}
	completed, err := svc.CompleteGroup(ctx, group.ID, "1")
	if err != nil {
		t.Fatalf("CompleteGroup() error = %v", err)
	}
	if completed.Status != models.GroupCompleted {
		t.Errorf("status = %s, want completed", completed.Status)
	}

	// 结束后愿望清单冻结
	if err := svc.UpdateWishlist(ctx, group.ID, "2", "迟到的愿望"); !errors.Is(err, ErrGroupCompleted) {
		t.Fatalf("wishlist after complete: err = %v, want ErrGroupCompleted", err)
	}
}

func TestUpdateWishlist(t *testing.T) {
	svc, store, _ := newTestGroupService(t, 3)
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, 1, "愿望清单", true)
	if err != nil {
		t.Fatal(err)
	}
	for i := uint(2); i <= 3; i++ {
		if _, _, err := svc.AddParticipant(ctx, group.ID, participantForUser(i)); err != nil {
			t.Fatal(err)
		}
	}

	if err := svc.UpdateWishlist(ctx, group.ID, "2", " 一副手套 "); err != nil {
		t.Fatal(err)
	}
	reloaded, err := store.GetGroup(ctx, group.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got := reloaded.FindParticipant("2").Wishlist; got != "一副手套" {
		t.Errorf("wishlist = %q, want trimmed text", got)
	}

	if err := svc.UpdateWishlist(ctx, group.ID, "999", "x"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("wishlist by outsider: err = %v, want ErrNotMember", err)
	}
}

func TestListUserGroups(t *testing.T) {
	svc, _, _ := newTestGroupService(t, 2)
	ctx := context.Background()

	g1, err := svc.CreateGroup(ctx, 1, "群组一", true)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateGroup(ctx, 2, "群组二", true); err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.AddParticipant(ctx, g1.ID, participantForUser(2)); err != nil {
		t.Fatal(err)
	}

	groups1, err := svc.ListUserGroups(ctx, "1")
	if err != nil {
		t.Fatal(err)
	}
	if len(groups1) != 1 || groups1[0].Name != "群组一" || !groups1[0].IsOrganizer {
		t.Errorf("user 1 groups = %+v", groups1)
	}

	groups2, err := svc.ListUserGroups(ctx, "2")
	if err != nil {
		t.Fatal(err)
	}
	if len(groups2) != 2 {
		t.Fatalf("user 2 groups = %d, want 2", len(groups2))
	}

	// 没有任何群组的用户得到空列表
	groups3, err := svc.ListUserGroups(ctx, "999")
	if err != nil {
		t.Fatal(err)
	}
	if len(groups3) != 0 {
		t.Errorf("user 999 groups = %d, want 0", len(groups3))
	}
}

func TestGroupNotFound(t *testing.T) {
	svc, _, _ := newTestGroupService(t, 1)
	ctx := context.Background()

	if _, err := svc.GetGroupForViewer(ctx, "no-such-group", "1"); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("err = %v, want ErrGroupNotFound", err)
	}
	if _, err := svc.Distribute(ctx, "no-such-group", "1"); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("err = %v, want ErrGroupNotFound", err)
	}
}
