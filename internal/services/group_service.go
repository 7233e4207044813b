package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"santa-go/internal/config"
	"santa-go/internal/kafka"
	"santa-go/internal/models"
	"santa-go/internal/pairing"
	"santa-go/internal/storage"
)

// GroupView 是按查看者过滤后的群组读模型。
// 完整的配对列表不会出现在这里：每个人只能看到自己要送给谁。
type GroupView struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	CreatedBy     string               `json:"createdBy"`
	CreatedAt     time.Time            `json:"createdAt"`
	Status        models.GroupStatus   `json:"status"`
	Participants  []models.Participant `json:"participants"`
	DistributedAt *time.Time           `json:"distributedAt,omitempty"`
	MyRecipient   *models.Participant  `json:"myRecipient,omitempty"`
}

// GroupSummary 是"我的群组"列表项。
type GroupSummary struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	Status           models.GroupStatus `json:"status"`
	ParticipantCount int                `json:"participantCount"`
	CreatedAt        time.Time          `json:"createdAt"`
	IsOrganizer      bool               `json:"isOrganizer"`
}

// GroupService 定义了礼物交换群组生命周期与配对分配的服务接口。
type GroupService interface {
	CreateGroup(ctx context.Context, ownerID uint, name string, participateMyself bool) (*models.SantaGroup, error)
	// AddParticipant 是幂等加入：返回的 bool 表示是否真的新增了成员。
	AddParticipant(ctx context.Context, groupID string, p models.Participant) (*models.SantaGroup, bool, error)
	// RefreshParticipantNames 从身份源同步参与者展示名，只改 Name 字段，从不失败。
	RefreshParticipantNames(ctx context.Context, group *models.SantaGroup)
	Distribute(ctx context.Context, groupID, callerID string) (*models.SantaGroup, error)
	CompleteGroup(ctx context.Context, groupID, callerID string) (*models.SantaGroup, error)
	GetGroupForViewer(ctx context.Context, groupID, viewerID string) (*GroupView, error)
	GetAssignment(ctx context.Context, groupID, callerID string) (*models.Participant, error)
	UpdateWishlist(ctx context.Context, groupID, callerID, wishlist string) error
	ListUserGroups(ctx context.Context, userID string) ([]GroupSummary, error)
}

// groupService 是 GroupService 的实现。
// 所有"读群组-改-写回"都在该群组的互斥锁内完成：KV 存储没有跨键事务，
// 这个临界区同时保证了分配操作的 at-most-once 语义。
type groupService struct {
	store    storage.GroupStore
	userRepo storage.UserRepository
	producer kafka.MessageProducer // 可为 nil（测试或未接入事件流时）
	kafkaCfg config.KafkaConfig

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewGroupService 创建一个新的 GroupService 实例。
// rng 可注入：测试传固定种子以断言具体排列，传 nil 则使用时间种子。
func NewGroupService(store storage.GroupStore, userRepo storage.UserRepository, producer kafka.MessageProducer, kafkaCfg config.KafkaConfig, rng *rand.Rand) GroupService {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &groupService{
		store:    store,
		userRepo: userRepo,
		producer: producer,
		kafkaCfg: kafkaCfg,
		locks:    make(map[string]*sync.Mutex),
		rng:      rng,
	}
}

// groupLock 返回指定群组的互斥锁，没有则创建。锁条目不回收，
// 单个群组的锁只有几十字节，远小于管理回收的复杂度。
func (s *groupService) groupLock(groupID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.locks[groupID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[groupID] = mu
	}
	return mu
}

// loadGroup 读取群组并把存储层错误翻译成业务错误。
func (s *groupService) loadGroup(ctx context.Context, groupID string) (*models.SantaGroup, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if errors.Is(err, storage.ErrKeyNotFound) || errors.Is(err, storage.ErrCorruptRecord) {
		// 损坏的记录对调用方来说等同于不存在，细节只进日志。
		if errors.Is(err, storage.ErrCorruptRecord) {
			log.Printf("群组 %s 的存储记录损坏: %v", groupID, err)
		}
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("读取群组 %s 失败: %w", groupID, err)
	}
	return group, nil
}

// CreateGroup 创建一个新的礼物交换群组，状态为 active。
// participateMyself 为 true 时发起人自己作为第一名参与者。
func (s *groupService) CreateGroup(ctx context.Context, ownerID uint, name string, participateMyself bool) (*models.SantaGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: 群组名称不能为空", ErrInvalidInput)
	}

	owner, err := s.userRepo.GetByID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("获取发起人 %d 失败: %w", ownerID, err)
	}
	ownerIDStr := owner.IDString()

	group := &models.SantaGroup{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedBy: ownerIDStr,
		CreatedAt: time.Now(),
		Status:    models.GroupActive,
	}
	if participateMyself {
		group.Participants = append(group.Participants, models.Participant{
			ID:       ownerIDStr,
			Name:     owner.DisplayName(),
			JoinedAt: group.CreatedAt,
		})
	}

	if err := s.store.SaveGroup(ctx, group); err != nil {
		return nil, fmt.Errorf("创建群组失败: %w", err)
	}
	// 发起人即使不参与抽签，群组也要出现在他的列表里。
	if err := s.store.AddUserGroup(ctx, ownerIDStr, group.ID); err != nil {
		log.Printf("更新用户 %s 的群组索引失败: %v", ownerIDStr, err)
	}

	return group, nil
}

// AddParticipant 向群组中添加参与者（幂等）。
// 已分配的群组成员名单冻结，返回 ErrGroupNotJoinable。
func (s *groupService) AddParticipant(ctx context.Context, groupID string, p models.Participant) (*models.SantaGroup, bool, error) {
	if p.ID == "" {
		return nil, false, fmt.Errorf("%w: 参与者缺少ID", ErrInvalidInput)
	}

	mu := s.groupLock(groupID)
	mu.Lock()
	defer mu.Unlock()

	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, false, err
	}
	if group.Status != models.GroupActive {
		return nil, false, ErrGroupNotJoinable
	}
	if existing := group.FindParticipant(p.ID); existing != nil {
		return group, false, nil // 重复加入是 no-op
	}

	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now()
	}
	group.Participants = append(group.Participants, p)

	if err := s.store.SaveGroup(ctx, group); err != nil {
		return nil, false, fmt.Errorf("保存群组 %s 失败: %w", groupID, err)
	}
	if err := s.store.AddUserGroup(ctx, p.ID, group.ID); err != nil {
		log.Printf("更新用户 %s 的群组索引失败: %v", p.ID, err)
	}

	s.publishEvent(ctx, group, kafka.EventParticipantJoined, p.ID)
	return group, true, nil
}

// Distribute 执行配对分配，是整个服务的核心操作。
// 临界区内重新读取并检查状态：两个请求竞争时，后到者必然观察到
// 已翻转的状态并得到 ErrAlreadyDistributed——分配最多发生一次。
func (s *groupService) Distribute(ctx context.Context, groupID, callerID string) (*models.SantaGroup, error) {
	mu := s.groupLock(groupID)
	mu.Lock()
	defer mu.Unlock()

	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.CreatedBy != callerID {
		return nil, ErrNotOrganizer
	}
	if group.Status != models.GroupActive {
		return nil, ErrAlreadyDistributed
	}
	if len(group.Participants) < pairing.MinParticipants {
		return nil, ErrInsufficientParticipants
	}

	ids := make([]string, len(group.Participants))
	for i, p := range group.Participants {
		ids[i] = p.ID
	}

	s.rngMu.Lock()
	pairs, err := pairing.Distribute(ids, s.rng)
	s.rngMu.Unlock()
	if err != nil {
		if errors.Is(err, pairing.ErrTooFewParticipants) {
			return nil, ErrInsufficientParticipants
		}
		return nil, fmt.Errorf("生成分配失败: %w", err)
	}

	dist := &models.Distribution{Pairs: pairs, DistributedAt: time.Now()}
	if ok, violations := pairing.ValidateDistribution(ids, dist); !ok {
		// 旋转式构造不可能走到这里，走到了就是 pairing 包的 bug。
		return nil, fmt.Errorf("分配结果未通过校验: %v", violations)
	}

	group.Distribution = dist
	group.Status = models.GroupDistributed
	if err := s.store.SaveGroup(ctx, group); err != nil {
		return nil, fmt.Errorf("保存分配结果失败: %w", err)
	}

	s.publishEvent(ctx, group, kafka.EventGroupDistributed, callerID)
	return group, nil
}

// CompleteGroup 由发起人把已分配的群组标记为"交换结束"。
func (s *groupService) CompleteGroup(ctx context.Context, groupID, callerID string) (*models.SantaGroup, error) {
	mu := s.groupLock(groupID)
	mu.Lock()
	defer mu.Unlock()

	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.CreatedBy != callerID {
		return nil, ErrNotOrganizer
	}
	if group.Status == models.GroupCompleted {
		return group, nil // 重复标记是 no-op
	}
	if group.Status != models.GroupDistributed {
		return nil, ErrNotDistributed
	}

	group.Status = models.GroupCompleted
	if err := s.store.SaveGroup(ctx, group); err != nil {
		return nil, fmt.Errorf("保存群组 %s 失败: %w", groupID, err)
	}

	s.publishEvent(ctx, group, kafka.EventGroupCompleted, callerID)
	return group, nil
}

// GetGroupForViewer 返回按查看者过滤的群组视图，读取时顺带刷新参与者姓名。
func (s *groupService) GetGroupForViewer(ctx context.Context, groupID, viewerID string) (*GroupView, error) {
	mu := s.groupLock(groupID)
	mu.Lock()
	defer mu.Unlock()

	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	s.RefreshParticipantNames(ctx, group)

	view := &GroupView{
		ID:           group.ID,
		Name:         group.Name,
		CreatedBy:    group.CreatedBy,
		CreatedAt:    group.CreatedAt,
		Status:       group.Status,
		Participants: group.Participants,
	}
	if group.Distribution != nil {
		t := group.Distribution.DistributedAt
		view.DistributedAt = &t
		if recipientID := group.RecipientFor(viewerID); recipientID != "" {
			view.MyRecipient = group.FindParticipant(recipientID)
		}
	}
	return view, nil
}

// GetAssignment 返回调用者要送礼的参与者。
func (s *groupService) GetAssignment(ctx context.Context, groupID, callerID string) (*models.Participant, error) {
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.FindParticipant(callerID) == nil {
		return nil, ErrNotMember
	}
	if group.Distribution == nil {
		return nil, ErrNotDistributed
	}
	recipientID := group.RecipientFor(callerID)
	recipient := group.FindParticipant(recipientID)
	if recipient == nil {
		return nil, fmt.Errorf("群组 %s 的分配结果与成员名单不一致", groupID)
	}
	return recipient, nil
}

// UpdateWishlist 更新调用者自己的愿望清单。
// 愿望不影响配对，分配之后仍可修改，交换结束后冻结。
func (s *groupService) UpdateWishlist(ctx context.Context, groupID, callerID, wishlist string) error {
	mu := s.groupLock(groupID)
	mu.Lock()
	defer mu.Unlock()

	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group.Status == models.GroupCompleted {
		return ErrGroupCompleted
	}
	p := group.FindParticipant(callerID)
	if p == nil {
		return ErrNotMember
	}
	p.Wishlist = strings.TrimSpace(wishlist)

	if err := s.store.SaveGroup(ctx, group); err != nil {
		return fmt.Errorf("保存群组 %s 失败: %w", groupID, err)
	}
	return nil
}

// ListUserGroups 返回用户所属群组的摘要列表，悬空的索引项跳过。
func (s *groupService) ListUserGroups(ctx context.Context, userID string) ([]GroupSummary, error) {
	ids, err := s.store.GetUserGroupIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("读取用户 %s 的群组索引失败: %w", userID, err)
	}

	summaries := make([]GroupSummary, 0, len(ids))
	for _, id := range ids {
		group, err := s.loadGroup(ctx, id)
		if errors.Is(err, ErrGroupNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, GroupSummary{
			ID:               group.ID,
			Name:             group.Name,
			Status:           group.Status,
			ParticipantCount: len(group.Participants),
			CreatedAt:        group.CreatedAt,
			IsOrganizer:      group.CreatedBy == userID,
		})
	}
	return summaries, nil
}

// RefreshParticipantNames 从身份源同步参与者的展示名。
// 只改 Name：不动ID、不动人数、不碰已有的分配结果。查不到的身份跳过，
// 保存失败只记日志——这是一次纯数据同步，不应让读取请求失败。
func (s *groupService) RefreshParticipantNames(ctx context.Context, group *models.SantaGroup) {
	updated := false
	for i := range group.Participants {
		uid, err := strconv.ParseUint(group.Participants[i].ID, 10, 32)
		if err != nil {
			continue // 非本系统用户ID（如导入的参与者），跳过
		}
		user, err := s.userRepo.GetByID(ctx, uint(uid))
		if err != nil {
			continue
		}
		if name := user.DisplayName(); name != "" && name != group.Participants[i].Name {
			group.Participants[i].Name = name
			updated = true
		}
	}
	if updated {
		if err := s.store.SaveGroup(ctx, group); err != nil {
			log.Printf("回写群组 %s 的参与者姓名失败: %v", group.ID, err)
		}
	}
}

// publishEvent 向群组事件 topic 发布一条生命周期事件。
// 事件只是通知渠道，发布失败不回滚业务操作，记日志即可。
func (s *groupService) publishEvent(ctx context.Context, group *models.SantaGroup, eventType, actorID string) {
	if s.producer == nil {
		return
	}

	event := kafka.GroupEvent{
		Type:       eventType,
		GroupID:    group.ID,
		GroupName:  group.Name,
		ActorID:    actorID,
		OccurredAt: time.Now(),
	}
	for _, p := range group.Participants {
		event.ParticipantIDs = append(event.ParticipantIDs, p.ID)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("序列化群组事件失败: %v", err)
		return
	}
	if err := s.producer.SendMessage(ctx, s.kafkaCfg.GroupEventsTopic, []byte(group.ID), payload); err != nil {
		log.Printf("发布群组事件 %s (群组 %s) 失败: %v", eventType, group.ID, err)
	}
}
