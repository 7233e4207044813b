// Package pairing 实现神秘圣诞老人的配对算法：
// 对参与者ID做均匀随机洗牌，再按环形相邻关系生成"谁送给谁"。
// 旋转式构造保证结果是覆盖全部参与者的单个 n-环：
// 没有人抽到自己，也不存在两个人互送的闭环。
package pairing

import (
	"errors"
	"fmt"
	"math/rand"

	"santa-go/internal/models"
)

// MinParticipants 是一次分配所需的最少参与者数。
// 1 人无解；2 人只能互送，双方都提前知道对方，失去"神秘"的意义，同样拒绝。
const MinParticipants = 3

// ErrTooFewParticipants 表示参与者不足，无法生成有效分配。
var ErrTooFewParticipants = errors.New("参与者少于3人，无法分配")

// Distribute 对给定的参与者ID列表生成一次随机分配。
// rng 由调用方注入：生产环境用时间种子，测试用固定种子以便断言。
// 这是个聚会游戏而不是安全边界，math/rand 的随机性足够。
func Distribute(ids []string, rng *rand.Rand) ([]models.DistributionPair, error) {
	n := len(ids)
	if n < MinParticipants {
		return nil, ErrTooFewParticipants
	}

	// 在副本上洗牌，不动调用方的切片（参与者的展示顺序与配对无关）。
	shuffled := make([]string, n)
	copy(shuffled, ids)

	// Fisher-Yates：i 从尾部走到 1，与 [0, i] 内均匀选出的 j 交换。
	for i := n - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}

	// 环形配对：每个人送给洗牌序列中的下一个人，末尾回到开头。
	pairs := make([]models.DistributionPair, n)
	for k, id := range shuffled {
		pairs[k] = models.DistributionPair{
			SantaID:     id,
			RecipientID: shuffled[(k+1)%n],
		}
	}
	return pairs, nil
}

// ValidateDistribution 校验一次分配是否满足全部不变式，
// 返回是否通过以及违反项的描述列表（诊断用，也是测试钩子）。
// 除了"无人抽到自己"，还验证映射构成长度为 n 的单环：
// 正确的旋转式实现不可能产生互不连通的小环，出现小环说明实现有误。
func ValidateDistribution(ids []string, dist *models.Distribution) (bool, []string) {
	var violations []string

	if dist == nil {
		return false, []string{"分配结果为空"}
	}

	n := len(ids)
	if len(dist.Pairs) != n {
		violations = append(violations,
			fmt.Sprintf("pair 数 %d 与参与者数 %d 不一致", len(dist.Pairs), n))
	}

	known := make(map[string]struct{}, n)
	for _, id := range ids {
		known[id] = struct{}{}
	}

	next := make(map[string]string, len(dist.Pairs)) // santa -> recipient
	asRecipient := make(map[string]int, len(dist.Pairs))
	for _, p := range dist.Pairs {
		if _, ok := known[p.SantaID]; !ok {
			violations = append(violations, fmt.Sprintf("送礼人 %s 不是参与者", p.SantaID))
		}
		if _, ok := known[p.RecipientID]; !ok {
			violations = append(violations, fmt.Sprintf("收礼人 %s 不是参与者", p.RecipientID))
		}
		if p.SantaID == p.RecipientID {
			violations = append(violations, fmt.Sprintf("参与者 %s 抽到了自己", p.SantaID))
		}
		if _, dup := next[p.SantaID]; dup {
			violations = append(violations, fmt.Sprintf("送礼人 %s 出现多次", p.SantaID))
		}
		next[p.SantaID] = p.RecipientID
		asRecipient[p.RecipientID]++
	}

	for _, id := range ids {
		if _, ok := next[id]; !ok {
			violations = append(violations, fmt.Sprintf("参与者 %s 没有送礼对象", id))
		}
		if asRecipient[id] != 1 {
			violations = append(violations,
				fmt.Sprintf("参与者 %s 作为收礼人出现 %d 次", id, asRecipient[id]))
		}
	}

	// 前面的检查失败时环检测没有意义，直接返回。
	if len(violations) > 0 {
		return false, violations
	}

	// 从任意起点沿映射走 n 步：只有在第 n 步才允许回到起点。
	start := ids[0]
	cur := start
	for step := 1; step <= n; step++ {
		cur = next[cur]
		if cur == start {
			if step != n {
				violations = append(violations,
					fmt.Sprintf("第 %d 步就回到起点 %s，存在长度 %d 的子环", step, start, step))
			}
			break
		}
	}
	if cur != start {
		violations = append(violations, "沿映射走 n 步未能回到起点")
	}

	return len(violations) == 0, violations
}
