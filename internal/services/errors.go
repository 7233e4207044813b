package services

import "errors"

// 业务错误哨兵值。Handler 层用 errors.Is 把它们映射为 HTTP 状态码，
// 未命中的错误一律按存储/内部故障处理。
var (
	// 认证相关
	ErrUserAlreadyExists  = errors.New("用户名或邮箱已存在")
	ErrInvalidCredentials = errors.New("无效的用户名或密码")
	ErrUserNotFound       = errors.New("用户未找到")

	// 群组生命周期
	ErrInvalidInput             = errors.New("输入无效")
	ErrGroupNotFound            = errors.New("群组未找到")
	ErrGroupNotJoinable         = errors.New("群组已完成分配，无法再加入")
	ErrInsufficientParticipants = errors.New("参与者不足，分配至少需要3人")
	ErrAlreadyDistributed       = errors.New("群组已完成分配")
	ErrNotDistributed           = errors.New("群组尚未完成分配")
	ErrNotOrganizer             = errors.New("只有发起人可以执行此操作")
	ErrNotMember                = errors.New("不是该群组的参与者")
	ErrGroupCompleted           = errors.New("礼物交换已结束")

	// 邀请
	ErrInviteNotFound  = errors.New("邀请未找到")
	ErrInviteNotActive = errors.New("该邀请已不再有效")
	ErrInviteExpired   = errors.New("邀请已过期")
	ErrInviteExhausted = errors.New("邀请使用次数已达上限")
)
