package apiserver

import (
	"net/http"

	"github.com/gorilla/mux"

	"santa-go/internal/middleware"
	"santa-go/internal/models"
	"santa-go/internal/services"
)

// InviteHandler 封装了群组邀请相关的 HTTP 处理器方法。
type InviteHandler struct {
	inviteService services.InviteService
	userService   services.UserService
}

// NewInviteHandler 创建一个新的 InviteHandler 实例。
func NewInviteHandler(inviteService services.InviteService, userService services.UserService) *InviteHandler {
	return &InviteHandler{
		inviteService: inviteService,
		userService:   userService,
	}
}

// InviteResponse 是签发邀请成功后返回的结构体。
type InviteResponse struct {
	Invite *models.Invite `json:"invite"`
	Link   string         `json:"link"`
}

// InvitePreview 是邀请落地页展示用的公开信息，不含使用次数等内部字段。
type InvitePreview struct {
	ID          string              `json:"id"`
	GroupName   string              `json:"groupName"`
	CreatorName string              `json:"creatorName"`
	Status      models.InviteStatus `json:"status"`
	ExpiresAt   string              `json:"expiresAt"`
}

// CreateInviteHandler 为指定群组签发邀请链接。
func (h *InviteHandler) CreateInviteHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "用户未认证", http.StatusUnauthorized)
		return
	}
	groupID := mux.Vars(r)["groupID"]

	caller, err := h.userService.GetUserProfile(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	invite, link, err := h.inviteService.CreateInvite(r.Context(), groupID, caller)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, InviteResponse{Invite: invite, Link: link})
}

// GetInviteHandler 是公开接口，供邀请落地页展示群组名和发起人。
func (h *InviteHandler) GetInviteHandler(w http.ResponseWriter, r *http.Request) {
	inviteID := mux.Vars(r)["inviteID"]

	invite, err := h.inviteService.GetInvite(r.Context(), inviteID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, InvitePreview{
		ID:          invite.ID,
		GroupName:   invite.Metadata.GroupName,
		CreatorName: invite.Metadata.CreatorName,
		Status:      invite.Status,
		ExpiresAt:   invite.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

// RedeemInviteHandler 兑换邀请，把当前用户加入目标群组。
func (h *InviteHandler) RedeemInviteHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "用户未认证", http.StatusUnauthorized)
		return
	}
	inviteID := mux.Vars(r)["inviteID"]

	user, err := h.userService.GetUserProfile(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	group, err := h.inviteService.RedeemInvite(r.Context(), inviteID, user)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, group)
}

// RevokeInviteHandler 吊销邀请。
func (h *InviteHandler) RevokeInviteHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "用户未认证", http.StatusUnauthorized)
		return
	}
	inviteID := mux.Vars(r)["inviteID"]

	if err := h.inviteService.RevokeInvite(r.Context(), inviteID, formatUserID(userID)); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "邀请已吊销"})
}
