package apiserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"santa-go/internal/middleware"
	"santa-go/internal/services"
)

// GroupHandler 封装了礼物交换群组相关的 HTTP 处理器方法。
type GroupHandler struct {
	groupService services.GroupService
}

// NewGroupHandler 创建一个新的 GroupHandler 实例。
func NewGroupHandler(groupService services.GroupService) *GroupHandler {
	return &GroupHandler{groupService: groupService}
}

// CreateGroupRequest 是创建群组的请求结构体。
type CreateGroupRequest struct {
	Name              string `json:"name"`
	ParticipateMyself bool   `json:"participateMyself"` // 发起人自己是否参与抽签
}

// UpdateWishlistRequest 是更新愿望清单的请求结构体。
type UpdateWishlistRequest struct {
	Wishlist string `json:"wishlist"`
}

// CreateGroupHandler 处理创建新群组的请求。
func (h *GroupHandler) CreateGroupHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "用户未认证", http.StatusUnauthorized)
		return
	}

	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "请求体无效", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	group, err := h.groupService.CreateGroup(r.Context(), userID, req.Name, req.ParticipateMyself)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, group)
}

// ListGroupsHandler 返回当前用户所属群组的摘要列表。
func (h *GroupHandler) ListGroupsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "用户未认证", http.StatusUnauthorized)
		return
	}

	groups, err := h.groupService.ListUserGroups(r.Context(), formatUserID(userID))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, groups)
}

// GetGroupHandler 返回按查看者过滤的群组详情。
func (h *GroupHandler) GetGroupHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "用户未认证", http.StatusUnauthorized)
		return
	}
	groupID := mux.Vars(r)["groupID"]

	view, err := h.groupService.GetGroupForViewer(r.Context(), groupID, formatUserID(userID))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

// DistributeHandler 由发起人触发配对分配。
func (h *GroupHandler) DistributeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "用户未认证", http.StatusUnauthorized)
		return
	}
	groupID := mux.Vars(r)["groupID"]

	callerID := formatUserID(userID)
	if _, err := h.groupService.Distribute(r.Context(), groupID, callerID); err != nil {
		writeServiceError(w, err)
		return
	}
	// 不返回完整群组：配对表不应随分配响应下发，
	// 调用方随后通过详情接口拿到自己的视图。
	view, err := h.groupService.GetGroupForViewer(r.Context(), groupID, callerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

// CompleteGroupHandler 由发起人把已分配的群组标记为交换结束。
func (h *GroupHandler) CompleteGroupHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "用户未认证", http.StatusUnauthorized)
		return
	}
	groupID := mux.Vars(r)["groupID"]

	callerID := formatUserID(userID)
	if _, err := h.groupService.CompleteGroup(r.Context(), groupID, callerID); err != nil {
		writeServiceError(w, err)
		return
	}
	view, err := h.groupService.GetGroupForViewer(r.Context(), groupID, callerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

// GetAssignmentHandler 返回调用者要送礼的参与者。
func (h *GroupHandler) GetAssignmentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "用户未认证", http.StatusUnauthorized)
		return
	}
	groupID := mux.Vars(r)["groupID"]

	recipient, err := h.groupService.GetAssignment(r.Context(), groupID, formatUserID(userID))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, recipient)
}

// UpdateWishlistHandler 更新调用者自己的愿望清单。
func (h *GroupHandler) UpdateWishlistHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "用户未认证", http.StatusUnauthorized)
		return
	}
	groupID := mux.Vars(r)["groupID"]

	var req UpdateWishlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "请求体无效", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := h.groupService.UpdateWishlist(r.Context(), groupID, formatUserID(userID), req.Wishlist); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "愿望清单已更新"})
}

// formatUserID 把认证上下文里的数字用户ID转成群组存储使用的字符串ID。
func formatUserID(userID uint) string {
	return strconv.FormatUint(uint64(userID), 10)
}

// writeServiceError 把业务层的哨兵错误翻译成 HTTP 状态码。
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrGroupNotFound),
		errors.Is(err, services.ErrInviteNotFound),
		errors.Is(err, services.ErrUserNotFound):
		writeJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrNotOrganizer),
		errors.Is(err, services.ErrNotMember):
		writeJSONError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, services.ErrAlreadyDistributed),
		errors.Is(err, services.ErrGroupNotJoinable),
		errors.Is(err, services.ErrInsufficientParticipants),
		errors.Is(err, services.ErrNotDistributed),
		errors.Is(err, services.ErrGroupCompleted),
		errors.Is(err, services.ErrInviteNotActive),
		errors.Is(err, services.ErrInviteExpired),
		errors.Is(err, services.ErrInviteExhausted):
		writeJSONError(w, err.Error(), http.StatusConflict)
	default:
		writeJSONError(w, "服务器内部错误", http.StatusInternalServerError)
	}
}
