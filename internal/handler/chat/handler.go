package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-tavern/chatsync/internal/logger"
	"github.com/zhouzirui/z-tavern/chatsync/internal/model/chat"
	chatService "github.com/zhouzirui/z-tavern/chatsync/internal/service/chat"
	"github.com/zhouzirui/z-tavern/chatsync/pkg/utils"
)

// Handler 会话管理的HTTP处理器
type Handler struct {
	store chatService.Store
}

// New 创建会话处理器
func New(store chatService.Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", h.handleListSessions)
		r.Post("/", h.handleCreateSession)
		r.Get("/{sessionID}", h.handleGetSession)
		r.Post("/{sessionID}/rename", h.handleRenameSession)
		r.Delete("/{sessionID}", h.handleDeleteSession)
	})
}

// handleListSessions 列出全部会话
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, chat.SessionList{Sessions: sessions})
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.store.CreateSession(r.Context(), "")
	if err != nil {
		respondStoreError(w, err)
		return
	}
	logger.Info("session created", "session", session.ID)
	utils.RespondJSON(w, http.StatusOK, chat.SessionRef{ID: session.ID, Name: session.Name})
}

// handleGetSession 获取会话及其历史
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.store.GetSession(r.Context(), sessionID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	history, err := h.store.LoadTranscript(r.Context(), sessionID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, chat.SessionDetail{
		Session: chat.SessionRef{ID: session.ID, Name: session.Name},
		History: history,
	})
}

// handleRenameSession 重命名会话
func (h *Handler) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	var payload chat.RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.store.RenameSession(r.Context(), chi.URLParam(r, "sessionID"), payload.Name)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, chat.SessionRef{ID: session.ID, Name: session.Name})
}

// handleDeleteSession 删除会话
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.store.DeleteSession(r.Context(), sessionID); err != nil {
		respondStoreError(w, err)
		return
	}
	logger.Info("session deleted", "session", sessionID)
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// respondStoreError 将存储层错误映射为HTTP状态码
func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chatService.ErrNameRequired):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error("store failure", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
