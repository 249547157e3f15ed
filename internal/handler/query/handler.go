package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-tavern/chatsync/internal/logger"
	"github.com/zhouzirui/z-tavern/chatsync/internal/model/chat"
	aiService "github.com/zhouzirui/z-tavern/chatsync/internal/service/ai"
	chatService "github.com/zhouzirui/z-tavern/chatsync/internal/service/chat"
	"github.com/zhouzirui/z-tavern/chatsync/pkg/utils"
)

// Handler answers POST /query: it records the user turn, generates the
// assistant turn and reports which session both landed in.
type Handler struct {
	responder aiService.Responder
	store     chatService.Store
}

// New creates a query handler.
func New(responder aiService.Responder, store chatService.Store) *Handler {
	return &Handler{responder: responder, store: store}
}

// RegisterRoutes registers the query route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/query", h.handleQuery)
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var payload chat.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	query := strings.TrimSpace(payload.Query)
	if query == "" {
		utils.RespondError(w, http.StatusBadRequest, "query is required")
		return
	}

	ctx := r.Context()
	session, err := h.resolveSession(ctx, payload.SessionID, payload.SessionName)
	if err != nil {
		logger.Error("failed to resolve session", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "could not open session")
		return
	}

	history, err := h.store.LoadTranscript(ctx, session.ID)
	if err != nil {
		logger.Error("failed to load conversation", "session", session.ID, "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "could not load conversation")
		return
	}

	if err := h.store.AppendTurn(ctx, session.ID, chat.UserTurn(query)); err != nil {
		logger.Error("failed to save user turn", "session", session.ID, "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "could not save message")
		return
	}

	reply, err := h.responder.Reply(ctx, aiService.Request{
		SessionID: session.ID,
		Backend:   payload.Backend,
		Model:     payload.Model,
		History:   history,
		Query:     query,
	})
	if err != nil {
		logger.Warn("assistant generation failed", "session", session.ID, "error", err)
		utils.RespondError(w, http.StatusBadGateway, fmt.Sprintf("AI generation failed: %v", err))
		return
	}

	if err := h.store.AppendTurn(ctx, session.ID, chat.AssistantTurn(reply)); err != nil {
		logger.Error("failed to save assistant turn", "session", session.ID, "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "could not save reply")
		return
	}

	logger.Info("query answered", "session", session.ID, "backend", payload.Backend, "model", payload.Model)
	utils.RespondJSON(w, http.StatusOK, chat.QueryResponse{SessionID: session.ID, SessionName: session.Name})
}

// resolveSession returns the named session, creating one when the id is
// absent or no longer known to the store.
func (h *Handler) resolveSession(ctx context.Context, sessionID, sessionName string) (chat.Session, error) {
	if sessionID != "" {
		session, err := h.store.GetSession(ctx, sessionID)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, chatService.ErrSessionNotFound) {
			return chat.Session{}, err
		}
		logger.Debug("unknown session on query, creating a new one", "session", sessionID)
	}
	return h.store.CreateSession(ctx, sessionName)
}
