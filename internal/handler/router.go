package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/z-tavern/chatsync/internal/handler/chat"
	"github.com/zhouzirui/z-tavern/chatsync/internal/handler/query"
	middlewarePkg "github.com/zhouzirui/z-tavern/chatsync/internal/middleware"
	aiService "github.com/zhouzirui/z-tavern/chatsync/internal/service/ai"
	chatService "github.com/zhouzirui/z-tavern/chatsync/internal/service/chat"
	"github.com/zhouzirui/z-tavern/chatsync/pkg/utils"
)

// NewRouter wires HTTP routes to the conversation store and responder.
func NewRouter(store chatService.Store, responder aiService.Responder, cors bool) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if cors {
		r.Use(middlewarePkg.CORS)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	chat.New(store).RegisterRoutes(r)

	if responder == nil {
		responder = aiService.EchoResponder{}
	}
	query.New(responder, store).RegisterRoutes(r)

	return r
}
