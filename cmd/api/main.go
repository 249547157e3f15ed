package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/z-tavern/chatsync/internal/config"
	"github.com/zhouzirui/z-tavern/chatsync/internal/handler"
	"github.com/zhouzirui/z-tavern/chatsync/internal/logger"
	"github.com/zhouzirui/z-tavern/chatsync/internal/service/ai"
	"github.com/zhouzirui/z-tavern/chatsync/internal/service/chat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded, using system environment only", "error", err)
	}

	if err := logger.Configure("", os.Getenv("CHAT_LOG_FILE")); err != nil {
		logger.Fatal("failed to configure logging", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}

	store, err := openStore(cfg.Server)
	if err != nil {
		logger.Fatal("failed to open conversation store", "driver", cfg.Server.StoreDriver, "error", err)
	}
	defer store.Close()

	var responder ai.Responder = ai.EchoResponder{}
	if cfg.AI.Enabled() {
		svc, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			logger.Warn("failed to initialize AI service, replying with echoes", "error", err)
		} else {
			responder = svc
			logger.Info("AI service initialized", "model", cfg.AI.Model)
		}
	} else {
		logger.Info("Ark credentials not configured, replying with echoes")
	}

	router := handler.NewRouter(store, responder, cfg.Server.CORS)

	startServer(ctx, cfg.Server, router)
}

func openStore(cfg config.ServerConfig) (chat.Store, error) {
	if cfg.StoreDriver == config.StoreSQLite {
		logger.Info("using sqlite conversation store", "path", cfg.StorePath)
		return chat.OpenSQLiteStore(cfg.StorePath)
	}
	logger.Info("using in-memory conversation store")
	return chat.NewMemoryStore(), nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("chat backend listening", "addr", addr)
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", "error", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
