package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-tavern/chatsync/internal/app"
	"github.com/zhouzirui/z-tavern/chatsync/internal/config"
	"github.com/zhouzirui/z-tavern/chatsync/internal/logger"
	"github.com/zhouzirui/z-tavern/chatsync/internal/render"
	"github.com/zhouzirui/z-tavern/chatsync/internal/service/dispatch"
	"github.com/zhouzirui/z-tavern/chatsync/internal/service/theme"
)

// cli carries flag values and the controller built from them.
type cli struct {
	out io.Writer

	apiBase   string
	backend   string
	model     string
	logLevel  string
	logFile   string
	prefsPath string
	timeout   time.Duration

	app      *app.App
	renderer *render.Renderer
	prefs    *theme.BoltStore
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:   "chat",
		Short: "Talk to a chat backend and manage its sessions",
		Long: `chat keeps a local view of a multi-session conversation in step with a
chat backend over HTTP.

Quick Start:
  chat repl                        # interactive session
  chat sessions                    # list chats
  chat send "Hello"                # send into the most recent chat`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.apiBase, "api", "", "Backend base URL (default $CHAT_API_BASE or http://localhost:8000)")
	flags.StringVar(&c.backend, "backend", "", "Provider identifier sent with each query")
	flags.StringVar(&c.model, "model", "", "Model identifier sent with each query")
	flags.StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&c.logFile, "log-file", "", "Write logs to this file instead of stderr")
	flags.StringVar(&c.prefsPath, "prefs", "", "Preference file holding the theme")
	flags.DurationVar(&c.timeout, "timeout", 0, "Per-request timeout (default $CHAT_REQUEST_TIMEOUT or 30s)")

	root.AddCommand(
		c.healthCmd(),
		c.sessionsCmd(),
		c.openCmd(),
		c.newCmd(),
		c.renameCmd(),
		c.deleteCmd(),
		c.sendCmd(),
		c.themeCmd(),
		c.replCmd(),
	)
	return root
}

// setup resolves configuration, flags taking precedence, and builds the app.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	if err := logger.Configure(c.logLevel, c.logFile); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	client := cfg.Client
	if c.apiBase != "" {
		client.APIBase = c.apiBase
	}
	if c.backend != "" {
		client.Backend = c.backend
		if c.model == "" {
			if preset, ok := dispatch.PresetFor(c.backend); ok {
				client.Model = preset.Model
			}
		}
	}
	if c.model != "" {
		client.Model = c.model
	}
	if c.timeout > 0 {
		client.RequestTimeout = c.timeout
	}
	if c.prefsPath != "" {
		client.PreferencesPath = c.prefsPath
	}

	var prefs theme.Store = theme.NewMemoryStore()
	if bolt, err := theme.OpenBoltStore(client.PreferencesPath); err != nil {
		logger.Warn("theme preference will not persist", "path", client.PreferencesPath, "error", err)
	} else {
		c.prefs = bolt
		prefs = bolt
	}

	c.renderer = render.New(c.out)
	c.app = app.New(app.Options{
		APIBase:     client.APIBase,
		Timeout:     client.RequestTimeout,
		Selection:   dispatch.Selection{Backend: client.Backend, Model: client.Model},
		Preferences: prefs,
		Appliers:    []theme.Applier{c.renderer},
	})
	c.app.LoadTheme()

	logger.Debug("client configured", "api", client.APIBase, "backend", client.Backend, "model", client.Model)
	return nil
}

func (c *cli) close() error {
	if c.prefs == nil {
		return nil
	}
	err := c.prefs.Close()
	c.prefs = nil
	return err
}

// status prints the status line from the current snapshot.
func (c *cli) status() {
	snap := c.app.Snapshot()
	c.renderer.Status(snap.Status, snap.Health, snap.Selection)
}
