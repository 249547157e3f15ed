package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-tavern/chatsync/internal/backend"
	"github.com/zhouzirui/z-tavern/chatsync/internal/logger"
	"github.com/zhouzirui/z-tavern/chatsync/internal/model/chat"
	"github.com/zhouzirui/z-tavern/chatsync/internal/service/dispatch"
	"github.com/zhouzirui/z-tavern/chatsync/internal/service/theme"
)

const replHelp = `Type a message to send it. Commands:
  /new                    start an empty chat
  /open <id>              switch to a chat
  /rename [id] <name>     rename a chat (the current one by default)
  /delete [id]            delete a chat (the current one by default)
  /sessions               list chats
  /theme [light|dark]     show, set or toggle the theme
  /provider <name> [model] choose where queries go
  /quit                   leave`

var errQuit = errors.New("quit")

func (c *cli) replCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Chat interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runRepl(cmd.Context())
		},
	}
}

func (c *cli) runRepl(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     historyFile(),
		AutoComplete:    replCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "/quit",
	})
	if err != nil {
		return fmt.Errorf("start line editor: %w", err)
	}
	defer rl.Close()

	if _, err := c.app.Start(ctx); err != nil {
		logger.Warn("starting without a session list", "error", err)
	}
	c.renderer.Transcript(c.app.Snapshot().Active)
	c.status()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := c.handleLine(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			if !backend.IsValidation(err) {
				c.renderer.Error(err)
			}
		}
	}
}

// handleLine runs one repl input: a slash command or a message.
func (c *cli) handleLine(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		c.app.SetInput(line)
		err := c.app.SendInput(ctx)
		c.renderer.Transcript(c.app.Snapshot().Active)
		c.status()
		return err
	}

	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]
	active := c.app.Snapshot().Active.SessionID

	var err error
	switch name {
	case "/quit", "/exit":
		return errQuit
	case "/help":
		fmt.Fprintln(c.out, replHelp)
		return nil
	case "/new":
		err = c.app.NewSession(ctx)
		if err == nil {
			c.renderer.Transcript(c.app.Snapshot().Active)
		}
	case "/open":
		if len(args) != 1 {
			return usage("/open <id>")
		}
		err = c.app.OpenSession(ctx, args[0])
		if err == nil {
			c.renderer.Transcript(c.app.Snapshot().Active)
		}
	case "/rename":
		if len(args) == 0 {
			return usage("/rename [id] <name>")
		}
		id, newName := active, strings.Join(args, " ")
		if len(args) > 1 {
			if _, ok := c.app.FindSession(args[0]); ok {
				id, newName = args[0], strings.Join(args[1:], " ")
			}
		}
		if id == "" {
			return usage("/rename <id> <name>")
		}
		err = c.app.RenameSession(ctx, id, newName)
	case "/delete":
		id := active
		if len(args) > 0 {
			id = args[0]
		}
		if id == "" {
			return usage("/delete <id>")
		}
		label := id
		if s, ok := c.app.FindSession(id); ok {
			label = s.Name
		}
		err = c.app.DeleteSession(ctx, id)
		if err == nil {
			fmt.Fprintf(c.out, "Deleted %s\n", label)
		}
	case "/sessions":
		var sessions []chat.Session
		sessions, err = c.app.RefreshSessions(ctx)
		c.renderer.Sessions(sessions, active)
	case "/theme":
		if len(args) == 0 {
			args = []string{"toggle"}
		}
		var current theme.Theme
		current, err = c.applyTheme(args)
		if err == nil {
			fmt.Fprintf(c.out, "Theme: %s\n", current)
		}
	case "/provider":
		if len(args) == 0 {
			return usage("/provider <name> [model]")
		}
		if len(args) > 1 {
			c.app.SetSelection(dispatch.Selection{Backend: args[0], Model: args[1]})
		} else {
			c.app.SelectProvider(args[0])
		}
	default:
		return fmt.Errorf("unknown command %s, try /help", name)
	}

	c.status()
	return err
}


func usage(form string) error {
	return fmt.Errorf("usage: %s", form)
}

func replCompleter() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("/new"),
		readline.PcItem("/open"),
		readline.PcItem("/rename"),
		readline.PcItem("/delete"),
		readline.PcItem("/sessions"),
		readline.PcItem("/theme", readline.PcItem("light"), readline.PcItem("dark")),
		readline.PcItem("/provider", readline.PcItem("azure"), readline.PcItem("groq")),
		readline.PcItem("/help"),
		readline.PcItem("/quit"),
	)
}

func historyFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	if err := os.MkdirAll(filepath.Join(dir, "chatsync"), 0o755); err != nil {
		return ""
	}
	return filepath.Join(dir, "chatsync", "history")
}
