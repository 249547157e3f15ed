package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/z-tavern/chatsync/internal/service/theme"
)

func (c *cli) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check whether the backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result := c.app.CheckHealth(cmd.Context())
			c.status()
			if !result.Ready {
				return errors.New(result.Reason)
			}
			return nil
		},
	}
}

func (c *cli) sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"ls"},
		Short:   "List chats, most recent first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := c.app.RefreshSessions(cmd.Context())
			if err != nil {
				return err
			}
			c.renderer.Sessions(sessions, "")
			return nil
		},
	}
}

func (c *cli) openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <session-id>",
		Short: "Show a chat's full history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.OpenSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			c.renderer.Transcript(c.app.Snapshot().Active)
			return nil
		},
	}
}

func (c *cli) newCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Start an empty chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.NewSession(cmd.Context()); err != nil {
				return err
			}
			active := c.app.Snapshot().Active
			fmt.Fprintf(c.out, "Created %s (%s)\n", active.Name, active.SessionID)
			return nil
		},
	}
}

func (c *cli) renameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <session-id> <name>",
		Short: "Rename a chat",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.Join(args[1:], " ")
			if err := c.app.RenameSession(cmd.Context(), args[0], name); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Renamed %s to %s\n", args[0], strings.TrimSpace(name))
			return nil
		},
	}
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <session-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a chat",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.DeleteSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Deleted %s\n", args[0])
			return nil
		},
	}
}

func (c *cli) sendCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send a message and print the updated chat",
		Long: `Send a message into a chat. Without --session the backend creates a new
chat for it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if sessionID != "" {
				if err := c.app.OpenSession(ctx, sessionID); err != nil {
					return err
				}
			}
			err := c.app.SendMessage(ctx, strings.Join(args, " "))
			c.renderer.Transcript(c.app.Snapshot().Active)
			return err
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Chat to send into")
	return cmd
}

func (c *cli) themeCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "theme [light|dark|toggle]",
		Short:     "Show or change the color theme",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(theme.Light), string(theme.Dark), "toggle"},
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := c.applyTheme(args)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Theme: %s\n", current)
			return nil
		},
	}
}

// applyTheme handles "", "toggle" or an explicit theme name.
func (c *cli) applyTheme(args []string) (theme.Theme, error) {
	if len(args) == 0 {
		return c.app.Snapshot().Theme, nil
	}
	if strings.EqualFold(args[0], "toggle") {
		return c.app.ToggleTheme()
	}
	t, err := theme.Parse(args[0])
	if err != nil {
		return "", err
	}
	return t, c.app.SetTheme(t)
}
