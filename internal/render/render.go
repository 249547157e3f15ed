// Package render draws sessions, transcripts and the status line for a
// terminal, using a light or dark palette.
package render

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/z-tavern/chatsync/internal/model/chat"
	"github.com/zhouzirui/z-tavern/chatsync/internal/service/dispatch"
	"github.com/zhouzirui/z-tavern/chatsync/internal/service/health"
	"github.com/zhouzirui/z-tavern/chatsync/internal/service/theme"
)

// Palette is the set of styles for one theme.
type Palette struct {
	Header    lipgloss.Style
	Active    lipgloss.Style
	Name      lipgloss.Style
	ID        lipgloss.Style
	Date      lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	Status    lipgloss.Style
	Error     lipgloss.Style
	Muted     lipgloss.Style
}

func lightPalette() Palette {
	return Palette{
		Header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("25")),
		Active:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("161")),
		Name:      lipgloss.NewStyle().Foreground(lipgloss.Color("235")),
		ID:        lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true),
		Date:      lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		User:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("26")),
		Assistant: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("28")),
		Status:    lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("160")),
		Muted:     lipgloss.NewStyle().Foreground(lipgloss.Color("246")),
	}
}

func darkPalette() Palette {
	return Palette{
		Header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62")),
		Active:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		Name:      lipgloss.NewStyle().Foreground(lipgloss.Color("255")),
		ID:        lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true),
		Date:      lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
		User:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75")),
		Assistant: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		Status:    lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		Muted:     lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// Renderer writes styled output. It implements theme.Applier.
type Renderer struct {
	out io.Writer
	now func() time.Time

	mu      sync.RWMutex
	theme   theme.Theme
	palette Palette
}

// New returns a renderer writing to out in the light palette.
func New(out io.Writer) *Renderer {
	return &Renderer{
		out:     out,
		now:     time.Now,
		theme:   theme.Light,
		palette: lightPalette(),
	}
}

// ApplyTheme switches palettes.
func (r *Renderer) ApplyTheme(t theme.Theme) {
	p := lightPalette()
	if t == theme.Dark {
		p = darkPalette()
	}
	r.mu.Lock()
	r.theme = t
	r.palette = p
	r.mu.Unlock()
}

// Theme returns the palette currently in use.
func (r *Renderer) Theme() theme.Theme {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.theme
}

func (r *Renderer) styles() Palette {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.palette
}

// Sessions lists the directory, marking the active entry.
func (r *Renderer) Sessions(sessions []chat.Session, activeID string) {
	p := r.styles()
	if len(sessions) == 0 {
		fmt.Fprintln(r.out, p.Muted.Render("No chats yet"))
		return
	}

	fmt.Fprintln(r.out, p.Header.Render(fmt.Sprintf("%d chat(s)", len(sessions))))
	now := r.now()
	for _, s := range sessions {
		marker := "  "
		name := p.Name.Render(s.Name)
		if s.ID == activeID {
			marker = p.Active.Render("> ")
			name = p.Active.Render(s.Name)
		}
		fmt.Fprintf(r.out, "%s%s  %s  %s\n", marker, name, p.ID.Render(s.ID), p.Date.Render(relativeTime(s.UpdatedAt, now)))
	}
}

// Transcript prints the active session's history.
func (r *Renderer) Transcript(active chat.ActiveSession) {
	p := r.styles()
	title := active.Name
	if active.SessionID == "" {
		title += " (unsaved)"
	}
	fmt.Fprintln(r.out, p.Header.Render(title))

	if len(active.History) == 0 {
		fmt.Fprintln(r.out, p.Muted.Render("Say hello to start the conversation."))
		return
	}
	for _, turn := range active.History {
		r.Turn(turn)
	}
}

// Turn prints one message.
func (r *Renderer) Turn(turn chat.Turn) {
	p := r.styles()
	label := p.User.Render("you")
	if turn.Role == chat.RoleAssistant {
		label = p.Assistant.Render("assistant")
	}
	fmt.Fprintf(r.out, "%s: %s\n", label, turn.Content)
}

// Status prints the status line together with liveness and provider.
func (r *Renderer) Status(message string, state health.State, sel dispatch.Selection) {
	p := r.styles()
	style := p.Status
	if state == health.Failed {
		style = p.Error
	}

	provider := dispatch.LabelFor(sel)
	if provider == "" {
		provider = sel.Backend + " · " + sel.Model
	}
	fmt.Fprintf(r.out, "%s  %s\n", style.Render("["+state.String()+"] "+message), p.Muted.Render(provider))
}

// Error prints err in the error style.
func (r *Renderer) Error(err error) {
	fmt.Fprintln(r.out, r.styles().Error.Render(strings.TrimSpace(err.Error())))
}

func relativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	default:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	}
}
