// Package theme persists the light/dark preference across sessions and restarts.
package theme

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/zhouzirui/z-tavern/chatsync/internal/logger"
)

// Theme is the presentation palette.
type Theme string

const (
	Light Theme = "light"
	Dark  Theme = "dark"
)

// Key is the single durable key holding the preference.
const Key = "theme"

// ErrInvalidTheme rejects values other than light and dark.
var ErrInvalidTheme = errors.New("theme must be light or dark")

// Parse accepts "light" or "dark", case-insensitively.
func Parse(value string) (Theme, error) {
	switch Theme(strings.ToLower(strings.TrimSpace(value))) {
	case Light:
		return Light, nil
	case Dark:
		return Dark, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTheme, value)
	}
}

// Opposite returns the other theme.
func (t Theme) Opposite() Theme {
	if t == Dark {
		return Light
	}
	return Dark
}

// Store is a durable string key/value store.
type Store interface {
	Get(key string) (string, bool, error)
	Put(key, value string) error
}

// Applier receives the theme whenever it is loaded or changed.
type Applier interface {
	ApplyTheme(t Theme)
}

// ApplierFunc adapts a function to Applier.
type ApplierFunc func(t Theme)

func (f ApplierFunc) ApplyTheme(t Theme) { f(t) }

// Preference is the theme setting. It knows nothing about sessions.
type Preference struct {
	store Store

	mu       sync.Mutex
	current  Theme
	appliers []Applier
}

// NewPreference starts at Light until Load is called.
func NewPreference(store Store, appliers ...Applier) *Preference {
	return &Preference{store: store, current: Light, appliers: appliers}
}

// AddApplier registers another presentation target.
func (p *Preference) AddApplier(a Applier) {
	p.mu.Lock()
	p.appliers = append(p.appliers, a)
	p.mu.Unlock()
}

// Load reads the stored theme, falling back to Light when it is missing,
// unreadable or not a known value, and applies it.
func (p *Preference) Load() Theme {
	t := Light
	raw, ok, err := p.store.Get(Key)
	switch {
	case err != nil:
		logger.Warn("theme preference unreadable, using light", "error", err)
	case ok:
		if parsed, perr := Parse(raw); perr == nil {
			t = parsed
		} else {
			logger.Debug("ignoring stored theme", "value", raw)
		}
	}
	p.apply(t)
	return t
}

// Set stores t durably and applies it.
func (p *Preference) Set(t Theme) error {
	if _, err := Parse(string(t)); err != nil {
		return err
	}
	if err := p.store.Put(Key, string(t)); err != nil {
		return fmt.Errorf("save theme: %w", err)
	}
	p.apply(t)
	return nil
}

// Toggle flips between light and dark.
func (p *Preference) Toggle() (Theme, error) {
	next := p.Current().Opposite()
	if err := p.Set(next); err != nil {
		return p.Current(), err
	}
	return next, nil
}

// Current returns the theme last loaded or set.
func (p *Preference) Current() Theme {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Preference) apply(t Theme) {
	p.mu.Lock()
	p.current = t
	appliers := append([]Applier(nil), p.appliers...)
	p.mu.Unlock()

	for _, a := range appliers {
		a.ApplyTheme(t)
	}
}
