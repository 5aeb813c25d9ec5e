package config

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

const (
	PrefServerURL  = "server_url"
	PrefRememberMe = "remember_me"
)

// PreferenceStore persists the small amount of local client state.
type PreferenceStore interface {
	Preference(ctx context.Context, key string) (string, bool, error)
	SetPreference(ctx context.Context, key, value string) error
}

// Snapshot is an immutable copy of the user-editable settings.
type Snapshot struct {
	ServerURL  string
	RememberMe bool
}

// Settings holds the user-editable settings. Readers take a Snapshot at call
// time, so a request in flight keeps the URL it started with.
type Settings struct {
	mu        sync.RWMutex
	cur       Snapshot
	store     PreferenceStore
	listeners map[int]func(Snapshot)
	nextID    int
}

func NewSettings(defaultURL string, store PreferenceStore) *Settings {
	return &Settings{
		cur:       Snapshot{ServerURL: strings.TrimRight(defaultURL, "/")},
		store:     store,
		listeners: map[int]func(Snapshot){},
	}
}

// Load overlays persisted preferences on top of the defaults.
func (s *Settings) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	next := s.Snapshot()
	if v, ok, err := s.store.Preference(ctx, PrefServerURL); err != nil {
		return fmt.Errorf("load %s: %w", PrefServerURL, err)
	} else if ok && v != "" {
		next.ServerURL = strings.TrimRight(v, "/")
	}
	if v, ok, err := s.store.Preference(ctx, PrefRememberMe); err != nil {
		return fmt.Errorf("load %s: %w", PrefRememberMe, err)
	} else if ok {
		next.RememberMe, _ = strconv.ParseBool(v)
	}
	s.apply(next)
	return nil
}

func (s *Settings) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

func (s *Settings) ServerURL() string { return s.Snapshot().ServerURL }

// SetServerURL validates, persists and publishes a new base URL.
func (s *Settings) SetServerURL(ctx context.Context, raw string) error {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server url %q", raw)
	}
	if s.store != nil {
		if err := s.store.SetPreference(ctx, PrefServerURL, raw); err != nil {
			return err
		}
	}
	next := s.Snapshot()
	next.ServerURL = raw
	s.apply(next)
	return nil
}

func (s *Settings) SetRememberMe(ctx context.Context, v bool) error {
	if s.store != nil {
		if err := s.store.SetPreference(ctx, PrefRememberMe, strconv.FormatBool(v)); err != nil {
			return err
		}
	}
	next := s.Snapshot()
	next.RememberMe = v
	s.apply(next)
	return nil
}

// OnReload registers fn to run after every settings change.
func (s *Settings) OnReload(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Settings) apply(next Snapshot) {
	s.mu.Lock()
	changed := next != s.cur
	s.cur = next
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range fns {
		fn(next)
	}
}
