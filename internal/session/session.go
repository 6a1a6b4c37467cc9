package session

import (
	"context"
	"maps"
	"time"

	"github.com/desertthunder/makin/internal/shared"
)

// Session is the state attached to one browser.
type Session struct {
	ID        string
	Values    map[string]string
	ExpiresAt time.Time

	modified bool
	deleted  bool
}

// New creates an empty, unsaved session expiring after maxAge.
func New(maxAge time.Duration) *Session {
	return &Session{
		ID:        shared.GenerateID(),
		Values:    map[string]string{},
		ExpiresAt: time.Now().UTC().Add(maxAge),
	}
}

// Get returns the value for key, or "".
func (s *Session) Get(key string) string {
	return s.Values[key]
}

// Set stores value under key.
func (s *Session) Set(key, value string) {
	s.Values[key] = value
	s.modified = true
}

// Pop returns the value for key and removes it.
func (s *Session) Pop(key string) string {
	v, ok := s.Values[key]
	if ok {
		delete(s.Values, key)
		s.modified = true
	}
	return v
}

// Destroy marks the session for removal from its store.
func (s *Session) Destroy() {
	s.deleted = true
	s.modified = true
}

// Modified reports whether the session changed during the request.
func (s *Session) Modified() bool {
	return s.modified
}

func (s *Session) expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

func (s *Session) clone() *Session {
	return &Session{ID: s.ID, Values: maps.Clone(s.Values), ExpiresAt: s.ExpiresAt}
}

// Store persists sessions. Load returns [shared.ErrNoSession] for unknown or expired ids.
type Store interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

type contextKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the request's session, or nil outside the [Manager] middleware.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}
