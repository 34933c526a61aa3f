// Package session holds the signed-in user and bearer token. A Session is an
// explicit object handed to whoever needs it; there is no process-wide
// current user.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/akeditz/storefront/internal/apiclient"
	"github.com/akeditz/storefront/internal/domain"
	"github.com/akeditz/storefront/internal/logger"
)

var (
	ErrNotFound           = errors.New("session not found")
	ErrMissingCredentials = errors.New("email and password are required")
)

// Record is the persisted form of a session.
type Record struct {
	Token     string       `json:"token" yaml:"token"`
	User      *domain.User `json:"user,omitempty" yaml:"user,omitempty"`
	CreatedAt time.Time    `json:"created_at" yaml:"created_at"`
}

// Store persists session records by id.
type Store interface {
	Load(ctx context.Context, id string) (*Record, error)
	Save(ctx context.Context, id string, rec *Record) error
	Delete(ctx context.Context, id string) error

	// DeleteIfToken removes the record only while it still holds token and
	// reports whether it did.
	DeleteIfToken(ctx context.Context, id, token string) (bool, error)
}

// Authenticator is the part of the backend client a session talks to.
type Authenticator interface {
	Login(ctx context.Context, creds apiclient.Credentials) (*apiclient.AuthResult, error)
	Register(ctx context.Context, reg apiclient.Registration) (*apiclient.AuthResult, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*domain.User, error)
}

// Session is a single-writer, many-reader holder of the current user and
// token.
type Session struct {
	id    string
	store Store

	mu        sync.RWMutex
	token     string
	user      *domain.User
	createdAt time.Time
	listeners []func()
}

// New returns an anonymous session with the given id.
func New(id string, store Store) *Session {
	return &Session{id: id, store: store}
}

// Open restores the session stored under id. A missing record yields an
// anonymous session.
func Open(ctx context.Context, id string, store Store) (*Session, error) {
	s := New(id, store)
	rec, err := store.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	s.token = rec.Token
	s.user = rec.User
	s.createdAt = rec.CreatedAt
	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

// Token implements apiclient.TokenSource.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns a copy of the cached user, or nil when signed out.
func (s *Session) User() *domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// OnUnauthorized registers fn to run when the backend rejects the session's
// token.
func (s *Session) OnUnauthorized(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Client returns api bound to this session's token and 401 handling.
func (s *Session) Client(api *apiclient.Client) *apiclient.Client {
	return api.WithAuth(s, s.HandleUnauthorized)
}

func (s *Session) Login(ctx context.Context, api Authenticator, email, password string) (*domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}
	res, err := api.Login(ctx, apiclient.Credentials{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	return s.establish(ctx, res)
}

func (s *Session) Register(ctx context.Context, api Authenticator, name, email, password string) (*domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}
	res, err := api.Register(ctx, apiclient.Registration{Name: strings.TrimSpace(name), Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	return s.establish(ctx, res)
}

func (s *Session) establish(ctx context.Context, res *apiclient.AuthResult) (*domain.User, error) {
	if res.Token == "" {
		return nil, fmt.Errorf("login response carried no token")
	}
	user := res.User

	s.mu.Lock()
	s.token = res.Token
	s.user = &user
	s.createdAt = time.Now().UTC()
	rec := s.recordLocked()
	s.mu.Unlock()

	if err := s.store.Save(ctx, s.id, rec); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	u := user
	return &u, nil
}

// Refresh re-reads the current user from the backend.
func (s *Session) Refresh(ctx context.Context, api Authenticator) (*domain.User, error) {
	user, err := api.Me(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.token == "" {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	s.user = user
	rec := s.recordLocked()
	s.mu.Unlock()

	if err := s.store.Save(ctx, s.id, rec); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	u := *user
	return &u, nil
}

// Logout tells the backend and always clears local state, whatever the
// backend answers.
func (s *Session) Logout(ctx context.Context, api Authenticator) {
	if s.Token() != "" {
		if err := api.Logout(ctx); err != nil {
			logger.New(ctx).LogWarnf("session.logout", "backend logout failed, clearing locally: %v", err)
		}
	}
	s.clear(ctx)
}

// HandleUnauthorized clears the session if token is still the current one.
// The stored record is only removed while it holds token, so a 401 for an
// older token never signs out a newer login on the same id. Listeners are
// notified once per token across every Session opened on the id.
func (s *Session) HandleUnauthorized(ctx context.Context, token string) {
	s.mu.Lock()
	if token == "" || s.token != token {
		s.mu.Unlock()
		return
	}
	s.token = ""
	s.user = nil
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()

	deleted, err := s.store.DeleteIfToken(ctx, s.id, token)
	if err != nil {
		logger.New(ctx).LogWarnf("session.unauthorized", "delete session %s: %v", s.id, err)
		return
	}
	if !deleted {
		return
	}
	for _, fn := range listeners {
		fn()
	}
}

func (s *Session) clear(ctx context.Context) {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.mu.Unlock()

	if err := s.store.Delete(ctx, s.id); err != nil {
		logger.New(ctx).LogWarnf("session.clear", "delete session %s: %v", s.id, err)
	}
}

func (s *Session) recordLocked() *Record {
	rec := &Record{Token: s.token, CreatedAt: s.createdAt}
	if s.user != nil {
		u := *s.user
		rec.User = &u
	}
	return rec
}
