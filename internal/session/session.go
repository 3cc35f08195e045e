// Package session reads and writes the signed-in user and auth token of a
// browser session.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Sung-star/storefront-checkout/internal/backend"
	"github.com/Sung-star/storefront-checkout/internal/logger"
	"github.com/Sung-star/storefront-checkout/internal/storage"
)

// Profile is the stored user. Stores written by older clients may use any
// of fullName, name or username for the display name.
type Profile struct {
	ID        backend.ID `json:"id,omitempty"`
	Username  string     `json:"username,omitempty"`
	FullName  string     `json:"fullName,omitempty"`
	Name      string     `json:"name,omitempty"`
	Email     string     `json:"email,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Role      string     `json:"role,omitempty"`
	LoginTime string     `json:"loginTime,omitempty"`
}

// DisplayName is fullName, else name, else username.
func (p Profile) DisplayName() string {
	for _, s := range []string{p.FullName, p.Name, p.Username} {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// Session is the state loaded for one request.
type Session struct {
	ID        string   `json:"-"`
	Profile   *Profile `json:"user"`
	AuthToken string   `json:"-"`
}

// LoggedIn reports whether the session carries a usable token.
func (s Session) LoggedIn() bool { return s.AuthToken != "" }

// Authenticator exchanges credentials with the backend.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*backend.LoginResult, error)
}

// Manager loads and mutates sessions over a KV.
type Manager struct {
	kv      storage.KV
	auth    Authenticator
	tokens  *TokenParser
	log     *zap.Logger
	nowFunc func() time.Time
}

func NewManager(kv storage.KV, auth Authenticator, tokens *TokenParser, log *zap.Logger) *Manager {
	if tokens == nil {
		tokens = NewTokenParser("")
	}
	return &Manager{
		kv:      kv,
		auth:    auth,
		tokens:  tokens,
		log:     logger.OrNop(log),
		nowFunc: time.Now,
	}
}

// Load reads the profile from "user", falling back to "user_auth", and the
// token from "auth_token". It never fails; unreadable values are skipped.
func (m *Manager) Load(ctx context.Context, sessionID string) Session {
	s := Session{ID: sessionID}

	for _, key := range []string{storage.KeyUser, storage.KeyUserAuth} {
		if p := m.readProfile(ctx, sessionID, key); p != nil {
			s.Profile = p
			break
		}
	}

	raw, err := m.kv.Get(ctx, sessionID, storage.KeyAuthToken)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.log.Warn("load auth token failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		return s
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return s
	}

	claims, err := m.tokens.Parse(token)
	if err != nil {
		m.log.Info("dropping invalid auth token", zap.String("session_id", sessionID), zap.Error(err))
		return s
	}
	s.AuthToken = token
	if s.Profile == nil && claims != nil {
		s.Profile = claims.Profile()
	}
	return s
}

func (m *Manager) readProfile(ctx context.Context, sessionID, key string) *Profile {
	raw, err := m.kv.Get(ctx, sessionID, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.log.Warn("load profile failed", zap.String("session_id", sessionID), zap.String("key", key), zap.Error(err))
		}
		return nil
	}
	var p *Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		m.log.Warn("discarding unreadable profile", zap.String("session_id", sessionID), zap.String("key", key), zap.Error(err))
		return nil
	}
	return p
}

// Login authenticates against the backend and stores user_auth and auth_token.
func (m *Manager) Login(ctx context.Context, sessionID, username, password string) (Session, error) {
	res, err := m.auth.Login(ctx, username, password)
	if err != nil {
		return Session{ID: sessionID}, fmt.Errorf("login: %w", err)
	}

	p := &Profile{
		ID:        res.ID,
		Username:  res.Username,
		Email:     res.Email,
		FullName:  res.FullName,
		Role:      res.Role,
		LoginTime: m.nowFunc().UTC().Format(time.RFC3339),
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return Session{ID: sessionID}, fmt.Errorf("marshal profile: %w", err)
	}
	if err := m.kv.Put(ctx, sessionID, storage.KeyUserAuth, raw); err != nil {
		return Session{ID: sessionID}, fmt.Errorf("store profile: %w", err)
	}
	if err := m.kv.Put(ctx, sessionID, storage.KeyAuthToken, []byte(res.Token)); err != nil {
		return Session{ID: sessionID}, fmt.Errorf("store token: %w", err)
	}
	return Session{ID: sessionID, Profile: p, AuthToken: res.Token}, nil
}

// Logout removes user_auth and auth_token.
func (m *Manager) Logout(ctx context.Context, sessionID string) error {
	if err := m.kv.Delete(ctx, sessionID, storage.KeyAuthToken, storage.KeyUserAuth); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// CheckUnauthorized clears the stored credentials when err is a backend 401
// and returns err unchanged.
func (m *Manager) CheckUnauthorized(ctx context.Context, sessionID string, err error) error {
	if !errors.Is(err, backend.ErrUnauthorized) {
		return err
	}
	if clearErr := m.Logout(ctx, sessionID); clearErr != nil {
		m.log.Error("clear credentials after 401 failed", zap.String("session_id", sessionID), zap.Error(clearErr))
	}
	return err
}
