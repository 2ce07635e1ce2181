// Package auth manages the CDN session token used to authorize
// content-system requests. Login/OAuth flow internals are explicitly out
// of scope (spec.md Non-goals); this package only stores and refreshes a
// token handed to it by a caller, and exposes the token provider contract
// the CDN client depends on.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"galaxydl/internal/galaxyerr"
	"galaxydl/internal/logging"
)

// TokenProvider is the contract pkg/cdnclient relies on to attach
// Authorization headers and to recover from a 401 by refreshing once.
type TokenProvider interface {
	Token() string
	Refresh(ctx context.Context) error
}

// Session is the on-disk shape of auth.json, compatible with the fields a
// GOG OAuth exchange would populate (access_token, refresh_token, user_id,
// expires_at). How those fields get populated is outside this package.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	UserID       string    `json:"user_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (s Session) expired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// FileStore is a file-backed TokenProvider reading/writing auth.json under
// the user's config directory. RefreshFunc performs the actual token
// exchange (HTTP call against GOG's auth endpoint); it is injected so this
// package never has to implement login flow internals itself.
type FileStore struct {
	Path        string
	RefreshFunc func(ctx context.Context, refreshToken string) (Session, error)

	mu      sync.RWMutex
	session Session
}

// DefaultPath returns {XDG_CONFIG_HOME or %APPDATA%}/galaxy-dl/auth.json,
// falling back to ~/.config/galaxy-dl/auth.json.
func DefaultPath() (string, error) {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "galaxy-dl", "auth.json"), nil
		}
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "galaxy-dl", "auth.json"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "galaxy-dl", "auth.json"), nil
}

// LoadFileStore reads path (defaulting via DefaultPath when empty) and
// returns a ready FileStore.
func LoadFileStore(path string, refresh func(ctx context.Context, refreshToken string) (Session, error)) (*FileStore, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	fs := &FileStore{Path: path, RefreshFunc: refresh}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fs, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &fs.session); err != nil {
		return nil, fmt.Errorf("auth: parse %s: %w", path, err)
	}
	return fs, nil
}

// Token returns the current access token without attempting a refresh.
func (fs *FileStore) Token() string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.session.AccessToken
}

// Session returns a copy of the loaded session.
func (fs *FileStore) Session() Session {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.session
}

// SetSession replaces the stored session and persists it to disk.
func (fs *FileStore) SetSession(s Session) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.session = s
	return fs.persistLocked()
}

// Refresh exchanges the stored refresh token for a new session if the
// access token is expired (or unset). It is safe for concurrent callers:
// only the first caller to observe an expired token performs the exchange.
func (fs *FileStore) Refresh(ctx context.Context) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.session.expired() && fs.session.AccessToken != "" {
		return nil
	}
	refreshToken := fs.session.RefreshToken

	if fs.RefreshFunc == nil || refreshToken == "" {
		return galaxyerr.ErrAuthExpired
	}

	next, err := fs.RefreshFunc(ctx, refreshToken)
	if err != nil {
		logging.GlobalLogger.Warn("token refresh failed", logging.Fields{"error": err.Error()})
		return fmt.Errorf("%w: %v", galaxyerr.ErrAuthExpired, err)
	}

	fs.session = next
	return fs.persistLocked()
}

func (fs *FileStore) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(fs.Path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(fs.session, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(fs.Path, data, 0o600)
}

// Static wraps a fixed token for tests and for flows (e.g. --token on the
// CLI) where no refresh is possible.
type Static string

func (s Static) Token() string                        { return string(s) }
func (s Static) Refresh(ctx context.Context) error     { return galaxyerr.ErrAuthExpired }
