// Package tokenstore persists the raw session token across independent backends.
package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/inkbook/session-core/internal/auth"
)

var (
	// ErrNoBackend is returned by Write when no backend accepted the token.
	ErrNoBackend = errors.New("no token backend available")
	// ErrBackendUnavailable marks a backend that is not configured in this environment.
	ErrBackendUnavailable = errors.New("token backend unavailable")
)

// Backend is a single persistence target for the token.
// Get returns "" with a nil error when nothing is stored.
type Backend interface {
	Name() string
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, token string) error
	Delete(ctx context.Context) error
}

// Store fans writes and clears out to every backend and reads from the first
// backend that yields a token. Backend failures are logged, never fatal to the
// operation on the remaining backends.
type Store struct {
	backends []Backend
	logger   *zap.Logger
}

// NewStore builds a store. Backends are listed in read preference order; nil
// entries are skipped so callers can pass optional backends directly.
func NewStore(logger *zap.Logger, backends ...Backend) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	active := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b != nil {
			active = append(active, b)
		}
	}
	return &Store{backends: active, logger: logger}
}

// Write persists token to every backend before returning.
func (s *Store) Write(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("write empty token")
	}
	written := 0
	for _, b := range s.backends {
		if err := b.Set(ctx, token); err != nil {
			s.logger.Warn("token backend write failed",
				zap.String("backend", b.Name()),
				zap.String("token_fp", auth.Fingerprint(token)),
				zap.Error(err))
			continue
		}
		written++
	}
	if written == 0 {
		return ErrNoBackend
	}
	return nil
}

// Read returns the persisted token, preferring earlier backends.
func (s *Store) Read(ctx context.Context) (string, bool) {
	for _, b := range s.backends {
		token, err := b.Get(ctx)
		if err != nil {
			s.logger.Warn("token backend read failed", zap.String("backend", b.Name()), zap.Error(err))
			continue
		}
		if token != "" {
			return token, true
		}
	}
	return "", false
}

// Clear removes the token from every backend. It never fails.
func (s *Store) Clear(ctx context.Context) {
	for _, b := range s.backends {
		if err := b.Delete(ctx); err != nil {
			s.logger.Warn("token backend clear failed", zap.String("backend", b.Name()), zap.Error(err))
		}
	}
}

// Backends lists the active backend names.
func (s *Store) Backends() []string {
	names := make([]string, 0, len(s.backends))
	for _, b := range s.backends {
		names = append(names, b.Name())
	}
	return names
}
