package session

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/inkbook/session-core/internal/auth"
	"github.com/inkbook/session-core/internal/observability"
	"github.com/inkbook/session-core/internal/remote"
)

// TokenValidator asks the auth server whether a token is still valid.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token, userID string) remote.Validation
}

// TokenMonitor detects local tampering: the persisted token disappearing or
// changing without going through the Controller.
type TokenMonitor struct {
	ctrl      *Controller
	store     TokenStore
	validator TokenValidator
	interval  time.Duration
	logger    *zap.Logger
	metrics   *observability.Metrics
	clock     func() time.Time

	inFlight atomic.Bool
}

// NewTokenMonitor builds a monitor polling every interval.
func NewTokenMonitor(ctrl *Controller, store TokenStore, v TokenValidator, interval time.Duration, logger *zap.Logger, metrics *observability.Metrics) *TokenMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenMonitor{
		ctrl:      ctrl,
		store:     store,
		validator: v,
		interval:  interval,
		logger:    logger,
		metrics:   metrics,
		clock:     ctrl.clock,
	}
}

// Start begins polling and returns the handle that stops it.
func (m *TokenMonitor) Start() StopFunc {
	return poller{name: "token_monitor", interval: m.interval, check: m.Check, logger: m.logger}.start()
}

// Check runs one poll. It is a no-op while another poll is still running.
func (m *TokenMonitor) Check(ctx context.Context) {
	if !m.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer m.inFlight.Store(false)

	snap := m.ctrl.Snapshot()
	if !snap.Authenticated || snap.Loading || snap.Token == "" {
		m.metrics.RecordMonitorCheck("skipped")
		return
	}

	stored, ok := m.store.Read(ctx)
	if ctx.Err() != nil {
		return
	}
	switch {
	case !ok:
		m.metrics.RecordMonitorCheck("removed")
		m.ctrl.ForceLogout(ctx, snap.Generation, ReasonTokenRemoved)
		return
	case stored == snap.Token:
		m.metrics.RecordMonitorCheck("unchanged")
		return
	}

	m.metrics.RecordMonitorCheck("changed")
	m.logger.Info("persisted token changed outside the session",
		zap.String("user_id", snap.UserID),
		zap.String("token_fp", auth.Fingerprint(stored)))

	claims, err := auth.Decode(stored)
	if err != nil {
		m.ctrl.ForceLogout(ctx, snap.Generation, ReasonTokenCorrupted)
		return
	}
	if auth.IsExpired(claims, m.clock()) {
		m.ctrl.ForceLogout(ctx, snap.Generation, ReasonTokenExpired)
		return
	}

	v := m.validator.ValidateToken(ctx, stored, snap.UserID)
	if ctx.Err() != nil {
		return
	}
	if !v.Valid {
		m.ctrl.ForceLogout(ctx, snap.Generation, ReasonTokenRejected)
		return
	}

	next := stored
	if v.NewToken != "" {
		next = v.NewToken
	}
	if err := m.ctrl.AdoptToken(ctx, snap.Generation, next); err != nil {
		m.logger.Warn("adopting changed token failed", zap.Error(err))
	}
}
