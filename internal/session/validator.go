package session

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/inkbook/session-core/internal/remote"
)

// PeriodicValidator re-asks the auth server about the current token on a
// coarse cadence and forces a logout on any negative answer.
type PeriodicValidator struct {
	ctrl      *Controller
	validator TokenValidator
	interval  time.Duration
	logger    *zap.Logger

	inFlight atomic.Bool
}

// NewPeriodicValidator builds a validator polling every interval.
func NewPeriodicValidator(ctrl *Controller, v TokenValidator, interval time.Duration, logger *zap.Logger) *PeriodicValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PeriodicValidator{ctrl: ctrl, validator: v, interval: interval, logger: logger}
}

// Start begins polling and returns the handle that stops it.
func (p *PeriodicValidator) Start() StopFunc {
	return poller{name: "periodic_validator", interval: p.interval, check: p.Check, logger: p.logger}.start()
}

// Check runs one validation round.
func (p *PeriodicValidator) Check(ctx context.Context) {
	if !p.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer p.inFlight.Store(false)

	snap := p.ctrl.Snapshot()
	if !snap.Authenticated || snap.Loading || snap.Token == "" {
		return
	}

	v := p.validator.ValidateToken(ctx, snap.Token, snap.UserID)
	if ctx.Err() != nil {
		return
	}
	if !v.Valid {
		reason := ReasonRemoteInvalid
		if v.Reason == remote.ReasonConnectionError {
			reason = ReasonConnectionError
		}
		p.ctrl.ForceLogout(ctx, snap.Generation, reason)
		return
	}

	if v.NewToken != "" && v.NewToken != snap.Token {
		if err := p.ctrl.RotateToken(ctx, snap.Generation, v.NewToken); err != nil {
			p.logger.Warn("token rotation failed", zap.Error(err))
		}
		return
	}
	if err := p.ctrl.RefreshProfileAt(ctx, snap.Generation); err != nil {
		p.logger.Warn("profile refresh failed", zap.Error(err))
	}
}
