// Package session owns the client-side authentication lifecycle: login,
// logout, hydration, reauthentication and the background checks that force a
// logout when the persisted token is tampered with or revoked.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/inkbook/session-core/internal/auth"
	"github.com/inkbook/session-core/internal/domain"
	"github.com/inkbook/session-core/internal/events"
	"github.com/inkbook/session-core/internal/observability"
	"github.com/inkbook/session-core/internal/remote"
	"github.com/inkbook/session-core/pkg/util/errorutil"
)

// Forced logout reasons, also used as metric labels.
const (
	ReasonTokenRemoved    = "token_removed"
	ReasonTokenCorrupted  = "token_corrupted"
	ReasonTokenExpired    = "token_expired"
	ReasonTokenRejected   = "token_rejected"
	ReasonRemoteInvalid   = "remote_invalid"
	ReasonConnectionError = "connection_error"
	ReasonUnauthorized    = "unauthorized"
)

// Reasons for sessions ending outside the background checks.
const (
	ReasonLogout          = "logout"
	ReasonSessionReplaced = "session_replaced"
	ReasonLoginFailed     = "login_failed"
	ReasonHydrateFailed   = "hydrate_failed"
	ReasonReauthFailed    = "reauth_failed"
)

const clearTimeout = 5 * time.Second

// AuthAPI is the subset of the auth server the controller depends on.
type AuthAPI interface {
	Login(ctx context.Context, req remote.LoginRequest) (remote.LoginOutcome, error)
	Reauthenticate(ctx context.Context, bearer, userID string) (string, error)
	ValidateToken(ctx context.Context, token, userID string) remote.Validation
	UserDetails(ctx context.Context, token, userID string) (domain.UserDetails, error)
	Professional(ctx context.Context, token, userID string) (*domain.ProfessionalProfile, error)
}

// TokenStore persists the raw token.
type TokenStore interface {
	Write(ctx context.Context, token string) error
	Read(ctx context.Context) (string, bool)
	Clear(ctx context.Context)
}

// LoginInput carries user credentials. CPF punctuation is stripped before validation.
type LoginInput struct {
	CPF           string `validate:"required,len=11,numeric"`
	Password      string `validate:"required"`
	TwoFactorCode string `validate:"omitempty,len=6,numeric"`
	RememberMe    bool
}

// LoginResult is the caller-facing outcome of Login.
type LoginResult struct {
	Success           bool        `json:"success"`
	RequiresTwoFactor bool        `json:"requiresTwoFactor"`
	Message           string      `json:"message,omitempty"`
	Role              domain.Role `json:"role,omitempty"`
}

// Snapshot is a lock-free view of the session used by the background checks.
// Generation changes on every controller-driven token mutation; requests
// carrying an older generation are ignored.
type Snapshot struct {
	Generation    uint64
	Token         string
	UserID        string
	Role          domain.Role
	Authenticated bool
	Loading       bool
}

type current struct {
	generation uint64
	token      string
	claims     domain.Claims
	role       domain.Role
}

// Options tune a Controller.
type Options struct {
	Clock             func() time.Time
	ValidateOnHydrate bool
	Metrics           *observability.Metrics
	Events            events.Dispatcher
}

// Controller is the only component allowed to change the session.
type Controller struct {
	api      AuthAPI
	store    TokenStore
	state    *StateStore
	logger   *zap.Logger
	metrics  *observability.Metrics
	events   events.Dispatcher
	validate *validator.Validate
	clock    func() time.Time

	validateOnHydrate bool

	// mu serializes every session mutation.
	mu      sync.Mutex
	hydrate singleflight.Group
	cur     atomic.Pointer[current]
}

// NewController wires a controller. state is usually fresh from NewStateStore.
func NewController(api AuthAPI, store TokenStore, state *StateStore, logger *zap.Logger, opts Options) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	c := &Controller{
		api:               api,
		store:             store,
		state:             state,
		logger:            logger,
		metrics:           opts.Metrics,
		events:            opts.Events,
		validate:          validator.New(),
		clock:             opts.Clock,
		validateOnHydrate: opts.ValidateOnHydrate,
	}
	c.cur.Store(&current{})
	return c
}

// State returns the observable session state.
func (c *Controller) State() domain.SessionState {
	return c.state.Get()
}

// Snapshot returns the current token view without blocking on in-flight operations.
func (c *Controller) Snapshot() Snapshot {
	cur := c.cur.Load()
	st := c.state.Get()
	return Snapshot{
		Generation:    cur.generation,
		Token:         cur.token,
		UserID:        cur.claims.UserID,
		Role:          cur.role,
		Authenticated: st.Authenticated,
		Loading:       st.Loading,
	}
}

// Login clears any prior session and authenticates with the given credentials.
// A two-factor challenge is reported through the result, not as an error.
func (c *Controller) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logoutLocked(ctx, ReasonSessionReplaced)

	in.CPF = digitsOnly(in.CPF)
	if err := c.validate.Struct(in); err != nil {
		c.metrics.RecordLogin("invalid_input")
		verr := errorutil.NewValidationError("invalid credentials format", validationDetails(err))
		return LoginResult{Message: errorutil.ToDomainError(verr).Message}, verr
	}
	c.state.set(domain.SessionState{Loading: true})

	out, err := c.api.Login(ctx, remote.LoginRequest{
		CPF:           in.CPF,
		Password:      in.Password,
		TwoFactorCode: in.TwoFactorCode,
		RememberMe:    in.RememberMe,
	})
	if err != nil {
		return c.failLoginLocked(ctx, "failed", err)
	}
	if out.RequiresTwoFactor {
		c.state.set(domain.Anonymous())
		c.metrics.RecordLogin("two_factor")
		msg := out.Message
		if msg == "" {
			msg = errorutil.ToDomainError(errorutil.NewTwoFactorRequired("")).Message
		}
		return LoginResult{RequiresTwoFactor: true, Message: msg}, nil
	}
	if out.Token == "" {
		return c.failLoginLocked(ctx, "no_token", errorutil.NewDecodeFailure(errors.New("login returned no token")))
	}

	claims, err := auth.Decode(out.Token)
	if err != nil {
		return c.failLoginLocked(ctx, "decode_failure", errorutil.NewDecodeFailure(err))
	}
	if auth.IsExpired(claims, c.clock()) {
		return c.failLoginLocked(ctx, "expired", errorutil.NewTokenExpired())
	}
	if err := c.store.Write(ctx, out.Token); err != nil {
		return c.failLoginLocked(ctx, "storage", errorutil.NewInternalError(err))
	}

	profile, err := c.loadProfile(ctx, out.Token, claims)
	if err != nil {
		return c.failLoginLocked(ctx, "profile", err)
	}
	c.establishLocked(ctx, out.Token, claims, profile, "")

	c.metrics.RecordLogin("success")
	c.logger.Info("login succeeded",
		zap.String("user_id", claims.UserID),
		zap.String("role", profile.Role.String()),
		zap.String("token_fp", auth.Fingerprint(out.Token)))
	return LoginResult{Success: true, Role: profile.Role}, nil
}

func (c *Controller) failLoginLocked(ctx context.Context, outcome string, err error) (LoginResult, error) {
	c.logoutLocked(ctx, ReasonLoginFailed)
	c.metrics.RecordLogin(outcome)
	c.logger.Warn("login failed", zap.String("outcome", outcome), zap.Error(err))
	return LoginResult{Message: errorutil.ToDomainError(err).Message}, err
}

// Logout clears the token everywhere and resets the state. It always succeeds
// and is safe to call concurrently or repeatedly.
func (c *Controller) Logout(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasAuthenticated := c.state.Get().Authenticated
	c.logoutLocked(ctx, ReasonLogout)
	if wasAuthenticated {
		c.logger.Info("logged out")
	}
}

// ForceLogout is the detector path. It returns false without side effects when
// generation is stale or the session is already anonymous, so concurrent
// detectors coalesce into a single logout.
func (c *Controller) ForceLogout(ctx context.Context, generation uint64, reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.cur.Load()
	if cur.generation != generation || !c.state.Get().Authenticated {
		c.logger.Debug("forced logout ignored",
			zap.String("reason", reason),
			zap.Uint64("generation", generation),
			zap.Uint64("current_generation", cur.generation))
		return false
	}

	c.logger.Warn("forcing logout",
		zap.String("reason", reason),
		zap.String("user_id", cur.claims.UserID),
		zap.String("token_fp", auth.Fingerprint(cur.token)))
	c.metrics.RecordForcedLogout(reason)
	c.logoutLocked(ctx, reason)
	return true
}

func (c *Controller) logoutLocked(ctx context.Context, reason string) {
	clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), clearTimeout)
	defer cancel()

	c.store.Clear(clearCtx)
	prev := c.cur.Load()
	c.cur.Store(&current{generation: prev.generation + 1})
	c.state.set(domain.Anonymous())

	if prev.claims.UserID != "" {
		ev := events.New(events.EventSessionEnded, prev.claims.UserID, prev.role, c.clock(), events.SessionEndedPayload{
			Reason: reason,
			Forced: reason != ReasonLogout && reason != ReasonSessionReplaced,
		})
		ev.TokenFP = auth.Fingerprint(prev.token)
		c.publish(clearCtx, ev)
	}
}

// publish delivers ev synchronously. Handlers must not call back into the controller.
func (c *Controller) publish(ctx context.Context, ev events.Event) {
	if c.events == nil {
		return
	}
	if err := c.events.Publish(ctx, ev); err != nil {
		c.logger.Warn("event handler failed", zap.String("event", string(ev.Type)), zap.Error(err))
	}
}

// Hydrate restores the session from the persisted token. Concurrent callers
// share a single run. Any failure ends in the anonymous state; the returned
// error only explains why.
func (c *Controller) Hydrate(ctx context.Context) error {
	_, err, _ := c.hydrate.Do("hydrate", func() (any, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		return nil, c.hydrateLocked(ctx)
	})
	return err
}

func (c *Controller) hydrateLocked(ctx context.Context) error {
	prev := c.state.Get()
	c.state.set(domain.SessionState{Authenticated: prev.Authenticated, Profile: prev.Profile, Loading: true})

	token, ok := c.store.Read(ctx)
	if !ok {
		c.logoutLocked(ctx, ReasonHydrateFailed)
		return nil
	}

	claims, err := auth.Decode(token)
	if err != nil {
		c.logoutLocked(ctx, ReasonHydrateFailed)
		return errorutil.NewDecodeFailure(err)
	}
	if auth.IsExpired(claims, c.clock()) {
		c.logoutLocked(ctx, ReasonHydrateFailed)
		return errorutil.NewTokenExpired()
	}

	if c.validateOnHydrate {
		v := c.api.ValidateToken(ctx, token, claims.UserID)
		if !v.Valid {
			c.logoutLocked(ctx, ReasonHydrateFailed)
			return validationError(v)
		}
		if v.NewToken != "" && v.NewToken != token {
			rotated, err := c.persistLocked(ctx, v.NewToken)
			if err != nil {
				c.logoutLocked(ctx, ReasonHydrateFailed)
				return err
			}
			token, claims = v.NewToken, rotated
		}
	}

	profile, err := c.loadProfile(ctx, token, claims)
	if err != nil {
		c.logoutLocked(ctx, ReasonHydrateFailed)
		return err
	}
	how := ""
	if prev := c.cur.Load(); prev.token != "" && prev.claims.UserID == claims.UserID {
		how = "rehydrated"
	}
	c.establishLocked(ctx, token, claims, profile, how)
	return nil
}

// RefreshProfile refetches the profile. When the server reports a role other
// than the one encoded in the token, it reauthenticates instead and returns
// only after that settles.
func (c *Controller) RefreshProfile(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshProfileLocked(ctx)
}

// RefreshProfileAt is RefreshProfile guarded by a generation from Snapshot.
func (c *Controller) RefreshProfileAt(ctx context.Context, generation uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur.Load().generation != generation {
		return nil
	}
	return c.refreshProfileLocked(ctx)
}

func (c *Controller) refreshProfileLocked(ctx context.Context) error {
	cur := c.cur.Load()
	if cur.token == "" || !c.state.Get().Authenticated {
		return errorutil.NewUnauthorized("no active session")
	}

	details, err := c.api.UserDetails(ctx, cur.token, cur.claims.UserID)
	if err != nil {
		if errorutil.HasCode(err, errorutil.CodeUnauthorized) {
			c.metrics.RecordForcedLogout(ReasonUnauthorized)
			c.logoutLocked(ctx, ReasonUnauthorized)
		}
		return err
	}

	serverRole := cur.role
	if details.Role != "" {
		serverRole = auth.RoleFromScope(details.Role)
	}
	if serverRole != cur.role {
		c.logger.Info("role changed, reauthenticating",
			zap.String("user_id", cur.claims.UserID),
			zap.String("from", cur.role.String()),
			zap.String("to", serverRole.String()))
		_, err := c.reauthenticateLocked(ctx, cur.claims.UserID)
		return err
	}

	profile, err := c.buildProfile(ctx, cur.token, cur.claims, details)
	if err != nil {
		return err
	}
	c.state.set(domain.SessionState{Authenticated: true, Profile: profile})
	return nil
}

// Reauthenticate swaps the current token for a fresh one reflecting the
// server-side role. It reports whether the new token grants PROFESSIONAL.
// On any failure the session is logged out.
func (c *Controller) Reauthenticate(ctx context.Context, userID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reauthenticateLocked(ctx, userID)
}

func (c *Controller) reauthenticateLocked(ctx context.Context, userID string) (bool, error) {
	cur := c.cur.Load()
	bearer := cur.token
	prev := c.state.Get()
	c.state.set(domain.SessionState{Authenticated: prev.Authenticated, Profile: prev.Profile, Loading: true})

	c.store.Clear(ctx)
	c.cur.Store(&current{generation: cur.generation + 1, claims: cur.claims, role: cur.role})

	token, err := c.api.Reauthenticate(ctx, bearer, userID)
	if err != nil {
		return c.failReauthLocked(ctx, err)
	}
	claims, err := c.persistLocked(ctx, token)
	if err != nil {
		return c.failReauthLocked(ctx, err)
	}
	if claims.UserID != userID {
		return c.failReauthLocked(ctx, errorutil.NewRemoteInvalid("reauthentication returned a token for another user"))
	}

	profile, err := c.loadProfile(ctx, token, claims)
	if err != nil {
		return c.failReauthLocked(ctx, err)
	}
	c.establishLocked(ctx, token, claims, profile, "reauthenticated")

	c.logger.Info("reauthenticated",
		zap.String("user_id", userID),
		zap.String("role", profile.Role.String()),
		zap.String("token_fp", auth.Fingerprint(token)))
	return profile.Role == domain.RoleProfessional, nil
}

func (c *Controller) failReauthLocked(ctx context.Context, err error) (bool, error) {
	c.logger.Warn("reauthentication failed, logging out", zap.Error(err))
	c.logoutLocked(ctx, ReasonReauthFailed)
	return false, err
}

// RotateToken persists a replacement token handed out by the validation
// endpoint and refetches the profile.
func (c *Controller) RotateToken(ctx context.Context, generation uint64, token string) error {
	return c.replaceToken(ctx, generation, token, "rotated")
}

// AdoptToken accepts a token that changed outside the controller but decoded
// and validated, making it the new baseline.
func (c *Controller) AdoptToken(ctx context.Context, generation uint64, token string) error {
	return c.replaceToken(ctx, generation, token, "adopted")
}

func (c *Controller) replaceToken(ctx context.Context, generation uint64, token, how string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.cur.Load()
	if cur.generation != generation || !c.state.Get().Authenticated {
		return nil
	}

	claims, err := c.persistLocked(ctx, token)
	if err == nil && claims.UserID != cur.claims.UserID {
		err = errorutil.NewRemoteInvalid("token belongs to another user")
	}
	if err != nil {
		c.metrics.RecordForcedLogout(ReasonTokenRejected)
		c.logoutLocked(ctx, ReasonTokenRejected)
		return err
	}

	profile, err := c.loadProfile(ctx, token, claims)
	if err != nil {
		c.logoutLocked(ctx, ReasonTokenRejected)
		return err
	}
	c.establishLocked(ctx, token, claims, profile, how)
	c.logger.Info("token replaced",
		zap.String("how", how),
		zap.String("user_id", claims.UserID),
		zap.String("token_fp", auth.Fingerprint(token)))
	return nil
}

// persistLocked decodes token, rejects it when expired and writes it to the store.
func (c *Controller) persistLocked(ctx context.Context, token string) (domain.Claims, error) {
	claims, err := auth.Decode(token)
	if err != nil {
		return domain.Claims{}, errorutil.NewDecodeFailure(err)
	}
	if auth.IsExpired(claims, c.clock()) {
		return domain.Claims{}, errorutil.NewTokenExpired()
	}
	if err := c.store.Write(ctx, token); err != nil {
		return domain.Claims{}, errorutil.NewInternalError(err)
	}
	return claims, nil
}

// establishLocked publishes the session. how is empty for a new session and
// names the mechanism when an existing session only swapped its token.
func (c *Controller) establishLocked(ctx context.Context, token string, claims domain.Claims, profile *domain.Profile, how string) {
	prev := c.cur.Load()
	next := &current{
		generation: prev.generation + 1,
		token:      token,
		claims:     claims,
		role:       auth.RoleOf(claims),
	}
	c.cur.Store(next)
	c.state.set(domain.SessionState{Authenticated: true, Profile: profile})

	var ev events.Event
	if how == "" {
		ev = events.New(events.EventSessionEstablished, claims.UserID, next.role, c.clock(), nil)
	} else {
		ev = events.New(events.EventTokenReplaced, claims.UserID, next.role, c.clock(), events.TokenReplacedPayload{How: how})
	}
	ev.TokenFP = auth.Fingerprint(token)
	c.publish(ctx, ev)
}

func (c *Controller) loadProfile(ctx context.Context, token string, claims domain.Claims) (*domain.Profile, error) {
	details, err := c.api.UserDetails(ctx, token, claims.UserID)
	if err != nil {
		return nil, err
	}
	return c.buildProfile(ctx, token, claims, details)
}

func (c *Controller) buildProfile(ctx context.Context, token string, claims domain.Claims, details domain.UserDetails) (*domain.Profile, error) {
	profile := &domain.Profile{
		UserID:       claims.UserID,
		Role:         auth.RoleOf(claims),
		Name:         details.Name,
		CPF:          details.CPF,
		Email:        details.Email,
		Phone:        details.Phone,
		BirthDate:    details.BirthDate,
		ProfileImage: details.ProfileImage,
		Address:      details.Address,
	}
	if profile.Role == domain.RoleProfessional {
		prof, err := c.api.Professional(ctx, token, claims.UserID)
		if err != nil {
			return nil, err
		}
		profile.Professional = prof
	}
	return profile, nil
}

func validationError(v remote.Validation) error {
	if v.Reason == remote.ReasonConnectionError {
		return errorutil.NewRemoteUnreachable(errors.New(v.Reason))
	}
	return errorutil.NewRemoteInvalid(v.Reason)
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

func validationDetails(err error) map[string]any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	return details
}
