package session

import (
	"context"
	"sync"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/inkbook/session-core/internal/domain"
	"github.com/inkbook/session-core/internal/events"
	"github.com/inkbook/session-core/internal/observability"
	"github.com/inkbook/session-core/internal/remote"
	"github.com/inkbook/session-core/internal/tokenstore"
	"github.com/inkbook/session-core/pkg/util/errorutil"
)

func mintToken(t *testing.T, userID, scope string, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp":    exp.Unix(),
		"scope":  scope,
		"userId": userID,
		"sub":    "123.***.***-01",
	}).SignedString([]byte("server-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

type fakeAPI struct {
	mu sync.Mutex

	loginOutcome remote.LoginOutcome
	loginErr     error
	reauthToken  string
	reauthErr    error
	validation   remote.Validation
	details      map[string]domain.UserDetails
	detailsErr   error
	professional *domain.ProfessionalProfile

	validateHook func(ctx context.Context, token, userID string) remote.Validation

	loginCalls    int
	reauthBearers []string
	validateCalls int
	detailsCalls  []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		validation: remote.Validation{Valid: true},
		details:    map[string]domain.UserDetails{},
	}
}

func (f *fakeAPI) Login(_ context.Context, _ remote.LoginRequest) (remote.LoginOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCalls++
	return f.loginOutcome, f.loginErr
}

func (f *fakeAPI) Reauthenticate(_ context.Context, bearer, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reauthBearers = append(f.reauthBearers, bearer)
	return f.reauthToken, f.reauthErr
}

func (f *fakeAPI) ValidateToken(ctx context.Context, token, userID string) remote.Validation {
	f.mu.Lock()
	f.validateCalls++
	hook := f.validateHook
	v := f.validation
	f.mu.Unlock()
	if hook != nil {
		return hook(ctx, token, userID)
	}
	return v
}

func (f *fakeAPI) UserDetails(_ context.Context, _, userID string) (domain.UserDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailsCalls = append(f.detailsCalls, userID)
	if f.detailsErr != nil {
		return domain.UserDetails{}, f.detailsErr
	}
	return f.details[userID], nil
}

func (f *fakeAPI) Professional(_ context.Context, _, _ string) (*domain.ProfessionalProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.professional, nil
}

func (f *fakeAPI) set(fn func(f *fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeAPI) validations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validateCalls
}

type harness struct {
	api     *fakeAPI
	durable *tokenstore.MemoryBackend
	store   *tokenstore.Store
	state   *StateStore
	ctrl    *Controller
	metrics *observability.Metrics
	reg     *prometheus.Registry
	now     time.Time

	eventsMu sync.Mutex
	events   []events.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		api:     newFakeAPI(),
		durable: tokenstore.NewMemoryBackend(),
		state:   NewStateStore(),
		reg:     prometheus.NewRegistry(),
		now:     time.Now(),
	}
	h.metrics = observability.NewMetrics(h.reg)
	h.store = tokenstore.NewStore(nil, h.durable)

	dispatcher := events.NewInMemoryDispatcher()
	record := func(_ context.Context, ev events.Event) error {
		h.eventsMu.Lock()
		h.events = append(h.events, ev)
		h.eventsMu.Unlock()
		return nil
	}
	for _, et := range []events.EventType{events.EventSessionEstablished, events.EventSessionEnded, events.EventTokenReplaced} {
		dispatcher.Subscribe(et, record)
	}

	h.ctrl = NewController(h.api, h.store, h.state, nil, Options{
		Clock:             func() time.Time { return h.now },
		ValidateOnHydrate: true,
		Metrics:           h.metrics,
		Events:            dispatcher,
	})
	return h
}

func (h *harness) recorded() []events.Event {
	h.eventsMu.Lock()
	defer h.eventsMu.Unlock()
	return append([]events.Event(nil), h.events...)
}

// loggedIn performs a successful login for userID with scope.
func (h *harness) loggedIn(t *testing.T, userID, scope string) string {
	t.Helper()
	tok := mintToken(t, userID, scope, h.now.Add(time.Hour))
	h.api.set(func(f *fakeAPI) {
		f.loginOutcome = remote.LoginOutcome{Token: tok}
		f.details[userID] = domain.UserDetails{Name: "Ana", CPF: "12345678901", Role: scope}
	})
	res, err := h.ctrl.Login(context.Background(), LoginInput{CPF: "123.456.789-01", Password: "secret"})
	if err != nil || !res.Success {
		t.Fatalf("Login = %+v, %v", res, err)
	}
	return tok
}

func (h *harness) storedToken(t *testing.T) string {
	t.Helper()
	tok, _ := h.store.Read(context.Background())
	return tok
}

func assertAnonymous(t *testing.T, h *harness) {
	t.Helper()
	st := h.ctrl.State()
	if st.Authenticated || st.Profile != nil || st.Loading {
		t.Fatalf("expected anonymous state, got %+v", st)
	}
	if tok := h.storedToken(t); tok != "" {
		t.Fatalf("expected empty store, got %q", tok)
	}
}

var errUnauthorized = errorutil.NewUnauthorized("expired session")
