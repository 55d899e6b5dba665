package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/inkbook/session-core/internal/api/http/handlers"
	"github.com/inkbook/session-core/internal/domain"
	"github.com/inkbook/session-core/internal/observability"
	"github.com/inkbook/session-core/internal/session"
	"github.com/inkbook/session-core/pkg/util/errorutil"
)

type fakeController struct {
	state      domain.SessionState
	snap       session.Snapshot
	loginRes   session.LoginResult
	loginErr   error
	loginInput session.LoginInput
	hydrateErr error
	reauthUser string
	logouts    int
}

func (f *fakeController) State() domain.SessionState { return f.state }
func (f *fakeController) Snapshot() session.Snapshot { return f.snap }
func (f *fakeController) Login(_ context.Context, in session.LoginInput) (session.LoginResult, error) {
	f.loginInput = in
	return f.loginRes, f.loginErr
}
func (f *fakeController) Logout(context.Context)               { f.logouts++ }
func (f *fakeController) Hydrate(context.Context) error        { return f.hydrateErr }
func (f *fakeController) RefreshProfile(context.Context) error { return nil }
func (f *fakeController) Reauthenticate(_ context.Context, userID string) (bool, error) {
	f.reauthUser = userID
	return true, nil
}

type pingFunc func(context.Context) error

func (p pingFunc) Ping(ctx context.Context) error { return p(ctx) }

func newTestApp(ctrl *fakeController, deps map[string]handlers.Pinger) *fiber.App {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:   handlers.NewHealthHandler("sessiond", "test", deps),
		Session:  handlers.NewSessionHandler(ctrl),
		Gatherer: reg,
	})
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path, body string) (*nethttp.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, _ := nethttp.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	var payload map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp, payload
}

func TestSessionRoutes_GetDescribesSession(t *testing.T) {
	ctrl := &fakeController{
		state: domain.SessionState{Authenticated: true, Profile: &domain.Profile{UserID: "7", Name: "Ana"}},
		snap:  session.Snapshot{Generation: 3, Token: "a.b.c", UserID: "7", Role: domain.RoleAdmin, Authenticated: true},
	}
	resp, payload := doRequest(t, newTestApp(ctrl, nil), nethttp.MethodGet, "/session", "")
	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	data := payload["data"].(map[string]any)
	if data["role"] != "ADMIN" || data["authenticated"] != true || data["tokenFingerprint"] == "" {
		t.Fatalf("unexpected payload %v", data)
	}
	if resp.Header.Get(observability.RequestIDHeader) == "" {
		t.Fatalf("missing request id header")
	}
}

func TestSessionRoutes_Login(t *testing.T) {
	ctrl := &fakeController{loginRes: session.LoginResult{Success: true, Role: domain.RoleUser}}
	app := newTestApp(ctrl, nil)

	resp, _ := doRequest(t, app, nethttp.MethodPost, "/session/login", `{"cpf":"123.456.789-01","senha":"x","rememberMe":true}`)
	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ctrl.loginInput.CPF != "123.456.789-01" || ctrl.loginInput.Password != "x" || !ctrl.loginInput.RememberMe {
		t.Fatalf("login input not forwarded: %+v", ctrl.loginInput)
	}

	ctrl.loginRes = session.LoginResult{RequiresTwoFactor: true, Message: "2FA required"}
	resp, payload := doRequest(t, app, nethttp.MethodPost, "/session/login", `{"cpf":"12345678901","senha":"x"}`)
	if resp.StatusCode != nethttp.StatusPreconditionRequired {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if payload["data"].(map[string]any)["requiresTwoFactor"] != true {
		t.Fatalf("unexpected payload %v", payload)
	}

	ctrl.loginRes = session.LoginResult{Message: "CPF ou senha inválidos"}
	ctrl.loginErr = errorutil.NewRemoteInvalid("CPF ou senha inválidos")
	resp, payload = doRequest(t, app, nethttp.MethodPost, "/session/login", `{"cpf":"12345678901","senha":"x"}`)
	if resp.StatusCode != nethttp.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if code := payload["error"].(map[string]any)["code"]; code != errorutil.CodeRemoteInvalid {
		t.Fatalf("error code = %v", code)
	}
}

func TestSessionRoutes_ErrorsMapToEnvelope(t *testing.T) {
	ctrl := &fakeController{hydrateErr: errorutil.NewRemoteUnreachable(errors.New("dial tcp"))}
	app := newTestApp(ctrl, nil)

	resp, payload := doRequest(t, app, nethttp.MethodPost, "/session/hydrate", "")
	if resp.StatusCode != nethttp.StatusBadGateway {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if payload["error"].(map[string]any)["code"] != errorutil.CodeRemoteUnreachable {
		t.Fatalf("unexpected payload %v", payload)
	}

	resp, _ = doRequest(t, app, nethttp.MethodPost, "/session/reauth", "")
	if resp.StatusCode != nethttp.StatusUnauthorized {
		t.Fatalf("reauth without session status = %d", resp.StatusCode)
	}

	resp, payload = doRequest(t, app, nethttp.MethodGet, "/nope", "")
	if resp.StatusCode != nethttp.StatusNotFound || payload["error"].(map[string]any)["code"] != "NOT_FOUND" {
		t.Fatalf("unknown route = %d %v", resp.StatusCode, payload)
	}
}

func TestSessionRoutes_LogoutAndReauth(t *testing.T) {
	ctrl := &fakeController{
		state: domain.SessionState{Authenticated: true, Profile: &domain.Profile{UserID: "9"}},
		snap:  session.Snapshot{UserID: "9", Authenticated: true, Role: domain.RoleProfessional},
	}
	app := newTestApp(ctrl, nil)

	resp, payload := doRequest(t, app, nethttp.MethodPost, "/session/reauth", "")
	if resp.StatusCode != nethttp.StatusOK || ctrl.reauthUser != "9" {
		t.Fatalf("reauth = %d user %q", resp.StatusCode, ctrl.reauthUser)
	}
	if payload["data"].(map[string]any)["professional"] != true {
		t.Fatalf("unexpected payload %v", payload)
	}

	resp, _ = doRequest(t, app, nethttp.MethodPost, "/session/logout", "")
	if resp.StatusCode != nethttp.StatusNoContent || ctrl.logouts != 1 {
		t.Fatalf("logout = %d, calls %d", resp.StatusCode, ctrl.logouts)
	}
}

func TestHealthRoutes(t *testing.T) {
	deps := map[string]handlers.Pinger{
		"redis": pingFunc(func(context.Context) error { return nil }),
	}
	app := newTestApp(&fakeController{}, deps)
	if resp, _ := doRequest(t, app, nethttp.MethodGet, "/health/ready", ""); resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("ready = %d", resp.StatusCode)
	}

	deps["postgres"] = pingFunc(func(context.Context) error { return errors.New("down") })
	resp, payload := doRequest(t, app, nethttp.MethodGet, "/health/ready", "")
	if resp.StatusCode != nethttp.StatusServiceUnavailable {
		t.Fatalf("ready with failing dep = %d", resp.StatusCode)
	}
	details := payload["error"].(map[string]any)["details"].(map[string]any)
	if details["postgres"] != "down" || details["redis"] != "ok" {
		t.Fatalf("unexpected details %v", details)
	}
}

func TestMetricsRoute(t *testing.T) {
	app := newTestApp(&fakeController{}, nil)
	doRequest(t, app, nethttp.MethodGet, "/session", "")

	req, _ := nethttp.NewRequest(nethttp.MethodGet, "/metrics", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "inkbook_control_request_duration_seconds") {
		t.Fatalf("metrics output missing request histogram")
	}
}
