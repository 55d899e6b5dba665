package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/inkbook/session-core/internal/domain"
	"github.com/inkbook/session-core/internal/remote"
)

func TestPeriodicValidator_InvalidForcesLogout(t *testing.T) {
	cases := []struct {
		name       string
		validation remote.Validation
		reason     string
	}{
		{"rejected", remote.Validation{Reason: "Token inválido"}, ReasonRemoteInvalid},
		{"unreachable", remote.Validation{Reason: remote.ReasonConnectionError}, ReasonConnectionError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.loggedIn(t, "1", "ROLE_USER")
			h.api.set(func(f *fakeAPI) { f.validation = tc.validation })

			NewPeriodicValidator(h.ctrl, h.api, time.Minute, nil).Check(context.Background())

			assertAnonymous(t, h)
			expected := `
# HELP inkbook_session_forced_logouts_total Forced logouts by detector reason.
# TYPE inkbook_session_forced_logouts_total counter
inkbook_session_forced_logouts_total{reason="` + tc.reason + `"} 1
`
			if err := testutil.GatherAndCompare(h.reg, strings.NewReader(expected), "inkbook_session_forced_logouts_total"); err != nil {
				t.Fatalf("forced logout metrics: %v", err)
			}
		})
	}
}

func TestPeriodicValidator_RotatesToken(t *testing.T) {
	h := newHarness(t)
	h.loggedIn(t, "1", "ROLE_USER")
	fresh := mintToken(t, "1", "ROLE_USER", h.now.Add(6*time.Hour))
	h.api.set(func(f *fakeAPI) { f.validation = remote.Validation{Valid: true, NewToken: fresh} })

	NewPeriodicValidator(h.ctrl, h.api, time.Minute, nil).Check(context.Background())

	if snap := h.ctrl.Snapshot(); !snap.Authenticated || snap.Token != fresh {
		t.Fatalf("token not rotated: %+v", snap)
	}
	if h.storedToken(t) != fresh {
		t.Fatalf("rotated token not persisted")
	}
}

func TestPeriodicValidator_RefreshesProfile(t *testing.T) {
	h := newHarness(t)
	h.loggedIn(t, "1", "ROLE_USER")
	h.api.set(func(f *fakeAPI) {
		f.details["1"] = domain.UserDetails{Name: "Ana Lima", Role: "USER"}
	})

	NewPeriodicValidator(h.ctrl, h.api, time.Minute, nil).Check(context.Background())

	if name := h.ctrl.State().Profile.Name; name != "Ana Lima" {
		t.Fatalf("profile not refreshed, name = %q", name)
	}
}

func TestPeriodicValidator_IdleWhenAnonymous(t *testing.T) {
	h := newHarness(t)
	_ = h.ctrl.Hydrate(context.Background())

	NewPeriodicValidator(h.ctrl, h.api, time.Minute, nil).Check(context.Background())
	if h.api.validations() != 0 {
		t.Fatalf("validator must stay idle without a session")
	}
}
