package auth

import (
	"encoding/base64"
	"errors"
	"strconv"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/inkbook/session-core/internal/domain"
)

func mint(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestDecode_WellFormed(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok := mint(t, jwt.MapClaims{
		"exp":    exp.Unix(),
		"scope":  "ROLE_USER ROLE_ADMIN",
		"userId": 42,
		"sub":    "123.***.***-01",
	})

	claims, err := Decode(tok)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if claims.UserID != "42" {
		t.Fatalf("userId = %q, want 42", claims.UserID)
	}
	if !claims.ExpiresAt.Equal(exp) {
		t.Fatalf("exp = %v, want %v", claims.ExpiresAt, exp)
	}
	if IsExpired(claims, time.Now()) {
		t.Fatalf("expected token to be live")
	}
	if got := RoleOf(claims); got != domain.RoleAdmin {
		t.Fatalf("role = %s, want ADMIN", got)
	}
}

func TestDecode_IgnoresHeader(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	b64 := base64.RawURLEncoding.EncodeToString
	payload := b64([]byte(`{"exp":` + strconv.FormatInt(exp.Unix(), 10) + `,"scope":"ROLE_PROFESSIONAL","userId":"9","sub":"s"}`))

	headers := map[string]string{
		"no alg":      b64([]byte(`{"typ":"JWT"}`)),
		"unknown alg": b64([]byte(`{"alg":"XYZ"}`)),
		"opaque":      "header",
		"empty":       "",
	}
	for name, header := range headers {
		t.Run(name, func(t *testing.T) {
			claims, err := Decode(header + "." + payload + ".sig")
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if claims.UserID != "9" || !claims.ExpiresAt.Equal(exp) || RoleOf(claims) != domain.RoleProfessional {
				t.Fatalf("unexpected claims %+v", claims)
			}
		})
	}
}

func TestDecode_Failures(t *testing.T) {
	good := mint(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix(), "scope": "", "userId": "u1", "sub": "s"})
	b64 := base64.RawURLEncoding.EncodeToString
	header := b64([]byte(`{"alg":"HS256","typ":"JWT"}`))

	cases := map[string]string{
		"empty":            "",
		"garbage":          "not-a-token",
		"two segments":     "a.b",
		"four segments":    good + ".x",
		"empty payload":    header + "..sig",
		"payload not b64":  header + ".***.sig",
		"payload not json": header + "." + b64([]byte("hello")) + ".sig",
		"payload array":    header + "." + b64([]byte(`[1,2]`)) + ".sig",
		"missing exp":      mint(t, jwt.MapClaims{"scope": "", "userId": "u1", "sub": "s"}),
		"missing scope":    mint(t, jwt.MapClaims{"exp": 1, "userId": "u1", "sub": "s"}),
		"missing userId":   mint(t, jwt.MapClaims{"exp": 1, "scope": "", "sub": "s"}),
		"missing sub":      mint(t, jwt.MapClaims{"exp": 1, "scope": "", "userId": "u1"}),
		"bool userId":      mint(t, jwt.MapClaims{"exp": 1, "scope": "", "userId": true, "sub": "s"}),
	}

	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(tok)
			if !errors.Is(err, ErrMalformedToken) {
				t.Fatalf("expected ErrMalformedToken, got %v", err)
			}
		})
	}
}

func TestDecode_Deterministic(t *testing.T) {
	tok := mint(t, jwt.MapClaims{"exp": time.Now().Add(time.Minute).Unix(), "scope": "ROLE_PROF", "userId": "7", "sub": "x"})
	a, errA := Decode(tok)
	b, errB := Decode(tok)
	if errA != nil || errB != nil {
		t.Fatalf("decode errors: %v %v", errA, errB)
	}
	if a != b {
		t.Fatalf("decode not deterministic: %+v vs %+v", a, b)
	}
}

func TestFingerprint(t *testing.T) {
	if Fingerprint("") != "" {
		t.Fatalf("empty token should have empty fingerprint")
	}
	fp := Fingerprint("a.b.c")
	if len(fp) != 12 || fp == "a.b.c" {
		t.Fatalf("unexpected fingerprint %q", fp)
	}
}
