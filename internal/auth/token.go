package auth

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/inkbook/session-core/internal/domain"
)

// ErrMalformedToken is returned for any token whose claims cannot be fully resolved.
var ErrMalformedToken = errors.New("malformed token")

const (
	claimScope  = "scope"
	claimUserID = "userId"
)

var parser = jwt.NewParser()

// Decode extracts the claims of a bearer token without verifying its signature.
// Only the payload segment is read; the header and signature are opaque here.
// Decode never panics and either resolves all four claims or fails with
// ErrMalformedToken.
func Decode(token string) (domain.Claims, error) {
	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		return domain.Claims{}, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedToken, len(segments))
	}
	if segments[1] == "" {
		return domain.Claims{}, fmt.Errorf("%w: empty payload", ErrMalformedToken)
	}

	raw, err := parser.DecodeSegment(segments[1])
	if err != nil {
		return domain.Claims{}, fmt.Errorf("%w: payload: %v", ErrMalformedToken, err)
	}
	mc := jwt.MapClaims{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&mc); err != nil {
		return domain.Claims{}, fmt.Errorf("%w: payload is not a JSON object: %v", ErrMalformedToken, err)
	}

	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return domain.Claims{}, fmt.Errorf("%w: missing exp", ErrMalformedToken)
	}
	sub, err := mc.GetSubject()
	if err != nil || sub == "" {
		return domain.Claims{}, fmt.Errorf("%w: missing sub", ErrMalformedToken)
	}
	scope, ok := scopeClaim(mc[claimScope])
	if !ok {
		return domain.Claims{}, fmt.Errorf("%w: missing scope", ErrMalformedToken)
	}
	userID, ok := userIDClaim(mc[claimUserID])
	if !ok {
		return domain.Claims{}, fmt.Errorf("%w: missing userId", ErrMalformedToken)
	}

	return domain.Claims{
		ExpiresAt: exp.Time,
		Scope:     scope,
		UserID:    userID,
		Subject:   sub,
	}, nil
}

func scopeClaim(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []any:
		parts := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return "", false
			}
			parts = append(parts, str)
		}
		return strings.Join(parts, " "), true
	}
	return "", false
}

func userIDClaim(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, id != ""
	case json.Number:
		return id.String(), true
	}
	return "", false
}

// Fingerprint returns a short, non-reversible identifier safe for logs.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:6])
}
