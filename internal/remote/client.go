// Package remote talks to the auth server on behalf of the session core.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inkbook/session-core/internal/auth"
	"github.com/inkbook/session-core/internal/domain"
	"github.com/inkbook/session-core/internal/observability"
	"github.com/inkbook/session-core/pkg/util/errorutil"
)

// ReasonConnectionError is the validation reason used for any transport failure.
const ReasonConnectionError = "connection error"

// LoginRequest is the credential payload for auth/login.
type LoginRequest struct {
	CPF           string `json:"cpf"`
	Password      string `json:"senha"`
	TwoFactorCode string `json:"twoFactorCode,omitempty"`
	RememberMe    bool   `json:"rememberMe"`
}

// LoginOutcome is a successful exchange with auth/login. Either Token is set or
// RequiresTwoFactor is true.
type LoginOutcome struct {
	Token             string
	RequiresTwoFactor bool
	Message           string
}

// Validation is the verdict of the validate-token endpoint.
type Validation struct {
	Valid    bool
	Reason   string
	NewToken string
}

type loginResponse struct {
	Token             string `json:"token"`
	Success           *bool  `json:"success"`
	RequiresTwoFactor bool   `json:"requiresTwoFactor"`
	Message           string `json:"message"`
}

type validateResponse struct {
	Valid    bool   `json:"valid"`
	Message  string `json:"message"`
	NewToken string `json:"newToken"`
}

// Client calls the auth server endpoints used by the session core.
type Client struct {
	http    *fiber.Client
	baseURL string
	timeout time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewClient builds a client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger, metrics *observability.Metrics) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:    &fiber.Client{UserAgent: "inkbook-sessiond"},
		baseURL: baseURL,
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, req LoginRequest) (LoginOutcome, error) {
	code, body, err := c.do(ctx, fiber.MethodPost, "auth/login", "", req)
	if err != nil {
		return LoginOutcome{}, errorutil.NewRemoteUnreachable(err)
	}

	var payload loginResponse
	if isJSONObject(body) {
		_ = json.Unmarshal(body, &payload)
	}
	if code == http.StatusPreconditionRequired || payload.RequiresTwoFactor {
		return LoginOutcome{RequiresTwoFactor: true, Message: payload.Message}, nil
	}
	if code >= http.StatusInternalServerError {
		return LoginOutcome{}, errorutil.NewRemoteUnreachable(fmt.Errorf("login: status %d", code))
	}
	if code < 200 || code >= 300 {
		msg := payload.Message
		if msg == "" {
			msg = "invalid credentials"
		}
		return LoginOutcome{}, errorutil.NewRemoteInvalid(msg)
	}
	if payload.Success != nil && !*payload.Success {
		return LoginOutcome{}, errorutil.NewRemoteInvalid(payload.Message)
	}

	return LoginOutcome{Token: extractToken(body), Message: payload.Message}, nil
}

// Reauthenticate asks for a fresh token reflecting the user's current role.
func (c *Client) Reauthenticate(ctx context.Context, bearer, userID string) (string, error) {
	code, body, err := c.do(ctx, fiber.MethodPost, "auth/reauth/"+url.PathEscape(userID), bearer, nil)
	if err != nil {
		return "", errorutil.NewRemoteUnreachable(err)
	}
	if code >= http.StatusInternalServerError {
		return "", errorutil.NewRemoteUnreachable(fmt.Errorf("reauth: status %d", code))
	}
	if code < 200 || code >= 300 {
		return "", errorutil.NewRemoteInvalid(messageOf(body))
	}
	token := extractToken(body)
	if token == "" {
		return "", errorutil.NewRemoteInvalid("reauthentication returned no token")
	}
	return token, nil
}

// ValidateToken asks the server whether token is still valid for userID.
// Any transport or server failure yields an invalid verdict.
func (c *Client) ValidateToken(ctx context.Context, token, userID string) Validation {
	v := c.validate(ctx, token, userID)
	c.metrics.RecordValidation(v.Valid)
	if !v.Valid {
		c.logger.Warn("token validation failed",
			zap.String("user_id", userID),
			zap.String("token_fp", auth.Fingerprint(token)),
			zap.String("reason", v.Reason))
	}
	return v
}

func (c *Client) validate(ctx context.Context, token, userID string) Validation {
	path := "usuario/" + url.PathEscape(userID) + "/validate-token"
	code, body, err := c.do(ctx, fiber.MethodPost, path, token, fiber.Map{"token": token})
	if err != nil || code >= http.StatusInternalServerError {
		return Validation{Reason: ReasonConnectionError}
	}

	var payload validateResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return Validation{Reason: "invalid validation response"}
	}
	if code < 200 || code >= 300 || !payload.Valid {
		reason := payload.Message
		if reason == "" {
			reason = "token rejected"
		}
		return Validation{Reason: reason}
	}
	return Validation{Valid: true, Reason: payload.Message, NewToken: payload.NewToken}
}

// UserDetails fetches the profile fields of userID.
func (c *Client) UserDetails(ctx context.Context, token, userID string) (domain.UserDetails, error) {
	code, body, err := c.do(ctx, fiber.MethodGet, "usuario/detalhes/"+url.PathEscape(userID), token, nil)
	if err != nil {
		return domain.UserDetails{}, errorutil.NewRemoteUnreachable(err)
	}
	if err := statusError("user details", code, body); err != nil {
		return domain.UserDetails{}, err
	}
	var details domain.UserDetails
	if err := json.Unmarshal(body, &details); err != nil {
		return domain.UserDetails{}, fmt.Errorf("decode user details: %w", err)
	}
	return details, nil
}

// Professional fetches the professional sub-record of userID. It returns nil
// without error when the server has no record.
func (c *Client) Professional(ctx context.Context, token, userID string) (*domain.ProfessionalProfile, error) {
	code, body, err := c.do(ctx, fiber.MethodGet, "profissional/usuario/"+url.PathEscape(userID), token, nil)
	if err != nil {
		return nil, errorutil.NewRemoteUnreachable(err)
	}
	if code == http.StatusNotFound {
		return nil, nil
	}
	if err := statusError("professional profile", code, body); err != nil {
		return nil, err
	}
	var prof domain.ProfessionalProfile
	if err := json.Unmarshal(body, &prof); err != nil {
		return nil, fmt.Errorf("decode professional profile: %w", err)
	}
	return &prof, nil
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body any) (int, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	var agent *fiber.Agent
	switch method {
	case fiber.MethodGet:
		agent = c.http.Get(c.baseURL + path)
	default:
		agent = c.http.Post(c.baseURL + path)
	}

	requestID := uuid.NewString()
	agent.Set(observability.RequestIDHeader, requestID)
	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	if bearer != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+bearer)
	}
	if body != nil {
		agent.JSON(body)
	}
	agent.Timeout(c.timeoutFor(ctx))

	code, resp, errs := agent.Bytes()
	if len(errs) > 0 {
		err := errors.Join(errs...)
		c.logger.Debug("auth server call failed",
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.Error(err))
		return 0, nil, err
	}
	return code, resp, nil
}

func (c *Client) timeoutFor(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < c.timeout {
			if remaining <= 0 {
				return time.Millisecond
			}
			return remaining
		}
	}
	return c.timeout
}

func statusError(what string, code int, body []byte) error {
	switch {
	case code >= http.StatusInternalServerError:
		return errorutil.NewRemoteUnreachable(fmt.Errorf("%s: status %d", what, code))
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errorutil.NewUnauthorized(messageOf(body))
	case code < 200 || code >= 300:
		return errorutil.NewRemoteInvalid(messageOf(body))
	}
	return nil
}

func isJSONObject(body []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(body), []byte("{"))
}

func messageOf(body []byte) string {
	if !isJSONObject(body) {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &payload)
	return payload.Message
}

// extractToken accepts {"token": "..."}, a JSON string or a raw token body.
func extractToken(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	switch {
	case len(trimmed) == 0:
		return ""
	case trimmed[0] == '{':
		var payload loginResponse
		if err := json.Unmarshal(trimmed, &payload); err != nil {
			return ""
		}
		return strings.TrimSpace(payload.Token)
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	return string(trimmed)
}
