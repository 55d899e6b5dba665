package handlers

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/inkbook/session-core/internal/api/dto"
	"github.com/inkbook/session-core/internal/auth"
	"github.com/inkbook/session-core/internal/domain"
	"github.com/inkbook/session-core/internal/session"
	"github.com/inkbook/session-core/pkg/util/errorutil"
)

// SessionController is the part of the session controller exposed over HTTP.
type SessionController interface {
	State() domain.SessionState
	Snapshot() session.Snapshot
	Login(ctx context.Context, in session.LoginInput) (session.LoginResult, error)
	Logout(ctx context.Context)
	Hydrate(ctx context.Context) error
	RefreshProfile(ctx context.Context) error
	Reauthenticate(ctx context.Context, userID string) (bool, error)
}

// SessionHandler exposes the local session lifecycle.
type SessionHandler struct {
	ctrl SessionController
}

// NewSessionHandler constructs handler.
func NewSessionHandler(ctrl SessionController) *SessionHandler {
	return &SessionHandler{ctrl: ctrl}
}

// Get handles GET /session.
func (h *SessionHandler) Get(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.describe()})
}

// Login handles POST /session/login.
func (h *SessionHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return errorutil.NewValidationError("invalid payload", nil)
	}

	res, err := h.ctrl.Login(c.UserContext(), session.LoginInput{
		CPF:           req.CPF,
		Password:      req.Password,
		TwoFactorCode: req.TwoFactorCode,
		RememberMe:    req.RememberMe,
	})
	if err != nil {
		return err
	}
	if res.RequiresTwoFactor {
		return c.Status(http.StatusPreconditionRequired).JSON(fiber.Map{"data": res})
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"result":  res,
		"session": h.describe(),
	}})
}

// Logout handles POST /session/logout.
func (h *SessionHandler) Logout(c *fiber.Ctx) error {
	h.ctrl.Logout(c.UserContext())
	return c.SendStatus(http.StatusNoContent)
}

// Hydrate handles POST /session/hydrate.
func (h *SessionHandler) Hydrate(c *fiber.Ctx) error {
	if err := h.ctrl.Hydrate(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.describe()})
}

// Refresh handles POST /session/refresh.
func (h *SessionHandler) Refresh(c *fiber.Ctx) error {
	if err := h.ctrl.RefreshProfile(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.describe()})
}

// Reauth handles POST /session/reauth.
func (h *SessionHandler) Reauth(c *fiber.Ctx) error {
	snap := h.ctrl.Snapshot()
	if !snap.Authenticated || snap.UserID == "" {
		return errorutil.NewUnauthorized("no active session")
	}

	professional, err := h.ctrl.Reauthenticate(c.UserContext(), snap.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ReauthResponse{
		Professional: professional,
		Role:         h.ctrl.Snapshot().Role,
	}})
}

func (h *SessionHandler) describe() dto.SessionResponse {
	st := h.ctrl.State()
	snap := h.ctrl.Snapshot()
	resp := dto.SessionResponse{
		Authenticated: st.Authenticated,
		Loading:       st.Loading,
		Generation:    snap.Generation,
		Profile:       st.Profile,
	}
	if st.Authenticated {
		resp.Role = snap.Role
		resp.TokenFP = auth.Fingerprint(snap.Token)
	}
	return resp
}
