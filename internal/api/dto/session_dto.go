package dto

import (
	"github.com/inkbook/session-core/internal/domain"
)

// LoginRequest payload for POST /session/login. Field names follow the auth server.
type LoginRequest struct {
	CPF           string `json:"cpf"`
	Password      string `json:"senha"`
	TwoFactorCode string `json:"twoFactorCode,omitempty"`
	RememberMe    bool   `json:"rememberMe"`
}

// SessionResponse describes the current session to local callers.
type SessionResponse struct {
	Authenticated bool            `json:"authenticated"`
	Loading       bool            `json:"loading"`
	Role          domain.Role     `json:"role,omitempty"`
	Generation    uint64          `json:"generation"`
	TokenFP       string          `json:"tokenFingerprint,omitempty"`
	Profile       *domain.Profile `json:"userProfile"`
}

// ReauthResponse reports the role granted by a reauthentication.
type ReauthResponse struct {
	Professional bool        `json:"professional"`
	Role         domain.Role `json:"role"`
}
