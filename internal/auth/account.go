package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/predizer/predictx-client/internal/api"
	apperrors "github.com/predizer/predictx-client/pkg/errors"
	"github.com/predizer/predictx-client/pkg/validator"
)

// DeviceSession is one signed-in device as reported by the backend.
type DeviceSession struct {
	ID         string    `json:"id"`
	Device     string    `json:"device,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	LastSeenAt time.Time `json:"last_seen_at,omitempty"`
	Current    bool      `json:"current,omitempty"`
}

type passwordReset struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

// ForgotPassword asks the backend to email a password reset link.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if err := validator.Var("email", email, "required,email"); err != nil {
		return invalidInput(err)
	}
	_, err := c.api.Do(ctx, api.Request{
		Method:     http.MethodPost,
		Path:       "/auth/forgot-password",
		Body:       map[string]string{"email": email},
		Idempotent: true,
	})
	return err
}

// ResetPassword sets a new password using the token from a reset email.
func (c *Client) ResetPassword(ctx context.Context, token, password string) error {
	req := passwordReset{Token: strings.TrimSpace(token), Password: password}
	if err := validator.Validate(req); err != nil {
		return invalidInput(err)
	}
	_, err := c.api.Do(ctx, api.Request{
		Method: http.MethodPost,
		Path:   "/auth/reset-password",
		Body:   req,
	})
	return err
}

// VerifyEmail confirms an address using the token from a verification email.
func (c *Client) VerifyEmail(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if err := validator.Var("token", token, "required"); err != nil {
		return invalidInput(err)
	}
	_, err := c.api.Do(ctx, api.Request{
		Method: http.MethodPost,
		Path:   "/auth/verify-email",
		Body:   map[string]string{"token": token},
	})
	return err
}

// ListSessions returns the devices currently signed in to the account.
func (c *Client) ListSessions(ctx context.Context) ([]DeviceSession, error) {
	data, err := c.authorized(ctx, api.Request{Method: http.MethodGet, Path: "/users/me/sessions"})
	if err != nil {
		return nil, err
	}
	return decodeSessions(data)
}

// RevokeSession signs out one device.
func (c *Client) RevokeSession(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperrors.InvalidInput("session id is required")
	}
	_, err := c.authorized(ctx, api.Request{
		Method: http.MethodDelete,
		Path:   "/users/me/sessions/" + url.PathEscape(id),
	})
	return err
}

// decodeSessions accepts a bare list or one wrapped as {"sessions": [...]}.
func decodeSessions(data json.RawMessage) ([]DeviceSession, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var list []DeviceSession
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Sessions []DeviceSession `json:"sessions"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return wrapped.Sessions, nil
}
