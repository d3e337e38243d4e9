package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/predizer/predictx-client/internal/api"
	"github.com/predizer/predictx-client/internal/profile"
	"github.com/predizer/predictx-client/internal/session"
	apperrors "github.com/predizer/predictx-client/pkg/errors"
	"github.com/predizer/predictx-client/pkg/logger"
	"github.com/predizer/predictx-client/pkg/validator"
)

// ErrNoAccessToken is returned when a sign-in or refresh response carries no
// access token under any known field name.
var ErrNoAccessToken = errors.New("auth response carried no access token")

// Candidate locations of each part of an auth response, first match wins.
var (
	accessTokenPaths  = []string{"accessToken", "access_token", "token", "tokens.accessToken", "tokens.access_token"}
	refreshTokenPaths = []string{"refreshToken", "refresh_token", "tokens.refreshToken", "tokens.refresh_token"}
	userPaths         = []string{"user", "profile", "account"}
)

// Credentials are the email/password sign-in input.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SignupRequest registers a new account.
type SignupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"full_name,omitempty"`
	Username string `json:"username,omitempty"`
	CPF      string `json:"cpf,omitempty"`
	Phone    string `json:"phone_number,omitempty"`
}

// grant is the token-bearing part of an auth response.
type grant struct {
	AccessToken  string
	RefreshToken string
	User         profile.User
}

func parseGrant(data json.RawMessage) (grant, error) {
	var g grant
	var obj map[string]any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &obj); err != nil {
			return g, fmt.Errorf("decode auth response: %w", err)
		}
	}
	g.AccessToken = pickString(obj, accessTokenPaths)
	g.RefreshToken = pickString(obj, refreshTokenPaths)
	for _, p := range userPaths {
		if u := profile.Object(obj[p]); u != nil {
			g.User = profile.User(u)
			break
		}
	}
	if g.AccessToken == "" {
		return g, ErrNoAccessToken
	}
	return g, nil
}

func pickString(obj map[string]any, paths []string) string {
	for _, p := range paths {
		var cur any = obj
		for _, part := range strings.Split(p, ".") {
			m, ok := cur.(map[string]any)
			if !ok {
				cur = nil
				break
			}
			cur = m[part]
		}
		if s, ok := cur.(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func invalidInput(err error) error {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		return apperrors.InvalidInput(valErr.Error())
	}
	return apperrors.InvalidInput(err.Error())
}

// Login signs in with email and password and stores the new session.
func (c *Client) Login(ctx context.Context, creds Credentials) (session.Session, error) {
	creds.Email = strings.TrimSpace(creds.Email)
	if err := validator.Validate(creds); err != nil {
		return session.Session{}, invalidInput(err)
	}
	return c.signIn(ctx, "/auth/login", creds)
}

// LoginWithGoogle exchanges a Google ID token for a session.
func (c *Client) LoginWithGoogle(ctx context.Context, idToken string) (session.Session, error) {
	idToken = strings.TrimSpace(idToken)
	if err := validator.Var("id_token", idToken, "required"); err != nil {
		return session.Session{}, invalidInput(err)
	}
	return c.signIn(ctx, "/auth/login/google", map[string]string{"id_token": idToken})
}

// Signup registers an account. Backends that sign the user in immediately
// return tokens, which are stored; otherwise the empty session is returned and
// the account awaits email verification.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (session.Session, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := validator.Validate(req); err != nil {
		return session.Session{}, invalidInput(err)
	}

	data, err := c.api.Do(ctx, api.Request{
		Method:     http.MethodPost,
		Path:       "/auth/signup",
		Body:       req,
		Idempotent: true,
	})
	if err != nil {
		return session.Session{}, err
	}

	g, err := parseGrant(data)
	if errors.Is(err, ErrNoAccessToken) {
		c.logger.InfoContext(ctx, "account created, awaiting verification")
		return session.Session{}, nil
	}
	if err != nil {
		return session.Session{}, err
	}
	return c.storeGrant(ctx, g), nil
}

func (c *Client) signIn(ctx context.Context, path string, body any) (session.Session, error) {
	data, err := c.api.Do(ctx, api.Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   body,
	})
	if err != nil {
		return session.Session{}, err
	}

	g, err := parseGrant(data)
	if err != nil {
		return session.Session{}, err
	}
	return c.storeGrant(ctx, g), nil
}

// storeGrant writes a fresh sign-in. The previous user is replaced, not
// merged, so nothing of an earlier account survives.
func (c *Client) storeGrant(ctx context.Context, g grant) session.Session {
	patch := session.Patch{
		AccessToken:  session.Set(g.AccessToken),
		RefreshToken: session.Delete[string](),
		User:         session.Replace(g.User),
	}
	if g.RefreshToken != "" {
		patch.RefreshToken = session.Set(g.RefreshToken)
	}
	sess := c.store.Update(ctx, patch)

	c.logger.InfoContext(ctx, "signed in",
		slog.String("user_id", sess.User.ID()),
		logger.Token("access_token", sess.AccessToken),
	)
	return sess
}
