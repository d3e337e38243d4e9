// Package auth is the PredictX session facade: sign-in, token refresh and
// profile maintenance on top of the persisted session.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/predizer/predictx-client/internal/api"
	"github.com/predizer/predictx-client/internal/session"
	apperrors "github.com/predizer/predictx-client/pkg/errors"
	"github.com/predizer/predictx-client/pkg/logger"
)

// Client is safe for concurrent use. All state lives in the session store.
type Client struct {
	api    *api.Client
	store  *session.Store
	logger *slog.Logger

	refreshGroup singleflight.Group
}

// NewClient creates a facade over apiClient and store.
func NewClient(apiClient *api.Client, store *session.Store, log *slog.Logger) *Client {
	if log == nil {
		log = logger.Discard()
	}
	return &Client{
		api:    apiClient,
		store:  store,
		logger: log,
	}
}

// Session returns the current persisted session.
func (c *Client) Session(ctx context.Context) session.Session {
	return c.store.Get(ctx)
}

// Subscribe registers fn for session change notifications.
func (c *Client) Subscribe(fn session.Listener) (unsubscribe func()) {
	return c.store.Subscribe(fn)
}

// authorized sends req with the stored access token. A 401 with a refresh
// token available triggers exactly one refresh and one retry; the retry's
// outcome is final. When the refresh itself fails the original 401 is
// returned first in the chain, with the refresh failure joined after it.
func (c *Client) authorized(ctx context.Context, req api.Request) (json.RawMessage, error) {
	sess := c.store.Get(ctx)
	if id := sess.User.ID(); id != "" {
		ctx = logger.WithUserID(ctx, id)
	}

	first := req
	first.Header = api.WithBearer(req.Header, sess.AccessToken)
	data, err := c.api.Do(ctx, first)
	if err == nil || !apperrors.IsUnauthorized(err) || sess.RefreshToken == "" {
		return data, err
	}

	c.logger.DebugContext(ctx, "access token rejected, refreshing",
		slog.String("method", req.Method),
		slog.String("path", req.Path),
	)
	refreshed, rerr := c.refreshShared(ctx)
	if rerr != nil {
		return nil, errors.Join(err, rerr)
	}

	retry := req
	retry.Header = api.WithBearer(req.Header, refreshed.AccessToken)
	return c.api.Do(ctx, retry)
}

// Refresh exchanges the stored refresh token for a new access token. Without a
// stored refresh token it fails with missing_refresh_token and sends nothing.
func (c *Client) Refresh(ctx context.Context) (session.Session, error) {
	return c.refreshShared(ctx)
}

// refreshShared collapses concurrent refreshes into one request. The shared
// request outlives a canceled caller so that joined callers still get its
// result; it stays bounded by the transport timeout.
func (c *Client) refreshShared(ctx context.Context) (session.Session, error) {
	ch := c.refreshGroup.DoChan("refresh", func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return session.Session{}, apperrors.Network(ctx.Err())
	case res := <-ch:
		if res.Shared {
			c.logger.DebugContext(ctx, "joined in-flight token refresh")
		}
		sess, _ := res.Val.(session.Session)
		return sess, res.Err
	}
}

func (c *Client) refresh(ctx context.Context) (session.Session, error) {
	current := c.store.Get(ctx)
	if current.RefreshToken == "" {
		refreshTotal.WithLabelValues("missing_token").Inc()
		return session.Session{}, apperrors.MissingRefreshToken()
	}

	data, err := c.api.Do(ctx, api.Request{
		Method: http.MethodPost,
		Path:   "/auth/refresh",
		Body:   map[string]string{"refresh_token": current.RefreshToken},
	})
	if err != nil {
		refreshTotal.WithLabelValues("failure").Inc()
		c.logger.WarnContext(ctx, "token refresh failed", slog.String("error", err.Error()))
		if refreshRejected(apperrors.Status(err)) {
			c.store.Update(ctx, session.Patch{RefreshToken: session.Delete[string]()})
		}
		return session.Session{}, err
	}

	grant, err := parseGrant(data)
	if err != nil {
		refreshTotal.WithLabelValues("failure").Inc()
		return session.Session{}, err
	}

	patch := session.Patch{AccessToken: session.Set(grant.AccessToken)}
	if grant.RefreshToken != "" {
		patch.RefreshToken = session.Set(grant.RefreshToken)
	}
	if grant.User != nil {
		patch.User = session.Set(grant.User)
	}
	sess := c.store.Update(ctx, patch)

	refreshTotal.WithLabelValues("success").Inc()
	c.logger.InfoContext(ctx, "access token refreshed",
		logger.Token("access_token", sess.AccessToken),
		slog.Bool("rotated_refresh_token", grant.RefreshToken != ""),
	)
	return sess, nil
}

// refreshRejected reports whether the backend refused the refresh token
// itself. Such a token never works again; network and 5xx failures keep it.
func refreshRejected(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}

// Logout asks the backend to revoke the refresh token and always clears the
// local session, whatever the outcome of that request.
func (c *Client) Logout(ctx context.Context) {
	defer c.store.Clear(context.WithoutCancel(ctx))

	sess := c.store.Get(ctx)
	if sess.AccessToken == "" && sess.RefreshToken == "" {
		return
	}

	req := api.Request{
		Method: http.MethodPost,
		Path:   "/auth/logout",
		Header: api.WithBearer(nil, sess.AccessToken),
	}
	if sess.RefreshToken != "" {
		req.Body = map[string]string{"refresh_token": sess.RefreshToken}
	}
	if _, err := c.api.Do(ctx, req); err != nil {
		c.logger.WarnContext(ctx, "server-side logout failed, clearing local session anyway",
			slog.String("error", err.Error()),
		)
		return
	}
	c.logger.InfoContext(ctx, "logged out", slog.String("user_id", sess.User.ID()))
}
