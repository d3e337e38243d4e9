package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/predizer/predictx-client/internal/api"
	"github.com/predizer/predictx-client/internal/profile"
	"github.com/predizer/predictx-client/internal/session"
	apperrors "github.com/predizer/predictx-client/pkg/errors"
	"github.com/predizer/predictx-client/pkg/validator"
)

// Keys of an UpdateUser map that are sent to PUT /users/me. Name and email are
// always included in that request.
var profileKeys = map[string]bool{
	profile.KeyFullName:    true,
	profile.KeyName:        true,
	profile.KeyEmail:       true,
	profile.KeyUsername:    true,
	profile.KeyPhoneNumber: true,
	profile.KeyCPF:         true,
}

// Wire names of the flattened address fields.
var addressWireNames = map[string]string{
	profile.KeyZip:          "zipCode",
	profile.KeyStreet:       "street",
	profile.KeyNeighborhood: "neighborhood",
	profile.KeyNumber:       "number",
	profile.KeyComplement:   "complement",
	profile.KeyCity:         "city",
	profile.KeyState:        "state",
	profile.KeyCountry:      "country",
}

// GetProfile fetches the signed-in user and merges it into the session. It
// returns nil when the backend answers with something other than an object.
func (c *Client) GetProfile(ctx context.Context) (profile.User, error) {
	data, err := c.authorized(ctx, api.Request{Method: http.MethodGet, Path: "/users/me"})
	if err != nil {
		return nil, err
	}
	return c.mergeUser(ctx, data), nil
}

// UpdateProfile sends payload to PUT /users/me.
func (c *Client) UpdateProfile(ctx context.Context, payload map[string]any) (profile.User, error) {
	return c.put(ctx, "/users/me", payload)
}

// UpdateAddress sends payload to PUT /users/me/address. Keys are the backend's
// camelCase address names (zipCode, street, ...).
func (c *Client) UpdateAddress(ctx context.Context, payload map[string]any) (profile.User, error) {
	return c.put(ctx, "/users/me/address", payload)
}

// UpdateAvatar points the user's avatar at avatarURL.
func (c *Client) UpdateAvatar(ctx context.Context, avatarURL string) (profile.User, error) {
	if err := validator.Var("avatar_url", avatarURL, "required,url"); err != nil {
		return nil, invalidInput(err)
	}
	return c.put(ctx, "/users/me/avatar", map[string]any{"avatarUrl": avatarURL})
}

func (c *Client) put(ctx context.Context, path string, payload any) (profile.User, error) {
	data, err := c.authorized(ctx, api.Request{Method: http.MethodPut, Path: path, Body: payload})
	if err != nil {
		return nil, err
	}
	return c.mergeUser(ctx, data), nil
}

// mergeUser normalizes a user response, merges it into the session user and
// returns the result. A response wrapped as {"user": {...}} is unwrapped. A
// response that is not an object leaves the session untouched and yields nil.
func (c *Client) mergeUser(ctx context.Context, data json.RawMessage) profile.User {
	incoming := profile.Object(data)
	if inner := profile.Object(incoming["user"]); inner != nil {
		incoming = inner
	}
	if incoming == nil {
		return nil
	}
	return c.store.Update(ctx, session.Patch{User: session.Set(profile.User(incoming))}).User
}

// UpdateUser applies a flat set of user edits. Server-backed fields are routed
// to the profile, address and avatar endpoints in that order, each response
// merged into a running user; the avatar call is skipped when the URL is
// unchanged. Every other key is merged into the session user locally.
func (c *Client) UpdateUser(ctx context.Context, updates map[string]any) (profile.User, error) {
	current := c.store.Get(ctx).User
	if current == nil {
		return nil, apperrors.MissingUser()
	}

	running := current.Clone()
	local := make(map[string]any)
	profileBody := make(map[string]any)
	addressChanged := false
	avatar, hasAvatar := "", false

	for k, v := range updates {
		switch {
		case profileKeys[k]:
			if k != profile.KeyFullName && k != profile.KeyName && k != profile.KeyEmail {
				profileBody[k] = v
			}
		case addressWireNames[k] != "":
			addressChanged = true
		case k == profile.KeyAvatarURL || k == "avatarUrl":
			avatar, hasAvatar = fmt.Sprint(v), true
		default:
			local[k] = v
		}
	}

	if touchesProfile(updates) {
		if name := firstNonEmpty(stringOf(updates[profile.KeyFullName]), stringOf(updates[profile.KeyName]), current.FullName()); name != "" {
			profileBody["name"] = name
		}
		if email := firstNonEmpty(stringOf(updates[profile.KeyEmail]), current.Email()); email != "" {
			profileBody["email"] = email
		}
		u, err := c.UpdateProfile(ctx, profileBody)
		if err != nil {
			return nil, fmt.Errorf("update profile: %w", err)
		}
		if u != nil {
			running = profile.Merge(running, u)
		}
	}

	if addressChanged {
		body := make(map[string]any, len(addressWireNames))
		for _, key := range profile.AddressKeys {
			v := stringOf(updates[key])
			if _, ok := updates[key]; !ok {
				v = current.String(key)
			}
			if v != "" {
				body[addressWireNames[key]] = v
			}
		}
		u, err := c.UpdateAddress(ctx, body)
		if err != nil {
			return nil, fmt.Errorf("update address: %w", err)
		}
		if u != nil {
			running = profile.Merge(running, u)
		}
	}

	if hasAvatar && avatar != running.AvatarURL() {
		u, err := c.UpdateAvatar(ctx, avatar)
		if err != nil {
			return nil, fmt.Errorf("update avatar: %w", err)
		}
		if u != nil {
			running = profile.Merge(running, u)
		}
	}

	if len(local) == 0 {
		return running, nil
	}
	for k, v := range local {
		running[k] = v
	}
	return c.store.Update(ctx, session.Patch{User: session.Replace(running)}).User, nil
}

func touchesProfile(updates map[string]any) bool {
	for k := range updates {
		if profileKeys[k] {
			return true
		}
	}
	return false
}

func stringOf(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
