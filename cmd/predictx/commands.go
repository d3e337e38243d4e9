package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/predizer/predictx-client/internal/app"
	"github.com/predizer/predictx-client/internal/auth"
	"github.com/predizer/predictx-client/internal/session"
	"github.com/predizer/predictx-client/pkg/logger"
)

var errUsage = errors.New("usage error")

type command struct {
	summary string
	run     func(ctx context.Context, a *app.App, args []string, out io.Writer) error
}

var commands = map[string]command{
	"login":          {"sign in with email and password", runLogin},
	"login-google":   {"sign in with a Google ID token", runLoginGoogle},
	"refresh":        {"exchange the refresh token for a new access token", runRefresh},
	"logout":         {"revoke the session and clear local credentials", runLogout},
	"whoami":         {"fetch the signed-in user's profile", runWhoami},
	"status":         {"show the local session without calling the API", runStatus},
	"update":         {"update the user: update key=value ...", runUpdate},
	"sessions":       {"list signed-in devices", runSessions},
	"revoke-session": {"sign out one device", runRevokeSession},
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: predictx <command> [flags]")
	fmt.Fprintln(w)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-15s %s\n", name, commands[name].summary)
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// sessionView is the printable form of a session; tokens are redacted.
type sessionView struct {
	Authenticated bool           `json:"authenticated"`
	AccessToken   string         `json:"access_token,omitempty"`
	HasRefresh    bool           `json:"has_refresh_token"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
	User          map[string]any `json:"user,omitempty"`
}

func viewOf(s session.Session) sessionView {
	v := sessionView{
		Authenticated: s.Authenticated(),
		AccessToken:   logger.Token("", s.AccessToken).Value.String(),
		HasRefresh:    s.RefreshToken != "",
		User:          s.User,
	}
	if exp, ok := s.AccessExpiry(); ok {
		v.ExpiresAt = &exp
	}
	return v
}

func runLogin(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlagSet("login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("PREDICTX_PASSWORD"), "account password (or PREDICTX_PASSWORD)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	sess, err := a.Auth.Login(ctx, auth.Credentials{Email: *email, Password: *password})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return writeJSON(out, viewOf(sess))
}

func runLoginGoogle(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlagSet("login-google")
	idToken := fs.String("id-token", "", "Google ID token")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	sess, err := a.Auth.LoginWithGoogle(ctx, *idToken)
	if err != nil {
		return fmt.Errorf("login with google: %w", err)
	}
	return writeJSON(out, viewOf(sess))
}

func runRefresh(ctx context.Context, a *app.App, _ []string, out io.Writer) error {
	sess, err := a.Auth.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	return writeJSON(out, viewOf(sess))
}

func runLogout(ctx context.Context, a *app.App, _ []string, out io.Writer) error {
	a.Auth.Logout(ctx)
	return writeJSON(out, viewOf(a.Auth.Session(ctx)))
}

func runWhoami(ctx context.Context, a *app.App, _ []string, out io.Writer) error {
	u, err := a.Auth.GetProfile(ctx)
	if err != nil {
		return fmt.Errorf("get profile: %w", err)
	}
	return writeJSON(out, u)
}

func runStatus(ctx context.Context, a *app.App, _ []string, out io.Writer) error {
	return writeJSON(out, viewOf(a.Auth.Session(ctx)))
}

func runUpdate(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	updates, err := parseAssignments(args)
	if err != nil {
		return err
	}
	u, err := a.Auth.UpdateUser(ctx, updates)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return writeJSON(out, u)
}

func runSessions(ctx context.Context, a *app.App, _ []string, out io.Writer) error {
	list, err := a.Auth.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	return writeJSON(out, list)
}

func runRevokeSession(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlagSet("revoke-session")
	id := fs.String("id", "", "session id from `predictx sessions`")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := a.Auth.RevokeSession(ctx, *id); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	_, err := fmt.Fprintf(out, "revoked %s\n", *id)
	return err
}

// parseAssignments turns key=value arguments into an update map. Values that
// parse as numbers or booleans keep that type; everything else is a string.
func parseAssignments(args []string) (map[string]any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: update needs at least one key=value", errUsage)
	}
	updates := make(map[string]any, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: expected key=value, got %q", errUsage, arg)
		}
		updates[k] = scalar(v)
	}
	return updates, nil
}

func scalar(v string) any {
	switch v {
	case "true":
		return true
	case "false":
		return false
	}
	// Leading zeros mark identifiers such as zip codes.
	if len(v) > 1 && v[0] == '0' && v[1] != '.' {
		return v
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	return v
}
