package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predizer/predictx-client/internal/app"
	"github.com/predizer/predictx-client/internal/config"
	"github.com/predizer/predictx-client/pkg/logger"
)

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{
		"full_name=Jane Doe",
		"address_zip=01310-100",
		"address_number=42",
		"newsletter=true",
		"note=a=b",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"full_name":      "Jane Doe",
		"address_zip":    "01310-100",
		"address_number": 42.0,
		"newsletter":     true,
		"note":           "a=b",
	}, got)
}

func TestParseAssignments_Errors(t *testing.T) {
	_, err := parseAssignments(nil)
	assert.True(t, errors.Is(err, errUsage))

	_, err = parseAssignments([]string{"no-equals"})
	assert.True(t, errors.Is(err, errUsage))

	_, err = parseAssignments([]string{"=value"})
	assert.True(t, errors.Is(err, errUsage))
}

func TestScalar(t *testing.T) {
	assert.Equal(t, "007", scalar("007"))
	assert.Equal(t, 0.0, scalar("0"))
	assert.Equal(t, 0.5, scalar("0.5"))
	assert.Equal(t, 1.0, scalar("1"))
	assert.Equal(t, "Inf", scalar("Inf"))
	assert.Equal(t, "NaN", scalar("NaN"))
	assert.Equal(t, "t", scalar("t"))
}

func TestRun_UnknownCommand(t *testing.T) {
	err := run([]string{"trade"}, &bytes.Buffer{})
	assert.True(t, errors.Is(err, errUsage))
}

func TestRun_NoCommand(t *testing.T) {
	err := run(nil, &bytes.Buffer{})
	assert.True(t, errors.Is(err, errUsage))
}

func TestCommands_LoginStatusLogout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"accessToken":  "access-token-0001",
				"refreshToken": "ref1",
				"user":         map[string]any{"id": "u1", "email": "a@b.com"},
			})
		case "/auth/logout":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	a, err := app.NewApp(context.Background(), &config.Config{
		APIBaseURL:     server.URL,
		HTTPTimeout:    5 * time.Second,
		SessionBackend: config.BackendMemory,
	}, logger.Discard())
	require.NoError(t, err)
	defer a.Close()
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, runLogin(ctx, a, []string{"-email", "a@b.com", "-password", "x"}, &out))

	var view sessionView
	require.NoError(t, json.Unmarshal(out.Bytes(), &view))
	assert.True(t, view.Authenticated)
	assert.Equal(t, "***0001", view.AccessToken)
	assert.True(t, view.HasRefresh)
	assert.Equal(t, "u1", view.User["id"])
	assert.NotContains(t, out.String(), "ref1")

	out.Reset()
	require.NoError(t, runStatus(ctx, a, nil, &out))
	assert.Contains(t, out.String(), `"authenticated": true`)

	out.Reset()
	require.NoError(t, runLogout(ctx, a, nil, &out))
	assert.Contains(t, out.String(), `"authenticated": false`)
}

func TestCommands_FlagErrorIsUsage(t *testing.T) {
	err := runLogin(context.Background(), nil, []string{"-unknown"}, &bytes.Buffer{})
	assert.True(t, errors.Is(err, errUsage))
}
