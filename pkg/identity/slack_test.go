package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSlackServer(t *testing.T, identityBody string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/oauth.access", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		assert.Equal(t, "slack-client", r.PostForm.Get("client_id"), "client credentials go in the body")
		assert.Equal(t, "slack-secret", r.PostForm.Get("client_secret"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"access_token":"xoxp-token","scope":"identity.basic"}`))
	})
	mux.HandleFunc("/api/users.identity", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer xoxp-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(identityBody))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestSlackResolver(t *testing.T, server *httptest.Server) *SlackResolver {
	t.Helper()
	res, err := NewSlackResolver(SlackConfig{
		ClientID:     "slack-client",
		ClientSecret: "slack-secret",
		RedirectURL:  "https://portal.example.com/public/auth/slack/callback",
		TeamID:       "T0G9PQBBK",
		AuthURL:      server.URL + "/oauth/authorize",
		TokenURL:     server.URL + "/api/oauth.access",
		IdentityURL:  server.URL + "/api/users.identity",
	}, nil)
	require.NoError(t, err)
	return res
}

func slackCallback() *http.Request {
	return httptest.NewRequest(http.MethodGet, "/public/auth/slack/callback?code=abc&state=s", nil)
}

func TestSlackResolver_Callback(t *testing.T) {
	server := newSlackServer(t, `{"ok":true,"user":{"name":"Sonny Whether","id":"U0G9QF9C6","email":"sonny@example.com"},"team":{"id":"T0G9PQBBK"}}`)
	res := newTestSlackResolver(t, server)
	assert.Equal(t, "slack", res.Name())
	assert.Contains(t, res.LoginURL("s"), "scope=identity.basic")

	id, err := res.Callback(context.Background(), slackCallback())
	require.NoError(t, err)
	assert.Equal(t, &Identity{
		AccountID:  "Slack_U0G9QF9C6",
		GivenName:  "Sonny",
		FamilyName: "Whether",
		Email:      "sonny@example.com",
	}, id)
}

func TestSlackResolver_Rejections(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"wrong team", `{"ok":true,"user":{"name":"Eve","id":"U1"},"team":{"id":"T_OTHER"}}`},
		{"missing team", `{"ok":true,"user":{"name":"Eve","id":"U1"}}`},
		{"error shape", `{"ok":false,"error":"invalid_auth"}`},
		{"not json", `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestSlackResolver(t, newSlackServer(t, tt.body))
			id, err := res.Callback(context.Background(), slackCallback())
			assert.Nil(t, id)
			assert.ErrorIs(t, err, ErrAuthenticationFailed)
		})
	}
}

func TestSlackResolver_Denied(t *testing.T) {
	res := newTestSlackResolver(t, newSlackServer(t, `{}`))
	req := httptest.NewRequest(http.MethodGet, "/public/auth/slack/callback?error=access_denied", nil)
	_, err := res.Callback(context.Background(), req)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestNewSlackResolver_Validation(t *testing.T) {
	_, err := NewSlackResolver(SlackConfig{ClientID: "id", ClientSecret: "s"}, nil)
	assert.Error(t, err, "team id is required")

	_, err = NewSlackResolver(SlackConfig{TeamID: "T1"}, nil)
	assert.Error(t, err)
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in, given, family string
	}{
		{"Sonny Whether", "Sonny", "Whether"},
		{"Cher", "Cher", ""},
		{"Mary Ann Smith", "Mary", "Ann"},
		{"", "", ""},
	}
	for _, tt := range tests {
		given, family := splitName(tt.in)
		assert.Equal(t, tt.given, given, tt.in)
		assert.Equal(t, tt.family, family, tt.in)
	}
}
