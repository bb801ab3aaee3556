package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGitHub serves the token endpoint and the /user API.
func fakeGitHub(t *testing.T, userStatus int, user any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "bad_verification_code"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "gho_test",
			"token_type":   "bearer",
		})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gho_test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(userStatus)
		json.NewEncoder(w).Encode(user)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(srv *httptest.Server) *GitHubProvider {
	return NewGitHubProvider("client-id", "client-secret", "http://localhost:5000/auth/github/callback").
		WithEndpoints(srv.URL+"/login/oauth/authorize", srv.URL+"/login/oauth/access_token", srv.URL+"/user")
}

func TestGitHubUser_UserID(t *testing.T) {
	u := &GitHubUser{ID: 583231}
	assert.Equal(t, "github_583231", u.UserID())
}

func TestAuthURL(t *testing.T) {
	p := NewGitHubProvider("client-id", "secret", "http://localhost:5000/auth/github/callback")

	u, err := url.Parse(p.AuthURL("state-123"))
	require.NoError(t, err)

	assert.Equal(t, "github.com", u.Host)
	q := u.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "http://localhost:5000/auth/github/callback", q.Get("redirect_uri"))
}

func TestExchange(t *testing.T) {
	srv := fakeGitHub(t, http.StatusOK, GitHubUser{ID: 42, Login: "octocat", Name: "The Octocat"})
	p := newTestProvider(srv)

	user, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, int64(42), user.ID)
	assert.Equal(t, "octocat", user.Login)
	assert.Equal(t, "github_42", user.UserID())
}

func TestExchange_Failures(t *testing.T) {
	t.Run("bad code", func(t *testing.T) {
		p := newTestProvider(fakeGitHub(t, http.StatusOK, GitHubUser{ID: 42}))
		_, err := p.Exchange(context.Background(), "bad-code")
		assert.Error(t, err)
	})

	t.Run("user api error", func(t *testing.T) {
		p := newTestProvider(fakeGitHub(t, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"}))
		_, err := p.Exchange(context.Background(), "good-code")
		assert.Error(t, err)
	})

	t.Run("zero id", func(t *testing.T) {
		p := newTestProvider(fakeGitHub(t, http.StatusOK, GitHubUser{Login: "ghost"}))
		_, err := p.Exchange(context.Background(), "good-code")
		assert.Error(t, err)
	})
}
