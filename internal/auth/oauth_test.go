package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// newFakeGitHub serves a token endpoint and a /user endpoint so Exchange can
// run without the network.
func newFakeGitHub(t *testing.T, userJSON string, userStatus int) *GitHubProvider {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"gho_test","token_type":"bearer"}`)
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gho_test", r.Header.Get("Authorization"))
		w.WriteHeader(userStatus)
		fmt.Fprint(w, userJSON)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p := NewGitHubProvider("client", "secret", "http://localhost/auth/github/callback")
	p.config.Endpoint = oauth2.Endpoint{
		AuthURL:  srv.URL + "/login/oauth/authorize",
		TokenURL: srv.URL + "/login/oauth/access_token",
	}
	p.userURL = srv.URL + "/user"
	return p
}

func TestGitHubProvider_AuthURL(t *testing.T) {
	p := NewGitHubProvider("client-id", "secret", "http://localhost:8080/auth/github/callback")

	u, err := url.Parse(p.AuthURL("state-123"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "http://localhost:8080/auth/github/callback", q.Get("redirect_uri"))
}

func TestGitHubProvider_Exchange(t *testing.T) {
	p := newFakeGitHub(t, `{"id":583231,"login":"octocat","email":"octo@example.com"}`, http.StatusOK)

	gh, err := p.Exchange(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, int64(583231), gh.ID)
	assert.Equal(t, "octocat", gh.Login)
}

func TestGitHubProvider_ExchangeErrors(t *testing.T) {
	t.Run("api failure", func(t *testing.T) {
		p := newFakeGitHub(t, `{}`, http.StatusInternalServerError)
		_, err := p.Exchange(context.Background(), "code")
		assert.Error(t, err)
	})
	t.Run("zero id", func(t *testing.T) {
		p := newFakeGitHub(t, `{"id":0,"login":"ghost"}`, http.StatusOK)
		_, err := p.Exchange(context.Background(), "code")
		assert.Error(t, err)
	})
}
