package google

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"calplan/internal/apperr"
	"calplan/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(tokenURL, userInfoURL string) *config.Config {
	return &config.Config{
		GoogleClientID:     "client-id",
		GoogleClientSecret: "client-secret",
		GoogleRedirectURI:  "http://localhost:8080/oauth/google/callback",
		GoogleTokenURL:     tokenURL,
		GoogleUserInfoURL:  userInfoURL,
		ProviderTimeout:    5 * time.Second,
	}
}

func TestAuthCodeURLRequestsOfflineConsent(t *testing.T) {
	o := NewOAuth(testConfig("http://token", "http://userinfo"))
	u, err := url.Parse(o.AuthCodeURL("signed-state"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "signed-state", q.Get("state"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Contains(t, q.Get("scope"), "https://www.googleapis.com/auth/calendar")
}

func TestRefreshAccessToken(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","expires_in":1800,"token_type":"Bearer"}`))
	}))
	defer srv.Close()

	o := NewOAuth(testConfig(srv.URL, ""))
	grant, err := o.RefreshAccessToken(context.Background(), "stored-refresh")
	require.NoError(t, err)
	assert.Equal(t, "fresh", grant.AccessToken)
	assert.Empty(t, grant.RefreshToken, "omitted refresh token stays empty")
	assert.Equal(t, 30*time.Minute, grant.ExpiresIn)

	assert.Equal(t, "refresh_token", form.Get("grant_type"))
	assert.Equal(t, "stored-refresh", form.Get("refresh_token"))
	assert.Equal(t, "client-id", form.Get("client_id"))
	assert.Equal(t, "client-secret", form.Get("client_secret"))
}

func TestRefreshAccessTokenReportsRefreshTokenAsSent(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"omitted", `{"access_token":"fresh","expires_in":3600}`, ""},
		{"repeated", `{"access_token":"fresh","expires_in":3600,"refresh_token":"stored-refresh"}`, "stored-refresh"},
		{"rotated", `{"access_token":"fresh","expires_in":3600,"refresh_token":"rotated"}`, "rotated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			grant, err := NewOAuth(testConfig(srv.URL, "")).RefreshAccessToken(context.Background(), "stored-refresh")
			require.NoError(t, err)
			assert.Equal(t, tt.want, grant.RefreshToken)
		})
	}
}

func TestRefreshAccessTokenRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`))
	}))
	defer srv.Close()

	_, err := NewOAuth(testConfig(srv.URL, "")).RefreshAccessToken(context.Background(), "revoked")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrTokenRefreshFailed))
	assert.Contains(t, err.Error(), "invalid_grant")
	status, ok := apperr.ProviderStatus(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, status)
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, `{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`, ae.Fields["body"])
}

func TestExchangeAndUserInfo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":3600,"token_type":"Bearer","scope":"openid https://www.googleapis.com/auth/calendar"}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"g-123","email":"me@example.com","name":"Me"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	o := NewOAuth(testConfig(srv.URL+"/token", srv.URL+"/userinfo"))
	grant, err := o.Exchange(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "at", grant.AccessToken)
	assert.Equal(t, "rt", grant.RefreshToken)
	assert.InDelta(t, time.Hour.Seconds(), grant.ExpiresIn.Seconds(), 5)
	assert.Equal(t, []string{"openid", "https://www.googleapis.com/auth/calendar"}, grant.Scopes)

	info, err := o.UserInfo(context.Background(), grant.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "g-123", info.ID)
	assert.Equal(t, "me@example.com", info.Email)
}

func TestUserInfoFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewOAuth(testConfig("", srv.URL)).UserInfo(context.Background(), "bad")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperr.Status(err))
}
