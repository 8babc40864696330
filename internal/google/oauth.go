package google

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"calplan/internal/apperr"
	"calplan/internal/config"
	"calplan/internal/token"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
)

const userInfoEmailScope = "https://www.googleapis.com/auth/userinfo.email"

// OAuth drives the authorization-code flow and refresh-token grants
// against Google.
type OAuth struct {
	cfg         *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

// UserInfo is the subset of the userinfo response the connect flow needs.
type UserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

// NewOAuth builds the OAuth client from configuration.
func NewOAuth(c *config.Config) *OAuth {
	endpoint := googleoauth.Endpoint
	endpoint.TokenURL = c.GoogleTokenURL
	endpoint.AuthStyle = oauth2.AuthStyleInParams
	return &OAuth{
		cfg: &oauth2.Config{
			ClientID:     c.GoogleClientID,
			ClientSecret: c.GoogleClientSecret,
			RedirectURL:  c.GoogleRedirectURI,
			Scopes:       []string{calendar.CalendarScope, userInfoEmailScope},
			Endpoint:     endpoint,
		},
		userInfoURL: c.GoogleUserInfoURL,
		httpClient:  &http.Client{Timeout: c.ProviderTimeout},
	}
}

// AuthCodeURL returns the consent URL. Offline access with a forced
// consent prompt makes Google issue a refresh token.
func (o *OAuth) AuthCodeURL(state string) string {
	return o.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades an authorization code for tokens.
func (o *OAuth) Exchange(ctx context.Context, code string) (*token.Grant, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
	tok, err := o.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrBadRequest, "failed to exchange code for tokens")
	}
	grant := &token.Grant{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if scope, ok := tok.Extra("scope").(string); ok {
		grant.Scopes = strings.Fields(scope)
	}
	if !tok.Expiry.IsZero() {
		grant.ExpiresIn = time.Until(tok.Expiry)
	}
	return grant, nil
}

// RefreshAccessToken performs the refresh_token grant with a plain form
// POST. Grant.RefreshToken is exactly what the response carried, empty when
// the provider omitted it, so the guard keeps the stored token in that case.
func (o *OAuth) RefreshAccessToken(ctx context.Context, refreshToken string) (*token.Grant, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", o.cfg.ClientID)
	form.Set("client_secret", o.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, apperr.TokenRefreshFailed(0, err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.TokenRefreshFailed(resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, apperr.TokenRefreshFailed(resp.StatusCode, fmt.Sprintf("invalid token response: %v", err))
	}
	if tr.AccessToken == "" {
		return nil, apperr.TokenRefreshFailed(resp.StatusCode, "missing access_token")
	}
	return &token.Grant{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresIn:    time.Duration(tr.ExpiresIn) * time.Second,
		Scopes:       strings.Fields(tr.Scope),
	}, nil
}

// UserInfo fetches the identity behind an access token.
func (o *OAuth) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrBadRequest, "failed to get user info")
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Wrap(apperr.Provider(resp.StatusCode, string(body)), apperr.ErrBadRequest, "failed to get user info")
	}

	var info UserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode user info: %w", err)
	}
	if info.ID == "" {
		return nil, apperr.Validation("user info has no id")
	}
	return &info, nil
}
