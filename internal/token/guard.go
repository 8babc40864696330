// Package token keeps account access tokens usable. A Guard refreshes a
// token shortly before it expires and persists the result before handing
// the token out.
package token

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"calplan/internal/apperr"
	"calplan/internal/metrics"
	"calplan/internal/models"

	"github.com/google/uuid"
)

// DefaultSkew is how long before expiry a token is considered stale.
const DefaultSkew = 5 * time.Minute

// DefaultTTL applies when the provider omits expires_in.
const DefaultTTL = time.Hour

// Grant is the result of a token exchange. RefreshToken is empty when the
// provider did not issue or rotate it.
type Grant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	Scopes       []string
}

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (*Grant, error)
}

// Writer persists a refreshed token triple.
type Writer interface {
	UpdateAccountTokens(ctx context.Context, id uuid.UUID, accessToken string, refreshToken *string, expiresAt time.Time) error
}

// Guard implements provider.TokenValidator.
type Guard struct {
	refresher Refresher
	writer    Writer
	log       *slog.Logger
	skew      time.Duration
	now       func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithSkew overrides DefaultSkew.
func WithSkew(d time.Duration) Option {
	return func(g *Guard) { g.skew = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

func NewGuard(refresher Refresher, writer Writer, log *slog.Logger, opts ...Option) *Guard {
	g := &Guard{
		refresher: refresher,
		writer:    writer,
		log:       log,
		skew:      DefaultSkew,
		now:       time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// NeedsRefresh reports whether the account's access token must be
// refreshed before use. An account without a recorded expiry is only
// refreshed when it has no access token at all.
func (g *Guard) NeedsRefresh(a *models.Account) bool {
	if a.TokenExpiresAt == nil {
		return a.AccessToken == ""
	}
	return !g.now().Before(a.TokenExpiresAt.Add(-g.skew))
}

// EnsureValid returns a usable access token for a, refreshing and
// persisting it first when needed. a is updated in place.
//
// Two concurrent callers may both refresh the same account. Both writes
// carry valid tokens and the later one wins.
func (g *Guard) EnsureValid(ctx context.Context, a *models.Account) (string, error) {
	if !g.NeedsRefresh(a) {
		return a.AccessToken, nil
	}
	if !a.HasRefreshToken() {
		g.log.Warn("Account has no refresh token", "account_id", a.ID)
		return "", apperr.ReauthRequired(a.ID)
	}

	grant, err := g.refresher.RefreshAccessToken(ctx, *a.RefreshToken)
	metrics.TokenRefresh(err)
	if err != nil {
		g.log.Error("Token refresh failed", "account_id", a.ID, "error", err)
		if _, ok := apperr.As(err); ok {
			return "", err
		}
		return "", apperr.Wrap(err, apperr.ErrTokenRefreshFailed, fmt.Sprintf("failed to refresh token: %v", err))
	}

	ttl := grant.ExpiresIn
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	expiresAt := g.now().Add(ttl).UTC()

	var rotated *string
	if grant.RefreshToken != "" {
		rt := grant.RefreshToken
		rotated = &rt
	}
	if err := g.writer.UpdateAccountTokens(ctx, a.ID, grant.AccessToken, rotated, expiresAt); err != nil {
		return "", fmt.Errorf("persist refreshed token: %w", err)
	}

	a.AccessToken = grant.AccessToken
	a.TokenExpiresAt = &expiresAt
	if rotated != nil {
		a.RefreshToken = rotated
	}
	g.log.Info("Refreshed access token", "account_id", a.ID, "expires_at", expiresAt)
	return a.AccessToken, nil
}
