package token

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"calplan/internal/apperr"
	"calplan/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRefresher struct {
	grant *Grant
	err   error
	calls int
}

func (f *fakeRefresher) RefreshAccessToken(ctx context.Context, refreshToken string) (*Grant, error) {
	f.calls++
	return f.grant, f.err
}

type write struct {
	id        uuid.UUID
	access    string
	refresh   *string
	expiresAt time.Time
}

type fakeWriter struct {
	writes []write
	err    error
}

func (f *fakeWriter) UpdateAccountTokens(ctx context.Context, id uuid.UUID, access string, refresh *string, expiresAt time.Time) error {
	f.writes = append(f.writes, write{id, access, refresh, expiresAt})
	return f.err
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func account(expiresIn time.Duration, refresh string) *models.Account {
	exp := testNow.Add(expiresIn)
	a := &models.Account{AccessToken: "old-access", TokenExpiresAt: &exp}
	a.ID = uuid.New()
	if refresh != "" {
		a.RefreshToken = &refresh
	}
	return a
}

func newGuard(r Refresher, w Writer) *Guard {
	return NewGuard(r, w, discard(), WithClock(func() time.Time { return testNow }))
}

func TestNeedsRefreshBoundary(t *testing.T) {
	g := newGuard(nil, nil)
	tests := []struct {
		name      string
		expiresIn time.Duration
		want      bool
	}{
		{"expires in ten minutes", 10 * time.Minute, false},
		{"expires in six minutes", 6 * time.Minute, false},
		{"exactly at skew", 5 * time.Minute, true},
		{"inside skew", time.Minute, true},
		{"already expired", -10 * time.Minute, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.NeedsRefresh(account(tt.expiresIn, "rt")))
		})
	}
}

func TestNeedsRefreshWithoutExpiry(t *testing.T) {
	g := newGuard(nil, nil)
	assert.False(t, g.NeedsRefresh(&models.Account{AccessToken: "tok"}))
	assert.True(t, g.NeedsRefresh(&models.Account{}))
}

func TestEnsureValidFreshTokenMakesNoCall(t *testing.T) {
	r := &fakeRefresher{}
	w := &fakeWriter{}
	tok, err := newGuard(r, w).EnsureValid(context.Background(), account(time.Hour, "rt"))
	require.NoError(t, err)
	assert.Equal(t, "old-access", tok)
	assert.Zero(t, r.calls)
	assert.Empty(t, w.writes)
}

func TestEnsureValidRefreshesAndPersists(t *testing.T) {
	r := &fakeRefresher{grant: &Grant{AccessToken: "new-access", ExpiresIn: 30 * time.Minute}}
	w := &fakeWriter{}
	a := account(-10*time.Minute, "rt")

	tok, err := newGuard(r, w).EnsureValid(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, "new-access", tok)
	require.Len(t, w.writes, 1)
	assert.Equal(t, a.ID, w.writes[0].id)
	assert.Nil(t, w.writes[0].refresh, "omitted refresh token must not be overwritten")
	assert.True(t, w.writes[0].expiresAt.Equal(testNow.Add(30*time.Minute)))

	assert.Equal(t, "new-access", a.AccessToken)
	assert.Equal(t, "rt", *a.RefreshToken)
	assert.True(t, a.TokenExpiresAt.Equal(testNow.Add(30*time.Minute)))
}

func TestEnsureValidDefaultTTLAndRotation(t *testing.T) {
	r := &fakeRefresher{grant: &Grant{AccessToken: "new", RefreshToken: "rotated"}}
	w := &fakeWriter{}
	a := account(time.Minute, "rt")

	_, err := newGuard(r, w).EnsureValid(context.Background(), a)
	require.NoError(t, err)
	require.Len(t, w.writes, 1)
	require.NotNil(t, w.writes[0].refresh)
	assert.Equal(t, "rotated", *w.writes[0].refresh)
	assert.True(t, w.writes[0].expiresAt.Equal(testNow.Add(time.Hour)))
	assert.Equal(t, "rotated", *a.RefreshToken)
}

func TestEnsureValidWithoutRefreshTokenNeedsReauth(t *testing.T) {
	r := &fakeRefresher{}
	a := account(-time.Minute, "")

	_, err := newGuard(r, &fakeWriter{}).EnsureValid(context.Background(), a)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrReauthRequired))
	assert.Equal(t, http.StatusUnauthorized, apperr.Status(err))
	assert.Zero(t, r.calls, "no network call without a refresh token")
}

func TestEnsureValidRefreshRejected(t *testing.T) {
	r := &fakeRefresher{err: apperr.TokenRefreshFailed(http.StatusBadRequest, `{"error":"invalid_grant"}`)}
	w := &fakeWriter{}
	a := account(-time.Minute, "rt")

	_, err := newGuard(r, w).EnsureValid(context.Background(), a)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrTokenRefreshFailed))
	assert.Contains(t, err.Error(), "invalid_grant")
	assert.Empty(t, w.writes)
	assert.Equal(t, "old-access", a.AccessToken)
}

func TestEnsureValidTransportErrorIsRefreshFailure(t *testing.T) {
	r := &fakeRefresher{err: errors.New("dial tcp: timeout")}
	_, err := newGuard(r, &fakeWriter{}).EnsureValid(context.Background(), account(-time.Minute, "rt"))
	assert.True(t, errors.Is(err, apperr.ErrTokenRefreshFailed))
}

func TestEnsureValidPersistFailure(t *testing.T) {
	r := &fakeRefresher{grant: &Grant{AccessToken: "new"}}
	w := &fakeWriter{err: errors.New("disk full")}
	a := account(-time.Minute, "rt")

	_, err := newGuard(r, w).EnsureValid(context.Background(), a)
	require.Error(t, err)
	assert.Equal(t, "old-access", a.AccessToken, "in-memory account only changes after the write")
}
