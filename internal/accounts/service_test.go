package accounts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"calplan/internal/apperr"
	"calplan/internal/google"
	"calplan/internal/models"
	"calplan/internal/store"
	"calplan/internal/token"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const secret = "test-secret"

type fakeOAuth struct {
	grant       token.Grant
	exchangeErr error
	info        google.UserInfo
	codes       []string
}

func (f *fakeOAuth) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + url.QueryEscape(state)
}

func (f *fakeOAuth) Exchange(ctx context.Context, code string) (*token.Grant, error) {
	f.codes = append(f.codes, code)
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	g := f.grant
	return &g, nil
}

func (f *fakeOAuth) UserInfo(ctx context.Context, accessToken string) (*google.UserInfo, error) {
	i := f.info
	return &i, nil
}

func newTestService(t *testing.T, oauth OAuthClient, opts ...Option) (*Service, *store.Store, *models.User) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(store.SQLiteDSN(filepath.Join(t.TempDir(), "test.db"))), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := store.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := store.New(db)
	u := &models.User{Email: "owner@example.com"}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return NewService(s, oauth, secret, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...), s, u
}

func stateFrom(t *testing.T, authURL string) string {
	t.Helper()
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	return u.Query().Get("state")
}

func TestStateRoundTrip(t *testing.T) {
	id := uuid.New()
	state, err := signState([]byte(secret), id, time.Now())
	require.NoError(t, err)

	got, err := parseState([]byte(secret), state)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	tests := []struct {
		name  string
		state string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"tampered", state[:len(state)-2] + "xx"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseState([]byte(secret), tt.state)
			assert.Equal(t, 400, apperr.Status(err))
		})
	}

	_, err = parseState([]byte("other-secret"), state)
	assert.Error(t, err)

	expired, err := signState([]byte(secret), id, time.Now().Add(-StateTTL-time.Minute))
	require.NoError(t, err)
	_, err = parseState([]byte(secret), expired)
	assert.True(t, errors.Is(err, apperr.ErrBadRequest))
}

func TestConnectCreatesAccount(t *testing.T) {
	oauth := &fakeOAuth{
		grant: token.Grant{AccessToken: "at", RefreshToken: "rt", Scopes: []string{"calendar"}},
		info:  google.UserInfo{ID: "g-123", Email: "me@example.com"},
	}
	svc, _, u := newTestService(t, oauth)
	ctx := context.Background()

	authURL, err := svc.AuthorizeURL(ctx, u.ID)
	require.NoError(t, err)

	before := time.Now()
	a, err := svc.Connect(ctx, stateFrom(t, authURL), "code-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"code-1"}, oauth.codes)
	assert.Equal(t, u.ID, a.UserID)
	assert.Equal(t, "g-123", a.ProviderAccountID)
	assert.Equal(t, "at", a.AccessToken)
	require.NotNil(t, a.RefreshToken)
	assert.Equal(t, "rt", *a.RefreshToken)
	require.NotNil(t, a.TokenExpiresAt)
	assert.WithinDuration(t, before.Add(token.DefaultTTL), *a.TokenExpiresAt, 5*time.Second)
	assert.JSONEq(t, `{"calendar":true,"granted":["calendar"]}`, a.Scopes)

	list, err := svc.List(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestReconnectKeepsRefreshTokenWhenOmitted(t *testing.T) {
	oauth := &fakeOAuth{
		grant: token.Grant{AccessToken: "at-1", RefreshToken: "rt-1", ExpiresIn: 30 * time.Minute},
		info:  google.UserInfo{ID: "g-123"},
	}
	fixed := time.Now().UTC().Truncate(time.Second)
	svc, s, u := newTestService(t, oauth, WithClock(func() time.Time { return fixed }))
	ctx := context.Background()
	authURL, err := svc.AuthorizeURL(ctx, u.ID)
	require.NoError(t, err)
	state := stateFrom(t, authURL)

	first, err := svc.Connect(ctx, state, "code-1")
	require.NoError(t, err)
	assert.True(t, first.TokenExpiresAt.Equal(fixed.Add(30*time.Minute)))

	oauth.grant = token.Grant{AccessToken: "at-2"}
	second, err := svc.Connect(ctx, state, "code-2")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	stored, err := s.GetAccount(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "at-2", stored.AccessToken)
	assert.Equal(t, "rt-1", *stored.RefreshToken)
}

func TestConnectFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("bad state never reaches the provider", func(t *testing.T) {
		oauth := &fakeOAuth{}
		svc, _, _ := newTestService(t, oauth)
		_, err := svc.Connect(ctx, "forged", "code")
		assert.Equal(t, 400, apperr.Status(err))
		assert.Empty(t, oauth.codes)
	})

	t.Run("exchange rejected", func(t *testing.T) {
		oauth := &fakeOAuth{exchangeErr: apperr.Wrap(errors.New("invalid_grant"), apperr.ErrBadRequest, "failed to exchange code for tokens")}
		svc, s, u := newTestService(t, oauth)
		authURL, err := svc.AuthorizeURL(ctx, u.ID)
		require.NoError(t, err)
		_, err = svc.Connect(ctx, stateFrom(t, authURL), "code")
		assert.Equal(t, 400, apperr.Status(err))
		list, err := s.ListAccountsForUser(ctx, u.ID, "")
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("unknown user", func(t *testing.T) {
		svc, _, _ := newTestService(t, &fakeOAuth{})
		_, err := svc.AuthorizeURL(ctx, uuid.New())
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
	})
}

func TestDisconnect(t *testing.T) {
	oauth := &fakeOAuth{grant: token.Grant{AccessToken: "at", RefreshToken: "rt"}, info: google.UserInfo{ID: "g-1"}}
	svc, s, u := newTestService(t, oauth)
	ctx := context.Background()

	_, err := svc.Disconnect(ctx, u.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	authURL, err := svc.AuthorizeURL(ctx, u.ID)
	require.NoError(t, err)
	a, err := svc.Connect(ctx, stateFrom(t, authURL), "code")
	require.NoError(t, err)
	cal := &models.CalendarSource{AccountID: a.ID, ExternalCalendarID: "cal1", Name: "Work", Timezone: "UTC"}
	require.NoError(t, s.CreateCalendar(ctx, cal))

	n, err := svc.Disconnect(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	cals, err := s.ListCalendarsForUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, cals)
}

func TestAuthorizeURLRequiresSecret(t *testing.T) {
	svc, _, u := newTestService(t, &fakeOAuth{})
	svc.secret = nil
	_, err := svc.AuthorizeURL(context.Background(), u.ID)
	assert.Equal(t, 500, apperr.Status(err))
}
