// Package accounts connects and disconnects provider accounts through the
// OAuth authorization-code flow.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"calplan/internal/apperr"
	"calplan/internal/google"
	"calplan/internal/models"
	"calplan/internal/store"
	"calplan/internal/token"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// OAuthClient is the provider side of the flow. *google.OAuth implements
// it.
type OAuthClient interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*token.Grant, error)
	UserInfo(ctx context.Context, accessToken string) (*google.UserInfo, error)
}

type Service struct {
	repo     store.Repository
	oauth    OAuthClient
	secret   []byte
	provider string
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo store.Repository, oauth OAuthClient, stateSecret string, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		oauth:    oauth,
		secret:   []byte(stateSecret),
		provider: models.ProviderGoogle,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AuthorizeURL returns the consent screen URL for an existing user.
func (s *Service) AuthorizeURL(ctx context.Context, userID uuid.UUID) (string, error) {
	if len(s.secret) == 0 {
		return "", apperr.Wrap(errors.New("state secret is empty"), apperr.ErrInternal, "oauth is not configured")
	}
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return "", err
	}
	state, err := signState(s.secret, userID, s.now())
	if err != nil {
		return "", err
	}
	s.logger.Info("Redirecting user to consent screen", "userID", userID)
	return s.oauth.AuthCodeURL(state), nil
}

// Connect completes the flow: it verifies state, exchanges the code, looks
// up the provider identity and creates or refreshes the Account. A refresh
// token already on file is kept when the exchange does not return one.
func (s *Service) Connect(ctx context.Context, state, code string) (*models.Account, error) {
	userID, err := parseState(s.secret, state)
	if err != nil {
		return nil, err
	}
	if code == "" {
		return nil, apperr.Validation("missing code parameter")
	}
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	grant, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		s.logger.Error("Token exchange failed", "userID", userID, "error", err)
		return nil, err
	}
	info, err := s.oauth.UserInfo(ctx, grant.AccessToken)
	if err != nil {
		return nil, err
	}

	ttl := grant.ExpiresIn
	if ttl <= 0 {
		ttl = token.DefaultTTL
	}
	expiresAt := s.now().Add(ttl).UTC()
	scopes, err := json.Marshal(map[string]any{"calendar": true, "granted": grant.Scopes})
	if err != nil {
		return nil, fmt.Errorf("encode scopes: %w", err)
	}

	var account *models.Account
	err = s.repo.WithTx(ctx, func(tx store.Repository) error {
		existing, err := tx.FindAccount(ctx, userID, s.provider, info.ID)
		if errors.Is(err, apperr.ErrNotFound) {
			account = &models.Account{
				UserID:            userID,
				Provider:          s.provider,
				ProviderAccountID: info.ID,
				AccessToken:       grant.AccessToken,
				TokenExpiresAt:    &expiresAt,
				Scopes:            string(scopes),
			}
			if grant.RefreshToken != "" {
				rt := grant.RefreshToken
				account.RefreshToken = &rt
			}
			return tx.CreateAccount(ctx, account)
		}
		if err != nil {
			return err
		}
		existing.AccessToken = grant.AccessToken
		existing.TokenExpiresAt = &expiresAt
		existing.Scopes = string(scopes)
		if grant.RefreshToken != "" {
			rt := grant.RefreshToken
			existing.RefreshToken = &rt
		}
		account = existing
		return tx.SaveAccount(ctx, existing)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Connected calendar account", "userID", userID, "accountID", account.ID, "email", info.Email, "hasRefreshToken", account.HasRefreshToken())
	return account, nil
}

// Disconnect removes every account the user has for the provider together
// with their calendars and events. It returns how many accounts went.
func (s *Service) Disconnect(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.repo.DeleteAccountsForUser(ctx, userID, s.provider)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, apperr.NotFound("calendar connection for user", userID)
	}
	s.logger.Info("Disconnected calendar accounts", "userID", userID, "accounts", n)
	return n, nil
}

// List returns the user's connected accounts for the provider.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]models.Account, error) {
	return s.repo.ListAccountsForUser(ctx, userID, s.provider)
}
