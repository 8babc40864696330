package provider

import (
	"context"
	"sync"
	"time"

	"calplan/internal/models"
)

// Session is a Client bound to one account. Every call first asks the
// TokenValidator for a valid token and rebuilds the underlying client when
// the token changed, so a long sync never outlives its access token.
type Session struct {
	guard   TokenValidator
	factory Factory
	account *models.Account

	mu     sync.Mutex
	token  string
	client Client
}

// NewSession binds guard and factory to account.
func NewSession(guard TokenValidator, factory Factory, account *models.Account) *Session {
	return &Session{guard: guard, factory: factory, account: account}
}

// Account returns the bound account.
func (s *Session) Account() *models.Account {
	return s.account
}

func (s *Session) current(ctx context.Context) (Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.guard.EnsureValid(ctx, s.account)
	if err != nil {
		return nil, err
	}
	if s.client != nil && token == s.token {
		return s.client, nil
	}
	c, err := s.factory(ctx, token)
	if err != nil {
		return nil, err
	}
	s.client, s.token = c, token
	return c, nil
}

func (s *Session) ListCalendars(ctx context.Context) ([]Calendar, error) {
	c, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	return c.ListCalendars(ctx)
}

func (s *Session) ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]Event, error) {
	c, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	return c.ListEvents(ctx, calendarID, timeMin, timeMax)
}

func (s *Session) CreateEvent(ctx context.Context, calendarID string, in EventInput) (*Event, error) {
	c, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	return c.CreateEvent(ctx, calendarID, in)
}

func (s *Session) UpdateEvent(ctx context.Context, calendarID, eventID string, in EventInput) (*Event, error) {
	c, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	return c.UpdateEvent(ctx, calendarID, eventID, in)
}

func (s *Session) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	c, err := s.current(ctx)
	if err != nil {
		return err
	}
	return c.DeleteEvent(ctx, calendarID, eventID)
}
