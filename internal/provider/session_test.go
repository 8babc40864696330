package provider_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"calplan/internal/models"
	"calplan/internal/provider"
	"calplan/internal/provider/providertest"
)

type tokenSeq struct {
	tokens []string
	calls  int
	err    error
}

func (s *tokenSeq) EnsureValid(ctx context.Context, a *models.Account) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	tok := s.tokens[min(s.calls, len(s.tokens)-1)]
	s.calls++
	return tok, nil
}

func TestSessionValidatesBeforeEveryCall(t *testing.T) {
	fake := providertest.New().AddCalendar(provider.Calendar{ID: "primary"})
	built := 0
	factory := func(ctx context.Context, token string) (provider.Client, error) {
		built++
		return fake, nil
	}
	guard := &tokenSeq{tokens: []string{"a", "a", "b"}}
	s := provider.NewSession(guard, factory, &models.Account{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.ListCalendars(ctx); err != nil {
			t.Fatalf("ListCalendars() error = %v", err)
		}
	}
	if guard.calls != 3 {
		t.Fatalf("EnsureValid calls = %d, want 3", guard.calls)
	}
	if built != 2 {
		t.Fatalf("clients built = %d, want 2 (token changed once)", built)
	}
}

func TestSessionStopsOnTokenError(t *testing.T) {
	fake := providertest.New()
	guard := &tokenSeq{err: errors.New("reauth")}
	s := provider.NewSession(guard, fake.Factory(), &models.Account{})

	if _, err := s.ListEvents(context.Background(), "primary", time.Time{}, time.Time{}); err == nil {
		t.Fatalf("expected token error")
	}
	if len(fake.Calls) != 0 {
		t.Fatalf("provider must not be called, got %v", fake.Calls)
	}
}
