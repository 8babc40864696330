package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
)

func TestIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("sync account: %w", NotFound("account", 42))
	if !errors.Is(wrapped, ErrNotFound) {
		t.Fatalf("expected errors.Is to match not_found")
	}
	if errors.Is(wrapped, ErrValidation) {
		t.Fatalf("not_found must not match validation_error")
	}
}

func TestProviderErrorCarriesStatusAndBody(t *testing.T) {
	err := fmt.Errorf("list events: %w", Provider(http.StatusForbidden, `{"error":"rate"}`))
	if Status(err) != http.StatusBadGateway {
		t.Fatalf("Status() = %d, want %d", Status(err), http.StatusBadGateway)
	}
	status, ok := ProviderStatus(err)
	if !ok || status != http.StatusForbidden {
		t.Fatalf("ProviderStatus() = %d, %v", status, ok)
	}
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Body != `{"error":"rate"}` {
		t.Fatalf("expected provider body to be preserved, got %#v", pe)
	}
}

func TestTokenRefreshFailed(t *testing.T) {
	err := TokenRefreshFailed(http.StatusBadRequest, "invalid_grant")
	if !errors.Is(err, ErrTokenRefreshFailed) {
		t.Fatalf("expected token_refresh_failed")
	}
	if err.Fields["body"] != "invalid_grant" {
		t.Fatalf("body field = %v", err.Fields["body"])
	}
}

func TestReauthRequiredPayload(t *testing.T) {
	id := uuid.New()
	p := Payload(ReauthRequired(id))
	if p["code"] != "reauth_required" {
		t.Fatalf("code = %v", p["code"])
	}
	fields, ok := p["fields"].(map[string]any)
	if !ok || fields["account_id"] != id.String() {
		t.Fatalf("fields = %#v", p["fields"])
	}
}

func TestPayloadPlainError(t *testing.T) {
	p := Payload(errors.New("boom"))
	if p["code"] != "internal_error" || p["message"] != "boom" {
		t.Fatalf("payload = %#v", p)
	}
	if Status(errors.New("boom")) != http.StatusInternalServerError {
		t.Fatalf("plain errors map to 500")
	}
}
