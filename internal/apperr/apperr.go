package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed, status-aware application error.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message,omitempty"`
	Status  int            `json:"-"`
	Fields  map[string]any `json:"fields,omitempty"`
	Err     error          `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	return "error"
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches on Code so errors.Is(err, ErrNotFound) holds for any copy
// produced by Wrap or WithFields.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

func Wrap(err error, base *Error, message string) *Error {
	if err == nil {
		return nil
	}
	if base == nil {
		base = ErrInternal
	}
	copy := *base
	if message != "" {
		copy.Message = message
	}
	copy.Err = err
	return &copy
}

func WithFields(base *Error, fields map[string]any) *Error {
	if base == nil {
		return nil
	}
	copy := *base
	copy.Fields = fields
	return &copy
}

func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}

func Status(err error) int {
	if e, ok := As(err); ok && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}

func Code(err error) string {
	if e, ok := As(err); ok && e.Code != "" {
		return e.Code
	}
	return "internal_error"
}

func Message(err error) string {
	if e, ok := As(err); ok {
		if e.Message != "" {
			return e.Message
		}
		if e.Err != nil {
			return e.Err.Error()
		}
		return e.Code
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

func Payload(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	if e, ok := As(err); ok {
		payload := map[string]any{
			"code":    Code(e),
			"message": Message(e),
		}
		if len(e.Fields) > 0 {
			payload["fields"] = e.Fields
		}
		return payload
	}
	return map[string]any{
		"code":    "internal_error",
		"message": err.Error(),
	}
}

var (
	ErrBadRequest         = New("bad_request", http.StatusBadRequest, "")
	ErrValidation         = New("validation_error", http.StatusBadRequest, "")
	ErrUnauthorized       = New("unauthorized", http.StatusUnauthorized, "")
	ErrNotFound           = New("not_found", http.StatusNotFound, "")
	ErrConflict           = New("conflict", http.StatusConflict, "")
	ErrInternal           = New("internal_error", http.StatusInternalServerError, "")
	ErrDatabase           = New("database_error", http.StatusInternalServerError, "")
	ErrReauthRequired     = New("reauth_required", http.StatusUnauthorized, "calendar account must be reconnected")
	ErrTokenRefreshFailed = New("token_refresh_failed", http.StatusBadGateway, "")
	ErrProvider           = New("provider_error", http.StatusBadGateway, "")
)

// ProviderError is the raw failure reported by the remote calendar API.
// Status is 0 for transport failures that never produced a response.
type ProviderError struct {
	Status int
	Body   string
}

func (e *ProviderError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("provider request failed: %s", e.Body)
	}
	return fmt.Sprintf("provider returned %d: %s", e.Status, e.Body)
}

// Provider wraps a remote API failure.
func Provider(status int, body string) *Error {
	pe := &ProviderError{Status: status, Body: body}
	return WithFields(Wrap(pe, ErrProvider, pe.Error()), map[string]any{"status": status})
}

// TokenRefreshFailed wraps a rejected refresh-token grant.
func TokenRefreshFailed(status int, body string) *Error {
	pe := &ProviderError{Status: status, Body: body}
	e := Wrap(pe, ErrTokenRefreshFailed, "failed to refresh token: "+body)
	return WithFields(e, map[string]any{"status": status, "body": body})
}

// ReauthRequired marks an account that has no usable refresh token.
func ReauthRequired(accountID fmt.Stringer) *Error {
	return WithFields(ErrReauthRequired, map[string]any{"account_id": accountID.String()})
}

// NotFound names the missing entity.
func NotFound(kind string, id any) *Error {
	e := *ErrNotFound
	e.Message = fmt.Sprintf("%s %v not found", kind, id)
	return &e
}

// Validation builds a validation error with an explicit message.
func Validation(message string) *Error {
	e := *ErrValidation
	e.Message = message
	return &e
}

// ProviderStatus returns the remote HTTP status carried by err, if any.
func ProviderStatus(err error) (int, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Status, true
	}
	return 0, false
}
