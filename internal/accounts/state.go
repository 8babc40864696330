package accounts

import (
	"errors"
	"fmt"
	"time"

	"calplan/internal/apperr"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

// StateTTL bounds how long a consent screen round trip may take.
const StateTTL = 10 * time.Minute

const stateIssuer = "calplan"

type stateClaims struct {
	UserID string `json:"uid"`
	jwt.StandardClaims
}

// signState returns an HS256 token binding the OAuth round trip to userID.
func signState(secret []byte, userID uuid.UUID, now time.Time) (string, error) {
	claims := stateClaims{
		UserID: userID.String(),
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.NewString(),
			Issuer:    stateIssuer,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(StateTTL).Unix(),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}
	return signed, nil
}

// parseState verifies the signature and expiry and returns the user id.
func parseState(secret []byte, state string) (uuid.UUID, error) {
	if state == "" {
		return uuid.Nil, apperr.Validation("missing state parameter")
	}
	claims := &stateClaims{}
	_, err := jwt.ParseWithClaims(state, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return uuid.Nil, apperr.Wrap(err, apperr.ErrBadRequest, "invalid state parameter")
	}
	if claims.Issuer != stateIssuer {
		return uuid.Nil, apperr.Wrap(errors.New("unexpected issuer"), apperr.ErrBadRequest, "invalid state parameter")
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, apperr.Wrap(err, apperr.ErrBadRequest, "invalid state parameter")
	}
	return id, nil
}
