// ABOUTME: Signed OAuth state parameter for the calendar connect flow
// ABOUTME: Binds the consent round trip to the initiating user with a short-lived HS256 JWT
package sync

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const stateAudience = "google_calendar_connect"

// DefaultStateTTL is how long a user has to complete the consent screen.
const DefaultStateTTL = 10 * time.Minute

type StateSigner struct {
	key []byte
	ttl time.Duration
}

func NewStateSigner(secret string, ttl time.Duration) (*StateSigner, error) {
	if secret == "" {
		return nil, errors.New("state secret is empty")
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateSigner{key: []byte(secret), ttl: ttl}, nil
}

// Sign returns a state value naming userID.
func (s *StateSigner) Sign(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		Audience:  jwt.ClaimStrings{stateAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		ID:        uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}
	return signed, nil
}

// Verify checks signature, audience and expiry and returns the user id.
func (s *StateSigner) Verify(state string) (uuid.UUID, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(state, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if !claims.VerifyAudience(stateAudience, true) {
		return uuid.Nil, fmt.Errorf("%w: wrong audience", ErrInvalidState)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", ErrInvalidState)
	}
	return userID, nil
}
