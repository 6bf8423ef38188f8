package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/ovaphlow/pitchfork/service-devicekey-go/pkg/utilities"
)

// AssertionClaims is the payload of a handoff assertion.
type AssertionClaims struct {
	DeviceKey string `json:"dk"`
	jwt.RegisteredClaims
}

// Signer mints HS256 assertions after a successful token verification so the
// redeeming client can forward proof of the handoff to its own backend.
type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  clockwork.Clock
}

func NewSigner(secret []byte, issuer string, ttl time.Duration, clock clockwork.Clock) (*Signer, error) {
	if len(secret) == 0 {
		return nil, errors.New("assertion secret required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Signer{secret: secret, issuer: issuer, ttl: ttl, clock: clock}, nil
}

func (s *Signer) Sign(username, deviceKey string) (string, error) {
	now := s.clock.Now()
	claims := AssertionClaims{
		DeviceKey: deviceKey,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   username,
			ID:        utilities.NewKSUID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}
	return signed, nil
}

// Parse validates signature, issuer and expiry and returns the claims.
func (s *Signer) Parse(raw string) (*AssertionClaims, error) {
	claims := &AssertionClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
