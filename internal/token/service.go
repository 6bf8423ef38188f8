// Package token issues and redeems the short-lived login tokens that a
// downstream client exchanges to prove a recent, device-bound login.
package token

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ovaphlow/pitchfork/service-devicekey-go/internal/account/entity"
)

// DefaultTTL is how long an issued token stays redeemable.
const DefaultTTL = 5 * time.Minute

// 128 bits of entropy.
const valueBytes = 16

// ErrInvalid covers every verification failure: no token, wrong value, wrong
// device, expired, or already redeemed.
var ErrInvalid = errors.New("token invalid or expired")

// Store is the part of the account store the token lifecycle mutates.
type Store interface {
	SetToken(ctx context.Context, username string, t entity.Token) error
	ClearToken(ctx context.Context, username, value string) (bool, error)
}

// Service manages the single token slot of each account.
type Service struct {
	store Store
	clock clockwork.Clock
	ttl   time.Duration
}

type Option func(*Service)

func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, clock: clockwork.NewRealClock(), ttl: DefaultTTL}
	for _, o := range opts {
		o(s)
	}
	return s
}

// TTL returns the configured token lifetime.
func (s *Service) TTL() time.Duration { return s.ttl }

// Issue generates a fresh token for username and stores it, replacing any
// previous token. deviceID is optional; when set, Verify requires it again.
func (s *Service) Issue(ctx context.Context, username, deviceID string) (entity.Token, error) {
	b := make([]byte, valueBytes)
	if _, err := rand.Read(b); err != nil {
		return entity.Token{}, fmt.Errorf("read random: %w", err)
	}
	t := entity.Token{
		Value:          hex.EncodeToString(b),
		IssuedDeviceID: deviceID,
		ExpiresAt:      s.clock.Now().Add(s.ttl),
	}
	if err := s.store.SetToken(ctx, username, t); err != nil {
		return entity.Token{}, fmt.Errorf("store token: %w", err)
	}
	return t, nil
}

// Verify redeems value against the account's current token. A successful
// call clears the slot, so a token verifies at most once. Any mismatch returns
// ErrInvalid; other errors come from the store.
func (s *Service) Verify(ctx context.Context, a *entity.Account, value, deviceID string) error {
	t := a.Token
	if t == nil || value == "" {
		return ErrInvalid
	}
	if subtle.ConstantTimeCompare([]byte(value), []byte(t.Value)) != 1 {
		return ErrInvalid
	}
	if t.IssuedDeviceID != "" && subtle.ConstantTimeCompare([]byte(deviceID), []byte(t.IssuedDeviceID)) != 1 {
		return ErrInvalid
	}
	if t.Expired(s.clock.Now()) {
		return ErrInvalid
	}
	cleared, err := s.store.ClearToken(ctx, a.Username, t.Value)
	if err != nil {
		return fmt.Errorf("redeem token: %w", err)
	}
	if !cleared {
		// lost a race with another redemption or a newer login
		return ErrInvalid
	}
	return nil
}
