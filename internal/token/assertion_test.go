package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigner_RoundTrip(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC))
	s, err := NewSigner([]byte("secret"), "devicekey", time.Minute, clock)
	require.NoError(t, err)

	raw, err := s.Sign("alice", "dk")
	require.NoError(t, err)

	claims, err := s.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "dk", claims.DeviceKey)
	assert.Equal(t, "devicekey", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, clock.Now().Add(time.Minute).Unix(), claims.ExpiresAt.Unix())
}

func TestSigner_Expired(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC))
	s, err := NewSigner([]byte("secret"), "devicekey", time.Minute, clock)
	require.NoError(t, err)
	raw, err := s.Sign("alice", "dk")
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = s.Parse(raw)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestSigner_WrongSecretOrIssuer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s, err := NewSigner([]byte("secret"), "devicekey", time.Minute, clock)
	require.NoError(t, err)
	raw, err := s.Sign("alice", "dk")
	require.NoError(t, err)

	other, err := NewSigner([]byte("other"), "devicekey", time.Minute, clock)
	require.NoError(t, err)
	_, err = other.Parse(raw)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	foreign, err := NewSigner([]byte("secret"), "someone-else", time.Minute, clock)
	require.NoError(t, err)
	_, err = foreign.Parse(raw)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
}

func TestNewSigner_RequiresSecret(t *testing.T) {
	_, err := NewSigner(nil, "devicekey", time.Minute, nil)
	assert.Error(t, err)
}
