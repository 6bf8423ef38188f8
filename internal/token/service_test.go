package token

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-devicekey-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-devicekey-go/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-devicekey-go/internal/device"
)

func setup(t *testing.T) (*Service, *repo.MemoryStore, *clockwork.FakeClock) {
	t.Helper()
	store := repo.NewMemoryStore()
	require.NoError(t, store.Create(context.Background(), &entity.Account{
		ID:        "1",
		Username:  "alice",
		Email:     "alice@x.com",
		DeviceKey: device.DeriveKey([]byte("ua-seed-1")),
	}))
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC))
	return NewService(store, WithClock(clock)), store, clock
}

func account(t *testing.T, store *repo.MemoryStore) *entity.Account {
	t.Helper()
	a, err := store.Get(context.Background(), "alice")
	require.NoError(t, err)
	return a
}

func TestIssue(t *testing.T) {
	svc, store, clock := setup(t)
	tok, err := svc.Issue(context.Background(), "alice", "")
	require.NoError(t, err)

	raw, err := hex.DecodeString(tok.Value)
	require.NoError(t, err)
	assert.Len(t, raw, 16)
	assert.Equal(t, clock.Now().Add(5*time.Minute), tok.ExpiresAt)

	stored := account(t, store).Token
	require.NotNil(t, stored)
	assert.Equal(t, tok.Value, stored.Value)
}

func TestIssue_ReplacesPreviousToken(t *testing.T) {
	svc, store, _ := setup(t)
	first, err := svc.Issue(context.Background(), "alice", "")
	require.NoError(t, err)
	second, err := svc.Issue(context.Background(), "alice", "")
	require.NoError(t, err)
	assert.NotEqual(t, first.Value, second.Value)

	assert.ErrorIs(t, svc.Verify(context.Background(), account(t, store), first.Value, ""), ErrInvalid)
	assert.NoError(t, svc.Verify(context.Background(), account(t, store), second.Value, ""))
}

func TestIssue_UnknownAccount(t *testing.T) {
	svc, _, _ := setup(t)
	_, err := svc.Issue(context.Background(), "ghost", "")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestVerify_SingleUse(t *testing.T) {
	svc, store, _ := setup(t)
	tok, err := svc.Issue(context.Background(), "alice", "")
	require.NoError(t, err)

	require.NoError(t, svc.Verify(context.Background(), account(t, store), tok.Value, ""))
	assert.Nil(t, account(t, store).Token)
	assert.ErrorIs(t, svc.Verify(context.Background(), account(t, store), tok.Value, ""), ErrInvalid)
}

func TestVerify_Expiry(t *testing.T) {
	svc, store, clock := setup(t)
	tok, err := svc.Issue(context.Background(), "alice", "")
	require.NoError(t, err)

	clock.Advance(5*time.Minute - time.Second)
	a := account(t, store)
	clock.Advance(time.Second)
	assert.ErrorIs(t, svc.Verify(context.Background(), a, tok.Value, ""), ErrInvalid,
		"a token is invalid at exactly expiresAt")
	assert.NotNil(t, account(t, store).Token, "expiry is passive and does not clear the slot")
}

func TestVerify_JustBeforeExpiry(t *testing.T) {
	svc, store, clock := setup(t)
	tok, err := svc.Issue(context.Background(), "alice", "")
	require.NoError(t, err)

	clock.Advance(5*time.Minute - time.Millisecond)
	assert.NoError(t, svc.Verify(context.Background(), account(t, store), tok.Value, ""))
}

func TestVerify_Failures(t *testing.T) {
	tests := []struct {
		name     string
		issueDev string
		value    func(issued string) string
		dev      string
	}{
		{"empty value", "", func(string) string { return "" }, ""},
		{"wrong value", "", func(string) string { return "00000000000000000000000000000000" }, ""},
		{"prefix of value", "", func(v string) string { return v[:10] }, ""},
		{"missing bound device", "dev-1", func(v string) string { return v }, ""},
		{"wrong bound device", "dev-1", func(v string) string { return v }, "dev-2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := setup(t)
			tok, err := svc.Issue(context.Background(), "alice", tt.issueDev)
			require.NoError(t, err)

			err = svc.Verify(context.Background(), account(t, store), tt.value(tok.Value), tt.dev)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.NotNil(t, account(t, store).Token, "failed verification must not consume the token")
		})
	}
}

func TestVerify_NoToken(t *testing.T) {
	svc, store, _ := setup(t)
	assert.ErrorIs(t, svc.Verify(context.Background(), account(t, store), "abc", ""), ErrInvalid)
}

func TestVerify_BoundDevice(t *testing.T) {
	svc, store, _ := setup(t)
	tok, err := svc.Issue(context.Background(), "alice", "dev-1")
	require.NoError(t, err)
	assert.NoError(t, svc.Verify(context.Background(), account(t, store), tok.Value, "dev-1"))
}

func TestVerify_ConcurrentRedeemSucceedsOnce(t *testing.T) {
	svc, store, _ := setup(t)
	tok, err := svc.Issue(context.Background(), "alice", "")
	require.NoError(t, err)
	snapshot := account(t, store)

	var ok, invalid atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := svc.Verify(context.Background(), snapshot.Clone(), tok.Value, "")
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrInvalid):
				invalid.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(19), invalid.Load())
}

type failingStore struct{ err error }

func (f failingStore) SetToken(context.Context, string, entity.Token) error { return f.err }
func (f failingStore) ClearToken(context.Context, string, string) (bool, error) {
	return false, f.err
}

func TestStoreErrorsAreNotInvalid(t *testing.T) {
	boom := errors.New("disk full")
	clock := clockwork.NewFakeClock()
	svc := NewService(failingStore{err: boom}, WithClock(clock))

	_, err := svc.Issue(context.Background(), "alice", "")
	assert.ErrorIs(t, err, boom)

	a := &entity.Account{Username: "alice", Token: &entity.Token{Value: "v", ExpiresAt: clock.Now().Add(time.Minute)}}
	err = svc.Verify(context.Background(), a, "v", "")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrInvalid)
}

func TestWithTTL(t *testing.T) {
	store := repo.NewMemoryStore()
	assert.Equal(t, DefaultTTL, NewService(store, WithTTL(0)).TTL())
	assert.Equal(t, time.Minute, NewService(store, WithTTL(time.Minute)).TTL())
}
