package repo

import (
	"context"
	"sync"

	"github.com/ovaphlow/pitchfork/service-devicekey-go/internal/account/entity"
)

// MemoryStore keeps accounts in process memory behind one RWMutex.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*entity.Account
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*entity.Account)}
}

func (s *MemoryStore) Create(_ context.Context, a *entity.Account) error {
	if err := checkNew(a); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.Username]; ok {
		return ErrAlreadyExists
	}
	c := a.Clone()
	c.Token = nil
	s.accounts[a.Username] = c
	return nil
}

func (s *MemoryStore) Get(_ context.Context, username string) (*entity.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[username]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (s *MemoryStore) SetToken(_ context.Context, username string, t entity.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[username]
	if !ok {
		return ErrNotFound
	}
	a.Token = &t
	return nil
}

func (s *MemoryStore) ClearToken(_ context.Context, username, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[username]
	if !ok {
		return false, ErrNotFound
	}
	if a.Token == nil || a.Token.Value != value {
		return false, nil
	}
	a.Token = nil
	return true, nil
}

func (s *MemoryStore) Close() error { return nil }
