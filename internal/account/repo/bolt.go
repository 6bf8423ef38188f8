package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/ovaphlow/pitchfork/service-devicekey-go/internal/account/entity"
)

var accountsBucket = []byte("accounts")

// BoltStore keeps accounts in a single bbolt bucket as JSON, keyed by username.
type BoltStore struct {
	db *bbolt.DB
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore wraps an open bbolt database and makes sure the bucket exists.
func NewBoltStore(db *bbolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(accountsBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create accounts bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Create(_ context.Context, a *entity.Account) error {
	if err := checkNew(a); err != nil {
		return err
	}
	c := a.Clone()
	c.Token = nil
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(accountsBucket)
		if b.Get([]byte(a.Username)) != nil {
			return ErrAlreadyExists
		}
		return b.Put([]byte(a.Username), data)
	})
}

func (s *BoltStore) Get(_ context.Context, username string) (*entity.Account, error) {
	var a entity.Account
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(accountsBucket).Get([]byte(username))
		if data == nil {
			return fmt.Errorf("%s: %w", username, ErrNotFound)
		}
		return json.Unmarshal(data, &a)
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// update loads one record, applies fn and writes it back within a single
// read-write transaction.
func (s *BoltStore) update(username string, fn func(a *entity.Account) (bool, error)) (bool, error) {
	var changed bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(accountsBucket)
		data := b.Get([]byte(username))
		if data == nil {
			return fmt.Errorf("%s: %w", username, ErrNotFound)
		}
		var a entity.Account
		if err := json.Unmarshal(data, &a); err != nil {
			return err
		}
		var err error
		changed, err = fn(&a)
		if err != nil || !changed {
			return err
		}
		out, err := json.Marshal(&a)
		if err != nil {
			return err
		}
		return b.Put([]byte(username), out)
	})
	return changed, err
}

func (s *BoltStore) SetToken(_ context.Context, username string, t entity.Token) error {
	_, err := s.update(username, func(a *entity.Account) (bool, error) {
		a.Token = &t
		return true, nil
	})
	return err
}

func (s *BoltStore) ClearToken(_ context.Context, username, value string) (bool, error) {
	return s.update(username, func(a *entity.Account) (bool, error) {
		if a.Token == nil || a.Token.Value != value {
			return false, nil
		}
		a.Token = nil
		return true, nil
	})
}

func (s *BoltStore) Close() error { return s.db.Close() }
