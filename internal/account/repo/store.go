package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/ovaphlow/pitchfork/service-devicekey-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-devicekey-go/internal/device"
)

var (
	ErrNotFound      = errors.New("account not found")
	ErrAlreadyExists = errors.New("account already exists")
)

// Store persists account records keyed by username. Implementations must
// serialize mutations of a single record; Get returns copies.
type Store interface {
	Create(ctx context.Context, a *entity.Account) error
	Get(ctx context.Context, username string) (*entity.Account, error)
	// SetToken replaces the account's token slot.
	SetToken(ctx context.Context, username string, t entity.Token) error
	// ClearToken empties the token slot only if it still holds value and
	// reports whether it did. An unknown username is ErrNotFound.
	ClearToken(ctx context.Context, username, value string) (bool, error)
	Close() error
}

// checkNew validates a record before any backend inserts it.
func checkNew(a *entity.Account) error {
	if a == nil || a.Username == "" {
		return errors.New("username required")
	}
	if !device.ValidKey(a.DeviceKey) {
		return fmt.Errorf("account %q: malformed device key", a.Username)
	}
	return nil
}
