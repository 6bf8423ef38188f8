package entity

import "time"

// Account is the stored state for one username. Username, PasswordHash, Email and
// DeviceKey are fixed at registration; only Token changes afterwards.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Email        string    `json:"email"`
	DeviceKey    string    `json:"device_key"`
	Token        *Token    `json:"token,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Token is the single live login token of an account. A nil *Token means the
// account is not currently authenticated.
type Token struct {
	Value          string    `json:"value"`
	IssuedDeviceID string    `json:"issued_device_id,omitempty"` // optional, bound at login
	ExpiresAt      time.Time `json:"expires_at"`
}

// Expired reports whether the token is no longer usable at now.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Clone returns a deep copy so callers can't mutate a store's record through it.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.Token != nil {
		t := *a.Token
		c.Token = &t
	}
	return &c
}
