package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-devicekey-go/internal/account/entity"
)

// pq error code for unique_violation.
const uniqueViolation = "23505"

// PostgresStore provides data access for the device_accounts table using sqlx.
type PostgresStore struct {
	db *sqlx.DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sqlx.DB) *PostgresStore { return &PostgresStore{db: db} }

// EnsureTable creates the device_accounts table if not exists (idempotent).
func (s *PostgresStore) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS device_accounts (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  email TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  device_key CHAR(64) NOT NULL,
  token_value TEXT,
  token_device_id TEXT,
  token_expires_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

type accountRow struct {
	ID             string         `db:"id"`
	Username       string         `db:"username"`
	Email          string         `db:"email"`
	PasswordHash   string         `db:"password_hash"`
	DeviceKey      string         `db:"device_key"`
	TokenValue     sql.NullString `db:"token_value"`
	TokenDeviceID  sql.NullString `db:"token_device_id"`
	TokenExpiresAt sql.NullTime   `db:"token_expires_at"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (r accountRow) toEntity() *entity.Account {
	a := &entity.Account{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		DeviceKey:    r.DeviceKey,
		CreatedAt:    r.CreatedAt,
	}
	if r.TokenValue.Valid && r.TokenExpiresAt.Valid {
		a.Token = &entity.Token{
			Value:          r.TokenValue.String,
			IssuedDeviceID: r.TokenDeviceID.String,
			ExpiresAt:      r.TokenExpiresAt.Time,
		}
	}
	return a
}

func (s *PostgresStore) Create(ctx context.Context, a *entity.Account) error {
	if err := checkNew(a); err != nil {
		return err
	}
	const q = `INSERT INTO device_accounts (id, username, email, password_hash, device_key, created_at)
		VALUES (:id, :username, :email, :password_hash, :device_key, :created_at)`
	params := map[string]any{
		"id":            a.ID,
		"username":      a.Username,
		"email":         a.Email,
		"password_hash": a.PasswordHash,
		"device_key":    a.DeviceKey,
		"created_at":    a.CreatedAt,
	}
	if _, err := s.db.NamedExecContext(ctx, q, params); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, username string) (*entity.Account, error) {
	const q = `SELECT id, username, email, password_hash, device_key,
		token_value, token_device_id, token_expires_at, created_at
	  FROM device_accounts WHERE username=$1`
	var row accountRow
	if err := s.db.GetContext(ctx, &row, q, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toEntity(), nil
}

func (s *PostgresStore) SetToken(ctx context.Context, username string, t entity.Token) error {
	const q = `UPDATE device_accounts SET token_value=$2, token_device_id=$3, token_expires_at=$4 WHERE username=$1`
	deviceID := sql.NullString{String: t.IssuedDeviceID, Valid: t.IssuedDeviceID != ""}
	res, err := s.db.ExecContext(ctx, q, username, t.Value, deviceID, t.ExpiresAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearToken runs as one conditional UPDATE so two concurrent redemptions of
// the same value can't both succeed.
func (s *PostgresStore) ClearToken(ctx context.Context, username, value string) (bool, error) {
	const q = `UPDATE device_accounts SET token_value=NULL, token_device_id=NULL, token_expires_at=NULL
		WHERE username=$1 AND token_value=$2`
	res, err := s.db.ExecContext(ctx, q, username, value)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	var one int
	if err := s.db.GetContext(ctx, &one, `SELECT 1 FROM device_accounts WHERE username=$1`, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}
	return false, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }
