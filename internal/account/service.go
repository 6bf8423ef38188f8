package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-devicekey-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-devicekey-go/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-devicekey-go/internal/device"
	"github.com/ovaphlow/pitchfork/service-devicekey-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-devicekey-go/pkg/utilities"
)

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// BcryptHasher implementation. Zero Cost means bcrypt.DefaultCost.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

var (
	ErrMissingFields = errors.New("missing fields")
	ErrInvalidInput  = errors.New("invalid input")
	ErrAlreadyExists = repo.ErrAlreadyExists
	ErrNotFound      = repo.ErrNotFound
	ErrWrongPassword = errors.New("wrong password")
	ErrInvalidDevice = errors.New("invalid device")
	ErrTokenInvalid  = token.ErrInvalid
	ErrInternal      = errors.New("internal failure")
)

// AssertionSigner mints a proof of a successful token redemption.
type AssertionSigner interface {
	Sign(username, deviceKey string) (string, error)
}

// AccountService orchestrates registration, password login and token redemption.
type AccountService struct {
	store  repo.Store
	tokens *token.Service
	hasher PasswordHasher
	signer AssertionSigner
	clock  clockwork.Clock
	logger *zap.SugaredLogger
	// compared against when the username is unknown so the miss costs a full hash
	dummyHash string
}

type Option func(*AccountService)

func WithHasher(h PasswordHasher) Option {
	return func(s *AccountService) { s.hasher = h }
}

func WithSigner(signer AssertionSigner) Option {
	return func(s *AccountService) { s.signer = signer }
}

func WithClock(c clockwork.Clock) Option {
	return func(s *AccountService) { s.clock = c }
}

func NewAccountService(store repo.Store, tokens *token.Service, logger *zap.SugaredLogger, opts ...Option) (*AccountService, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &AccountService{
		store:  store,
		tokens: tokens,
		hasher: BcryptHasher{Cost: 10},
		clock:  clockwork.NewRealClock(),
		logger: logger,
	}
	for _, o := range opts {
		o(s)
	}
	h, err := s.hasher.Hash(utilities.NewKSUID())
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	s.dummyHash = h
	return s, nil
}

type RegisterInput struct {
	Username   string
	Email      string
	Password   string
	ClientInfo string
}

type RegisterResult struct {
	DeviceKey string
}

// Register creates an account bound to the device described by ClientInfo.
// All four fields are required and the password may not exceed
// MaxPasswordBytes.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	if in.Username == "" || in.Email == "" || in.Password == "" || in.ClientInfo == "" {
		return nil, ErrMissingFields
	}
	if len(in.Password) > MaxPasswordBytes {
		return nil, fmt.Errorf("%w: password longer than %d bytes", ErrInvalidInput, MaxPasswordBytes)
	}
	// cheap pre-check so a taken username doesn't cost a hash; Create re-checks atomically
	if _, err := s.store.Get(ctx, in.Username); err == nil {
		return nil, ErrAlreadyExists
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, s.internal("lookup account", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, s.internal("hash password", err)
	}
	a := &entity.Account{
		ID:           utilities.NewSnowflakeID(),
		Username:     in.Username,
		PasswordHash: hash,
		Email:        in.Email,
		DeviceKey:    device.DeriveKey([]byte(in.ClientInfo)),
		CreatedAt:    s.clock.Now().UTC(),
	}
	if err := s.store.Create(ctx, a); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			return nil, ErrAlreadyExists
		}
		return nil, s.internal("create account", err)
	}
	s.logger.Infow("account registered", "username", a.Username, "id", a.ID)
	return &RegisterResult{DeviceKey: a.DeviceKey}, nil
}

type LoginInput struct {
	Username   string
	Password   string
	ClientInfo string
	// DeviceID is optional; when set the token only verifies with the same value.
	DeviceID string
}

// Login checks the password and device, then issues a token that replaces any
// earlier one. No token is stored on failure.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (*entity.Token, error) {
	if in.Username == "" || in.Password == "" || in.ClientInfo == "" {
		return nil, ErrMissingFields
	}
	a, err := s.store.Get(ctx, in.Username)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.hasher.Verify(s.dummyHash, in.Password)
			return nil, ErrNotFound
		}
		return nil, s.internal("lookup account", err)
	}
	if !s.hasher.Verify(a.PasswordHash, in.Password) {
		return nil, ErrWrongPassword
	}
	if !device.Matches(device.DeriveKey([]byte(in.ClientInfo)), a.DeviceKey) {
		s.logger.Debugw("login from unbound device", "username", a.Username)
		return nil, ErrInvalidDevice
	}
	t, err := s.tokens.Issue(ctx, a.Username, in.DeviceID)
	if err != nil {
		return nil, s.internal("issue token", err)
	}
	s.logger.Debugw("token issued", "username", a.Username, "expires_at", t.ExpiresAt)
	return &t, nil
}

type VerifyInput struct {
	Username   string
	Token      string
	ClientInfo string
	DeviceID   string
}

type VerifyResult struct {
	// Assertion is empty unless a signer is configured.
	Assertion string
}

// VerifyToken redeems a token. Every authentication failure, including an
// unknown user or a different device, is reported as ErrTokenInvalid.
func (s *AccountService) VerifyToken(ctx context.Context, in VerifyInput) (*VerifyResult, error) {
	if in.Username == "" || in.Token == "" || in.ClientInfo == "" {
		return nil, ErrMissingFields
	}
	a, err := s.store.Get(ctx, in.Username)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, s.internal("lookup account", err)
	}
	if !device.Matches(device.DeriveKey([]byte(in.ClientInfo)), a.DeviceKey) {
		return nil, ErrTokenInvalid
	}
	if err := s.tokens.Verify(ctx, a, in.Token, in.DeviceID); err != nil {
		if errors.Is(err, token.ErrInvalid) {
			return nil, ErrTokenInvalid
		}
		return nil, s.internal("redeem token", err)
	}
	res := &VerifyResult{}
	if s.signer != nil {
		// the token is already spent, so a signing failure is reported but not undone
		assertion, err := s.signer.Sign(a.Username, a.DeviceKey)
		if err != nil {
			return nil, s.internal("sign assertion", err)
		}
		res.Assertion = assertion
	}
	s.logger.Infow("token redeemed", "username", a.Username)
	return res, nil
}

func (s *AccountService) internal(op string, err error) error {
	s.logger.Errorw("account operation failed", "op", op, "err", err)
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}
