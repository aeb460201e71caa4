package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/authman/internal/logging"
	"github.com/redmonkez12/authman/internal/user"
)

// UserStore is the credential store the service reads and writes
type UserStore interface {
	Create(ctx context.Context, email, passwordHash string) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	SetResetToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error
	GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*user.User, error)
	ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, passwordHash string) error
}

// Service handles sign-up, login and the password reset token lifecycle.
// It is built once at startup and shared by every handler.
type Service struct {
	users         UserStore
	hasher        PasswordHasher
	logger        *logging.Logger
	now           func() time.Time
	resetTokenTTL time.Duration

	dummyOnce sync.Once
	dummyHash string
}

// Option configures a Service
type Option func(*Service)

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithResetTokenTTL sets how long an issued reset token stays valid
func WithResetTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.resetTokenTTL = ttl
		}
	}
}

func NewService(users UserStore, hasher PasswordHasher, logger *logging.Logger, opts ...Option) *Service {
	s := &Service{
		users:         users,
		hasher:        hasher,
		logger:        logger,
		now:           time.Now,
		resetTokenTTL: ResetTokenExpiry,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignUp creates a new user account.
// An email that is already registered fails with ErrDuplicateUser and nothing is written.
func (s *Service) SignUp(ctx context.Context, email, password string) (*user.User, error) {
	email = user.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, ErrPasswordRequired
	}

	_, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return nil, ErrDuplicateUser
	}
	if !errors.Is(err, user.ErrNotFound) {
		return nil, storeError("get user by email", err)
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	newUser, err := s.users.Create(ctx, email, passwordHash)
	if err != nil {
		// Lost a race against a concurrent sign-up for the same email
		if errors.Is(err, user.ErrDuplicateEmail) {
			return nil, ErrDuplicateUser
		}
		return nil, storeError("create user", err)
	}

	s.logger.Info("user signed up", "user_id", newUser.ID)

	return newUser, nil
}

// Login checks an email/password pair and returns the stored user on a match.
func (s *Service) Login(ctx context.Context, email, password string) (*user.User, error) {
	existingUser, err := s.users.GetByEmail(ctx, user.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			// Spend the same time as a real comparison
			s.verifyDummy(password)
			return nil, ErrUserNotFound
		}
		return nil, storeError("get user by email", err)
	}

	ok, err := s.hasher.Verify(password, existingUser.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password for user %s: %w", existingUser.ID, err)
	}
	if !ok {
		return nil, ErrBadCredentials
	}

	return existingUser, nil
}

func (s *Service) verifyDummy(password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("not-a-real-password")
		if err != nil {
			s.logger.Warn("failed to prepare dummy hash", "error", err)
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.Verify(password, s.dummyHash)
	}
}

func validateEmail(email string) error {
	if email == "" {
		return ErrEmailRequired
	}
	if len(email) > 254 {
		return ErrInvalidEmailFormat
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmailFormat
	}
	return nil
}
