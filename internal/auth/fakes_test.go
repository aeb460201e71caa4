package auth

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/redmonkez12/authman/internal/logging"
	"github.com/redmonkez12/authman/internal/user"
)

// memUserStore is an in-memory UserStore with the same matching rules as user.Repository
type memUserStore struct {
	mu     sync.Mutex
	users  map[string]*user.User
	writes int

	// errors injected into the next calls
	getErr    error
	createErr error
	updateErr error
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]*user.User)}
}

func (s *memUserStore) Create(_ context.Context, email, passwordHash string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createErr != nil {
		return nil, s.createErr
	}
	email = user.NormalizeEmail(email)
	if _, ok := s.users[email]; ok {
		return nil, user.ErrDuplicateEmail
	}

	now := time.Now()
	u := &user.User{ID: uuid.New(), Email: email, PasswordHash: passwordHash, CreatedAt: now, UpdatedAt: now}
	s.users[email] = u
	s.writes++

	cp := *u
	return &cp, nil
}

func (s *memUserStore) GetByEmail(_ context.Context, email string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.getErr != nil {
		return nil, s.getErr
	}
	u, ok := s.users[user.NormalizeEmail(email)]
	if !ok {
		return nil, user.ErrNotFound
	}

	cp := *u
	return &cp, nil
}

func (s *memUserStore) SetResetToken(_ context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.updateErr != nil {
		return s.updateErr
	}
	for _, u := range s.users {
		if u.ID == userID {
			u.ResetPasswordToken = &tokenHash
			u.ResetPasswordExpiry = &expiresAt
			s.writes++
			return nil
		}
	}
	return user.ErrNotFound
}

func (s *memUserStore) match(tokenHash string, now time.Time) *user.User {
	for _, u := range s.users {
		if u.HasResetToken() && *u.ResetPasswordToken == tokenHash && !u.ResetPasswordExpiry.Before(now) {
			return u
		}
	}
	return nil
}

func (s *memUserStore) GetByResetToken(_ context.Context, tokenHash string, now time.Time) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.getErr != nil {
		return nil, s.getErr
	}
	u := s.match(tokenHash, now)
	if u == nil {
		return nil, user.ErrNotFound
	}

	cp := *u
	return &cp, nil
}

func (s *memUserStore) ConsumeResetToken(_ context.Context, tokenHash string, now time.Time, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.updateErr != nil {
		return s.updateErr
	}
	u := s.match(tokenHash, now)
	if u == nil {
		return user.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.ResetPasswordToken = nil
	u.ResetPasswordExpiry = nil
	s.writes++
	return nil
}

func (s *memUserStore) get(email string) *user.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[email]
}

// testClock is a settable clock
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestService(store UserStore, clock *testClock) *Service {
	logger := logging.New(io.Discard, false)
	return NewService(store, NewBcryptHasher(bcrypt.MinCost), logger, WithClock(clock.Now))
}
