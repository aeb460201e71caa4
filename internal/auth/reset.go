package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/redmonkez12/authman/internal/user"
)

// IssueResetToken generates a reset token for the user registered under email
// and stores its hash with an expiry of now + the reset token TTL. Issuing again
// overwrites, and so invalidates, any earlier token.
//
// An unknown email fails with ErrUserNotFound. Callers facing the end user must
// not let that difference show.
func (s *Service) IssueResetToken(ctx context.Context, email string) (string, *user.User, error) {
	// Generated up front so known and unknown emails do the same work
	token, err := GenerateResetToken()
	if err != nil {
		return "", nil, err
	}

	existingUser, err := s.users.GetByEmail(ctx, user.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return "", nil, ErrUserNotFound
		}
		return "", nil, storeError("get user by email", err)
	}

	tokenHash := HashResetToken(token)
	expiresAt := s.now().Add(s.resetTokenTTL)

	if err := s.users.SetResetToken(ctx, existingUser.ID, tokenHash, expiresAt); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return "", nil, ErrUserNotFound
		}
		return "", nil, storeError("set reset token", err)
	}

	existingUser.ResetPasswordToken = &tokenHash
	existingUser.ResetPasswordExpiry = &expiresAt

	s.logger.Info("password reset token issued", "user_id", existingUser.ID, "expires_at", expiresAt)

	return token, existingUser, nil
}

// ValidateResetToken returns the user holding token while now <= expiry.
// It only reads; the reset form and the reset submission both go through it.
func (s *Service) ValidateResetToken(ctx context.Context, token string) (*user.User, error) {
	if token == "" {
		return nil, ErrInvalidOrExpiredToken
	}

	existingUser, err := s.users.GetByResetToken(ctx, HashResetToken(token), s.now())
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, storeError("get user by reset token", err)
	}

	return existingUser, nil
}

// ConsumeResetToken sets a new password for the user holding token and clears
// the token, so it cannot be used again. The token is validated afresh here;
// a validation done by an earlier request counts for nothing.
func (s *Service) ConsumeResetToken(ctx context.Context, token, newPassword string) (*user.User, error) {
	if newPassword == "" {
		return nil, ErrPasswordRequired
	}

	existingUser, err := s.ValidateResetToken(ctx, token)
	if err != nil {
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// The update re-checks token and expiry, which covers a concurrent consume
	// or the token expiring while the hash was computed
	if err := s.users.ConsumeResetToken(ctx, HashResetToken(token), s.now(), passwordHash); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, storeError("consume reset token", err)
	}

	existingUser.PasswordHash = passwordHash
	existingUser.ResetPasswordToken = nil
	existingUser.ResetPasswordExpiry = nil

	s.logger.Info("password reset", "user_id", existingUser.ID)

	return existingUser, nil
}
