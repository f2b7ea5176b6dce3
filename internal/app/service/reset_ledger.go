package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"accounts_api/internal/common"
	"accounts_api/internal/domain/model"
	"accounts_api/internal/domain/repository"
)

const resetTokenBytes = 32

// ResetLedger issues, validates and consumes password-reset tokens.
// Tokens live on the user row, so issuing a new one overwrites the
// previous token and at most one is live per user. Expiry is enforced
// lazily at validation time; there is no sweeper.
type ResetLedger struct {
	userRepo repository.UserRepository
	ttl      time.Duration
	now      func() time.Time
}

func NewResetLedger(userRepo repository.UserRepository, ttl time.Duration) *ResetLedger {
	return &ResetLedger{userRepo: userRepo, ttl: ttl, now: time.Now}
}

// IssueToken generates a fresh opaque token for the user and persists it
// with expiry = now + ttl, invalidating any prior token.
func (l *ResetLedger) IssueToken(ctx context.Context, user *model.User) (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate reset token: %w", err)
	}
	token := hex.EncodeToString(buf)

	expiry := l.now().Add(l.ttl)
	if err := l.userRepo.SetResetToken(ctx, user.ID, token, expiry); err != nil {
		return "", fmt.Errorf("failed to store reset token: %w", err)
	}
	return token, nil
}

// Validate is the read-only pre-flight check: it resolves the token to
// its user without consuming it. Unknown, expired and already-consumed
// tokens are indistinguishable to the caller.
func (l *ResetLedger) Validate(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, common.ErrTokenInvalid
	}
	user, err := l.userRepo.FindByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrTokenInvalid
		}
		return nil, fmt.Errorf("failed to look up reset token: %w", err)
	}
	if user.ResetTokenExpiry == nil || !l.now().Before(*user.ResetTokenExpiry) {
		return nil, common.ErrTokenInvalid
	}
	if !user.IsActive {
		return nil, common.ErrTokenInvalid
	}
	return user, nil
}

// Consume swaps in the new password hash and clears the token in a
// single store operation, so the token can never succeed twice and the
// password is never left unchanged behind a cleared token.
func (l *ResetLedger) Consume(ctx context.Context, token, newHash string) error {
	if token == "" {
		return common.ErrTokenInvalid
	}
	err := l.userRepo.ConsumeResetToken(ctx, token, newHash, l.now())
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrTokenInvalid
		}
		return fmt.Errorf("failed to consume reset token: %w", err)
	}
	return nil
}
