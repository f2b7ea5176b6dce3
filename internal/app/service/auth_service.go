package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"accounts_api/internal/common"
	"accounts_api/internal/common/security"
	"accounts_api/internal/domain/model"
	"accounts_api/internal/domain/repository"

	"github.com/google/uuid"
)

var (
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)
	emailRe    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// ResetMailer delivers a reset token out of band. Failures are the
// mailer's own problem: the auth service never reports them to the
// caller, to keep password-reset requests non-enumerating.
type ResetMailer interface {
	EnqueueResetMail(ctx context.Context, toAddress, resetToken string) error
}

type AuthService struct {
	userRepo repository.UserRepository
	ledger   *ResetLedger
	mailer   ResetMailer
	policy   security.PasswordPolicy
}

func NewAuthService(userRepo repository.UserRepository, ledger *ResetLedger, mailer ResetMailer, policy security.PasswordPolicy) *AuthService {
	return &AuthService{userRepo: userRepo, ledger: ledger, mailer: mailer, policy: policy}
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	LoginField string `json:"login_field"` // Can be username or email
	Password   string `json:"password"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type AuthResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	if !usernameRe.MatchString(req.Username) {
		return nil, fmt.Errorf("%w: username must be 3-30 characters of letters, digits or underscore", common.ErrValidation)
	}
	if !emailRe.MatchString(req.Email) {
		return nil, fmt.Errorf("%w: email address is not valid", common.ErrValidation)
	}
	if err := s.policy.Validate(req.Password); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}

	hashedPassword, err := security.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		ID:             uuid.NewString(),
		Username:       req.Username,
		Email:          req.Email,
		HashedPassword: hashedPassword,
		Role:           model.RoleUser, // Default role
		IsActive:       true,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		// Repo returns common.ErrDuplicate on a unique violation
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	token, err := security.GenerateToken(sessionClaims(user))
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	user.HashedPassword = "" // Clear password before returning
	return &AuthResponse{User: user, Token: token}, nil
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if req.LoginField == "" || req.Password == "" {
		return nil, common.ErrInvalidCredentials
	}

	user, err := s.userRepo.FindByUsernameOrEmail(ctx, req.LoginField)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrInvalidCredentials // Uniform message, no enumeration
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	// Absent, inactive and wrong-password all fail identically.
	if !user.IsActive {
		return nil, common.ErrInvalidCredentials
	}
	if !security.CheckPasswordHash(req.Password, user.HashedPassword) {
		return nil, common.ErrInvalidCredentials
	}

	now := time.Now()
	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	user.LastLogin = &now

	token, err := security.GenerateToken(sessionClaims(user))
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	user.HashedPassword = ""
	return &AuthResponse{User: user, Token: token}, nil
}

// RequestPasswordReset issues a reset token for the account behind the
// given email, if one exists and is active, and hands it to the mailer.
// The caller gets the same nil result either way so account existence
// cannot be probed.
func (s *AuthService) RequestPasswordReset(ctx context.Context, req ForgotPasswordRequest) error {
	if !emailRe.MatchString(req.Email) {
		return fmt.Errorf("%w: email address is not valid", common.ErrValidation)
	}

	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			log.Printf("Password reset requested for unknown email, suppressing.")
			return nil
		}
		return fmt.Errorf("failed to find user: %w", err)
	}
	if !user.IsActive {
		log.Printf("Password reset requested for inactive account %s, suppressing.", user.ID)
		return nil
	}

	token, err := s.ledger.IssueToken(ctx, user)
	if err != nil {
		return fmt.Errorf("failed to issue reset token: %w", err)
	}

	// Delivery failure must not surface as a reset-request failure.
	if err := s.mailer.EnqueueResetMail(ctx, user.Email, token); err != nil {
		log.Printf("ERROR: Failed to enqueue reset mail for user %s: %v", user.ID, err)
	}
	return nil
}

// ValidateResetToken is the read-only pre-flight check used before
// showing the new-password form. It does not consume the token.
func (s *AuthService) ValidateResetToken(ctx context.Context, token string) error {
	_, err := s.ledger.Validate(ctx, token)
	return err
}

func (s *AuthService) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if err := s.policy.Validate(req.NewPassword); err != nil {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	newHash, err := security.HashPassword(req.NewPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.ledger.Consume(ctx, req.Token, newHash)
}

func (s *AuthService) ChangePassword(ctx context.Context, userID string, req ChangePasswordRequest) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrInvalidCredentials
		}
		return fmt.Errorf("failed to find user: %w", err)
	}
	if !security.CheckPasswordHash(req.CurrentPassword, user.HashedPassword) {
		return common.ErrInvalidCredentials
	}
	if err := s.policy.Validate(req.NewPassword); err != nil {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	newHash, err := security.HashPassword(req.NewPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.userRepo.UpdatePassword(ctx, user.ID, newHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

func sessionClaims(user *model.User) security.SessionClaims {
	return security.SessionClaims{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		Role:     user.Role,
	}
}
