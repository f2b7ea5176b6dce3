package service

import (
	"context"
	"testing"

	"accounts_api/internal/common"
	"accounts_api/internal/common/security"
	"accounts_api/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterThenLogin(t *testing.T) {
	svc, _, _, _ := newTestAuthService()
	ctx := context.Background()

	reg, err := svc.Register(ctx, RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "Secret123"})
	require.NoError(t, err)
	require.NotNil(t, reg.User)
	assert.Equal(t, "alice", reg.User.Username)
	assert.Equal(t, model.RoleUser, reg.User.Role)
	assert.True(t, reg.User.IsActive)
	assert.Empty(t, reg.User.HashedPassword)
	assert.NotEmpty(t, reg.Token)

	// Login by username
	resp, err := svc.Login(ctx, LoginRequest{LoginField: "alice", Password: "Secret123"})
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, resp.User.ID)
	assert.NotNil(t, resp.User.LastLogin)

	// Login by email
	resp, err = svc.Login(ctx, LoginRequest{LoginField: "alice@example.com", Password: "Secret123"})
	require.NoError(t, err)

	claims, err := security.VerifyToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, claims.UserID)
	assert.Equal(t, model.RoleUser, claims.Role)
}

func TestRegister_Validation(t *testing.T) {
	svc, _, _, _ := newTestAuthService()
	ctx := context.Background()

	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{"short username", RegisterRequest{Username: "ab", Email: "a@b.com", Password: "Secret123"}},
		{"bad username chars", RegisterRequest{Username: "bad name!", Email: "a@b.com", Password: "Secret123"}},
		{"bad email", RegisterRequest{Username: "gooduser", Email: "not-an-email", Password: "Secret123"}},
		{"weak password", RegisterRequest{Username: "gooduser", Email: "a@b.com", Password: "weak"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.req)
			assert.ErrorIs(t, err, common.ErrValidation)
		})
	}
}

func TestRegister_DuplicateIdentity(t *testing.T) {
	svc, _, _, _ := newTestAuthService()
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "Secret123"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterRequest{Username: "alice", Email: "other@example.com", Password: "Secret123"})
	assert.ErrorIs(t, err, common.ErrDuplicate)

	_, err = svc.Register(ctx, RegisterRequest{Username: "alice2", Email: "alice@example.com", Password: "Secret123"})
	assert.ErrorIs(t, err, common.ErrDuplicate)
}

func TestLogin_UniformFailures(t *testing.T) {
	svc, repo, _, _ := newTestAuthService()
	ctx := context.Background()

	reg, err := svc.Register(ctx, RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "Secret123"})
	require.NoError(t, err)

	// Unknown account
	_, err = svc.Login(ctx, LoginRequest{LoginField: "nobody", Password: "Secret123"})
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)

	// Wrong password
	_, err = svc.Login(ctx, LoginRequest{LoginField: "alice", Password: "WrongPass1"})
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)

	// Deactivated account with correct password
	require.NoError(t, repo.SetActive(ctx, reg.User.ID, false))
	_, err = svc.Login(ctx, LoginRequest{LoginField: "alice", Password: "Secret123"})
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
}

func TestRequestPasswordReset_UnknownEmailSuppressed(t *testing.T) {
	svc, _, _, mailer := newTestAuthService()
	ctx := context.Background()

	err := svc.RequestPasswordReset(ctx, ForgotPasswordRequest{Email: "ghost@example.com"})
	assert.NoError(t, err)
	assert.Empty(t, mailer.sent)
}

func TestRequestPasswordReset_InactiveSuppressed(t *testing.T) {
	svc, repo, _, mailer := newTestAuthService()
	ctx := context.Background()

	reg, err := svc.Register(ctx, RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "Secret123"})
	require.NoError(t, err)
	require.NoError(t, repo.SetActive(ctx, reg.User.ID, false))

	err = svc.RequestPasswordReset(ctx, ForgotPasswordRequest{Email: "alice@example.com"})
	assert.NoError(t, err)
	assert.Empty(t, mailer.sent)
}

func TestRequestPasswordReset_MailerFailureNotSurfaced(t *testing.T) {
	svc, _, _, mailer := newTestAuthService()
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "Secret123"})
	require.NoError(t, err)

	mailer.failNext = true
	err = svc.RequestPasswordReset(ctx, ForgotPasswordRequest{Email: "alice@example.com"})
	assert.NoError(t, err)
}

// End-to-end reset flow: two issued tokens, the first dies when the
// second is born, the second works exactly once.
func TestPasswordResetFlow(t *testing.T) {
	svc, _, _, mailer := newTestAuthService()
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "Secret123"})
	require.NoError(t, err)

	require.NoError(t, svc.RequestPasswordReset(ctx, ForgotPasswordRequest{Email: "alice@example.com"}))
	t1 := mailer.lastToken(t)
	require.NoError(t, svc.ValidateResetToken(ctx, t1))

	// Second request invalidates the first token
	require.NoError(t, svc.RequestPasswordReset(ctx, ForgotPasswordRequest{Email: "alice@example.com"}))
	t2 := mailer.lastToken(t)
	require.NotEqual(t, t1, t2)
	assert.ErrorIs(t, svc.ValidateResetToken(ctx, t1), common.ErrTokenInvalid)
	require.NoError(t, svc.ValidateResetToken(ctx, t2))

	// Consume the live token
	require.NoError(t, svc.ResetPassword(ctx, ResetPasswordRequest{Token: t2, NewPassword: "NewSecret456"}))

	// Token is single use
	err = svc.ResetPassword(ctx, ResetPasswordRequest{Token: t2, NewPassword: "NewSecret789"})
	assert.ErrorIs(t, err, common.ErrTokenInvalid)

	// Old password no longer works, the new one does
	_, err = svc.Login(ctx, LoginRequest{LoginField: "alice", Password: "Secret123"})
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
	_, err = svc.Login(ctx, LoginRequest{LoginField: "alice", Password: "NewSecret456"})
	assert.NoError(t, err)
}

func TestResetPassword_WeakNewPassword(t *testing.T) {
	svc, _, _, mailer := newTestAuthService()
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "Secret123"})
	require.NoError(t, err)
	require.NoError(t, svc.RequestPasswordReset(ctx, ForgotPasswordRequest{Email: "alice@example.com"}))
	token := mailer.lastToken(t)

	err = svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "weak"})
	assert.ErrorIs(t, err, common.ErrValidation)

	// Rejected attempt must not have consumed the token
	assert.NoError(t, svc.ValidateResetToken(ctx, token))
}

func TestChangePassword(t *testing.T) {
	svc, _, _, _ := newTestAuthService()
	ctx := context.Background()

	reg, err := svc.Register(ctx, RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "Secret123"})
	require.NoError(t, err)

	// Wrong current password
	err = svc.ChangePassword(ctx, reg.User.ID, ChangePasswordRequest{CurrentPassword: "WrongPass1", NewPassword: "NewSecret456"})
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)

	// Weak replacement
	err = svc.ChangePassword(ctx, reg.User.ID, ChangePasswordRequest{CurrentPassword: "Secret123", NewPassword: "weak"})
	assert.ErrorIs(t, err, common.ErrValidation)

	// Success
	err = svc.ChangePassword(ctx, reg.User.ID, ChangePasswordRequest{CurrentPassword: "Secret123", NewPassword: "NewSecret456"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginRequest{LoginField: "alice", Password: "NewSecret456"})
	assert.NoError(t, err)
	_, err = svc.Login(ctx, LoginRequest{LoginField: "alice", Password: "Secret123"})
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
}
