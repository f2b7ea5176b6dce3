package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"accounts_api/internal/common"
	"accounts_api/internal/common/security"
	"accounts_api/internal/domain/model"
	"accounts_api/internal/platform/config"
)

// memUserRepository is an in-memory credential store for service tests.
// It mirrors the Postgres repository's contract, including returning
// copies so callers mutating results cannot corrupt stored records.
type memUserRepository struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newMemUserRepository() *memUserRepository {
	return &memUserRepository{users: map[string]*model.User{}}
}

func copyUser(u *model.User) *model.User {
	c := *u
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	if u.ResetToken != nil {
		s := *u.ResetToken
		c.ResetToken = &s
	}
	if u.ResetTokenExpiry != nil {
		t := *u.ResetTokenExpiry
		c.ResetTokenExpiry = &t
	}
	return &c
}

func (m *memUserRepository) Create(ctx context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username || u.Email == user.Email {
			return common.ErrDuplicate
		}
	}
	now := time.Now()
	stored := copyUser(user)
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.users[user.ID] = stored
	return nil
}

func (m *memUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return copyUser(u), nil
	}
	return nil, common.ErrNotFound
}

func (m *memUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, common.ErrNotFound
}

func (m *memUserRepository) FindByUsernameOrEmail(ctx context.Context, login string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == login || u.Email == login {
			return copyUser(u), nil
		}
	}
	return nil, common.ErrNotFound
}

func (m *memUserRepository) FindByResetToken(ctx context.Context, token string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ResetToken != nil && *u.ResetToken == token {
			return copyUser(u), nil
		}
	}
	return nil, common.ErrNotFound
}

func (m *memUserRepository) List(ctx context.Context, limit, offset int) ([]*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var users []*model.User
	for _, u := range m.users {
		users = append(users, copyUser(u))
	}
	if offset >= len(users) {
		return nil, nil
	}
	users = users[offset:]
	if limit < len(users) {
		users = users[:limit]
	}
	return users, nil
}

func (m *memUserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return common.ErrNotFound
	}
	u.LastLogin = &at
	return nil
}

func (m *memUserRepository) UpdatePassword(ctx context.Context, id string, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return common.ErrNotFound
	}
	u.HashedPassword = newHash
	return nil
}

func (m *memUserRepository) UpdateProfile(ctx context.Context, id, username, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return common.ErrNotFound
	}
	for _, other := range m.users {
		if other.ID == id {
			continue
		}
		if other.Username == username || other.Email == email {
			return common.ErrDuplicate
		}
	}
	u.Username = username
	u.Email = email
	return nil
}

func (m *memUserRepository) SetResetToken(ctx context.Context, id, token string, expiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return common.ErrNotFound
	}
	u.ResetToken = &token
	u.ResetTokenExpiry = &expiry
	return nil
}

func (m *memUserRepository) ConsumeResetToken(ctx context.Context, token, newHash string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ResetToken != nil && *u.ResetToken == token &&
			u.ResetTokenExpiry != nil && u.ResetTokenExpiry.After(now) && u.IsActive {
			u.HashedPassword = newHash
			u.ResetToken = nil
			u.ResetTokenExpiry = nil
			return nil
		}
	}
	return common.ErrNotFound
}

func (m *memUserRepository) SetRole(ctx context.Context, id, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return common.ErrNotFound
	}
	u.Role = role
	return nil
}

func (m *memUserRepository) SetActive(ctx context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return common.ErrNotFound
	}
	u.IsActive = active
	return nil
}

// fakeMailer records enqueued reset mails.
type fakeMailer struct {
	mu   sync.Mutex
	sent []struct {
		To    string
		Token string
	}
	failNext bool
}

func (f *fakeMailer) EnqueueResetMail(ctx context.Context, toAddress, resetToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return common.Errorf("queue down")
	}
	f.sent = append(f.sent, struct {
		To    string
		Token string
	}{toAddress, resetToken})
	return nil
}

func (f *fakeMailer) lastToken(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no reset mail was enqueued")
	}
	return f.sent[len(f.sent)-1].Token
}

func initJWTForTests() {
	config.AppConfig = &config.Config{
		JWTKey: []byte("service-test-secret"),
		JWTExp: time.Hour,
	}
	security.InitJWT()
}

func newTestAuthService() (*AuthService, *memUserRepository, *ResetLedger, *fakeMailer) {
	initJWTForTests()
	repo := newMemUserRepository()
	ledger := NewResetLedger(repo, time.Hour)
	mailer := &fakeMailer{}
	policy := security.PasswordPolicy{MinLength: 6, RequireMixed: true}
	return NewAuthService(repo, ledger, mailer, policy), repo, ledger, mailer
}
