package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"accounts_api/internal/common"
	"accounts_api/internal/domain/model"

	"github.com/jackc/pgx/v5/pgconn"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByUsernameOrEmail(ctx context.Context, login string) (*model.User, error)
	FindByResetToken(ctx context.Context, token string) (*model.User, error)
	List(ctx context.Context, limit, offset int) ([]*model.User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	UpdatePassword(ctx context.Context, id string, newHash string) error
	UpdateProfile(ctx context.Context, id, username, email string) error
	SetResetToken(ctx context.Context, id, token string, expiry time.Time) error
	// ConsumeResetToken atomically swaps the password and clears the
	// reset token in one statement, matching only a live token. Returns
	// common.ErrNotFound when the token is unknown or expired.
	ConsumeResetToken(ctx context.Context, token, newHash string, now time.Time) error
	SetRole(ctx context.Context, id, role string) error
	SetActive(ctx context.Context, id string, active bool) error
}

type pgUserRepository struct {
	db *sql.DB
}

func NewPgUserRepository(db *sql.DB) UserRepository {
	return &pgUserRepository{db: db}
}

const userColumns = `id, username, email, hashed_password, role, is_active, last_login, reset_token, reset_token_expiry, created_at, updated_at`

func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.HashedPassword, &user.Role,
		&user.IsActive, &user.LastLogin, &user.ResetToken, &user.ResetTokenExpiry,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *pgUserRepository) Create(ctx context.Context, user *model.User) error {
	query := `INSERT INTO users (id, username, email, hashed_password, role, is_active)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, query, user.ID, user.Username, user.Email, user.HashedPassword, user.Role, user.IsActive)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // Unique constraint violation
			return fmt.Errorf("user with given username or email already exists: %w", common.ErrDuplicate)
		}
		return fmt.Errorf("pgUserRepository.Create: %w: %v", common.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *pgUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgUserRepository.FindByID: %w: %v", common.ErrStoreUnavailable, err)
	}
	return user, nil
}

func (r *pgUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgUserRepository.FindByEmail: %w: %v", common.ErrStoreUnavailable, err)
	}
	return user, nil
}

func (r *pgUserRepository) FindByUsernameOrEmail(ctx context.Context, login string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1 OR email = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, login))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgUserRepository.FindByUsernameOrEmail: %w: %v", common.ErrStoreUnavailable, err)
	}
	return user, nil
}

func (r *pgUserRepository) FindByResetToken(ctx context.Context, token string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE reset_token = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgUserRepository.FindByResetToken: %w: %v", common.ErrStoreUnavailable, err)
	}
	return user, nil
}

func (r *pgUserRepository) List(ctx context.Context, limit, offset int) ([]*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("pgUserRepository.List: %w: %v", common.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user := &model.User{}
		if err := rows.Scan(
			&user.ID, &user.Username, &user.Email, &user.HashedPassword, &user.Role,
			&user.IsActive, &user.LastLogin, &user.ResetToken, &user.ResetTokenExpiry,
			&user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("pgUserRepository.List scan: %w: %v", common.ErrStoreUnavailable, err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgUserRepository.List rows: %w: %v", common.ErrStoreUnavailable, err)
	}
	return users, nil
}

func (r *pgUserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE users SET last_login = $2, updated_at = NOW() WHERE id = $1`
	return r.execExpectingRow(ctx, "UpdateLastLogin", query, id, at)
}

func (r *pgUserRepository) UpdatePassword(ctx context.Context, id string, newHash string) error {
	query := `UPDATE users SET hashed_password = $2, updated_at = NOW() WHERE id = $1`
	return r.execExpectingRow(ctx, "UpdatePassword", query, id, newHash)
}

func (r *pgUserRepository) UpdateProfile(ctx context.Context, id, username, email string) error {
	query := `UPDATE users SET username = $2, email = $3, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, username, email)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("username or email already taken: %w", common.ErrDuplicate)
		}
		return fmt.Errorf("pgUserRepository.UpdateProfile: %w: %v", common.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *pgUserRepository) SetResetToken(ctx context.Context, id, token string, expiry time.Time) error {
	// Overwrites any previous token, keeping at most one live reset
	// token per user.
	query := `UPDATE users SET reset_token = $2, reset_token_expiry = $3, updated_at = NOW() WHERE id = $1`
	return r.execExpectingRow(ctx, "SetResetToken", query, id, token, expiry)
}

func (r *pgUserRepository) ConsumeResetToken(ctx context.Context, token, newHash string, now time.Time) error {
	// Single statement: no window where the token is gone but the
	// password unchanged, and no second consume can match.
	query := `UPDATE users
	          SET hashed_password = $2, reset_token = NULL, reset_token_expiry = NULL, updated_at = NOW()
	          WHERE reset_token = $1 AND reset_token_expiry > $3 AND is_active = TRUE`
	res, err := r.db.ExecContext(ctx, query, token, newHash, now)
	if err != nil {
		return fmt.Errorf("pgUserRepository.ConsumeResetToken: %w: %v", common.ErrStoreUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("pgUserRepository.ConsumeResetToken rows: %w: %v", common.ErrStoreUnavailable, err)
	}
	if affected == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *pgUserRepository) SetRole(ctx context.Context, id, role string) error {
	query := `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`
	return r.execExpectingRow(ctx, "SetRole", query, id, role)
}

func (r *pgUserRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`
	return r.execExpectingRow(ctx, "SetActive", query, id, active)
}

func (r *pgUserRepository) execExpectingRow(ctx context.Context, op, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("pgUserRepository.%s: %w: %v", op, common.ErrStoreUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("pgUserRepository.%s rows: %w: %v", op, common.ErrStoreUnavailable, err)
	}
	if affected == 0 {
		return common.ErrNotFound
	}
	return nil
}
