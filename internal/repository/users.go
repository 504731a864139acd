package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/domain"
)

const userColumns = `id, username, email, password_hash, first_name, last_name, is_staff, is_active, created_at, version`

func scanUser(row interface{ Scan(dest ...any) error }) (*domain.User, error) {
	user := &domain.User{}
	dst := []any{&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.FirstName, &user.LastName, &user.IsStaff, &user.IsActive, &user.CreatedAt, &user.Version}
	if err := row.Scan(dst...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *Repository) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	return scanUser(r.dbpool.QueryRowContext(ctx, query, id))
}

// GetUserByEmail 按邮箱查询用户，忽略大小写
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	return scanUser(r.dbpool.QueryRowContext(ctx, query, email))
}

func (r *Repository) CheckEmailIfExists(ctx context.Context, email string) (bool, error) {
	isExists := false

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	query := `
		SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))
	`
	if err := r.dbpool.QueryRowContext(ctx, query, email).Scan(&isExists); err != nil {
		return false, err
	}

	return isExists, nil
}

// CreateUserWithProfile 在同一个事务中创建用户及其 profile，profile 为 nil 时创建空 profile
func (r *Repository) CreateUserWithProfile(ctx context.Context, user *domain.User, profile *domain.Profile) error {
	if profile == nil {
		profile = &domain.Profile{}
	}

	user.Email = strings.ToLower(user.Email)
	if user.Username == "" {
		user.Username = user.Email
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO users (username, email, password_hash, first_name, last_name, is_staff)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, is_active, created_at, version
		`
		args := []any{user.Username, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.IsStaff}
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&user.ID, &user.IsActive, &user.CreatedAt, &user.Version); err != nil {
			return mapUserConstraintError(err)
		}

		profile.UserID = user.ID
		return insertProfile(ctx, tx, profile)
	})
}

func (r *Repository) UpdateUser(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET
			email = $1,
			password_hash = $2,
			first_name = $3,
			last_name = $4,
			is_staff = $5,
			is_active = $6,
			version = version + 1
		WHERE id = $7 AND version = $8
		RETURNING version
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	args := []any{strings.ToLower(user.Email), user.PasswordHash, user.FirstName, user.LastName, user.IsStaff, user.IsActive, user.ID, user.Version}
	if err := r.dbpool.QueryRowContext(ctx, query, args...).Scan(&user.Version); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return ErrEditConflict
		default:
			return mapUserConstraintError(err)
		}
	}

	return nil
}

// SetPassword 写入新的密码哈希并清除旧系统的哈希，两者在同一事务中完成，
// 中途失败时旧哈希仍然保留，下次登录会重新走一遍迁移
func (r *Repository) SetPassword(ctx context.Context, userID int64, passwordHash string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE users SET password_hash = $1, version = version + 1 WHERE id = $2`, passwordHash, userID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrRecordNotFound
		}

		if _, err := tx.ExecContext(ctx, `UPDATE user_profiles SET original_password_hash = NULL WHERE user_id = $1`, userID); err != nil {
			return err
		}

		return nil
	})
}

func mapUserConstraintError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.ConstraintName {
		case "users_email_lower_key", "users_username_key":
			return ErrDuplicateEmail
		}
	}
	return fmt.Errorf("写入用户失败: %w", err)
}
