package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/domain"
)

func (r *Repository) GetProfileByUserID(ctx context.Context, userID int64) (*domain.Profile, error) {
	query := `
		SELECT role, permissions, primary_site_id, original_password_hash
		FROM user_profiles WHERE user_id = $1
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	profile := &domain.Profile{
		UserID: userID,
	}

	var permissions []byte
	dst := []any{&profile.Role, &permissions, &profile.PrimarySiteID, &profile.OriginalPasswordHash}
	if err := r.dbpool.QueryRowContext(ctx, query, userID).Scan(dst...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	if len(permissions) > 0 {
		profile.Permissions = permissions
	}

	return profile, nil
}

func insertProfile(ctx context.Context, tx *sql.Tx, profile *domain.Profile) error {
	query := `
		INSERT INTO user_profiles (user_id, role, permissions, primary_site_id, original_password_hash)
		VALUES ($1, $2, $3, $4, $5)
	`

	// JSON 的 null 与缺失一样按 NULL 存储
	var permissions any
	if len(profile.Permissions) > 0 && string(profile.Permissions) != "null" {
		permissions = string(profile.Permissions)
	}

	args := []any{profile.UserID, profile.Role, permissions, profile.PrimarySiteID, profile.OriginalPasswordHash}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
