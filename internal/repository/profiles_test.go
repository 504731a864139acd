package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProfileByUserID(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	rows := sqlmock.NewRows([]string{"role", "permissions", "primary_site_id", "original_password_hash"}).
		AddRow("admin", []byte(`["read"]`), "site-1", "$2b$10$legacy")
	mock.ExpectQuery(`FROM user_profiles WHERE user_id = \$1`).WithArgs(int64(2)).WillReturnRows(rows)

	profile, err := repo.GetProfileByUserID(context.Background(), 2)
	require.NoError(t, err)
	require.NotNil(t, profile.Role)
	assert.Equal(t, "admin", *profile.Role)
	assert.JSONEq(t, `["read"]`, string(profile.Permissions))
	assert.Equal(t, "$2b$10$legacy", profile.LegacyHash())
}

func TestGetProfileByUserID_NullColumns(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	rows := sqlmock.NewRows([]string{"role", "permissions", "primary_site_id", "original_password_hash"}).
		AddRow(nil, nil, nil, nil)
	mock.ExpectQuery(`FROM user_profiles`).WithArgs(int64(2)).WillReturnRows(rows)

	profile, err := repo.GetProfileByUserID(context.Background(), 2)
	require.NoError(t, err)
	assert.Nil(t, profile.Role)
	assert.Nil(t, profile.Permissions)
	assert.Nil(t, profile.PrimarySiteID)
	assert.Empty(t, profile.LegacyHash())
}

func TestGetProfileByUserID_Missing(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM user_profiles`).WithArgs(int64(2)).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetProfileByUserID(context.Background(), 2)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}
