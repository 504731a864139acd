package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/domain"
)

func TestIssueAndParse(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour, 24*time.Hour)

	pair, err := issuer.Issue(&domain.User{ID: 42, IsStaff: true})
	require.NoError(t, err)
	assert.Equal(t, 3600, pair.ExpiresIn)
	assert.NotEmpty(t, pair.RefreshID)

	claims, err := issuer.ParseAccess(pair.Access)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.True(t, claims.IsStaff)

	refreshClaims, err := issuer.ParseRefresh(pair.Refresh)
	require.NoError(t, err)
	assert.Equal(t, pair.RefreshID, refreshClaims.ID)
}

func TestParse_RejectsWrongTokenType(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour, 24*time.Hour)

	pair, err := issuer.Issue(&domain.User{ID: 1})
	require.NoError(t, err)

	_, err = issuer.ParseAccess(pair.Refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.ParseRefresh(pair.Access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_RejectsForeignSignature(t *testing.T) {
	pair, err := NewIssuer("one", time.Hour, time.Hour).Issue(&domain.User{ID: 1})
	require.NoError(t, err)

	_, err = NewIssuer("two", time.Hour, time.Hour).ParseAccess(pair.Access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_RejectsExpired(t *testing.T) {
	issuer := NewIssuer("secret", time.Minute, time.Hour)
	issued := time.Now().Add(-2 * time.Minute)
	issuer.now = func() time.Time { return issued }

	pair, err := issuer.Issue(&domain.User{ID: 1})
	require.NoError(t, err)

	issuer.now = time.Now
	_, err = issuer.ParseAccess(pair.Access)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// refresh token 的有效期更长，仍然可用
	_, err = issuer.ParseRefresh(pair.Refresh)
	assert.NoError(t, err)
}

func TestParse_Garbage(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour, time.Hour)
	_, err := issuer.ParseAccess("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
