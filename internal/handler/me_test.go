package handler

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registerAndLogin(t *testing.T, env *testEnv, email, password string) authBody {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/register/", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[authBody](t, rec)
}

func TestMe_ReturnsCallerProjection(t *testing.T) {
	env := newTestEnv(t)
	body := registerAndLogin(t, env, "me@x.com", "secret")

	rec := env.do(t, http.MethodGet, "/me/", nil, bearer(body.Token)...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	me := decode[map[string]any](t, rec)
	assert.Equal(t, "me@x.com", me["email"])
	assert.Equal(t, body.User["id"], me["id"])
	for _, key := range []string{"id", "username", "email", "is_staff", "is_active", "first_name", "last_name"} {
		assert.Contains(t, me, key)
	}
	assert.Len(t, me, 7)
}

func TestMe_RequiresValidAccessToken(t *testing.T) {
	env := newTestEnv(t)
	body := registerAndLogin(t, env, "me@x.com", "secret")

	tests := []struct {
		name    string
		headers []string
	}{
		{name: "no header"},
		{name: "wrong scheme", headers: []string{"Authorization", "Basic " + body.Token}},
		{name: "garbage", headers: bearer("garbage")},
		{name: "refresh token", headers: bearer(body.Refresh)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/me/", nil, tt.headers...)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
		})
	}
}

func TestMe_DeactivatedUser(t *testing.T) {
	env := newTestEnv(t)
	body := registerAndLogin(t, env, "me@x.com", "secret")
	env.store.users[int64(body.User["id"].(float64))].IsActive = false

	rec := env.do(t, http.MethodGet, "/me/", nil, bearer(body.Token)...)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateMyPassword(t *testing.T) {
	env := newTestEnv(t)
	body := registerAndLogin(t, env, "me@x.com", "secret")

	rec := env.do(t, http.MethodPatch, "/me/password/", map[string]string{"old_password": "nope!!", "new_password": "changed"}, bearer(body.Token)...)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string][]string](t, rec), "old_password")

	rec = env.do(t, http.MethodPatch, "/me/password/", map[string]string{"old_password": "secret", "new_password": "changed"}, bearer(body.Token)...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/login/", map[string]string{"email": "me@x.com", "password": "changed"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateMyPassword_OverBcryptLimit(t *testing.T) {
	env := newTestEnv(t)
	body := registerAndLogin(t, env, "me@x.com", "secret")

	rec := env.do(t, http.MethodPatch, "/me/password/", map[string]string{"old_password": "secret", "new_password": strings.Repeat("a", 73)}, bearer(body.Token)...)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Contains(t, decode[map[string][]string](t, rec), "new_password")
}

func TestUpdateMyPassword_ImportedUserCanUseLegacyPassword(t *testing.T) {
	env := newTestEnv(t)
	user := env.store.addImported(t, "imp@x.com", legacyHash(t, "legacy-pw"))

	pair, err := env.handler.tokens.Issue(user)
	require.NoError(t, err)

	rec := env.do(t, http.MethodPatch, "/me/password/", map[string]string{"old_password": "legacy-pw", "new_password": "native-pw"}, bearer(pair.Access)...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	profile, err := env.store.GetProfileByUserID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Empty(t, profile.LegacyHash())
}

func TestUpdateMyInfo(t *testing.T) {
	env := newTestEnv(t)
	body := registerAndLogin(t, env, "me@x.com", "secret")

	rec := env.do(t, http.MethodPatch, "/me/", map[string]string{"first_name": "Ada"}, bearer(body.Token)...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	me := decode[map[string]any](t, rec)
	assert.Equal(t, "Ada", me["first_name"])
	assert.Equal(t, "", me["last_name"])

	rec = env.do(t, http.MethodGet, "/me/", nil, bearer(body.Token)...)
	assert.Equal(t, "Ada", decode[map[string]any](t, rec)["first_name"])
}

func TestUpdateMyInfo_TooLong(t *testing.T) {
	env := newTestEnv(t)
	body := registerAndLogin(t, env, "me@x.com", "secret")

	long := make([]byte, 151)
	for i := range long {
		long[i] = 'a'
	}
	rec := env.do(t, http.MethodPatch, "/me/", map[string]string{"last_name": string(long)}, bearer(body.Token)...)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string][]string](t, rec), "last_name")
}
