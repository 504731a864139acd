package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/cache"
	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/config"
	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/domain"
	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/repository"
)

type fakeStore struct {
	mu          sync.Mutex
	nextID      int64
	users       map[int64]*domain.User
	profiles    map[int64]*domain.Profile
	setPassword int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[int64]*domain.User{},
		profiles: map[int64]*domain.Profile{},
	}
}

func (s *fakeStore) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrRecordNotFound
}

func (s *fakeStore) CheckEmailIfExists(ctx context.Context, email string) (bool, error) {
	_, err := s.GetUserByEmail(ctx, email)
	return err == nil, nil
}

func (s *fakeStore) CreateUserWithProfile(ctx context.Context, user *domain.User, profile *domain.Profile) error {
	if ok, _ := s.CheckEmailIfExists(ctx, user.Email); ok {
		return repository.ErrDuplicateEmail
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if profile == nil {
		profile = &domain.Profile{}
	}
	s.nextID++
	user.ID = s.nextID
	user.Email = strings.ToLower(user.Email)
	user.IsActive = true
	profile.UserID = user.ID

	cp := *user
	s.users[user.ID] = &cp
	s.profiles[user.ID] = profile
	return nil
}

func (s *fakeStore) GetProfileByUserID(ctx context.Context, userID int64) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) SetPassword(ctx context.Context, userID int64, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return repository.ErrRecordNotFound
	}
	u.PasswordHash = passwordHash
	u.Version++
	if p, ok := s.profiles[userID]; ok {
		p.OriginalPasswordHash = nil
	}
	s.setPassword++
	return nil
}

func (s *fakeStore) UpdateUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[user.ID]
	if !ok || u.Version != user.Version {
		return repository.ErrEditConflict
	}
	user.Version++
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

// addImported 模拟批量导入的用户：没有本系统的密码，只有旧系统的哈希
func (s *fakeStore) addImported(t *testing.T, email, legacyHash string) *domain.User {
	t.Helper()
	user := &domain.User{Username: email, Email: email}
	profile := &domain.Profile{OriginalPasswordHash: &legacyHash}
	require.NoError(t, s.CreateUserWithProfile(context.Background(), user, profile))
	return user
}

type fakeCache struct {
	mu      sync.Mutex
	otps    map[string]string
	revoked map[string]bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{otps: map[string]string{}, revoked: map[string]bool{}}
}

func (c *fakeCache) SaveOTP(ctx context.Context, email, otp string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.otps[email] = otp
	return nil
}

func (c *fakeCache) GetOTP(ctx context.Context, email string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	otp, ok := c.otps[email]
	if !ok {
		return "", cache.ErrNotFound
	}
	return otp, nil
}

func (c *fakeCache) DeleteOTP(ctx context.Context, email string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.otps, email)
	return nil
}

func (c *fakeCache) RevokeRefresh(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.revoked[id] {
		return false, nil
	}
	c.revoked[id] = true
	return true, nil
}

type fakeMailer struct {
	mu       sync.Mutex
	messages []domain.MailMessage
	err      error
}

func (m *fakeMailer) Publish(ctx context.Context, msg domain.MailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

type testEnv struct {
	handler *Handler
	store   *fakeStore
	cache   *fakeCache
	mailer  *fakeMailer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.JWT.Secret = "test-secret"
	cfg.JWT.AccessExpiration = 3600
	cfg.JWT.RefreshExpiration = 86400
	cfg.OTP.Expiration = 900

	env := &testEnv{
		store:  newFakeStore(),
		cache:  newFakeCache(),
		mailer: &fakeMailer{},
	}

	h, err := NewHandler(cfg, env.store, env.mailer, env.cache)
	require.NoError(t, err)
	h.RegisterRoutes()
	env.handler = h

	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	e.handler.Mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func bearer(token string) []string {
	return []string{"Authorization", "Bearer " + token}
}
