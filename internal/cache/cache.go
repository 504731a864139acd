// Package cache 保存短期状态：重置密码的验证码和已注销的 refresh token。
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("键不存在")

type RedisStore struct {
	client           redis.Cmdable
	operationTimeout time.Duration
}

func NewRedisStore(client redis.Cmdable, operationTimeout time.Duration) *RedisStore {
	return &RedisStore{
		client:           client,
		operationTimeout: operationTimeout,
	}
}

func otpKey(email string) string {
	return fmt.Sprintf("otp_%s_reset_password", email)
}

func revokedRefreshKey(id string) string {
	return fmt.Sprintf("revoked_refresh_%s", id)
}

func (s *RedisStore) SaveOTP(ctx context.Context, email, otp string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.operationTimeout)
	defer cancel()

	return s.client.Set(ctx, otpKey(email), otp, ttl).Err()
}

func (s *RedisStore) GetOTP(ctx context.Context, email string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.operationTimeout)
	defer cancel()

	otp, err := s.client.Get(ctx, otpKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", err
	}
	return otp, nil
}

func (s *RedisStore) DeleteOTP(ctx context.Context, email string) error {
	ctx, cancel := context.WithTimeout(ctx, s.operationTimeout)
	defer cancel()

	return s.client.Del(ctx, otpKey(email)).Err()
}

// RevokeRefresh 记录已注销的 refresh token，ttl 到期后 token 本身也已过期，无需继续保存。
// 只有第一次注销返回 true，并发使用同一个 token 时只有一方能成功
func (s *RedisStore) RevokeRefresh(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.operationTimeout)
	defer cancel()

	return s.client.SetNX(ctx, revokedRefreshKey(id), 1, ttl).Result()
}
