// Package credential 负责密码哈希的生成与校验，包括从旧身份系统导入的 bcrypt 哈希。
// 这里的函数都不做任何持久化，迁移后的哈希由调用方负责写回数据库。
package credential

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

type Decision int

const (
	Rejected Decision = iota
	AuthenticatedNative
	AuthenticatedLegacyMigrated
)

func (d Decision) String() string {
	switch d {
	case AuthenticatedNative:
		return "authenticated_native"
	case AuthenticatedLegacyMigrated:
		return "authenticated_legacy_migrated"
	default:
		return "rejected"
	}
}

// LegacyResult 在内部区分旧哈希校验失败的原因，对外统一视为认证失败
type LegacyResult int

const (
	LegacyAbsent LegacyResult = iota
	LegacyMatched
	LegacyNotMatched
	LegacyMalformed
)

func (r LegacyResult) String() string {
	switch r {
	case LegacyMatched:
		return "matched"
	case LegacyNotMatched:
		return "not_matched"
	case LegacyMalformed:
		return "malformed"
	default:
		return "absent"
	}
}

// MaxPasswordBytes 是 bcrypt 能处理的最大密码长度，按字节而不是字符计算
const MaxPasswordBytes = 72

var ErrPasswordTooLong = errors.New("密码长度超过 72 个字节")

// 用于在用户不存在时做一次等价的 bcrypt 比较，使响应时间与密码错误时一致
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("account-bridge-dummy-password"), bcrypt.DefaultCost)

func HashPassword(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyNative 对空哈希（没有可用密码）或格式错误的哈希一律返回 false
func VerifyNative(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// VerifyLegacy 校验旧系统的 bcrypt 哈希，盐和 cost 都编码在哈希本身中
func VerifyLegacy(password, legacyHash string) LegacyResult {
	if legacyHash == "" {
		return LegacyAbsent
	}

	if _, err := bcrypt.Cost([]byte(legacyHash)); err != nil {
		return LegacyMalformed
	}

	err := bcrypt.CompareHashAndPassword([]byte(legacyHash), []byte(password))
	switch {
	case err == nil:
		return LegacyMatched
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return LegacyNotMatched
	default:
		return LegacyMalformed
	}
}

// Verify 先用本系统的哈希校验，只有失败时才尝试旧哈希。
// 返回 AuthenticatedLegacyMigrated 时调用方必须立即用 password 生成新的哈希并保存。
func Verify(password, nativeHash, legacyHash string) Decision {
	if VerifyNative(password, nativeHash) {
		return AuthenticatedNative
	}

	if VerifyLegacy(password, legacyHash) == LegacyMatched {
		return AuthenticatedLegacyMigrated
	}

	return Rejected
}

func DummyCompare(password string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}
