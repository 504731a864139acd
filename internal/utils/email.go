package utils

import "strings"

// NormalizeEmail 统一邮箱的大小写，所有按邮箱的查找都忽略大小写
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
