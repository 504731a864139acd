package domain

import (
	"encoding/json"
	"time"
)

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	IsStaff      bool      `json:"is_staff"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"-"`
	Version      int32     `json:"-"`
}

// HasUsablePassword 为 false 表示该用户只能通过旧系统的哈希登录或者重置密码
func (u *User) HasUsablePassword() bool {
	return u.PasswordHash != ""
}

// Profile 与 User 一一对应，OriginalPasswordHash 保存从旧身份系统导入的 bcrypt 哈希
type Profile struct {
	UserID               int64           `json:"-"`
	Role                 *string         `json:"role"`
	Permissions          json.RawMessage `json:"permissions"`
	PrimarySiteID        *string         `json:"primary_site_id"`
	OriginalPasswordHash *string         `json:"-"`
}

func (p *Profile) LegacyHash() string {
	if p == nil || p.OriginalPasswordHash == nil {
		return ""
	}
	return *p.OriginalPasswordHash
}
