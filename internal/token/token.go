// Package token 签发和解析 access/refresh 两种 JWT。
package token

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/domain"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var ErrInvalidToken = errors.New("无效的令牌")

type Claims struct {
	TokenType string `json:"token_type"`
	IsStaff   bool   `json:"is_staff"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

type Pair struct {
	Access    string
	Refresh   string
	ExpiresIn int
	// RefreshID 即 refresh token 的 jti，注销时用于吊销
	RefreshID string
}

type Issuer struct {
	secret            []byte
	accessExpiration  time.Duration
	refreshExpiration time.Duration
	now               func() time.Time
}

func NewIssuer(secret string, accessExpiration, refreshExpiration time.Duration) *Issuer {
	return &Issuer{
		secret:            []byte(secret),
		accessExpiration:  accessExpiration,
		refreshExpiration: refreshExpiration,
		now:               time.Now,
	}
}

func (i *Issuer) Issue(user *domain.User) (*Pair, error) {
	access, _, err := i.sign(user, TypeAccess, i.accessExpiration)
	if err != nil {
		return nil, err
	}

	refresh, refreshID, err := i.sign(user, TypeRefresh, i.refreshExpiration)
	if err != nil {
		return nil, err
	}

	return &Pair{
		Access:    access,
		Refresh:   refresh,
		ExpiresIn: int(i.accessExpiration.Seconds()),
		RefreshID: refreshID,
	}, nil
}

func (i *Issuer) sign(user *domain.User, tokenType string, expiration time.Duration) (string, string, error) {
	now := i.now()
	id := uuid.NewString()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		TokenType: tokenType,
		IsStaff:   user.IsStaff,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Subject:   strconv.FormatInt(user.ID, 10),
		},
	})

	ss, err := token.SignedString(i.secret)
	if err != nil {
		return "", "", err
	}

	return ss, id, nil
}

func (i *Issuer) ParseAccess(tokenString string) (*Claims, error) {
	return i.parse(tokenString, TypeAccess)
}

func (i *Issuer) ParseRefresh(tokenString string) (*Claims, error) {
	return i.parse(tokenString, TypeRefresh)
}

func (i *Issuer) parse(tokenString, tokenType string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired(), jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, ErrInvalidToken
	}

	if claims.TokenType != tokenType {
		return nil, ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
