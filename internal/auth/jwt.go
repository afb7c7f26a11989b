package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims 会话令牌，由身份服务签发，本服务只校验
type Claims struct {
	MemberID int64 `json:"member_id"`
	jwt.RegisteredClaims
}

type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// GenerateToken 签发 HS256 令牌，用于联调与测试
func (m *TokenManager) GenerateToken(memberID int64) (string, error) {
	now := time.Now()
	claims := Claims{
		MemberID: memberID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", memberID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *TokenManager) ParseToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.MemberID <= 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

type memberKey struct{}

// WithMember 把已认证会员写入 ctx
func WithMember(ctx context.Context, memberID int64) context.Context {
	return context.WithValue(ctx, memberKey{}, memberID)
}

// MemberFromContext 读取已认证会员，未认证返回 false
func MemberFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(memberKey{}).(int64)
	return id, ok
}
