package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Purpose 区分 access 与 refresh 两类凭证。
type Purpose string

const (
	PurposeAccess  Purpose = "access"
	PurposeRefresh Purpose = "refresh"
)

var (
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrMissingCredential = fmt.Errorf("%w: missing credential", ErrUnauthenticated)
	ErrInvalidCredential = fmt.Errorf("%w: invalid credential", ErrUnauthenticated)
	ErrRevokedCredential = fmt.Errorf("%w: revoked credential", ErrUnauthenticated)
	ErrWrongPurpose      = fmt.Errorf("%w: wrong credential purpose", ErrUnauthenticated)
)

type Claims struct {
	UserID uint    `json:"uid"`
	Type   Purpose `json:"typ"`
	jwt.RegisteredClaims
}

// Username 返回签发时写入 sub 的用户名。
func (c *Claims) Username() string { return c.Subject }

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func VerifyPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// Issuer 负责签发与解析 HS512 凭证。
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

type IssuerOption func(*Issuer)

// WithIssuerClock 替换签发与校验使用的时钟，测试用。
func WithIssuerClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) { i.now = now }
}

func NewIssuer(secret string, accessTTL, refreshTTL time.Duration, opts ...IssuerOption) *Issuer {
	i := &Issuer{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Issue 签发一枚凭证，返回 token 与其过期时间。
func (i *Issuer) Issue(userID uint, username string, p Purpose) (string, time.Time, error) {
	ttl := i.accessTTL
	if p == PurposeRefresh {
		ttl = i.refreshTTL
	}
	now := i.now()
	exp := now.Add(ttl)
	claims := Claims{
		UserID: userID,
		Type:   p,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, claims.ExpiresAt.Time, nil
}

// Parse 校验签名与过期时间，签名算法固定为 HS512。
func (i *Issuer) Parse(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrMissingCredential
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}), jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == 0 {
		return nil, ErrInvalidCredential
	}
	return claims, nil
}

// ParsePurpose 在 Parse 的基础上要求凭证用途匹配。
func (i *Issuer) ParsePurpose(tokenStr string, p Purpose) (*Claims, error) {
	claims, err := i.Parse(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.Type != p {
		return nil, ErrWrongPurpose
	}
	return claims, nil
}
