package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Identity 是认证成功后绑定到会话上的不可变身份。
type Identity struct {
	UserID   uint
	Username string
}

// RevocationChecker 是 Gateway 对吊销存储的唯一依赖。
type RevocationChecker interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// Gateway 校验连接与请求携带的凭证，自身不写任何存储。
type Gateway struct {
	issuer  *Issuer
	revoked RevocationChecker
}

func NewGateway(issuer *Issuer, revoked RevocationChecker) *Gateway {
	return &Gateway{issuer: issuer, revoked: revoked}
}

// Authenticate 依次检查：凭证存在、签名与过期、用途为 access、未被吊销。
// 失败细节只写日志，调用方只拿到 ErrUnauthenticated 系列错误。
func (g *Gateway) Authenticate(ctx context.Context, credential string) (Identity, error) {
	if credential == "" {
		log.Warn().Msg("auth rejected: missing credential")
		return Identity{}, ErrMissingCredential
	}
	claims, err := g.issuer.ParsePurpose(credential, PurposeAccess)
	if err != nil {
		log.Warn().Err(err).Msg("auth rejected")
		return Identity{}, err
	}
	revoked, err := g.revoked.IsRevoked(ctx, credential)
	if err != nil {
		// 查询失败时拒绝凭证
		log.Warn().Err(err).Uint("user_id", claims.UserID).Msg("auth rejected: revocation lookup failed")
		return Identity{}, fmt.Errorf("%w: revocation lookup: %v", ErrUnauthenticated, err)
	}
	if revoked {
		log.Warn().Uint("user_id", claims.UserID).Msg("auth rejected: revoked credential")
		return Identity{}, ErrRevokedCredential
	}
	return Identity{UserID: claims.UserID, Username: claims.Username()}, nil
}

// CredentialFromRequest 优先读取 token 查询参数，其次是 Authorization: Bearer 头。
func CredentialFromRequest(r *http.Request) string {
	if t := strings.TrimSpace(r.URL.Query().Get("token")); t != "" {
		return t
	}
	return BearerToken(r.Header.Get("Authorization"))
}

// BearerToken 从 Authorization 头值中取出 token，不是 Bearer 方案时返回空串。
func BearerToken(authz string) string {
	const prefix = "bearer "
	if len(authz) <= len(prefix) || !strings.EqualFold(authz[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authz[len(prefix):])
}

const (
	identityKey   = "identity"
	credentialKey = "credential"
)

// RequireIdentity 要求请求带有有效的 Bearer 凭证，并把身份写入 gin 上下文。
func RequireIdentity(g *Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		cred := BearerToken(c.GetHeader("Authorization"))
		id, err := g.Authenticate(c.Request.Context(), cred)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, ErrMissingCredential) {
				msg = "missing bearer token"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}
		c.Set(identityKey, id)
		c.Set(credentialKey, cred)
		c.Next()
	}
}

func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

// CredentialFrom 返回通过 RequireIdentity 校验的原始凭证，登出时需要它。
func CredentialFrom(c *gin.Context) string {
	return c.GetString(credentialKey)
}
