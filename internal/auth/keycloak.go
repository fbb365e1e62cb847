package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// 平台角色，来自 Keycloak realm roles
const (
	RoleAdmin    = "admin"
	RoleProvider = "provider"
	RoleClient   = "client"
)

// callerKey gin 上下文中的调用方
const callerKey = "caller"

// KeycloakClaims Keycloak JWT 声明
type KeycloakClaims struct {
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
	Name              string `json:"name"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	jwt.RegisteredClaims
}

// Caller 已认证的调用方
type Caller struct {
	UserID   string
	Username string
	Roles    []string
}

// HasRole 是否拥有角色
func (c Caller) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin 是否管理员
func (c Caller) IsAdmin() bool { return c.HasRole(RoleAdmin) }

// CallerFromClaims 从声明构造调用方
func CallerFromClaims(claims *KeycloakClaims) Caller {
	return Caller{
		UserID:   claims.Subject,
		Username: claims.PreferredUsername,
		Roles:    claims.RealmAccess.Roles,
	}
}

// TokenValidator 校验 bearer token
type TokenValidator interface {
	ValidateToken(tokenString string) (*KeycloakClaims, error)
}

// jwksMinRefresh 两次因未知 kid 触发的 JWKS 拉取之间的最小间隔
const jwksMinRefresh = 30 * time.Second

// KeycloakTokenValidator 校验 Keycloak 签发的 RS256 token
type KeycloakTokenValidator struct {
	issuer string
	keys   *jwksKeySet
	parser *jwt.Parser
}

// NewKeycloakTokenValidator jwksURL 为空时使用 issuer 下的标准 certs 地址
func NewKeycloakTokenValidator(issuer, jwksURL string) *KeycloakTokenValidator {
	return newKeycloakTokenValidator(issuer, jwksURL, jwksMinRefresh)
}

func newKeycloakTokenValidator(issuer, jwksURL string, minRefresh time.Duration) *KeycloakTokenValidator {
	if jwksURL == "" {
		jwksURL = strings.TrimSuffix(issuer, "/") + "/protocol/openid-connect/certs"
	}
	return &KeycloakTokenValidator{
		issuer: issuer,
		keys:   newJWKSKeySet(jwksURL, minRefresh),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(30*time.Second),
		),
	}
}

// Issuer 返回 Issuer URL
func (v *KeycloakTokenValidator) Issuer() string {
	return v.issuer
}

// ValidateToken 校验签名、issuer 和过期时间，且要求 sub 非空
func (v *KeycloakTokenValidator) ValidateToken(tokenString string) (*KeycloakClaims, error) {
	claims := &KeycloakClaims{}
	_, err := v.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token header has no kid")
		}
		return v.keys.key(context.Background(), kid)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to validate token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// bearerToken 取 Authorization 头，浏览器的 WebSocket/SSE 连接无法设置请求头，允许 ?token= 参数
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return c.Query("token")
}

// KeycloakAuthMiddleware JWT 认证中间件，成功后在上下文中写入 Caller
func KeycloakAuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "missing authorization header",
			})
			return
		}

		claims, err := validator.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    401,
				"message": "invalid token",
				"detail":  err.Error(),
			})
			return
		}

		caller := CallerFromClaims(claims)
		c.Set(callerKey, caller)
		c.Set("user_id", caller.UserID)
		c.Next()
	}
}

// RequireRole 要求调用方拥有任一角色
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := CallerFromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": 401, "message": "unauthorized"})
			return
		}
		for _, r := range roles {
			if caller.HasRole(r) {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": 403, "message": "forbidden"})
	}
}

// CallerFromContext 读取认证中间件写入的调用方
func CallerFromContext(c *gin.Context) (Caller, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return Caller{}, false
	}
	caller, ok := v.(Caller)
	return caller, ok
}

// SetCaller 写入调用方，供测试和内部调用使用
func SetCaller(c *gin.Context, caller Caller) {
	c.Set(callerKey, caller)
	c.Set("user_id", caller.UserID)
}
