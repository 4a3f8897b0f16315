package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/autopbw/internal/auth"
	"github.com/wfunc/autopbw/internal/errors"
)

const operatorKey = "operator"

// AuthMiddleware JWT认证中间件
type AuthMiddleware struct {
	tokens *auth.Manager
}

// NewAuthMiddleware 创建认证中间件，tokens为nil时不校验
func NewAuthMiddleware(tokens *auth.Manager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Enabled 是否启用认证
func (m *AuthMiddleware) Enabled() bool {
	return m.tokens != nil
}

// RequireAuth 需要认证的中间件
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.tokens == nil {
			c.Next()
			return
		}

		token := extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "NO_TOKEN",
				"message": "缺少认证令牌",
			})
			return
		}

		claims, err := m.tokens.ValidateToken(token)
		if err != nil {
			code := "INVALID_TOKEN"
			if errors.Is(err, errors.ErrTokenExpired) {
				code = "TOKEN_EXPIRED"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    code,
				"message": "无效的令牌",
				"details": errors.Text(err),
			})
			return
		}

		c.Set(operatorKey, claims.Operator)
		c.Next()
	}
}

// extractToken 从请求中提取令牌
func extractToken(c *gin.Context) string {
	// 1. Authorization: Bearer
	if bearer := c.GetHeader("Authorization"); bearer != "" {
		parts := strings.SplitN(bearer, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	// 2. X-Access-Token
	if token := c.GetHeader("X-Access-Token"); token != "" {
		return token
	}

	// 3. Query参数，浏览器的WebSocket无法设置Header
	return c.Query("token")
}

// GetOperator 从上下文获取操作员名称
func GetOperator(c *gin.Context) (string, bool) {
	if v, exists := c.Get(operatorKey); exists {
		if name, ok := v.(string); ok {
			return name, true
		}
	}
	return "", false
}
