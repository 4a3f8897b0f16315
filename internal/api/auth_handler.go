package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TokenRequest 换取令牌请求
type TokenRequest struct {
	APIKey   string `json:"api_key" binding:"required"`
	Operator string `json:"operator"`
}

// TokenResponse 令牌响应
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// issueToken 用API密钥换取访问令牌
func (r *Router) issueToken(c *gin.Context) {
	if r.tokens == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "AUTH_DISABLED",
			Message: "未启用认证",
		})
		return
	}

	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	token, expiresAt, err := r.tokens.Login(req.APIKey, req.Operator)
	if err != nil {
		r.log.Warn("令牌申请被拒绝", zap.String("client", c.ClientIP()))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, TokenResponse{Token: token, ExpiresAt: expiresAt})
}
