package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// serveWS 升级为WebSocket连接，连接建立后先收到一次状态快照
func (r *Router) serveWS(c *gin.Context) {
	if r.hub == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Code:    "UNAVAILABLE",
			Message: "状态推送未启用",
		})
		return
	}
	if err := r.hub.ServeWS(c.Writer, c.Request); err != nil {
		// 升级失败时upgrader已写出响应
		r.log.Warn("WebSocket连接失败", zap.String("client", c.ClientIP()), zap.Error(err))
	}
}
