package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/autopbw/internal/middleware"
	"go.uber.org/zap"
)

// EmpireRequest 上传帝国文件请求
type EmpireRequest struct {
	File string `json:"file" binding:"required"`
}

// HoldRequest 设置暂停请求
type HoldRequest struct {
	Reason string `json:"reason"`
}

// getStatus 当前状态快照
func (r *Router) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.orch.Status())
}

// getNotifications 最近的通知
func (r *Router) getNotifications(c *gin.Context) {
	if r.notifications == nil {
		c.JSON(http.StatusOK, gin.H{"notifications": []interface{}{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": r.notifications.All()})
}

func (r *Router) listHostGames(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"games": r.orch.Status().HostGames})
}

func (r *Router) listPlayerGames(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"games": r.orch.Status().PlayerGames})
}

// refresh 立即刷新游戏列表
func (r *Router) refresh(c *gin.Context) {
	r.act(c, "刷新", r.orch.RefreshNow)
}

// cancelProcessing 取消正在处理的回合
func (r *Router) cancelProcessing(c *gin.Context) {
	r.act(c, "取消处理", r.orch.Cancel)
}

func (r *Router) downloadTurn(c *gin.Context) {
	r.playerAction(c, "下载回合", r.orch.DownloadTurn)
}

func (r *Router) playTurn(c *gin.Context) {
	r.playerAction(c, "启动客户端", r.orch.PlayTurn)
}

func (r *Router) uploadTurn(c *gin.Context) {
	r.playerAction(c, "上传回合", r.orch.UploadTurn)
}

// uploadEmpire 上传帝国文件，file为帝国目录下的文件名
func (r *Router) uploadEmpire(c *gin.Context) {
	var req EmpireRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	r.playerAction(c, "上传帝国", func(ctx context.Context, code string, player int) error {
		return r.orch.UploadEmpire(ctx, code, player, req.File)
	})
}

// downloadEmpires 下载主持游戏的帝国文件
func (r *Router) downloadEmpires(c *gin.Context) {
	code := c.Param("code")
	r.act(c, "下载帝国", func(ctx context.Context) error {
		return r.orch.DownloadEmpires(ctx, code)
	})
}

// placeHold 设置处理暂停，原因可省略
func (r *Router) placeHold(c *gin.Context) {
	var req HoldRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	code := c.Param("code")
	r.act(c, "设置暂停", func(ctx context.Context) error {
		return r.orch.PlaceHold(ctx, code, req.Reason)
	})
}

func (r *Router) clearHold(c *gin.Context) {
	code := c.Param("code")
	r.act(c, "解除暂停", func(ctx context.Context) error {
		return r.orch.ClearHold(ctx, code)
	})
}

// playerAction 解析游戏代码和玩家编号后执行
func (r *Router) playerAction(c *gin.Context, name string, fn func(ctx context.Context, code string, player int) error) {
	code := c.Param("code")
	player, err := strconv.Atoi(c.Param("player"))
	if err != nil || player < 0 {
		badRequest(c, "player must be a non-negative integer")
		return
	}
	r.act(c, name, func(ctx context.Context) error {
		return fn(ctx, code, player)
	})
}

// act 执行操作并写出结果
func (r *Router) act(c *gin.Context, name string, fn func(ctx context.Context) error) {
	operator, _ := middleware.GetOperator(c)
	if err := fn(c.Request.Context()); err != nil {
		r.log.Warn("操作失败",
			zap.String("action", name),
			zap.String("operator", operator),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		respondError(c, err)
		return
	}

	r.log.Info("操作完成",
		zap.String("action", name),
		zap.String("operator", operator),
		zap.String("path", c.Request.URL.Path),
	)
	c.JSON(http.StatusOK, SuccessResponse{Message: "ok"})
}
