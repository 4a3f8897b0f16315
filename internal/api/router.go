package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/autopbw/internal/auth"
	"github.com/wfunc/autopbw/internal/logger"
	"github.com/wfunc/autopbw/internal/middleware"
	"github.com/wfunc/autopbw/internal/notify"
	"github.com/wfunc/autopbw/internal/orchestrator"
	"github.com/wfunc/autopbw/internal/registry"
	"github.com/wfunc/autopbw/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Orchestrator 接口层用到的编排器操作
type Orchestrator interface {
	Status() orchestrator.Status
	Do(ctx context.Context, fn func(ctx context.Context) error) error
	RefreshNow(ctx context.Context) error
	Cancel(ctx context.Context) error
	DownloadTurn(ctx context.Context, code string, player int) error
	PlayTurn(ctx context.Context, code string, player int) error
	UploadTurn(ctx context.Context, code string, player int) error
	UploadEmpire(ctx context.Context, code string, player int, name string) error
	DownloadEmpires(ctx context.Context, code string) error
	PlaceHold(ctx context.Context, code, reason string) error
	ClearHold(ctx context.Context, code string) error
}

// Deps 路由依赖，DB/Hub/Notifications/Tokens可为nil
type Deps struct {
	Orchestrator  Orchestrator
	Registry      *registry.Registry
	DB            *gorm.DB
	Hub           *websocket.Hub
	Notifications *notify.Recorder
	Tokens        *auth.Manager
	Logger        *zap.Logger
}

// Router API路由器
type Router struct {
	engine         *gin.Engine
	orch           Orchestrator
	registry       *registry.Registry
	db             *gorm.DB
	hub            *websocket.Hub
	notifications  *notify.Recorder
	tokens         *auth.Manager
	authMiddleware *middleware.AuthMiddleware
	log            *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(deps Deps) *Router {
	engine := gin.New()

	// 全局中间件
	engine.Use(middleware.Recovery())
	engine.Use(middleware.RequestLogger())

	log := deps.Logger
	if log == nil {
		log = logger.WithModule("api")
	}

	router := &Router{
		engine:         engine,
		orch:           deps.Orchestrator,
		registry:       deps.Registry,
		db:             deps.DB,
		hub:            deps.Hub,
		notifications:  deps.Notifications,
		tokens:         deps.Tokens,
		authMiddleware: middleware.NewAuthMiddleware(deps.Tokens),
		log:            log,
	}

	router.setupRoutes()

	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	// 接口文档
	registerOpenAPIRoutes(r.engine)
	registerSwaggerRoutes(r.engine)

	v1 := r.engine.Group("/api/v1")
	{
		// 认证（不需要令牌）
		v1.POST("/auth/token", r.issueToken)

		protected := v1.Group("")
		protected.Use(r.authMiddleware.RequireAuth())
		{
			protected.GET("/status", r.getStatus)
			protected.GET("/notifications", r.getNotifications)
			protected.POST("/refresh", r.refresh)
			protected.POST("/processing/cancel", r.cancelProcessing)

			host := protected.Group("/games/host")
			{
				host.GET("", r.listHostGames)
				host.POST("/:code/empires/download", r.downloadEmpires)
				host.POST("/:code/hold", r.placeHold)
				host.DELETE("/:code/hold", r.clearHold)
			}

			player := protected.Group("/games/player")
			{
				player.GET("", r.listPlayerGames)
				player.POST("/:code/:player/download", r.downloadTurn)
				player.POST("/:code/:player/play", r.playTurn)
				player.POST("/:code/:player/upload", r.uploadTurn)
				player.POST("/:code/:player/empire", r.uploadEmpire)
			}

			engines := protected.Group("/engines")
			{
				engines.GET("", r.listEngines)
				engines.GET("/:code", r.getEngine)
				engines.POST("/:code", r.registerEngine)
				engines.PUT("/:code", r.updateEngine)
				engines.DELETE("/:code", r.deleteEngine)
			}

			mods := protected.Group("/mods")
			{
				mods.GET("", r.listMods)
				mods.GET("/:code", r.getMod)
				mods.POST("/:code", r.registerMod)
				mods.PUT("/:code", r.updateMod)
				mods.DELETE("/:code", r.deleteMod)
			}
		}
	}

	// WebSocket状态推送
	r.engine.GET("/ws", r.authMiddleware.RequireAuth(), r.serveWS)

	// 404处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "NOT_FOUND",
			Message: "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	if r.db != nil {
		sqlDB, err := r.db.DB()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"status":  "unhealthy",
				"message": "数据库连接失败",
			})
			return
		}
		if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"status":  "unhealthy",
				"message": "数据库ping失败",
			})
			return
		}
	}

	status := r.orch.Status()
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"message":      "服务运行正常",
		"connected":    status.Connected,
		"connectivity": status.Connectivity,
	})
}

// Handler 返回http.Handler，供http.Server使用
func (r *Router) Handler() http.Handler {
	return r.engine
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
