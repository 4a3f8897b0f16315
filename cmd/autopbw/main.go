package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/autopbw/internal/api"
	"github.com/wfunc/autopbw/internal/archive"
	"github.com/wfunc/autopbw/internal/auth"
	"github.com/wfunc/autopbw/internal/config"
	"github.com/wfunc/autopbw/internal/database"
	"github.com/wfunc/autopbw/internal/errors"
	"github.com/wfunc/autopbw/internal/launcher"
	"github.com/wfunc/autopbw/internal/logger"
	"github.com/wfunc/autopbw/internal/notify"
	"github.com/wfunc/autopbw/internal/orchestrator"
	"github.com/wfunc/autopbw/internal/pbw"
	"github.com/wfunc/autopbw/internal/registry"
	"github.com/wfunc/autopbw/internal/repository"
	"github.com/wfunc/autopbw/internal/websocket"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
	"gorm.io/gorm"
)

// 版本信息
var (
	Version   = "2.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// 通知保留条数
const notificationHistory = 200

// Server 守护进程实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	db       *gorm.DB
	registry *registry.Registry
	client   *pbw.Client
	hub      *websocket.Hub
	orch     *orchestrator.Orchestrator
	telegram *notify.TelegramSink
	recorder *notify.Recorder
	http     *http.Server

	// 关闭控制
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
	)

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Get()

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Cleanup()

	server := NewServer(cfg)

	if err := server.Start(); err != nil {
		logger.Fatal("启动失败", zap.Error(err))
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("关闭失败", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("已安全退出")
}

// NewServer 创建守护进程实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:    cfg,
		logger: logger.GetLogger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 初始化组件并启动后台服务
func (s *Server) Start() error {
	s.logger.Info("正在启动AutoPBW...",
		zap.String("version", Version),
		zap.String("pbw", s.cfg.PBW.BaseURL),
	)

	if err := s.initComponents(); err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "初始化组件失败")
	}

	s.startServices()

	// 监听配置变化
	config.Watch(func(newCfg *config.Config) {
		s.logger.Info("配置已更新，正在重新加载...")
		s.reloadConfig(newCfg)
	})

	s.logger.Info("AutoPBW启动成功",
		zap.Bool("hosting", s.cfg.Host.Enabled),
		zap.Bool("auto_download", s.cfg.Player.AutoDownload),
		zap.Bool("auto_upload", s.cfg.Player.AutoUpload),
		zap.Duration("poll_interval", s.cfg.Polling.Interval),
	)
	return nil
}

// initComponents 初始化组件
func (s *Server) initComponents() error {
	if err := s.initRegistry(); err != nil {
		return err
	}

	client, err := pbw.NewClient(s.cfg.PBW, s.registry)
	if err != nil {
		return errors.Wrap(err, errors.ErrConfigValidate, "创建PBW客户端失败")
	}
	s.client = client

	s.hub = websocket.NewHub(logger.WithModule("websocket"))
	s.recorder = notify.NewRecorder(notificationHistory)

	sinks := notify.Multi{notify.NewLogSink(), s.recorder, notify.NewHubSink(s.hub)}
	if tg := s.cfg.Notify.Telegram; tg.Enabled {
		sink, err := notify.NewTelegramSink(tele.Settings{
			Token:  tg.Token,
			Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		}, tg.ChatID)
		if err != nil {
			// 通知渠道不可用不影响回合处理
			s.logger.Error("Telegram通知初始化失败", zap.Error(err))
		} else {
			s.telegram = sink
			sinks = append(sinks, sink)
		}
	}

	codec, err := archive.New(s.cfg.Archive.Format, s.cfg.Archive.SevenZip)
	if err != nil {
		return err
	}
	if sz, ok := codec.(*archive.SevenZip); ok && !sz.Available() {
		// 只影响上传，下载解压不需要外部程序
		s.logger.Warn("未找到7z程序，无法打包上传回合", zap.String("seven_zip", s.cfg.Archive.SevenZip))
	}

	orch, err := orchestrator.New(orchestrator.Deps{
		Service:     client,
		Codec:       codec,
		Launcher:    launcher.New(),
		Sink:        sinks,
		Broadcaster: s.hub,
		Logger:      logger.WithModule("orchestrator"),
	}, orchestrator.OptionsFromConfig(s.cfg))
	if err != nil {
		return err
	}
	s.orch = orch
	s.hub.SetStatusProvider(orch.StatusSnapshot)

	if s.cfg.Server.Enabled {
		if err := s.initHTTP(); err != nil {
			return err
		}
	}

	s.logger.Info("所有组件初始化完成")
	return nil
}

// initRegistry 初始化数据库和引擎/模组注册表
func (s *Server) initRegistry() error {
	defaults, err := registry.LoadDefaults(s.cfg.Paths.DefaultsFile)
	if err != nil {
		return errors.Wrap(err, errors.ErrConfigParse, "读取默认引擎/模组配置失败")
	}

	db, err := database.Init(&s.cfg.Database)
	if err != nil {
		return errors.Wrap(err, errors.ErrDatabaseConnect, "初始化数据库连接失败")
	}
	s.db = db

	if s.cfg.Database.AutoMigrate {
		s.logger.Info("执行数据库自动迁移...")
		if err := database.AutoMigrate(db); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}

	repos := repository.NewManager(db)
	s.registry = registry.New(defaults, repos.Engines(), repos.Mods())

	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()
	return s.registry.Load(ctx)
}

// initHTTP 创建管理接口
func (s *Server) initHTTP() error {
	gin.SetMode(s.cfg.Server.Mode)

	tokens, err := auth.NewManager(s.cfg.Security.JWT)
	if err != nil {
		return err
	}
	if tokens == nil {
		s.logger.Warn("未配置API密钥，管理接口不校验令牌")
	}

	router := api.NewRouter(api.Deps{
		Orchestrator:  s.orch,
		Registry:      s.registry,
		DB:            s.db,
		Hub:           s.hub,
		Notifications: s.recorder,
		Tokens:        tokens,
		Logger:        logger.WithModule("api"),
	})

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      router.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
	return nil
}

// startServices 启动后台服务
func (s *Server) startServices() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run(s.ctx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.orch.Run(s.ctx); err != nil {
			s.logger.Error("编排器异常退出", zap.Error(err))
		}
	}()

	if s.http != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.logger.Info("管理接口已启动", zap.String("address", s.http.Addr))
			if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.logger.Error("管理接口异常退出", zap.Error(err))
			}
		}()
	}
}

// WaitForShutdown 等待关闭信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGINT,  // Ctrl+C
		syscall.SIGTERM, // kill命令
	)

	sig := <-sigCh
	s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
}

// Shutdown 优雅关闭
func (s *Server) Shutdown() error {
	s.logger.Info("正在关闭...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 先停止接收新请求
	if s.http != nil {
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("管理接口关闭失败", zap.Error(err))
		}
	}

	// 取消主上下文，编排器和Hub随之退出
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("所有服务已正常关闭")
	case <-shutdownCtx.Done():
		s.logger.Warn("关闭超时，强制退出")
		return errors.New(errors.ErrTimeout, "关闭超时")
	}

	s.closeComponents()
	return nil
}

// closeComponents 关闭组件
func (s *Server) closeComponents() {
	if s.telegram != nil {
		s.telegram.Close()
	}

	if err := database.Close(); err != nil {
		s.logger.Error("关闭数据库失败", zap.Error(err))
	}

	if err := logger.Sync(); err != nil {
		fmt.Printf("同步日志失败: %v\n", err)
	}
}

// reloadConfig 把新配置应用到客户端和编排器
func (s *Server) reloadConfig(newCfg *config.Config) {
	s.cfg = newCfg

	s.client.SetCredentials(newCfg.PBW.Username, newCfg.PBW.Password)
	logger.SetLevel(newCfg.Log.Level)

	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	if err := s.orch.UpdateOptions(ctx, orchestrator.OptionsFromConfig(newCfg)); err != nil {
		s.logger.Warn("运行参数更新失败", zap.Error(err))
		return
	}

	s.logger.Info("配置重新加载完成")
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("AutoPBW\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("AutoPBW 回合自动处理守护进程")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  autopbw [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  AUTOPBW_PBW_USERNAME   PBW用户名")
	fmt.Println("  AUTOPBW_PBW_PASSWORD   PBW密码")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  autopbw -config=/path/to/config.yaml")
	fmt.Println("  autopbw -version")
}
