package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wfunc/autopbw/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu     sync.RWMutex
	once   sync.Once
	root   *zap.Logger
	level  = zap.NewAtomicLevel()
	module = map[string]*zap.Logger{}

	// 未初始化时使用，测试中不输出
	nop = zap.NewNop()
)

// sink 一个输出目标，minLevel非空时只接收该级别以上的日志
type sink struct {
	ws       zapcore.WriteSyncer
	minLevel *zapcore.Level
}

// Init 初始化日志系统，只有第一次调用生效
func Init(cfg *config.LogConfig) error {
	var err error
	once.Do(func() {
		err = build(cfg)
	})
	return err
}

func build(cfg *config.LogConfig) error {
	level.SetLevel(parseLevel(cfg.Level))

	var out []sink
	if cfg.Output == "stdout" || cfg.Output == "both" {
		out = append(out, sink{ws: zapcore.AddSync(os.Stdout)})
	}
	if cfg.Output == "file" || cfg.Output == "both" {
		if err := os.MkdirAll(cfg.File.Path, 0755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		errLevel := zapcore.ErrorLevel
		out = append(out,
			sink{ws: rotating(cfg.File, cfg.File.Filename)},
			// 错误单独成文件，方便排查失败的回合
			sink{ws: rotating(cfg.File, "error.log"), minLevel: &errLevel},
		)
	}

	encoder := newEncoder(cfg.Format)

	mu.Lock()
	defer mu.Unlock()
	root = zap.New(tee(encoder, out, level),
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	// 按模块单独设置级别，输出目标与主日志器相同
	for name, lv := range cfg.Modules {
		module[name] = zap.New(tee(encoder, out, zap.NewAtomicLevelAt(parseLevel(lv))),
			zap.AddCaller(),
			zap.AddCallerSkip(1),
		)
	}
	return nil
}

func newEncoder(format string) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "time"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeDuration = zapcore.SecondsDurationEncoder
	if format == "json" {
		return zapcore.NewJSONEncoder(ec)
	}
	ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(ec)
}

func rotating(cfg config.LogFileConfig, filename string) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(cfg.Path, filename),
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	})
}

func tee(encoder zapcore.Encoder, out []sink, enabler zapcore.LevelEnabler) zapcore.Core {
	cores := make([]zapcore.Core, 0, len(out))
	for _, s := range out {
		e := enabler
		if s.minLevel != nil {
			e = *s.minLevel
		}
		cores = append(cores, zapcore.NewCore(encoder, s.ws, e))
	}
	return zapcore.NewTee(cores...)
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// GetLogger 主日志器
func GetLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if root == nil {
		return nop
	}
	return root
}

// moduleLogger 模块未单独配置级别时使用主日志器
func moduleLogger(name string) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if l, ok := module[name]; ok {
		return l
	}
	if root == nil {
		return nop
	}
	return root
}

// WithModule 带模块名的日志器，供各组件持有
func WithModule(name string) *zap.Logger {
	// 组件直接调用，不经过本包的包装函数
	return moduleLogger(name).WithOptions(zap.AddCallerSkip(-1)).With(zap.String("module", name))
}

// SetLevel 动态设置主日志级别
func SetLevel(s string) {
	level.SetLevel(parseLevel(s))
}

// Sync 刷新所有输出
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if root == nil {
		return nil
	}
	return root.Sync()
}

// Cleanup 退出前刷新日志
func Cleanup() {
	if err := Sync(); err != nil {
		fmt.Printf("Failed to sync logger: %v\n", err)
	}
}

func Debug(msg string, fields ...zap.Field) { GetLogger().Debug(msg, fields...) }

func Info(msg string, fields ...zap.Field) { GetLogger().Info(msg, fields...) }

func Warn(msg string, fields ...zap.Field) { GetLogger().Warn(msg, fields...) }

func Error(msg string, fields ...zap.Field) { GetLogger().Error(msg, fields...) }

// Fatal 记录后退出进程
func Fatal(msg string, fields ...zap.Field) { GetLogger().Fatal(msg, fields...) }

// LogRequest 管理接口访问日志
func LogRequest(method, path string, status int, latency time.Duration, clientIP string) {
	moduleLogger("api").Info("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
		zap.Duration("latency", latency),
		zap.String("client_ip", clientIP),
	)
}

// LogPanic 记录被恢复的panic
func LogPanic(recovered interface{}, stack []byte) {
	GetLogger().Error("panic recovered",
		zap.Any("panic", recovered),
		zap.ByteString("stack", stack),
	)
}

// LogTurnEvent 回合处理事件，统一带上游戏和回合号
func LogTurnEvent(event string, gameCode string, turn int, fields ...zap.Field) {
	fields = append([]zap.Field{
		zap.String("event", event),
		zap.String("game", gameCode),
		zap.Int("turn", turn),
	}, fields...)
	moduleLogger("orchestrator").Info("turn_event", fields...)
}

// LogHTTPCall 对PBW的HTTP调用，失败为Warn，成功为Debug
func LogHTTPCall(method, url string, status int, latency time.Duration, err error) {
	fields := []zap.Field{
		zap.String("method", method),
		zap.String("url", url),
		zap.Int("status", status),
		zap.Duration("latency", latency),
	}
	l := moduleLogger("pbw")
	if err != nil {
		l.Warn("pbw_call_failed", append(fields, zap.Error(err))...)
		return
	}
	l.Debug("pbw_call", fields...)
}
