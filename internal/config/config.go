package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	PBW      PBWConfig      `mapstructure:"pbw"`
	Polling  PollingConfig  `mapstructure:"polling"`
	Host     HostConfig     `mapstructure:"host"`
	Player   PlayerConfig   `mapstructure:"player"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Log      LogConfig      `mapstructure:"log"`
	Security SecurityConfig `mapstructure:"security"`
}

// ServerConfig 管理API服务器配置
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 引擎/模组注册表存储配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// PBWConfig PBW服务配置
type PBWConfig struct {
	BaseURL               string        `mapstructure:"base_url"`
	Username              string        `mapstructure:"username"`
	Password              string        `mapstructure:"password"`
	IgnoreBadCertificates bool          `mapstructure:"ignore_bad_certificates"`
	Timeout               time.Duration `mapstructure:"timeout"`
	UploadTimeout         time.Duration `mapstructure:"upload_timeout"`
	UserAgent             string        `mapstructure:"user_agent"`
}

// PollingConfig 轮询配置
type PollingConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// HostConfig 主机端配置
type HostConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// PlayerConfig 玩家端配置
type PlayerConfig struct {
	AutoDownload   bool `mapstructure:"auto_download"`
	AutoUpload     bool `mapstructure:"auto_upload"`
	HidePlayerZero bool `mapstructure:"hide_player_zero"`
}

// PathsConfig 路径配置
type PathsConfig struct {
	TempDir      string `mapstructure:"temp_dir"`
	DefaultsFile string `mapstructure:"defaults_file"`
}

// ArchiveConfig 回合归档配置，PBW收发7z格式
type ArchiveConfig struct {
	Format   string `mapstructure:"format"`
	SevenZip string `mapstructure:"seven_zip"`
}

// NotifyConfig 通知配置
type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig Telegram通知配置
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
	ChatID  int64  `mapstructure:"chat_id"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT JWTConfig `mapstructure:"jwt"`
}

// JWTConfig JWT配置，Secret为空时管理API不做鉴权
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
	APIKey      string `mapstructure:"api_key"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		v = viper.New()

		if configPath != "" {
			v.SetConfigFile(configPath)
		} else {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath("./config")
			v.AddConfigPath(".")
		}

		v.SetEnvPrefix("AUTOPBW")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		setDefaults(v)

		if err = v.ReadInConfig(); err != nil {
			// 配置文件不存在时使用默认配置
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return
			}
			err = nil
		}

		var loaded *Config
		if loaded, err = unmarshal(v); err != nil {
			return
		}
		cfg = loaded
	})

	return err
}

// Load 从指定文件读取一份独立配置（不影响全局实例）
func Load(configPath string) (*Config, error) {
	lv := viper.New()
	lv.SetConfigFile(configPath)
	setDefaults(lv)
	if err := lv.ReadInConfig(); err != nil {
		return nil, err
	}
	return unmarshal(lv)
}

// Default 返回仅包含默认值的配置
func Default() *Config {
	dv := viper.New()
	setDefaults(dv)
	c, _ := unmarshal(dv)
	return c
}

func unmarshal(v *viper.Viper) (*Config, error) {
	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Polling.Interval <= 0 {
		return fmt.Errorf("polling.interval must be positive, got %s", c.Polling.Interval)
	}
	if c.PBW.BaseURL == "" {
		return fmt.Errorf("pbw.base_url is required")
	}
	switch strings.ToLower(c.Archive.Format) {
	case "7z", "zip":
	default:
		return fmt.Errorf("archive.format must be 7z or zip, got %q", c.Archive.Format)
	}
	if c.Notify.Telegram.Enabled && c.Notify.Telegram.Token == "" {
		return fmt.Errorf("notify.telegram.token is required when telegram is enabled")
	}
	return nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 管理API
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// 注册表数据库
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/autopbw.db")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	// PBW
	v.SetDefault("pbw.base_url", "http://pbw.spaceempires.net/")
	v.SetDefault("pbw.ignore_bad_certificates", false)
	v.SetDefault("pbw.timeout", "60s")
	v.SetDefault("pbw.upload_timeout", "10m")
	v.SetDefault("pbw.user_agent", "autopbw")

	v.SetDefault("polling.interval", "120s")

	v.SetDefault("host.enabled", false)

	v.SetDefault("player.auto_download", false)
	v.SetDefault("player.auto_upload", false)
	v.SetDefault("player.hide_player_zero", true)

	v.SetDefault("paths.temp_dir", "")
	v.SetDefault("paths.defaults_file", "./config/defaults.yaml")

	v.SetDefault("archive.format", "7z")
	v.SetDefault("archive.seven_zip", "")

	v.SetDefault("notify.telegram.enabled", false)

	v.SetDefault("security.jwt.expire_hours", 24)

	// 日志
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "both")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "autopbw.log")
	v.SetDefault("log.file.max_size", 50)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		newCfg, err := unmarshal(v)
		if err != nil {
			mu.Unlock()
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}
		cfg = newCfg
		mu.Unlock()

		if callback != nil {
			callback(newCfg)
		}

		fmt.Println("配置已重新加载:", e.Name)
	})
}

// GetString 获取字符串配置
func GetString(key string) string {
	return v.GetString(key)
}

// GetDuration 获取时间间隔配置
func GetDuration(key string) time.Duration {
	return v.GetDuration(key)
}
