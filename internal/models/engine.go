package models

import (
	"path/filepath"
	"strings"
	"time"
)

// Engine 游戏引擎配置表
type Engine struct {
	Code                   string    `gorm:"primaryKey;size:64" json:"code" yaml:"code"`
	HostExecutable         string    `gorm:"size:500" json:"host_executable" yaml:"host_executable"`
	HostArguments          string    `gorm:"size:1000" json:"host_arguments" yaml:"host_arguments"`
	PlayerExecutable       string    `gorm:"size:500" json:"player_executable" yaml:"player_executable"`
	PlayerArguments        string    `gorm:"size:1000" json:"player_arguments" yaml:"player_arguments"`
	HostTurnUploadFilter   string    `gorm:"size:500" json:"host_turn_upload_filter" yaml:"host_turn_upload_filter"`
	PlayerTurnUploadFilter string    `gorm:"size:500" json:"player_turn_upload_filter" yaml:"player_turn_upload_filter"`
	IsUnknown              bool      `gorm:"not null" json:"is_unknown" yaml:"-"`
	CreatedAt              time.Time `json:"created_at" yaml:"-"`
	UpdatedAt              time.Time `json:"updated_at" yaml:"-"`
}

// TableName 指定表名
func (Engine) TableName() string {
	return "engines"
}

// NewPlaceholderEngine 为未知代码创建占位引擎，等待用户配置
func NewPlaceholderEngine(code string) *Engine {
	return &Engine{Code: code, IsUnknown: true}
}

func (e *Engine) String() string {
	if e == nil {
		return "<none>"
	}
	return e.Code
}

// HostDir 主机端可执行文件所在目录
func (e *Engine) HostDir() string {
	return executableDir(e.HostExecutable)
}

// PlayerDir 玩家端可执行文件所在目录
func (e *Engine) PlayerDir() string {
	return executableDir(e.PlayerExecutable)
}

// CopyFrom 用另一份配置覆盖可编辑字段（保持实例不变）
func (e *Engine) CopyFrom(src *Engine) {
	e.HostExecutable = src.HostExecutable
	e.HostArguments = src.HostArguments
	e.PlayerExecutable = src.PlayerExecutable
	e.PlayerArguments = src.PlayerArguments
	e.HostTurnUploadFilter = src.HostTurnUploadFilter
	e.PlayerTurnUploadFilter = src.PlayerTurnUploadFilter
	e.IsUnknown = src.IsUnknown
}

// executableDir 去掉引号后取目录
func executableDir(exe string) string {
	exe = TrimQuotes(exe)
	if exe == "" {
		return ""
	}
	return filepath.Dir(exe)
}

// TrimQuotes 去掉路径两端的双引号
func TrimQuotes(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}
