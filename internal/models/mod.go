package models

import "time"

// Mod 游戏模组配置表
type Mod struct {
	Code       string    `gorm:"primaryKey;size:64" json:"code" yaml:"code"`
	EngineCode string    `gorm:"size:64;index" json:"engine_code" yaml:"engine"`
	Path       string    `gorm:"size:500" json:"path" yaml:"path"`
	SavePath   string    `gorm:"size:500" json:"save_path" yaml:"save_path"`
	EmpirePath string    `gorm:"size:500" json:"empire_path" yaml:"empire_path"`
	IsUnknown  bool      `gorm:"not null" json:"is_unknown" yaml:"-"`
	CreatedAt  time.Time `json:"created_at" yaml:"-"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"-"`

	// Engine 由注册表解析，多个模组共享同一实例
	Engine *Engine `gorm:"-" json:"-" yaml:"-"`
}

// TableName 指定表名
func (Mod) TableName() string {
	return "mods"
}

// NewPlaceholderMod 为未知代码创建占位模组
func NewPlaceholderMod(code string, engine *Engine) *Mod {
	m := &Mod{Code: code, IsUnknown: true, Engine: engine}
	if engine != nil {
		m.EngineCode = engine.Code
	}
	return m
}

func (m *Mod) String() string {
	if m == nil {
		return "<none>"
	}
	return m.Code
}

// CopyFrom 用另一份配置覆盖可编辑字段（不含引擎引用）
func (m *Mod) CopyFrom(src *Mod) {
	m.EngineCode = src.EngineCode
	m.Path = src.Path
	m.SavePath = src.SavePath
	m.EmpirePath = src.EmpirePath
	m.IsUnknown = src.IsUnknown
}
