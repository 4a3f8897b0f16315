package repository

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// Manager 仓储管理器，统一提供引擎/模组仓储
type Manager struct {
	db *gorm.DB

	// 仓储实例（懒加载）
	enginesOnce sync.Once
	engines     EngineRepository

	modsOnce sync.Once
	mods     ModRepository
}

// NewManager 创建仓储管理器
func NewManager(db *gorm.DB) *Manager {
	return &Manager{db: db}
}

// GetDB 获取数据库实例
func (m *Manager) GetDB() *gorm.DB {
	return m.db
}

// Engines 引擎仓储
func (m *Manager) Engines() EngineRepository {
	m.enginesOnce.Do(func() {
		m.engines = NewEngineRepository(m.db)
	})
	return m.engines
}

// Mods 模组仓储
func (m *Manager) Mods() ModRepository {
	m.modsOnce.Do(func() {
		m.mods = NewModRepository(m.db)
	})
	return m.mods
}

// WithTransaction 在事务中执行，fn收到绑定到事务的管理器
func (m *Manager) WithTransaction(ctx context.Context, fn func(tx *Manager) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewManager(tx))
	})
}
