package repository

import (
	"context"
	"errors"

	"github.com/wfunc/autopbw/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EngineRepository 引擎配置仓储接口
type EngineRepository interface {
	BaseRepository
	List(ctx context.Context) ([]*models.Engine, error)
	Get(ctx context.Context, code string) (*models.Engine, error)
	Save(ctx context.Context, engine *models.Engine) error
	Delete(ctx context.Context, code string) error
}

type engineRepo struct {
	*BaseRepo
}

// NewEngineRepository 创建引擎仓储
func NewEngineRepository(db *gorm.DB) EngineRepository {
	return &engineRepo{BaseRepo: NewBaseRepo(db)}
}

// List 按代码排序列出全部引擎
func (r *engineRepo) List(ctx context.Context) ([]*models.Engine, error) {
	var engines []*models.Engine
	err := r.db.WithContext(ctx).Order("code").Find(&engines).Error
	return engines, err
}

// Get 按代码获取引擎，不存在时返回 (nil, nil)
func (r *engineRepo) Get(ctx context.Context, code string) (*models.Engine, error) {
	var engine models.Engine
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&engine).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &engine, nil
}

// Save 插入或整体覆盖
func (r *engineRepo) Save(ctx context.Context, engine *models.Engine) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns(engineColumns),
		}).
		Create(engine).Error
}

// Delete 删除引擎
func (r *engineRepo) Delete(ctx context.Context, code string) error {
	return r.db.WithContext(ctx).Where("code = ?", code).Delete(&models.Engine{}).Error
}

var engineColumns = []string{
	"host_executable", "host_arguments",
	"player_executable", "player_arguments",
	"host_turn_upload_filter", "player_turn_upload_filter",
	"is_unknown", "updated_at",
}
