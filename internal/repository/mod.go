package repository

import (
	"context"
	"errors"

	"github.com/wfunc/autopbw/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ModRepository 模组配置仓储接口
type ModRepository interface {
	BaseRepository
	List(ctx context.Context) ([]*models.Mod, error)
	Get(ctx context.Context, code string) (*models.Mod, error)
	Save(ctx context.Context, mod *models.Mod) error
	Delete(ctx context.Context, code string) error
	CountByEngine(ctx context.Context, engineCode string) (int64, error)
}

type modRepo struct {
	*BaseRepo
}

// NewModRepository 创建模组仓储
func NewModRepository(db *gorm.DB) ModRepository {
	return &modRepo{BaseRepo: NewBaseRepo(db)}
}

// List 按代码排序列出全部模组
func (r *modRepo) List(ctx context.Context) ([]*models.Mod, error) {
	var mods []*models.Mod
	err := r.db.WithContext(ctx).Order("code").Find(&mods).Error
	return mods, err
}

// Get 按代码获取模组，不存在时返回 (nil, nil)
func (r *modRepo) Get(ctx context.Context, code string) (*models.Mod, error) {
	var mod models.Mod
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&mod).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mod, nil
}

// Save 插入或整体覆盖
func (r *modRepo) Save(ctx context.Context, mod *models.Mod) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"engine_code", "path", "save_path", "empire_path", "is_unknown", "updated_at"}),
		}).
		Create(mod).Error
}

// Delete 删除模组
func (r *modRepo) Delete(ctx context.Context, code string) error {
	return r.db.WithContext(ctx).Where("code = ?", code).Delete(&models.Mod{}).Error
}

// CountByEngine 统计引用某引擎的模组数量
func (r *modRepo) CountByEngine(ctx context.Context, engineCode string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Mod{}).Where("engine_code = ?", engineCode).Count(&count).Error
	return count, err
}
