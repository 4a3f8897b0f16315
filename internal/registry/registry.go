package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wfunc/autopbw/internal/errors"
	"github.com/wfunc/autopbw/internal/logger"
	"github.com/wfunc/autopbw/internal/models"
	"github.com/wfunc/autopbw/internal/repository"
	"go.uber.org/zap"
)

const persistTimeout = 5 * time.Second

// Registry 引擎与模组注册表，按代码唯一，同一会话内重复查找返回同一实例
//
// 引擎/模组实例的字段只能在编排器的事件循环里修改。
type Registry struct {
	mu       sync.Mutex
	engines  map[string]*models.Engine
	mods     map[string]*models.Mod
	defaults *Defaults

	engineRepo repository.EngineRepository
	modRepo    repository.ModRepository
	log        *zap.Logger
}

// New 创建注册表；仓储为nil时只在内存中维护
func New(defaults *Defaults, engineRepo repository.EngineRepository, modRepo repository.ModRepository) *Registry {
	if defaults == nil {
		defaults = &Defaults{}
	}
	return &Registry{
		engines:    make(map[string]*models.Engine),
		mods:       make(map[string]*models.Mod),
		defaults:   defaults,
		engineRepo: engineRepo,
		modRepo:    modRepo,
		log:        logger.WithModule("registry"),
	}
}

// Load 从仓储加载已持久化的条目
func (r *Registry) Load(ctx context.Context) error {
	if r.engineRepo == nil || r.modRepo == nil {
		return nil
	}

	engines, err := r.engineRepo.List(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrDatabaseQuery, "load engines")
	}
	mods, err := r.modRepo.List(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrDatabaseQuery, "load mods")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range engines {
		r.engines[e.Code] = e
	}
	for _, m := range mods {
		if m.EngineCode != "" {
			m.Engine, _ = r.findOrRegisterEngine(m.EngineCode)
		}
		r.mods[m.Code] = m
	}

	r.log.Info("注册表加载完成",
		zap.Int("engines", len(engines)),
		zap.Int("mods", len(mods)),
	)
	return nil
}

// FindOrRegisterEngine 按代码查找引擎，未知代码自动登记（优先使用默认配置）
func (r *Registry) FindOrRegisterEngine(code string) (*models.Engine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findOrRegisterEngine(code)
}

func (r *Registry) findOrRegisterEngine(code string) (*models.Engine, bool) {
	if code == "" {
		return nil, false
	}

	if e, ok := r.engines[code]; ok {
		if e.IsUnknown {
			if d := r.defaults.engine(code); d != nil {
				e.CopyFrom(d)
				e.IsUnknown = false
				r.persistEngine(e)
				r.log.Info("未知引擎已使用默认配置", zap.String("engine", code))
			}
		}
		return e, false
	}

	var e *models.Engine
	if d := r.defaults.engine(code); d != nil {
		e = &models.Engine{Code: code}
		e.CopyFrom(d)
		e.IsUnknown = false
	} else {
		e = models.NewPlaceholderEngine(code)
		r.log.Warn("发现未知引擎", zap.String("engine", code))
	}
	r.engines[code] = e
	r.persistEngine(e)
	return e, true
}

// FindOrRegisterMod 按代码查找模组，未知代码自动登记；defaultEngineCode用于占位模组
func (r *Registry) FindOrRegisterMod(code, defaultEngineCode string) (*models.Mod, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if code == "" {
		return nil, false
	}

	if m, ok := r.mods[code]; ok {
		if m.IsUnknown {
			if d := r.defaults.mod(code); d != nil {
				m.CopyFrom(d)
				m.IsUnknown = false
				m.Engine, _ = r.findOrRegisterEngine(m.EngineCode)
				r.persistMod(m)
				r.log.Info("未知模组已使用默认配置", zap.String("mod", code))
			} else if m.Engine == nil && defaultEngineCode != "" {
				m.Engine, _ = r.findOrRegisterEngine(defaultEngineCode)
				m.EngineCode = defaultEngineCode
				r.persistMod(m)
			}
		}
		return m, false
	}

	var m *models.Mod
	if d := r.defaults.mod(code); d != nil {
		m = &models.Mod{Code: code}
		m.CopyFrom(d)
		m.IsUnknown = false
		m.Engine, _ = r.findOrRegisterEngine(m.EngineCode)
	} else {
		engine, _ := r.findOrRegisterEngine(defaultEngineCode)
		m = models.NewPlaceholderMod(code, engine)
		r.log.Warn("发现未知模组", zap.String("mod", code), zap.String("engine", defaultEngineCode))
	}
	r.mods[code] = m
	r.persistMod(m)
	return m, true
}

// Engine 按代码获取已登记的引擎
func (r *Registry) Engine(code string) (*models.Engine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.engines[code]
	return e, ok
}

// Mod 按代码获取已登记的模组
func (r *Registry) Mod(code string) (*models.Mod, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.mods[code]
	return m, ok
}

// Engines 按代码排序的引擎列表
func (r *Registry) Engines() []*models.Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := make([]*models.Engine, 0, len(r.engines))
	for _, e := range r.engines {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Code < list[j].Code })
	return list
}

// Mods 按代码排序的模组列表
func (r *Registry) Mods() []*models.Mod {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := make([]*models.Mod, 0, len(r.mods))
	for _, m := range r.mods {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Code < list[j].Code })
	return list
}

// UpdateEngine 保存用户配置的引擎，保持已有实例不变并清除未知标记
func (r *Registry) UpdateEngine(ctx context.Context, src *models.Engine) (*models.Engine, error) {
	if src == nil || src.Code == "" {
		return nil, errors.New(errors.ErrInvalidParam, "engine code is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.engines[src.Code]
	if !ok {
		e = &models.Engine{Code: src.Code}
		r.engines[src.Code] = e
	}
	e.CopyFrom(src)
	e.IsUnknown = false

	if r.engineRepo != nil {
		if err := r.engineRepo.Save(ctx, e); err != nil {
			return nil, errors.Wrap(err, errors.ErrDatabaseUpdate, "save engine "+e.Code)
		}
	}
	r.log.Info("引擎配置已更新", zap.String("engine", e.Code))
	return e, nil
}

// UpdateMod 保存用户配置的模组，引擎按代码解析
func (r *Registry) UpdateMod(ctx context.Context, src *models.Mod) (*models.Mod, error) {
	if src == nil || src.Code == "" {
		return nil, errors.New(errors.ErrInvalidParam, "mod code is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.mods[src.Code]
	if !ok {
		m = &models.Mod{Code: src.Code}
		r.mods[src.Code] = m
	}
	m.CopyFrom(src)
	m.IsUnknown = false
	m.Engine, _ = r.findOrRegisterEngine(m.EngineCode)

	if r.modRepo != nil {
		if err := r.modRepo.Save(ctx, m); err != nil {
			return nil, errors.Wrap(err, errors.ErrDatabaseUpdate, "save mod "+m.Code)
		}
	}
	r.log.Info("模组配置已更新", zap.String("mod", m.Code), zap.String("engine", m.EngineCode))
	return m, nil
}

// DeleteEngine 删除引擎，仍被模组引用时拒绝
func (r *Registry) DeleteEngine(ctx context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.engines[code]; !ok {
		return errors.Newf(errors.ErrNotFound, "engine %s", code)
	}
	var users []string
	for _, m := range r.mods {
		if m.Engine != nil && m.Engine.Code == code {
			users = append(users, m.Code)
		}
	}
	if len(users) > 0 {
		sort.Strings(users)
		return errors.Newf(errors.ErrEngineInUse, "engine %s is used by mods %v", code, users)
	}

	if r.engineRepo != nil {
		if err := r.engineRepo.Delete(ctx, code); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseDelete, "delete engine "+code)
		}
	}
	delete(r.engines, code)
	r.log.Info("引擎已删除", zap.String("engine", code))
	return nil
}

// DeleteMod 删除模组
func (r *Registry) DeleteMod(ctx context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.mods[code]; !ok {
		return errors.Newf(errors.ErrNotFound, "mod %s", code)
	}
	if r.modRepo != nil {
		if err := r.modRepo.Delete(ctx, code); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseDelete, "delete mod "+code)
		}
	}
	delete(r.mods, code)
	r.log.Info("模组已删除", zap.String("mod", code))
	return nil
}

func (r *Registry) persistEngine(e *models.Engine) {
	if r.engineRepo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := r.engineRepo.Save(ctx, e); err != nil {
		r.log.Warn("保存引擎失败", zap.String("engine", e.Code), zap.Error(err))
	}
}

func (r *Registry) persistMod(m *models.Mod) {
	if r.modRepo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := r.modRepo.Save(ctx, m); err != nil {
		r.log.Warn("保存模组失败", zap.String("mod", m.Code), zap.Error(err))
	}
}
