package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/autopbw/internal/errors"
	"github.com/wfunc/autopbw/internal/models"
)

// 注册表的读写都经过编排器队列，与回合处理互不干扰

func (r *Router) listEngines(c *gin.Context) {
	var list []models.Engine
	err := r.orch.Do(c.Request.Context(), func(ctx context.Context) error {
		for _, e := range r.registry.Engines() {
			list = append(list, *e)
		}
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"engines": list})
}

func (r *Router) getEngine(c *gin.Context) {
	code := c.Param("code")
	var engine models.Engine
	err := r.orch.Do(c.Request.Context(), func(ctx context.Context) error {
		e, ok := r.registry.Engine(code)
		if !ok {
			return errors.Newf(errors.ErrNotFound, "engine %s", code)
		}
		engine = *e
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, engine)
}

// registerEngine 登记引擎，已知代码直接返回，未知代码按默认配置或占位登记
func (r *Router) registerEngine(c *gin.Context) {
	code := c.Param("code")
	var (
		engine  models.Engine
		created bool
	)
	err := r.orch.Do(c.Request.Context(), func(ctx context.Context) error {
		e, isNew := r.registry.FindOrRegisterEngine(code)
		engine, created = *e, isNew
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(createdStatus(created), engine)
}

// updateEngine 保存引擎配置
func (r *Router) updateEngine(c *gin.Context) {
	var req models.Engine
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	req.Code = c.Param("code")

	var engine models.Engine
	err := r.orch.Do(c.Request.Context(), func(ctx context.Context) error {
		e, err := r.registry.UpdateEngine(ctx, &req)
		if err != nil {
			return err
		}
		engine = *e
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, engine)
}

func (r *Router) deleteEngine(c *gin.Context) {
	code := c.Param("code")
	r.act(c, "删除引擎", func(ctx context.Context) error {
		return r.orch.Do(ctx, func(ctx context.Context) error {
			return r.registry.DeleteEngine(ctx, code)
		})
	})
}

func (r *Router) listMods(c *gin.Context) {
	var list []models.Mod
	err := r.orch.Do(c.Request.Context(), func(ctx context.Context) error {
		for _, m := range r.registry.Mods() {
			list = append(list, *m)
		}
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mods": list})
}

func (r *Router) getMod(c *gin.Context) {
	code := c.Param("code")
	var mod models.Mod
	err := r.orch.Do(c.Request.Context(), func(ctx context.Context) error {
		m, ok := r.registry.Mod(code)
		if !ok {
			return errors.Newf(errors.ErrNotFound, "mod %s", code)
		}
		mod = *m
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mod)
}

// registerMod 登记模组，query参数engine指定占位模组使用的引擎
func (r *Router) registerMod(c *gin.Context) {
	code := c.Param("code")
	engineCode := c.Query("engine")
	var (
		mod     models.Mod
		created bool
	)
	err := r.orch.Do(c.Request.Context(), func(ctx context.Context) error {
		m, isNew := r.registry.FindOrRegisterMod(code, engineCode)
		mod, created = *m, isNew
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(createdStatus(created), mod)
}

func (r *Router) updateMod(c *gin.Context) {
	var req models.Mod
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	req.Code = c.Param("code")

	var mod models.Mod
	err := r.orch.Do(c.Request.Context(), func(ctx context.Context) error {
		m, err := r.registry.UpdateMod(ctx, &req)
		if err != nil {
			return err
		}
		mod = *m
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mod)
}

func (r *Router) deleteMod(c *gin.Context) {
	code := c.Param("code")
	r.act(c, "删除模组", func(ctx context.Context) error {
		return r.orch.Do(ctx, func(ctx context.Context) error {
			return r.registry.DeleteMod(ctx, code)
		})
	})
}

func createdStatus(created bool) int {
	if created {
		return http.StatusCreated
	}
	return http.StatusOK
}
