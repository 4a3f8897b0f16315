package models

import (
	"github.com/wfunc/autopbw/internal/errors"
)

// CheckPlayable 检查游戏的模组与引擎是否已配置
func CheckPlayable(g *Game) error {
	if g == nil {
		return errors.New(errors.ErrNoGameSelected, "No game is selected.")
	}
	if g.Mod == nil {
		return errors.Newf(errors.ErrUnknownMod, "Game %s has no mod.", g.Code)
	}
	engine := g.Engine()
	if engine == nil {
		return errors.Newf(errors.ErrEngineUnconfigured, "Mod %s does not have an engine assigned to it.", g.Mod.Code)
	}
	if engine.IsUnknown {
		return errors.Newf(errors.ErrUnknownEngine, "Unknown game engine %s.", engine.Code)
	}
	if g.Mod.IsUnknown {
		return errors.Newf(errors.ErrUnknownMod, "Unknown mod %s for %s.", g.Mod.Code, engine.Code)
	}
	return nil
}
