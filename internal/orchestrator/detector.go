package orchestrator

import (
	"fmt"

	"github.com/wfunc/autopbw/internal/models"
	"github.com/wfunc/autopbw/internal/notify"
)

// StatusAllCaughtUp 没有等待处理的游戏时的状态行
const StatusAllCaughtUp = "All caught up!"

// Classification 一次轮询的玩家游戏分类结果
type Classification struct {
	// 本次新进入Waiting的真实席位
	NewTurns   []*models.PlayerGame
	NewEmpires []*models.PlayerGame

	// 当前全部等待中的真实席位
	WaitingTurns   []*models.PlayerGame
	WaitingEmpires []*models.PlayerGame
}

// Classify 对比前后两次快照，找出新就绪的游戏并按回合分桶
func Classify(previous, current []*models.PlayerGame) Classification {
	prev := make(map[models.PlayerKey]*models.PlayerGame, len(previous))
	for _, g := range previous {
		prev[g.Key()] = g
	}

	var c Classification
	for _, g := range current {
		if g.Status != models.PlayerStatusWaiting || !g.IsRealSeat() {
			continue
		}
		old, seen := prev[g.Key()]
		isNew := !seen || old.Status != models.PlayerStatusWaiting
		if g.TurnNumber > 0 {
			c.WaitingTurns = append(c.WaitingTurns, g)
			if isNew {
				c.NewTurns = append(c.NewTurns, g)
			}
		} else {
			c.WaitingEmpires = append(c.WaitingEmpires, g)
			if isNew {
				c.NewEmpires = append(c.NewEmpires, g)
			}
		}
	}
	return c
}

// Notification 新就绪游戏的提醒，回合优先于帝国设置
func (c Classification) Notification() (notify.Notification, bool) {
	switch {
	case len(c.NewTurns) > 1:
		return notify.New(notify.SeverityInfo, "New turns ready",
			fmt.Sprintf("%d new games are ready to play.", len(c.NewTurns)),
			notify.Games(codes(c.NewTurns)...)), true
	case len(c.NewTurns) == 1:
		return notify.New(notify.SeverityInfo, "New turn ready",
			fmt.Sprintf("%s is ready to play.", c.NewTurns[0].Code),
			notify.PlayerGame(c.NewTurns[0].Code)), true
	case len(c.NewEmpires) > 1:
		return notify.New(notify.SeverityInfo, "Awaiting empires",
			fmt.Sprintf("%d games are awaiting empire setup files.", len(c.NewEmpires)),
			notify.Games(codes(c.NewEmpires)...)), true
	case len(c.NewEmpires) == 1:
		return notify.New(notify.SeverityInfo, "Awaiting empire",
			fmt.Sprintf("%s is awaiting an empire setup file.", c.NewEmpires[0].Code),
			notify.PlayerGame(c.NewEmpires[0].Code)), true
	}
	return notify.Notification{}, false
}

// StatusLine 按当前等待数量生成状态行
func (c Classification) StatusLine() string {
	switch {
	case len(c.WaitingTurns) > 1:
		return fmt.Sprintf("%d games are ready to play.", len(c.WaitingTurns))
	case len(c.WaitingTurns) == 1:
		return fmt.Sprintf("%s is ready to play.", c.WaitingTurns[0].Code)
	case len(c.WaitingEmpires) > 1:
		return fmt.Sprintf("%d games are awaiting empire setup files.", len(c.WaitingEmpires))
	case len(c.WaitingEmpires) == 1:
		return fmt.Sprintf("%s is awaiting an empire setup file.", c.WaitingEmpires[0].Code)
	}
	return StatusAllCaughtUp
}

// CarryForward 回合未变化时沿用上一快照的已下载标记
func CarryForward(previous, current []*models.PlayerGame) {
	prev := make(map[models.PlayerKey]*models.PlayerGame, len(previous))
	for _, g := range previous {
		prev[g.Key()] = g
	}
	for _, g := range current {
		if old, ok := prev[g.Key()]; ok && old.TurnNumber == g.TurnNumber {
			g.HasDownloaded = old.HasDownloaded
		} else {
			g.HasDownloaded = false
		}
	}
}

// FilterPlayerZero 去掉0号席位
func FilterPlayerZero(games []*models.PlayerGame) []*models.PlayerGame {
	out := games[:0:0]
	for _, g := range games {
		if g.IsRealSeat() {
			out = append(out, g)
		}
	}
	return out
}

func codes(games []*models.PlayerGame) []string {
	out := make([]string, 0, len(games))
	for _, g := range games {
		out = append(out, g.Code)
	}
	return out
}
