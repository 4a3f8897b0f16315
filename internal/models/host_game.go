package models

import (
	"path/filepath"
	"strconv"
)

// HostStatus 主机端游戏状态
type HostStatus int

const (
	HostStatusNone HostStatus = iota
	HostStatusEmpiresReady
	HostStatusHostReady
	HostStatusInProgress
	HostStatusPlayersReady
)

func (s HostStatus) String() string {
	switch s {
	case HostStatusEmpiresReady:
		return "EmpiresReady"
	case HostStatusHostReady:
		return "HostReady"
	case HostStatusInProgress:
		return "InProgress"
	case HostStatusPlayersReady:
		return "PlayersReady"
	default:
		return "None"
	}
}

// MarshalText 以名称输出到JSON
func (s HostStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// HostGame 本机负责主持的游戏
type HostGame struct {
	Game
	Status HostStatus `json:"status"`
}

// SaveDir 引擎存档目录：主机可执行文件目录 + 模组存档路径
func (g *HostGame) SaveDir() string {
	return filepath.Join(g.Engine().HostDir(), g.Mod.SavePath)
}

// EmpireDir 帝国文件目录
func (g *HostGame) EmpireDir() string {
	return filepath.Join(g.Engine().HostDir(), g.Mod.EmpirePath)
}

// Expand 替换主机端模板中的占位符，nextTurn时{TurnNumber}取下一回合
func (g *HostGame) Expand(template string, nextTurn bool) string {
	engine := g.Engine()
	turn := g.TurnNumber
	if nextTurn {
		turn++
	}
	return expand(template,
		"{Executable}", engine.HostExecutable,
		"{EnginePath}", engine.HostDir(),
		"{ModPath}", g.Mod.Path,
		"{SavePath}", g.Mod.SavePath,
		"{Password}", g.Password,
		"{GameCode}", g.Code,
		"{TurnNumber}", strconv.Itoa(turn),
	)
}

// Executable 展开后的主机端可执行文件路径
func (g *HostGame) Executable() string {
	return TrimQuotes(g.Expand(g.Engine().HostExecutable, false))
}

// Arguments 展开后的主机端参数
func (g *HostGame) Arguments() string {
	return g.Expand(g.Engine().HostArguments, false)
}

// UploadFilter 下一回合文件的过滤器
func (g *HostGame) UploadFilter() string {
	return g.Expand(g.Engine().HostTurnUploadFilter, true)
}
