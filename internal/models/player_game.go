package models

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// PlayerStatus 玩家端游戏状态
type PlayerStatus int

const (
	PlayerStatusNone PlayerStatus = iota
	PlayerStatusWaiting
	PlayerStatusUploaded
)

// ParsePlayerStatus 解析服务端返回的玩家状态
func ParsePlayerStatus(s string) (PlayerStatus, error) {
	switch strings.TrimSpace(s) {
	case "waiting":
		return PlayerStatusWaiting, nil
	case "uploaded":
		return PlayerStatusUploaded, nil
	default:
		return PlayerStatusNone, fmt.Errorf("invalid player status: %q", s)
	}
}

func (s PlayerStatus) String() string {
	switch s {
	case PlayerStatusWaiting:
		return "Waiting"
	case PlayerStatusUploaded:
		return "Uploaded"
	default:
		return "None"
	}
}

// MarshalText 以名称输出到JSON
func (s PlayerStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// PlayerKey 玩家游戏的身份键
type PlayerKey struct {
	Code         string
	PlayerNumber int
}

// PlayerGame 本机参与的游戏席位
type PlayerGame struct {
	Game
	Status        PlayerStatus `json:"status"`
	PlayerNumber  int          `json:"player_number"`
	ShipsetCode   string       `json:"shipset_code"`
	HasDownloaded bool         `json:"has_downloaded"`
}

// Key 返回(代码, 席位)身份键
func (g *PlayerGame) Key() PlayerKey {
	return PlayerKey{Code: g.Code, PlayerNumber: g.PlayerNumber}
}

// IsRealSeat 是否为真实席位（0号为主机/观察者）
func (g *PlayerGame) IsRealSeat() bool {
	return g.PlayerNumber > 0
}

// AwaitingTurn 等待提交真实回合文件
func (g *PlayerGame) AwaitingTurn() bool {
	return g.Status == PlayerStatusWaiting && g.IsRealSeat() && g.TurnNumber > 0
}

// AwaitingEmpire 等待提交帝国设置文件
func (g *PlayerGame) AwaitingEmpire() bool {
	return g.Status == PlayerStatusWaiting && g.IsRealSeat() && g.TurnNumber == 0
}

// DisplayStatus 界面显示用状态，已下载的等待回合带[D]
func (g *PlayerGame) DisplayStatus() string {
	if g.Status == PlayerStatusWaiting && g.HasDownloaded {
		return g.Status.String() + " [D]"
	}
	return g.Status.String()
}

// SaveDir 玩家存档目录
func (g *PlayerGame) SaveDir() string {
	return filepath.Join(g.Engine().PlayerDir(), g.Mod.SavePath)
}

// EmpireDir 玩家帝国文件目录
func (g *PlayerGame) EmpireDir() string {
	return filepath.Join(g.Engine().PlayerDir(), g.Mod.EmpirePath)
}

// Expand 替换玩家端模板中的占位符
func (g *PlayerGame) Expand(template string) string {
	engine := g.Engine()
	return expand(template,
		"{Executable}", engine.PlayerExecutable,
		"{EnginePath}", engine.PlayerDir(),
		"{ModPath}", g.Mod.Path,
		"{SavePath}", g.Mod.SavePath,
		"{Password}", g.Password,
		"{GameCode}", g.Code,
		"{TurnNumber}", strconv.Itoa(g.TurnNumber),
		"{PlayerNumber}", strconv.Itoa(g.PlayerNumber),
		"{PlayerNumber2}", fmt.Sprintf("%02d", g.PlayerNumber),
		"{PlayerNumber3}", fmt.Sprintf("%03d", g.PlayerNumber),
		"{PlayerNumber4}", fmt.Sprintf("%04d", g.PlayerNumber),
	)
}

// Executable 展开后的玩家端可执行文件路径
func (g *PlayerGame) Executable() string {
	return TrimQuotes(g.Expand(g.Engine().PlayerExecutable))
}

// Arguments 展开后的玩家端参数
func (g *PlayerGame) Arguments() string {
	return g.Expand(g.Engine().PlayerArguments)
}

// UploadFilter 本回合PLR文件过滤器
func (g *PlayerGame) UploadFilter() string {
	return g.Expand(g.Engine().PlayerTurnUploadFilter)
}
