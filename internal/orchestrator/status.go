package orchestrator

import (
	"time"

	"github.com/wfunc/autopbw/internal/models"
)

// Phase 主机回合处理阶段
type Phase string

const (
	PhaseIdle        Phase = "idle"        // 空闲
	PhaseDownloading Phase = "downloading" // 下载玩家回合
	PhaseLaunching   Phase = "launching"   // 启动引擎
	PhaseProcessing  Phase = "processing"  // 引擎处理中
	PhaseUploading   Phase = "uploading"   // 上传新回合
	PhaseUploaded    Phase = "uploaded"    // 已上传
	PhaseOnHold      Phase = "on_hold"     // 已设置暂停
	PhaseFailed      Phase = "failed"      // 上传失败
	PhaseCancelled   Phase = "cancelled"   // 操作员取消
)

// 连接状态文本
const (
	connectivityUp      = "Connected to PBW"
	connectivityDown    = "Unable to connect to PBW"
	connectivityUnknown = "Not connected yet"
)

// Status 对外发布的状态快照，与内部状态不共享指针
type Status struct {
	Connected    bool             `json:"connected"`
	Connectivity string           `json:"connectivity"`
	Summary      string           `json:"summary"`
	Busy         bool             `json:"busy"`
	Processing   *ProcessingInfo  `json:"processing,omitempty"`
	LastOutcome  *Outcome         `json:"last_outcome,omitempty"`
	HostGames    []HostGameView   `json:"host_games"`
	PlayerGames  []PlayerGameView `json:"player_games"`
	WatchedDirs  []string         `json:"watched_dirs"`
	LastRefresh  *time.Time       `json:"last_refresh,omitempty"`
}

// ProcessingInfo 正在处理的主机游戏
type ProcessingInfo struct {
	Game       string    `json:"game"`
	Turn       int       `json:"turn"`
	Phase      Phase     `json:"phase"`
	Executable string    `json:"executable,omitempty"`
	Pid        int       `json:"pid,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// Outcome 最近一次处理的结果
type Outcome struct {
	Game     string    `json:"game"`
	Turn     int       `json:"turn"`
	Phase    Phase     `json:"phase"`
	Message  string    `json:"message,omitempty"`
	Finished time.Time `json:"finished"`
}

// HostGameView 主机游戏展示信息
type HostGameView struct {
	Code        string            `json:"code"`
	Mod         string            `json:"mod"`
	Engine      string            `json:"engine"`
	Status      models.HostStatus `json:"status"`
	TurnMode    string            `json:"turn_mode"`
	TurnNumber  int               `json:"turn_number"`
	TurnDueDate *time.Time        `json:"turn_due_date,omitempty"`
	TimeLeft    string            `json:"time_left"`
	Playable    bool              `json:"playable"`
}

// PlayerGameView 玩家游戏展示信息
type PlayerGameView struct {
	Code          string              `json:"code"`
	Mod           string              `json:"mod"`
	Engine        string              `json:"engine"`
	Status        models.PlayerStatus `json:"status"`
	DisplayStatus string              `json:"display_status"`
	PlayerNumber  int                 `json:"player_number"`
	ShipsetCode   string              `json:"shipset_code"`
	TurnMode      string              `json:"turn_mode"`
	TurnNumber    int                 `json:"turn_number"`
	TurnStartDate *time.Time          `json:"turn_start_date,omitempty"`
	TurnDueDate   *time.Time          `json:"turn_due_date,omitempty"`
	TimeLeft      string              `json:"time_left"`
	HasDownloaded bool                `json:"has_downloaded"`
	Playable      bool                `json:"playable"`
}

func newHostGameView(g *models.HostGame, now time.Time) HostGameView {
	return HostGameView{
		Code:        g.Code,
		Mod:         g.Mod.String(),
		Engine:      g.Engine().String(),
		Status:      g.Status,
		TurnMode:    g.TurnMode.String(),
		TurnNumber:  g.TurnNumber,
		TurnDueDate: copyTime(g.TurnDueDate),
		TimeLeft:    formatTimeLeft(&g.Game, now),
		Playable:    models.CheckPlayable(&g.Game) == nil,
	}
}

func newPlayerGameView(g *models.PlayerGame, now time.Time) PlayerGameView {
	return PlayerGameView{
		Code:          g.Code,
		Mod:           g.Mod.String(),
		Engine:        g.Engine().String(),
		Status:        g.Status,
		DisplayStatus: g.DisplayStatus(),
		PlayerNumber:  g.PlayerNumber,
		ShipsetCode:   g.ShipsetCode,
		TurnMode:      g.TurnMode.String(),
		TurnNumber:    g.TurnNumber,
		TurnStartDate: copyTime(g.TurnStartDate),
		TurnDueDate:   copyTime(g.TurnDueDate),
		TimeLeft:      formatTimeLeft(&g.Game, now),
		HasDownloaded: g.HasDownloaded,
		Playable:      models.CheckPlayable(&g.Game) == nil,
	}
}

// formatTimeLeft 剩余时间，无截止时间为空串，已过期为"overdue"
func formatTimeLeft(g *models.Game, now time.Time) string {
	left, ok := g.TimeLeft(now)
	if !ok {
		return ""
	}
	if left <= 0 {
		return "overdue"
	}
	return left.Truncate(time.Minute).String()
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
