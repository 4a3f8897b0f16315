package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TurnMode 回合处理模式（位集合）
type TurnMode int

const (
	TurnModeManual                TurnMode = 0
	TurnModeAfterLastPlayerUpload TurnMode = 1
	TurnModeTimed                 TurnMode = 2
	TurnModeFullyAutomatic                 = TurnModeAfterLastPlayerUpload | TurnModeTimed
)

// ParseTurnMode 解析服务端返回的回合模式
func ParseTurnMode(s string) (TurnMode, error) {
	switch strings.TrimSpace(s) {
	case "manual":
		return TurnModeManual, nil
	case "alpu":
		return TurnModeAfterLastPlayerUpload, nil
	case "timed":
		return TurnModeTimed, nil
	case "auto":
		return TurnModeFullyAutomatic, nil
	default:
		return TurnModeManual, fmt.Errorf("invalid turn mode: %q", s)
	}
}

func (m TurnMode) String() string {
	switch m {
	case TurnModeManual:
		return "Manual"
	case TurnModeAfterLastPlayerUpload:
		return "AfterLastPlayerUpload"
	case TurnModeTimed:
		return "Timed"
	case TurnModeFullyAutomatic:
		return "FullyAutomatic"
	default:
		return fmt.Sprintf("TurnMode(%d)", int(m))
	}
}

// Game PBW上的一局游戏，每次轮询重新构建
type Game struct {
	Code          string     `json:"code"`
	Password      string     `json:"-"`
	Mod           *Mod       `json:"-"`
	TurnMode      TurnMode   `json:"turn_mode"`
	TurnNumber    int        `json:"turn_number"`
	TurnStartDate *time.Time `json:"turn_start_date,omitempty"`
	TurnDueDate   *time.Time `json:"turn_due_date,omitempty"`
}

func (g *Game) String() string {
	return g.Code
}

// Engine 通过模组推导出的引擎
func (g *Game) Engine() *Engine {
	if g == nil || g.Mod == nil {
		return nil
	}
	return g.Mod.Engine
}

// TimeLeft 距离截止时间的剩余时长，ok为false表示没有截止时间
func (g *Game) TimeLeft(now time.Time) (left time.Duration, ok bool) {
	if g.TurnDueDate == nil {
		return 0, false
	}
	if g.TurnDueDate.Before(now) {
		return 0, true
	}
	return g.TurnDueDate.Sub(now), true
}

// ParseUnixTime 解析Unix秒时间戳，空串或0表示没有时间
func ParseUnixTime(text string) (*time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	seconds, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid unix time %q: %w", text, err)
	}
	if seconds == 0 {
		return nil, nil
	}
	sec := int64(seconds)
	t := time.Unix(sec, int64((seconds-float64(sec))*float64(time.Second)))
	return &t, nil
}

// expand 纯文本占位符替换，不做任何求值
func expand(template string, pairs ...string) string {
	if template == "" {
		return ""
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
