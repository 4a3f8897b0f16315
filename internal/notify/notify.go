package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/wfunc/autopbw/internal/logger"
	"go.uber.org/zap"
)

// Severity 通知级别
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// SubjectKind 通知关联对象的类型
type SubjectKind string

const (
	SubjectHostGame   SubjectKind = "host_game"
	SubjectPlayerGame SubjectKind = "player_game"
	SubjectGames      SubjectKind = "games"
	SubjectEngine     SubjectKind = "engine"
	SubjectMod        SubjectKind = "mod"
)

// Subject 通知关联的游戏、引擎或模组
type Subject struct {
	Kind  SubjectKind `json:"kind"`
	Codes []string    `json:"codes"`
}

func (s *Subject) String() string {
	if s == nil {
		return ""
	}
	return fmt.Sprintf("%s%v", s.Kind, s.Codes)
}

// HostGame 主机游戏
func HostGame(code string) *Subject {
	return &Subject{Kind: SubjectHostGame, Codes: []string{code}}
}

// PlayerGame 玩家游戏
func PlayerGame(code string) *Subject {
	return &Subject{Kind: SubjectPlayerGame, Codes: []string{code}}
}

// Games 一组游戏
func Games(codes ...string) *Subject {
	return &Subject{Kind: SubjectGames, Codes: codes}
}

// Engine 引擎
func Engine(code string) *Subject {
	return &Subject{Kind: SubjectEngine, Codes: []string{code}}
}

// Mod 模组
func Mod(code string) *Subject {
	return &Subject{Kind: SubjectMod, Codes: []string{code}}
}

// Notification 面向用户的通知
type Notification struct {
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Subject  *Subject  `json:"subject,omitempty"`
	Severity Severity  `json:"severity"`
	Time     time.Time `json:"time"`
}

// New 创建通知
func New(severity Severity, title, body string, subject *Subject) Notification {
	return Notification{
		Title:    title,
		Body:     body,
		Subject:  subject,
		Severity: severity,
		Time:     time.Now(),
	}
}

// Sink 通知接收方，Notify不得阻塞调用者
type Sink interface {
	Notify(n Notification)
}

// LogSink 把通知写入日志
type LogSink struct {
	log *zap.Logger
}

// NewLogSink 创建日志通知
func NewLogSink() *LogSink {
	return &LogSink{log: logger.WithModule("notify")}
}

// Notify 按级别记录
func (s *LogSink) Notify(n Notification) {
	fields := []zap.Field{
		zap.String("title", n.Title),
		zap.String("body", n.Body),
		zap.String("subject", n.Subject.String()),
	}
	switch n.Severity {
	case SeverityError:
		s.log.Error("通知", fields...)
	case SeverityWarning:
		s.log.Warn("通知", fields...)
	default:
		s.log.Info("通知", fields...)
	}
}

// Multi 同时分发给多个接收方
type Multi []Sink

// Notify 依次分发
func (m Multi) Notify(n Notification) {
	for _, s := range m {
		if s != nil {
			s.Notify(n)
		}
	}
}

// Recorder 在内存中保留最近的通知，供状态查询使用
type Recorder struct {
	mu    sync.RWMutex
	limit int
	items []Notification
}

// NewRecorder 创建记录器，limit<=0时不限制数量
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

// Notify 追加通知
func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
	if r.limit > 0 && len(r.items) > r.limit {
		r.items = append([]Notification(nil), r.items[len(r.items)-r.limit:]...)
	}
}

// All 返回通知副本，按时间先后
func (r *Recorder) All() []Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Notification(nil), r.items...)
}

// Titles 所有通知标题
func (r *Recorder) Titles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	titles := make([]string, len(r.items))
	for i, n := range r.items {
		titles[i] = n.Title
	}
	return titles
}

// Len 通知数量
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Reset 清空
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
}
