package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/wfunc/autopbw/internal/archive"
	"github.com/wfunc/autopbw/internal/config"
	"github.com/wfunc/autopbw/internal/errors"
	"github.com/wfunc/autopbw/internal/launcher"
	"github.com/wfunc/autopbw/internal/logger"
	"github.com/wfunc/autopbw/internal/models"
	"github.com/wfunc/autopbw/internal/notify"
	"go.uber.org/zap"
)

// DefaultPollInterval 默认轮询间隔
const DefaultPollInterval = 2 * time.Minute

// StatusMessageType 推送状态快照的消息类型
const StatusMessageType = "status"

// Service PBW服务端操作
type Service interface {
	EnsureLoggedIn(ctx context.Context) error
	FetchHostGames(ctx context.Context) ([]*models.HostGame, error)
	FetchPlayerGames(ctx context.Context) ([]*models.PlayerGame, error)
	Download(ctx context.Context, url, dest string) error
	Upload(ctx context.Context, file, url, field string, expectedStatus int) error
	PlaceHold(ctx context.Context, game *models.HostGame, reason string) error
	ClearHold(ctx context.Context, game *models.HostGame) error
	GameURL(code, action string) string
}

// Options 运行参数，可在运行中替换
type Options struct {
	PollInterval   time.Duration
	EnableHosting  bool
	AutoDownload   bool
	AutoUpload     bool
	HidePlayerZero bool
	TempDir        string
}

// OptionsFromConfig 从全局配置提取运行参数
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PollInterval:   cfg.Polling.Interval,
		EnableHosting:  cfg.Host.Enabled,
		AutoDownload:   cfg.Player.AutoDownload,
		AutoUpload:     cfg.Player.AutoUpload,
		HidePlayerZero: cfg.Player.HidePlayerZero,
		TempDir:        cfg.Paths.TempDir,
	}
}

// Deps 编排器依赖
type Deps struct {
	Service  Service
	Codec    archive.Codec
	Launcher launcher.Launcher
	Sink     notify.Sink
	// Broadcaster 可选，每次状态变化推送快照
	Broadcaster notify.Broadcaster
	Logger      *zap.Logger
}

type connState int

const (
	connUnknown connState = iota
	connUp
	connDown
)

// 队列消息
type (
	refreshEvent struct{}

	exitEvent struct {
		run       *processingRun
		code      int
		cancelled bool
		err       error
	}

	commandEvent struct {
		fn   func(ctx context.Context) error
		done chan error
	}
)

// Orchestrator 回合处理编排器
//
// 定时器、进程退出、目录事件和API命令都投递到同一个队列，
// 由Run所在的协程串行处理。上一次快照、处理中的游戏和目录监听
// 只在该协程中读写。
type Orchestrator struct {
	svc         Service
	codec       archive.Codec
	launcher    launcher.Launcher
	sink        notify.Sink
	broadcaster notify.Broadcaster
	log         *zap.Logger
	now         func() time.Time

	events        chan interface{}
	stopped       chan struct{}
	refreshQueued atomic.Bool
	busy          atomic.Bool
	processing    atomic.Pointer[models.HostGame]

	// 以下字段只在消费协程中访问
	opts         Options
	ticker       *time.Ticker
	hostGames    []*models.HostGame
	playerGames  []*models.PlayerGame
	run          *processingRun
	lastOutcome  *Outcome
	watches      *WatchSet
	conn         connState
	summary      string
	lastRefresh  time.Time
	configWarned map[string]string

	statusMu sync.RWMutex
	status   Status
}

// New 创建编排器
func New(deps Deps, opts Options) (*Orchestrator, error) {
	if deps.Service == nil || deps.Codec == nil || deps.Launcher == nil {
		return nil, errors.New(errors.ErrInvalidParam, "service, codec and launcher are required")
	}
	if deps.Sink == nil {
		deps.Sink = notify.NewLogSink()
	}
	log := deps.Logger
	if log == nil {
		log = logger.WithModule("orchestrator")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	watches, err := NewWatchSet(log)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrUnknown, "create file watcher")
	}

	o := &Orchestrator{
		svc:          deps.Service,
		codec:        deps.Codec,
		launcher:     deps.Launcher,
		sink:         deps.Sink,
		broadcaster:  deps.Broadcaster,
		log:          log,
		now:          time.Now,
		events:       make(chan interface{}, 64),
		stopped:      make(chan struct{}),
		opts:         opts,
		watches:      watches,
		summary:      StatusAllCaughtUp,
		configWarned: make(map[string]string),
	}
	o.publish()
	return o, nil
}

// Run 运行消费循环，启动后立即刷新一次，ctx取消时返回
func (o *Orchestrator) Run(ctx context.Context) error {
	o.ticker = time.NewTicker(o.opts.PollInterval)
	defer func() {
		o.ticker.Stop()
		if err := o.watches.Close(); err != nil {
			o.log.Warn("关闭目录监听失败", zap.Error(err))
		}
		close(o.stopped)
	}()

	o.log.Info("编排器启动",
		zap.Duration("interval", o.opts.PollInterval),
		zap.Bool("hosting", o.opts.EnableHosting),
		zap.Bool("auto_download", o.opts.AutoDownload),
		zap.Bool("auto_upload", o.opts.AutoUpload))

	o.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return nil
		case <-o.ticker.C:
			o.refresh(ctx)
		case ev := <-o.events:
			o.handle(ctx, ev)
		case ev, ok := <-o.watches.Events():
			if ok {
				o.handleFileEvent(ctx, ev)
			}
		case err, ok := <-o.watches.Errors():
			if ok {
				o.log.Warn("目录监听错误", zap.Error(err))
			}
		}
	}
}

func (o *Orchestrator) handle(ctx context.Context, ev interface{}) {
	switch e := ev.(type) {
	case refreshEvent:
		o.refreshQueued.Store(false)
		o.refresh(ctx)
	case exitEvent:
		o.handleExit(ctx, e)
	case fsnotify.Event:
		o.handleFileEvent(ctx, e)
	case commandEvent:
		e.done <- e.fn(ctx)
	default:
		o.log.Warn("未知的队列消息", zap.Any("event", ev))
	}
}

// drain 处理队列中已有的消息，不阻塞
func (o *Orchestrator) drain(ctx context.Context) {
	for {
		select {
		case ev := <-o.events:
			o.handle(ctx, ev)
		default:
			return
		}
	}
}

func (o *Orchestrator) shutdown() {
	if o.run != nil {
		// 引擎进程继续运行，退出结果不再处理
		o.log.Warn("退出时仍有回合在处理",
			zap.String("game", o.run.game.Code),
			zap.String("phase", string(o.run.phase)))
	}
	o.log.Info("编排器已停止")
}

// Do 在消费协程中执行fn并等待结果
func (o *Orchestrator) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	cmd := commandEvent{fn: fn, done: make(chan error, 1)}
	select {
	case o.events <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-o.stopped:
		return errors.New(errors.ErrCanceled, "orchestrator stopped")
	}
	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-o.stopped:
		return errors.New(errors.ErrCanceled, "orchestrator stopped")
	}
}

// RequestRefresh 请求尽快刷新，已有排队的请求时合并
func (o *Orchestrator) RequestRefresh() {
	if !o.refreshQueued.CompareAndSwap(false, true) {
		return
	}
	select {
	case o.events <- refreshEvent{}:
	default:
		o.refreshQueued.Store(false)
		o.log.Warn("队列已满，丢弃刷新请求")
	}
}

// post 从其他协程投递消息，编排器停止后丢弃
func (o *Orchestrator) post(ev interface{}) {
	select {
	case o.events <- ev:
	case <-o.stopped:
	}
}

// refresh 完整的一次轮询，不可重入
func (o *Orchestrator) refresh(ctx context.Context) {
	if !o.busy.CompareAndSwap(false, true) {
		o.log.Debug("刷新进行中，忽略本次请求")
		return
	}
	defer func() {
		o.busy.Store(false)
		o.publish()
	}()
	o.publish()
	o.refreshGames(ctx)
}

// ProcessingGame 正在处理的主机游戏，没有时返回nil
func (o *Orchestrator) ProcessingGame() *models.HostGame {
	return o.processing.Load()
}

// Busy 是否正在刷新
func (o *Orchestrator) Busy() bool {
	return o.busy.Load()
}

// Status 最近发布的状态快照
func (o *Orchestrator) Status() Status {
	o.statusMu.RLock()
	defer o.statusMu.RUnlock()
	return o.status
}

// StatusSnapshot 供WebSocket连接建立时使用
func (o *Orchestrator) StatusSnapshot() interface{} {
	return o.Status()
}

// UpdateOptions 替换运行参数（配置热更新）
func (o *Orchestrator) UpdateOptions(ctx context.Context, opts Options) error {
	return o.Do(ctx, func(ctx context.Context) error {
		o.applyOptions(opts)
		return nil
	})
}

func (o *Orchestrator) applyOptions(opts Options) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if o.ticker != nil && opts.PollInterval != o.opts.PollInterval {
		o.ticker.Reset(opts.PollInterval)
	}
	o.opts = opts
	o.syncWatches()
	o.log.Info("运行参数已更新",
		zap.Duration("interval", opts.PollInterval),
		zap.Bool("hosting", opts.EnableHosting),
		zap.Bool("auto_download", opts.AutoDownload),
		zap.Bool("auto_upload", opts.AutoUpload))
	o.publish()
}

// setRun 设置或释放处理中的游戏
func (o *Orchestrator) setRun(run *processingRun) {
	o.run = run
	if run == nil {
		o.processing.Store(nil)
	} else {
		o.processing.Store(run.game)
	}
	o.publish()
}

func (o *Orchestrator) notify(severity notify.Severity, title, body string, subject *notify.Subject) {
	o.sink.Notify(notify.New(severity, title, body, subject))
}

// publish 生成状态快照并推送
func (o *Orchestrator) publish() {
	now := o.now()
	st := Status{
		Busy:        o.busy.Load(),
		Summary:     o.summary,
		HostGames:   make([]HostGameView, 0, len(o.hostGames)),
		PlayerGames: make([]PlayerGameView, 0, len(o.playerGames)),
		WatchedDirs: o.watches.Dirs(),
	}
	switch o.conn {
	case connUp:
		st.Connected = true
		st.Connectivity = connectivityUp
	case connDown:
		st.Connectivity = connectivityDown
		st.Summary = connectivityDown
	default:
		st.Connectivity = connectivityUnknown
	}
	if !o.lastRefresh.IsZero() {
		t := o.lastRefresh
		st.LastRefresh = &t
	}
	if run := o.run; run != nil {
		st.Processing = &ProcessingInfo{
			Game:       run.game.Code,
			Turn:       run.game.TurnNumber,
			Phase:      run.phase,
			Executable: run.executable,
			StartedAt:  run.started,
		}
		if run.proc != nil {
			st.Processing.Pid = run.proc.Pid()
		}
	}
	if o.lastOutcome != nil {
		outcome := *o.lastOutcome
		st.LastOutcome = &outcome
	}
	for _, g := range o.hostGames {
		st.HostGames = append(st.HostGames, newHostGameView(g, now))
	}
	for _, g := range o.playerGames {
		st.PlayerGames = append(st.PlayerGames, newPlayerGameView(g, now))
	}

	o.statusMu.Lock()
	o.status = st
	o.statusMu.Unlock()

	if o.broadcaster != nil {
		_ = o.broadcaster.BroadcastJSON(StatusMessageType, st)
	}
}
