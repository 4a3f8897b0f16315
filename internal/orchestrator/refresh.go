package orchestrator

import (
	"context"

	"github.com/wfunc/autopbw/internal/errors"
	"github.com/wfunc/autopbw/internal/models"
	"github.com/wfunc/autopbw/internal/notify"
	"go.uber.org/zap"
)

// refreshGames 登录、拉取两份列表，然后依次处理主机回合和自动下载
func (o *Orchestrator) refreshGames(ctx context.Context) {
	if err := o.svc.EnsureLoggedIn(ctx); err != nil {
		o.markDown(ctx, "Login failed", "Unable to log in to PBW: "+errors.Text(err), err)
		return
	}

	// 两份列表互不影响，一份失败另一份照常处理
	hostGames, hostErr := o.svc.FetchHostGames(ctx)
	if hostErr != nil {
		o.log.Warn("获取主机游戏列表失败", zap.Error(hostErr))
	} else {
		o.hostGames = hostGames
	}

	playerGames, playerErr := o.svc.FetchPlayerGames(ctx)
	if playerErr != nil {
		o.log.Warn("获取玩家游戏列表失败", zap.Error(playerErr))
	} else {
		o.updatePlayerGames(playerGames)
	}

	if err := firstError(hostErr, playerErr); err != nil {
		o.markDown(ctx, "Unable to refresh", "Unable to refresh games lists: "+errors.Text(err), err)
	} else {
		o.markUp()
	}
	o.lastRefresh = o.now()

	if playerErr == nil {
		o.syncWatches()
	}
	if hostErr == nil && o.opts.EnableHosting {
		o.processHostGames(ctx)
	}
	if playerErr == nil && o.opts.AutoDownload {
		o.autoDownload(ctx)
	}
}

// updatePlayerGames 替换玩家快照：沿用下载标记、分类并发送新回合提醒
func (o *Orchestrator) updatePlayerGames(games []*models.PlayerGame) {
	if o.opts.HidePlayerZero {
		games = FilterPlayerZero(games)
	}
	CarryForward(o.playerGames, games)
	c := Classify(o.playerGames, games)
	o.playerGames = games
	o.summary = c.StatusLine()
	if n, ok := c.Notification(); ok {
		o.sink.Notify(n)
	}
}

// markDown 标记PBW不可用，只在状态变为不可用时通知一次
func (o *Orchestrator) markDown(ctx context.Context, title, body string, err error) {
	if ctx.Err() != nil {
		// 正在退出
		return
	}
	o.log.Warn("PBW不可用", zap.String("reason", title), zap.Error(err))
	if o.conn != connDown {
		o.notify(notify.SeverityError, title, body, nil)
	}
	o.conn = connDown
}

// transferFailed 下载或上传失败同样视为PBW不可用，
// 错误已由调用方通知，这里只切换连接状态
func (o *Orchestrator) transferFailed(ctx context.Context, err error) {
	if ctx.Err() != nil || !errors.IsRetryable(err) {
		return
	}
	if o.conn == connDown {
		return
	}
	o.log.Warn("PBW传输失败，标记为不可用", zap.Error(err))
	o.conn = connDown
	o.publish()
}

func (o *Orchestrator) markUp() {
	if o.conn == connDown {
		o.log.Info("PBW连接已恢复")
	}
	o.conn = connUp
}

// syncWatches 为等待提交回合的存档目录建立监听
func (o *Orchestrator) syncWatches() {
	if !o.opts.AutoUpload {
		o.watches.Sync(nil)
		return
	}
	var dirs []string
	for _, g := range o.playerGames {
		if !g.AwaitingTurn() || models.CheckPlayable(&g.Game) != nil {
			continue
		}
		dirs = append(dirs, g.SaveDir())
	}
	o.watches.Sync(dirs)
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
