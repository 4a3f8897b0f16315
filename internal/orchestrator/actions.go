package orchestrator

import (
	"context"

	"github.com/wfunc/autopbw/internal/errors"
	"github.com/wfunc/autopbw/internal/models"
	"go.uber.org/zap"
)

// 操作员手动操作，全部在消费协程中执行

// RefreshNow 立即刷新并等待完成
func (o *Orchestrator) RefreshNow(ctx context.Context) error {
	return o.Do(ctx, func(ctx context.Context) error {
		o.refresh(ctx)
		return nil
	})
}

// Cancel 终止正在处理的主机回合
func (o *Orchestrator) Cancel(ctx context.Context) error {
	return o.Do(ctx, func(ctx context.Context) error {
		return o.cancelRun()
	})
}

// DownloadTurn 下载玩家回合
func (o *Orchestrator) DownloadTurn(ctx context.Context, code string, player int) error {
	return o.Do(ctx, func(ctx context.Context) error {
		g, err := o.findPlayerGame(code, player)
		if err != nil {
			return err
		}
		if err := o.downloadPlayerTurn(ctx, g); err != nil {
			return err
		}
		o.publish()
		return nil
	})
}

// PlayTurn 启动玩家端引擎，第0回合用于创建帝国
func (o *Orchestrator) PlayTurn(ctx context.Context, code string, player int) error {
	return o.Do(ctx, func(ctx context.Context) error {
		g, err := o.findPlayerGame(code, player)
		if err != nil {
			return err
		}
		return o.playTurn(g)
	})
}

// UploadTurn 上传玩家回合文件
func (o *Orchestrator) UploadTurn(ctx context.Context, code string, player int) error {
	return o.Do(ctx, func(ctx context.Context) error {
		g, err := o.findPlayerGame(code, player)
		if err != nil {
			return err
		}
		if err := o.uploadPlayerTurn(ctx, g); err != nil {
			return err
		}
		o.RequestRefresh()
		return nil
	})
}

// UploadEmpire 上传帝国设置文件，name为帝国目录下的文件名
func (o *Orchestrator) UploadEmpire(ctx context.Context, code string, player int, name string) error {
	return o.Do(ctx, func(ctx context.Context) error {
		g, err := o.findPlayerGame(code, player)
		if err != nil {
			return err
		}
		if err := o.uploadEmpire(ctx, g, name); err != nil {
			return err
		}
		o.RequestRefresh()
		return nil
	})
}

// DownloadEmpires 下载主机游戏的全部帝国文件
func (o *Orchestrator) DownloadEmpires(ctx context.Context, code string) error {
	return o.Do(ctx, func(ctx context.Context) error {
		g, err := o.findHostGame(code)
		if err != nil {
			return err
		}
		if err := models.CheckPlayable(&g.Game); err != nil {
			return err
		}
		o.log.Info("下载帝国文件", zap.String("game", g.Code), zap.String("dir", g.EmpireDir()))
		return o.downloadAndExtract(ctx, o.svc.GameURL(g.Code, actionHostEmpireDownload), g.EmpireDir())
	})
}

// PlaceHold 手动暂停主机游戏
func (o *Orchestrator) PlaceHold(ctx context.Context, code, reason string) error {
	return o.Do(ctx, func(ctx context.Context) error {
		g, err := o.findHostGame(code)
		if err != nil {
			return err
		}
		if reason == "" {
			reason = "Hold placed by host"
		}
		if err := o.svc.PlaceHold(ctx, g, reason); err != nil {
			return err
		}
		o.RequestRefresh()
		return nil
	})
}

// ClearHold 取消主机游戏的暂停
func (o *Orchestrator) ClearHold(ctx context.Context, code string) error {
	return o.Do(ctx, func(ctx context.Context) error {
		g, err := o.findHostGame(code)
		if err != nil {
			return err
		}
		if err := o.svc.ClearHold(ctx, g); err != nil {
			return err
		}
		o.RequestRefresh()
		return nil
	})
}

func (o *Orchestrator) findPlayerGame(code string, player int) (*models.PlayerGame, error) {
	for _, g := range o.playerGames {
		if g.Code == code && g.PlayerNumber == player {
			return g, nil
		}
	}
	return nil, errors.Newf(errors.ErrNotFound, "player game %s #%d not found", code, player)
}

func (o *Orchestrator) findHostGame(code string) (*models.HostGame, error) {
	for _, g := range o.hostGames {
		if g.Code == code {
			return g, nil
		}
	}
	return nil, errors.Newf(errors.ErrNotFound, "host game %s not found", code)
}
