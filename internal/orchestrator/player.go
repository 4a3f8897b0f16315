package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/wfunc/autopbw/internal/archive"
	"github.com/wfunc/autopbw/internal/errors"
	"github.com/wfunc/autopbw/internal/logger"
	"github.com/wfunc/autopbw/internal/models"
	"github.com/wfunc/autopbw/internal/notify"
	"github.com/wfunc/autopbw/internal/pbw"
	"go.uber.org/zap"
)

// PBW上的玩家端操作路径
const (
	actionPlayerTurnDownload = "player-turn/download"
	actionPlayerTurnUpload   = "player-turn/upload"
	actionPlayerEmpireUpload = "player-empire/upload"
)

// autoDownload 下载所有尚未下载的等待回合，单局失败不影响其他游戏
func (o *Orchestrator) autoDownload(ctx context.Context) {
	for _, g := range o.playerGames {
		if !g.AwaitingTurn() || g.HasDownloaded {
			continue
		}
		if err := models.CheckPlayable(&g.Game); err != nil {
			o.reportConfigProblem("player:"+g.Code, "game", &g.Game, err)
			continue
		}
		delete(o.configWarned, "player:"+g.Code)
		if err := o.downloadPlayerTurn(ctx, g); err != nil {
			o.log.Error("自动下载失败", zap.String("game", g.Code), zap.Error(err))
			o.notify(notify.SeverityError, "Download failed",
				fmt.Sprintf("Auto-download for %s failed: %s", g.Code, errors.Text(err)),
				notify.PlayerGame(g.Code))
		}
	}
}

// downloadPlayerTurn 下载本回合到玩家存档目录
func (o *Orchestrator) downloadPlayerTurn(ctx context.Context, g *models.PlayerGame) error {
	if err := models.CheckPlayable(&g.Game); err != nil {
		return err
	}
	if g.TurnNumber == 0 {
		return errors.New(errors.ErrNothingToDownload, "Nothing to download on turn zero.")
	}
	if err := o.downloadAndExtract(ctx, o.svc.GameURL(g.Code, actionPlayerTurnDownload), g.SaveDir()); err != nil {
		return err
	}
	g.HasDownloaded = true
	logger.LogTurnEvent("turn_downloaded", g.Code, g.TurnNumber, zap.Int("player", g.PlayerNumber))
	return nil
}

// handleFileEvent 存档目录有写入时，检查对应游戏是否可以自动上传
//
// 只响应写入事件，新建文件时内容尚未写完
func (o *Orchestrator) handleFileEvent(ctx context.Context, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) || !o.opts.AutoUpload {
		return
	}
	dir := filepath.Clean(filepath.Dir(ev.Name))
	uploaded := false
	for _, g := range o.playerGames {
		if !g.AwaitingTurn() || models.CheckPlayable(&g.Game) != nil {
			continue
		}
		if filepath.Clean(g.SaveDir()) != dir || !archive.MatchesFilter(ev.Name, g.UploadFilter()) {
			continue
		}
		file, ok := o.readyToUpload(g)
		if !ok {
			continue
		}
		if err := o.uploadPlayerFile(ctx, g, file); err != nil {
			o.log.Error("自动上传失败", zap.String("game", g.Code), zap.Error(err))
			o.notify(notify.SeverityError, "Upload failed",
				"Could not upload turn: "+errors.Text(err), notify.PlayerGame(g.Code))
			continue
		}
		uploaded = true
	}
	if uploaded {
		o.RequestRefresh()
	}
}

// readyToUpload 恰好一个非空匹配文件且修改时间晚于回合开始时间
func (o *Orchestrator) readyToUpload(g *models.PlayerGame) (string, bool) {
	if g.TurnStartDate == nil {
		return "", false
	}
	files, err := archive.MatchFiles(g.SaveDir(), g.UploadFilter())
	if err != nil || len(files) != 1 {
		return "", false
	}
	info, err := os.Stat(files[0])
	if err != nil || info.Size() == 0 {
		return "", false
	}
	return files[0], info.ModTime().After(*g.TurnStartDate)
}

// uploadPlayerTurn 手动上传本回合PLR文件，只允许一个匹配文件
func (o *Orchestrator) uploadPlayerTurn(ctx context.Context, g *models.PlayerGame) error {
	if err := models.CheckPlayable(&g.Game); err != nil {
		return err
	}
	if g.TurnNumber == 0 {
		return errors.New(errors.ErrInvalidParam, "Turn zero expects an empire setup file.")
	}
	files, err := archive.MatchFiles(g.SaveDir(), g.UploadFilter())
	if err != nil {
		return errors.Wrap(err, errors.ErrArchive)
	}
	if len(files) != 1 {
		return errors.Newf(errors.ErrUploadAmbiguity,
			"Can only upload one PLR file at a time. %d files were submitted.", len(files))
	}
	return o.uploadPlayerFile(ctx, g, files[0])
}

// uploadPlayerFile PLR文件原样上传，成功后标记为已上传
func (o *Orchestrator) uploadPlayerFile(ctx context.Context, g *models.PlayerGame, file string) error {
	o.log.Info("上传玩家回合", zap.String("game", g.Code), zap.String("file", file))
	if err := o.svc.Upload(ctx, file, o.svc.GameURL(g.Code, actionPlayerTurnUpload), pbw.FieldPlayerTurn, http.StatusOK); err != nil {
		o.transferFailed(ctx, err)
		return err
	}
	g.Status = models.PlayerStatusUploaded
	logger.LogTurnEvent("turn_uploaded", g.Code, g.TurnNumber, zap.Int("player", g.PlayerNumber))
	return nil
}

// uploadEmpire 打包帝国设置文件并上传
func (o *Orchestrator) uploadEmpire(ctx context.Context, g *models.PlayerGame, name string) error {
	if err := models.CheckPlayable(&g.Game); err != nil {
		return err
	}
	if g.TurnNumber != 0 {
		return errors.Newf(errors.ErrInvalidParam, "%s is past empire setup.", g.Code)
	}
	if name == "" || filepath.Base(name) != name {
		return errors.Newf(errors.ErrInvalidParam, "invalid empire file name %q", name)
	}
	file := filepath.Join(g.EmpireDir(), name)
	if _, err := os.Stat(file); err != nil {
		return errors.Newf(errors.ErrNotFound, "Empire file %s not found.", file)
	}
	o.log.Info("上传帝国设置", zap.String("game", g.Code), zap.String("file", file))
	if err := o.archiveAndUpload(ctx, []string{file}, o.svc.GameURL(g.Code, actionPlayerEmpireUpload), pbw.FieldPlayerEmpire, http.StatusOK); err != nil {
		return err
	}
	g.Status = models.PlayerStatusUploaded
	logger.LogTurnEvent("empire_uploaded", g.Code, g.TurnNumber, zap.Int("player", g.PlayerNumber))
	return nil
}

// playTurn 启动玩家端引擎，第0回合只打开游戏用于创建帝国
func (o *Orchestrator) playTurn(g *models.PlayerGame) error {
	if err := models.CheckPlayable(&g.Game); err != nil {
		return err
	}
	exe := g.Executable()
	if g.TurnNumber == 0 {
		o.log.Info("启动游戏创建帝国", zap.String("game", g.Code), zap.String("executable", exe))
		return o.launcher.Launch(exe, "")
	}
	args := g.Arguments()
	o.log.Info("启动游戏",
		zap.String("game", g.Code),
		zap.String("executable", exe),
		zap.String("args", redactPassword(args, g.Password)))
	return o.launcher.Launch(exe, args)
}
