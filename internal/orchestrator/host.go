package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wfunc/autopbw/internal/archive"
	"github.com/wfunc/autopbw/internal/errors"
	"github.com/wfunc/autopbw/internal/launcher"
	"github.com/wfunc/autopbw/internal/logger"
	"github.com/wfunc/autopbw/internal/models"
	"github.com/wfunc/autopbw/internal/notify"
	"github.com/wfunc/autopbw/internal/pbw"
	"go.uber.org/zap"
)

// PBW上的主机端操作路径
const (
	actionHostTurnDownload   = "host-turn/download"
	actionHostTurnUpload     = "host-turn/upload"
	actionHostEmpireDownload = "host-empire/download"
)

// processingRun 一次主机回合处理，同一时间最多一个
//
// 存档目录和上传过滤器在启动时解析，引擎运行期间修改配置不影响本次上传
type processingRun struct {
	game       *models.HostGame
	phase      Phase
	proc       launcher.Process
	executable string
	saveDir    string
	filter     string
	started    time.Time
}

// processHostGames 依次尝试PlayersReady的游戏，
// 遇到已有处理中的游戏或配置缺失即停止，其余游戏下次轮询再看
func (o *Orchestrator) processHostGames(ctx context.Context) {
	for _, g := range o.hostGames {
		if g.Status != models.HostStatusPlayersReady {
			continue
		}
		if o.run != nil {
			o.log.Debug("已有回合在处理",
				zap.String("processing", o.run.game.Code),
				zap.String("game", g.Code))
			return
		}
		if err := models.CheckPlayable(&g.Game); err != nil {
			o.reportConfigProblem("host:"+g.Code, "hosted game", &g.Game, err)
			return
		}
		delete(o.configWarned, "host:"+g.Code)
		o.startProcessing(ctx, g)
	}
}

// startProcessing 下载玩家回合并启动主机引擎，失败时暂停该游戏
func (o *Orchestrator) startProcessing(ctx context.Context, g *models.HostGame) {
	run := &processingRun{
		game:    g,
		phase:   PhaseDownloading,
		saveDir: g.SaveDir(),
		filter:  g.UploadFilter(),
		started: o.now(),
	}
	o.setRun(run)
	logger.LogTurnEvent("processing_started", g.Code, g.TurnNumber)
	o.notify(notify.SeverityInfo, "Processing turn",
		fmt.Sprintf("Processing turn for %s.", g.Code), notify.HostGame(g.Code))

	if err := o.downloadAndExtract(ctx, o.svc.GameURL(g.Code, actionHostTurnDownload), run.saveDir); err != nil {
		o.abortStart(ctx, run, err)
		return
	}

	run.phase = PhaseLaunching
	run.executable = g.Executable()
	args := g.Arguments()
	o.log.Info("启动主机引擎",
		zap.String("game", g.Code),
		zap.String("executable", run.executable),
		zap.String("args", redactPassword(args, g.Password)))

	proc, err := o.launcher.Start(run.executable, args, func(code int, cancelled bool, err error) {
		o.post(exitEvent{run: run, code: code, cancelled: cancelled, err: err})
	})
	if err != nil {
		o.abortStart(ctx, run, err)
		return
	}
	run.proc = proc
	run.phase = PhaseProcessing
	o.publish()
}

// abortStart 下载或启动失败：通知、暂停并释放
func (o *Orchestrator) abortStart(ctx context.Context, run *processingRun, err error) {
	g := run.game
	msg := errors.Text(err)
	o.log.Error("回合处理失败", zap.String("game", g.Code), zap.String("phase", string(run.phase)), zap.Error(err))
	o.notify(notify.SeverityError, "Turn processing failed",
		fmt.Sprintf("Turn processing for %s failed: %s", g.Code, msg), notify.HostGame(g.Code))
	o.placeProcessingHold(ctx, g, msg)
	o.finish(run, PhaseOnHold, msg)
}

// handleExit 处理引擎退出：成功上传新回合，失败暂停游戏
func (o *Orchestrator) handleExit(ctx context.Context, ev exitEvent) {
	if o.run == nil || o.run != ev.run {
		o.log.Info("忽略已释放的引擎进程退出",
			zap.String("game", ev.run.game.Code),
			zap.Int("exit_code", ev.code),
			zap.Bool("cancelled", ev.cancelled))
		return
	}
	run := o.run
	g := run.game
	defer o.RequestRefresh()

	code := ev.code
	if ev.err != nil && code == 0 {
		code = -1
	}

	if code == 0 {
		run.phase = PhaseUploading
		o.publish()
		if err := o.uploadHostTurn(ctx, run); err != nil {
			o.log.Error("上传新回合失败", zap.String("game", g.Code), zap.Error(err))
			o.notify(notify.SeverityError, "Error uploading turn",
				fmt.Sprintf("Unable to upload new turn for hosted game %s: %s", g.Code, errors.Text(err)),
				notify.HostGame(g.Code))
			o.finish(run, PhaseFailed, errors.Text(err))
			return
		}
		o.finish(run, PhaseUploaded, "")
		return
	}

	reason := fmt.Sprintf("%s exited with error code %d", baseName(run.executable), code)
	o.notify(notify.SeverityError, "Turn processing failed",
		fmt.Sprintf("Turn processing for %s failed with exit code %d.", g.Code, code), notify.HostGame(g.Code))
	o.placeProcessingHold(ctx, g, reason)
	o.finish(run, PhaseOnHold, reason)
}

// uploadHostTurn 打包下一回合文件并上传，服务端以302确认
func (o *Orchestrator) uploadHostTurn(ctx context.Context, run *processingRun) error {
	g, dir, filter := run.game, run.saveDir, run.filter
	files, err := archive.MatchFiles(dir, filter)
	if err != nil {
		return errors.Wrap(err, errors.ErrArchive)
	}
	if len(files) == 0 {
		return errors.Newf(errors.ErrNoTurnFiles, "No files matching %s found in %s.", filter, dir)
	}
	o.log.Info("上传新回合", zap.String("game", g.Code), zap.Strings("files", files))
	return o.archiveAndUpload(ctx, files, o.svc.GameURL(g.Code, actionHostTurnUpload), pbw.FieldHostTurn, http.StatusFound)
}

// placeProcessingHold 设置暂停，失败单独通知
func (o *Orchestrator) placeProcessingHold(ctx context.Context, g *models.HostGame, reason string) {
	if err := o.svc.PlaceHold(ctx, g, reason); err != nil {
		o.log.Error("设置处理暂停失败", zap.String("game", g.Code), zap.Error(err))
		o.notify(notify.SeverityError, "Error placing hold",
			fmt.Sprintf("Unable to place processing hold on %s: %s", g.Code, errors.Text(err)),
			notify.HostGame(g.Code))
	}
}

// cancelRun 终止引擎进程并释放，不上传也不暂停
func (o *Orchestrator) cancelRun() error {
	run := o.run
	if run == nil {
		return errors.New(errors.ErrNothingProcessing)
	}
	if run.proc != nil {
		if err := run.proc.Cancel(); err != nil {
			o.log.Warn("终止引擎进程失败", zap.String("game", run.game.Code), zap.Error(err))
		}
	}
	o.finish(run, PhaseCancelled, "cancelled by operator")
	return nil
}

// finish 记录结果并释放处理中的游戏
func (o *Orchestrator) finish(run *processingRun, phase Phase, message string) {
	run.phase = phase
	o.lastOutcome = &Outcome{
		Game:     run.game.Code,
		Turn:     run.game.TurnNumber,
		Phase:    phase,
		Message:  message,
		Finished: o.now(),
	}
	logger.LogTurnEvent("processing_"+string(phase), run.game.Code, run.game.TurnNumber,
		zap.Duration("elapsed", o.now().Sub(run.started)))
	o.setRun(nil)
}

// reportConfigProblem 配置缺失时通知，同一问题只通知一次
func (o *Orchestrator) reportConfigProblem(key, role string, g *models.Game, err error) {
	var (
		body    string
		subject *notify.Subject
	)
	switch errors.GetCode(err) {
	case errors.ErrEngineUnconfigured:
		body = fmt.Sprintf("Mod %s required by %s %s has no engine assigned. Please configure it.", g.Mod, role, g.Code)
		subject = notify.Mod(g.Mod.String())
	case errors.ErrUnknownEngine:
		body = fmt.Sprintf("Unknown game engine %s required by %s %s. Please configure it.", g.Engine(), role, g.Code)
		subject = notify.Engine(g.Engine().String())
	default:
		body = fmt.Sprintf("Unknown mod %s required by %s %s. Please configure it.", g.Mod, role, g.Code)
		subject = notify.Mod(g.Mod.String())
	}
	o.log.Warn("游戏缺少配置，跳过", zap.String("game", g.Code), zap.Error(err))
	if o.configWarned[key] == body {
		return
	}
	o.configWarned[key] = body
	o.notify(notify.SeverityWarning, "Configuration required", body, subject)
}

// baseName 可执行文件名，兼容两种路径分隔符
func baseName(exe string) string {
	exe = models.TrimQuotes(exe)
	if i := strings.LastIndexAny(exe, `/\`); i >= 0 {
		return exe[i+1:]
	}
	return exe
}

func redactPassword(s, password string) string {
	if password == "" {
		return s
	}
	return strings.ReplaceAll(s, password, "***")
}
