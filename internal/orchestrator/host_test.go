package orchestrator

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/autopbw/internal/errors"
	"github.com/wfunc/autopbw/internal/models"
	"github.com/wfunc/autopbw/internal/notify"
	"github.com/wfunc/autopbw/internal/pbw"
)

func countTitle(rec *notify.Recorder, title string) int {
	n := 0
	for _, t := range rec.Titles() {
		if t == title {
			n++
		}
	}
	return n
}

func TestHostProcessesOneGameAtATime(t *testing.T) {
	h := newHarness(t, Options{EnableHosting: true})
	h.svc.setHostGames(
		h.hostGame("A", models.HostStatusPlayersReady),
		h.hostGame("B", models.HostStatusPlayersReady),
	)

	h.refresh()
	require.Equal(t, 1, h.launcher.count())
	require.NotNil(t, h.o.ProcessingGame())
	assert.Equal(t, "A", h.o.ProcessingGame().Code)

	s := h.launcher.starts[0]
	assert.Equal(t, filepath.Join(h.root, "host", "se4.exe"), s.exe)
	assert.Equal(t, "A 4 secret", s.args)
	assert.Equal(t, []string{"pbw://games/A/host-turn/download"}, h.svc.getDownloads())
	assert.Equal(t, []string{h.hostSaveDir()}, h.codec.extracted)

	st := h.o.Status()
	require.NotNil(t, st.Processing)
	assert.Equal(t, PhaseProcessing, st.Processing.Phase)
	assert.Equal(t, 4242, st.Processing.Pid)

	// 处理中再次轮询不会启动第二个
	h.refresh()
	assert.Equal(t, 1, h.launcher.count())
	assert.Equal(t, "A", h.o.ProcessingGame().Code)
	assert.Equal(t, 1, countTitle(h.rec, "Processing turn"))
}

func TestHostSkipsGamesNotPlayersReady(t *testing.T) {
	h := newHarness(t, Options{EnableHosting: true})
	h.svc.setHostGames(
		h.hostGame("A", models.HostStatusEmpiresReady),
		h.hostGame("B", models.HostStatusHostReady),
	)
	h.refresh()
	assert.Zero(t, h.launcher.count())
	assert.Nil(t, h.o.ProcessingGame())
}

func TestHostingDisabled(t *testing.T) {
	h := newHarness(t, Options{})
	h.svc.setHostGames(h.hostGame("A", models.HostStatusPlayersReady))
	h.refresh()
	assert.Zero(t, h.launcher.count())
	assert.Len(t, h.o.Status().HostGames, 1)
}

func TestHostExitZeroUploadsThenReleases(t *testing.T) {
	h := newHarness(t, Options{EnableHosting: true})
	h.svc.setHostGames(h.hostGame("A", models.HostStatusPlayersReady))
	h.refresh()
	require.Equal(t, 1, h.launcher.count())

	writeFile(t, filepath.Join(h.hostSaveDir(), "A_5.gam"))
	writeFile(t, filepath.Join(h.hostSaveDir(), "A_5_1.emp"))
	writeFile(t, filepath.Join(h.hostSaveDir(), "A_4.gam"))
	h.svc.setHostGames(h.hostGame("B", models.HostStatusPlayersReady))

	h.launcher.exit(0)
	h.drain()

	uploads := h.svc.getUploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "pbw://games/A/host-turn/upload", uploads[0].url)
	assert.Equal(t, pbw.FieldHostTurn, uploads[0].field)
	assert.Equal(t, 302, uploads[0].expected)
	require.Len(t, h.codec.compressed, 1)
	assert.ElementsMatch(t, []string{
		filepath.Join(h.hostSaveDir(), "A_5.gam"),
		filepath.Join(h.hostSaveDir(), "A_5_1.emp"),
	}, h.codec.compressed[0])
	assert.Empty(t, h.svc.getHolds())

	// 退出后请求的刷新启动了下一局
	require.Equal(t, 2, h.launcher.count())
	assert.Equal(t, "B", h.o.ProcessingGame().Code)
	outcome := h.o.Status().LastOutcome
	require.NotNil(t, outcome)
	assert.Equal(t, "A", outcome.Game)
	assert.Equal(t, PhaseUploaded, outcome.Phase)
}

func TestHostExitZeroWithoutTurnFiles(t *testing.T) {
	h := newHarness(t, Options{EnableHosting: true})
	h.svc.setHostGames(h.hostGame("A", models.HostStatusPlayersReady))
	h.refresh()
	h.svc.setHostGames()

	h.launcher.exit(0)
	h.drain()

	assert.Empty(t, h.svc.getUploads())
	assert.Empty(t, h.svc.getHolds())
	assert.Nil(t, h.o.ProcessingGame())
	assert.Equal(t, 1, countTitle(h.rec, "Error uploading turn"))
	assert.Equal(t, PhaseFailed, h.o.Status().LastOutcome.Phase)
}

func TestHostUploadFailureReleasesGuard(t *testing.T) {
	h := newHarness(t, Options{EnableHosting: true})
	h.svc.setHostGames(h.hostGame("A", models.HostStatusPlayersReady))
	h.refresh()
	h.svc.setHostGames()
	writeFile(t, filepath.Join(h.hostSaveDir(), "A_5.gam"))
	h.svc.uploadErr = errors.New(errors.ErrUploadFailed, "response 500")

	h.launcher.exit(0)
	h.drain()

	assert.Nil(t, h.o.ProcessingGame())
	all := h.rec.All()
	last := all[len(all)-1]
	assert.Equal(t, "Error uploading turn", last.Title)
	assert.Equal(t, "Unable to upload new turn for hosted game A: response 500", last.Body)
}

func TestHostExitAfterEngineUnassigned(t *testing.T) {
	h := newHarness(t, Options{EnableHosting: true})
	h.svc.setHostGames(h.hostGame("A", models.HostStatusPlayersReady))
	h.refresh()
	h.svc.setHostGames()
	require.Equal(t, 1, h.launcher.count())
	writeFile(t, filepath.Join(h.hostSaveDir(), "A_5.gam"))

	// 引擎运行期间模组的引擎被清空
	h.mod.Engine = nil
	h.mod.EngineCode = ""

	require.NotPanics(t, func() {
		h.launcher.exit(0)
		h.drain()
	})

	assert.Nil(t, h.o.ProcessingGame())
	uploads := h.svc.getUploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "pbw://games/A/host-turn/upload", uploads[0].url)
	assert.Equal(t, [][]string{{filepath.Join(h.hostSaveDir(), "A_5.gam")}}, h.codec.compressed)
	assert.Equal(t, PhaseUploaded, h.o.Status().LastOutcome.Phase)
}

func TestHostExitNonZeroPlacesHold(t *testing.T) {
	h := newHarness(t, Options{EnableHosting: true})
	h.svc.setHostGames(h.hostGame("A", models.HostStatusPlayersReady))
	h.refresh()
	h.svc.setHostGames()

	h.launcher.exit(7)
	h.drain()

	holds := h.svc.getHolds()
	require.Len(t, holds, 1)
	assert.Equal(t, "A", holds[0].game)
	assert.Equal(t, "se4.exe exited with error code 7", holds[0].reason)
	assert.Contains(t, holds[0].reason, "7")
	assert.Empty(t, h.svc.getUploads())
	assert.Nil(t, h.o.ProcessingGame())

	all := h.rec.All()
	last := all[len(all)-1]
	assert.Equal(t, "Turn processing failed", last.Title)
	assert.Equal(t, "Turn processing for A failed with exit code 7.", last.Body)
	assert.Equal(t, notify.HostGame("A"), last.Subject)
	assert.Equal(t, PhaseOnHold, h.o.Status().LastOutcome.Phase)
}

func TestHoldFailureIsSeparateNotification(t *testing.T) {
	h := newHarness(t, Options{EnableHosting: true})
	h.svc.setHostGames(h.hostGame("A", models.HostStatusPlayersReady))
	h.refresh()
	h.svc.setHostGames()
	h.svc.holdErr = errors.New(errors.ErrHoldFailed, "server said no")

	h.launcher.exit(3)
	h.drain()

	assert.Equal(t, 1, countTitle(h.rec, "Turn processing failed"))
	assert.Equal(t, 1, countTitle(h.rec, "Error placing hold"))
	assert.Nil(t, h.o.ProcessingGame())
}

func TestDownloadFailureHoldsAndContinues(t *testing.T) {
	h := newHarness(t, Options{EnableHosting: true})
	h.svc.setHostGames(
		h.hostGame("A", models.HostStatusPlayersReady),
		h.hostGame("B", models.HostStatusPlayersReady),
	)
	h.svc.downloadErr["pbw://games/A/host-turn/download"] = errors.New(errors.ErrDownloadFailed, "download broke")

	h.refresh()

	holds := h.svc.getHolds()
	require.Len(t, holds, 1)
	assert.Equal(t, "A", holds[0].game)
	assert.Equal(t, "download broke", holds[0].reason)
	require.Equal(t, 1, h.launcher.count())
	assert.Equal(t, "B", h.o.ProcessingGame().Code)
	assert.Equal(t, []string{"Processing turn", "Turn processing failed", "Processing turn"}, h.rec.Titles())
}

func TestStartFailureReleasesGuard(t *testing.T) {
	h := newHarness(t, Options{EnableHosting: true})
	h.svc.setHostGames(h.hostGame("A", models.HostStatusPlayersReady))
	h.launcher.startErr = errors.New(errors.ErrProcessStart, "exec format error")

	h.refresh()

	assert.Nil(t, h.o.ProcessingGame())
	holds := h.svc.getHolds()
	require.Len(t, holds, 1)
	assert.Equal(t, "exec format error", holds[0].reason)
}

func TestConfigGateSkipsAndStopsProbing(t *testing.T) {
	h := newHarness(t, Options{EnableHosting: true})
	exotic := &models.Mod{Code: "Exotic", EngineCode: "SE4", IsUnknown: true, Engine: h.mod.Engine}
	blocked := h.hostGame("C", models.HostStatusPlayersReady)
	blocked.Mod = exotic
	h.svc.setHostGames(blocked, h.hostGame("D", models.HostStatusPlayersReady))

	h.refresh()
	h.refresh()

	assert.Zero(t, h.launcher.count())
	assert.Nil(t, h.o.ProcessingGame())
	require.Equal(t, 1, h.rec.Len())
	n := h.rec.All()[0]
	assert.Equal(t, "Configuration required", n.Title)
	assert.Equal(t, "Unknown mod Exotic required by hosted game C. Please configure it.", n.Body)
	assert.Equal(t, notify.Mod("Exotic"), n.Subject)

	// 配置完成后正常处理
	exotic.IsUnknown = false
	h.refresh()
	assert.Equal(t, 1, h.launcher.count())
	assert.Equal(t, "C", h.o.ProcessingGame().Code)
}

func TestConfigProblemSubjects(t *testing.T) {
	h := newHarness(t, Options{EnableHosting: true})

	noEngine := h.hostGame("E", models.HostStatusPlayersReady)
	noEngine.Mod = &models.Mod{Code: "Orphan"}
	h.svc.setHostGames(noEngine)
	h.refresh()

	unknownEngine := h.hostGame("F", models.HostStatusPlayersReady)
	unknownEngine.Mod = &models.Mod{Code: "Fancy", Engine: models.NewPlaceholderEngine("SE5")}
	h.svc.setHostGames(unknownEngine)
	h.refresh()

	all := h.rec.All()
	require.Len(t, all, 2)
	assert.Equal(t, notify.Mod("Orphan"), all[0].Subject)
	assert.Contains(t, all[0].Body, "has no engine assigned")
	assert.Equal(t, notify.Engine("SE5"), all[1].Subject)
	assert.Equal(t, "Unknown game engine SE5 required by hosted game F. Please configure it.", all[1].Body)
}

func TestCancelReleasesGuardAndIgnoresLateExit(t *testing.T) {
	h := newHarness(t, Options{EnableHosting: true})
	h.svc.setHostGames(h.hostGame("A", models.HostStatusPlayersReady))
	h.refresh()
	h.svc.setHostGames()
	require.NotNil(t, h.o.ProcessingGame())

	require.NoError(t, h.o.cancelRun())
	assert.Nil(t, h.o.ProcessingGame())
	s := h.launcher.starts[0]
	assert.True(t, s.proc.cancelled)
	assert.Equal(t, PhaseCancelled, h.o.Status().LastOutcome.Phase)

	// 被取消进程的退出不再处理
	s.onExit(-1, true, nil)
	h.drain()
	assert.Empty(t, h.svc.getUploads())
	assert.Empty(t, h.svc.getHolds())

	err := h.o.cancelRun()
	assert.True(t, errors.Is(err, errors.ErrNothingProcessing))
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "se4.exe", baseName(`"C:\Games\SE4\se4.exe"`))
	assert.Equal(t, "se5", baseName("/opt/se5/se5"))
	assert.Equal(t, "plain", baseName("plain"))
}
