package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/autopbw/internal/errors"
	"github.com/wfunc/autopbw/internal/models"
)

func TestConnectivityNotifiesOncePerOutage(t *testing.T) {
	h := newHarness(t, Options{})
	h.svc.playerErr = errors.New(errors.ErrConnectivity, "connection refused")

	h.refresh()
	h.refresh()
	assert.Equal(t, 1, countTitle(h.rec, "Unable to refresh"))
	st := h.o.Status()
	assert.False(t, st.Connected)
	assert.Equal(t, connectivityDown, st.Connectivity)
	assert.Equal(t, connectivityDown, st.Summary)
	assert.Equal(t, "Unable to refresh games lists: connection refused", h.rec.All()[0].Body)

	h.svc.playerErr = nil
	h.refresh()
	st = h.o.Status()
	assert.True(t, st.Connected)
	assert.Equal(t, StatusAllCaughtUp, st.Summary)

	h.svc.hostErr = errors.New(errors.ErrConnectivity, "timeout")
	h.refresh()
	assert.Equal(t, 2, countTitle(h.rec, "Unable to refresh"))
}

func TestLoginFailure(t *testing.T) {
	h := newHarness(t, Options{EnableHosting: true})
	h.svc.loginErr = errors.New(errors.ErrLoginFailed, "bad password")
	h.svc.setHostGames(h.hostGame("A", models.HostStatusPlayersReady))

	h.refresh()
	h.refresh()
	require.Equal(t, 1, h.rec.Len())
	n := h.rec.All()[0]
	assert.Equal(t, "Login failed", n.Title)
	assert.Equal(t, "Unable to log in to PBW: bad password", n.Body)
	assert.Zero(t, h.launcher.count())
}

func TestFetchesAreIsolated(t *testing.T) {
	h := newHarness(t, Options{EnableHosting: true})
	h.svc.playerErr = errors.New(errors.ErrMessageFormat, "bad xml")
	h.svc.setHostGames(h.hostGame("A", models.HostStatusPlayersReady))

	h.refresh()
	// 玩家列表失败不影响主机处理
	assert.Equal(t, 1, h.launcher.count())
	assert.Equal(t, 1, countTitle(h.rec, "Unable to refresh"))
}

func TestFailedPlayerFetchKeepsPreviousSnapshot(t *testing.T) {
	h := newHarness(t, Options{})
	h.svc.setPlayerGames(h.playerGame("G", 1, 2, models.PlayerStatusWaiting))
	h.refresh()
	require.Len(t, h.o.Status().PlayerGames, 1)

	h.svc.playerErr = errors.New(errors.ErrConnectivity, "down")
	h.refresh()
	assert.Len(t, h.o.Status().PlayerGames, 1)

	// 恢复后不会把已知的游戏当成新回合
	h.svc.playerErr = nil
	h.refresh()
	assert.Equal(t, 1, countTitle(h.rec, "New turn ready"))
}

func TestRefreshIsNotReentrant(t *testing.T) {
	h := newHarness(t, Options{})
	h.o.busy.Store(true)
	h.o.refresh(context.Background())
	assert.Nil(t, h.o.Status().LastRefresh)

	h.o.busy.Store(false)
	h.o.refresh(context.Background())
	assert.NotNil(t, h.o.Status().LastRefresh)
	assert.False(t, h.o.Busy())
}

func TestRequestRefreshCoalesces(t *testing.T) {
	h := newHarness(t, Options{})
	h.o.RequestRefresh()
	h.o.RequestRefresh()
	h.o.RequestRefresh()
	assert.Len(t, h.o.events, 1)

	h.drain()
	assert.False(t, h.o.refreshQueued.Load())
	h.o.RequestRefresh()
	assert.Len(t, h.o.events, 1)
}

type statusRecorder struct {
	mu    sync.Mutex
	count int
}

func (s *statusRecorder) BroadcastJSON(msgType string, data interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msgType == StatusMessageType {
		if _, ok := data.(Status); ok {
			s.count++
		}
	}
	return nil
}

func (s *statusRecorder) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func TestRunServesCommands(t *testing.T) {
	h := newHarness(t, Options{EnableHosting: true, PollInterval: time.Hour})
	statuses := &statusRecorder{}
	h.o.broadcaster = statuses
	h.svc.setHostGames(h.hostGame("A", models.HostStatusPlayersReady))
	h.svc.setPlayerGames(h.playerGame("G", 1, 0, models.PlayerStatusWaiting))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.o.Run(ctx) }()

	require.NoError(t, h.o.RefreshNow(ctx))
	require.NotNil(t, h.o.ProcessingGame())
	assert.Equal(t, 1, h.launcher.count())
	assert.Equal(t, "G is awaiting an empire setup file.", h.o.Status().Summary)
	assert.Greater(t, statuses.Count(), 0)

	require.NoError(t, h.o.Cancel(ctx))
	assert.Nil(t, h.o.ProcessingGame())
	assert.True(t, errors.Is(h.o.Cancel(ctx), errors.ErrNothingProcessing))

	err := h.o.DownloadTurn(ctx, "G", 1)
	assert.True(t, errors.Is(err, errors.ErrNothingToDownload))
	assert.True(t, errors.Is(h.o.DownloadTurn(ctx, "missing", 1), errors.ErrNotFound))
	require.NoError(t, h.o.PlayTurn(ctx, "G", 1))

	require.NoError(t, h.o.ClearHold(ctx, "A"))
	require.NoError(t, h.o.PlaceHold(ctx, "A", ""))
	holds := h.svc.getHolds()
	require.Len(t, holds, 1)
	assert.Equal(t, "Hold placed by host", holds[0].reason)

	require.NoError(t, h.o.UpdateOptions(ctx, Options{PollInterval: time.Minute}))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}

	err = h.o.RefreshNow(context.Background())
	assert.True(t, errors.Is(err, errors.ErrCanceled))
}

func TestTransferFailureMarksConnectivityDown(t *testing.T) {
	h := newHarness(t, Options{AutoDownload: true})
	h.svc.setPlayerGames(h.playerGame("G", 1, 3, models.PlayerStatusWaiting))
	h.svc.downloadErr["pbw://games/G/player-turn/download"] = errors.Wrap(
		errors.New(errors.ErrConnectivity, "connection reset"), errors.ErrDownloadFailed, "download")

	h.refresh()
	st := h.o.Status()
	assert.False(t, st.Connected)
	assert.Equal(t, connectivityDown, st.Connectivity)
	// 只有下载失败本身的通知
	assert.Equal(t, 1, countTitle(h.rec, "Download failed"))
	assert.Zero(t, countTitle(h.rec, "Unable to refresh"))

	// 仍然不可用时拉取失败不再重复通知
	h.svc.playerErr = errors.New(errors.ErrConnectivity, "connection refused")
	h.refresh()
	assert.Zero(t, countTitle(h.rec, "Unable to refresh"))

	h.svc.playerErr = nil
	delete(h.svc.downloadErr, "pbw://games/G/player-turn/download")
	h.refresh()
	assert.True(t, h.o.Status().Connected)
}

func TestNonTransferErrorKeepsConnectivity(t *testing.T) {
	h := newHarness(t, Options{AutoDownload: true})
	h.svc.setPlayerGames(h.playerGame("G", 1, 3, models.PlayerStatusWaiting))
	h.svc.downloadErr["pbw://games/G/player-turn/download"] = errors.New(errors.ErrArchive, "corrupt")

	h.refresh()
	assert.True(t, h.o.Status().Connected)
	assert.Equal(t, 1, countTitle(h.rec, "Download failed"))
}
