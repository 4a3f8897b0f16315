package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wfunc/autopbw/internal/launcher"
	"github.com/wfunc/autopbw/internal/models"
	"github.com/wfunc/autopbw/internal/notify"
	"go.uber.org/zap"
)

type upload struct {
	file, url, field string
	expected         int
}

type hold struct {
	game, reason string
}

// fakeService 内存中的PBW
type fakeService struct {
	mu          sync.Mutex
	hostGames   []*models.HostGame
	playerGames []*models.PlayerGame
	loginErr    error
	hostErr     error
	playerErr   error
	downloadErr map[string]error
	uploadErr   error
	holdErr     error

	downloads []string
	uploads   []upload
	holds     []hold
	cleared   []string
}

func (f *fakeService) EnsureLoggedIn(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginErr
}

func (f *fakeService) FetchHostGames(ctx context.Context) ([]*models.HostGame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hostErr != nil {
		return nil, f.hostErr
	}
	// 每次轮询都是新对象
	out := make([]*models.HostGame, 0, len(f.hostGames))
	for _, g := range f.hostGames {
		c := *g
		out = append(out, &c)
	}
	return out, nil
}

func (f *fakeService) FetchPlayerGames(ctx context.Context) ([]*models.PlayerGame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playerErr != nil {
		return nil, f.playerErr
	}
	out := make([]*models.PlayerGame, 0, len(f.playerGames))
	for _, g := range f.playerGames {
		c := *g
		out = append(out, &c)
	}
	return out, nil
}

func (f *fakeService) Download(ctx context.Context, url, dest string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, url)
	if err := f.downloadErr[url]; err != nil {
		return err
	}
	return os.WriteFile(dest, []byte("7z"), 0644)
}

func (f *fakeService) Upload(ctx context.Context, file, url, field string, expectedStatus int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, upload{file: file, url: url, field: field, expected: expectedStatus})
	return f.uploadErr
}

func (f *fakeService) PlaceHold(ctx context.Context, game *models.HostGame, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holds = append(f.holds, hold{game: game.Code, reason: reason})
	return f.holdErr
}

func (f *fakeService) ClearHold(ctx context.Context, game *models.HostGame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, game.Code)
	return nil
}

func (f *fakeService) GameURL(code, action string) string {
	return "pbw://games/" + code + "/" + action
}

func (f *fakeService) setHostGames(games ...*models.HostGame) {
	f.mu.Lock()
	f.hostGames = games
	f.mu.Unlock()
}

func (f *fakeService) setPlayerGames(games ...*models.PlayerGame) {
	f.mu.Lock()
	f.playerGames = games
	f.mu.Unlock()
}

func (f *fakeService) getUploads() []upload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]upload(nil), f.uploads...)
}

func (f *fakeService) getHolds() []hold {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]hold(nil), f.holds...)
}

func (f *fakeService) getDownloads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.downloads...)
}

// fakeCodec 记录解压与打包
type fakeCodec struct {
	mu         sync.Mutex
	extracted  []string
	compressed [][]string
}

func (c *fakeCodec) Extract(archivePath, dir string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extracted = append(c.extracted, dir)
	return []string{"turn.plr"}, nil
}

func (c *fakeCodec) Ext() string { return "7z" }

func (c *fakeCodec) Compress(files []string, archivePath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.compressed = append(c.compressed, files)
	return os.WriteFile(archivePath, []byte("7z"), 0644)
}

// fakeProcess 由测试控制退出
type fakeProcess struct {
	mu        sync.Mutex
	cancelled bool
	done      chan struct{}
}

func (p *fakeProcess) Pid() int { return 4242 }

func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) Cancel() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = true
	return nil
}

type start struct {
	exe, args string
	proc      *fakeProcess
	onExit    launcher.ExitFunc
}

type fakeLauncher struct {
	mu       sync.Mutex
	starts   []start
	launches []string
	startErr error
}

func (l *fakeLauncher) Start(exe, args string, onExit launcher.ExitFunc) (launcher.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.startErr != nil {
		return nil, l.startErr
	}
	p := &fakeProcess{done: make(chan struct{})}
	l.starts = append(l.starts, start{exe: exe, args: args, proc: p, onExit: onExit})
	return p, nil
}

func (l *fakeLauncher) Launch(exe, args string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches = append(l.launches, exe+" "+args)
	return nil
}

func (l *fakeLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.starts)
}

// exit 模拟最后一次启动的进程退出
func (l *fakeLauncher) exit(code int) {
	l.mu.Lock()
	s := l.starts[len(l.starts)-1]
	l.mu.Unlock()
	close(s.proc.done)
	s.onExit(code, false, nil)
}

type harness struct {
	o        *Orchestrator
	svc      *fakeService
	codec    *fakeCodec
	launcher *fakeLauncher
	rec      *notify.Recorder
	mod      *models.Mod
	root     string
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	root := t.TempDir()
	if opts.TempDir == "" {
		opts.TempDir = filepath.Join(root, "tmp")
	}
	h := &harness{
		svc:      &fakeService{downloadErr: map[string]error{}},
		codec:    &fakeCodec{},
		launcher: &fakeLauncher{},
		rec:      notify.NewRecorder(0),
		mod:      testMod(root),
		root:     root,
	}
	o, err := New(Deps{
		Service:  h.svc,
		Codec:    h.codec,
		Launcher: h.launcher,
		Sink:     h.rec,
		Logger:   zap.NewNop(),
	}, opts)
	require.NoError(t, err)
	t.Cleanup(func() { o.watches.Close() })
	h.o = o
	return h
}

// refresh 在测试协程中充当消费者
func (h *harness) refresh() {
	ctx := context.Background()
	h.o.refresh(ctx)
	h.o.drain(ctx)
}

func (h *harness) drain() {
	h.o.drain(context.Background())
}

func testMod(root string) *models.Mod {
	engine := &models.Engine{
		Code:                   "SE4",
		HostExecutable:         filepath.Join(root, "host", "se4.exe"),
		HostArguments:          "{GameCode} {TurnNumber} {Password}",
		PlayerExecutable:       filepath.Join(root, "player", "se4.exe"),
		PlayerArguments:        "{GameCode} {PlayerNumber}",
		HostTurnUploadFilter:   "{GameCode}_{TurnNumber}.gam, {GameCode}_{TurnNumber}_*.emp",
		PlayerTurnUploadFilter: "{GameCode}_{PlayerNumber2}.plr",
	}
	return &models.Mod{Code: "Stock", EngineCode: "SE4", SavePath: "Savegame", EmpirePath: "Empires", Engine: engine}
}

func (h *harness) hostGame(code string, status models.HostStatus) *models.HostGame {
	return &models.HostGame{
		Game:   models.Game{Code: code, Password: "secret", Mod: h.mod, TurnNumber: 4},
		Status: status,
	}
}

func (h *harness) playerGame(code string, player, turn int, status models.PlayerStatus) *models.PlayerGame {
	started := time.Now().Add(-time.Hour)
	return &models.PlayerGame{
		Game:         models.Game{Code: code, Mod: h.mod, TurnNumber: turn, TurnStartDate: &started},
		Status:       status,
		PlayerNumber: player,
	}
}

func (h *harness) hostSaveDir() string {
	return filepath.Join(h.root, "host", "Savegame")
}

func (h *harness) playerSaveDir() string {
	return filepath.Join(h.root, "player", "Savegame")
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("data"), 0644))
}
