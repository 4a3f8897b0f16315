package models

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/autopbw/internal/errors"
)

func testEngine() *Engine {
	return &Engine{
		Code:                   "SE5",
		HostExecutable:         `"/games/se5/SE5.exe"`,
		HostArguments:          `-autoprocess "{SavePath}/{GameCode}_{TurnNumber}.gam" {Password}`,
		PlayerExecutable:       "/games/se5/SE5.exe",
		PlayerArguments:        "{EnginePath}/{SavePath}/{GameCode}_{TurnNumber}_{PlayerNumber4}.gam",
		HostTurnUploadFilter:   "{GameCode}_{TurnNumber}.gam, {GameCode}_{TurnNumber}_*.gam",
		PlayerTurnUploadFilter: "{GameCode}_{TurnNumber}_{PlayerNumber4}.plr",
	}
}

func testMod(e *Engine) *Mod {
	return &Mod{Code: "Balance", EngineCode: e.Code, Engine: e, Path: "Balance", SavePath: "Savegame", EmpirePath: "Empires"}
}

func TestParseTurnMode(t *testing.T) {
	tests := []struct {
		in   string
		want TurnMode
	}{
		{"manual", TurnModeManual},
		{"alpu", TurnModeAfterLastPlayerUpload},
		{"timed", TurnModeTimed},
		{"auto", TurnModeFullyAutomatic},
	}
	for _, tt := range tests {
		got, err := ParseTurnMode(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseTurnMode("sometimes")
	assert.Error(t, err)
	assert.Equal(t, TurnModeAfterLastPlayerUpload|TurnModeTimed, TurnModeFullyAutomatic)
}

func TestParsePlayerStatus(t *testing.T) {
	s, err := ParsePlayerStatus("waiting")
	require.NoError(t, err)
	assert.Equal(t, PlayerStatusWaiting, s)

	s, err = ParsePlayerStatus("uploaded")
	require.NoError(t, err)
	assert.Equal(t, PlayerStatusUploaded, s)

	_, err = ParsePlayerStatus("lost")
	assert.Error(t, err)
}

func TestParseUnixTime(t *testing.T) {
	ts, err := ParseUnixTime("0")
	require.NoError(t, err)
	assert.Nil(t, ts)

	ts, err = ParseUnixTime("")
	require.NoError(t, err)
	assert.Nil(t, ts)

	ts, err = ParseUnixTime("1700000000")
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.Equal(t, int64(1700000000), ts.Unix())

	_, err = ParseUnixTime("yesterday")
	assert.Error(t, err)
}

func TestHostGameExpand(t *testing.T) {
	e := testEngine()
	g := &HostGame{Game: Game{Code: "G1", Password: "pw", Mod: testMod(e), TurnNumber: 7}, Status: HostStatusPlayersReady}

	assert.Equal(t, "/games/se5/SE5.exe", g.Executable())
	assert.Equal(t, `-autoprocess "Savegame/G1_7.gam" pw`, g.Arguments())
	// 上传过滤器使用下一回合
	assert.Equal(t, "G1_8.gam, G1_8_*.gam", g.UploadFilter())
	assert.Equal(t, filepath.Join("/games/se5", "Savegame"), g.SaveDir())
	assert.Equal(t, filepath.Join("/games/se5", "Empires"), g.EmpireDir())
}

func TestPlayerGameExpand(t *testing.T) {
	e := testEngine()
	g := &PlayerGame{Game: Game{Code: "G2", Mod: testMod(e), TurnNumber: 12}, PlayerNumber: 3}

	assert.Equal(t, "/games/se5/Savegame/G2_12_0003.gam", g.Arguments())
	assert.Equal(t, "G2_12_0003.plr", g.UploadFilter())

	e.PlayerTurnUploadFilter = "{PlayerNumber}-{PlayerNumber2}-{PlayerNumber3}.plr"
	assert.Equal(t, "3-03-003.plr", g.UploadFilter())
}

func TestExpandIsTextual(t *testing.T) {
	e := testEngine()
	e.HostArguments = "{GameCode} {Unknown} {{GameCode}}"
	g := &HostGame{Game: Game{Code: "$(rm -rf)", Mod: testMod(e)}}
	assert.Equal(t, "$(rm -rf) {Unknown} {$(rm -rf)}", g.Arguments())
}

func TestPlayerGameHelpers(t *testing.T) {
	g := &PlayerGame{Game: Game{Code: "G", TurnNumber: 1}, Status: PlayerStatusWaiting, PlayerNumber: 1}
	assert.True(t, g.AwaitingTurn())
	assert.False(t, g.AwaitingEmpire())
	assert.Equal(t, "Waiting", g.DisplayStatus())

	g.HasDownloaded = true
	assert.Equal(t, "Waiting [D]", g.DisplayStatus())

	g.TurnNumber = 0
	assert.True(t, g.AwaitingEmpire())

	g.PlayerNumber = 0
	assert.False(t, g.AwaitingEmpire())
	assert.Equal(t, PlayerKey{Code: "G", PlayerNumber: 0}, g.Key())
}

func TestTimeLeft(t *testing.T) {
	now := time.Now()
	g := &Game{}
	_, ok := g.TimeLeft(now)
	assert.False(t, ok)

	past := now.Add(-time.Hour)
	g.TurnDueDate = &past
	left, ok := g.TimeLeft(now)
	assert.True(t, ok)
	assert.Equal(t, time.Duration(0), left)

	future := now.Add(time.Hour)
	g.TurnDueDate = &future
	left, _ = g.TimeLeft(now)
	assert.Equal(t, time.Hour, left)
}

func TestCheckPlayable(t *testing.T) {
	assert.True(t, errors.Is(CheckPlayable(nil), errors.ErrNoGameSelected))

	e := testEngine()
	m := testMod(e)
	g := &Game{Code: "G1", Mod: m}
	assert.NoError(t, CheckPlayable(g))

	m.Engine = nil
	assert.True(t, errors.Is(CheckPlayable(g), errors.ErrEngineUnconfigured))

	m.Engine = e
	e.IsUnknown = true
	m.IsUnknown = true
	// 引擎检查优先于模组检查
	assert.True(t, errors.Is(CheckPlayable(g), errors.ErrUnknownEngine))

	e.IsUnknown = false
	err := CheckPlayable(g)
	assert.True(t, errors.Is(err, errors.ErrUnknownMod))
	assert.Contains(t, errors.Text(err), "Balance")
}
