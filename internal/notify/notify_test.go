package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/autopbw/internal/errors"
	tele "gopkg.in/telebot.v3"
)

func TestRecorderLimit(t *testing.T) {
	r := NewRecorder(2)
	r.Notify(New(SeverityInfo, "a", "", nil))
	r.Notify(New(SeverityInfo, "b", "", nil))
	r.Notify(New(SeverityError, "c", "", HostGame("G")))

	assert.Equal(t, []string{"b", "c"}, r.Titles())
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, SubjectHostGame, r.All()[1].Subject.Kind)

	r.Reset()
	assert.Zero(t, r.Len())
}

func TestMultiFansOut(t *testing.T) {
	a, b := NewRecorder(0), NewRecorder(0)
	Multi{a, nil, b, NewLogSink()}.Notify(New(SeverityWarning, "t", "body", Mod("Stock")))
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len())
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "games[A B]", Games("A", "B").String())
	assert.Equal(t, "engine[SE4]", Engine("SE4").String())
	assert.Equal(t, SubjectPlayerGame, PlayerGame("X").Kind)
	var nilSubject *Subject
	assert.Equal(t, "", nilSubject.String())
}

type fakeBroadcaster struct {
	msgType string
	data    interface{}
}

func (f *fakeBroadcaster) BroadcastJSON(msgType string, data interface{}) error {
	f.msgType = msgType
	f.data = data
	return nil
}

func TestHubSink(t *testing.T) {
	b := &fakeBroadcaster{}
	n := New(SeverityInfo, "New turn ready", "G is ready to play.", PlayerGame("G"))
	NewHubSink(b).Notify(n)
	assert.Equal(t, MessageTypeNotification, b.msgType)
	assert.Equal(t, n, b.data)
}

func TestTelegramSink(t *testing.T) {
	var (
		mu    sync.Mutex
		texts []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var params map[string]interface{}
		_ = json.Unmarshal(body, &params)
		mu.Lock()
		texts = append(texts, params["text"].(string))
		mu.Unlock()
		io.WriteString(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"},"text":"x"}}`)
	}))
	defer srv.Close()

	sink, err := NewTelegramSink(tele.Settings{Token: "TOKEN", URL: srv.URL, Offline: true}, 42)
	require.NoError(t, err)

	sink.Notify(New(SeverityError, "Turn processing failed", "Turn processing for <G> failed with exit code 7.", HostGame("G")))
	sink.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "<b>Turn processing failed</b>")
	assert.Contains(t, texts[0], "&lt;G&gt;")
}

func TestTelegramSinkConfig(t *testing.T) {
	_, err := NewTelegramSink(tele.Settings{}, 1)
	assert.True(t, errors.Is(err, errors.ErrConfigMissing))
	_, err = NewTelegramSink(tele.Settings{Token: "x", Offline: true}, 0)
	assert.True(t, errors.Is(err, errors.ErrConfigMissing))
}
