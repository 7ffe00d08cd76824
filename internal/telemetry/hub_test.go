package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/desk.report/internal/button"
	"github.com/banshee-data/desk.report/internal/desk"
	"github.com/banshee-data/desk.report/internal/jarvis"
	"github.com/banshee-data/desk.report/internal/testutil"
	"github.com/banshee-data/desk.report/internal/timeutil"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func decode(t *testing.T, line string) Message {
	t.Helper()
	var m Message
	require.NoError(t, json.Unmarshal([]byte(line), &m))
	return m
}

func TestHub_SubscribeAndBroadcast(t *testing.T) {
	h := NewHub(timeutil.NewMockClock(testTime))
	id, ch := h.Subscribe()
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, h.Subscribers())

	require.NoError(t, h.Publish(context.Background(), jarvis.Height{Meters: 1.0338, Raw: 407}))
	m := decode(t, <-ch)
	assert.Equal(t, TypeHeight, m.Type)
	assert.True(t, m.Time.Equal(testTime))
	assert.Equal(t, 1.0338, m.Data.(map[string]any)["meters"])

	h.Unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, h.Subscribers())
	h.Unsubscribe(id)
}

func TestHub_BacklogForNewSubscribers(t *testing.T) {
	h := NewHub(nil)
	for i := 0; i < DefaultBacklog+5; i++ {
		require.NoError(t, h.Broadcast(Message{Type: TypeFrame, Data: i}))
	}
	_, ch := h.Subscribe()
	require.Len(t, ch, DefaultBacklog)
	first := decode(t, <-ch)
	assert.Equal(t, float64(5), first.Data)
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(nil)
	_, ch := h.Subscribe()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.Broadcast(Message{Type: TypeFrame, Data: i})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow subscriber")
	}
	assert.NotZero(t, len(ch))
}

func TestHub_Close(t *testing.T) {
	h := NewHub(nil)
	_, ch := h.Subscribe()
	require.NoError(t, h.Close())
	_, ok := <-ch
	assert.False(t, ok)

	require.NoError(t, h.Broadcast(Message{Type: TypeFrame}))
	_, late := h.Subscribe()
	_, ok = <-late
	assert.False(t, ok, "subscribing to a closed hub returns a closed channel")
}

func TestHub_Sinks(t *testing.T) {
	h := NewHub(timeutil.NewMockClock(testTime))
	_, ch := h.Subscribe()
	ctx := context.Background()

	require.NoError(t, h.HandleButtonEvent(ctx, button.Event{Line: button.HC1, Pressed: true, Time: testTime.Add(time.Second)}))
	m := decode(t, <-ch)
	assert.Equal(t, TypeButton, m.Type)
	assert.Equal(t, "hc1", m.Data.(map[string]any)["line"])
	assert.True(t, m.Time.Equal(testTime.Add(time.Second)))

	h.ObserveFrame(jarvis.Frame{Address: jarvis.AddrController, Command: jarvis.CmdHeight, Params: []byte{0x01, 0x97, 0x03}})
	m = decode(t, <-ch)
	assert.Equal(t, TypeFrame, m.Type)
	assert.Equal(t, "F2 F2 01 03 01 97 03 9F 7E", m.Data.(map[string]any)["hex"])

	c := desk.Preset(2)
	c.ID = "abc"
	require.NoError(t, h.RecordCommand(ctx, c, errors.New("pin busy")))
	m = decode(t, <-ch)
	data := m.Data.(map[string]any)
	assert.Equal(t, TypeCommand, m.Type)
	assert.Equal(t, "abc", data["id"])
	assert.Equal(t, "preset", data["kind"])
	assert.Equal(t, "preset 2", data["detail"])
	assert.Equal(t, "pin busy", data["error"])
}

func TestServeTail(t *testing.T) {
	h := NewHub(nil)
	srv := httptest.NewServer(http.HandlerFunc(h.ServeTail))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": ping\n", line)

	require.Eventually(t, func() bool { return h.Subscribers() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, h.Broadcast(Message{Type: TypeHeight, Data: 1}))

	for {
		line, err = r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			break
		}
	}
	m := decode(t, strings.TrimPrefix(strings.TrimSpace(line), "data: "))
	assert.Equal(t, TypeHeight, m.Type)
}

func TestServeTail_MethodNotAllowed(t *testing.T) {
	h := NewHub(nil)
	w := httptest.NewRecorder()
	h.ServeTail(w, httptest.NewRequest(http.MethodPost, "/debug/tail", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestAttachAdminRoutes_TailPage(t *testing.T) {
	h := NewHub(nil)
	mux := http.NewServeMux()
	h.AttachAdminRoutes(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, testutil.LocalRequest(http.MethodGet, "/debug/desk-tail", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "new EventSource(")
}
