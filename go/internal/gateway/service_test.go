package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/planning-poker/go/internal/models"
	"github.com/mcdev12/planning-poker/go/internal/room"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDefaultRoom = "POKER1"

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

var testTeam = models.Team{
	Name: "Platform",
	Members: []models.TeamMember{
		{ID: "u1", Name: "Alice", Role: "Backend"},
		{ID: "u2", Name: "Bob", Role: "Frontend"},
		{ID: "u3", Name: "Carol", Role: "QA"},
		{ID: "u4", Name: "Dave", Role: "PO"},
	},
}

type testEnv struct {
	server  *httptest.Server
	service *Service
	app     *room.App
	hub     *Hub
	clock   *clockwork.FakeClock
}

func newTestEnv(t *testing.T, store room.Store, clock *clockwork.FakeClock) *testEnv {
	t.Helper()

	hub := NewHub()
	app := room.NewApp(store, clock, testDefaultRoom, hub)

	cfg := DefaultConfig()
	cfg.Team = testTeam
	service := NewService(cfg, app, hub, nil, clock)

	mux := http.NewServeMux()
	service.RegisterRoutes(mux)
	server := httptest.NewServer(NewHandler(mux, nil))
	t.Cleanup(func() {
		service.Stop()
		server.Close()
	})

	return &testEnv{server: server, service: service, app: app, hub: hub, clock: clock}
}

func newMemoryEnv(t *testing.T) *testEnv {
	clock := clockwork.NewFakeClockAt(epoch)
	return newTestEnv(t, room.NewMemoryRepository(clock, room.DefaultTTL), clock)
}

func (e *testEnv) post(t *testing.T, path, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(e.server.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func (e *testEnv) state(t *testing.T, path string) models.SessionState {
	t.Helper()
	resp, body := e.get(t, path)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var state models.SessionState
	require.NoError(t, json.Unmarshal(body, &state))
	return state
}

func findVote(t *testing.T, state models.SessionState, userID string) models.Vote {
	t.Helper()
	for _, v := range state.Votes {
		if v.UserID == userID {
			return v
		}
	}
	t.Fatalf("no vote for %s", userID)
	return models.Vote{}
}

func TestHandlers_Vote(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{name: "number", path: "/vote", body: `{"userId":"u1","userName":"Alice","value":5}`, wantStatus: http.StatusOK},
		{name: "coffee", path: "/vote", body: `{"userId":"u1","userName":"Alice","value":"☕"}`, wantStatus: http.StatusOK},
		{name: "explicit null", path: "/vote", body: `{"userId":"u1","userName":"Alice","value":null}`, wantStatus: http.StatusOK},
		{name: "named room", path: "/vote?room=team42", body: `{"userId":"u1","userName":"Alice","value":8}`, wantStatus: http.StatusOK},
		{name: "path room", path: "/rooms/TEAM42/vote", body: `{"userId":"u1","userName":"Alice","value":8}`, wantStatus: http.StatusOK},
		{name: "zero", path: "/vote", body: `{"userId":"u1","userName":"Alice","value":0}`, wantStatus: http.StatusBadRequest},
		{name: "missing value", path: "/vote", body: `{"userId":"u1","userName":"Alice"}`, wantStatus: http.StatusBadRequest},
		{name: "boolean value", path: "/vote", body: `{"userId":"u1","userName":"Alice","value":true}`, wantStatus: http.StatusBadRequest},
		{name: "numeric string", path: "/vote", body: `{"userId":"u1","userName":"Alice","value":"5"}`, wantStatus: http.StatusBadRequest},
		{name: "long name", path: "/vote", body: `{"userId":"u1","userName":"` + strings.Repeat("x", 51) + `","value":5}`, wantStatus: http.StatusBadRequest},
		{name: "missing user", path: "/vote", body: `{"userName":"Alice","value":5}`, wantStatus: http.StatusBadRequest},
		{name: "bad room", path: "/vote?room=NOPE", body: `{"userId":"u1","userName":"Alice","value":5}`, wantStatus: http.StatusBadRequest},
		{name: "malformed json", path: "/vote", body: `{"userId":`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newMemoryEnv(t)
			resp, body := env.post(t, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode, string(body))

			if tt.wantStatus == http.StatusOK {
				assert.JSONEq(t, `{"success":true}`, string(body))
				return
			}
			var errResp ErrorResponse
			require.NoError(t, json.Unmarshal(body, &errResp))
			assert.Equal(t, http.StatusText(tt.wantStatus), errResp.Error)
			assert.NotEmpty(t, errResp.Message)

			state := env.state(t, "/state")
			assert.Empty(t, state.Votes)
		})
	}
}

func TestHandlers_EndToEndRound(t *testing.T) {
	env := newMemoryEnv(t)

	roster := `{"votes":[
		{"userId":"u1","userName":"Alice","value":null,"revealed":false},
		{"userId":"u2","userName":"Bob","value":null,"revealed":false},
		{"userId":"u3","userName":"Carol","value":null,"revealed":false},
		{"userId":"u4","userName":"Dave","value":null,"revealed":false}
	]}`
	resp, _ := env.post(t, "/init-votes", roster)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.post(t, "/vote", `{"userId":"u1","userName":"Alice","value":5}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = env.post(t, "/vote", `{"userId":"u2","userName":"Bob","value":8}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A second init must not clear the votes already cast.
	resp, _ = env.post(t, "/init-votes", roster)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	hidden := env.state(t, "/state")
	assert.False(t, hidden.ShowResults)
	assert.Nil(t, hidden.Stats)
	assert.True(t, findVote(t, hidden, "u1").Value.Equal(models.NumberValue(5)))

	resp, _ = env.post(t, "/reveal", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	revealed := env.state(t, "/state")
	assert.True(t, revealed.ShowResults)
	require.Len(t, revealed.Votes, 4)
	for _, v := range revealed.Votes {
		assert.True(t, v.Revealed, v.UserID)
	}
	assert.Equal(t, "5", findVote(t, revealed, "u1").Value.Display())
	assert.Equal(t, "8", findVote(t, revealed, "u2").Value.Display())
	assert.Equal(t, "-", findVote(t, revealed, "u3").Value.Display())
	assert.Equal(t, "-", findVote(t, revealed, "u4").Value.Display())
	require.NotNil(t, revealed.Stats)
	assert.Equal(t, 2, revealed.Stats.Count)

	resp, _ = env.post(t, "/reset", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reset := env.state(t, "/state")
	assert.False(t, reset.ShowResults)
	require.Len(t, reset.Votes, 4)
	for _, v := range reset.Votes {
		assert.True(t, v.Value.IsNull(), v.UserID)
		assert.False(t, v.Revealed, v.UserID)
	}
}

func TestHandlers_InitVotesValidation(t *testing.T) {
	env := newMemoryEnv(t)

	resp, _ := env.post(t, "/init-votes", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.post(t, "/init-votes", `{"votes":[{"userId":"u1","userName":"Alice","value":4}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.post(t, "/init-votes", `{"votes":[]}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandlers_RoomResolution(t *testing.T) {
	env := newMemoryEnv(t)

	resp, _ := env.get(t, "/state?room=ZZZ999")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.post(t, "/reveal?room=ZZZ999", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.get(t, "/state?room=bad")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := env.post(t, "/rooms", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created createRoomResponse
	require.NoError(t, json.Unmarshal(body, &created))

	state := env.state(t, "/rooms/"+created.Code+"/state")
	assert.Equal(t, created.Code, state.Code)

	state = env.state(t, "/state?room="+strings.ToLower(created.Code))
	assert.Equal(t, created.Code, state.Code)
}

func TestHandlers_Leave(t *testing.T) {
	env := newMemoryEnv(t)

	env.post(t, "/vote", `{"userId":"u1","userName":"Alice","value":5}`)
	env.post(t, "/vote", `{"userId":"u2","userName":"Bob","value":3}`)

	resp, _ := env.post(t, "/leave", `{"userId":"u1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	state := env.state(t, "/state")
	require.Len(t, state.Votes, 1)
	assert.Equal(t, "u2", state.Votes[0].UserID)

	resp, _ = env.post(t, "/leave", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlers_StaticEndpoints(t *testing.T) {
	env := newMemoryEnv(t)

	resp, body := env.get(t, "/scale")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"values":[1,2,3,5,8,13,21,"?","☕"]}`, string(body))

	resp, body = env.get(t, "/team")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var team models.Team
	require.NoError(t, json.Unmarshal(body, &team))
	assert.Equal(t, testTeam, team)

	resp, body = env.get(t, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	resp, body = env.get(t, "/info")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &info))
	assert.Equal(t, "planning-poker", info["service"])
	assert.EqualValues(t, 0, info["total_connections"])

	resp, _ = env.get(t, "/vote")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandlers_CORS(t *testing.T) {
	env := newMemoryEnv(t)

	req, err := http.NewRequest(http.MethodOptions, env.server.URL+"/vote", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestHandlers_StoreUnavailable(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	env := newTestEnv(t, room.NewRedisRepository(client, clock, room.DefaultTTL), clock)

	resp, _ := env.post(t, "/vote", `{"userId":"u1","userName":"Alice","value":5}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, m.Exists("room:POKER1"))

	m.SetError("ERR store is down")
	resp, body := env.post(t, "/vote", `{"userId":"u1","userName":"Alice","value":8}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, string(body))

	resp, _ = env.get(t, "/state")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	m.SetError("")
	state := env.state(t, "/state")
	require.Len(t, state.Votes, 1)
	assert.True(t, state.Votes[0].Value.Equal(models.NumberValue(5)))
}

type sseEvent struct {
	name string
	data string
}

func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var evt sseEvent
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			return evt
		case strings.HasPrefix(line, "event: "):
			evt.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			evt.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func decodeEventState(t *testing.T, evt sseEvent) models.SessionState {
	t.Helper()
	require.Equal(t, eventUpdate, evt.name)
	var state models.SessionState
	require.NoError(t, json.Unmarshal([]byte(evt.data), &state))
	return state
}

func TestEventStream(t *testing.T) {
	env := newMemoryEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.server.URL+"/events?userId=u1", nil)
	require.NoError(t, err)
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	reader := bufio.NewReader(resp.Body)
	initial := decodeEventState(t, readEvent(t, reader))
	assert.Equal(t, testDefaultRoom, initial.Code)
	assert.Empty(t, initial.Votes)

	res, _ := env.post(t, "/vote", `{"userId":"u1","userName":"Alice","value":13}`)
	require.Equal(t, http.StatusOK, res.StatusCode)

	update := decodeEventState(t, readEvent(t, reader))
	require.Len(t, update.Votes, 1)
	assert.True(t, update.Votes[0].Value.Equal(models.NumberValue(13)))

	require.NoError(t, env.clock.BlockUntilContext(ctx, 1))
	env.clock.Advance(DefaultHeartbeatInterval)

	ping := readEvent(t, reader)
	assert.Equal(t, sseEvent{name: eventPing, data: "ping"}, ping)

	assert.Equal(t, 1, env.hub.Stats().Subscribers)
	cancel()
	assert.Eventually(t, func() bool {
		return env.hub.Stats().Subscribers == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEventStream_UnknownRoom(t *testing.T) {
	env := newMemoryEnv(t)

	resp, _ := env.get(t, "/rooms/ZZZ999/events")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Zero(t, env.hub.Stats().Subscribers)
}

func TestEventStream_RoomsAreIsolated(t *testing.T) {
	env := newMemoryEnv(t)
	env.post(t, "/vote?room=TEAM42", `{"userId":"u1","userName":"Alice","value":1}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.server.URL+"/rooms/TEAM42/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	initial := decodeEventState(t, readEvent(t, reader))
	assert.Equal(t, "TEAM42", initial.Code)
	require.Len(t, initial.Votes, 1)

	env.post(t, "/vote", `{"userId":"u9","userName":"Other","value":2}`)
	env.post(t, "/vote?room=TEAM42", `{"userId":"u2","userName":"Bob","value":3}`)

	next := decodeEventState(t, readEvent(t, reader))
	assert.Equal(t, "TEAM42", next.Code)
	assert.Len(t, next.Votes, 2)
}

func TestWebSocket(t *testing.T) {
	env := newMemoryEnv(t)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws?userId=u1"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	readFrame := func() Frame {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var frame Frame
		require.NoError(t, conn.ReadJSON(&frame))
		return frame
	}

	first := readFrame()
	assert.Equal(t, eventUpdate, first.Event)
	assert.Equal(t, testDefaultRoom, first.Data.Code)

	assert.Eventually(t, func() bool {
		return env.service.GetStats()["total_connections"] == 1
	}, time.Second, 10*time.Millisecond)

	res, _ := env.post(t, "/vote", `{"userId":"u1","userName":"Alice","value":"?"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)

	next := readFrame()
	require.Len(t, next.Data.Votes, 1)
	assert.True(t, next.Data.Votes[0].Value.Equal(models.TokenValue("?")))

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.Eventually(t, func() bool {
		return env.service.GetStats()["total_connections"] == 0 && env.hub.Stats().Subscribers == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_UnknownRoom(t *testing.T) {
	env := newMemoryEnv(t)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/rooms/ZZZ999/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
