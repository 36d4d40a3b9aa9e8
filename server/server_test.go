package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"chesslives/bots"
	"chesslives/meta"
	"chesslives/rules"
	"chesslives/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	srv    *Server
	router *gin.Engine
	store  *meta.FileStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := meta.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	srv := New(Options{Backend: rules.Dragon, Seed: 1}, meta.NewLedger(store, ""))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, router: srv.Router(), store: store}
}

func (f *fixture) do(t *testing.T, method, path, body, player string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if player != "" {
		req.Header.Set(PlayerHeader, player)
	}
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)
	return resp
}

func decode(t *testing.T, resp *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(resp.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", resp.Body.String(), err)
	}
}

type created struct {
	Game session.Snapshot `json:"game"`
	Meta metaView         `json:"meta"`
}

func (f *fixture) newGame(t *testing.T, player string) created {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/api/games", "", player)
	if resp.Code != http.StatusCreated {
		t.Fatalf("create game: %d %s", resp.Code, resp.Body.String())
	}
	var out created
	decode(t, resp, &out)
	return out
}

func (f *fixture) waitPly(t *testing.T, id string, ply int) session.Snapshot {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		resp := f.do(t, http.MethodGet, "/api/games/"+id, "", "")
		var snap session.Snapshot
		decode(t, resp, &snap)
		if snap.Ply == ply && !snap.Thinking {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("game %s never reached ply %d: %+v", id, ply, snap)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/health", "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestCreateGameAndPlay(t *testing.T) {
	f := newFixture(t)
	g := f.newGame(t, "")
	if g.Game.Ply != 0 || g.Game.Turn != "w" || len(g.Game.LegalMoves) != 20 {
		t.Fatalf("unexpected new game: %+v", g.Game)
	}
	if g.Meta.Phase != meta.PhasePlaying || g.Meta.Lives != 5 {
		t.Fatalf("unexpected meta: %+v", g.Meta)
	}

	resp := f.do(t, http.MethodPost, "/api/games/"+g.Game.ID+"/moves", `{"move":"e2e4"}`, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("move: %d %s", resp.Code, resp.Body.String())
	}
	snap := f.waitPly(t, g.Game.ID, 2)
	if snap.Moves[0] != "e2e4" || snap.Turn != "w" {
		t.Fatalf("unexpected state after reply: %+v", snap)
	}

	resp = f.do(t, http.MethodPost, "/api/games/"+g.Game.ID+"/undo", "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("undo: %d %s", resp.Code, resp.Body.String())
	}
	resp = f.do(t, http.MethodPost, "/api/games/"+g.Game.ID+"/redo", "", "")
	decode(t, resp, &snap)
	if resp.Code != http.StatusOK || snap.Ply != 2 {
		t.Fatalf("redo: %d %+v", resp.Code, snap)
	}
}

func TestGameErrors(t *testing.T) {
	f := newFixture(t)
	g := f.newGame(t, "alice")
	base := "/api/games/" + g.Game.ID

	cases := []struct {
		method, path, body, player string
		want                       int
	}{
		{http.MethodPost, base + "/moves", `{"move":"e2e5"}`, "alice", http.StatusBadRequest},
		{http.MethodPost, base + "/moves", `{}`, "alice", http.StatusBadRequest},
		{http.MethodPost, base + "/undo", "", "alice", http.StatusConflict},
		{http.MethodPost, base + "/redo", "", "alice", http.StatusConflict},
		{http.MethodGet, base, "", "bob", http.StatusNotFound},
		{http.MethodGet, "/api/games/nope", "", "alice", http.StatusNotFound},
		{http.MethodGet, "/api/meta", "", "../x", http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp := f.do(t, tc.method, tc.path, tc.body, tc.player)
		if resp.Code != tc.want {
			t.Fatalf("%s %s as %q: expected %d, got %d %s", tc.method, tc.path, tc.player, tc.want, resp.Code, resp.Body.String())
		}
	}
}

func TestNewGameNeedsLives(t *testing.T) {
	f := newFixture(t)
	st := meta.NewState()
	st.Lives = 0
	if err := f.store.Save(context.Background(), "broke", st); err != nil {
		t.Fatalf("save: %v", err)
	}
	resp := f.do(t, http.MethodPost, "/api/games", "", "broke")
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", resp.Code, resp.Body.String())
	}
}

func TestDeleteGame(t *testing.T) {
	f := newFixture(t)
	g := f.newGame(t, "")
	if resp := f.do(t, http.MethodDelete, "/api/games/"+g.Game.ID, "", ""); resp.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", resp.Code)
	}
	if resp := f.do(t, http.MethodGet, "/api/games/"+g.Game.ID, "", ""); resp.Code != http.StatusNotFound {
		t.Fatalf("deleted game still served: %d", resp.Code)
	}
}

func TestEvaluate(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/api/evaluate", `{"fen":"`+rules.StartFEN+`"}`, "")
	var out struct {
		Score int `json:"score"`
	}
	decode(t, resp, &out)
	if resp.Code != http.StatusOK || out.Score != -100 {
		t.Fatalf("evaluate start: %d %+v", resp.Code, out)
	}

	resp = f.do(t, http.MethodPost, "/api/evaluate", `{"fen":"`+rules.StartFEN+`","backend":"notnil"}`, "")
	decode(t, resp, &out)
	if resp.Code != http.StatusOK || out.Score != -100 {
		t.Fatalf("evaluate on notnil: %d %+v", resp.Code, out)
	}

	if resp := f.do(t, http.MethodPost, "/api/evaluate", `{"fen":"garbage"}`, ""); resp.Code != http.StatusBadRequest {
		t.Fatalf("bad fen: expected 400, got %d", resp.Code)
	}
}

func TestBestMove(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/api/move",
		`{"fen":"k7/8/8/8/8/8/1r3PPP/6K1 b - - 0 1","difficulty":"grandmaster"}`, "")
	var out struct {
		Move string `json:"move"`
	}
	decode(t, resp, &out)
	if resp.Code != http.StatusOK || out.Move != "b2b1" {
		t.Fatalf("expected b2b1, got %d %+v", resp.Code, out)
	}

	resp = f.do(t, http.MethodPost, "/api/move", `{"fen":"k7/8/1Q6/8/8/8/8/7K b - - 0 1"}`, "")
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("stalemate: expected 422, got %d %s", resp.Code, resp.Body.String())
	}
	resp = f.do(t, http.MethodPost, "/api/move", `{"fen":"`+rules.StartFEN+`","difficulty":"godlike"}`, "")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("bad difficulty: expected 400, got %d", resp.Code)
	}
}

func TestMetaEndpoints(t *testing.T) {
	f := newFixture(t)
	var view metaView
	resp := f.do(t, http.MethodGet, "/api/meta", "", "dana")
	decode(t, resp, &view)
	if resp.Code != http.StatusOK || view.Lives != 5 || view.Multiplier != 1 || view.CanWatchAd {
		t.Fatalf("initial meta: %d %+v", resp.Code, view)
	}

	g := f.newGame(t, "dana")
	resp = f.do(t, http.MethodPut, "/api/meta/difficulty", `{"difficulty":"advanced"}`, "dana")
	decode(t, resp, &view)
	if resp.Code != http.StatusOK || view.Difficulty != bots.Advanced || view.Multiplier != 3 {
		t.Fatalf("set difficulty: %d %+v", resp.Code, view)
	}
	var snap session.Snapshot
	decode(t, f.do(t, http.MethodGet, "/api/games/"+g.Game.ID, "", "dana"), &snap)
	if snap.Difficulty != bots.Advanced {
		t.Fatalf("live game kept difficulty %s", snap.Difficulty)
	}

	if resp := f.do(t, http.MethodPut, "/api/meta/difficulty", `{"difficulty":"hard"}`, "dana"); resp.Code != http.StatusBadRequest {
		t.Fatalf("bad difficulty: expected 400, got %d", resp.Code)
	}
	if resp := f.do(t, http.MethodPost, "/api/meta/ad", "", "dana"); resp.Code != http.StatusConflict {
		t.Fatalf("ad with full lives: expected 409, got %d", resp.Code)
	}

	f.srv.recordResult(g.Game.ID, "dana", meta.Lose)
	resp = f.do(t, http.MethodPost, "/api/meta/ad", "", "dana")
	decode(t, resp, &view)
	if resp.Code != http.StatusOK || view.Lives != 5 || view.CanWatchAd {
		t.Fatalf("watch ad: %d %+v", resp.Code, view)
	}
}

func TestRecordResultScoresByDifficulty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := meta.NewState()
	st.SetDifficulty(bots.Grandmaster)
	if err := f.store.Save(ctx, "erin", st); err != nil {
		t.Fatalf("save: %v", err)
	}
	f.srv.recordResult("g1", "erin", meta.Win)
	got, err := f.store.Load(ctx, "erin")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Score != 500 || got.Phase != meta.PhaseGameOver {
		t.Fatalf("expected 500 points and game over, got %+v", got)
	}
}

func TestWebsocketStreamsSnapshots(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.router)
	defer ts.Close()
	g := f.newGame(t, "")

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/games/" + g.Game.ID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	read := func() (string, session.Snapshot) {
		t.Helper()
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		var snap session.Snapshot
		if msg.Type == "snapshot" {
			if err := json.Unmarshal(msg.Payload, &snap); err != nil {
				t.Fatalf("payload: %v", err)
			}
		}
		return msg.Type, snap
	}

	if typ, snap := read(); typ != "snapshot" || snap.Ply != 0 {
		t.Fatalf("first message: %s %+v", typ, snap)
	}

	resp := f.do(t, http.MethodPost, "/api/games/"+g.Game.ID+"/moves", `{"move":"d2d4"}`, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("move: %d %s", resp.Code, resp.Body.String())
	}
	for {
		typ, snap := read()
		if typ == "snapshot" && snap.Ply == 2 {
			break
		}
	}

	if err := conn.WriteJSON(wsMessage{Type: "request_status"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if typ, snap := read(); typ != "snapshot" || snap.Ply != 2 {
		t.Fatalf("status reply: %s %+v", typ, snap)
	}

	if resp := f.do(t, http.MethodDelete, "/api/games/"+g.Game.ID, "", ""); resp.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", resp.Code)
	}
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.CloseNormalClosure || closeErr.Text != "game deleted" {
		t.Fatalf("expected a normal close naming the deleted game, got %v", err)
	}
}

func TestWebsocketPingsIdleWatchers(t *testing.T) {
	f := newFixture(t)
	f.srv.hub.pingPeriod = 200 * time.Millisecond
	ts := httptest.NewServer(f.router)
	defer ts.Close()
	g := f.newGame(t, "")

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/games/" + g.Game.ID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	pings := make(chan struct{}, 8)
	conn.SetPingHandler(func(data string) error {
		select {
		case pings <- struct{}{}:
		default:
		}
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	// Control frames are only handled while reading.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for i := 0; i < 3; i++ {
		select {
		case <-pings:
		case <-time.After(5 * time.Second):
			t.Fatalf("ping %d never arrived", i+1)
		}
	}
	if n := f.srv.hub.Clients(g.Game.ID); n != 1 {
		t.Fatalf("answering pings should keep the watcher, clients=%d", n)
	}
}

func TestNewPlayerStartsAtLedgerDifficulty(t *testing.T) {
	store, err := meta.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	srv := New(Options{Backend: rules.Dragon, Seed: 1}, meta.NewLedger(store, bots.Intermediate))
	t.Cleanup(srv.Close)
	f := &fixture{srv: srv, router: srv.Router(), store: store}

	var view metaView
	resp := f.do(t, http.MethodGet, "/api/meta", "", "fred")
	decode(t, resp, &view)
	if resp.Code != http.StatusOK || view.Difficulty != bots.Intermediate || view.Multiplier != 2 {
		t.Fatalf("new player meta: %d %+v", resp.Code, view)
	}
}
