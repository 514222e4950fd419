package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
	"github.com/mcdev12/quizrooms/go/internal/models"
	"github.com/mcdev12/quizrooms/go/internal/quiz"
	"github.com/mcdev12/quizrooms/go/internal/quiz/events"
)

// questionStore serves the same question forever and never has stored rooms.
type questionStore struct {
	mu   sync.Mutex
	wins map[int64]int
}

func (s *questionStore) FindRoomByCode(context.Context, string) (*models.Room, error) {
	return nil, models.ErrNotFound
}

func (s *questionStore) UpdateRoomSettings(context.Context, string, models.RoomSettingsPatch) error {
	return nil
}

func (s *questionStore) FindRandomQuestion(context.Context, quiz.QuestionFilter) (*models.Question, error) {
	return &models.Question{
		ID:           7,
		Kind:         models.QuestionKindPlain,
		Prompt:       "Capital of France?",
		Answer:       "Paris",
		Alternatives: []string{"paname"},
		Status:       models.QuestionStatusApproved,
	}, nil
}

func (s *questionStore) IncrementUserWins(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wins[userID]++
	return nil
}

func (s *questionStore) UpdateRoomOwner(context.Context, string, *int64) error { return nil }

type testServer struct {
	srv     *httptest.Server
	manager *ConnectionManager
	reg     *quiz.Registry
}

func newTestServer(t *testing.T, tweak func(*ConnectionConfig)) *testServer {
	t.Helper()

	cfg := DefaultConnectionConfig()
	if tweak != nil {
		tweak(&cfg)
	}
	cm := NewConnectionManager(cfg)
	reg := quiz.NewRegistry(quiz.Deps{
		Store:         &questionStore{wins: make(map[int64]int)},
		Emitter:       cm,
		PublicBaseURL: "https://quiz.example",
	})
	NewDispatcher(cm, reg, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go cm.Start(ctx)

	router := httprouter.New()
	NewWebSocketHandler(cm).RegisterRoutes(router)
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		reg.Close()
		cancel()
		srv.Close()
	})
	return &testServer{srv: srv, manager: cm, reg: reg}
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
	seq  int
}

func (ts *testServer) dial(t *testing.T, header http.Header) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn}
}

// inbound is either a RoomEvent or an AckFrame.
type inbound struct {
	Type     string          `json:"type"`
	RoomCode string          `json:"room_code"`
	AckID    string          `json:"ack_id"`
	Data     json.RawMessage `json:"data"`
}

func (c *client) emit(event string, data any) string {
	c.t.Helper()
	c.seq++
	id := fmt.Sprintf("m%d", c.seq)
	raw, err := json.Marshal(data)
	if err != nil {
		c.t.Fatal(err)
	}
	if err := c.conn.WriteJSON(ClientFrame{ID: id, Event: event, Data: raw}); err != nil {
		c.t.Fatalf("write %s: %v", event, err)
	}
	return id
}

func (c *client) next() (inbound, error) {
	c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg inbound
	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.t.Fatalf("decode %s: %v", raw, err)
	}
	return msg, nil
}

// waitFor reads until a message of type typ arrives.
func (c *client) waitFor(typ string) inbound {
	c.t.Helper()
	for {
		msg, err := c.next()
		if err != nil {
			c.t.Fatalf("waiting for %s: %v", typ, err)
		}
		if msg.Type == typ {
			return msg
		}
	}
}

// call emits a frame and returns its ack data.
func (c *client) call(event string, data any) map[string]any {
	c.t.Helper()
	id := c.emit(event, data)
	for {
		msg, err := c.next()
		if err != nil {
			c.t.Fatalf("waiting for ack of %s: %v", event, err)
		}
		if msg.Type == ackType && msg.AckID == id {
			var out map[string]any
			if err := json.Unmarshal(msg.Data, &out); err != nil {
				c.t.Fatal(err)
			}
			return out
		}
	}
}

func requireOK(t *testing.T, a map[string]any) {
	t.Helper()
	if a["ok"] != true {
		t.Fatalf("ack = %v, want ok", a)
	}
}

func requireError(t *testing.T, a map[string]any, code string) {
	t.Helper()
	if a["ok"] != false || a["error"] != code {
		t.Fatalf("ack = %v, want error %q", a, code)
	}
}

func (c *client) joinAs(userID int64, name string) {
	c.t.Helper()
	requireOK(c.t, c.call(EventAuthHello, map[string]any{"userId": userID}))
	requireOK(c.t, c.call(EventRoomJoin, map[string]any{"code": "abc123", "displayName": name}))
}

func TestJoinRequiresIdentity(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.dial(t, nil)

	requireError(t, c.call(EventRoomJoin, map[string]any{"code": "ABC123", "displayName": "alice"}), "not_authenticated")
}

func TestHelloThenJoin(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.dial(t, nil)

	a := c.call(EventAuthHello, map[string]any{"userId": 1})
	requireOK(t, a)
	if a["userId"] != float64(1) {
		t.Errorf("hello ack = %v", a)
	}

	id := c.emit(EventRoomJoin, map[string]any{"code": "abc123", "displayName": "alice"})
	update := c.waitFor(events.RoomUpdate)
	if update.RoomCode != "ABC123" {
		t.Errorf("room_code = %q", update.RoomCode)
	}
	var state events.RoomStatePayload
	if err := json.Unmarshal(update.Data, &state); err != nil {
		t.Fatal(err)
	}
	if len(state.Players) != 1 || !state.Players[0].IsHost {
		t.Errorf("players = %+v", state.Players)
	}

	ackMsg := c.waitFor(ackType)
	if ackMsg.AckID != id {
		t.Errorf("ack_id = %q, want %q", ackMsg.AckID, id)
	}
}

func TestJoinWithUpgradeIdentity(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.dial(t, http.Header{"X-User-ID": []string{"42"}})

	a := c.call(EventRoomJoin, map[string]any{"code": "ABC123", "displayName": "zed"})
	requireOK(t, a)
	if a["code"] != "ABC123" {
		t.Errorf("join ack = %v", a)
	}
}

func TestRejectsBadUpgradeIdentity(t *testing.T) {
	ts := newTestServer(t, nil)
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws?user_id=abc"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("resp = %v", resp)
	}
}

func TestAckErrorCodes(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.dial(t, nil)

	requireError(t, c.call("room:dance", nil), "unknown_event")
	requireError(t, c.call(EventAuthHello, map[string]any{"userId": 0}), "invalid_userId")
	requireOK(t, c.call(EventAuthHello, map[string]any{"userId": 3}))
	requireError(t, c.call(EventRoomJoin, map[string]any{"code": "abc", "displayName": "x"}), "invalid_code")
	requireError(t, c.call(EventRoomJoin, map[string]any{"code": "ABC123", "displayName": "  "}), "invalid_displayName")
	requireError(t, c.call(EventRoomStart, map[string]any{"code": "ZZZ999"}), "room_not_found")
	requireError(t, c.call(EventRoomJoin, "not an object"), "invalid_data")
}

func TestNonHostCannotStart(t *testing.T) {
	ts := newTestServer(t, nil)
	host := ts.dial(t, nil)
	host.joinAs(1, "alice")
	guest := ts.dial(t, nil)
	guest.joinAs(2, "bob")

	requireError(t, guest.call(EventRoomStart, map[string]any{"code": "ABC123"}), "not_host")
}

func TestQuizRoundOverSockets(t *testing.T) {
	ts := newTestServer(t, nil)
	host := ts.dial(t, nil)
	host.joinAs(1, "alice")
	guest := ts.dial(t, nil)
	guest.joinAs(2, "bob")

	requireOK(t, host.call(EventRoomStart, map[string]any{"code": "ABC123"}))

	q := guest.waitFor(events.RoundQuestion)
	var payload events.RoundQuestionPayload
	if err := json.Unmarshal(q.Data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Question.Prompt != "Capital of France?" {
		t.Errorf("question = %+v", payload.Question)
	}
	if strings.Contains(string(q.Data), "Paris") {
		t.Error("question payload leaks the answer")
	}

	a := guest.call(EventRoundAnswer, map[string]any{"code": "ABC123", "text": "  PARIS "})
	requireOK(t, a)
	if a["correct"] != true {
		t.Errorf("answer ack = %v", a)
	}

	a = host.call(EventRoundAnswer, map[string]any{"code": "ABC123", "text": "Lyon"})
	requireOK(t, a)
	if a["correct"] != false {
		t.Errorf("wrong answer ack = %v", a)
	}
}

func TestKickSendsEventBeforeClosing(t *testing.T) {
	ts := newTestServer(t, nil)
	host := ts.dial(t, nil)
	host.joinAs(1, "alice")
	guest := ts.dial(t, nil)
	guest.joinAs(2, "bob")

	requireOK(t, host.call(EventRoomKick, map[string]any{"code": "ABC123", "userId": 2}))

	guest.waitFor(events.RoomKicked)
	for {
		_, err := guest.next()
		if err == nil {
			continue
		}
		var closeErr *websocket.CloseError
		if !errors.As(err, &closeErr) {
			t.Fatalf("read err = %v, want a close frame", err)
		}
		break
	}
}

func TestRateLimitedFrames(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ts := newTestServer(t, func(cfg *ConnectionConfig) {
		cfg.Clock = clock
		cfg.RateLimit = 2
		cfg.RateInterval = time.Minute
	})
	c := ts.dial(t, nil)

	requireOK(t, c.call(EventAuthHello, map[string]any{"userId": 1}))
	requireOK(t, c.call(EventAuthHello, map[string]any{"userId": 1}))
	requireError(t, c.call(EventAuthHello, map[string]any{"userId": 1}), "rate_limited")

	clock.Advance(time.Minute)
	requireOK(t, c.call(EventAuthHello, map[string]any{"userId": 1}))
}

func TestDisconnectReleasesSeat(t *testing.T) {
	ts := newTestServer(t, nil)
	host := ts.dial(t, nil)
	host.joinAs(1, "alice")
	guest := ts.dial(t, nil)
	guest.joinAs(2, "bob")

	guest.conn.Close()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		r, err := ts.reg.Lookup("ABC123")
		if err != nil {
			t.Fatal(err)
		}
		if r.Snapshot().ConnectedCount() == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("guest still connected after closing the socket")
}

func TestStatsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.dial(t, nil)
	c.joinAs(1, "alice")

	resp, err := http.Get(ts.srv.URL + "/ws/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var stats ConnectionStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalConnections != 1 || stats.ActiveRooms != 1 || stats.RoomConnections["ABC123"] != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestOriginPolicy(t *testing.T) {
	p := NewOriginPolicy([]string{"https://Quiz.Example", "not a url", ""})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://quiz.example", true},
		{"HTTPS://QUIZ.EXAMPLE", true},
		{"http://quiz.example", false},
		{"https://evil.example", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := p.Check(r); got != tt.want {
			t.Errorf("Check(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "https://anything.example")
	if !NewOriginPolicy([]string{"*"}).Check(r) {
		t.Error("wildcard policy should allow every origin")
	}
}

func TestAckCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&quiz.ValidationError{Field: "display_name"}, "invalid_displayName"},
		{&quiz.ValidationError{Field: "code"}, "invalid_code"},
		{fmt.Errorf("wrapped: %w", quiz.ErrRoomFull), "room_full"},
		{quiz.ErrBanned, "banned"},
		{quiz.ErrTargetNotConnected, "target_not_connected"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		if got := ackCode(tt.err); got != tt.want {
			t.Errorf("ackCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestRateLimiterRefills(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := newRateLimiter(clock, 3, 3*time.Second)

	for i := 0; i < 3; i++ {
		if !rl.allow() {
			t.Fatalf("call %d rejected", i)
		}
	}
	if rl.allow() {
		t.Fatal("bucket should be empty")
	}
	clock.Advance(time.Second)
	if !rl.allow() {
		t.Fatal("one token should have refilled")
	}
	if rl.allow() {
		t.Fatal("only one token should have refilled")
	}
}
