package quiz

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/mcdev12/quizrooms/go/internal/models"
	"github.com/mcdev12/quizrooms/go/internal/quiz/events"
)

func TestJoinFirstPlayerBecomesHost(t *testing.T) {
	h := newHarness(t)
	r, err := h.reg.GetOrCreateEphemeral("zzz999", 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Join("c7", 7, "gina", "a.png"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	s := r.Snapshot()
	if s.HostConnID != "c7" || s.HostUserID != 7 {
		t.Errorf("host = (%q, %d), want (c7, 7)", s.HostConnID, s.HostUserID)
	}
	state := h.emitter.lastBroadcast(t, events.RoomUpdate).(events.RoomStatePayload)
	if len(state.Players) != 1 || !state.Players[0].IsHost {
		t.Errorf("state players = %+v, want single host", state.Players)
	}
}

func TestJoinValidation(t *testing.T) {
	h := newHarness(t)
	r := h.lobby(t)

	tests := []struct {
		name  string
		conn  string
		user  int64
		dname string
		field string
	}{
		{"missing connection", "", 5, "eve", "connection"},
		{"zero user", "c5", 0, "eve", "user_id"},
		{"blank name", "c5", 5, "   ", "display_name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Join(tt.conn, tt.user, tt.dname, "")
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.field {
				t.Fatalf("err = %v, want validation error on %s", err, tt.field)
			}
		})
	}
}

func TestJoinRoomFullButReconnectAllowed(t *testing.T) {
	h := newHarness(t)
	r := h.lobby(t, "bob")
	h.configure(t, r, map[string]any{"maxPlayers": 2})

	if err := r.Join("c3", 3, "carol", ""); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("third join err = %v, want ErrRoomFull", err)
	}

	// bob reconnects on a new connection while the room is full.
	if err := r.Join("c2-new", 2, "bob", ""); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	s := r.Snapshot()
	if len(s.Players) != 2 {
		t.Fatalf("roster size = %d, want 2", len(s.Players))
	}
	if s.Players[1].ConnID != "c2-new" {
		t.Errorf("bob conn = %q, want c2-new", s.Players[1].ConnID)
	}
}

func TestJoinReconnectKeepsScore(t *testing.T) {
	h := newHarness(t)
	h.store.questions = []*models.Question{question(1, "Capital of France?", "Paris")}
	r := h.lobby(t, "bob", "carol")

	if err := r.Start("c1"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.SubmitAnswer("c2", "paris"); err != nil {
		t.Fatal(err)
	}
	r.OnDisconnect("c2")
	h.emitter.reset()

	if err := r.Join("c2b", 2, "bob", ""); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if got := scoreOf(t, r, 2); got != 10 {
		t.Errorf("score after rejoin = %d, want 10", got)
	}

	// The live round is replayed to the joiner only.
	var sent []string
	for _, m := range h.emitter.all() {
		if m.kind == "send" && m.target == "c2b" {
			sent = append(sent, m.event)
		}
	}
	want := []string{events.RoundQuestion, events.RoundGuesses}
	if !reflect.DeepEqual(sent, want) {
		t.Errorf("events sent to rejoiner = %v, want %v", sent, want)
	}
}

func TestBannedNameIsCaseInsensitive(t *testing.T) {
	h := newHarness(t)
	r := h.lobby(t, "bob")

	if err := r.Kick("c1", 2, true); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if err := r.Join("c9", 9, "BOB", ""); !errors.Is(err, ErrBanned) {
		t.Fatalf("join as BOB err = %v, want ErrBanned", err)
	}
	if got := r.Snapshot().Settings.ExcludedNames; !reflect.DeepEqual(got, []string{"bob"}) {
		t.Errorf("excluded names = %v, want [bob]", got)
	}
}

func TestKickNotifiesThenDisconnects(t *testing.T) {
	h := newHarness(t)
	r := h.lobby(t, "bob")
	h.emitter.reset()

	if err := r.Kick("c1", 2, false); err != nil {
		t.Fatalf("kick: %v", err)
	}

	var order []string
	for _, m := range h.emitter.all() {
		if m.target == "c2" {
			order = append(order, m.kind+":"+m.event)
		}
	}
	want := []string{"send:" + events.RoomKicked, "disconnect:"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("target saw %v, want %v", order, want)
	}
	if got := r.Snapshot().ConnectedCount(); got != 1 {
		t.Errorf("connected = %d, want 1", got)
	}
	if len(r.Snapshot().Settings.ExcludedNames) != 0 {
		t.Error("plain kick must not ban")
	}
}

func TestKickUnknownUser(t *testing.T) {
	h := newHarness(t)
	r := h.lobby(t, "bob")
	if err := r.Kick("c1", 42, false); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestBanPersistsExcludedNames(t *testing.T) {
	h := newHarness(t)
	owner := int64(1)
	h.store.rooms["ROOM01"] = &models.Room{
		Code:     "ROOM01",
		Name:     "Friday quiz",
		OwnerID:  &owner,
		Settings: DefaultSettings(),
	}
	r, err := h.reg.Ensure(context.Background(), "room01")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := r.Join("c1", 1, "alice", ""); err != nil {
		t.Fatal(err)
	}
	if err := r.Join("c2", 2, "bob", ""); err != nil {
		t.Fatal(err)
	}

	if err := r.Kick("c1", 2, true); err != nil {
		t.Fatal(err)
	}
	if err := r.Kick("c1", 2, true); err != nil {
		t.Fatal(err)
	}

	if n := h.store.count("UpdateRoomSettings"); n != 1 {
		t.Fatalf("settings writes = %d, want 1 (no duplicate ban)", n)
	}
	if got := h.store.patches[0].ExcludedNames; !reflect.DeepEqual(got, []string{"bob"}) {
		t.Errorf("persisted excluded names = %v, want [bob]", got)
	}
}

func TestUnbanIsIdempotent(t *testing.T) {
	h := newHarness(t)
	r := h.lobby(t, "bob")
	if err := r.Kick("c1", 2, true); err != nil {
		t.Fatal(err)
	}

	names, err := r.Unban("c1", "BoB")
	if err != nil {
		t.Fatalf("unban: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("names after unban = %v, want empty", names)
	}
	h.emitter.reset()

	names, err = r.Unban("c1", "bob")
	if err != nil {
		t.Fatalf("second unban: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("names after second unban = %v, want empty", names)
	}
	if n := len(h.emitter.broadcasts(events.RoomUpdate)); n != 0 {
		t.Errorf("no-op unban broadcast %d updates", n)
	}
	if err := r.Join("c2", 2, "bob", ""); err != nil {
		t.Errorf("bob should be able to rejoin: %v", err)
	}
}

func TestNotHostLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t)
	r := h.lobby(t, "bob", "carol")
	before := r.Snapshot()
	h.emitter.reset()

	ops := map[string]func() error{
		"kick":      func() error { return r.Kick("c2", 3, false) },
		"ban":       func() error { return r.Kick("c2", 3, true) },
		"unban":     func() error { _, err := r.Unban("c2", "x"); return err },
		"transfer":  func() error { return r.TransferHost("c2", 2) },
		"configure": func() error { _, err := r.UpdateParameters("c2", map[string]any{"targetScore": 10}); return err },
		"start":     func() error { return r.Start("c2") },
		"restart":   func() error { return r.Restart("c2") },
		"lobby":     func() error { _, err := r.ReturnToLobby("c2"); return err },
	}
	for name, op := range ops {
		if err := op(); !errors.Is(err, ErrNotHost) {
			t.Errorf("%s: err = %v, want ErrNotHost", name, err)
		}
	}

	if after := r.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Errorf("state changed:\nbefore %+v\nafter  %+v", before, after)
	}
	if got := h.emitter.all(); len(got) != 0 {
		t.Errorf("rejected operations emitted %v", got)
	}
	if n := h.store.count("FindRandomQuestion"); n != 0 {
		t.Errorf("rejected start drew %d questions", n)
	}
}

func TestLeaveMovesHostButDisconnectDoesNot(t *testing.T) {
	h := newHarness(t)
	r := h.lobby(t, "bob")

	r.OnDisconnect("c1")
	s := r.Snapshot()
	if s.HostConnID != "" || s.HostUserID != 1 {
		t.Fatalf("after disconnect host = (%q, %d), want (\"\", 1)", s.HostConnID, s.HostUserID)
	}

	// alice comes back and gets host authority again.
	if err := r.Join("c1b", 1, "alice", ""); err != nil {
		t.Fatal(err)
	}
	if s := r.Snapshot(); s.HostConnID != "c1b" {
		t.Fatalf("host conn after reconnect = %q, want c1b", s.HostConnID)
	}

	if err := r.Leave("c1b"); err != nil {
		t.Fatal(err)
	}
	s = r.Snapshot()
	if s.HostConnID != "c2" || s.HostUserID != 2 {
		t.Errorf("after leave host = (%q, %d), want (c2, 2)", s.HostConnID, s.HostUserID)
	}
	if len(s.Players) != 2 {
		t.Errorf("leave must keep the roster entry, got %d players", len(s.Players))
	}
}

func TestLastLeaverClearsHost(t *testing.T) {
	h := newHarness(t)
	r := h.lobby(t)
	if err := r.Leave("c1"); err != nil {
		t.Fatal(err)
	}
	if s := r.Snapshot(); s.HostConnID != "" || s.HostUserID != 0 {
		t.Errorf("host = (%q, %d), want cleared", s.HostConnID, s.HostUserID)
	}
}

func TestTransferHost(t *testing.T) {
	h := newHarness(t)
	r := h.lobby(t, "bob", "carol")
	r.OnDisconnect("c3")

	if err := r.TransferHost("c1", 3); !errors.Is(err, ErrTargetNotConnected) {
		t.Errorf("transfer to disconnected: err = %v", err)
	}
	if err := r.TransferHost("c1", 99); !errors.Is(err, ErrTargetNotConnected) {
		t.Errorf("transfer to unknown: err = %v", err)
	}
	if err := r.TransferHost("c1", 2); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if s := r.Snapshot(); s.HostConnID != "c2" || s.HostUserID != 2 {
		t.Errorf("host = (%q, %d), want (c2, 2)", s.HostConnID, s.HostUserID)
	}
	if err := r.Start("c1"); !errors.Is(err, ErrNotHost) {
		t.Errorf("old host start err = %v, want ErrNotHost", err)
	}
}

func TestUpdateParametersClampsAndForces(t *testing.T) {
	h := newHarness(t)
	r := h.lobby(t)

	got, err := r.UpdateParameters("c1", map[string]any{
		"maxPlayers":          500,
		"answerWindowSeconds": "2",
		"targetScore":         -4,
		"scoring":             "FIXED",
		"showGuesses":         "no",
		"visibility":          "private",
		"approvedOnly":        false,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.MaxPlayers != MaxPlayers || got.AnswerWindowSeconds != MinAnswerWindow || got.TargetScore != MinTargetScore {
		t.Errorf("bounds not clamped: %+v", got)
	}
	if got.Scoring != models.ScoringFixed || got.ShowGuesses || got.Visibility != models.VisibilityPrivate {
		t.Errorf("coercion wrong: %+v", got)
	}
	if !got.ApprovedOnly || got.PreRoundDelaySeconds != 0 {
		t.Errorf("fixed fields not forced: %+v", got)
	}

	if _, err := r.UpdateParameters("c1", nil); err == nil {
		t.Error("nil patch should be rejected")
	}
}

func TestStartReconcilesStoredSettings(t *testing.T) {
	h := newHarness(t)
	h.store.questions = []*models.Question{question(1, "q", "a")}
	h.store.rooms["ROOM02"] = &models.Room{Code: "ROOM02", Settings: DefaultSettings()}

	r, err := h.reg.Ensure(context.Background(), "ROOM02")
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Join("c1", 1, "alice", ""); err != nil {
		t.Fatal(err)
	}

	// Edited behind the room's back.
	h.store.mu.Lock()
	h.store.rooms["ROOM02"].Settings.TargetScore = 30
	h.store.rooms["ROOM02"].Settings.Scoring = models.ScoringFixed
	h.store.rooms["ROOM02"].Settings.Categories = []int64{4, 4, 7}
	h.store.mu.Unlock()

	if err := r.Start("c1"); err != nil {
		t.Fatal(err)
	}
	s := r.Snapshot()
	if s.Settings.TargetScore != 30 || s.Settings.Scoring != models.ScoringFixed {
		t.Errorf("settings not reconciled: %+v", s.Settings)
	}
	if got := h.store.filters[0].CategoryIDs; !reflect.DeepEqual(got, []int64{4, 7}) {
		t.Errorf("draw categories = %v, want [4 7]", got)
	}
}

func TestReturnToLobby(t *testing.T) {
	h := newHarness(t)
	h.store.questions = []*models.Question{question(1, "q", "a")}
	r := h.lobby(t, "bob")
	if err := r.Start("c1"); err != nil {
		t.Fatal(err)
	}

	url, err := r.ReturnToLobby("c1")
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://quiz.example/rooms/ABC123" {
		t.Errorf("url = %q", url)
	}
	s := r.Snapshot()
	if s.Status != models.RoomStatusLobby || s.RoundOpen || s.TimerArmed {
		t.Errorf("room not back in lobby: %+v", s)
	}
	lobby := h.emitter.lastBroadcast(t, events.QuizLobby).(events.LobbyPayload)
	if lobby.URL != url || lobby.Code != "ABC123" {
		t.Errorf("lobby payload = %+v", lobby)
	}
}
