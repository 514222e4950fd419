package quiz

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizrooms/go/internal/models"
	"github.com/mcdev12/quizrooms/go/internal/quiz/events"
)

// fakeStore is an in-memory Store that records every call it receives.
type fakeStore struct {
	mu        sync.Mutex
	calls     []string
	rooms     map[string]*models.Room
	questions []*models.Question
	drawErr   error
	writeErr  error
	wins      map[int64]int
	patches   []models.RoomSettingsPatch
	owners    []*int64
	filters   []QuestionFilter
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rooms: make(map[string]*models.Room),
		wins:  make(map[int64]int),
	}
}

func (s *fakeStore) record(call string) {
	s.calls = append(s.calls, call)
}

func (s *fakeStore) FindRoomByCode(_ context.Context, code string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("FindRoomByCode:" + code)
	rec, ok := s.rooms[code]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *rec
	cp.Settings = cloneSettings(rec.Settings)
	cp.Members = append([]models.RoomMember(nil), rec.Members...)
	return &cp, nil
}

func (s *fakeStore) UpdateRoomSettings(_ context.Context, code string, patch models.RoomSettingsPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("UpdateRoomSettings:" + code)
	if s.writeErr != nil {
		return s.writeErr
	}
	s.patches = append(s.patches, patch)
	if rec, ok := s.rooms[code]; ok && patch.SetExcludedNames {
		rec.Settings.ExcludedNames = append([]string{}, patch.ExcludedNames...)
	}
	return nil
}

func (s *fakeStore) FindRandomQuestion(_ context.Context, filter QuestionFilter) (*models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("FindRandomQuestion")
	s.filters = append(s.filters, filter)
	if s.drawErr != nil {
		return nil, s.drawErr
	}
	if len(s.questions) == 0 {
		return nil, models.ErrNotFound
	}
	q := s.questions[0]
	if len(s.questions) > 1 {
		s.questions = s.questions[1:]
	}
	return q, nil
}

func (s *fakeStore) IncrementUserWins(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(fmt.Sprintf("IncrementUserWins:%d", userID))
	s.wins[userID]++
	return nil
}

func (s *fakeStore) UpdateRoomOwner(_ context.Context, code string, userID *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("UpdateRoomOwner:" + code)
	s.owners = append(s.owners, userID)
	return nil
}

func (s *fakeStore) count(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

// emitted is one call observed by recordingEmitter.
type emitted struct {
	kind    string // broadcast, send or disconnect
	target  string // room code or connection id
	event   string
	payload any
}

type recordingEmitter struct {
	mu       sync.Mutex
	log      []emitted
	attached map[string]string
}

func newRecordingEmitter() *recordingEmitter {
	return &recordingEmitter{attached: make(map[string]string)}
}

func (e *recordingEmitter) Broadcast(code, event string, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, emitted{kind: "broadcast", target: code, event: event, payload: payload})
}

func (e *recordingEmitter) Send(connID, event string, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, emitted{kind: "send", target: connID, event: event, payload: payload})
}

func (e *recordingEmitter) Attach(connID, code string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attached[connID] = code
}

func (e *recordingEmitter) Detach(connID, code string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.attached[connID] == code {
		delete(e.attached, connID)
	}
}

func (e *recordingEmitter) Disconnect(connID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, emitted{kind: "disconnect", target: connID})
}

func (e *recordingEmitter) all() []emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]emitted(nil), e.log...)
}

func (e *recordingEmitter) broadcasts(event string) []any {
	var out []any
	for _, m := range e.all() {
		if m.kind == "broadcast" && m.event == event {
			out = append(out, m.payload)
		}
	}
	return out
}

func (e *recordingEmitter) lastBroadcast(t *testing.T, event string) any {
	t.Helper()
	got := e.broadcasts(event)
	if len(got) == 0 {
		t.Fatalf("no %s broadcast recorded", event)
	}
	return got[len(got)-1]
}

func (e *recordingEmitter) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = nil
}

type harness struct {
	store   *fakeStore
	emitter *recordingEmitter
	clock   *clockwork.FakeClock
	reg     *Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   newFakeStore(),
		emitter: newRecordingEmitter(),
		clock:   clockwork.NewFakeClock(),
	}
	h.reg = NewRegistry(Deps{
		Store:          h.store,
		Emitter:        h.emitter,
		Clock:          h.clock,
		StoreTimeout:   time.Second,
		PublicBaseURL:  "https://quiz.example",
		UploadsBaseURL: "https://cdn.example/uploads",
	})
	t.Cleanup(h.reg.Close)
	return h
}

// lobby creates an ephemeral room hosted by user 1 on conn "c1" and joins the
// extra users (ids 2, 3, ...) on conns "c2", "c3", ...
func (h *harness) lobby(t *testing.T, extra ...string) *Room {
	t.Helper()
	r, err := h.reg.GetOrCreateEphemeral("ABC123", 1)
	if err != nil {
		t.Fatalf("GetOrCreateEphemeral: %v", err)
	}
	if err := r.Join("c1", 1, "alice", ""); err != nil {
		t.Fatalf("host join: %v", err)
	}
	for i, name := range extra {
		id := int64(i + 2)
		if err := r.Join(fmt.Sprintf("c%d", id), id, name, ""); err != nil {
			t.Fatalf("join %s: %v", name, err)
		}
	}
	return r
}

func (h *harness) configure(t *testing.T, r *Room, patch map[string]any) {
	t.Helper()
	if _, err := r.UpdateParameters("c1", patch); err != nil {
		t.Fatalf("UpdateParameters: %v", err)
	}
}

// waitForTimer blocks until the room has n pending clock waiters.
func (h *harness) waitForTimer(t *testing.T, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.clock.BlockUntilContext(ctx, n); err != nil {
		t.Fatalf("waiting for %d timers: %v", n, err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func question(id int64, prompt, ans string, alternatives ...string) *models.Question {
	return &models.Question{
		ID:           id,
		Kind:         models.QuestionKindPlain,
		Prompt:       prompt,
		Answer:       ans,
		Alternatives: alternatives,
		Status:       models.QuestionStatusApproved,
	}
}

func scoreOf(t *testing.T, r *Room, userID int64) int {
	t.Helper()
	for _, p := range r.Snapshot().Players {
		if p.UserID == userID {
			return p.Score
		}
	}
	t.Fatalf("user %d not on roster", userID)
	return 0
}

func guessesOf(t *testing.T, payload any) []events.GuessView {
	t.Helper()
	p, ok := payload.(events.RoundGuessesPayload)
	if !ok {
		t.Fatalf("payload is %T, want RoundGuessesPayload", payload)
	}
	return p.Guesses
}
