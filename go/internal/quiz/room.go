package quiz

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mcdev12/quizrooms/go/internal/models"
	"github.com/mcdev12/quizrooms/go/internal/quiz/events"
	"github.com/rs/zerolog/log"
)

// Player is a roster entry. ConnID is empty while the player is disconnected.
type Player struct {
	ConnID      string
	UserID      int64
	DisplayName string
	Avatar      string
	Score       int
	Ready       bool
	Answered    bool
}

func (p *Player) connected() bool { return p.ConnID != "" }

// Room is the live state of one room. Every exported method takes the room
// lock for its whole duration, so handlers and timer fires never interleave.
type Room struct {
	mu   sync.Mutex
	deps *Deps

	code      string
	name      string
	persisted bool
	closed    bool

	hostConnID string
	hostUserID int64

	settings models.RoomSettings
	// settingsUnsynced is set while the stored settings lag behind the
	// in-memory ones because a write failed.
	settingsUnsynced bool
	players          []*Player
	status   models.RoomStatus
	round    *round
	timer    roomTimer

	lastActive time.Time
}

func newRoom(deps *Deps, code string) *Room {
	return &Room{
		deps:       deps,
		code:       code,
		settings:   DefaultSettings(),
		status:     models.RoomStatusLobby,
		lastActive: deps.Clock.Now(),
	}
}

// newPersistedRoom builds a lobby room from its stored record. Members come
// back without a live connection.
func newPersistedRoom(deps *Deps, rec *models.Room) *Room {
	r := newRoom(deps, rec.Code)
	r.name = rec.Name
	r.persisted = true
	r.settings = NormalizeSettings(rec.Settings)
	if rec.OwnerID != nil {
		r.hostUserID = *rec.OwnerID
	}
	for _, m := range rec.Members {
		r.players = append(r.players, &Player{
			UserID:      m.UserID,
			DisplayName: m.DisplayName,
			Avatar:      m.Avatar,
		})
	}
	return r
}

// Code returns the room code.
func (r *Room) Code() string { return r.code }

func (r *Room) playerByConn(connID string) *Player {
	if connID == "" {
		return nil
	}
	for _, p := range r.players {
		if p.ConnID == connID {
			return p
		}
	}
	return nil
}

func (r *Room) playerByUser(userID int64) *Player {
	for _, p := range r.players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

func (r *Room) connectedPlayers() []*Player {
	out := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		if p.connected() {
			out = append(out, p)
		}
	}
	return out
}

func (r *Room) isHost(connID string) bool {
	if connID == "" {
		return false
	}
	if connID == r.hostConnID {
		return true
	}
	p := r.playerByConn(connID)
	return p != nil && r.hostUserID != 0 && p.UserID == r.hostUserID
}

func (r *Room) requireHost(connID string) error {
	if r.closed {
		return ErrRoomNotFound
	}
	if !r.isHost(connID) {
		return ErrNotHost
	}
	return nil
}

func (r *Room) isBanned(displayName string) bool {
	return containsFold(r.settings.ExcludedNames, strings.TrimSpace(displayName))
}

func (r *Room) touch() {
	r.lastActive = r.deps.Clock.Now()
}

// reassignHost hands authority to the first connected player, or clears it.
func (r *Room) reassignHost() {
	for _, p := range r.players {
		if p.connected() {
			r.hostConnID = p.ConnID
			r.hostUserID = p.UserID
			r.persistOwner()
			return
		}
	}
	r.hostConnID = ""
	r.hostUserID = 0
	r.persistOwner()
}

func (r *Room) broadcast(event string, payload any) {
	if r.deps.Emitter != nil {
		r.deps.Emitter.Broadcast(r.code, event, payload)
	}
	if r.deps.Sink != nil {
		r.deps.Sink.Publish(r.code, event, payload)
	}
}

func (r *Room) send(connID, event string, payload any) {
	if r.deps.Emitter != nil && connID != "" {
		r.deps.Emitter.Send(connID, event, payload)
	}
}

func (r *Room) broadcastState() {
	r.broadcast(events.RoomUpdate, r.stateView())
}

// stateView lists connected players only.
func (r *Room) stateView() events.RoomStatePayload {
	players := make([]events.PlayerView, 0, len(r.players))
	for _, p := range r.players {
		if !p.connected() {
			continue
		}
		players = append(players, events.PlayerView{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Avatar:      p.Avatar,
			Score:       p.Score,
			Ready:       p.Ready,
			IsHost:      r.hostUserID != 0 && p.UserID == r.hostUserID,
		})
	}
	return events.RoomStatePayload{
		Code:       r.code,
		Name:       r.name,
		Status:     r.status,
		HostUserID: r.hostUserID,
		Settings:   cloneSettings(r.settings),
		Players:    players,
	}
}

// persist runs a store write for persisted rooms. Failures are logged and
// never undo the in-memory change.
func (r *Room) persist(op string, fn func(ctx context.Context, s Store) error) error {
	if !r.persisted {
		return nil
	}
	return r.bestEffort(op, fn)
}

// bestEffort runs a store call regardless of whether the room itself is persisted.
// The error is logged and returned for callers that track sync state.
func (r *Room) bestEffort(op string, fn func(ctx context.Context, s Store) error) error {
	if r.deps.Store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.deps.StoreTimeout)
	defer cancel()
	err := fn(ctx, r.deps.Store)
	if err != nil {
		log.Warn().
			Err(err).
			Str("room_code", r.code).
			Str("op", op).
			Msg("store write failed, keeping in-memory state")
	}
	return err
}

// persistSettings writes patch, or every field while an earlier write is
// still missing from the store.
func (r *Room) persistSettings(patch models.RoomSettingsPatch) {
	if r.settingsUnsynced {
		patch = r.settings.FullPatch()
	}
	err := r.persist("update_room_settings", func(ctx context.Context, s Store) error {
		return s.UpdateRoomSettings(ctx, r.code, patch)
	})
	r.settingsUnsynced = err != nil
}

func (r *Room) persistOwner() {
	var owner *int64
	if r.hostUserID != 0 {
		id := r.hostUserID
		owner = &id
	}
	r.persist("update_room_owner", func(ctx context.Context, s Store) error {
		return s.UpdateRoomOwner(ctx, r.code, owner)
	})
}

func cloneSettings(s models.RoomSettings) models.RoomSettings {
	s.ExcludedNames = append([]string{}, s.ExcludedNames...)
	s.Categories = append([]int64{}, s.Categories...)
	return s
}

// PlayerSnapshot is a copy of a roster entry.
type PlayerSnapshot struct {
	ConnID      string
	UserID      int64
	DisplayName string
	Score       int
	Answered    bool
}

// Snapshot is a point-in-time copy of a room, safe to read without the lock.
type Snapshot struct {
	Code       string
	Name       string
	Status     models.RoomStatus
	HostConnID string
	HostUserID int64
	Settings   models.RoomSettings
	Players    []PlayerSnapshot
	RoundOpen  bool
	TimerArmed bool
	Persisted  bool
}

// Snapshot copies the current room state.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		Code:       r.code,
		Name:       r.name,
		Status:     r.status,
		HostConnID: r.hostConnID,
		HostUserID: r.hostUserID,
		Settings:   cloneSettings(r.settings),
		RoundOpen:  r.round != nil,
		TimerArmed: r.timer.armed,
		Persisted:  r.persisted,
	}
	for _, p := range r.players {
		s.Players = append(s.Players, PlayerSnapshot{
			ConnID:      p.ConnID,
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Score:       p.Score,
			Answered:    p.Answered,
		})
	}
	return s
}

// ConnectedCount is the number of players with a live connection.
func (s Snapshot) ConnectedCount() int {
	n := 0
	for _, p := range s.Players {
		if p.ConnID != "" {
			n++
		}
	}
	return n
}
