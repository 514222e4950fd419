package quiz

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mcdev12/quizrooms/go/internal/models"
	"github.com/rs/zerolog/log"
)

// CodeLength is the number of characters in a room code.
const CodeLength = 6

// Registry owns every live room of the process.
type Registry struct {
	deps Deps

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewRegistry creates an empty registry. Missing clock and store timeout are defaulted.
func NewRegistry(deps Deps) *Registry {
	deps.withDefaults()
	return &Registry{
		deps:  deps,
		rooms: make(map[string]*Room),
	}
}

// NormalizeCode upper-cases code and checks it is six letters or digits.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != CodeLength {
		return "", invalid("code", "must be 6 characters")
	}
	for _, c := range code {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return "", invalid("code", "must be alphanumeric")
		}
	}
	return code, nil
}

// Lookup returns a live room without touching the store.
func (g *Registry) Lookup(code string) (*Room, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// Contains reports whether code is live in memory.
func (g *Registry) Contains(code string) bool {
	_, err := g.Lookup(code)
	return err == nil
}

// Ensure returns the live room for code, hydrating it from the store on a miss.
func (g *Registry) Ensure(ctx context.Context, code string) (*Room, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	if r, ok := g.rooms[code]; ok {
		g.mu.Unlock()
		return r, nil
	}
	g.mu.Unlock()

	if g.deps.Store == nil {
		return nil, ErrRoomNotFound
	}
	rec, err := g.deps.Store.FindRoomByCode(ctx, code)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to load room %s: %w", code, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.rooms[code]; ok {
		return r, nil
	}
	r := newPersistedRoom(&g.deps, rec)
	g.rooms[code] = r

	log.Info().
		Str("room_code", code).
		Int("members", len(rec.Members)).
		Msg("hydrated room from store")
	return r, nil
}

// GetOrCreateEphemeral returns the live room for code or creates an unpersisted
// lobby room with default settings whose host user is seedHostUserID.
func (g *Registry) GetOrCreateEphemeral(code string, seedHostUserID int64) (*Room, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.rooms[code]; ok {
		return r, nil
	}
	r := newRoom(&g.deps, code)
	if seedHostUserID > 0 {
		r.hostUserID = seedHostUserID
	}
	g.rooms[code] = r

	log.Info().
		Str("room_code", code).
		Int64("user_id", seedHostUserID).
		Msg("created ephemeral room")
	return r, nil
}

// Resolve is what a socket join uses: the stored room when there is one,
// otherwise an ephemeral room seeded with userID as host.
func (g *Registry) Resolve(ctx context.Context, code string, userID int64) (*Room, error) {
	r, err := g.Ensure(ctx, code)
	if err == nil {
		return r, nil
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return nil, err
	}
	if !errors.Is(err, ErrRoomNotFound) {
		log.Warn().Err(err).Str("room_code", code).Msg("store lookup failed, falling back to ephemeral room")
	}
	return g.GetOrCreateEphemeral(code, userID)
}

// OnDisconnect clears connID from every room holding it.
func (g *Registry) OnDisconnect(connID string) {
	for _, r := range g.snapshot() {
		if r.OnDisconnect(connID) {
			log.Info().
				Str("room_code", r.code).
				Str("connection_id", connID).
				Msg("player disconnected")
		}
	}
}

// RefreshSettings reloads a lobby room's settings after they changed in the store.
// Rooms that are not live are left alone.
func (g *Registry) RefreshSettings(ctx context.Context, code string) error {
	r, err := g.Lookup(code)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return nil
		}
		return err
	}
	if !r.persisted || g.deps.Store == nil {
		return nil
	}
	rec, err := g.deps.Store.FindRoomByCode(ctx, r.code)
	if err != nil {
		return fmt.Errorf("failed to reload room %s: %w", r.code, err)
	}
	if r.applyStoredSettings(rec.Settings) {
		log.Info().Str("room_code", r.code).Msg("room settings refreshed from store")
	}
	return nil
}

// PublicRoom is one entry of the public room list.
type PublicRoom struct {
	Code       string            `json:"code"`
	Name       string            `json:"name"`
	Status     models.RoomStatus `json:"status"`
	Players    int               `json:"players"`
	MaxPlayers int               `json:"max_players"`
	URL        string            `json:"url"`
}

// PublicRooms lists live public rooms: running ones first, then by connected
// players, then by code.
func (g *Registry) PublicRooms() []PublicRoom {
	out := []PublicRoom{}
	for _, r := range g.snapshot() {
		s := r.Snapshot()
		if s.Settings.Visibility == models.VisibilityPrivate {
			continue
		}
		path := "/rooms/"
		if s.Status == models.RoomStatusRunning {
			path = "/quiz/"
		}
		out = append(out, PublicRoom{
			Code:       s.Code,
			Name:       s.Name,
			Status:     s.Status,
			Players:    s.ConnectedCount(),
			MaxPlayers: s.Settings.MaxPlayers,
			URL:        path + s.Code,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		ri := out[i].Status == models.RoomStatusRunning
		rj := out[j].Status == models.RoomStatusRunning
		if ri != rj {
			return ri
		}
		if out[i].Players != out[j].Players {
			return out[i].Players > out[j].Players
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// Reap evicts rooms with no live connection that are not running and have been
// idle for at least idle. It returns the number of evicted rooms.
func (g *Registry) Reap(idle time.Duration) int {
	now := g.deps.Clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	evicted := 0
	for code, r := range g.rooms {
		r.mu.Lock()
		if len(r.connectedPlayers()) == 0 &&
			r.status != models.RoomStatusRunning &&
			now.Sub(r.lastActive) >= idle {
			r.cancelTimer()
			r.closed = true
			delete(g.rooms, code)
			evicted++

			log.Info().
				Str("room_code", code).
				Dur("idle", now.Sub(r.lastActive)).
				Msg("evicted idle room")
		}
		r.mu.Unlock()
	}
	return evicted
}

// RunReaper calls Reap every interval until ctx is done.
func (g *Registry) RunReaper(ctx context.Context, idle, interval time.Duration) {
	ticker := g.deps.Clock.NewTicker(interval)
	defer ticker.Stop()

	log.Info().
		Dur("idle_timeout", idle).
		Dur("interval", interval).
		Msg("room reaper started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("room reaper stopped")
			return
		case <-ticker.Chan():
			if n := g.Reap(idle); n > 0 {
				log.Debug().Int("evicted", n).Msg("reaper pass done")
			}
		}
	}
}

// Len is the number of live rooms.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// Close cancels every room timer and empties the registry.
func (g *Registry) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for code, r := range g.rooms {
		r.mu.Lock()
		r.cancelTimer()
		r.closed = true
		r.mu.Unlock()
		delete(g.rooms, code)
	}
}

func (g *Registry) snapshot() []*Room {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		out = append(out, r)
	}
	return out
}
