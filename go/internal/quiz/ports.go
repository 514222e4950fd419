package quiz

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizrooms/go/internal/models"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
	NewTicker(d time.Duration) clockwork.Ticker
}

// QuestionFilter narrows the random question draw
type QuestionFilter struct {
	ApprovedOnly bool
	CategoryIDs  []int64
}

// Store is everything the quiz core persists or reads. Every method may fail;
// room state in memory is authoritative and failures are only logged.
type Store interface {
	FindRoomByCode(ctx context.Context, code string) (*models.Room, error)
	UpdateRoomSettings(ctx context.Context, code string, patch models.RoomSettingsPatch) error
	FindRandomQuestion(ctx context.Context, filter QuestionFilter) (*models.Question, error)
	IncrementUserWins(ctx context.Context, userID int64) error
	UpdateRoomOwner(ctx context.Context, code string, userID *int64) error
}

// Emitter delivers events to connections. Implementations must not block:
// rooms call it while holding their lock.
type Emitter interface {
	// Broadcast sends to every connection attached to the room.
	Broadcast(code, event string, payload any)
	// Send sends to a single connection.
	Send(connID, event string, payload any)
	// Attach and Detach maintain which connections receive a room's broadcasts.
	Attach(connID, code string)
	Detach(connID, code string)
	// Disconnect closes the connection once everything queued before it is written.
	Disconnect(connID string)
}

// EventSink optionally mirrors every room broadcast, e.g. onto a message bus.
type EventSink interface {
	Publish(code, event string, payload any)
}

// Deps are the collaborators shared by every room.
type Deps struct {
	Store   Store
	Emitter Emitter
	Clock   Clock
	Sink    EventSink

	// StoreTimeout bounds each store call made while a room is locked.
	StoreTimeout time.Duration
	// PublicBaseURL prefixes the lobby URL sent with quiz:lobby.
	PublicBaseURL string
	// UploadsBaseURL prefixes relative question image paths.
	UploadsBaseURL string
}

func (d *Deps) withDefaults() {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.StoreTimeout <= 0 {
		d.StoreTimeout = 3 * time.Second
	}
}
