package rooms

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/mcdev12/quizrooms/go/internal/models"
	"github.com/mcdev12/quizrooms/go/internal/quiz"
	"github.com/rs/zerolog/log"
)

const (
	codeAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxCodeRetries = 10
	maxNameLength  = 60
)

// ErrInvalidName is returned when a room name is empty or too long
var ErrInvalidName = errors.New("room name must be 1-60 characters")

// ErrInvalidOwner is returned when the creating user is missing
var ErrInvalidOwner = errors.New("room owner must be a known user")

// RoomsRepository defines what the app layer needs from the repository
type RoomsRepository interface {
	CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.Room, error)
	FindRoomByCode(ctx context.Context, code string) (*models.Room, error)
	RoomCodeExists(ctx context.Context, code string) (bool, error)
}

// UserLookup checks that a room owner exists
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// LiveRooms is the part of the room registry the HTTP layer reads
type LiveRooms interface {
	Lookup(code string) (*quiz.Room, error)
	Contains(code string) bool
	PublicRooms() []quiz.PublicRoom
}

// App handles rooms business logic
type App struct {
	repo  RoomsRepository
	users UserLookup
	live  LiveRooms

	// newCode is swapped in tests
	newCode func() (string, error)
}

// NewApp creates a new rooms App
func NewApp(repo RoomsRepository, users UserLookup, live LiveRooms) *App {
	return &App{
		repo:    repo,
		users:   users,
		live:    live,
		newCode: randomCode,
	}
}

// CreateRoom persists a room owned by ownerID under a fresh code
func (a *App) CreateRoom(ctx context.Context, ownerID int64, in CreateRoomInput) (*models.Room, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return nil, fmt.Errorf("validation failed: %w", ErrInvalidName)
	}
	if ownerID <= 0 {
		return nil, fmt.Errorf("validation failed: %w", ErrInvalidOwner)
	}
	if _, err := a.users.GetUser(ctx, ownerID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("validation failed: %w", ErrInvalidOwner)
		}
		return nil, fmt.Errorf("failed to look up owner: %w", err)
	}

	settings := quiz.DefaultSettings()
	if in.Settings != nil {
		settings = quiz.ApplyPatch(settings, in.Settings)
	}

	code, err := a.uniqueCode(ctx)
	if err != nil {
		return nil, err
	}

	room, err := a.repo.CreateRoom(ctx, CreateRoomRequest{
		Code:     code,
		Name:     name,
		OwnerID:  ownerID,
		Settings: settings,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	log.Info().
		Str("room_code", room.Code).
		Int64("user_id", ownerID).
		Msg("created room")
	return room, nil
}

// uniqueCode draws codes until one is free both in memory and in the store
func (a *App) uniqueCode(ctx context.Context) (string, error) {
	for i := 0; i < maxCodeRetries; i++ {
		code, err := a.newCode()
		if err != nil {
			return "", fmt.Errorf("failed to generate room code: %w", err)
		}
		if a.live != nil && a.live.Contains(code) {
			continue
		}
		exists, err := a.repo.RoomCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("no free room code after %d attempts", maxCodeRetries)
}

// GetRoom describes a room, preferring its live state
func (a *App) GetRoom(ctx context.Context, code string) (*RoomView, error) {
	code, err := quiz.NormalizeCode(code)
	if err != nil {
		return nil, err
	}

	if a.live != nil {
		if r, err := a.live.Lookup(code); err == nil {
			s := r.Snapshot()
			return &RoomView{
				Code:       s.Code,
				Name:       s.Name,
				Status:     s.Status,
				HostUserID: s.HostUserID,
				Settings:   s.Settings,
				Players:    s.ConnectedCount(),
				Live:       true,
				URL:        roomPath(s.Code, s.Status),
			}, nil
		}
	}

	room, err := a.repo.FindRoomByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	var host int64
	if room.OwnerID != nil {
		host = *room.OwnerID
	}
	return &RoomView{
		Code:       room.Code,
		Name:       room.Name,
		Status:     models.RoomStatusLobby,
		HostUserID: host,
		Settings:   quiz.NormalizeSettings(room.Settings),
		URL:        roomPath(room.Code, models.RoomStatusLobby),
	}, nil
}

// PublicRooms lists the live public rooms
func (a *App) PublicRooms() []quiz.PublicRoom {
	if a.live == nil {
		return []quiz.PublicRoom{}
	}
	return a.live.PublicRooms()
}

func roomPath(code string, status models.RoomStatus) string {
	if status == models.RoomStatusRunning {
		return "/quiz/" + code
	}
	return "/rooms/" + code
}

func randomCode() (string, error) {
	size := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, quiz.CodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}
