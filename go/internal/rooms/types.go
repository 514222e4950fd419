package rooms

import (
	"github.com/mcdev12/quizrooms/go/internal/models"
)

// CreateRoomRequest represents the data needed to persist a new room
type CreateRoomRequest struct {
	Code     string              `json:"code"`
	Name     string              `json:"name"`
	OwnerID  int64               `json:"owner_id"`
	Settings models.RoomSettings `json:"settings"`
}

// CreateRoomInput is what a client sends to create a room. Settings is a
// loosely typed partial update applied over the defaults.
type CreateRoomInput struct {
	Name     string         `json:"name"`
	Settings map[string]any `json:"settings,omitempty"`
}

// RoomView describes a room for HTTP clients, merging live state when the room is loaded
type RoomView struct {
	Code       string              `json:"code"`
	Name       string              `json:"name"`
	Status     models.RoomStatus   `json:"status"`
	HostUserID int64               `json:"host_user_id,omitempty"`
	Settings   models.RoomSettings `json:"settings"`
	Players    int                 `json:"players"`
	Live       bool                `json:"live"`
	URL        string              `json:"url"`
}
