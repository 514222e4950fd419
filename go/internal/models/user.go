package models

import (
	"time"
)

// User represents a registered player
type User struct {
	ID          int64     `json:"id"`
	DisplayName string    `json:"display_name"`
	Avatar      string    `json:"avatar"`
	Wins        int       `json:"wins"`
	CreatedAt   time.Time `json:"created_at"`
}
