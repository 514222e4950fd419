package models

import "time"

// Visibility controls whether a room shows up in the public room list
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// ScoringMode selects how points are awarded for a correct answer
type ScoringMode string

const (
	ScoringDegressive ScoringMode = "degressive"
	ScoringFixed      ScoringMode = "fixed"
)

// RoomStatus is the lifecycle state of a live room
type RoomStatus string

const (
	RoomStatusLobby   RoomStatus = "lobby"
	RoomStatusRunning RoomStatus = "running"
	RoomStatusEnded   RoomStatus = "ended"
)

// RoomSettings are the host-editable quiz parameters of a room.
type RoomSettings struct {
	Visibility           Visibility  `json:"visibility"`
	MaxPlayers           int         `json:"max_players"`
	ExcludedNames        []string    `json:"excluded_names"`
	Categories           []int64     `json:"categories"`
	AnswerWindowSeconds  int         `json:"answer_window_seconds"`
	TargetScore          int         `json:"target_score"`
	Scoring              ScoringMode `json:"scoring"`
	ShowGuesses          bool        `json:"show_guesses"`
	ApprovedOnly         bool        `json:"approved_only"`
	PreRoundDelaySeconds int         `json:"pre_round_delay_seconds"`
	ResultDelaySeconds   int         `json:"result_delay_seconds"`
}

// RoomSettingsPatch is a partial settings update; nil fields are left untouched.
type RoomSettingsPatch struct {
	Visibility           *Visibility
	MaxPlayers           *int
	ExcludedNames        []string
	SetExcludedNames     bool
	Categories           []int64
	SetCategories        bool
	AnswerWindowSeconds  *int
	TargetScore          *int
	Scoring              *ScoringMode
	ShowGuesses          *bool
	ApprovedOnly         *bool
	PreRoundDelaySeconds *int
	ResultDelaySeconds   *int
}

// FullPatch returns a patch that overwrites every stored field with s.
func (s RoomSettings) FullPatch() RoomSettingsPatch {
	return RoomSettingsPatch{
		Visibility:           &s.Visibility,
		MaxPlayers:           &s.MaxPlayers,
		ExcludedNames:        s.ExcludedNames,
		SetExcludedNames:     true,
		Categories:           s.Categories,
		SetCategories:        true,
		AnswerWindowSeconds:  &s.AnswerWindowSeconds,
		TargetScore:          &s.TargetScore,
		Scoring:              &s.Scoring,
		ShowGuesses:          &s.ShowGuesses,
		ApprovedOnly:         &s.ApprovedOnly,
		PreRoundDelaySeconds: &s.PreRoundDelaySeconds,
		ResultDelaySeconds:   &s.ResultDelaySeconds,
	}
}

// Room is the persisted record of a room
type Room struct {
	Code      string       `json:"code"`
	Name      string       `json:"name"`
	OwnerID   *int64       `json:"owner_id,omitempty"`
	Settings  RoomSettings `json:"settings"`
	Members   []RoomMember `json:"members"`
	CreatedAt time.Time    `json:"created_at"`
}

// RoomMember is a user recorded as belonging to a persisted room
type RoomMember struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar"`
}
