package events

import (
	"github.com/mcdev12/quizrooms/go/internal/models"
)

// Outbound event names shared between the quiz core and the gateway
const (
	RoomUpdate    = "room:update"
	RoomStarted   = "room:started"
	RoomKicked    = "room:kicked"
	RoomBanned    = "room:banned"
	RoundQuestion = "round:question"
	RoundGuesses  = "round:guesses"
	RoundResult   = "round:result"
	QuizEnded     = "quiz:ended"
	QuizLobby     = "quiz:lobby"
)

// Reasons carried by QuizEndedPayload
const (
	EndReasonWinner     = "winner"
	EndReasonNoQuestion = "no_question_available"
)

// PlayerView is a connected player as shown to room members
type PlayerView struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar,omitempty"`
	Score       int    `json:"score"`
	Ready       bool   `json:"ready"`
	IsHost      bool   `json:"is_host"`
}

// RoomStatePayload is the payload for a room:update event
type RoomStatePayload struct {
	Code       string              `json:"code"`
	Name       string              `json:"name,omitempty"`
	Status     models.RoomStatus   `json:"status"`
	HostUserID int64               `json:"host_user_id,omitempty"`
	Settings   models.RoomSettings `json:"settings"`
	Players    []PlayerView        `json:"players"`
}

// RoomStartedPayload is the payload for a room:started event
type RoomStartedPayload struct {
	Code      string `json:"code"`
	StartedAt int64  `json:"started_at"`
}

// QuestionView is the client-visible part of a question; it never carries the answer
type QuestionView struct {
	ID         int64               `json:"id"`
	Kind       models.QuestionKind `json:"kind"`
	Prompt     string              `json:"prompt"`
	QuoteText  string              `json:"quote_text,omitempty"`
	ImageURL   string              `json:"image_url,omitempty"`
	Categories []models.Category   `json:"categories,omitempty"`
}

// RoundQuestionPayload is the payload for a round:question event. Times are epoch milliseconds.
type RoundQuestionPayload struct {
	Question  QuestionView        `json:"question"`
	StartsAt  int64               `json:"starts_at"`
	EndsAt    int64               `json:"ends_at"`
	ServerNow int64               `json:"server_now"`
	Settings  models.RoomSettings `json:"settings"`
}

// GuessView is one still-wrong guess in the live guess list
type GuessView struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar,omitempty"`
	Score       int    `json:"score"`
	Guess       string `json:"guess"`
}

// RoundGuessesPayload is the payload for a round:guesses event
type RoundGuessesPayload struct {
	Guesses []GuessView `json:"guesses"`
}

// RoundResultPayload is the payload for a round:result event
type RoundResultPayload struct {
	Answer      string  `json:"answer"`
	FirstFinder *string `json:"first_finder"`
	Explanation *string `json:"explanation"`
	Author      *string `json:"author"`
}

// Standing is a final leaderboard line
type Standing struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar,omitempty"`
	Score       int    `json:"score"`
}

// QuizEndedPayload is the payload for a quiz:ended event
type QuizEndedPayload struct {
	Reason string     `json:"reason"`
	Winner *Standing  `json:"winner,omitempty"`
	Top    []Standing `json:"top,omitempty"`
}

// LobbyPayload is the payload for a quiz:lobby navigation event
type LobbyPayload struct {
	Code string `json:"code"`
	URL  string `json:"url"`
}

// RemovedPayload is the payload for room:kicked and room:banned
type RemovedPayload struct {
	Code string `json:"code"`
}
