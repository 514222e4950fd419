package db

import (
	"database/sql"
	"time"
)

type Room struct {
	Code                 string
	Name                 string
	OwnerID              sql.NullInt64
	Visibility           string
	MaxPlayers           int32
	ExcludedNames        []string
	Categories           []int64
	AnswerWindowSeconds  int32
	TargetScore          int32
	Scoring              string
	ShowGuesses          bool
	ApprovedOnly         bool
	PreRoundDelaySeconds int32
	ResultDelaySeconds   int32
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type ListRoomMembersRow struct {
	UserID      int64
	DisplayName string
	Avatar      string
}
