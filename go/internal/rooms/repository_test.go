package rooms

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/mcdev12/quizrooms/go/internal/models"
	"github.com/mcdev12/quizrooms/go/internal/rooms/db"
)

type fakeQuerier struct {
	room      db.Room
	roomErr   error
	members   []db.ListRoomMembersRow
	exists    bool
	affected  int64
	settings  db.UpdateRoomSettingsParams
	owner     sql.NullInt64
	ownerCall bool
}

func (f *fakeQuerier) GetRoomByCode(_ context.Context, _ string) (db.Room, error) {
	return f.room, f.roomErr
}

func (f *fakeQuerier) RoomCodeExists(_ context.Context, _ string) (bool, error) {
	return f.exists, nil
}

func (f *fakeQuerier) ListRoomMembers(_ context.Context, _ string) ([]db.ListRoomMembersRow, error) {
	return f.members, nil
}

func (f *fakeQuerier) UpdateRoomSettings(_ context.Context, arg db.UpdateRoomSettingsParams) (int64, error) {
	f.settings = arg
	return f.affected, nil
}

func (f *fakeQuerier) UpdateRoomOwner(_ context.Context, _ string, ownerID sql.NullInt64) (int64, error) {
	f.owner = ownerID
	f.ownerCall = true
	return f.affected, nil
}

func TestFindRoomByCodeNotFound(t *testing.T) {
	repo := NewRepository(nil, &fakeQuerier{roomErr: sql.ErrNoRows})
	if _, err := repo.FindRoomByCode(context.Background(), "ABCDEF"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFindRoomByCodeMapsRowAndMembers(t *testing.T) {
	f := &fakeQuerier{
		room: db.Room{
			Code:                "ABCDEF",
			Name:                "Trivia night",
			OwnerID:             sql.NullInt64{Int64: 4, Valid: true},
			Visibility:          "private",
			MaxPlayers:          8,
			ExcludedNames:       []string{"troll"},
			Categories:          []int64{1, 2},
			AnswerWindowSeconds: 30,
			TargetScore:         50,
			Scoring:             "fixed",
			ShowGuesses:         true,
			ApprovedOnly:        true,
			ResultDelaySeconds:  3,
		},
		members: []db.ListRoomMembersRow{{UserID: 4, DisplayName: "dora", Avatar: "d.png"}},
	}
	repo := NewRepository(nil, f)

	room, err := repo.FindRoomByCode(context.Background(), "ABCDEF")
	if err != nil {
		t.Fatal(err)
	}
	if room.OwnerID == nil || *room.OwnerID != 4 {
		t.Errorf("owner = %v", room.OwnerID)
	}
	s := room.Settings
	if s.Visibility != models.VisibilityPrivate || s.MaxPlayers != 8 || s.Scoring != models.ScoringFixed ||
		s.AnswerWindowSeconds != 30 || s.TargetScore != 50 || s.ResultDelaySeconds != 3 {
		t.Errorf("settings = %+v", s)
	}
	if len(room.Members) != 1 || room.Members[0].DisplayName != "dora" {
		t.Errorf("members = %+v", room.Members)
	}
}

func TestUpdateRoomSettingsPartial(t *testing.T) {
	f := &fakeQuerier{affected: 1}
	repo := NewRepository(nil, f)

	target := 40
	err := repo.UpdateRoomSettings(context.Background(), "ABCDEF", models.RoomSettingsPatch{
		TargetScore:      &target,
		ExcludedNames:    []string{"x"},
		SetExcludedNames: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	got := f.settings
	if !got.TargetScore.Valid || got.TargetScore.Int32 != 40 {
		t.Errorf("target score = %+v", got.TargetScore)
	}
	if got.MaxPlayers.Valid || got.Visibility.Valid || got.ShowGuesses.Valid {
		t.Errorf("unset fields were sent: %+v", got)
	}
	if !got.SetExcludedNames || got.SetCategories {
		t.Errorf("list flags = (%v, %v), want (true, false)", got.SetExcludedNames, got.SetCategories)
	}
}

func TestUpdateRoomSettingsMissingRoom(t *testing.T) {
	repo := NewRepository(nil, &fakeQuerier{affected: 0})
	err := repo.UpdateRoomSettings(context.Background(), "ABCDEF", models.RoomSettingsPatch{})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateRoomOwnerClears(t *testing.T) {
	f := &fakeQuerier{affected: 1}
	repo := NewRepository(nil, f)
	if err := repo.UpdateRoomOwner(context.Background(), "ABCDEF", nil); err != nil {
		t.Fatal(err)
	}
	if !f.ownerCall || f.owner.Valid {
		t.Errorf("owner = %+v, want NULL", f.owner)
	}
}

func TestCreateRoomNeedsDatabase(t *testing.T) {
	repo := NewRepository(nil, &fakeQuerier{})
	if _, err := repo.CreateRoom(context.Background(), CreateRoomRequest{Code: "ABCDEF"}); err == nil {
		t.Fatal("expected an error without a database handle")
	}
}
