package quiz

import (
	"context"
	"strings"

	"github.com/mcdev12/quizrooms/go/internal/models"
	"github.com/mcdev12/quizrooms/go/internal/quiz/events"
	"github.com/rs/zerolog/log"
)

// Join binds connID to the room under userID. A user already on the roster is
// re-bound (reconnect) without touching their score and bypasses the capacity check.
func (r *Room) Join(connID string, userID int64, displayName, avatar string) error {
	displayName = strings.TrimSpace(displayName)
	switch {
	case connID == "":
		return invalid("connection", "missing")
	case userID <= 0:
		return invalid("user_id", "must be positive")
	case displayName == "":
		return invalid("display_name", "empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRoomNotFound
	}

	if r.isBanned(displayName) {
		return ErrBanned
	}

	if p := r.playerByUser(userID); p != nil {
		if p.ConnID != "" && p.ConnID != connID {
			if r.hostConnID == p.ConnID {
				r.hostConnID = connID
			}
			if r.deps.Emitter != nil {
				r.deps.Emitter.Detach(p.ConnID, r.code)
			}
		}
		p.ConnID = connID
		p.DisplayName = displayName
		p.Avatar = avatar
	} else {
		if len(r.connectedPlayers()) >= r.settings.MaxPlayers {
			return ErrRoomFull
		}
		r.players = append(r.players, &Player{
			ConnID:      connID,
			UserID:      userID,
			DisplayName: displayName,
			Avatar:      avatar,
		})
	}

	switch {
	case r.hostConnID == "" && r.hostUserID != 0 && userID == r.hostUserID:
		r.hostConnID = connID
	case r.hostConnID == "" && r.hostUserID == 0:
		r.hostConnID = connID
		r.hostUserID = userID
		r.persistOwner()
	}

	if r.deps.Emitter != nil {
		r.deps.Emitter.Attach(connID, r.code)
	}
	r.touch()

	log.Info().
		Str("room_code", r.code).
		Str("connection_id", connID).
		Int64("user_id", userID).
		Int("connected", len(r.connectedPlayers())).
		Msg("player joined room")

	r.broadcastState()
	if r.status == models.RoomStatusRunning && r.round != nil {
		r.send(connID, events.RoundQuestion, r.questionPayload())
		r.send(connID, events.RoundGuesses, events.RoundGuessesPayload{Guesses: r.visibleGuesses()})
	}
	return nil
}

// Leave unbinds connID. The roster entry stays so the user can rejoin; if the
// leaver held host authority it moves to the first connected player.
func (r *Room) Leave(connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRoomNotFound
	}

	p := r.playerByConn(connID)
	if p == nil {
		return nil
	}
	wasHost := r.isHost(connID)

	p.ConnID = ""
	if r.hostConnID == connID {
		r.hostConnID = ""
	}
	if r.deps.Emitter != nil {
		r.deps.Emitter.Detach(connID, r.code)
	}
	if wasHost {
		r.reassignHost()
	}
	r.touch()

	log.Info().
		Str("room_code", r.code).
		Str("connection_id", connID).
		Int64("user_id", p.UserID).
		Bool("was_host", wasHost).
		Msg("player left room")

	r.broadcastState()
	return nil
}

// Kick removes targetUserID's live connection. With ban set the target's display
// name is also added to the excluded list.
func (r *Room) Kick(requesterConnID string, targetUserID int64, ban bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireHost(requesterConnID); err != nil {
		return err
	}

	target := r.playerByUser(targetUserID)
	if target == nil {
		return ErrUserNotFound
	}

	targetConn := target.ConnID
	wasHost := target.UserID == r.hostUserID || (targetConn != "" && targetConn == r.hostConnID)

	if targetConn != "" {
		event := events.RoomKicked
		if ban {
			event = events.RoomBanned
		}
		r.send(targetConn, event, events.RemovedPayload{Code: r.code})
		if r.deps.Emitter != nil {
			r.deps.Emitter.Detach(targetConn, r.code)
			r.deps.Emitter.Disconnect(targetConn)
		}
		target.ConnID = ""
		if r.hostConnID == targetConn {
			r.hostConnID = ""
		}
	}

	if ban && !containsFold(r.settings.ExcludedNames, target.DisplayName) {
		r.settings.ExcludedNames = append(r.settings.ExcludedNames, target.DisplayName)
		r.persistSettings(models.RoomSettingsPatch{
			ExcludedNames:    append([]string{}, r.settings.ExcludedNames...),
			SetExcludedNames: true,
		})
	}

	if wasHost {
		r.reassignHost()
	}
	r.touch()

	log.Info().
		Str("room_code", r.code).
		Int64("user_id", targetUserID).
		Bool("ban", ban).
		Msg("player removed from room")

	r.broadcastState()
	return nil
}

// Unban removes displayName from the excluded list, case-insensitively, and
// returns the resulting list. Unbanning a name that is not excluded is a no-op.
func (r *Room) Unban(requesterConnID, displayName string) ([]string, error) {
	displayName = strings.TrimSpace(displayName)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireHost(requesterConnID); err != nil {
		return nil, err
	}
	if displayName == "" {
		return nil, invalid("display_name", "empty")
	}

	kept := make([]string, 0, len(r.settings.ExcludedNames))
	for _, n := range r.settings.ExcludedNames {
		if !strings.EqualFold(n, displayName) {
			kept = append(kept, n)
		}
	}

	if len(kept) != len(r.settings.ExcludedNames) {
		r.settings.ExcludedNames = kept
		r.persistSettings(models.RoomSettingsPatch{
			ExcludedNames:    append([]string{}, kept...),
			SetExcludedNames: true,
		})
		r.broadcastState()
	}
	r.touch()

	return append([]string{}, r.settings.ExcludedNames...), nil
}

// TransferHost gives host authority to a connected player.
func (r *Room) TransferHost(requesterConnID string, targetUserID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireHost(requesterConnID); err != nil {
		return err
	}

	target := r.playerByUser(targetUserID)
	if target == nil || !target.connected() {
		return ErrTargetNotConnected
	}

	r.hostConnID = target.ConnID
	r.hostUserID = target.UserID
	r.persistOwner()
	r.touch()

	log.Info().
		Str("room_code", r.code).
		Int64("user_id", targetUserID).
		Msg("host transferred")

	r.broadcastState()
	return nil
}

// UpdateParameters merges patch into the room settings, clamping every field.
func (r *Room) UpdateParameters(requesterConnID string, patch map[string]any) (models.RoomSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireHost(requesterConnID); err != nil {
		return models.RoomSettings{}, err
	}
	if patch == nil {
		return models.RoomSettings{}, invalid("params", "must be an object")
	}

	r.settings = ApplyPatch(r.settings, patch)
	r.persistSettings(r.settings.FullPatch())
	r.touch()

	r.broadcastState()
	return cloneSettings(r.settings), nil
}

// Start begins a quiz from the lobby (or after one ended).
func (r *Room) Start(requesterConnID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireHost(requesterConnID); err != nil {
		return err
	}

	r.reconcileSettings()
	r.round = nil
	r.beginQuiz()

	log.Info().Str("room_code", r.code).Msg("quiz started")
	r.drawNextQuestion()
	return nil
}

// Restart abandons the running quiz and starts a fresh one.
func (r *Room) Restart(requesterConnID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireHost(requesterConnID); err != nil {
		return err
	}

	r.cancelTimer()
	r.reconcileSettings()
	r.round = nil
	r.beginQuiz()

	log.Info().Str("room_code", r.code).Msg("quiz restarted")
	r.drawNextQuestion()
	return nil
}

// ReturnToLobby stops the quiz and sends everyone back to the lobby. It returns the lobby URL.
func (r *Room) ReturnToLobby(requesterConnID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireHost(requesterConnID); err != nil {
		return "", err
	}

	r.cancelTimer()
	r.round = nil
	r.status = models.RoomStatusLobby
	r.touch()

	url := strings.TrimSuffix(r.deps.PublicBaseURL, "/") + "/rooms/" + r.code
	r.broadcastState()
	r.broadcast(events.QuizLobby, events.LobbyPayload{Code: r.code, URL: url})
	return url, nil
}

// OnDisconnect clears connID from the roster. Unlike Leave it does not move
// host authority, so a host who reconnects gets it back.
func (r *Room) OnDisconnect(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}

	p := r.playerByConn(connID)
	if p == nil {
		return false
	}
	p.ConnID = ""
	if r.hostConnID == connID {
		r.hostConnID = ""
	}
	r.touch()

	r.broadcastState()
	return true
}

func (r *Room) beginQuiz() {
	r.status = models.RoomStatusRunning
	for _, p := range r.players {
		p.Score = 0
		p.Answered = false
	}
	r.touch()

	r.broadcastState()
	r.broadcast(events.RoomStarted, events.RoomStartedPayload{
		Code:      r.code,
		StartedAt: r.deps.Clock.Now().UnixMilli(),
	})
}

// reconcileSettings picks up fields edited in the store since the room was loaded.
// It is skipped while the store lags behind a failed write.
func (r *Room) reconcileSettings() {
	if !r.persisted || r.deps.Store == nil || r.settingsUnsynced {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.deps.StoreTimeout)
	defer cancel()

	rec, err := r.deps.Store.FindRoomByCode(ctx, r.code)
	if err != nil {
		log.Warn().Err(err).Str("room_code", r.code).Msg("could not reconcile settings, using in-memory values")
		return
	}

	stored := rec.Settings
	s := r.settings
	s.TargetScore = stored.TargetScore
	s.AnswerWindowSeconds = stored.AnswerWindowSeconds
	s.ShowGuesses = stored.ShowGuesses
	s.MaxPlayers = stored.MaxPlayers
	s.ExcludedNames = append([]string{}, stored.ExcludedNames...)
	s.Scoring = stored.Scoring
	s.Categories = append([]int64{}, stored.Categories...)
	r.settings = NormalizeSettings(s)
}

// applyStoredSettings replaces the settings of a room that is not running with
// the stored ones. It reports whether anything changed. Rooms whose last
// settings write failed keep their in-memory values.
func (r *Room) applyStoredSettings(stored models.RoomSettings) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.status == models.RoomStatusRunning {
		return false
	}
	// The store still holds settings from before a failed write.
	if r.settingsUnsynced {
		log.Debug().Str("room_code", r.code).Msg("ignoring stored settings until the pending write succeeds")
		return false
	}

	next := NormalizeSettings(stored)
	if settingsEqual(next, r.settings) {
		return false
	}
	r.settings = next
	r.broadcastState()
	return true
}

func settingsEqual(a, b models.RoomSettings) bool {
	if len(a.ExcludedNames) != len(b.ExcludedNames) || len(a.Categories) != len(b.Categories) {
		return false
	}
	for i := range a.ExcludedNames {
		if a.ExcludedNames[i] != b.ExcludedNames[i] {
			return false
		}
	}
	for i := range a.Categories {
		if a.Categories[i] != b.Categories[i] {
			return false
		}
	}
	return a.Visibility == b.Visibility &&
		a.MaxPlayers == b.MaxPlayers &&
		a.AnswerWindowSeconds == b.AnswerWindowSeconds &&
		a.TargetScore == b.TargetScore &&
		a.Scoring == b.Scoring &&
		a.ShowGuesses == b.ShowGuesses &&
		a.ApprovedOnly == b.ApprovedOnly &&
		a.PreRoundDelaySeconds == b.PreRoundDelaySeconds &&
		a.ResultDelaySeconds == b.ResultDelaySeconds
}
