package quiz

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mcdev12/quizrooms/go/internal/answer"
	"github.com/mcdev12/quizrooms/go/internal/models"
	"github.com/mcdev12/quizrooms/go/internal/quiz/events"
	"github.com/rs/zerolog/log"
)

const (
	fixedPoints      = 10
	degressiveBase   = 11
	minPointsPerHit  = 1
	leaderboardDepth = 3
)

// QuestionBody is the presentation variant of a selected question.
type QuestionBody interface {
	Kind() models.QuestionKind
}

// QuoteBody is a question built around a quotation.
type QuoteBody struct{ Text string }

// ImageBody is a question built around a picture.
type ImageBody struct{ URL string }

// PlainBody is a text-only question.
type PlainBody struct{}

func (QuoteBody) Kind() models.QuestionKind { return models.QuestionKindQuote }
func (ImageBody) Kind() models.QuestionKind { return models.QuestionKindImage }
func (PlainBody) Kind() models.QuestionKind { return models.QuestionKindPlain }

// SelectedQuestion is a drawn question with its answers already canonicalized.
type SelectedQuestion struct {
	ID           int64
	Prompt       string
	Body         QuestionBody
	Answer       string
	Alternatives []string
	Explanation  *string
	Author       *string
	Categories   []models.Category
}

func selectQuestion(q *models.Question, uploadsBaseURL string) SelectedQuestion {
	sq := SelectedQuestion{
		ID:          q.ID,
		Prompt:      q.Prompt,
		Answer:      answer.Normalize(q.Answer),
		Explanation: q.Explanation,
		Author:      q.AuthorName,
		Categories:  q.Categories,
	}
	for _, alt := range q.Alternatives {
		if n := answer.Normalize(alt); n != "" {
			sq.Alternatives = append(sq.Alternatives, n)
		}
	}

	quote := derefOr(q.QuoteText)
	image := derefOr(q.ImagePath)
	kind := q.Kind
	if kind == "" {
		switch {
		case quote != "":
			kind = models.QuestionKindQuote
		case image != "":
			kind = models.QuestionKindImage
		}
	}

	switch {
	case kind == models.QuestionKindQuote && quote != "":
		sq.Body = QuoteBody{Text: quote}
	case kind == models.QuestionKindImage && image != "":
		sq.Body = ImageBody{URL: absoluteImageURL(uploadsBaseURL, image)}
	default:
		sq.Body = PlainBody{}
	}
	return sq
}

// absoluteImageURL prefixes relative upload paths with the uploads base URL.
func absoluteImageURL(base, path string) string {
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		return path
	}
	if base == "" {
		return path
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}

func derefOr(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// round is the state of the question currently being answered.
type round struct {
	question    SelectedQuestion
	startsAt    int64
	endsAt      int64
	guessOrder  []string
	guesses     map[string]string
	firstFinder string
	scorers     int
}

func (rd *round) isCorrect(guess string) bool {
	return answer.Matches(guess, rd.question.Answer, rd.question.Alternatives)
}

// drawNextQuestion starts a new round or ends the quiz when the filtered
// question pool is empty. Callers hold the lock.
func (r *Room) drawNextQuestion() {
	r.cancelTimer()
	if r.closed || r.status != models.RoomStatusRunning {
		return
	}

	q, err := r.findQuestion()
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			log.Warn().Err(err).Str("room_code", r.code).Msg("question draw failed")
		}
		r.round = nil
		r.status = models.RoomStatusEnded
		log.Info().Str("room_code", r.code).Msg("quiz ended, no question available")
		r.broadcast(events.QuizEnded, events.QuizEndedPayload{Reason: events.EndReasonNoQuestion})
		return
	}

	for _, p := range r.players {
		p.Answered = false
	}

	now := r.deps.Clock.Now()
	pre := time.Duration(r.settings.PreRoundDelaySeconds) * time.Second
	window := time.Duration(r.settings.AnswerWindowSeconds) * time.Second
	startsAt := now.Add(pre)
	endsAt := startsAt.Add(window)

	r.round = &round{
		question: selectQuestion(q, r.deps.UploadsBaseURL),
		startsAt: startsAt.UnixMilli(),
		endsAt:   endsAt.UnixMilli(),
		guesses:  make(map[string]string),
	}
	r.schedule(pre+window, r.endRound)
	r.touch()

	log.Info().
		Str("room_code", r.code).
		Int64("question_id", q.ID).
		Str("kind", string(r.round.question.Body.Kind())).
		Time("ends_at", endsAt).
		Msg("round started")

	r.broadcast(events.RoundQuestion, r.questionPayload())
}

func (r *Room) findQuestion() (*models.Question, error) {
	if r.deps.Store == nil {
		return nil, models.ErrNotFound
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.deps.StoreTimeout)
	defer cancel()
	q, err := r.deps.Store.FindRandomQuestion(ctx, QuestionFilter{
		ApprovedOnly: r.settings.ApprovedOnly,
		CategoryIDs:  append([]int64{}, r.settings.Categories...),
	})
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, models.ErrNotFound
	}
	return q, nil
}

func (r *Room) questionPayload() events.RoundQuestionPayload {
	sq := r.round.question
	view := events.QuestionView{
		ID:         sq.ID,
		Kind:       sq.Body.Kind(),
		Prompt:     sq.Prompt,
		Categories: sq.Categories,
	}
	switch b := sq.Body.(type) {
	case QuoteBody:
		view.QuoteText = b.Text
	case ImageBody:
		view.ImageURL = b.URL
	}
	return events.RoundQuestionPayload{
		Question:  view,
		StartsAt:  r.round.startsAt,
		EndsAt:    r.round.endsAt,
		ServerNow: r.deps.Clock.Now().UnixMilli(),
		Settings:  cloneSettings(r.settings),
	}
}

// SubmitAnswer records a guess from connID and reports whether it was correct.
// Submissions outside a running round are ignored. The first correct answer of
// each player per round scores; in degressive mode the n-th scorer of the round
// gets max(1, 11-n) points, in fixed mode 10.
func (r *Room) SubmitAnswer(connID, text string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false, ErrRoomNotFound
	}
	if r.status != models.RoomStatusRunning || r.round == nil {
		return false, nil
	}
	p := r.playerByConn(connID)
	if p == nil {
		return false, nil
	}

	// Guesses that normalize to nothing still replace the previous one.
	guess := answer.Normalize(text)
	rd := r.round
	if _, seen := rd.guesses[connID]; !seen {
		rd.guessOrder = append(rd.guessOrder, connID)
	}
	rd.guesses[connID] = guess
	r.touch()

	correct := guess != "" && rd.isCorrect(guess)
	if correct && !p.Answered {
		p.Answered = true
		rd.scorers++
		points := fixedPoints
		if r.settings.Scoring == models.ScoringDegressive {
			points = max(minPointsPerHit, degressiveBase-rd.scorers)
		}
		p.Score += points
		if rd.firstFinder == "" {
			rd.firstFinder = p.DisplayName
		}

		log.Debug().
			Str("room_code", r.code).
			Int64("user_id", p.UserID).
			Int("points", points).
			Int("score", p.Score).
			Msg("correct answer")

		r.broadcastState()
	}

	r.broadcast(events.RoundGuesses, events.RoundGuessesPayload{Guesses: r.visibleGuesses()})

	if r.allConnectedAnswered() {
		r.cancelTimer()
		r.endRound()
	}
	return correct, nil
}

// visibleGuesses lists the still-wrong, non-empty guesses in first-guess order,
// or nothing when the room hides guesses.
func (r *Room) visibleGuesses() []events.GuessView {
	out := []events.GuessView{}
	if r.round == nil || !r.settings.ShowGuesses {
		return out
	}
	for _, connID := range r.round.guessOrder {
		guess := r.round.guesses[connID]
		if guess == "" || r.round.isCorrect(guess) {
			continue
		}
		p := r.playerByConn(connID)
		if p == nil {
			continue
		}
		out = append(out, events.GuessView{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Avatar:      p.Avatar,
			Score:       p.Score,
			Guess:       guess,
		})
	}
	return out
}

func (r *Room) allConnectedAnswered() bool {
	connected := r.connectedPlayers()
	if len(connected) == 0 {
		return false
	}
	for _, p := range connected {
		if !p.Answered {
			return false
		}
	}
	return true
}

// endRound resolves the current round, then either ends the quiz with a winner
// or schedules the next draw. Callers hold the lock.
func (r *Room) endRound() {
	if r.round == nil {
		return
	}
	rd := r.round

	r.broadcast(events.RoundGuesses, events.RoundGuessesPayload{Guesses: r.visibleGuesses()})
	result := events.RoundResultPayload{
		Answer:      rd.question.Answer,
		Explanation: rd.question.Explanation,
		Author:      rd.question.Author,
	}
	if rd.firstFinder != "" {
		first := rd.firstFinder
		result.FirstFinder = &first
	}
	r.broadcast(events.RoundResult, result)
	r.round = nil

	if winner := r.winner(); winner != nil {
		r.status = models.RoomStatusEnded
		if winner.UserID > 0 {
			userID := winner.UserID
			r.bestEffort("increment_user_wins", func(ctx context.Context, s Store) error {
				return s.IncrementUserWins(ctx, userID)
			})
		}

		log.Info().
			Str("room_code", r.code).
			Int64("user_id", winner.UserID).
			Int("score", winner.Score).
			Msg("quiz won")

		w := standing(winner)
		r.broadcast(events.QuizEnded, events.QuizEndedPayload{
			Reason: events.EndReasonWinner,
			Winner: &w,
			Top:    r.topStandings(leaderboardDepth),
		})
		return
	}

	r.schedule(time.Duration(r.settings.ResultDelaySeconds)*time.Second, r.drawNextQuestion)
}

// winner is the first roster entry that reached the target score.
func (r *Room) winner() *Player {
	for _, p := range r.players {
		if p.Score >= r.settings.TargetScore {
			return p
		}
	}
	return nil
}

// topStandings sorts by score, keeping roster order among ties.
func (r *Room) topStandings(n int) []events.Standing {
	ranked := append([]*Player(nil), r.players...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]events.Standing, 0, len(ranked))
	for _, p := range ranked {
		out = append(out, standing(p))
	}
	return out
}

func standing(p *Player) events.Standing {
	return events.Standing{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Avatar:      p.Avatar,
		Score:       p.Score,
	}
}
