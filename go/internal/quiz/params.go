package quiz

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/mcdev12/quizrooms/go/internal/models"
)

// Parameter bounds. Values outside are clamped, never rejected.
const (
	MinPlayers         = 2
	MaxPlayers         = 20
	MinAnswerWindow    = 5
	MaxAnswerWindow    = 60
	MinTargetScore     = 10
	MaxTargetScore     = 1000
	MaxResultDelay     = 10
	defaultMaxPlayers  = 10
	defaultAnswerSecs  = 15
	defaultTarget      = 100
	defaultResultDelay = 5
)

// Settings keys accepted by ApplyPatch. Inbound payloads are camelCase like the
// rest of the client protocol; outbound settings keep the snake_case JSON tags.
const (
	keyVisibility    = "visibility"
	keyMaxPlayers    = "maxPlayers"
	keyExcludedNames = "excludedNames"
	keyCategories    = "categories"
	keyAnswerWindow  = "answerWindowSeconds"
	keyTargetScore   = "targetScore"
	keyScoring       = "scoring"
	keyShowGuesses   = "showGuesses"
	keyResultDelay   = "resultDelaySeconds"
)

// DefaultSettings returns the parameters of a freshly created room.
func DefaultSettings() models.RoomSettings {
	return models.RoomSettings{
		Visibility:           models.VisibilityPublic,
		MaxPlayers:           defaultMaxPlayers,
		ExcludedNames:        []string{},
		Categories:           []int64{},
		AnswerWindowSeconds:  defaultAnswerSecs,
		TargetScore:          defaultTarget,
		Scoring:              models.ScoringDegressive,
		ShowGuesses:          true,
		ApprovedOnly:         true,
		PreRoundDelaySeconds: 0,
		ResultDelaySeconds:   defaultResultDelay,
	}
}

// NormalizeSettings clamps every field into range and pins the fixed ones.
// Stored rows go through it on hydration so hand-edited values cannot escape the bounds.
func NormalizeSettings(s models.RoomSettings) models.RoomSettings {
	if s.Visibility != models.VisibilityPrivate {
		s.Visibility = models.VisibilityPublic
	}
	if s.Scoring != models.ScoringFixed {
		s.Scoring = models.ScoringDegressive
	}
	s.MaxPlayers = clamp(s.MaxPlayers, MinPlayers, MaxPlayers)
	s.AnswerWindowSeconds = clamp(s.AnswerWindowSeconds, MinAnswerWindow, MaxAnswerWindow)
	s.TargetScore = clamp(s.TargetScore, MinTargetScore, MaxTargetScore)
	s.ResultDelaySeconds = clamp(s.ResultDelaySeconds, 0, MaxResultDelay)
	s.ExcludedNames = dedupeNames(s.ExcludedNames)
	s.Categories = dedupeIDs(s.Categories)
	s.ApprovedOnly = true
	s.PreRoundDelaySeconds = 0
	return s
}

// ApplyPatch merges a loosely typed partial update (as decoded from JSON) into cur.
// Unknown keys are ignored, unparsable values keep the current value, numbers are
// clamped and truthy or falsy values are coerced to booleans.
func ApplyPatch(cur models.RoomSettings, patch map[string]any) models.RoomSettings {
	next := cur
	next.ExcludedNames = append([]string(nil), cur.ExcludedNames...)
	next.Categories = append([]int64(nil), cur.Categories...)

	if v, ok := patch[keyVisibility]; ok {
		switch strings.ToLower(strings.TrimSpace(toString(v))) {
		case string(models.VisibilityPrivate):
			next.Visibility = models.VisibilityPrivate
		case string(models.VisibilityPublic):
			next.Visibility = models.VisibilityPublic
		}
	}
	if v, ok := patch[keyMaxPlayers]; ok {
		if n, ok := toInt(v); ok {
			next.MaxPlayers = n
		}
	}
	if v, ok := patch[keyAnswerWindow]; ok {
		if n, ok := toInt(v); ok {
			next.AnswerWindowSeconds = n
		}
	}
	if v, ok := patch[keyTargetScore]; ok {
		if n, ok := toInt(v); ok {
			next.TargetScore = n
		}
	}
	if v, ok := patch[keyResultDelay]; ok {
		if n, ok := toInt(v); ok {
			next.ResultDelaySeconds = n
		}
	}
	if v, ok := patch[keyScoring]; ok {
		if strings.EqualFold(toString(v), string(models.ScoringFixed)) {
			next.Scoring = models.ScoringFixed
		} else {
			next.Scoring = models.ScoringDegressive
		}
	}
	if v, ok := patch[keyShowGuesses]; ok {
		next.ShowGuesses = truthy(v)
	}
	if v, ok := patch[keyExcludedNames]; ok {
		if items, ok := v.([]any); ok {
			names := make([]string, 0, len(items))
			for _, it := range items {
				if s, ok := it.(string); ok {
					names = append(names, s)
				}
			}
			next.ExcludedNames = names
		}
	}
	if v, ok := patch[keyCategories]; ok {
		if items, ok := v.([]any); ok {
			ids := make([]int64, 0, len(items))
			for _, it := range items {
				if f, ok := toFloat(it); ok {
					ids = append(ids, int64(f))
				}
			}
			next.Categories = ids
		}
	}

	return NormalizeSettings(next)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok {
		return 0, false
	}
	// Keep huge inputs clampable without overflowing int.
	if f > math.MaxInt32 {
		return math.MaxInt32, true
	}
	if f < math.MinInt32 {
		return math.MinInt32, true
	}
	return int(f), true
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "", "0", "false", "no", "off":
			return false
		}
		return true
	default:
		f, ok := toFloat(v)
		if !ok {
			return true
		}
		return f != 0
	}
}

func dedupeNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || containsFold(out, n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func dedupeIDs(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func containsFold(list []string, name string) bool {
	for _, n := range list {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}
