package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/mcdev12/quizrooms/go/internal/models"
	"github.com/mcdev12/quizrooms/go/internal/quiz"
	"github.com/mcdev12/quizrooms/go/internal/respond"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

const (
	qrSize       = 320
	maxBodyBytes = 16 << 10
)

// RoomsApp defines what the service layer needs from the rooms application
type RoomsApp interface {
	CreateRoom(ctx context.Context, ownerID int64, in CreateRoomInput) (*models.Room, error)
	GetRoom(ctx context.Context, code string) (*RoomView, error)
	PublicRooms() []quiz.PublicRoom
}

// Service exposes the room HTTP endpoints
type Service struct {
	app           RoomsApp
	publicBaseURL string
}

// NewService creates a new rooms HTTP service. publicBaseURL prefixes the
// room URL encoded in QR codes; when empty the request host is used.
func NewService(app RoomsApp, publicBaseURL string) *Service {
	return &Service{
		app:           app,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}
}

// RegisterRoutes mounts the room routes on the router
func (s *Service) RegisterRoutes(r *httprouter.Router) {
	r.POST("/rooms", s.CreateRoom)
	r.GET("/rooms/:code", s.GetRoom)
	r.GET("/rooms/:code/qr", s.QRCode)
}

// publicListing is the lower-case path segment serving the public room list.
// httprouter cannot register it next to the :code wildcard, and real codes are
// upper-case, so GetRoom dispatches on it.
const publicListing = "public"

// CreateRoom handles POST /rooms. The caller is identified by X-User-ID.
func (s *Service) CreateRoom(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ownerID, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get("X-User-ID")), 10, 64)
	if err != nil || ownerID <= 0 {
		respond.Error(w, http.StatusUnauthorized, "not_authenticated")
		return
	}

	var in CreateRoomInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&in); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid_body")
		return
	}

	room, err := s.app.CreateRoom(r.Context(), ownerID, in)
	switch {
	case errors.Is(err, ErrInvalidName):
		respond.Error(w, http.StatusBadRequest, "invalid_name")
		return
	case errors.Is(err, ErrInvalidOwner):
		respond.Error(w, http.StatusBadRequest, "user_not_found")
		return
	case err != nil:
		log.Error().Err(err).Int64("user_id", ownerID).Msg("failed to create room")
		respond.Error(w, http.StatusInternalServerError, "internal")
		return
	}

	respond.JSON(w, http.StatusCreated, room)
}

// PublicRooms handles GET /rooms/public
func (s *Service) PublicRooms(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	respond.JSON(w, http.StatusOK, map[string]any{"rooms": s.app.PublicRooms()})
}

// GetRoom handles GET /rooms/:code
func (s *Service) GetRoom(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if p.ByName("code") == publicListing {
		s.PublicRooms(w, r, p)
		return
	}

	view, err := s.app.GetRoom(r.Context(), p.ByName("code"))
	if status, code, ok := errorResponse(err); ok {
		if status == http.StatusInternalServerError {
			log.Error().Err(err).Str("room_code", p.ByName("code")).Msg("failed to get room")
		}
		respond.Error(w, status, code)
		return
	}
	respond.JSON(w, http.StatusOK, view)
}

// QRCode handles GET /rooms/:code/qr with a PNG pointing at the room page
func (s *Service) QRCode(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	code, err := quiz.NormalizeCode(p.ByName("code"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid_code")
		return
	}

	png, err := qrcode.Encode(s.roomURL(r, code), qrcode.Medium, qrSize)
	if err != nil {
		log.Error().Err(err).Str("room_code", code).Msg("qr generation failed")
		respond.Error(w, http.StatusInternalServerError, "internal")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(png)
}

func (s *Service) roomURL(r *http.Request, code string) string {
	base := s.publicBaseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/rooms/" + code
}

func errorResponse(err error) (int, string, bool) {
	var verr *quiz.ValidationError
	switch {
	case err == nil:
		return 0, "", false
	case errors.As(err, &verr):
		return http.StatusBadRequest, "invalid_" + verr.Field, true
	case errors.Is(err, models.ErrNotFound), errors.Is(err, quiz.ErrRoomNotFound):
		return http.StatusNotFound, "room_not_found", true
	default:
		return http.StatusInternalServerError, "internal", true
	}
}
