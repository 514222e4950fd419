package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/mcdev12/quizrooms/go/internal/quiz"
	"github.com/rs/zerolog/log"
)

// RoomDirectory is the part of the room registry the dispatcher needs.
type RoomDirectory interface {
	Resolve(ctx context.Context, code string, userID int64) (*quiz.Room, error)
	Lookup(code string) (*quiz.Room, error)
	OnDisconnect(connID string)
}

var (
	errNotAuthenticated = errors.New("connection has no user identity")
	errUnknownEvent     = errors.New("unknown event")
	errRateLimited      = errors.New("rate limit exceeded")
)

type handlerFunc func(ctx context.Context, c *Connection, data json.RawMessage) (ack, error)

// Dispatcher routes inbound frames to room operations and acks the result.
type Dispatcher struct {
	rooms    RoomDirectory
	manager  *ConnectionManager
	timeout  time.Duration
	handlers map[string]handlerFunc
}

// NewDispatcher wires d into manager. timeout bounds store lookups made while
// resolving a room on join.
func NewDispatcher(manager *ConnectionManager, rooms RoomDirectory, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := &Dispatcher{
		rooms:   rooms,
		manager: manager,
		timeout: timeout,
	}
	d.handlers = map[string]handlerFunc{
		EventAuthHello:    d.hello,
		EventRoomJoin:     d.join,
		EventRoomLeave:    d.leave,
		EventRoomConfig:   d.configure,
		EventRoomStart:    d.start,
		EventRoomRestart:  d.restart,
		EventRoomLobby:    d.lobby,
		EventRoomKick:     d.kick(false),
		EventRoomBan:      d.kick(true),
		EventRoomUnban:    d.unban,
		EventRoomTransfer: d.transferHost,
		EventRoundAnswer:  d.answer,
	}
	manager.SetDispatcher(d)
	return d
}

func (d *Dispatcher) handle(c *Connection, raw []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		log.Debug().Err(err).Str("connection_id", c.ID).Msg("dropping malformed frame")
		return
	}

	if !c.limiter.allow() {
		log.Warn().Str("connection_id", c.ID).Str("event", frame.Event).Msg("rate limit exceeded")
		d.manager.ack(c, frame.ID, errAck(ackCode(errRateLimited)))
		return
	}

	h, ok := d.handlers[frame.Event]
	if !ok {
		d.manager.ack(c, frame.ID, errAck(ackCode(errUnknownEvent)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	result, err := h(ctx, c, frame.Data)
	if err != nil {
		code := ackCode(err)
		ev := log.Debug()
		if code == "internal" {
			ev = log.Error()
		}
		ev.Err(err).
			Str("connection_id", c.ID).
			Str("event", frame.Event).
			Str("ack_error", code).
			Msg("client event rejected")
		d.manager.ack(c, frame.ID, errAck(code))
		return
	}
	d.manager.ack(c, frame.ID, result)
}

func (d *Dispatcher) connectionClosed(c *Connection) {
	d.rooms.OnDisconnect(c.ID)
}

// ackCode maps an operation error to the error string sent to clients.
func ackCode(err error) string {
	var verr *quiz.ValidationError
	switch {
	case errors.As(err, &verr):
		return "invalid_" + lowerCamel(verr.Field)
	case errors.Is(err, errNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, errUnknownEvent):
		return "unknown_event"
	case errors.Is(err, errRateLimited):
		return "rate_limited"
	case errors.Is(err, quiz.ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, quiz.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, quiz.ErrNotHost):
		return "not_host"
	case errors.Is(err, quiz.ErrBanned):
		return "banned"
	case errors.Is(err, quiz.ErrRoomFull):
		return "room_full"
	case errors.Is(err, quiz.ErrTargetNotConnected):
		return "target_not_connected"
	default:
		return "internal"
	}
}

// lowerCamel turns display_name into displayName to match client field names.
func lowerCamel(field string) string {
	parts := strings.Split(field, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &quiz.ValidationError{Field: "data", Reason: "malformed payload"}
	}
	return nil
}

func (d *Dispatcher) room(code string) (*quiz.Room, error) {
	return d.rooms.Lookup(code)
}

func (d *Dispatcher) hello(_ context.Context, c *Connection, data json.RawMessage) (ack, error) {
	var req helloRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if req.UserID <= 0 {
		return nil, &quiz.ValidationError{Field: "user_id", Reason: "must be positive"}
	}
	c.bindUser(req.UserID)

	log.Debug().Str("connection_id", c.ID).Int64("user_id", req.UserID).Msg("connection authenticated")
	return okAck("userId", req.UserID), nil
}

func (d *Dispatcher) join(ctx context.Context, c *Connection, data json.RawMessage) (ack, error) {
	var req joinRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}

	userID := c.UserID()
	if userID == 0 && req.UserID > 0 {
		userID = req.UserID
		c.bindUser(userID)
	}
	if userID <= 0 {
		return nil, errNotAuthenticated
	}

	r, err := d.rooms.Resolve(ctx, req.Code, userID)
	if err != nil {
		return nil, err
	}
	if err := r.Join(c.ID, userID, req.DisplayName, req.Avatar); err != nil {
		return nil, err
	}
	return okAck("code", r.Code()), nil
}

func (d *Dispatcher) leave(_ context.Context, c *Connection, data json.RawMessage) (ack, error) {
	var req roomRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	r, err := d.room(req.Code)
	if err != nil {
		return nil, err
	}
	if err := r.Leave(c.ID); err != nil {
		return nil, err
	}
	return okAck(), nil
}

func (d *Dispatcher) configure(_ context.Context, c *Connection, data json.RawMessage) (ack, error) {
	var req configureRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	r, err := d.room(req.Code)
	if err != nil {
		return nil, err
	}
	settings, err := r.UpdateParameters(c.ID, req.Params)
	if err != nil {
		return nil, err
	}
	return okAck("settings", settings), nil
}

func (d *Dispatcher) start(_ context.Context, c *Connection, data json.RawMessage) (ack, error) {
	var req roomRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	r, err := d.room(req.Code)
	if err != nil {
		return nil, err
	}
	if err := r.Start(c.ID); err != nil {
		return nil, err
	}
	return okAck(), nil
}

func (d *Dispatcher) restart(_ context.Context, c *Connection, data json.RawMessage) (ack, error) {
	var req roomRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	r, err := d.room(req.Code)
	if err != nil {
		return nil, err
	}
	if err := r.Restart(c.ID); err != nil {
		return nil, err
	}
	return okAck(), nil
}

func (d *Dispatcher) lobby(_ context.Context, c *Connection, data json.RawMessage) (ack, error) {
	var req roomRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	r, err := d.room(req.Code)
	if err != nil {
		return nil, err
	}
	url, err := r.ReturnToLobby(c.ID)
	if err != nil {
		return nil, err
	}
	return okAck("code", r.Code(), "url", url), nil
}

func (d *Dispatcher) kick(ban bool) handlerFunc {
	return func(_ context.Context, c *Connection, data json.RawMessage) (ack, error) {
		var req targetRequest
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		r, err := d.room(req.Code)
		if err != nil {
			return nil, err
		}
		if err := r.Kick(c.ID, req.UserID, ban); err != nil {
			return nil, err
		}
		return okAck(), nil
	}
}

func (d *Dispatcher) unban(_ context.Context, c *Connection, data json.RawMessage) (ack, error) {
	var req unbanRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	r, err := d.room(req.Code)
	if err != nil {
		return nil, err
	}
	names, err := r.Unban(c.ID, req.DisplayName)
	if err != nil {
		return nil, err
	}
	return okAck("excludedNames", names), nil
}

func (d *Dispatcher) transferHost(_ context.Context, c *Connection, data json.RawMessage) (ack, error) {
	var req targetRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	r, err := d.room(req.Code)
	if err != nil {
		return nil, err
	}
	if err := r.TransferHost(c.ID, req.UserID); err != nil {
		return nil, err
	}
	return okAck(), nil
}

func (d *Dispatcher) answer(_ context.Context, c *Connection, data json.RawMessage) (ack, error) {
	var req answerRequest
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	r, err := d.room(req.Code)
	if err != nil {
		return nil, err
	}
	correct, err := r.SubmitAnswer(c.ID, req.Text)
	if err != nil {
		return nil, err
	}
	return okAck("correct", correct), nil
}
