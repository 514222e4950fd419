package gateway

import (
	"encoding/json"
	"time"
)

// RoomEvent is the envelope of every server-pushed event
type RoomEvent struct {
	ID        string          `json:"id"`        // Event UUID
	Type      string          `json:"type"`      // Event name, e.g. room:update
	RoomCode  string          `json:"room_code"` // Empty for connection-level events
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// AckFrame answers a client frame that carried an id
type AckFrame struct {
	Type  string `json:"type"` // always "ack"
	AckID string `json:"ack_id"`
	Data  any    `json:"data"`
}

// ClientFrame is one inbound message
type ClientFrame struct {
	ID    string          `json:"id,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

const ackType = "ack"

// Inbound event names
const (
	EventAuthHello    = "auth:hello"
	EventRoomJoin     = "room:join"
	EventRoomLeave    = "room:leave"
	EventRoomConfig   = "room:configure"
	EventRoomStart    = "room:start"
	EventRoomRestart  = "room:restart"
	EventRoomLobby    = "room:lobby"
	EventRoomKick     = "room:kick"
	EventRoomBan      = "room:ban"
	EventRoomUnban    = "room:unban"
	EventRoomTransfer = "room:transfer-host"
	EventRoundAnswer  = "round:answer"
)

// Inbound payloads. Field names follow the web client.

type helloRequest struct {
	UserID int64 `json:"userId"`
}

type roomRequest struct {
	Code string `json:"code"`
}

type joinRequest struct {
	Code        string `json:"code"`
	DisplayName string `json:"displayName"`
	UserID      int64  `json:"userId"`
	Avatar      string `json:"avatar"`
}

type configureRequest struct {
	Code   string         `json:"code"`
	Params map[string]any `json:"params"`
}

type targetRequest struct {
	Code   string `json:"code"`
	UserID int64  `json:"userId"`
}

type unbanRequest struct {
	Code        string `json:"code"`
	DisplayName string `json:"displayName"`
}

type answerRequest struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

// ack is the data of an AckFrame: {"ok": true, ...} or {"ok": false, "error": code}
type ack map[string]any

func okAck(kv ...any) ack {
	a := ack{"ok": true}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			a[k] = kv[i+1]
		}
	}
	return a
}

func errAck(code string) ack {
	return ack{"ok": false, "error": code}
}
