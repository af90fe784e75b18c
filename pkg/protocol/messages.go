// Package protocol defines the realtime wire contract between game clients
// and the coordination server. Every frame is an Envelope carrying a closed,
// tagged message kind and a fixed payload shape; free-form payloads are
// rejected at the transport boundary.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind tags a realtime message.
type Kind string

// Client → server.
const (
	KindJoinRoom  Kind = "join room"
	KindStartGame Kind = "start game"
	KindStartAck  Kind = "start:ack"
	KindClaimCell Kind = "claim cell"
)

// Server → client.
const (
	KindGameJoined         Kind = "game:joined"
	KindPlayerJoined       Kind = "player:joined"
	KindPlayerReconnected  Kind = "player:reconnected"
	KindPlayerDisconnected Kind = "player:disconnected"
	KindPlayerLeft         Kind = "player:left"
	KindGameStart          Kind = "game:start"
	KindCountdownStart     Kind = "countdown:start"
	KindAnswerCorrect      Kind = "answer:correct"
	KindAnswerIncorrect    Kind = "answer:incorrect"
	KindCellClaimed        Kind = "cell:claimed"
	KindGameOver           Kind = "game:over"
	KindGameError          Kind = "game:error"
)

// ClientKind reports whether k is a kind clients are allowed to send.
func ClientKind(k Kind) bool {
	switch k {
	case KindJoinRoom, KindStartGame, KindStartAck, KindClaimCell:
		return true
	}
	return false
}

// Envelope is the framing for every realtime message.
type Envelope struct {
	Kind    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodePayload unmarshals the envelope payload into v. A missing payload is
// treated as an empty object so kinds without arguments decode cleanly.
func (e *Envelope) DecodePayload(v any) error {
	raw := e.Payload
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Kind, err)
	}
	return nil
}

// NewEnvelope marshals payload and wraps it with kind.
func NewEnvelope(kind Kind, payload any) (*Envelope, error) {
	if payload == nil {
		return &Envelope{Kind: kind}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return &Envelope{Kind: kind, Payload: raw}, nil
}

// MustEnvelope is NewEnvelope for payload types that cannot fail to marshal.
func MustEnvelope(kind Kind, payload any) *Envelope {
	e, err := NewEnvelope(kind, payload)
	if err != nil {
		panic(err)
	}
	return e
}

// JoinRoomPayload attaches an authorized player to the realtime session of a
// room. Membership itself is established over REST; this only resumes it.
type JoinRoomPayload struct {
	GameCode string `json:"game_code"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
}

// StartGamePayload is the host's request to begin the match.
type StartGamePayload struct {
	GameCode string `json:"game_code"`
	Category string `json:"category,omitempty"`
}

// StartAckPayload acknowledges receipt of a game:start broadcast.
type StartAckPayload struct {
	GameCode string `json:"game_code"`
}

// ClaimCellPayload submits an answer for one board cell.
type ClaimCellPayload struct {
	GameCode  string `json:"game_code"`
	CellIndex int    `json:"cell_index"`
	Answer    string `json:"answer"`
	Symbol    string `json:"symbol,omitempty"`
}

// CellView is one board slot as clients see it. The expected answer never
// leaves the server.
type CellView struct {
	Prompt   string `json:"prompt"`
	Solved   bool   `json:"solved"`
	SolvedBy string `json:"solved_by,omitempty"`
}

// GameState is the authoritative snapshot sent to a reconnecting client.
type GameState struct {
	Board         []CellView `json:"board"`
	Category      string     `json:"category"`
	CurrentPlayer string     `json:"current_player,omitempty"`
	Started       bool       `json:"started"`
	Winner        string     `json:"winner,omitempty"`
}

// GameJoinedPayload answers a join room message. GameState is present only
// when the caller reconnected to a room whose game already started.
type GameJoinedPayload struct {
	Symbol    string     `json:"symbol"`
	IsHost    bool       `json:"is_host"`
	GameState *GameState `json:"game_state,omitempty"`
}

// PlayerInfo is a roster entry in player:joined broadcasts.
type PlayerInfo struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	IsHost bool   `json:"is_host"`
}

// PlayersPayload carries the current roster.
type PlayersPayload struct {
	Players []PlayerInfo `json:"players"`
}

// SymbolPayload identifies a player by symbol in presence broadcasts.
type SymbolPayload struct {
	Symbol string `json:"symbol"`
}

// GameStartPayload fans the fresh board out to both players.
type GameStartPayload struct {
	Board         []CellView `json:"board"`
	CurrentPlayer string     `json:"current_player"`
	Category      string     `json:"category"`
}

// CountdownStartPayload begins the pre-game countdown once both clients have
// acknowledged the board, or the ack window elapsed.
type CountdownStartPayload struct {
	StartTime int64 `json:"start_time"` // unix milliseconds
}

// IndexPayload references a single cell (answer results, private).
type IndexPayload struct {
	Index int `json:"index"`
}

// CellClaimedPayload broadcasts a solved cell.
type CellClaimedPayload struct {
	Index  int    `json:"index"`
	Symbol string `json:"symbol"`
}

// GameOverPayload ends the match. Winner is "X", "O", or "tie".
type GameOverPayload struct {
	Winner   string `json:"winner"`
	GameOver bool   `json:"game_over"`
}

// ErrorPayload reports a validation failure to the offending client only.
type ErrorPayload struct {
	Message string `json:"message"`
}
