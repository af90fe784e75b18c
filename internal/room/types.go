package room

import (
	"time"
)

// Symbol identifies a player's side on the board.
type Symbol string

const (
	SymbolX Symbol = "X"
	SymbolO Symbol = "O"
)

// WinnerTie marks a finished game with no winning line.
const WinnerTie = "tie"

// State is the protocol-level lifecycle of a room, derived from its record.
type State string

const (
	StateWaiting    State = "WAITING"
	StateReady      State = "READY"
	StateInProgress State = "IN_PROGRESS"
	StateFinished   State = "FINISHED"
)

// BoardSize is the number of cells on a board once a game has started.
const BoardSize = 9

// Player is a durable roster entry. Identity is the authentication-derived
// user reference; it is what reconnection matches against.
type Player struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
	IsHost   bool   `json:"is_host"`
	Symbol   Symbol `json:"symbol"`
}

// Cell is one board slot. Answer stays server-side.
type Cell struct {
	Prompt   string `json:"prompt"`
	Answer   string `json:"answer"`
	Solved   bool   `json:"solved"`
	SolvedBy Symbol `json:"solved_by,omitempty"`
}

// Room is the persisted state of a single two-player match, keyed by Code.
type Room struct {
	Code        string    `json:"code"`
	Category    string    `json:"category"`
	Players     []Player  `json:"players"`
	Board       []Cell    `json:"board,omitempty"`
	Started     bool      `json:"started"`
	CurrentTurn Symbol    `json:"current_turn,omitempty"`
	Winner      string    `json:"winner,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// State derives the protocol state from the record.
func (r *Room) State() State {
	switch {
	case r.Winner != "":
		return StateFinished
	case r.Started:
		return StateInProgress
	case len(r.Players) == 2:
		return StateReady
	default:
		return StateWaiting
	}
}

// FindPlayer returns the roster entry matching identity, or nil.
func (r *Room) FindPlayer(identity string) *Player {
	for i := range r.Players {
		if r.Players[i].Identity == identity {
			return &r.Players[i]
		}
	}
	return nil
}

// Host returns the room creator's roster entry, or nil.
func (r *Room) Host() *Player {
	for i := range r.Players {
		if r.Players[i].IsHost {
			return &r.Players[i]
		}
	}
	return nil
}

// Opponent returns the other player's roster entry, or nil.
func (r *Room) Opponent(identity string) *Player {
	for i := range r.Players {
		if r.Players[i].Identity != identity {
			return &r.Players[i]
		}
	}
	return nil
}

// JoinResult reports the outcome of JoinRoom. Reconnecting is true when the
// identity was already on the roster; no duplicate entry is created and the
// original symbol is returned.
type JoinResult struct {
	Room         *Room
	Symbol       Symbol
	IsHost       bool
	Reconnecting bool
}
