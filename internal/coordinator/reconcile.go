package coordinator

import (
	"github.com/xfactor-puzzles/triviatoe/internal/room"
	"github.com/xfactor-puzzles/triviatoe/pkg/protocol"
)

// SessionView is everything a client needs to resume a room session. It is
// derived from the durable room record alone so a process restart (which
// wipes the connection registry) costs nothing but a rejoin.
type SessionView struct {
	Member bool
	Symbol room.Symbol
	IsHost bool

	// State is the authoritative snapshot, present only once the game has
	// started. Reconnecting clients render it immediately instead of waiting
	// for the next broadcast.
	State *protocol.GameState
}

// Reconcile matches identity against the room roster. No hidden inputs: the
// same identity and room always produce the same view.
func Reconcile(identity string, r *room.Room) SessionView {
	p := r.FindPlayer(identity)
	if p == nil {
		return SessionView{}
	}
	view := SessionView{
		Member: true,
		Symbol: p.Symbol,
		IsHost: p.IsHost,
	}
	if r.Started {
		view.State = Snapshot(r)
	}
	return view
}

// Snapshot is the shareable view of a room's progress: the masked board
// plus whose turn it is and who won, if anyone.
func Snapshot(r *room.Room) *protocol.GameState {
	return &protocol.GameState{
		Board:         maskBoard(r.Board),
		Category:      r.Category,
		CurrentPlayer: string(r.CurrentTurn),
		Started:       r.Started,
		Winner:        r.Winner,
	}
}

// Roster lists the seated players as clients see them.
func Roster(r *room.Room) []protocol.PlayerInfo { return playerInfos(r) }

// maskBoard strips expected answers before a board crosses the wire.
func maskBoard(board []room.Cell) []protocol.CellView {
	out := make([]protocol.CellView, len(board))
	for i, c := range board {
		out[i] = protocol.CellView{
			Prompt:   c.Prompt,
			Solved:   c.Solved,
			SolvedBy: string(c.SolvedBy),
		}
	}
	return out
}

func playerInfos(r *room.Room) []protocol.PlayerInfo {
	out := make([]protocol.PlayerInfo, 0, len(r.Players))
	for _, p := range r.Players {
		out = append(out, protocol.PlayerInfo{
			Name:   p.Name,
			Symbol: string(p.Symbol),
			IsHost: p.IsHost,
		})
	}
	return out
}
