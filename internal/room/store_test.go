package room

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, time.Hour), mr
}

func testBoard() []Cell {
	board := make([]Cell, BoardSize)
	for i := range board {
		board[i] = Cell{Prompt: "2 + 3", Answer: "5"}
	}
	return board
}

func startedRoom(t *testing.T, s *Store) *Room {
	t.Helper()
	ctx := context.Background()
	r, err := s.CreateRoom(ctx, "host", "Alice", "easy")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, err := s.JoinRoom(ctx, r.Code, "guest", "Bob"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	r, err = s.StartGame(ctx, r.Code, "easy", testBoard())
	if err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	return r
}

func TestCreateRoomHostIsX(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	r, err := s.CreateRoom(ctx, "host", "Alice", "easy")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if len(r.Code) != codeLength {
		t.Fatalf("code length: got %q", r.Code)
	}
	if len(r.Players) != 1 || !r.Players[0].IsHost || r.Players[0].Symbol != SymbolX {
		t.Fatalf("unexpected host entry: %+v", r.Players)
	}
	if r.State() != StateWaiting {
		t.Fatalf("state: got %s", r.State())
	}
}

func TestCreateRoomCodesUnique(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		r, err := s.CreateRoom(ctx, "host", "Alice", "easy")
		if err != nil {
			t.Fatalf("CreateRoom #%d: %v", i, err)
		}
		if seen[r.Code] {
			t.Fatalf("duplicate code %q", r.Code)
		}
		seen[r.Code] = true
	}
}

func TestJoinRoomSecondPlayerIsO(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	r, _ := s.CreateRoom(ctx, "host", "Alice", "easy")
	res, err := s.JoinRoom(ctx, r.Code, "guest", "Bob")
	if err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	if res.Reconnecting || res.Symbol != SymbolO || res.IsHost {
		t.Fatalf("unexpected join result: %+v", res)
	}
	if len(res.Room.Players) != 2 {
		t.Fatalf("roster size: got %d", len(res.Room.Players))
	}
	if res.Room.State() != StateReady {
		t.Fatalf("state: got %s", res.Room.State())
	}
}

func TestJoinRoomIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	r, _ := s.CreateRoom(ctx, "host", "Alice", "easy")
	if _, err := s.JoinRoom(ctx, r.Code, "guest", "Bob"); err != nil {
		t.Fatalf("first join: %v", err)
	}
	res, err := s.JoinRoom(ctx, r.Code, "guest", "Bob")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if !res.Reconnecting || res.Symbol != SymbolO {
		t.Fatalf("expected reconnect with original symbol, got %+v", res)
	}
	if len(res.Room.Players) != 2 {
		t.Fatalf("rejoin duplicated roster: %+v", res.Room.Players)
	}

	// Host rejoining keeps X and host flag.
	res, err = s.JoinRoom(ctx, r.Code, "host", "Alice")
	if err != nil {
		t.Fatalf("host rejoin: %v", err)
	}
	if !res.Reconnecting || res.Symbol != SymbolX || !res.IsHost {
		t.Fatalf("host rejoin result: %+v", res)
	}
}

func TestJoinRoomFull(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	r, _ := s.CreateRoom(ctx, "host", "Alice", "easy")
	if _, err := s.JoinRoom(ctx, r.Code, "guest", "Bob"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	if _, err := s.JoinRoom(ctx, r.Code, "third", "Eve"); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("expected ErrRoomFull, got %v", err)
	}
}

func TestJoinRoomUnknownCode(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.JoinRoom(context.Background(), "NOSUCH", "guest", "Bob"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestStartGameRequiresTwoPlayers(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	r, _ := s.CreateRoom(ctx, "host", "Alice", "easy")
	if _, err := s.StartGame(ctx, r.Code, "easy", testBoard()); !errors.Is(err, ErrNotEnoughPlayers) {
		t.Fatalf("expected ErrNotEnoughPlayers, got %v", err)
	}
}

func TestStartGameOnlyOnce(t *testing.T) {
	s, _ := newTestStore(t)
	r := startedRoom(t, s)

	if !r.Started || r.CurrentTurn != SymbolX || len(r.Board) != BoardSize {
		t.Fatalf("unexpected started room: %+v", r)
	}
	if _, err := s.StartGame(context.Background(), r.Code, "easy", testBoard()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestApplyMoveSolvesCellOnce(t *testing.T) {
	s, _ := newTestStore(t)
	r := startedRoom(t, s)
	ctx := context.Background()

	updated, err := s.ApplyMove(ctx, r.Code, 0, SymbolX)
	if err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
	if !updated.Board[0].Solved || updated.Board[0].SolvedBy != SymbolX {
		t.Fatalf("cell not solved: %+v", updated.Board[0])
	}
	if updated.CurrentTurn != SymbolO {
		t.Fatalf("turn did not alternate: %s", updated.CurrentTurn)
	}

	if _, err := s.ApplyMove(ctx, r.Code, 0, SymbolO); !errors.Is(err, ErrCellAlreadySolved) {
		t.Fatalf("expected ErrCellAlreadySolved, got %v", err)
	}
}

func TestApplyMoveConcurrentSameCell(t *testing.T) {
	s, _ := newTestStore(t)
	r := startedRoom(t, s)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, sym := range []Symbol{SymbolX, SymbolO} {
		wg.Add(1)
		go func(i int, sym Symbol) {
			defer wg.Done()
			_, errs[i] = s.ApplyMove(ctx, r.Code, 4, sym)
		}(i, sym)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrCellAlreadySolved):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 || lost != 1 {
		t.Fatalf("expected exactly one winner of the cell, got won=%d lost=%d", won, lost)
	}
}

func TestApplyMoveDetectsWinner(t *testing.T) {
	s, _ := newTestStore(t)
	r := startedRoom(t, s)
	ctx := context.Background()

	for _, idx := range []int{0, 1} {
		if _, err := s.ApplyMove(ctx, r.Code, idx, SymbolX); err != nil {
			t.Fatalf("ApplyMove %d: %v", idx, err)
		}
	}
	updated, err := s.ApplyMove(ctx, r.Code, 2, SymbolX)
	if err != nil {
		t.Fatalf("ApplyMove 2: %v", err)
	}
	if updated.Winner != string(SymbolX) {
		t.Fatalf("expected winner X, got %q", updated.Winner)
	}
	if updated.State() != StateFinished {
		t.Fatalf("state: got %s", updated.State())
	}

	if _, err := s.ApplyMove(ctx, r.Code, 5, SymbolO); !errors.Is(err, ErrGameFinished) {
		t.Fatalf("expected ErrGameFinished, got %v", err)
	}
}

func TestApplyMoveBeforeStart(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	r, _ := s.CreateRoom(ctx, "host", "Alice", "easy")
	if _, err := s.ApplyMove(ctx, r.Code, 0, SymbolX); !errors.Is(err, ErrGameNotStarted) {
		t.Fatalf("expected ErrGameNotStarted, got %v", err)
	}
}

func TestRemovePlayerDeletesEmptyRoom(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	r, _ := s.CreateRoom(ctx, "host", "Alice", "easy")
	if _, err := s.JoinRoom(ctx, r.Code, "guest", "Bob"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	cur, deleted, err := s.RemovePlayer(ctx, r.Code, "guest")
	if err != nil || deleted {
		t.Fatalf("first remove: deleted=%v err=%v", deleted, err)
	}
	if len(cur.Players) != 1 {
		t.Fatalf("roster after remove: %+v", cur.Players)
	}

	_, deleted, err = s.RemovePlayer(ctx, r.Code, "host")
	if err != nil || !deleted {
		t.Fatalf("last remove: deleted=%v err=%v", deleted, err)
	}
	if _, err := s.GetRoom(ctx, r.Code); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound after delete, got %v", err)
	}
}

func TestRoomExpiresAfterTTL(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	r := startedRoom(t, s)

	// Mid-game writes must not extend the original expiry window.
	if _, err := s.ApplyMove(ctx, r.Code, 0, SymbolX); err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}

	mr.FastForward(time.Hour + time.Minute)

	if _, err := s.GetRoom(ctx, r.Code); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound after TTL, got %v", err)
	}
	if _, err := s.JoinRoom(ctx, r.Code, "guest", "Bob"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected rejoin after TTL to fail, got %v", err)
	}
}
