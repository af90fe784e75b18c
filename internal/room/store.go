package room

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is the fixed lifetime of a room measured from creation.
	// Rooms disappear after it unconditionally, finished or not.
	DefaultTTL = time.Hour

	codeLength   = 6
	codeAttempts = 5

	// updateAttempts bounds the optimistic-concurrency retry loop. A retry
	// only happens when another writer touched the same room between our
	// read and write.
	updateAttempts = 3
)

// Store is the durable source of truth for rooms. One JSON document per room
// under room:<CODE>, expiring ttl after creation. Every mutation is a WATCH
// transaction on that key so concurrent writers serialize; later writes keep
// the original TTL.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore wraps rdb. A zero ttl falls back to DefaultTTL.
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) key(code string) string { return "room:" + strings.ToUpper(strings.TrimSpace(code)) }

// Ping checks the backing Redis connection.
func (s *Store) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

// CreateRoom allocates a fresh room with the caller as host and symbol X.
// Code uniqueness is enforced by SETNX; after codeAttempts collisions it
// gives up with ErrCodeGenerationExhausted.
func (s *Store) CreateRoom(ctx context.Context, hostIdentity, hostName, category string) (*Room, error) {
	hostIdentity = strings.TrimSpace(hostIdentity)
	if hostIdentity == "" {
		return nil, errors.New("host identity required")
	}

	for i := 0; i < codeAttempts; i++ {
		code, err := codeGen()
		if err != nil {
			return nil, err
		}
		now := time.Now()
		r := &Room{
			Code:     code,
			Category: strings.TrimSpace(category),
			Players: []Player{{
				Identity: hostIdentity,
				Name:     strings.TrimSpace(hostName),
				IsHost:   true,
				Symbol:   SymbolX,
			}},
			CreatedAt: now,
			UpdatedAt: now,
		}
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		ok, err := s.rdb.SetNX(ctx, s.key(code), raw, s.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("persist room: %w", err)
		}
		if ok {
			return r, nil
		}
	}
	return nil, ErrCodeGenerationExhausted
}

// GetRoom loads a room by code. Expired and unknown codes are
// indistinguishable: both are ErrRoomNotFound.
func (s *Store) GetRoom(ctx context.Context, code string) (*Room, error) {
	raw, err := s.rdb.Get(ctx, s.key(code)).Bytes()
	if err == redis.Nil {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load room: %w", err)
	}
	var r Room
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	return &r, nil
}

// JoinRoom adds identity as the second player with symbol O. Joining with an
// identity already on the roster is idempotent and reports a reconnect with
// the original symbol instead of duplicating the entry.
func (s *Store) JoinRoom(ctx context.Context, code, identity, name string) (*JoinResult, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, errors.New("identity required")
	}

	var res JoinResult
	r, err := s.update(ctx, code, func(r *Room) error {
		if p := r.FindPlayer(identity); p != nil {
			res = JoinResult{Symbol: p.Symbol, IsHost: p.IsHost, Reconnecting: true}
			return errNoChange
		}
		if len(r.Players) >= 2 {
			return ErrRoomFull
		}
		r.Players = append(r.Players, Player{
			Identity: identity,
			Name:     strings.TrimSpace(name),
			Symbol:   SymbolO,
		})
		res = JoinResult{Symbol: SymbolO}
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Room = r
	return &res, nil
}

// StartGame marks the room started and installs the board. It requires
// exactly two players and a board of BoardSize cells; a started room cannot
// be started again, so a failed fan-out can safely retry.
func (s *Store) StartGame(ctx context.Context, code, category string, board []Cell) (*Room, error) {
	if len(board) != BoardSize {
		return nil, fmt.Errorf("board must have %d cells, got %d", BoardSize, len(board))
	}
	return s.update(ctx, code, func(r *Room) error {
		if r.Started {
			return ErrAlreadyStarted
		}
		if len(r.Players) != 2 {
			return ErrNotEnoughPlayers
		}
		if c := strings.TrimSpace(category); c != "" {
			r.Category = c
		}
		r.Board = board
		r.Started = true
		r.CurrentTurn = SymbolX
		return nil
	})
}

// ApplyMove marks cell cellIndex solved by symbol and recomputes the winner.
// The solved-check and the write happen inside one transaction: of two
// simultaneous correct answers to the same cell exactly one wins, the other
// gets ErrCellAlreadySolved.
func (s *Store) ApplyMove(ctx context.Context, code string, cellIndex int, symbol Symbol) (*Room, error) {
	return s.update(ctx, code, func(r *Room) error {
		if !r.Started {
			return ErrGameNotStarted
		}
		if r.Winner != "" {
			return ErrGameFinished
		}
		if cellIndex < 0 || cellIndex >= len(r.Board) {
			return ErrCellOutOfRange
		}
		if r.Board[cellIndex].Solved {
			return ErrCellAlreadySolved
		}
		r.Board[cellIndex].Solved = true
		r.Board[cellIndex].SolvedBy = symbol
		r.CurrentTurn = other(symbol)
		r.Winner = CheckWinner(r.Board)
		return nil
	})
}

// RemovePlayer drops identity from the roster. When the roster becomes empty
// the room is deleted; deleted reports that.
func (s *Store) RemovePlayer(ctx context.Context, code, identity string) (r *Room, deleted bool, err error) {
	key := s.key(code)
	for i := 0; i < updateAttempts; i++ {
		err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if err == redis.Nil {
				return ErrRoomNotFound
			}
			if err != nil {
				return err
			}
			var cur Room
			if err := json.Unmarshal(raw, &cur); err != nil {
				return err
			}
			kept := cur.Players[:0]
			for _, p := range cur.Players {
				if p.Identity != identity {
					kept = append(kept, p)
				}
			}
			cur.Players = kept
			cur.UpdatedAt = time.Now()

			pipe := tx.TxPipeline()
			if len(cur.Players) == 0 {
				pipe.Del(ctx, key)
				deleted = true
			} else {
				newRaw, err := json.Marshal(&cur)
				if err != nil {
					return err
				}
				pipe.Set(ctx, key, newRaw, redis.KeepTTL)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
			r = &cur
			return nil
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			deleted = false
			continue
		}
		return r, deleted, err
	}
	return nil, false, fmt.Errorf("remove player: %w", redis.TxFailedErr)
}

// errNoChange aborts an update without writing while still reporting success.
var errNoChange = errf("no change")

// update runs fn against the current room record inside a WATCH transaction,
// persisting the mutated record with the room's remaining TTL. Contended
// updates are retried so fn must be pure against its argument.
func (s *Store) update(ctx context.Context, code string, fn func(*Room) error) (*Room, error) {
	key := s.key(code)
	for i := 0; i < updateAttempts; i++ {
		var out *Room
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if err == redis.Nil {
				return ErrRoomNotFound
			}
			if err != nil {
				return err
			}
			var cur Room
			if err := json.Unmarshal(raw, &cur); err != nil {
				return err
			}
			if err := fn(&cur); err != nil {
				if errors.Is(err, errNoChange) {
					out = &cur
					return nil
				}
				return err
			}
			cur.UpdatedAt = time.Now()
			newRaw, err := json.Marshal(&cur)
			if err != nil {
				return err
			}
			pipe := tx.TxPipeline()
			pipe.Set(ctx, key, newRaw, redis.KeepTTL)
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
			out = &cur
			return nil
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("update room: %w", redis.TxFailedErr)
}

func other(s Symbol) Symbol {
	if s == SymbolX {
		return SymbolO
	}
	return SymbolX
}

// codeGen returns codeLength upper alnum characters, skipping look-alikes.
func codeGen() (string, error) {
	const letters = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b), nil
}
