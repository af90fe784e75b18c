// Package coordinator is the protocol engine of the game server: it admits
// realtime sessions into rooms, starts games, validates cell claims, and
// fans results out to both participants. Durable truth lives in the room
// store; the connection registry is rebuilt on every connect.
package coordinator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xfactor-puzzles/triviatoe/internal/obslog"
	"github.com/xfactor-puzzles/triviatoe/internal/questions"
	"github.com/xfactor-puzzles/triviatoe/internal/registry"
	"github.com/xfactor-puzzles/triviatoe/internal/room"
	"github.com/xfactor-puzzles/triviatoe/pkg/protocol"
)

// Sender is one connected client as the coordinator sees it. Implemented by
// transport sessions; tests substitute fakes.
type Sender interface {
	ID() string
	Send(ctx context.Context, env *protocol.Envelope) error
	Close(reason string)
}

// StatsRecorder receives finished games for aggregate bookkeeping. Purely
// best-effort: recording failures never affect the game outcome.
type StatsRecorder interface {
	RecordResult(ctx context.Context, r *room.Room) error
}

// DefaultAckTimeout bounds the wait for start acknowledgements before the
// countdown proceeds anyway.
const DefaultAckTimeout = 5 * time.Second

type Option func(*Coordinator)

func WithAckTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.ackTimeout = d
		}
	}
}

func WithStats(rec StatsRecorder) Option {
	return func(c *Coordinator) { c.stats = rec }
}

// startAck tracks outstanding game:start acknowledgements for one room.
type startAck struct {
	want  map[string]struct{} // connection IDs still to ack
	timer *time.Timer
}

type Coordinator struct {
	store  *room.Store
	reg    *registry.Registry
	source questions.Source
	stats  StatsRecorder

	ackTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]Sender            // connID -> sender
	rooms    map[string]map[string]string // room code -> connID -> identity
	pending  map[string]*startAck
}

func New(store *room.Store, reg *registry.Registry, source questions.Source, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:      store,
		reg:        reg,
		source:     source,
		ackTimeout: DefaultAckTimeout,
		sessions:   make(map[string]Sender),
		rooms:      make(map[string]map[string]string),
		pending:    make(map[string]*startAck),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandleConnect registers a fresh transport session. No room is involved
// until the client sends join room.
func (c *Coordinator) HandleConnect(s Sender) {
	c.mu.Lock()
	c.sessions[s.ID()] = s
	c.mu.Unlock()
}

// HandleMessage dispatches one decoded client envelope.
func (c *Coordinator) HandleMessage(ctx context.Context, s Sender, env *protocol.Envelope) {
	switch env.Kind {
	case protocol.KindJoinRoom:
		var p protocol.JoinRoomPayload
		if err := env.DecodePayload(&p); err != nil {
			c.sendError(ctx, s, "malformed join payload")
			return
		}
		c.handleJoin(ctx, s, p)
	case protocol.KindStartGame:
		var p protocol.StartGamePayload
		if err := env.DecodePayload(&p); err != nil {
			c.sendError(ctx, s, "malformed start payload")
			return
		}
		c.handleStart(ctx, s, p)
	case protocol.KindStartAck:
		var p protocol.StartAckPayload
		if err := env.DecodePayload(&p); err != nil {
			return
		}
		c.handleStartAck(s, p)
	case protocol.KindClaimCell:
		var p protocol.ClaimCellPayload
		if err := env.DecodePayload(&p); err != nil {
			c.sendError(ctx, s, "malformed claim payload")
			return
		}
		c.handleClaim(ctx, s, p)
	default:
		c.sendError(ctx, s, "unsupported message type")
	}
}

// handleJoin attaches an authorized player to the realtime session of a
// room. Membership is established over REST; an identity not on the roster
// cannot acquire a symbol by opening a socket.
func (c *Coordinator) handleJoin(ctx context.Context, s Sender, p protocol.JoinRoomPayload) {
	code := normalizeCode(p.GameCode)
	identity := strings.TrimSpace(p.UserID)
	if code == "" || identity == "" {
		c.sendError(ctx, s, "game code and user id are required")
		return
	}

	r, err := c.store.GetRoom(ctx, code)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			c.sendError(ctx, s, "room not found")
		} else {
			obslog.L().Error("join_load_error", zap.String("code", code), zap.Error(err))
			c.sendError(ctx, s, "could not load room")
		}
		return
	}

	view := Reconcile(identity, r)
	if !view.Member {
		c.sendError(ctx, s, "not a member of this room")
		return
	}

	// Evicts any older connection of the same identity.
	c.reg.Register(s.ID(), identity)
	c.reg.Bind(s.ID(), registry.Binding{
		RoomCode: code,
		Symbol:   view.Symbol,
		IsHost:   view.IsHost,
	})

	c.mu.Lock()
	members, ok := c.rooms[code]
	if !ok {
		members = make(map[string]string)
		c.rooms[code] = members
	}
	members[s.ID()] = identity
	c.mu.Unlock()

	c.send(ctx, s, protocol.MustEnvelope(protocol.KindGameJoined, protocol.GameJoinedPayload{
		Symbol:    string(view.Symbol),
		IsHost:    view.IsHost,
		GameState: view.State,
	}))

	if r.Started {
		c.broadcast(ctx, code, protocol.MustEnvelope(protocol.KindPlayerReconnected, protocol.SymbolPayload{
			Symbol: string(view.Symbol),
		}), s.ID())
	} else {
		c.broadcast(ctx, code, protocol.MustEnvelope(protocol.KindPlayerJoined, protocol.PlayersPayload{
			Players: playerInfos(r),
		}))
	}

	obslog.L().Info("room_session_join",
		zap.String("code", code),
		zap.String("identity", identity),
		zap.String("symbol", string(view.Symbol)),
		zap.Bool("reconnect", r.Started),
	)
}

// handleStart builds the board from the question source and opens the game.
// Host-only; requires both seats taken. A failure anywhere leaves the room
// unstarted so the host can retry.
func (c *Coordinator) handleStart(ctx context.Context, s Sender, p protocol.StartGamePayload) {
	code := normalizeCode(p.GameCode)
	binding, ok := c.reg.BindingOf(s.ID())
	if !ok || binding.RoomCode != code {
		c.sendError(ctx, s, "join the room before starting")
		return
	}
	if !binding.IsHost {
		c.sendError(ctx, s, "only the host can start the game")
		return
	}

	r, err := c.store.GetRoom(ctx, code)
	if err != nil {
		c.sendError(ctx, s, "room not found")
		return
	}
	if len(r.Players) != 2 {
		c.sendError(ctx, s, "need exactly 2 players to start")
		return
	}

	category := strings.TrimSpace(p.Category)
	if category == "" {
		category = r.Category
	}

	qs, err := c.source.Fetch(ctx, category, room.BoardSize)
	if err != nil {
		if errors.Is(err, questions.ErrInsufficientContent) {
			c.sendError(ctx, s, "not enough questions available")
		} else {
			obslog.L().Error("question_fetch_error", zap.String("code", code), zap.String("category", category), zap.Error(err))
			c.sendError(ctx, s, "could not load questions")
		}
		return
	}

	board := make([]room.Cell, len(qs))
	for i, q := range qs {
		board[i] = room.Cell{Prompt: q.Prompt, Answer: q.Answer}
	}

	r, err = c.store.StartGame(ctx, code, category, board)
	if err != nil {
		switch {
		case errors.Is(err, room.ErrAlreadyStarted):
			c.sendError(ctx, s, "game already started")
		case errors.Is(err, room.ErrNotEnoughPlayers):
			c.sendError(ctx, s, "need exactly 2 players to start")
		default:
			obslog.L().Error("start_persist_error", zap.String("code", code), zap.Error(err))
			c.sendError(ctx, s, "could not start game")
		}
		return
	}

	c.broadcast(ctx, code, protocol.MustEnvelope(protocol.KindGameStart, protocol.GameStartPayload{
		Board:         maskBoard(r.Board),
		CurrentPlayer: string(r.CurrentTurn),
		Category:      r.Category,
	}))
	c.armStartAck(code)

	obslog.L().Info("game_start",
		zap.String("code", code),
		zap.String("category", r.Category),
	)
}

// armStartAck waits for both clients to acknowledge the board before the
// countdown. A bounded timer stands in for clients that never answer so one
// silent peer cannot stall the game forever.
func (c *Coordinator) armStartAck(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	want := make(map[string]struct{}, len(c.rooms[code]))
	for connID := range c.rooms[code] {
		want[connID] = struct{}{}
	}
	if len(want) == 0 {
		return
	}

	if old, ok := c.pending[code]; ok && old.timer != nil {
		old.timer.Stop()
	}
	ack := &startAck{want: want}
	ack.timer = time.AfterFunc(c.ackTimeout, func() {
		c.finishStart(code, "timeout")
	})
	c.pending[code] = ack
}

func (c *Coordinator) handleStartAck(s Sender, p protocol.StartAckPayload) {
	code := normalizeCode(p.GameCode)

	c.mu.Lock()
	ack, ok := c.pending[code]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(ack.want, s.ID())
	done := len(ack.want) == 0
	if done && ack.timer != nil {
		ack.timer.Stop()
	}
	c.mu.Unlock()

	if done {
		c.finishStart(code, "ack")
	}
}

// finishStart transitions the room to in-progress and starts the countdown.
func (c *Coordinator) finishStart(code, reason string) {
	c.mu.Lock()
	ack, ok := c.pending[code]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.pending, code)
	if ack.timer != nil {
		ack.timer.Stop()
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.broadcast(ctx, code, protocol.MustEnvelope(protocol.KindCountdownStart, protocol.CountdownStartPayload{
		StartTime: time.Now().UnixMilli(),
	}))

	obslog.L().Info("game_in_progress", zap.String("code", code), zap.String("ack", reason))
}

// handleClaim validates a submitted answer against the target cell. An
// incorrect answer is reported to the caller only; the opponent learns
// nothing. A correct answer solves the cell atomically, so of two
// simultaneous correct claims exactly one wins.
func (c *Coordinator) handleClaim(ctx context.Context, s Sender, p protocol.ClaimCellPayload) {
	code := normalizeCode(p.GameCode)
	binding, ok := c.reg.BindingOf(s.ID())
	if !ok || binding.RoomCode != code {
		c.sendError(ctx, s, "join the room before playing")
		return
	}

	r, err := c.store.GetRoom(ctx, code)
	if err != nil {
		c.sendError(ctx, s, "room not found")
		return
	}
	if !r.Started {
		c.sendError(ctx, s, "game not started")
		return
	}
	if r.Winner != "" {
		c.sendError(ctx, s, "game already finished")
		return
	}
	if p.CellIndex < 0 || p.CellIndex >= len(r.Board) {
		c.sendError(ctx, s, "cell index out of range")
		return
	}
	if r.Board[p.CellIndex].Solved {
		// Stale click or duplicate submit; clients drop this quietly.
		c.sendError(ctx, s, "cell already solved")
		return
	}

	if !answersMatch(p.Answer, r.Board[p.CellIndex].Answer) {
		c.send(ctx, s, protocol.MustEnvelope(protocol.KindAnswerIncorrect, protocol.IndexPayload{Index: p.CellIndex}))
		return
	}

	updated, err := c.store.ApplyMove(ctx, code, p.CellIndex, binding.Symbol)
	if err != nil {
		switch {
		case errors.Is(err, room.ErrCellAlreadySolved):
			// Lost the race for this cell to a simultaneous correct answer.
			c.sendError(ctx, s, "cell already solved")
		case errors.Is(err, room.ErrGameFinished):
			c.sendError(ctx, s, "game already finished")
		default:
			obslog.L().Error("move_persist_error", zap.String("code", code), zap.Int("cell", p.CellIndex), zap.Error(err))
			c.sendError(ctx, s, "could not apply move")
		}
		return
	}

	c.send(ctx, s, protocol.MustEnvelope(protocol.KindAnswerCorrect, protocol.IndexPayload{Index: p.CellIndex}))
	c.broadcast(ctx, code, protocol.MustEnvelope(protocol.KindCellClaimed, protocol.CellClaimedPayload{
		Index:  p.CellIndex,
		Symbol: string(binding.Symbol),
	}))

	obslog.L().Info("cell_claimed",
		zap.String("code", code),
		zap.Int("cell", p.CellIndex),
		zap.String("symbol", string(binding.Symbol)),
	)

	if updated.Winner != "" {
		c.broadcast(ctx, code, protocol.MustEnvelope(protocol.KindGameOver, protocol.GameOverPayload{
			Winner:   updated.Winner,
			GameOver: true,
		}))
		obslog.L().Info("game_over", zap.String("code", code), zap.String("winner", updated.Winner))
		c.recordResult(updated)
	}
}

// HandleDisconnect tears down the live session only. Durable membership
// stays, so the player can reconnect and resume.
func (c *Coordinator) HandleDisconnect(ctx context.Context, connID string) {
	binding, hadBinding := c.reg.BindingOf(connID)
	c.reg.Unregister(connID)

	c.mu.Lock()
	delete(c.sessions, connID)
	if hadBinding {
		if members, ok := c.rooms[binding.RoomCode]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(c.rooms, binding.RoomCode)
			}
		}
		// A vanished client should not stall the start countdown.
		if ack, ok := c.pending[binding.RoomCode]; ok {
			delete(ack.want, connID)
			if len(ack.want) == 0 && ack.timer != nil {
				ack.timer.Stop()
				go c.finishStart(binding.RoomCode, "disconnect")
			}
		}
	}
	c.mu.Unlock()

	if !hadBinding {
		return
	}

	c.broadcast(ctx, binding.RoomCode, protocol.MustEnvelope(protocol.KindPlayerDisconnected, protocol.SymbolPayload{
		Symbol: string(binding.Symbol),
	}))
	obslog.L().Info("player_disconnected",
		zap.String("code", binding.RoomCode),
		zap.String("symbol", string(binding.Symbol)),
	)
}

// NotifyLeave is called after a REST leave removed identity from the durable
// roster: it detaches any live session of that identity and tells the
// remaining participant.
func (c *Coordinator) NotifyLeave(ctx context.Context, code, identity string, symbol room.Symbol) {
	code = normalizeCode(code)

	if connID, ok := c.reg.ConnOf(identity); ok {
		c.reg.Unregister(connID)
		c.mu.Lock()
		if members, ok := c.rooms[code]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(c.rooms, code)
			}
		}
		c.mu.Unlock()
	}

	c.broadcast(ctx, code, protocol.MustEnvelope(protocol.KindPlayerLeft, protocol.SymbolPayload{
		Symbol: string(symbol),
	}))
	obslog.L().Info("player_left", zap.String("code", code), zap.String("identity", identity))
}

// EvictConnection closes a stale connection whose identity reconnected
// elsewhere. The registry has already dropped its mappings.
func (c *Coordinator) EvictConnection(connID string) {
	c.mu.Lock()
	s := c.sessions[connID]
	delete(c.sessions, connID)
	for code, members := range c.rooms {
		if _, ok := members[connID]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(c.rooms, code)
			}
		}
	}
	c.mu.Unlock()

	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.send(ctx, s, protocol.MustEnvelope(protocol.KindGameError, protocol.ErrorPayload{
		Message: "session replaced by a newer connection",
	}))
	s.Close("replaced by newer connection")
}

func (c *Coordinator) recordResult(r *room.Room) {
	if c.stats == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.stats.RecordResult(ctx, r); err != nil {
			obslog.L().Warn("stats_record_error", zap.String("code", r.Code), zap.Error(err))
		}
	}()
}

// broadcast delivers env to every session in the room, minus exceptions.
func (c *Coordinator) broadcast(ctx context.Context, code string, env *protocol.Envelope, except ...string) {
	c.mu.Lock()
	targets := make([]Sender, 0, 2)
	for connID := range c.rooms[code] {
		skip := false
		for _, ex := range except {
			if connID == ex {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		if s, ok := c.sessions[connID]; ok {
			targets = append(targets, s)
		}
	}
	c.mu.Unlock()

	for _, s := range targets {
		c.send(ctx, s, env)
	}
}

func (c *Coordinator) send(ctx context.Context, s Sender, env *protocol.Envelope) {
	if err := s.Send(ctx, env); err != nil {
		obslog.L().Warn("send_error", zap.String("conn", s.ID()), zap.String("kind", string(env.Kind)), zap.Error(err))
	}
}

func (c *Coordinator) sendError(ctx context.Context, s Sender, msg string) {
	c.send(ctx, s, protocol.MustEnvelope(protocol.KindGameError, protocol.ErrorPayload{Message: msg}))
}

// answersMatch applies the intentionally forgiving comparison: both sides
// are coerced to trimmed strings and compared case-insensitively, so 5,
// "5", and " 5 " all match, as do "2X" and "2x".
func answersMatch(submitted, expected string) bool {
	return strings.EqualFold(strings.TrimSpace(submitted), strings.TrimSpace(expected))
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
