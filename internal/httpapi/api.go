// Package httpapi is the REST surface of the game server: room creation and
// membership, shareable snapshots, and a QR code for inviting the second
// player. Realtime play happens over the websocket mounted at /ws.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/xfactor-puzzles/triviatoe/internal/boardimg"
	"github.com/xfactor-puzzles/triviatoe/internal/coordinator"
	"github.com/xfactor-puzzles/triviatoe/internal/obslog"
	"github.com/xfactor-puzzles/triviatoe/internal/questions"
	"github.com/xfactor-puzzles/triviatoe/internal/room"
	"github.com/xfactor-puzzles/triviatoe/internal/stats"
)

const maxBodyBytes = 4 * 1024

// Notifier lets a REST leave reach the departed player's opponent over the
// realtime channel.
type Notifier interface {
	NotifyLeave(ctx context.Context, code, identity string, symbol room.Symbol)
}

// categoryLister is implemented by question sources with a fixed catalogue,
// like the embedded bank.
type categoryLister interface {
	Categories() []string
}

type API struct {
	store  *room.Store
	coord  Notifier
	source questions.Source
	stats  *stats.Repository
	ws     http.Handler

	publicBaseURL string
}

type Option func(*API)

// WithStats enables the aggregate player stats endpoint.
func WithStats(repo *stats.Repository) Option {
	return func(a *API) { a.stats = repo }
}

// WithPublicBaseURL overrides the request host when building share links,
// for deployments behind a proxy.
func WithPublicBaseURL(base string) Option {
	return func(a *API) { a.publicBaseURL = strings.TrimSuffix(base, "/") }
}

func New(store *room.Store, coord Notifier, source questions.Source, ws http.Handler, opts ...Option) *API {
	a := &API{store: store, coord: coord, source: source, ws: ws}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Router mounts every route. join lives outside the /api/rooms/:code
// subtree because the client only has a code typed by the user.
func (a *API) Router() *httprouter.Router {
	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, _ any) {
		obslog.L().Error("http_panic", zap.String("path", r.URL.Path))
		writeJSON(w, http.StatusInternalServerError, errBody("internal error"))
	}

	mux.GET("/healthz", a.handleHealth)
	mux.GET("/api/categories", a.handleCategories)
	mux.GET("/api/questions", a.handleQuestions)
	mux.POST("/api/rooms", a.identified(a.handleCreate))
	mux.POST("/api/join", a.identified(a.handleJoin))
	mux.GET("/api/rooms/:code", a.handleSnapshot)
	mux.POST("/api/rooms/:code/leave", a.identified(a.handleLeave))
	mux.GET("/api/rooms/:code/qr", a.handleQR)
	mux.GET("/api/rooms/:code/board.png", a.handleBoardPNG)
	mux.GET("/api/players/:id/stats", a.handleStats)

	if a.ws != nil {
		mux.Handler(http.MethodGet, "/ws", a.ws)
	}
	return mux
}

// identity is taken from headers the web client sets from its local
// profile. There are no accounts; the id only has to be stable per browser.
type identity struct {
	ID   string
	Name string
}

func (a *API) identified(next func(http.ResponseWriter, *http.Request, httprouter.Params, identity)) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		id := strings.TrimSpace(r.Header.Get("X-User-Id"))
		if id == "" {
			writeJSON(w, http.StatusUnauthorized, errBody("X-User-Id header is required"))
			return
		}
		name := strings.TrimSpace(r.Header.Get("X-User-Name"))
		if name == "" {
			name = "Player"
		}
		next(w, r, p, identity{ID: id, Name: name})
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errBody("store unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleCategories(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	var cats []string
	if lister, ok := a.source.(categoryLister); ok {
		cats = lister.Categories()
	}
	writeJSON(w, http.StatusOK, map[string][]string{"categories": cats})
}

// handleQuestions serves raw question/answer pairs in the same shape the
// remote question service uses, so one deployment can back another. Not for
// game clients; boards they see go through the answer mask.
func (a *API) handleQuestions(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	if category == "" {
		writeJSON(w, http.StatusBadRequest, errBody("category is required"))
		return
	}
	count := room.BoardSize
	if s := r.URL.Query().Get("count"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 50 {
			writeJSON(w, http.StatusBadRequest, errBody("count must be between 1 and 50"))
			return
		}
		count = n
	}

	qs, err := a.source.Fetch(r.Context(), category, count)
	if err != nil {
		if errors.Is(err, questions.ErrInsufficientContent) {
			writeJSON(w, http.StatusNotFound, errBody("not enough questions for category"))
			return
		}
		obslog.L().Error("question_fetch_error", zap.String("category", category), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errBody("could not load questions"))
		return
	}
	writeJSON(w, http.StatusOK, qs)
}

type createRequest struct {
	Category string `json:"category"`
}

func (a *API) handleCreate(w http.ResponseWriter, r *http.Request, _ httprouter.Params, who identity) {
	var req createRequest
	if !decodeBody(w, r, &req) {
		return
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = "easy"
	}

	rm, err := a.store.CreateRoom(r.Context(), who.ID, who.Name, category)
	if err != nil {
		obslog.L().Error("room_create_error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errBody("could not create room"))
		return
	}
	obslog.L().Info("room_created", zap.String("code", rm.Code), zap.String("category", rm.Category))
	writeJSON(w, http.StatusCreated, map[string]string{
		"game_code": rm.Code,
		"category":  rm.Category,
	})
}

type joinRequest struct {
	GameCode string `json:"game_code"`
}

func (a *API) handleJoin(w http.ResponseWriter, r *http.Request, _ httprouter.Params, who identity) {
	var req joinRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := a.store.JoinRoom(r.Context(), req.GameCode, who.ID, who.Name)
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		writeJSON(w, http.StatusNotFound, errBody("room not found"))
		return
	case errors.Is(err, room.ErrRoomFull):
		writeJSON(w, http.StatusConflict, errBody("room is full"))
		return
	case err != nil:
		obslog.L().Error("room_join_error", zap.String("code", req.GameCode), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errBody("could not join room"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"game_code":    res.Room.Code,
		"symbol":       string(res.Symbol),
		"is_host":      res.IsHost,
		"reconnecting": res.Reconnecting,
		"category":     res.Room.Category,
	})
}

func (a *API) handleSnapshot(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	rm, ok := a.loadRoom(w, r, p)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"game_code": rm.Code,
		"players":   coordinator.Roster(rm),
		"state":     coordinator.Snapshot(rm),
	})
}

func (a *API) handleLeave(w http.ResponseWriter, r *http.Request, p httprouter.Params, who identity) {
	code := p.ByName("code")
	rm, err := a.store.GetRoom(r.Context(), code)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errBody("room not found"))
		return
	}
	member := rm.FindPlayer(who.ID)
	if member == nil {
		writeJSON(w, http.StatusForbidden, errBody("not a member of this room"))
		return
	}

	_, deleted, err := a.store.RemovePlayer(r.Context(), code, who.ID)
	if err != nil {
		obslog.L().Error("room_leave_error", zap.String("code", code), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errBody("could not leave room"))
		return
	}
	if !deleted && a.coord != nil {
		a.coord.NotifyLeave(r.Context(), code, who.ID, member.Symbol)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleQR encodes the join link for a room so the second player can scan
// it instead of typing the code.
func (a *API) handleQR(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	rm, ok := a.loadRoom(w, r, p)
	if !ok {
		return
	}

	base := a.publicBaseURL
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

	png, err := qrcode.Encode(base+"/join/"+rm.Code, qrcode.Medium, 320)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errBody("qr generation failed"))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (a *API) handleBoardPNG(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	rm, ok := a.loadRoom(w, r, p)
	if !ok {
		return
	}
	size := boardimg.DefaultSize
	if s := r.URL.Query().Get("size"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 64 && n <= 1024 {
			size = n
		}
	}
	w.Header().Set("Content-Type", "image/png")
	if err := boardimg.WritePNG(w, rm, size); err != nil {
		obslog.L().Error("board_render_error", zap.String("code", rm.Code), zap.Error(err))
	}
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if a.stats == nil {
		writeJSON(w, http.StatusNotFound, errBody("stats are not enabled"))
		return
	}
	ps, err := a.stats.Lookup(r.Context(), p.ByName("id"))
	if err != nil {
		obslog.L().Error("stats_lookup_error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errBody("could not load stats"))
		return
	}
	if ps == nil {
		writeJSON(w, http.StatusNotFound, errBody("no games on record"))
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (a *API) loadRoom(w http.ResponseWriter, r *http.Request, p httprouter.Params) (*room.Room, bool) {
	rm, err := a.store.GetRoom(r.Context(), p.ByName("code"))
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			writeJSON(w, http.StatusNotFound, errBody("room not found"))
		} else {
			obslog.L().Error("room_load_error", zap.String("code", p.ByName("code")), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errBody("could not load room"))
		}
		return nil, false
	}
	return rm, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody("malformed request body"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errBody(msg string) map[string]any {
	return map[string]any{"success": false, "error": msg}
}
