// Package stats keeps aggregate win/loss/tie counters per player in
// Postgres. Individual games are not stored.
package stats

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/xfactor-puzzles/triviatoe/internal/room"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	q := `CREATE TABLE IF NOT EXISTS player_stats (
        player_id  TEXT PRIMARY KEY,
        name       TEXT NOT NULL DEFAULT '',
        wins       BIGINT NOT NULL DEFAULT 0,
        losses     BIGINT NOT NULL DEFAULT 0,
        ties       BIGINT NOT NULL DEFAULT 0,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
      )`
	_, err := db.ExecContext(ctx, q)
	return err
}

// RecordResult bumps the counters for both participants of a finished game.
func (r *Repository) RecordResult(ctx context.Context, g *room.Room) error {
	if r == nil || r.db == nil || g == nil || g.Winner == "" {
		return nil
	}
	for _, p := range g.Players {
		var wins, losses, ties int
		switch {
		case g.Winner == room.WinnerTie:
			ties = 1
		case g.Winner == string(p.Symbol):
			wins = 1
		default:
			losses = 1
		}
		if err := r.bump(ctx, p.Identity, p.Name, wins, losses, ties); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) bump(ctx context.Context, playerID, name string, wins, losses, ties int) error {
	q := `INSERT INTO player_stats (player_id, name, wins, losses, ties, updated_at)
      VALUES ($1,$2,$3,$4,$5,now())
      ON CONFLICT (player_id) DO UPDATE SET
        name=EXCLUDED.name,
        wins=player_stats.wins+EXCLUDED.wins,
        losses=player_stats.losses+EXCLUDED.losses,
        ties=player_stats.ties+EXCLUDED.ties,
        updated_at=now()`
	_, err := r.db.ExecContext(ctx, q, playerID, name, wins, losses, ties)
	return err
}

// PlayerStats is one aggregate row.
type PlayerStats struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Wins     int64  `json:"wins"`
	Losses   int64  `json:"losses"`
	Ties     int64  `json:"ties"`
}

// Lookup returns the aggregate record for one player, or nil when the
// player has never finished a game.
func (r *Repository) Lookup(ctx context.Context, playerID string) (*PlayerStats, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}
	q := `SELECT player_id, name, wins, losses, ties FROM player_stats WHERE player_id = $1`
	var ps PlayerStats
	err := r.db.QueryRowContext(ctx, q, playerID).Scan(&ps.PlayerID, &ps.Name, &ps.Wins, &ps.Losses, &ps.Ties)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ps, nil
}
