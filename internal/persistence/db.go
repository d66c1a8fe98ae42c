// Package persistence provides SQLite-based storage for per-island ascension
// state and the game catalog.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/ascension/internal/ascension"
)

// DB wraps a SQLite connection.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ascension (
		island TEXT PRIMARY KEY,
		occident REAL NOT NULL,
		orient REAL NOT NULL,
		beggars REAL NOT NULL,
		beggar_lvl INTEGER NOT NULL,
		envoys REAL NOT NULL,
		envoy_lvl INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS games (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		owner TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_games_owner ON games(owner);
	CREATE INDEX IF NOT EXISTS idx_games_created ON games(created_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// LoadAscension returns the stored state for an island. The bool is false
// when nothing has been saved for it yet.
func (db *DB) LoadAscension(ctx context.Context, island string) (ascension.State, bool, error) {
	var st ascension.State
	err := db.conn.GetContext(ctx, &st,
		`SELECT occident, orient, beggars, beggar_lvl, envoys, envoy_lvl
		 FROM ascension WHERE island = ?`, island)
	if errors.Is(err, sql.ErrNoRows) {
		return ascension.State{}, false, nil
	}
	if err != nil {
		return ascension.State{}, false, fmt.Errorf("load ascension %q: %w", island, err)
	}
	return st, true, nil
}

// SaveAscension stores (or replaces) the state for an island.
func (db *DB) SaveAscension(ctx context.Context, island string, st ascension.State) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO ascension
		 (island, occident, orient, beggars, beggar_lvl, envoys, envoy_lvl, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		island, st.Occident, st.Orient, st.Beggars, st.BeggarLvl, st.Envoys, st.EnvoyLvl,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save ascension %q: %w", island, err)
	}
	slog.Debug("ascension saved", "island", island)
	return nil
}

// Game is a catalog entry.
type Game struct {
	ID        string `json:"id" db:"id"`
	Name      string `json:"name" db:"name"`
	Owner     string `json:"owner" db:"owner"`
	CreatedAt int64  `json:"createdAt" db:"created_at"` // Unix milliseconds
}

// ListGames returns every game, oldest first.
func (db *DB) ListGames(ctx context.Context) ([]Game, error) {
	games := []Game{}
	err := db.conn.SelectContext(ctx, &games,
		"SELECT id, name, owner, created_at FROM games ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	return games, nil
}

// CreateGame stores a new game owned by owner and returns it with its
// generated ID and creation time.
func (db *DB) CreateGame(ctx context.Context, g Game, owner string) (Game, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Game{}, fmt.Errorf("game id: %w", err)
	}
	g.ID = id.String()
	g.Owner = owner
	g.CreatedAt = time.Now().UnixMilli()

	_, err = db.conn.NamedExecContext(ctx,
		`INSERT INTO games (id, name, owner, created_at)
		 VALUES (:id, :name, :owner, :created_at)`, g)
	if err != nil {
		return Game{}, fmt.Errorf("insert game: %w", err)
	}
	slog.Info("game created", "id", g.ID, "owner", owner)
	return g, nil
}
