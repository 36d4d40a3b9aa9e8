package meta

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/lib/pq"
)

// PostgresStore keeps each player's state as a JSONB row.
type PostgresStore struct {
	db    *sql.DB
	table string
}

// OpenPostgres connects, pings and makes sure the table exists.
func OpenPostgres(ctx context.Context, dsn, table string) (*PostgresStore, error) {
	if table == "" {
		table = "meta_states"
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("meta: sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("meta: ping postgres: %w", describe(err))
	}
	s := &PostgresStore{db: db, table: pq.QuoteIdentifier(table)}
	if _, err := db.ExecContext(ctx, s.schema()); err != nil {
		db.Close()
		return nil, fmt.Errorf("meta: create table: %w", describe(err))
	}
	log.Println("[meta] connected to Postgres")
	return s, nil
}

func (s *PostgresStore) schema() string {
	return `CREATE TABLE IF NOT EXISTS ` + s.table + ` (
	player_id  TEXT PRIMARY KEY,
	state      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Load(ctx context.Context, player string) (State, error) {
	if err := validPlayer(player); err != nil {
		return State{}, err
	}
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM `+s.table+` WHERE player_id = $1`, player).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, fmt.Errorf("%w: %s", ErrUnknownPlayer, player)
	}
	if err != nil {
		return State{}, fmt.Errorf("meta: load %s: %w", player, describe(err))
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, fmt.Errorf("meta: decode %s: %w", player, err)
	}
	return st, nil
}

func (s *PostgresStore) Save(ctx context.Context, player string, st State) error {
	if err := validPlayer(player); err != nil {
		return err
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("meta: encode %s: %w", player, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO `+s.table+` (player_id, state, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (player_id) DO UPDATE SET state = EXCLUDED.state, updated_at = now()`, player, raw)
	if err != nil {
		return fmt.Errorf("meta: save %s: %w", player, describe(err))
	}
	return nil
}

// describe adds the SQLSTATE code to driver errors.
func describe(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%s (%s): %w", pqErr.Message, pqErr.Code, err)
	}
	return err
}
