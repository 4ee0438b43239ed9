// Package postgres persists match records in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/ncaa-match-pipeline/internal/faults"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/match"
)

// DefaultTable holds one row per (id, start_time_epoch).
const DefaultTable = "ncaa_match_data"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for match rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// MatchStore reads and upserts match rows.
type MatchStore struct {
	pool  pool
	table string
}

// NewMatchStore connects a pgx pool using cfg.
func NewMatchStore(ctx context.Context, cfg Config) (*MatchStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewMatchStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewMatchStoreWithPool constructs a store from an existing pool.
func NewMatchStoreWithPool(p pool, table string) (*MatchStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &MatchStore{pool: p, table: table}, nil
}

// Ping verifies connectivity.
func (s *MatchStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return faults.Store(err, "ping postgres")
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *MatchStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Get loads the row for key.
func (s *MatchStore) Get(ctx context.Context, key match.Key) (match.Document, bool, error) {
	query := fmt.Sprintf(`
SELECT
	id,
	start_time_epoch,
	process_time_epoch,
	match_state,
	division,
	gender,
	updated_at,
	away_team,
	away_score,
	away_conference,
	home_team,
	home_score,
	home_conference
FROM %s
WHERE id = $1 AND start_time_epoch = $2`, s.table)

	var (
		m                        match.Match
		awayTeam, awayConference pgtype.Text
		homeTeam, homeConference pgtype.Text
		awayScore, homeScore     pgtype.Int8
	)
	err := s.pool.QueryRow(ctx, query, key.ID, key.StartTimeEpoch).Scan(
		&m.ID,
		&m.StartTimeEpoch,
		&m.ProcessTimeEpoch,
		&m.MatchState,
		&m.Division,
		&m.Gender,
		&m.UpdatedAt,
		&awayTeam,
		&awayScore,
		&awayConference,
		&homeTeam,
		&homeScore,
		&homeConference,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, faults.Store(err, "select match "+key.String())
	}
	m.AwayTeam = textPtr(awayTeam)
	m.AwayScore = int8Ptr(awayScore)
	m.AwayConference = textPtr(awayConference)
	m.HomeTeam = textPtr(homeTeam)
	m.HomeScore = int8Ptr(homeScore)
	m.HomeConference = textPtr(homeConference)

	doc, err := m.Document()
	if err != nil {
		return nil, false, faults.Store(err, "render match "+key.String())
	}
	return doc, true, nil
}

// Put upserts the whole row, replacing any existing values.
func (s *MatchStore) Put(ctx context.Context, m match.Match) error {
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	start_time_epoch,
	process_time_epoch,
	match_state,
	division,
	gender,
	updated_at,
	away_team,
	away_score,
	away_conference,
	home_team,
	home_score,
	home_conference
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)
ON CONFLICT (id, start_time_epoch) DO UPDATE SET
	process_time_epoch = EXCLUDED.process_time_epoch,
	match_state = EXCLUDED.match_state,
	division = EXCLUDED.division,
	gender = EXCLUDED.gender,
	updated_at = EXCLUDED.updated_at,
	away_team = EXCLUDED.away_team,
	away_score = EXCLUDED.away_score,
	away_conference = EXCLUDED.away_conference,
	home_team = EXCLUDED.home_team,
	home_score = EXCLUDED.home_score,
	home_conference = EXCLUDED.home_conference`, s.table)

	args := []any{
		m.ID,
		m.StartTimeEpoch,
		m.ProcessTimeEpoch,
		m.MatchState,
		m.Division,
		m.Gender,
		m.UpdatedAt,
		m.AwayTeam,
		m.AwayScore,
		m.AwayConference,
		m.HomeTeam,
		m.HomeScore,
		m.HomeConference,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return faults.Store(err, "upsert match "+m.Key().String())
	}
	return nil
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

func int8Ptr(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}
