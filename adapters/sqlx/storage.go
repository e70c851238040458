package sqlx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"appraisekit/core"
)

// Driver names a supported database/sql driver.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// Config holds SQL connection configuration
type Config struct {
	Driver          Driver        `json:"driver" env:"APPRAISE_SQL_DRIVER"`
	DSN             string        `json:"dsn" env:"APPRAISE_SQL_DSN"`
	Installation    string        `json:"installation" env:"APPRAISE_SQL_INSTALLATION"`
	MaxOpenConns    int           `json:"max_open_conns" env:"APPRAISE_SQL_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns" env:"APPRAISE_SQL_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" env:"APPRAISE_SQL_CONN_MAX_LIFETIME"`
}

// DefaultConfig returns pool defaults for driver.
func DefaultConfig(driver Driver) Config {
	return Config{
		Driver:          driver,
		Installation:    "default",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// Store implements engine.Storage on a SQL database, one row per installation.
type Store struct {
	db           *sqlx.DB
	driver       Driver
	installation string
}

// New connects, verifies the connection and creates the schema if needed.
func New(ctx context.Context, cfg Config) (*Store, error) {
	switch cfg.Driver {
	case DriverPostgres, DriverMySQL:
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", cfg.Driver)
	}
	db, err := sqlx.ConnectContext(ctx, string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, core.Err(core.ErrStorage, err, "connect to %s", cfg.Driver)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	s := NewWithDB(db, cfg.Driver, cfg.Installation)
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing connection (useful for testing)
func NewWithDB(db *sqlx.DB, driver Driver, installation string) *Store {
	return &Store{db: db, driver: driver, installation: installation}
}

func (s *Store) Close() error { return s.db.Close() }

const schema = `CREATE TABLE IF NOT EXISTS appraise_state (
	installation VARCHAR(255) PRIMARY KEY,
	version INT NOT NULL,
	rated BOOLEAN NOT NULL,
	postponed BOOLEAN NOT NULL,
	first_launch BIGINT NOT NULL,
	postpone_time BIGINT NOT NULL,
	launch_count BIGINT NOT NULL,
	sig_event_count BIGINT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// EnsureSchema creates the state table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return core.Err(core.ErrStorage, err, "create schema")
	}
	return nil
}

type stateRow struct {
	Version       int   `db:"version"`
	Rated         bool  `db:"rated"`
	Postponed     bool  `db:"postponed"`
	FirstLaunch   int64 `db:"first_launch"`
	PostponeTime  int64 `db:"postpone_time"`
	LaunchCount   int64 `db:"launch_count"`
	SigEventCount int64 `db:"sig_event_count"`
}

func (s *Store) Load(ctx context.Context) (core.State, error) {
	var row stateRow
	q := s.db.Rebind(`SELECT version, rated, postponed, first_launch, postpone_time, launch_count, sig_event_count
		FROM appraise_state WHERE installation = ?`)
	if err := s.db.GetContext(ctx, &row, q, s.installation); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.State{}, core.ErrNotFound
		}
		return core.State{}, core.Err(core.ErrStorage, err, "load state of %s", s.installation)
	}
	if row.Version != core.FormatVersion {
		return core.State{}, core.Err(core.ErrStorage, core.ErrUnknownVersion, "installation %q has version %d", s.installation, row.Version)
	}
	return core.State(row), nil
}

func (s *Store) Save(ctx context.Context, st core.State) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return core.Err(core.ErrStorage, err, "begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists bool
	q := tx.Rebind(`SELECT EXISTS(SELECT 1 FROM appraise_state WHERE installation = ?)`)
	if err = tx.GetContext(ctx, &exists, q, s.installation); err != nil {
		return core.Err(core.ErrStorage, err, "check state of %s", s.installation)
	}

	now := time.Now().UTC()
	if exists {
		q = tx.Rebind(`UPDATE appraise_state SET version = ?, rated = ?, postponed = ?, first_launch = ?,
			postpone_time = ?, launch_count = ?, sig_event_count = ?, updated_at = ? WHERE installation = ?`)
		_, err = tx.ExecContext(ctx, q, core.FormatVersion, st.Rated, st.Postponed, st.FirstLaunch,
			st.PostponeTime, st.LaunchCount, st.SigEventCount, now, s.installation)
	} else {
		q = tx.Rebind(`INSERT INTO appraise_state (installation, version, rated, postponed, first_launch,
			postpone_time, launch_count, sig_event_count, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		_, err = tx.ExecContext(ctx, q, s.installation, core.FormatVersion, st.Rated, st.Postponed, st.FirstLaunch,
			st.PostponeTime, st.LaunchCount, st.SigEventCount, now)
	}
	if err != nil {
		return core.Err(core.ErrStorage, err, "write state of %s", s.installation)
	}
	if err = tx.Commit(); err != nil {
		return core.Err(core.ErrStorage, err, "commit state of %s", s.installation)
	}
	return nil
}
