package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"appraisekit/core"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string        `json:"addr" env:"APPRAISE_REDIS_ADDR"`
	Password     string        `json:"password" env:"APPRAISE_REDIS_PASSWORD"`
	DB           int           `json:"db" env:"APPRAISE_REDIS_DB"`
	PoolSize     int           `json:"pool_size"`
	MinIdleConns int           `json:"min_idle_conns"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	// Installation identifies whose state the store reads and writes.
	Installation string        `json:"installation" env:"APPRAISE_REDIS_INSTALLATION"`
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		Installation: "default",
	}
}

// Store implements engine.Storage on Redis. Each installation is one hash:
// appraise:{installation}:state -> version, rated, postponed, first_launch,
// postpone_time, launch_count, sig_event_count
type Store struct {
	client       *redis.Client
	installation string
}

// New creates a new Redis-backed storage with the provided configuration
func New(config Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, core.Err(core.ErrStorage, err, "connect to redis at %s", config.Addr)
	}

	return &Store{client: client, installation: config.Installation}, nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client, installation string) *Store {
	return &Store{client: client, installation: installation}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func stateKey(installation string) string {
	return fmt.Sprintf("appraise:%s:state", installation)
}

const (
	fieldVersion      = "version"
	fieldRated        = "rated"
	fieldPostponed    = "postponed"
	fieldFirstLaunch  = "first_launch"
	fieldPostponeTime = "postpone_time"
	fieldLaunches     = "launch_count"
	fieldSigEvents    = "sig_event_count"
)

func (s *Store) Load(ctx context.Context) (core.State, error) {
	vals, err := s.client.HGetAll(ctx, stateKey(s.installation)).Result()
	if err != nil {
		return core.State{}, core.Err(core.ErrStorage, err, "load state of %s", s.installation)
	}
	if len(vals) == 0 {
		return core.State{}, core.ErrNotFound
	}
	st, err := decode(vals)
	if err != nil {
		return core.State{}, core.Err(core.ErrStorage, err, "decode state of %s", s.installation)
	}
	return st, nil
}

func (s *Store) Save(ctx context.Context, st core.State) error {
	err := s.client.HSet(ctx, stateKey(s.installation),
		fieldVersion, core.FormatVersion,
		fieldRated, b2i(st.Rated),
		fieldPostponed, b2i(st.Postponed),
		fieldFirstLaunch, st.FirstLaunch,
		fieldPostponeTime, st.PostponeTime,
		fieldLaunches, st.LaunchCount,
		fieldSigEvents, st.SigEventCount,
	).Err()
	if err != nil {
		return core.Err(core.ErrStorage, err, "save state of %s", s.installation)
	}
	return nil
}

// Reset removes the stored state of the installation.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.client.Del(ctx, stateKey(s.installation)).Err(); err != nil {
		return core.Err(core.ErrStorage, err, "reset state of %s", s.installation)
	}
	return nil
}

func decode(vals map[string]string) (core.State, error) {
	var st core.State
	v, err := strconv.Atoi(vals[fieldVersion])
	if err != nil {
		return st, fmt.Errorf("version: %w", err)
	}
	if v != core.FormatVersion {
		return st, fmt.Errorf("%w: %d", core.ErrUnknownVersion, v)
	}
	st.Version = v
	for name, dst := range map[string]*bool{fieldRated: &st.Rated, fieldPostponed: &st.Postponed} {
		switch vals[name] {
		case "0":
		case "1":
			*dst = true
		default:
			return st, fmt.Errorf("%s must be 0 or 1, got %q", name, vals[name])
		}
	}
	ints := map[string]*int64{
		fieldFirstLaunch:  &st.FirstLaunch,
		fieldPostponeTime: &st.PostponeTime,
		fieldLaunches:     &st.LaunchCount,
		fieldSigEvents:    &st.SigEventCount,
	}
	for name, dst := range ints {
		n, err := strconv.ParseInt(vals[name], 10, 64)
		if err != nil {
			return st, fmt.Errorf("%s: %w", name, err)
		}
		*dst = n
	}
	return st, nil
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

