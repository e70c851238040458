package appraise

import (
	"context"
	"fmt"

	"appraisekit/adapters/jsonfile"
	mem "appraisekit/adapters/memory"
	"appraisekit/adapters/redis"
	"appraisekit/adapters/sqlx"
	"appraisekit/adapters/statefile"
	"appraisekit/config"
	"appraisekit/engine"
)

// OpenStorage builds the storage adapter selected by cfg.Storage.Adapter.
// Redis and SQL stores hold connections; Engine.Close releases them.
func OpenStorage(ctx context.Context, cfg *config.Config) (engine.Storage, error) {
	sc := cfg.Storage
	switch sc.Adapter {
	case config.AdapterFile, "":
		if sc.File.Path != "" {
			return statefile.NewAt(sc.File.Path), nil
		}
		return statefile.New(cfg.Product), nil
	case config.AdapterJSON:
		st, err := jsonfile.New(sc.File.Path, sc.Installation)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.AdapterMemory:
		return mem.New(), nil
	case config.AdapterRedis:
		rc := sc.Redis
		rc.Installation = sc.Installation
		st, err := redis.New(rc)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.AdapterSQL:
		qc := sc.SQL
		qc.Installation = sc.Installation
		st, err := sqlx.New(ctx, qc)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage adapter %q", sc.Adapter)
	}
}
