package repo

import (
    "context"
    "fmt"
    "time"

    "github.com/rhiwen/kzn-rmpy-operaciones/internal/config"
    "github.com/rs/zerolog"
)

// Store is a durable time entry cache that can also serialize report runs.
type Store interface {
    Get(ctx context.Context, projectID int64) ([]byte, bool, error)
    Put(ctx context.Context, projectID int64, payload []byte, refreshedAt time.Time) error
    // TryLock returns ok=false without blocking when another run holds the lock.
    TryLock(ctx context.Context) (release func(), ok bool, err error)
    Close() error
}

var (
    _ Store = (*SQLiteStore)(nil)
    _ Store = (*PostgresStore)(nil)
)

// Open picks the cache backend named by CACHE_DRIVER.
func Open(ctx context.Context, cfg config.Config, log zerolog.Logger) (Store, error) {
    switch cfg.CacheDriver {
    case config.CacheDriverPostgres:
        return OpenPostgres(ctx, cfg.DBDSN, log)
    case config.CacheDriverSQLite, "":
        return OpenSQLite(cfg.CachePath, log)
    default:
        return nil, fmt.Errorf("unknown cache driver %q", cfg.CacheDriver)
    }
}
