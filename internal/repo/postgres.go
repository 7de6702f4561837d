package repo

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/rs/zerolog"
)

// runLockKey identifies the report run in pg advisory locks.
const runLockKey int64 = 424242

const postgresSchema = `CREATE TABLE IF NOT EXISTS time_entry_cache(
    project_id   BIGINT PRIMARY KEY,
    payload      BYTEA NOT NULL,
    refreshed_at TIMESTAMPTZ NOT NULL
)`

// PostgresStore keeps the time entry cache in a shared database so several
// reporter instances can use one cache; runs are serialized with an
// advisory lock.
type PostgresStore struct {
    pool *pgxpool.Pool
    log  zerolog.Logger
}

func OpenPostgres(ctx context.Context, dsn string, log zerolog.Logger) (*PostgresStore, error) {
    pool, err := pgxpool.New(ctx, dsn)
    if err != nil { return nil, fmt.Errorf("db connect: %w", err) }
    ctx2, cancel := context.WithTimeout(ctx, 10*time.Second)
    defer cancel()
    if err := pool.Ping(ctx2); err != nil {
        pool.Close()
        return nil, fmt.Errorf("db ping: %w", err)
    }
    if _, err := pool.Exec(ctx2, postgresSchema); err != nil {
        pool.Close()
        return nil, fmt.Errorf("db migrate: %w", err)
    }
    return &PostgresStore{pool: pool, log: log}, nil
}

func (s *PostgresStore) Close() error {
    s.pool.Close()
    return nil
}

func (s *PostgresStore) Get(ctx context.Context, projectID int64) ([]byte, bool, error) {
    var payload []byte
    err := s.pool.QueryRow(ctx, `SELECT payload FROM time_entry_cache WHERE project_id=$1`, projectID).Scan(&payload)
    if errors.Is(err, pgx.ErrNoRows) { return nil, false, nil }
    if err != nil { return nil, false, err }
    return payload, true, nil
}

func (s *PostgresStore) Put(ctx context.Context, projectID int64, payload []byte, refreshedAt time.Time) error {
    const q = `INSERT INTO time_entry_cache(project_id, payload, refreshed_at) VALUES($1,$2,$3)
        ON CONFLICT (project_id) DO UPDATE SET payload=EXCLUDED.payload, refreshed_at=EXCLUDED.refreshed_at`
    _, err := s.pool.Exec(ctx, q, projectID, payload, refreshedAt.UTC())
    return err
}

// TryLock takes the run advisory lock on a dedicated connection, which is
// held until release is called.
func (s *PostgresStore) TryLock(ctx context.Context) (func(), bool, error) {
    conn, err := s.pool.Acquire(ctx)
    if err != nil { return nil, false, err }
    var ok bool
    if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", runLockKey).Scan(&ok); err != nil {
        conn.Release()
        return nil, false, err
    }
    if !ok {
        conn.Release()
        return nil, false, nil
    }
    release := func() {
        var unlocked bool
        err := conn.QueryRow(context.Background(), "SELECT pg_advisory_unlock($1)", runLockKey).Scan(&unlocked)
        if err == nil && !unlocked { err = errors.New("advisory unlock returned false") }
        if err != nil { s.log.Error().Err(err).Msg("run lock release failed") }
        conn.Release()
    }
    return release, true, nil
}
