package repo

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog"
    _ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS time_entry_cache(
    project_id   INTEGER PRIMARY KEY,
    payload      BLOB NOT NULL,
    refreshed_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS run_lock(
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    owner      TEXT NOT NULL,
    expires_at INTEGER NOT NULL
)`

// leaseTTL bounds how long a crashed holder keeps the run lock.
const leaseTTL = 2 * time.Hour

// SQLiteStore is the local, single-host time entry cache. Its run lock is a
// lease row in the same file, so every process using the file shares it.
type SQLiteStore struct {
    db  *sql.DB
    log zerolog.Logger
    now func() time.Time
}

// OpenSQLite opens (and creates) the cache database at path.
func OpenSQLite(path string, log zerolog.Logger) (*SQLiteStore, error) {
    if path != ":memory:" {
        if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil { return nil, fmt.Errorf("creating cache directory: %w", err) }
    }
    db, err := sql.Open("sqlite", path)
    if err != nil { return nil, fmt.Errorf("opening cache database: %w", err) }
    // one connection keeps :memory: databases shared and writes serialized
    db.SetMaxOpenConns(1)
    if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
        db.Close()
        return nil, fmt.Errorf("setting WAL mode: %w", err)
    }
    if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
        db.Close()
        return nil, fmt.Errorf("setting busy timeout: %w", err)
    }
    if _, err := db.Exec(sqliteSchema); err != nil {
        db.Close()
        return nil, fmt.Errorf("creating cache schema: %w", err)
    }
    return &SQLiteStore{db: db, log: log, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Get(ctx context.Context, projectID int64) ([]byte, bool, error) {
    var payload []byte
    err := s.db.QueryRowContext(ctx, `SELECT payload FROM time_entry_cache WHERE project_id = ?`, projectID).Scan(&payload)
    if errors.Is(err, sql.ErrNoRows) { return nil, false, nil }
    if err != nil { return nil, false, err }
    return payload, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, projectID int64, payload []byte, refreshedAt time.Time) error {
    const q = `INSERT INTO time_entry_cache(project_id, payload, refreshed_at) VALUES(?, ?, ?)
        ON CONFLICT(project_id) DO UPDATE SET payload = excluded.payload, refreshed_at = excluded.refreshed_at`
    _, err := s.db.ExecContext(ctx, q, projectID, payload, refreshedAt.UTC().Format(time.RFC3339Nano))
    return err
}

// TryLock takes the run lease unless another holder's lease is still live.
func (s *SQLiteStore) TryLock(ctx context.Context) (func(), bool, error) {
    if err := ctx.Err(); err != nil { return nil, false, err }
    owner := uuid.NewString()
    now := s.now()
    const q = `INSERT INTO run_lock(id, owner, expires_at) VALUES(1, ?, ?)
        ON CONFLICT(id) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at
        WHERE run_lock.expires_at <= ?`
    res, err := s.db.ExecContext(ctx, q, owner, now.Add(leaseTTL).Unix(), now.Unix())
    if err != nil { return nil, false, fmt.Errorf("taking run lease: %w", err) }
    n, err := res.RowsAffected()
    if err != nil { return nil, false, err }
    if n == 0 { return nil, false, nil }
    release := func() {
        if _, err := s.db.ExecContext(context.Background(), `DELETE FROM run_lock WHERE id = 1 AND owner = ?`, owner); err != nil {
            s.log.Error().Err(err).Msg("run lease release failed")
        }
    }
    return release, true, nil
}
