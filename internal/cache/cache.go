/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package cache

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "sort"
    "time"

    "github.com/rhiwen/kzn-rmpy-operaciones/internal/domain"
    "github.com/rs/zerolog"
)

// DefaultWindowMonths is how far back a refresh re-fetches when none is given.
const DefaultWindowMonths = 12

// Source is the upstream provider of time entries.
type Source interface {
    TimeEntries(ctx context.Context, projectID int64, from *time.Time) ([]domain.TimeEntry, error)
}

// Store persists one opaque record per project.
type Store interface {
    Get(ctx context.Context, projectID int64) ([]byte, bool, error)
    Put(ctx context.Context, projectID int64, payload []byte, refreshedAt time.Time) error
}

// Cache keeps an incrementally refreshed copy of each project's time entries.
// Callers must not refresh the same project from two runs at once.
type Cache struct {
    src   Source
    store Store
    log   zerolog.Logger
    now   func() time.Time
}

func New(src Source, store Store, log zerolog.Logger) *Cache {
    return &Cache{src: src, store: store, log: log, now: time.Now}
}

// WithClock replaces the clock used to compute refresh boundaries.
func (c *Cache) WithClock(now func() time.Time) *Cache {
    c.now = now
    return c
}

// TimeEntries returns the project's time entries ordered by id. The first
// call for a project downloads everything; later calls re-fetch only the
// last windowMonths*30 days and merge them by id into the cached set.
func (c *Cache) TimeEntries(ctx context.Context, projectID int64, windowMonths int) ([]domain.TimeEntry, error) {
    if windowMonths <= 0 { windowMonths = DefaultWindowMonths }
    log := c.log.With().Int64("project_id", projectID).Logger()
    now := c.now()

    cached, ok := c.load(ctx, projectID, log)
    if !ok {
        fresh, err := c.src.TimeEntries(ctx, projectID, nil)
        if err != nil { return c.fetchFailed(err, nil, log) }
        merged := Merge(nil, fresh)
        c.save(ctx, domain.CacheEntry{ProjectID: projectID, RefreshedAt: now, Entries: merged}, log)
        log.Debug().Int("entries", len(merged)).Msg("time entry cache built")
        return merged, nil
    }

    from := domain.Day(now).AddDate(0, 0, -windowMonths*30)
    fresh, err := c.src.TimeEntries(ctx, projectID, &from)
    if err != nil { return c.fetchFailed(err, cached.Entries, log) }
    merged := Merge(cached.Entries, fresh)
    c.save(ctx, domain.CacheEntry{ProjectID: projectID, RefreshedAt: now, Boundary: &from, Entries: merged}, log)
    log.Debug().Int("cached", len(cached.Entries)).Int("fresh", len(fresh)).Int("merged", len(merged)).Msg("time entry cache refreshed")
    return merged, nil
}

// fetchFailed decides what an upstream failure means for this project:
// denied access yields no entries, other per-project failures fall back to
// the stale cached set, and abort-class errors are returned.
func (c *Cache) fetchFailed(err error, stale []domain.TimeEntry, log zerolog.Logger) ([]domain.TimeEntry, error) {
    if errors.Is(err, domain.ErrUpstreamPermission) {
        log.Warn().Err(err).Msg("time entries not accessible; reporting no hours")
        return nil, nil
    }
    if stale != nil && domain.IsRecoverable(err) {
        log.Warn().Err(err).Int("entries", len(stale)).Msg("time entry refresh failed; using cached entries")
        return stale, nil
    }
    return nil, fmt.Errorf("fetching time entries: %w", err)
}

func (c *Cache) load(ctx context.Context, projectID int64, log zerolog.Logger) (domain.CacheEntry, bool) {
    payload, ok, err := c.store.Get(ctx, projectID)
    if err != nil {
        log.Warn().Err(err).Msg("time entry cache unreadable; rebuilding")
        return domain.CacheEntry{}, false
    }
    if !ok { return domain.CacheEntry{}, false }
    entry, err := Decode(payload)
    if err == nil && entry.ProjectID != projectID {
        err = fmt.Errorf("%w: record belongs to project %d", domain.ErrCacheCorrupt, entry.ProjectID)
    }
    if err != nil {
        log.Warn().Err(err).Msg("time entry cache corrupt; rebuilding")
        return domain.CacheEntry{}, false
    }
    return entry, true
}

func (c *Cache) save(ctx context.Context, entry domain.CacheEntry, log zerolog.Logger) {
    payload, err := Encode(entry)
    if err == nil { err = c.store.Put(ctx, entry.ProjectID, payload, entry.RefreshedAt) }
    if err != nil { log.Warn().Err(err).Msg("time entry cache not persisted") }
}

// Merge replaces cached entries whose id appears in fresh and keeps the
// rest. The result is ordered by id and has no duplicate ids.
func Merge(cached, fresh []domain.TimeEntry) []domain.TimeEntry {
    byID := make(map[int64]domain.TimeEntry, len(cached)+len(fresh))
    for _, e := range cached { byID[e.ID] = e }
    for _, e := range fresh { byID[e.ID] = e }
    out := make([]domain.TimeEntry, 0, len(byID))
    for _, e := range byID { out = append(out, e) }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out
}

func Encode(entry domain.CacheEntry) ([]byte, error) {
    if entry.Entries == nil { entry.Entries = []domain.TimeEntry{} }
    return json.Marshal(entry)
}

func Decode(payload []byte) (domain.CacheEntry, error) {
    var entry domain.CacheEntry
    if err := json.Unmarshal(payload, &entry); err != nil {
        return domain.CacheEntry{}, fmt.Errorf("%w: %v", domain.ErrCacheCorrupt, err)
    }
    if entry.ProjectID == 0 { return domain.CacheEntry{}, fmt.Errorf("%w: missing project id", domain.ErrCacheCorrupt) }
    entry.Entries = Merge(nil, entry.Entries)
    return entry, nil
}
