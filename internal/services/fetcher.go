/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "errors"
    "fmt"
    "sort"
    "sync"

    "github.com/rhiwen/kzn-rmpy-operaciones/internal/domain"
    "github.com/rs/zerolog"
    "github.com/samber/lo"
)

// Upstream is the read-only view of the issue tracker the report needs.
type Upstream interface {
    Projects(ctx context.Context) ([]domain.Project, error)
    MembershipProjectIDs(ctx context.Context) ([]int64, error)
    Project(ctx context.Context, id int64) (domain.Project, error)
    ChildProjects(ctx context.Context, parentID int64, limit int) ([]domain.Project, error)
    Issues(ctx context.Context, projectID int64, ownOnly bool) ([]domain.Issue, error)
}

// Fetcher loads projects and issues. Issue lists are memoized until Reset
// so relevance checks and aggregation share one download per project.
type Fetcher struct {
    up      Upstream
    log     zerolog.Logger
    ownOnly bool

    mu     sync.Mutex
    issues map[int64][]domain.Issue
}

func NewFetcher(up Upstream, log zerolog.Logger, ownIssuesOnly bool) *Fetcher {
    return &Fetcher{up: up, log: log, ownOnly: ownIssuesOnly, issues: map[int64][]domain.Issue{}}
}

func (f *Fetcher) Reset() {
    f.mu.Lock()
    f.issues = map[int64][]domain.Issue{}
    f.mu.Unlock()
}

// GetProjects returns the active projects the API user is a member of, or
// every active project when the server cannot scope by membership.
func (f *Fetcher) GetProjects(ctx context.Context) ([]domain.Project, error) {
    memberIDs, err := f.up.MembershipProjectIDs(ctx)
    scoped := err == nil
    if err != nil {
        if errors.Is(err, domain.ErrUpstreamAuth) { return nil, err }
        if domain.IsAbort(err) { return nil, fmt.Errorf("listing memberships: %w", err) }
        f.log.Info().Err(err).Msg("membership scoping unavailable; using all projects")
    }
    all, err := f.up.Projects(ctx)
    if err != nil { return nil, fmt.Errorf("listing projects: %w", err) }

    members := lo.SliceToMap(memberIDs, func(id int64) (int64, struct{}) { return id, struct{}{} })
    out := lo.Filter(all, func(p domain.Project, _ int) bool {
        if !p.IsActive() { return false }
        if !scoped { return true }
        _, ok := members[p.ID]
        return ok
    })
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    f.log.Info().Int("projects", len(all)).Int("active", len(out)).Bool("membership_scoped", scoped).Msg("projects fetched")
    return out, nil
}

// GetIssues returns the issues of a project in any status. Denied or
// vanished projects yield an empty set; only other failures are returned.
func (f *Fetcher) GetIssues(ctx context.Context, projectID int64) ([]domain.Issue, error) {
    f.mu.Lock()
    cached, ok := f.issues[projectID]
    f.mu.Unlock()
    if ok { return cached, nil }

    issues, err := f.up.Issues(ctx, projectID, f.ownOnly)
    if err != nil {
        if errors.Is(err, domain.ErrUpstreamPermission) || errors.Is(err, domain.ErrUpstreamNotFound) {
            f.log.Warn().Err(err).Int64("project_id", projectID).Msg("issues not accessible")
            issues = nil
        } else {
            return nil, fmt.Errorf("issues of project %d: %w", projectID, err)
        }
    }
    f.mu.Lock()
    f.issues[projectID] = issues
    f.mu.Unlock()
    return issues, nil
}
