/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "strings"
    "sync"

    "github.com/rhiwen/kzn-rmpy-operaciones/internal/domain"
    "github.com/rs/zerolog"
    "github.com/samber/lo"
)

// Hierarchy answers relevance, team and parenthood questions about projects.
type Hierarchy struct {
    up       Upstream
    fetch    *Fetcher
    keywords []string
    log      zerolog.Logger

    mu       sync.Mutex
    known    map[int64]domain.Project
    children map[int64]bool
}

func NewHierarchy(up Upstream, fetch *Fetcher, keywords []string, log zerolog.Logger) *Hierarchy {
    kw := lo.FilterMap(keywords, func(k string, _ int) (string, bool) {
        k = strings.ToUpper(strings.TrimSpace(k))
        return k, k != ""
    })
    return &Hierarchy{up: up, fetch: fetch, keywords: kw, log: log, known: map[int64]domain.Project{}, children: map[int64]bool{}}
}

// Seed registers already fetched projects so parent walks can skip lookups,
// and forgets parenthood answers from earlier runs.
func (h *Hierarchy) Seed(projects []domain.Project) {
    h.mu.Lock()
    defer h.mu.Unlock()
    h.known = make(map[int64]domain.Project, len(projects))
    h.children = map[int64]bool{}
    for _, p := range projects { h.known[p.ID] = p }
}

// IsRelevant reports whether the project has at least one accessible issue.
func (h *Hierarchy) IsRelevant(ctx context.Context, p domain.Project) (bool, error) {
    issues, err := h.fetch.GetIssues(ctx, p.ID)
    if err != nil { return false, err }
    return len(issues) > 0, nil
}

// Chain returns the ancestors of p from its immediate parent up to the root.
// The walk stops at the first ancestor that cannot be fetched or repeats.
func (h *Hierarchy) Chain(ctx context.Context, p domain.Project) ([]domain.ProjectRef, error) {
    var chain []domain.ProjectRef
    seen := map[int64]bool{p.ID: true}
    cur := p
    for cur.Parent != nil && cur.Parent.ID != 0 {
        ref := *cur.Parent
        if seen[ref.ID] { break }
        seen[ref.ID] = true
        next, err := h.project(ctx, ref.ID)
        if err != nil {
            if domain.IsAbort(err) { return nil, err }
            h.log.Debug().Err(err).Int64("project_id", ref.ID).Msg("parent walk stopped")
            chain = append(chain, ref)
            break
        }
        if next.Name != "" { ref.Name = next.Name }
        chain = append(chain, ref)
        cur = next
    }
    return chain, nil
}

// TeamOf returns the root ancestor name of p, or "" when p has no parent.
func (h *Hierarchy) TeamOf(ctx context.Context, p domain.Project) (string, error) {
    chain, err := h.Chain(ctx, p)
    if err != nil || len(chain) == 0 { return "", err }
    return chain[len(chain)-1].Name, nil
}

// HasChildren reports whether the project is a structural parent. Lookup
// failures count as no children.
func (h *Hierarchy) HasChildren(ctx context.Context, projectID int64) (bool, error) {
    h.mu.Lock()
    v, ok := h.children[projectID]
    h.mu.Unlock()
    if ok { return v, nil }
    kids, err := h.up.ChildProjects(ctx, projectID, 1)
    if err != nil {
        if domain.IsAbort(err) { return false, err }
        h.log.Debug().Err(err).Int64("project_id", projectID).Msg("child lookup failed")
        return false, nil
    }
    has := len(kids) > 0
    h.mu.Lock()
    h.children[projectID] = has
    h.mu.Unlock()
    return has, nil
}

// MatchesTeam reports whether the team name contains one of the keywords.
func (h *Hierarchy) MatchesTeam(team string) bool {
    up := strings.ToUpper(team)
    return team != "" && lo.SomeBy(h.keywords, func(k string) bool { return strings.Contains(up, k) })
}

func (h *Hierarchy) project(ctx context.Context, id int64) (domain.Project, error) {
    h.mu.Lock()
    p, ok := h.known[id]
    h.mu.Unlock()
    if ok { return p, nil }
    p, err := h.up.Project(ctx, id)
    if err != nil { return domain.Project{}, err }
    h.mu.Lock()
    h.known[id] = p
    h.mu.Unlock()
    return p, nil
}
