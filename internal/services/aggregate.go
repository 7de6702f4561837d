/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "fmt"
    "sort"
    "time"

    "github.com/rhiwen/kzn-rmpy-operaciones/internal/domain"
    "github.com/rs/zerolog"
)

// GroupBy selects how a project's issues are bucketed into report rows.
type GroupBy int

const (
    GroupByVersion GroupBy = iota
    GroupByProject
)

func ParseGroupBy(s string) GroupBy {
    if s == "project" { return GroupByProject }
    return GroupByVersion
}

// TimeEntryCache returns the cached time entries of a project.
type TimeEntryCache interface {
    TimeEntries(ctx context.Context, projectID int64, windowMonths int) ([]domain.TimeEntry, error)
}

// ProjectKey carries the labels shared by every row of one project.
type ProjectKey struct {
    Team          string
    ParentProject string
    Project       string
    ProjectID     int64
}

type AggregatorOptions struct {
    Closed       domain.ClosedStatuses
    WindowMonths int
    GroupBy      GroupBy
}

// Aggregator turns projects into report rows.
type Aggregator struct {
    fetch *Fetcher
    hier  *Hierarchy
    cache TimeEntryCache
    opts  AggregatorOptions
    log   zerolog.Logger
    now   func() time.Time
}

func NewAggregator(fetch *Fetcher, hier *Hierarchy, cache TimeEntryCache, opts AggregatorOptions, log zerolog.Logger) *Aggregator {
    if opts.Closed == nil { opts.Closed = domain.DefaultClosedStatuses() }
    return &Aggregator{fetch: fetch, hier: hier, cache: cache, opts: opts, log: log, now: time.Now}
}

// Aggregate computes the rows of every relevant, team-matched project.
// Failures confined to one project skip it; abort-class errors end the run.
func (a *Aggregator) Aggregate(ctx context.Context, projects []domain.Project) ([]domain.AggregateRecord, error) {
    w := domain.NewWindows(a.now())
    a.log.Debug().Str("last_week", w.LastWeek.String()).Str("last_30", w.Last30.String()).Msg("report windows")
    var out []domain.AggregateRecord
    for _, p := range projects {
        if err := ctx.Err(); err != nil { return nil, err }
        rows, err := a.project(ctx, p, w)
        if err != nil {
            if domain.IsAbort(err) { return nil, fmt.Errorf("project %d (%s): %w", p.ID, p.Name, err) }
            a.log.Warn().Err(err).Int64("project_id", p.ID).Str("project", p.Name).Msg("project skipped")
            continue
        }
        out = append(out, rows...)
    }
    SortRecords(out)
    return out, nil
}

func (a *Aggregator) project(ctx context.Context, p domain.Project, w domain.Windows) ([]domain.AggregateRecord, error) {
    relevant, err := a.hier.IsRelevant(ctx, p)
    if err != nil || !relevant { return nil, err }

    chain, err := a.hier.Chain(ctx, p)
    if err != nil { return nil, err }
    if len(chain) == 0 { return nil, nil }
    team := chain[len(chain)-1].Name
    if !a.hier.MatchesTeam(team) { return nil, nil }

    key := ProjectKey{Team: team, Project: p.Name, ProjectID: p.ID}
    if len(chain) > 1 { key.ParentProject = chain[0].Name }
    isParent, err := a.hier.HasChildren(ctx, p.ID)
    if err != nil { return nil, err }
    if isParent { key.Project = "" }

    issues, err := a.fetch.GetIssues(ctx, p.ID)
    if err != nil { return nil, err }

    entries, err := a.cache.TimeEntries(ctx, p.ID, a.opts.WindowMonths)
    if err != nil {
        if domain.IsAbort(err) { return nil, err }
        a.log.Warn().Err(err).Int64("project_id", p.ID).Msg("no hours data for project")
        entries = nil
    }
    return AggregateIssues(key, issues, entries, w, a.opts), nil
}

// AggregateIssues rolls a project's issues up into one row per group.
func AggregateIssues(key ProjectKey, issues []domain.Issue, entries []domain.TimeEntry, w domain.Windows, opts AggregatorOptions) []domain.AggregateRecord {
    closed := opts.Closed
    if closed == nil { closed = domain.DefaultClosedStatuses() }

    byIssue := map[int64][]domain.TimeEntry{}
    for _, e := range entries {
        if e.IssueID == nil { continue }
        byIssue[*e.IssueID] = append(byIssue[*e.IssueID], e)
    }

    buckets := map[string]*domain.AggregateRecord{}
    for _, i := range issues {
        group := i.VersionName()
        if opts.GroupBy == GroupByProject { group = "" }
        r, ok := buckets[group]
        if !ok {
            r = &domain.AggregateRecord{
                Team: key.Team, ParentProject: key.ParentProject, Project: key.Project, ProjectID: key.ProjectID, Version: group,
            }
            buckets[group] = r
        }
        addIssue(r, i, byIssue[i.ID], w, closed)
    }

    out := make([]domain.AggregateRecord, 0, len(buckets))
    for _, b := range buckets {
        r := *b
        r.EstimatedHours = domain.Round2(r.EstimatedHours)
        r.ConsumedHours = domain.Round2(r.ConsumedHours)
        r.ProgressPct = domain.Percent(float64(r.Total-r.Open), float64(r.Total))
        r.HoursConsumedPct = domain.Percent(r.ConsumedHours, r.EstimatedHours)
        out = append(out, r)
    }
    SortRecords(out)
    return out
}

func addIssue(r *domain.AggregateRecord, i domain.Issue, entries []domain.TimeEntry, w domain.Windows, closed domain.ClosedStatuses) {
    r.Total++
    if i.StartDate != nil && (r.StartDate == nil || i.StartDate.Before(*r.StartDate)) {
        d := domain.Day(*i.StartDate)
        r.StartDate = &d
    }
    if i.DueDate != nil && (r.DueDate == nil || i.DueDate.After(*r.DueDate)) {
        d := domain.Day(*i.DueDate)
        r.DueDate = &d
    }

    if closed.Contains(i.StatusID) {
        if i.ClosedOn != nil {
            if w.LastWeek.Contains(*i.ClosedOn) { r.ClosedLastWeek++ }
            if w.Last30.Contains(*i.ClosedOn) { r.Closed30Days++ }
        }
    } else {
        r.Open++
    }

    if i.UpdatedOn != nil {
        if w.LastWeek.Contains(*i.UpdatedOn) { r.ModifiedLastWeek++ }
        if w.Last30.Contains(*i.UpdatedOn) { r.Modified30Days++ }
    }

    if i.EstimatedHours != nil && *i.EstimatedHours > 0 { r.EstimatedHours += domain.Round2(*i.EstimatedHours) }
    for _, e := range entries { r.ConsumedHours += domain.Round2(e.Hours) }
}

// SortRecords orders rows by team and project; within a project the
// no-version group comes first, then groups by start date, undated last.
func SortRecords(rs []domain.AggregateRecord) {
    sort.SliceStable(rs, func(i, j int) bool {
        a, b := rs[i], rs[j]
        if a.Team != b.Team { return a.Team < b.Team }
        if a.ParentProject != b.ParentProject { return a.ParentProject < b.ParentProject }
        if a.Project != b.Project { return a.Project < b.Project }
        if a.ProjectID != b.ProjectID { return a.ProjectID < b.ProjectID }
        as, bs := a.Version == domain.NoVersion, b.Version == domain.NoVersion
        if as != bs { return as }
        switch {
        case a.StartDate != nil && b.StartDate != nil && !a.StartDate.Equal(*b.StartDate):
            return a.StartDate.Before(*b.StartDate)
        case a.StartDate != nil && b.StartDate == nil:
            return true
        case a.StartDate == nil && b.StartDate != nil:
            return false
        }
        return a.Version < b.Version
    })
}
