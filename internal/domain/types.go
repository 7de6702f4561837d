/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package domain

import "time"

// ProjectStatusActive is the upstream status code of an active project.
const ProjectStatusActive = 1

// NoVersion labels issues without a fixed version.
const NoVersion = "Sin versión"

type ProjectRef struct {
    ID   int64
    Name string
}

type Project struct {
    ID     int64
    Name   string
    Status int
    Parent *ProjectRef
}

func (p Project) IsActive() bool { return p.Status == ProjectStatusActive }

type Issue struct {
    ID             int64
    ProjectID      int64
    StatusID       int64
    StartDate      *time.Time
    DueDate        *time.Time
    UpdatedOn      *time.Time
    ClosedOn       *time.Time
    EstimatedHours *float64
    FixedVersion   *string
}

// VersionName returns the fixed version name or NoVersion.
func (i Issue) VersionName() string {
    if i.FixedVersion == nil || *i.FixedVersion == "" { return NoVersion }
    return *i.FixedVersion
}

type TimeEntry struct {
    ID        int64   `json:"id"`
    ProjectID int64   `json:"project_id"`
    IssueID   *int64  `json:"issue_id,omitempty"`
    Hours     float64 `json:"hours"`
    SpentOn   string  `json:"spent_on,omitempty"`
}

// CacheEntry is the persisted time-entry set of one project.
type CacheEntry struct {
    ProjectID   int64       `json:"project_id"`
    RefreshedAt time.Time   `json:"refreshed_at"`
    Boundary    *time.Time  `json:"boundary,omitempty"`
    Entries     []TimeEntry `json:"entries"`
}

// AggregateRecord is one report row: a (team, project, version) bucket.
type AggregateRecord struct {
    Team          string
    ParentProject string
    Project       string
    ProjectID     int64
    Version       string

    StartDate *time.Time
    DueDate   *time.Time

    Total            int
    Open             int
    ClosedLastWeek   int
    Closed30Days     int
    ModifiedLastWeek int
    Modified30Days   int
    EstimatedHours   float64
    ConsumedHours    float64
    ProgressPct      float64
    HoursConsumedPct float64
}

func (r AggregateRecord) ProgressLabel() string      { return FormatPercent(r.ProgressPct) }
func (r AggregateRecord) HoursConsumedLabel() string { return FormatPercent(r.HoursConsumedPct) }

// ClosedStatuses is the set of status ids counted as closed.
type ClosedStatuses map[int64]struct{}

func NewClosedStatuses(ids ...int64) ClosedStatuses {
    s := ClosedStatuses{}
    for _, id := range ids { s[id] = struct{}{} }
    return s
}

func DefaultClosedStatuses() ClosedStatuses { return NewClosedStatuses(5, 6, 9, 21) }

func (s ClosedStatuses) Contains(id int64) bool {
    _, ok := s[id]
    return ok
}

// Email is a rendered report ready for the mail sink.
type Email struct {
    Subject     string
    HTML        string
    To          []string
    Attachments []string
}
