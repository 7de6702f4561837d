/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package domain

import (
    "fmt"
    "math"
    "time"
)

// DateRange is an inclusive range of calendar days.
type DateRange struct {
    From time.Time
    To   time.Time
}

// Contains compares calendar dates only, both bounds inclusive.
func (r DateRange) Contains(t time.Time) bool {
    d := Day(t.In(r.From.Location()))
    return !d.Before(r.From) && !d.After(r.To)
}

func (r DateRange) String() string {
    return r.From.Format("2006-01-02") + ".." + r.To.Format("2006-01-02")
}

// Windows holds the rolling windows a report is computed against.
type Windows struct {
    Today    time.Time
    LastWeek DateRange
    Last30   DateRange
}

// NewWindows computes the windows for the given instant. LastWeek is the
// most recently completed Monday..Friday; Last30 is today-30d..today.
func NewWindows(now time.Time) Windows {
    today := Day(now)
    // days back to the last Friday strictly before today
    back := (int(today.Weekday()) - int(time.Friday) + 7) % 7
    if back == 0 { back = 7 }
    friday := today.AddDate(0, 0, -back)
    return Windows{
        Today:    today,
        LastWeek: DateRange{From: friday.AddDate(0, 0, -4), To: friday},
        Last30:   DateRange{From: today.AddDate(0, 0, -30), To: today},
    }
}

// Day truncates t to midnight in its own location.
func Day(t time.Time) time.Time {
    return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func Round2(v float64) float64 { return math.Round(v*100) / 100 }

// Percent returns num/den*100 rounded to two decimals, 0 when den is 0.
func Percent(num, den float64) float64 {
    if den == 0 { return 0 }
    return Round2(num / den * 100)
}

func FormatPercent(p float64) string { return fmt.Sprintf("%.2f%%", p) }
