/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package render

import (
    "fmt"
    "html"
    "math"
    "regexp"
    "strconv"
    "strings"
    "time"

    "github.com/rhiwen/kzn-rmpy-operaciones/internal/domain"
)

// NoData is rendered in place of the tables when there is nothing to report.
const NoData = "<p>No se encontraron proyectos relevantes.</p>"

const (
    thStyle    = "border: 1px solid #ccc; padding: 4px; background-color: #f2f2f2; text-align: left; vertical-align: middle;"
    tdStyle    = "border: 1px solid #ccc; padding: 2px 4px; text-align: left; vertical-align: middle; white-space: normal; overflow-wrap: break-word;"
    heavyRule  = "border-top: 2px solid #555;"
    headerRule = "border-bottom: 2px solid #555;"
)

type column struct {
    title string
    width string
    split bool
    cell  func(domain.AggregateRecord) string
}

var columns = []column{
    {"Proyecto Padre", "180px", true, func(r domain.AggregateRecord) string { return r.ParentProject }},
    {"Proyecto", "180px", true, func(r domain.AggregateRecord) string { return r.Project }},
    {"Versión", "140px", false, func(r domain.AggregateRecord) string { return r.Version }},
    {"Fecha de inicio", "90px", false, func(r domain.AggregateRecord) string { return date(r.StartDate) }},
    {"Fecha finalización", "90px", false, func(r domain.AggregateRecord) string { return date(r.DueDate) }},
    {"Tareas totales", "70px", false, func(r domain.AggregateRecord) string { return strconv.Itoa(r.Total) }},
    {"Tareas abiertas", "70px", false, func(r domain.AggregateRecord) string { return strconv.Itoa(r.Open) }},
    {"Tareas modificadas última semana", "70px", false, func(r domain.AggregateRecord) string { return strconv.Itoa(r.ModifiedLastWeek) }},
    {"Tareas cerradas última semana", "70px", false, func(r domain.AggregateRecord) string { return strconv.Itoa(r.ClosedLastWeek) }},
    {"Tareas modificadas últimos 30 días", "70px", false, func(r domain.AggregateRecord) string { return strconv.Itoa(r.Modified30Days) }},
    {"Tareas cerradas últimos 30 días", "70px", false, func(r domain.AggregateRecord) string { return strconv.Itoa(r.Closed30Days) }},
    {"Horas estimadas", "90px", false, func(r domain.AggregateRecord) string { return hours(r.EstimatedHours) }},
    {"Horas insumidas", "90px", false, func(r domain.AggregateRecord) string { return hours(r.ConsumedHours) }},
    {"Progreso tareas", "90px", false, func(r domain.AggregateRecord) string { return TruncPercent(r.ProgressLabel()) }},
    {"Horas consumidas", "90px", false, func(r domain.AggregateRecord) string { return TruncPercent(r.HoursConsumedLabel()) }},
}

// Titles returns the column headings in display order.
func Titles() []string {
    out := make([]string, len(columns))
    for i, c := range columns { out[i] = c.title }
    return out
}

// Tables renders one heading and table per team. Records are expected in
// report order; consecutive rows of the same team share a section.
func Tables(records []domain.AggregateRecord) string {
    if len(records) == 0 { return NoData }
    var b strings.Builder
    b.WriteString("<div style='font-family: Arial, sans-serif; font-size: 13px;'>\n")
    b.WriteString("<h2 style='margin-bottom: 8px;'>Reporte de proyectos</h2>\n")
    for start := 0; start < len(records); {
        end := start + 1
        for end < len(records) && records[end].Team == records[start].Team { end++ }
        team(&b, records[start].Team, records[start:end])
        start = end
    }
    b.WriteString("</div>")
    return b.String()
}

func team(b *strings.Builder, name string, rows []domain.AggregateRecord) {
    fmt.Fprintf(b, "<h3 style='margin-top: 20px; margin-bottom: 6px; font-size: 14px;'>%s</h3>\n", html.EscapeString(name))
    b.WriteString("<table style='border-collapse: collapse; width: 100%; table-layout: fixed;'>\n<thead><tr>")
    for _, c := range columns {
        fmt.Fprintf(b, "<th style='%s %s width: %s;'>%s</th>", thStyle, headerRule, c.width, html.EscapeString(c.title))
    }
    b.WriteString("</tr></thead>\n<tbody>\n")
    for i, r := range rows {
        extra := ""
        if i > 0 && !sameProject(rows[i-1], r) { extra = " " + heavyRule }
        b.WriteString("<tr>")
        for _, c := range columns {
            v := html.EscapeString(c.cell(r))
            if c.split { v = SplitDash(c.cell(r)) }
            fmt.Fprintf(b, "<td style='%s%s'>%s</td>", tdStyle, extra, v)
        }
        b.WriteString("</tr>\n")
    }
    b.WriteString("</tbody></table>\n")
}

func sameProject(a, b domain.AggregateRecord) bool {
    return a.ProjectID == b.ProjectID && a.Project == b.Project && a.ParentProject == b.ParentProject
}

var dash = regexp.MustCompile(`\s*[-–—]\s*`)

// SplitDash splits s at its first dash-like separator into a primary line
// and a smaller grey secondary line. Both parts are escaped.
func SplitDash(s string) string {
    loc := dash.FindStringIndex(s)
    if loc == nil { return html.EscapeString(s) }
    primary := strings.TrimSpace(s[:loc[0]])
    secondary := strings.TrimSpace(s[loc[1]:])
    return html.EscapeString(primary) + "<br><span style='font-size:12px;color:#555;'>" + html.EscapeString(secondary) + "</span>"
}

// TruncPercent turns "66.67%" into "66%". Values that do not parse are kept.
func TruncPercent(label string) string {
    f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(label), "%"), 64)
    if err != nil { return label }
    return strconv.Itoa(int(math.Trunc(f))) + "%"
}

func hours(v float64) string { return fmt.Sprintf("%.2f", v) }

func date(t *time.Time) string {
    if t == nil { return "" }
    return t.Format("2006-01-02")
}
