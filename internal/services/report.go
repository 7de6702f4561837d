/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "time"

    "github.com/google/uuid"
    "github.com/rhiwen/kzn-rmpy-operaciones/internal/domain"
    "github.com/rhiwen/kzn-rmpy-operaciones/internal/render"
    "github.com/rs/zerolog"
    "github.com/samber/lo"
)

// AllTeams is the subject suffix of the report sent to explicit recipients.
const AllTeams = "EQUIPO TODOS"

type Mailer interface {
    Send(ctx context.Context, e domain.Email) error
}

type Summarizer interface {
    Enabled() bool
    Summarize(ctx context.Context, team string, records []domain.AggregateRecord) (string, error)
}

// Locker guards the time entry cache so one run at a time refreshes it,
// across processes when the store is shared.
type Locker interface {
    TryLock(ctx context.Context) (release func(), ok bool, err error)
}

type Notifier interface {
    Enabled() bool
    Notify(ctx context.Context, text string) error
}

// GenerateRequest mirrors the on-demand trigger body. Recipients is a
// comma-separated list of aliases and addresses; empty means per-team mails.
type GenerateRequest struct {
    SendEmail  bool
    Recipients string
    Background bool
    Trigger    string
}

type GenerateResult struct {
    RunID   string
    Message string
    HTML    string
    Teams   []string
    Skipped []string
}

type RunStatus struct {
    RunID      string    `json:"run_id"`
    Trigger    string    `json:"trigger"`
    StartedAt  time.Time `json:"started_at"`
    FinishedAt time.Time `json:"finished_at,omitempty"`
    Outcome    string    `json:"outcome"`
    Message    string    `json:"message,omitempty"`
    Error      string    `json:"error,omitempty"`
    Rows       int       `json:"rows"`
}

type ReportOptions struct {
    SubjectPrefix string
    Location      *time.Location
}

// Report runs the whole pipeline: fetch, filter, aggregate, render and mail.
// Runs are serialized so the cache sees one writer at a time.
type Report struct {
    opts  ReportOptions
    log   zerolog.Logger
    fetch *Fetcher
    hier  *Hierarchy
    agg   *Aggregator
    recip *Recipients
    mail  Mailer
    sum   Summarizer
    notif Notifier
    lock  Locker

    now      func() time.Time
    dispatch func(func())

    mu       sync.Mutex
    statusMu sync.RWMutex
    last     RunStatus
}

func NewReport(opts ReportOptions, fetch *Fetcher, hier *Hierarchy, agg *Aggregator, recip *Recipients, mail Mailer, log zerolog.Logger) *Report {
    if opts.Location == nil { opts.Location = time.Local }
    return &Report{
        opts: opts, log: log, fetch: fetch, hier: hier, agg: agg, recip: recip, mail: mail,
        now: time.Now, dispatch: func(f func()) { go f() },
    }
}

func (r *Report) WithSummarizer(s Summarizer) *Report { r.sum = s; return r }
func (r *Report) WithNotifier(n Notifier) *Report     { r.notif = n; return r }
func (r *Report) WithLocker(l Locker) *Report         { r.lock = l; return r }

// Records runs fetch, filter and aggregation once.
func (r *Report) Records(ctx context.Context) ([]domain.AggregateRecord, error) {
    r.mu.Lock()
    defer r.mu.Unlock()
    return r.records(ctx)
}

// records runs under the store lock; a run held elsewhere yields
// domain.ErrRunInProgress.
func (r *Report) records(ctx context.Context) ([]domain.AggregateRecord, error) {
    if r.lock != nil {
        release, ok, err := r.lock.TryLock(ctx)
        if err != nil { return nil, fmt.Errorf("run lock: %w", err) }
        if !ok {
            r.log.Info().Msg("another report run holds the lock")
            return nil, domain.ErrRunInProgress
        }
        defer release()
    }
    r.fetch.Reset()
    projects, err := r.fetch.GetProjects(ctx)
    if err != nil { return nil, err }
    r.hier.Seed(projects)
    recs, err := r.agg.Aggregate(ctx, projects)
    if err != nil { return nil, err }
    r.log.Info().Int("projects", len(projects)).Int("rows", len(recs)).Msg("records aggregated")
    return recs, nil
}

// Preview renders every team into one standalone page without sending mail.
func (r *Report) Preview(ctx context.Context) (string, error) {
    recs, err := r.Records(ctx)
    if err != nil { return "", err }
    return render.Page("Reporte de Proyectos (completo)", render.Tables(recs)), nil
}

// Subject formats the mail subject for a team at t.
func (r *Report) Subject(team string, t time.Time) string {
    return fmt.Sprintf("%s - Reporte de avance de proyectos y tareas al %s - %s",
        r.opts.SubjectPrefix, t.In(r.opts.Location).Format("2006/01/02 15:04:05"), team)
}

// Generate builds the report and, when asked, mails it. With explicit
// recipients a single all-teams report goes to them; otherwise each team
// present in the data goes to its own recipients and teams without any are skipped.
func (r *Report) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
    res := GenerateResult{RunID: uuid.NewString()}
    log := r.log.With().Str("run_id", res.RunID).Str("trigger", req.Trigger).Logger()
    r.start(res.RunID, req.Trigger)
    log.Info().Bool("send_email", req.SendEmail).Str("recipients", req.Recipients).Msg("generating report")

    res, err := r.generate(ctx, log, req, res)
    r.finish(res, err)
    if err != nil {
        log.Error().Err(err).Msg("report run failed")
        return res, err
    }
    log.Info().Str("message", res.Message).Msg("report run finished")
    return res, nil
}

func (r *Report) generate(ctx context.Context, log zerolog.Logger, req GenerateRequest, res GenerateResult) (GenerateResult, error) {
    r.mu.Lock()
    recs, err := r.records(ctx)
    r.mu.Unlock()
    if err != nil { return res, err }
    r.setRows(len(recs))
    res.HTML = render.Tables(recs)
    now := r.now()

    if req.Recipients != "" {
        to, err := r.recip.Resolve(ctx, req.Recipients)
        if err != nil { return res, fmt.Errorf("resolving recipients: %w", err) }
        res.Teams = []string{AllTeams}
        res.Message = "Reporte manual enviado"
        if len(to) == 0 {
            log.Info().Msg("no recipients resolved; mail not sent")
            res.Message = "Sin destinatarios; no se envió el reporte"
            return res, nil
        }
        if !req.SendEmail { return res, nil }
        mail := domain.Email{Subject: r.Subject(AllTeams, now), HTML: render.Page(AllTeams, res.HTML), To: to}
        return res, r.send(ctx, log, req.Background, mail)
    }

    teams := lo.Uniq(lo.Map(recs, func(rec domain.AggregateRecord, _ int) string { return rec.Team }))
    var errs []error
    for _, team := range teams {
        alias := TeamAlias(team)
        to, err := r.recip.ForTeam(ctx, alias)
        if err != nil {
            if domain.IsAbort(err) { return res, fmt.Errorf("recipients of %s: %w", team, err) }
            log.Warn().Err(err).Str("team", team).Msg("recipient lookup failed")
        }
        if len(to) == 0 {
            log.Info().Str("team", team).Str("alias", alias).Msg("team has no recipients; skipped")
            res.Skipped = append(res.Skipped, team)
            continue
        }
        res.Teams = append(res.Teams, team)
        if !req.SendEmail { continue }

        rows := lo.Filter(recs, func(rec domain.AggregateRecord, _ int) bool { return rec.Team == team })
        body := r.summary(ctx, log, team, rows) + render.Tables(rows)
        mail := domain.Email{Subject: r.Subject(team, now), HTML: render.Page(team, body), To: to}
        if err := r.send(ctx, log, req.Background, mail); err != nil { errs = append(errs, fmt.Errorf("%s: %w", team, err)) }
    }
    res.Message = fmt.Sprintf("Reportes generados para %d equipos", len(res.Teams))
    return res, errors.Join(errs...)
}

func (r *Report) summary(ctx context.Context, log zerolog.Logger, team string, rows []domain.AggregateRecord) string {
    if r.sum == nil || !r.sum.Enabled() { return "" }
    text, err := r.sum.Summarize(ctx, team, rows)
    if err != nil {
        log.Warn().Err(err).Str("team", team).Msg("summary unavailable")
        return ""
    }
    return render.Summary(text)
}

func (r *Report) send(ctx context.Context, log zerolog.Logger, background bool, mail domain.Email) error {
    if !background { return r.mail.Send(ctx, mail) }
    bg := context.WithoutCancel(ctx)
    r.dispatch(func() {
        if err := r.mail.Send(bg, mail); err != nil { log.Error().Err(err).Str("subject", mail.Subject).Msg("background send failed") }
    })
    return nil
}

// RunDaily is the scheduled job: per-team mails sent inline, then the
// outcome is posted to the notifier when one is configured.
func (r *Report) RunDaily(ctx context.Context) error {
    res, err := r.Generate(ctx, GenerateRequest{SendEmail: true, Trigger: "cron"})
    if r.notif != nil && r.notif.Enabled() && !errors.Is(err, domain.ErrRunInProgress) {
        text := "Reporte diario: " + res.Message
        if err != nil { text = "Reporte diario falló: " + err.Error() }
        if nerr := r.notif.Notify(ctx, text); nerr != nil { r.log.Warn().Err(nerr).Msg("run notification failed") }
    }
    return err
}

func (r *Report) LastRun() RunStatus {
    r.statusMu.RLock()
    defer r.statusMu.RUnlock()
    return r.last
}

func (r *Report) start(runID, trigger string) {
    r.statusMu.Lock()
    r.last = RunStatus{RunID: runID, Trigger: trigger, StartedAt: r.now(), Outcome: "running"}
    r.statusMu.Unlock()
}

func (r *Report) setRows(n int) {
    r.statusMu.Lock()
    r.last.Rows = n
    r.statusMu.Unlock()
}

func (r *Report) finish(res GenerateResult, err error) {
    r.statusMu.Lock()
    defer r.statusMu.Unlock()
    if r.last.RunID != res.RunID { return }
    r.last.FinishedAt = r.now()
    r.last.Message = res.Message
    r.last.Outcome = "ok"
    if err != nil {
        r.last.Outcome = "failed"
        r.last.Error = err.Error()
    }
}
