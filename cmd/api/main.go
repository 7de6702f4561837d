/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
    "context"
    "errors"
    "fmt"
    "os"

    "github.com/rhiwen/kzn-rmpy-operaciones/internal/adapters/mail"
    "github.com/rhiwen/kzn-rmpy-operaciones/internal/adapters/openai"
    "github.com/rhiwen/kzn-rmpy-operaciones/internal/adapters/redmine"
    "github.com/rhiwen/kzn-rmpy-operaciones/internal/adapters/telegram"
    "github.com/rhiwen/kzn-rmpy-operaciones/internal/cache"
    "github.com/rhiwen/kzn-rmpy-operaciones/internal/config"
    "github.com/rhiwen/kzn-rmpy-operaciones/internal/domain"
    "github.com/rhiwen/kzn-rmpy-operaciones/internal/logger"
    "github.com/rhiwen/kzn-rmpy-operaciones/internal/repo"
    "github.com/rhiwen/kzn-rmpy-operaciones/internal/services"
    "github.com/rs/zerolog"
)

func main() {
    if err := newRootCmd().Execute(); err != nil {
        fmt.Fprintf(os.Stderr, "Error: %v\n", err)
        os.Exit(exitCode(err))
    }
}

// exitCode classifies a failed run for schedulers wrapping the binary.
func exitCode(err error) int {
    switch {
    case errors.Is(err, domain.ErrUpstreamAuth):
        return 2
    case errors.Is(err, domain.ErrRunInProgress):
        return 3
    case errors.Is(err, domain.ErrTransport):
        return 4
    }
    return 1
}

// app is the wired process: config, cache store and report pipeline.
type app struct {
    cfg    config.Config
    log    zerolog.Logger
    store  repo.Store
    rm     *redmine.Client
    recip  *services.Recipients
    report *services.Report
}

func newApp(ctx context.Context) (*app, error) {
    cfg := config.Load()
    log := logger.New(cfg)
    if err := cfg.Validate(); err != nil { return nil, fmt.Errorf("configuration: %w", err) }

    store, err := repo.Open(ctx, cfg, log)
    if err != nil { return nil, fmt.Errorf("opening cache store: %w", err) }

    // Adapters
    rm := redmine.NewClient(cfg, log)
    mailer := mail.NewSender(cfg, log)
    llm := openai.NewClient(cfg, log)
    tg := telegram.NewClient(cfg, log)

    // Services
    fetch := services.NewFetcher(rm, log, cfg.ParentIssuesMode == config.ParentIssuesSeparate)
    hier := services.NewHierarchy(rm, fetch, cfg.TeamKeywords, log)
    entries := cache.New(rm, store, log)
    agg := services.NewAggregator(fetch, hier, entries, services.AggregatorOptions{
        Closed:       domain.NewClosedStatuses(cfg.ClosedStatusIDs...),
        WindowMonths: cfg.CacheWindowMonths,
        GroupBy:      services.ParseGroupBy(cfg.GroupBy),
    }, log)
    recip := services.NewRecipients(rm, cfg.Recipients, log)
    report := services.NewReport(services.ReportOptions{SubjectPrefix: cfg.SubjectPrefix, Location: cfg.Location()}, fetch, hier, agg, recip, mailer, log).
        WithSummarizer(llm).
        WithNotifier(tg).
        WithLocker(store)

    return &app{cfg: cfg, log: log, store: store, rm: rm, recip: recip, report: report}, nil
}

func (a *app) Close() {
    if err := a.store.Close(); err != nil { a.log.Warn().Err(err).Msg("closing cache store") }
}
