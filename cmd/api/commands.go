/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
    "context"
    "errors"
    "fmt"
    "os"
    "os/signal"
    "sort"
    "strings"
    "syscall"
    "time"

    "github.com/rhiwen/kzn-rmpy-operaciones/internal/domain"
    httpapi "github.com/rhiwen/kzn-rmpy-operaciones/internal/http"
    "github.com/rhiwen/kzn-rmpy-operaciones/internal/jobs"
    "github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
    root := &cobra.Command{
        Use:           "redmine-reporter",
        Short:         "Per-team Redmine progress reports by mail",
        SilenceUsage:  true,
        SilenceErrors: true,
        RunE:          func(cmd *cobra.Command, _ []string) error { return serve(cmd.Context()) },
    }
    root.AddCommand(newServeCmd(), newRunCmd(), newPreviewCmd(), newAliasesCmd())
    return root
}

func newServeCmd() *cobra.Command {
    return &cobra.Command{
        Use:   "serve",
        Short: "Run the HTTP trigger and the daily scheduler",
        RunE:  func(cmd *cobra.Command, _ []string) error { return serve(cmd.Context()) },
    }
}

func serve(parent context.Context) error {
    if parent == nil { parent = context.Background() }
    ctx, cancel := context.WithCancel(parent)
    defer cancel()

    a, err := newApp(ctx)
    if err != nil { return err }
    defer a.Close()

    // Check credentials on startup; only auth failures are fatal
    ctx2, cancel2 := context.WithTimeout(ctx, 20*time.Second); defer cancel2()
    if login, err := a.rm.CurrentLogin(ctx2); err != nil {
        if errors.Is(err, domain.ErrUpstreamAuth) { return err }
        a.log.Warn().Err(err).Msg("redmine check failed; continuing")
    } else {
        a.log.Info().Str("login", login).Msg("redmine credentials ok")
    }

    // HTTP server (Gin)
    router := httpapi.NewRouter(a.cfg, a.log, a.report)

    // Cron
    cron, err := jobs.NewCron(a.cfg, a.log, a.report)
    if err != nil { return err }
    cron.Start()
    defer cron.Stop()
    a.log.Info().Str("spec", a.cfg.CronSpec).Str("tz", a.cfg.TZ).Time("next", cron.Next()).Msg("daily report scheduled")

    // graceful shutdown
    errCh := make(chan error, 1)
    go func() { errCh <- router.Run(a.cfg.HTTPAddr) }()

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

    select {
    case <-sigCh:
        a.log.Info().Msg("shutting down...")
    case err := <-errCh:
        if err != nil {
            a.log.Error().Err(err).Msg("http server error")
            return err
        }
    }

    time.Sleep(500 * time.Millisecond)
    return nil
}

func newRunCmd() *cobra.Command {
    var timeout time.Duration
    cmd := &cobra.Command{
        Use:   "run",
        Short: "Generate and mail the per-team reports once",
        RunE: func(cmd *cobra.Command, _ []string) error {
            ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
            defer cancel()
            a, err := newApp(ctx)
            if err != nil { return err }
            defer a.Close()
            cron, err := jobs.NewCron(a.cfg, a.log, a.report)
            if err != nil { return err }
            if err := cron.RunOnce(ctx); err != nil { return err }
            fmt.Fprintln(cmd.OutOrStdout(), a.report.LastRun().Message)
            return nil
        },
    }
    cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "abort the run after this long")
    return cmd
}

func newPreviewCmd() *cobra.Command {
    var out string
    cmd := &cobra.Command{
        Use:   "preview",
        Short: "Render the full report as HTML without sending mail",
        RunE: func(cmd *cobra.Command, _ []string) error {
            a, err := newApp(cmd.Context())
            if err != nil { return err }
            defer a.Close()
            page, err := a.report.Preview(cmd.Context())
            if err != nil { return err }
            if out == "" || out == "-" {
                _, err = fmt.Fprint(cmd.OutOrStdout(), page)
                return err
            }
            if err := os.WriteFile(out, []byte(page), 0644); err != nil { return fmt.Errorf("writing %s: %w", out, err) }
            a.log.Info().Str("path", out).Msg("preview written")
            return nil
        },
    }
    cmd.Flags().StringVarP(&out, "out", "o", "", "write the page to this file instead of stdout")
    return cmd
}

func newAliasesCmd() *cobra.Command {
    return &cobra.Command{
        Use:   "aliases [alias...]",
        Short: "Show the addresses each recipient alias expands to",
        RunE: func(cmd *cobra.Command, args []string) error {
            a, err := newApp(cmd.Context())
            if err != nil { return err }
            defer a.Close()
            w := cmd.OutOrStdout()
            if len(args) > 0 {
                for _, alias := range args {
                    addrs, err := a.recip.Resolve(cmd.Context(), alias)
                    if err != nil { return err }
                    fmt.Fprintf(w, "%s: %s\n", alias, strings.Join(addrs, ", "))
                }
                return nil
            }
            all, err := a.recip.Aliases(cmd.Context())
            if err != nil { return err }
            names := make([]string, 0, len(all))
            for k := range all { names = append(names, k) }
            sort.Strings(names)
            for _, k := range names { fmt.Fprintf(w, "%s: %s\n", k, strings.Join(all[k], ", ")) }
            total, err := a.recip.Total(cmd.Context())
            if err != nil { return err }
            fmt.Fprintf(w, "total: %s\n", strings.Join(total, ", "))
            return nil
        },
    }
}
