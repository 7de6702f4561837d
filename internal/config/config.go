/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package config

import (
    "errors"
    "fmt"
    "log"
    "os"
    "strconv"
    "strings"
    "time"
)

const (
    CacheDriverSQLite   = "sqlite"
    CacheDriverPostgres = "postgres"

    ParentIssuesSeparate = "separate"
    ParentIssuesMerged   = "merged"
)

type Config struct {
    AppEnv   string
    TZ       string
    HTTPAddr string

    RedmineURL    string
    RedmineAPIKey string
    HTTPTimeout   time.Duration

    ReportTime       string
    CronSpec         string
    TeamKeywords     []string
    ClosedStatusIDs  []int64
    ParentIssuesMode string
    GroupBy          string
    SubjectPrefix    string

    CacheDriver       string
    CachePath         string
    DBDSN             string
    CacheWindowMonths int

    SMTPServer      string
    SMTPPort        int
    SMTPUseStartTLS bool
    SMTPSkipVerify  bool
    SMTPTimeout     time.Duration
    EmailSender     string
    EmailPassword   string

    RecipientsFile string
    Recipients     Recipients

    OpenAIKey     string
    OpenAIModel   string
    OpenAITimeout time.Duration

    TelegramToken   string
    TelegramChatIDs []int64
}

func getenv(key, def string) string {
    v := os.Getenv(key)
    if v == "" { return def }
    return v
}

func atoi(key string, def int) int {
    v := os.Getenv(key)
    if v == "" { return def }
    i, err := strconv.Atoi(v)
    if err != nil { return def }
    return i
}

func dur(key string, def time.Duration) time.Duration {
    v := os.Getenv(key)
    if v == "" { return def }
    d, err := time.ParseDuration(v)
    if err != nil { return def }
    return d
}

func boolean(key string, def bool) bool {
    v := strings.TrimSpace(os.Getenv(key))
    if v == "" { return def }
    b, err := strconv.ParseBool(strings.ToLower(v))
    if err != nil { return def }
    return b
}

func parseInt64s(csv string) []int64 {
    if csv == "" { return nil }
    parts := strings.Split(csv, ",")
    out := make([]int64, 0, len(parts))
    for _, p := range parts {
        p = strings.TrimSpace(p)
        if p == "" { continue }
        n, err := strconv.ParseInt(p, 10, 64)
        if err == nil { out = append(out, n) }
    }
    return out
}

func parseStrings(csv string) []string {
    if csv == "" { return nil }
    parts := strings.Split(csv, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        p = strings.TrimSpace(p)
        if p == "" { continue }
        out = append(out, p)
    }
    return out
}

func Load() Config {
    cfg := Config{
        AppEnv:   getenv("APP_ENV", "dev"),
        TZ:       getenv("APP_TZ", "America/Argentina/Buenos_Aires"),
        HTTPAddr: getenv("HTTP_ADDR", ":8080"),

        RedmineURL:    strings.TrimRight(getenv("REDMINE_URL", ""), "/"),
        RedmineAPIKey: getenv("REDMINE_API_KEY", ""),
        HTTPTimeout:   dur("HTTP_TIMEOUT", 20*time.Second),

        ReportTime:       getenv("REPORT_TIME", "07:00"),
        CronSpec:         getenv("CRON_SPEC", ""),
        TeamKeywords:     parseStrings(getenv("TEAM_KEYWORDS", "DATA,CONSULTORIA,DESARROLLO,TECNOLOGIA")),
        ClosedStatusIDs:  parseInt64s(getenv("CLOSED_STATUS_IDS", "5,6,9,21")),
        ParentIssuesMode: strings.ToLower(getenv("PARENT_ISSUES_MODE", ParentIssuesSeparate)),
        GroupBy:          strings.ToLower(getenv("REPORT_GROUP_BY", "version")),
        SubjectPrefix:    getenv("SUBJECT_PREFIX", "KZN-REDMINE"),

        CacheDriver:       strings.ToLower(getenv("CACHE_DRIVER", CacheDriverSQLite)),
        CachePath:         getenv("CACHE_PATH", "cache/time_entries.db"),
        DBDSN:             getenv("DB_DSN", ""),
        CacheWindowMonths: atoi("CACHE_WINDOW_MONTHS", 12),

        SMTPServer:      getenv("SMTP_SERVER", "smtp.gmail.com"),
        SMTPPort:        atoi("SMTP_PORT", 465),
        SMTPUseStartTLS: boolean("SMTP_USE_STARTTLS", false),
        SMTPSkipVerify:  boolean("SMTP_SKIP_VERIFY", false),
        SMTPTimeout:     dur("SMTP_TIMEOUT", 60*time.Second),
        EmailSender:     getenv("EMAIL_SENDER", ""),
        EmailPassword:   getenv("EMAIL_PASSWORD", ""),

        RecipientsFile: getenv("RECIPIENTS_FILE", "config/recipients.yaml"),

        OpenAIKey:     getenv("OPENAI_API_KEY", ""),
        OpenAIModel:   getenv("OPENAI_MODEL", "gpt-4.1-mini"),
        OpenAITimeout: dur("OPENAI_TIMEOUT", 30*time.Second),

        TelegramToken:   getenv("TELEGRAM_BOT_TOKEN", ""),
        TelegramChatIDs: parseInt64s(getenv("TELEGRAM_CHAT_IDS", "")),
    }

    if cfg.CronSpec == "" {
        spec, err := DailySpec(cfg.ReportTime)
        if err != nil {
            log.Printf("warning: invalid REPORT_TIME %q: %v; using 07:00", cfg.ReportTime, err)
            spec = "0 7 * * *"
        }
        cfg.CronSpec = spec
    }

    // set global timezone if available
    if loc, err := time.LoadLocation(cfg.TZ); err == nil {
        time.Local = loc
    } else {
        log.Printf("warning: cannot load TZ %s: %v", cfg.TZ, err)
    }

    rc, err := LoadRecipients(cfg.RecipientsFile)
    switch {
    case err == nil:
        cfg.Recipients = rc
    case errors.Is(err, os.ErrNotExist):
        // try relative path fallback
        if rc2, err2 := LoadRecipients("config/recipients.yaml"); err2 == nil { cfg.Recipients = rc2 }
    default:
        log.Printf("warning: cannot load recipients file %s: %v", cfg.RecipientsFile, err)
    }
    return cfg
}

// DailySpec turns "HH:MM" into a 5-field cron expression.
func DailySpec(hhmm string) (string, error) {
    parts := strings.Split(strings.TrimSpace(hhmm), ":")
    if len(parts) != 2 { return "", fmt.Errorf("expected HH:MM, got %q", hhmm) }
    h, err := strconv.Atoi(parts[0])
    if err != nil || h < 0 || h > 23 { return "", fmt.Errorf("invalid hour in %q", hhmm) }
    m, err := strconv.Atoi(parts[1])
    if err != nil || m < 0 || m > 59 { return "", fmt.Errorf("invalid minute in %q", hhmm) }
    return fmt.Sprintf("%d %d * * *", m, h), nil
}

// Validate checks the settings a report run cannot do without.
func (c Config) Validate() error {
    var errs []error
    if c.RedmineURL == "" { errs = append(errs, errors.New("REDMINE_URL is not set")) }
    if c.RedmineAPIKey == "" { errs = append(errs, errors.New("REDMINE_API_KEY is not set")) }
    switch c.CacheDriver {
    case CacheDriverSQLite:
    case CacheDriverPostgres:
        if c.DBDSN == "" { errs = append(errs, errors.New("DB_DSN is required for CACHE_DRIVER=postgres")) }
    default:
        errs = append(errs, fmt.Errorf("unknown CACHE_DRIVER %q", c.CacheDriver))
    }
    if c.ParentIssuesMode != ParentIssuesSeparate && c.ParentIssuesMode != ParentIssuesMerged {
        errs = append(errs, fmt.Errorf("unknown PARENT_ISSUES_MODE %q", c.ParentIssuesMode))
    }
    return errors.Join(errs...)
}

// Location returns the configured report time zone, falling back to time.Local.
func (c Config) Location() *time.Location {
    if loc, err := time.LoadLocation(c.TZ); err == nil { return loc }
    return time.Local
}
