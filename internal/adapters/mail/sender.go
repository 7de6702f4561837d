/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package mail

import (
    "context"
    "crypto/tls"
    "fmt"
    "os"
    "strings"
    "time"

    gomail "github.com/wneessen/go-mail"

    "github.com/rhiwen/kzn-rmpy-operaciones/internal/config"
    "github.com/rhiwen/kzn-rmpy-operaciones/internal/domain"
    "github.com/rs/zerolog"
)

// PlainFallback is the text part shown by clients that cannot render HTML.
const PlainFallback = "Este correo contiene un reporte en formato HTML."

type Sender struct {
    host       string
    port       int
    user       string
    password   string
    startTLS   bool
    skipVerify bool
    timeout    time.Duration
    log        zerolog.Logger
}

func NewSender(cfg config.Config, log zerolog.Logger) *Sender {
    return &Sender{
        host: cfg.SMTPServer, port: cfg.SMTPPort, user: cfg.EmailSender, password: cfg.EmailPassword,
        startTLS: cfg.SMTPUseStartTLS, skipVerify: cfg.SMTPSkipVerify, timeout: cfg.SMTPTimeout, log: log,
    }
}

// Message builds the MIME message for e. Unreadable attachments are logged and skipped.
func (s *Sender) Message(e domain.Email) (*gomail.Msg, error) {
    m := gomail.NewMsg()
    if err := m.From(s.user); err != nil { return nil, fmt.Errorf("sender %q: %w", s.user, err) }
    if err := m.To(e.To...); err != nil { return nil, fmt.Errorf("recipients: %w", err) }
    m.Subject(e.Subject)
    m.SetBodyString(gomail.TypeTextPlain, PlainFallback)
    m.AddAlternativeString(gomail.TypeTextHTML, e.HTML)
    for _, path := range e.Attachments {
        if _, err := os.Stat(path); err != nil {
            s.log.Warn().Err(err).Str("path", path).Msg("attachment skipped")
            continue
        }
        m.AttachFile(path)
    }
    return m, nil
}

// Send delivers e over SMTP. An empty recipient list is a no-op.
func (s *Sender) Send(ctx context.Context, e domain.Email) error {
    if len(e.To) == 0 {
        s.log.Info().Str("subject", e.Subject).Msg("no recipients; mail not sent")
        return nil
    }
    m, err := s.Message(e)
    if err != nil { return fmt.Errorf("%w: %v", domain.ErrTransport, err) }

    opts := []gomail.Option{
        gomail.WithPort(s.port),
        gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
        gomail.WithUsername(s.user),
        gomail.WithPassword(s.password),
        gomail.WithTimeout(s.timeout),
        gomail.WithTLSConfig(&tls.Config{ServerName: s.host, InsecureSkipVerify: s.skipVerify}),
    }
    if s.startTLS {
        opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
    } else {
        opts = append(opts, gomail.WithSSL())
    }
    if s.skipVerify { s.log.Warn().Msg("SMTP certificate verification disabled") }

    c, err := gomail.NewClient(s.host, opts...)
    if err != nil { return fmt.Errorf("%w: smtp client: %v", domain.ErrTransport, err) }
    s.log.Info().Str("to", strings.Join(e.To, ", ")).Str("subject", e.Subject).Msg("sending mail")
    if err := c.DialAndSendWithContext(ctx, m); err != nil { return fmt.Errorf("%w: %v", domain.ErrTransport, err) }
    s.log.Info().Int("recipients", len(e.To)).Msg("mail sent")
    return nil
}
