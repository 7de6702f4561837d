package jobs

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/rhiwen/kzn-rmpy-operaciones/internal/config"
    "github.com/rhiwen/kzn-rmpy-operaciones/internal/domain"
    "github.com/robfig/cron/v3"
    "github.com/rs/zerolog"
)

type service interface { RunDaily(ctx context.Context) error }

type Cron struct {
    cfg     config.Config
    log     zerolog.Logger
    svc     service
    c       *cron.Cron
    timeout time.Duration
}

func NewCron(cfg config.Config, log zerolog.Logger, svc service) (*Cron, error) {
    c := cron.New(cron.WithLocation(cfg.Location()), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
    cr := &Cron{cfg: cfg, log: log, svc: svc, c: c, timeout: 30 * time.Minute}
    if _, err := c.AddFunc(cfg.CronSpec, cr.daily); err != nil { return nil, fmt.Errorf("cron spec %q: %w", cfg.CronSpec, err) }
    return cr, nil
}

func (cr *Cron) Start(){ cr.c.Start() }
func (cr *Cron) Stop(){ <-cr.c.Stop().Done() }

// Next reports when the daily job fires next.
func (cr *Cron) Next() time.Time {
    es := cr.c.Entries()
    if len(es) == 0 { return time.Time{} }
    if !es[0].Next.IsZero() { return es[0].Next }
    return es[0].Schedule.Next(time.Now().In(cr.cfg.Location()))
}

func (cr *Cron) daily(){
    ctx, cancel := context.WithTimeout(context.Background(), cr.timeout); defer cancel()
    if err := cr.RunOnce(ctx); err != nil { cr.log.Error().Err(err).Msg("cron: daily report failed") }
}

// RunOnce runs the daily report. The report takes the store's run lock and
// returns domain.ErrRunInProgress when another run holds it.
func (cr *Cron) RunOnce(ctx context.Context) error {
    cr.log.Info().Msg("cron: daily report")
    err := cr.svc.RunDaily(ctx)
    if errors.Is(err, domain.ErrRunInProgress) { cr.log.Info().Msg("cron: already running elsewhere") }
    return err
}
