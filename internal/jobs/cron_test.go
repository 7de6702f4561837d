package jobs

import (
    "context"
    "errors"
    "sync"
    "testing"
    "time"

    "github.com/rhiwen/kzn-rmpy-operaciones/internal/config"
    "github.com/rhiwen/kzn-rmpy-operaciones/internal/domain"
    "github.com/rs/zerolog"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

type fakeService struct {
    mu   sync.Mutex
    runs int
    err  error
}

func (f *fakeService) RunDaily(context.Context) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.runs++
    return f.err
}

func testConfig() config.Config {
    return config.Config{TZ: "UTC", CronSpec: "0 9 * * 1-5"}
}

func TestRunOnce_RunsService(t *testing.T) {
    svc := &fakeService{}
    cr, err := NewCron(testConfig(), zerolog.Nop(), svc)
    require.NoError(t, err)

    require.NoError(t, cr.RunOnce(context.Background()))
    assert.Equal(t, 1, svc.runs)
}

func TestRunOnce_PassesErrorsThrough(t *testing.T) {
    for _, want := range []error{domain.ErrRunInProgress, domain.ErrTransport, errors.New("boom")} {
        svc := &fakeService{err: want}
        cr, err := NewCron(testConfig(), zerolog.Nop(), svc)
        require.NoError(t, err)
        assert.ErrorIs(t, cr.RunOnce(context.Background()), want)
    }
}

func TestNewCron_InvalidSchedule(t *testing.T) {
    cfg := testConfig()
    cfg.CronSpec = "0 9 * *"
    _, err := NewCron(cfg, zerolog.Nop(), &fakeService{})
    assert.Error(t, err)
}

func TestNext(t *testing.T) {
    cr, err := NewCron(testConfig(), zerolog.Nop(), &fakeService{})
    require.NoError(t, err)
    next := cr.Next()
    require.False(t, next.IsZero())
    assert.Equal(t, 9, next.Hour())
    assert.Zero(t, next.Minute())
    assert.NotEqual(t, time.Saturday, next.Weekday())
    assert.NotEqual(t, time.Sunday, next.Weekday())
    assert.True(t, next.After(time.Now()))
}
