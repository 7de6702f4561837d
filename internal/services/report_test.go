package services

import (
    "context"
    "errors"
    "path/filepath"
    "testing"
    "time"

    "github.com/rhiwen/kzn-rmpy-operaciones/internal/config"
    "github.com/rhiwen/kzn-rmpy-operaciones/internal/domain"
    "github.com/rhiwen/kzn-rmpy-operaciones/internal/repo"
    "github.com/rs/zerolog"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

type reportFixture struct {
    up    *fakeUpstream
    mail  *fakeMailer
    notif *fakeNotifier
    r     *Report
}

func newReportFixture(t *testing.T) reportFixture {
    t.Helper()
    data := project(1, "DATA", nil)
    p := project(2, "Plataforma - Backend", &data)
    cons := project(3, "CONSULTORIA", nil)
    q := project(4, "Cliente X", &cons)
    up := newFakeUpstream(data, p, cons, q)
    up.issues[2] = []domain.Issue{{ID: 21, ProjectID: 2, StatusID: 1, UpdatedOn: at("2025-06-10"), EstimatedHours: hours(4)}}
    up.issues[4] = []domain.Issue{{ID: 41, ProjectID: 4, StatusID: 5, ClosedOn: at("2025-06-03"), UpdatedOn: at("2025-06-03")}}

    agg, hier := newTestAggregator(up, nil)
    dir := &fakeDirectory{groups: map[int64][]int64{100: {1}}, logins: map[int64]string{1: "ana"}}
    recip := NewRecipients(dir, config.Recipients{
        MailDomain: "@example.com",
        Aliases:    map[string][]int64{"data": {100}},
    }, zerolog.Nop())
    mail := &fakeMailer{}
    notif := &fakeNotifier{}
    r := NewReport(ReportOptions{SubjectPrefix: "KZN", Location: time.UTC}, agg.fetch, hier, agg, recip, mail, zerolog.Nop()).
        WithNotifier(notif)
    r.now = func() time.Time { return testNow }
    r.dispatch = func(f func()) { f() }
    return reportFixture{up: up, mail: mail, notif: notif, r: r}
}

func TestSubject(t *testing.T) {
    f := newReportFixture(t)
    assert.Equal(t, "KZN - Reporte de avance de proyectos y tareas al 2025/06/11 10:00:05 - DATA", f.r.Subject("DATA", testNow))
}

func TestGenerate_PerTeam(t *testing.T) {
    f := newReportFixture(t)
    res, err := f.r.Generate(context.Background(), GenerateRequest{SendEmail: true, Trigger: "test"})
    require.NoError(t, err)

    assert.NotEmpty(t, res.RunID)
    assert.Equal(t, []string{"DATA"}, res.Teams)
    assert.Equal(t, []string{"CONSULTORIA"}, res.Skipped)
    assert.Equal(t, "Reportes generados para 1 equipos", res.Message)
    assert.Contains(t, res.HTML, "Cliente X", "the returned HTML covers every team")

    require.Len(t, f.mail.sent, 1)
    m := f.mail.sent[0]
    assert.Equal(t, []string{"ana@example.com"}, m.To)
    assert.Equal(t, "KZN - Reporte de avance de proyectos y tareas al 2025/06/11 10:00:05 - DATA", m.Subject)
    assert.Contains(t, m.HTML, "Plataforma")
    assert.NotContains(t, m.HTML, "Cliente X")
}

func TestGenerate_ExplicitRecipients(t *testing.T) {
    f := newReportFixture(t)
    res, err := f.r.Generate(context.Background(), GenerateRequest{SendEmail: true, Recipients: "a@x.com, data", Background: true})
    require.NoError(t, err)

    assert.Equal(t, []string{AllTeams}, res.Teams)
    assert.Equal(t, "Reporte manual enviado", res.Message)
    require.Len(t, f.mail.sent, 1)
    m := f.mail.sent[0]
    assert.Equal(t, []string{"a@x.com", "ana@example.com"}, m.To)
    assert.Contains(t, m.Subject, " - "+AllTeams)
    assert.Contains(t, m.HTML, "Plataforma")
    assert.Contains(t, m.HTML, "Cliente X")
}

func TestGenerate_ExplicitRecipientsResolveToNobody(t *testing.T) {
    f := newReportFixture(t)
    res, err := f.r.Generate(context.Background(), GenerateRequest{SendEmail: true, Recipients: "nobody"})
    require.NoError(t, err)
    assert.Equal(t, "Sin destinatarios; no se envió el reporte", res.Message)
    assert.Empty(t, f.mail.sent)
    assert.NotEmpty(t, res.HTML)
}

func TestGenerate_WithoutSending(t *testing.T) {
    f := newReportFixture(t)
    res, err := f.r.Generate(context.Background(), GenerateRequest{SendEmail: false})
    require.NoError(t, err)
    assert.Empty(t, f.mail.sent)
    assert.Equal(t, []string{"DATA"}, res.Teams)
    assert.Contains(t, res.HTML, "<table")
}

func TestGenerate_SummaryPrependedToTeamMail(t *testing.T) {
    f := newReportFixture(t)
    f.r.WithSummarizer(fakeSummarizer{text: "Semana tranquila."})
    _, err := f.r.Generate(context.Background(), GenerateRequest{SendEmail: true})
    require.NoError(t, err)
    require.Len(t, f.mail.sent, 1)
    assert.Contains(t, f.mail.sent[0].HTML, "Semana tranquila.")
}

func TestGenerate_SendFailureIsReported(t *testing.T) {
    f := newReportFixture(t)
    f.mail.err = domain.ErrTransport
    _, err := f.r.Generate(context.Background(), GenerateRequest{SendEmail: true})
    assert.ErrorIs(t, err, domain.ErrTransport)
    assert.Equal(t, "failed", f.r.LastRun().Outcome)
}

func TestGenerate_AuthFailureAborts(t *testing.T) {
    f := newReportFixture(t)
    f.up.memberErr = &domain.UpstreamError{Kind: domain.ErrUpstreamAuth, Status: 401}
    _, err := f.r.Generate(context.Background(), GenerateRequest{SendEmail: true})
    assert.ErrorIs(t, err, domain.ErrUpstreamAuth)
    assert.Empty(t, f.mail.sent)
}

func TestRunDaily_NotifiesOutcome(t *testing.T) {
    f := newReportFixture(t)
    require.NoError(t, f.r.RunDaily(context.Background()))
    require.Len(t, f.notif.texts, 1)
    assert.Equal(t, "Reporte diario: Reportes generados para 1 equipos", f.notif.texts[0])

    last := f.r.LastRun()
    assert.Equal(t, "cron", last.Trigger)
    assert.Equal(t, "ok", last.Outcome)
    assert.Equal(t, 2, last.Rows)
    assert.Equal(t, testNow, last.FinishedAt)

    f.mail.err = errors.New("boom")
    require.Error(t, f.r.RunDaily(context.Background()))
    require.Len(t, f.notif.texts, 2)
    assert.Contains(t, f.notif.texts[1], "Reporte diario falló: ")
}

func TestPreview(t *testing.T) {
    f := newReportFixture(t)
    html, err := f.r.Preview(context.Background())
    require.NoError(t, err)
    assert.Contains(t, html, "<title>Reporte de Proyectos (completo)</title>")
    assert.Contains(t, html, ">DATA</h3>")
    assert.Contains(t, html, ">CONSULTORIA</h3>")
    assert.Empty(t, f.mail.sent)
}

func TestGenerate_TakesRunLock(t *testing.T) {
    f := newReportFixture(t)
    lock := &fakeLocker{}
    f.r.WithLocker(lock)

    _, err := f.r.Generate(context.Background(), GenerateRequest{SendEmail: true, Trigger: "http"})
    require.NoError(t, err)
    _, err = f.r.Preview(context.Background())
    require.NoError(t, err)
    assert.Equal(t, 2, lock.acquired)
    assert.Equal(t, 2, lock.released)
    assert.False(t, lock.held)
}

func TestGenerate_LockHeldElsewhere(t *testing.T) {
    f := newReportFixture(t)
    f.r.WithLocker(&fakeLocker{held: true})

    _, err := f.r.Generate(context.Background(), GenerateRequest{SendEmail: true, Trigger: "http"})
    assert.ErrorIs(t, err, domain.ErrRunInProgress)
    assert.Empty(t, f.mail.sent)
    assert.Zero(t, f.up.issueCalls[2], "no upstream reads without the lock")
    assert.Equal(t, "failed", f.r.LastRun().Outcome)

    _, err = f.r.Preview(context.Background())
    assert.ErrorIs(t, err, domain.ErrRunInProgress)

    require.ErrorIs(t, f.r.RunDaily(context.Background()), domain.ErrRunInProgress)
    assert.Empty(t, f.notif.texts, "a skipped daily run is not reported as a failure")
}

func TestGenerate_LockError(t *testing.T) {
    f := newReportFixture(t)
    f.r.WithLocker(&fakeLocker{err: errors.New("database is locked")})
    _, err := f.r.Generate(context.Background(), GenerateRequest{})
    assert.ErrorContains(t, err, "run lock: database is locked")
}

func TestGenerate_SQLiteLockSharedWithOtherProcess(t *testing.T) {
    path := filepath.Join(t.TempDir(), "cache.db")
    mine, err := repo.OpenSQLite(path, zerolog.Nop())
    require.NoError(t, err)
    defer mine.Close()
    other, err := repo.OpenSQLite(path, zerolog.Nop())
    require.NoError(t, err)
    defer other.Close()

    f := newReportFixture(t)
    f.r.WithLocker(mine)

    release, ok, err := other.TryLock(context.Background())
    require.NoError(t, err)
    require.True(t, ok)
    _, err = f.r.Generate(context.Background(), GenerateRequest{SendEmail: true, Trigger: "http"})
    assert.ErrorIs(t, err, domain.ErrRunInProgress)

    release()
    _, err = f.r.Generate(context.Background(), GenerateRequest{SendEmail: true, Trigger: "http"})
    require.NoError(t, err)
    assert.Len(t, f.mail.sent, 1)
}
