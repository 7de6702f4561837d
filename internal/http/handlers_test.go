package http

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/rhiwen/kzn-rmpy-operaciones/internal/config"
    "github.com/rhiwen/kzn-rmpy-operaciones/internal/domain"
    "github.com/rhiwen/kzn-rmpy-operaciones/internal/services"
    "github.com/rs/zerolog"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

type fakeService struct {
    page    string
    err     error
    res     services.GenerateResult
    reqs    []services.GenerateRequest
    lastRun services.RunStatus
}

func (f *fakeService) Preview(context.Context) (string, error) { return f.page, f.err }

func (f *fakeService) Generate(_ context.Context, req services.GenerateRequest) (services.GenerateResult, error) {
    f.reqs = append(f.reqs, req)
    return f.res, f.err
}

func (f *fakeService) LastRun() services.RunStatus { return f.lastRun }

func serve(t *testing.T, svc *fakeService, method, path, body string) *httptest.ResponseRecorder {
    t.Helper()
    gin.SetMode(gin.TestMode)
    r := NewRouter(config.Config{AppEnv: "dev"}, zerolog.Nop(), svc)
    var req *http.Request
    if body == "" {
        req = httptest.NewRequest(method, path, nil)
    } else {
        req = httptest.NewRequest(method, path, strings.NewReader(body))
        req.Header.Set("Content-Type", "application/json")
    }
    w := httptest.NewRecorder()
    r.ServeHTTP(w, req)
    return w
}

func TestHealthz(t *testing.T) {
    w := serve(t, &fakeService{}, http.MethodGet, "/healthz", "")
    assert.Equal(t, http.StatusOK, w.Code)
    assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}

func TestPreview(t *testing.T) {
    w := serve(t, &fakeService{page: "<html>ok</html>"}, http.MethodGet, "/", "")
    assert.Equal(t, http.StatusOK, w.Code)
    assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
    assert.Equal(t, "<html>ok</html>", w.Body.String())
}

func TestPreview_ErrorStatus(t *testing.T) {
    cases := []struct {
        err  error
        want int
    }{
        {&domain.UpstreamError{Kind: domain.ErrUpstreamAuth, Status: 401}, http.StatusBadGateway},
        {fmt.Errorf("walk: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
        {domain.ErrRunInProgress, http.StatusConflict},
        {fmt.Errorf("boom"), http.StatusInternalServerError},
    }
    for _, tc := range cases {
        w := serve(t, &fakeService{err: tc.err}, http.MethodGet, "/", "")
        assert.Equal(t, tc.want, w.Code, tc.err.Error())
        assert.Equal(t, "<p>Error al generar reporte.</p>", w.Body.String())
    }
}

func TestReport_DefaultsAndNullRecipients(t *testing.T) {
    svc := &fakeService{res: services.GenerateResult{RunID: "r1", Message: "Reportes generados para 2 equipos", HTML: "<table></table>"}}

    w := serve(t, svc, http.MethodPost, "/report", "")
    assert.Equal(t, http.StatusOK, w.Code)
    assert.Equal(t, "r1", w.Header().Get("X-Run-ID"))
    assert.Equal(t, "Reportes generados para 2 equipos", w.Header().Get("X-Report-Message"))
    assert.Equal(t, "<table></table>", w.Body.String())

    w = serve(t, svc, http.MethodPost, "/report", `{"send_email": false, "recipients": null}`)
    assert.Equal(t, http.StatusOK, w.Code)

    w = serve(t, svc, http.MethodPost, "/report", `{"send_email": true, "recipients": "data, a@x.com"}`)
    assert.Equal(t, http.StatusOK, w.Code)

    require.Len(t, svc.reqs, 3)
    assert.Equal(t, services.GenerateRequest{SendEmail: true, Background: true, Trigger: "http"}, svc.reqs[0])
    assert.Equal(t, services.GenerateRequest{SendEmail: false, Background: true, Trigger: "http"}, svc.reqs[1])
    assert.Equal(t, "data, a@x.com", svc.reqs[2].Recipients)
}

func TestReport_EmptyBodyWithoutLength(t *testing.T) {
    gin.SetMode(gin.TestMode)
    svc := &fakeService{res: services.GenerateResult{RunID: "r5", HTML: "<p>ok</p>"}}
    r := NewRouter(config.Config{AppEnv: "dev"}, zerolog.Nop(), svc)
    req := httptest.NewRequest(http.MethodPost, "/report", http.NoBody)
    req.ContentLength = -1
    req.Header.Set("Content-Type", "application/json")
    w := httptest.NewRecorder()
    r.ServeHTTP(w, req)

    assert.Equal(t, http.StatusOK, w.Code)
    require.Len(t, svc.reqs, 1)
    assert.True(t, svc.reqs[0].SendEmail)
}

func TestReport_BadBody(t *testing.T) {
    svc := &fakeService{}
    w := serve(t, svc, http.MethodPost, "/report", `{"send_email": "yes"`)
    assert.Equal(t, http.StatusBadRequest, w.Code)
    assert.Empty(t, svc.reqs)
}

func TestReport_FailureWithoutHTML(t *testing.T) {
    svc := &fakeService{res: services.GenerateResult{RunID: "r2"}, err: &domain.UpstreamError{Kind: domain.ErrUpstreamAuth, Status: 401}}
    w := serve(t, svc, http.MethodPost, "/report", "")
    assert.Equal(t, http.StatusBadGateway, w.Code)
    var body map[string]string
    require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
    assert.Equal(t, "r2", body["run_id"])
    assert.Contains(t, body["error"], "authentication failed")
}

func TestReport_PartialFailureStillReturnsHTML(t *testing.T) {
    svc := &fakeService{res: services.GenerateResult{RunID: "r3", HTML: "<p>x</p>"}, err: domain.ErrTransport}
    w := serve(t, svc, http.MethodPost, "/report", "")
    assert.Equal(t, http.StatusOK, w.Code)
    assert.Equal(t, "<p>x</p>", w.Body.String())
}

func TestLastRun(t *testing.T) {
    started := time.Date(2025, 6, 11, 10, 0, 0, 0, time.UTC)
    svc := &fakeService{lastRun: services.RunStatus{RunID: "r4", Trigger: "cron", StartedAt: started, Outcome: "ok", Rows: 7}}
    w := serve(t, svc, http.MethodGet, "/admin/last-run", "")
    assert.Equal(t, http.StatusOK, w.Code)
    var got services.RunStatus
    require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
    assert.Equal(t, "r4", got.RunID)
    assert.Equal(t, 7, got.Rows)
    assert.True(t, started.Equal(got.StartedAt))
}
