/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "context"
    "errors"
    "io"
    "net/http"

    "github.com/gin-gonic/gin"
    "github.com/rhiwen/kzn-rmpy-operaciones/internal/config"
    "github.com/rhiwen/kzn-rmpy-operaciones/internal/domain"
    "github.com/rhiwen/kzn-rmpy-operaciones/internal/services"
    "github.com/rs/zerolog"
)

type service interface {
    Preview(ctx context.Context) (string, error)
    Generate(ctx context.Context, req services.GenerateRequest) (services.GenerateResult, error)
    LastRun() services.RunStatus
}

type Handlers struct {
    cfg config.Config
    log zerolog.Logger
    svc service
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc service) *Handlers {
    return &Handlers{cfg: cfg, log: log, svc: svc}
}

// reportRequest is the body of POST /report. Recipients may be null.
type reportRequest struct {
    SendEmail  bool    `json:"send_email"`
    Recipients *string `json:"recipients"`
}

func (h *Handlers) Healthz(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) LastRun(c *gin.Context) {
    c.JSON(http.StatusOK, h.svc.LastRun())
}

func (h *Handlers) Preview(c *gin.Context) {
    page, err := h.svc.Preview(c.Request.Context())
    if err != nil {
        h.log.Error().Err(err).Msg("preview failed")
        c.Data(statusFor(err), "text/html; charset=utf-8", []byte("<p>Error al generar reporte.</p>"))
        return
    }
    c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}

// Report renders the report and hands mail delivery to the background.
func (h *Handlers) Report(c *gin.Context) {
    req := reportRequest{SendEmail: true}
    if c.Request.ContentLength != 0 {
        // chunked requests with an empty body keep the defaults
        if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
            c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
            return
        }
    }
    greq := services.GenerateRequest{SendEmail: req.SendEmail, Background: true, Trigger: "http"}
    if req.Recipients != nil { greq.Recipients = *req.Recipients }

    res, err := h.svc.Generate(c.Request.Context(), greq)
    if err != nil && res.HTML == "" {
        c.JSON(statusFor(err), gin.H{"error": err.Error(), "run_id": res.RunID})
        return
    }
    if err != nil { h.log.Warn().Err(err).Str("run_id", res.RunID).Msg("report sent with errors") }
    c.Header("X-Run-ID", res.RunID)
    c.Header("X-Report-Message", res.Message)
    c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(res.HTML))
}

func statusFor(err error) int {
    switch {
    case errors.Is(err, domain.ErrUpstreamAuth):
        return http.StatusBadGateway
    case errors.Is(err, context.DeadlineExceeded):
        return http.StatusGatewayTimeout
    case errors.Is(err, domain.ErrRunInProgress):
        return http.StatusConflict
    }
    return http.StatusInternalServerError
}
