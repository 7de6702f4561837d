package openai

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "strings"

    openai "github.com/openai/openai-go/v2"
    "github.com/openai/openai-go/v2/option"
    "github.com/openai/openai-go/v2/shared"

    "github.com/rhiwen/kzn-rmpy-operaciones/internal/config"
    "github.com/rhiwen/kzn-rmpy-operaciones/internal/domain"
    "github.com/rs/zerolog"
)

const systemPrompt = "Sos un analista de proyectos. A partir de las filas del reporte semanal de un equipo, " +
    "escribí en español un resumen breve (máximo 5 oraciones) con el avance general, los proyectos con más " +
    "tareas abiertas y los que superaron las horas estimadas. No inventes datos."

type Client struct {
    key   string
    model string
    cli   openai.Client
    log   zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger, extra ...option.RequestOption) *Client {
    model := cfg.OpenAIModel
    if strings.TrimSpace(model) == "" { model = "gpt-4.1-mini" }
    opts := append([]option.RequestOption{option.WithAPIKey(cfg.OpenAIKey), option.WithRequestTimeout(cfg.OpenAITimeout)}, extra...)
    return &Client{key: cfg.OpenAIKey, model: model, cli: openai.NewClient(opts...), log: log}
}

func (c *Client) Enabled() bool { return strings.TrimSpace(c.key) != "" }

type row struct {
    Parent        string  `json:"proyecto_padre,omitempty"`
    Project       string  `json:"proyecto,omitempty"`
    Version       string  `json:"version"`
    Total         int     `json:"tareas_totales"`
    Open          int     `json:"tareas_abiertas"`
    ClosedWeek    int     `json:"cerradas_ultima_semana"`
    Closed30      int     `json:"cerradas_30_dias"`
    Estimated     float64 `json:"horas_estimadas"`
    Consumed      float64 `json:"horas_insumidas"`
    Progress      string  `json:"progreso"`
    HoursConsumed string  `json:"horas_consumidas"`
}

// Payload is the JSON handed to the model: aggregated numbers only.
func Payload(team string, records []domain.AggregateRecord) (string, error) {
    rows := make([]row, 0, len(records))
    for _, r := range records {
        rows = append(rows, row{
            Parent: r.ParentProject, Project: r.Project, Version: r.Version,
            Total: r.Total, Open: r.Open, ClosedWeek: r.ClosedLastWeek, Closed30: r.Closed30Days,
            Estimated: r.EstimatedHours, Consumed: r.ConsumedHours,
            Progress: r.ProgressLabel(), HoursConsumed: r.HoursConsumedLabel(),
        })
    }
    b, err := json.Marshal(map[string]any{"equipo": team, "filas": rows})
    if err != nil { return "", err }
    return string(b), nil
}

// Summarize asks the model for a short narrative of one team's rows.
func (c *Client) Summarize(ctx context.Context, team string, records []domain.AggregateRecord) (string, error) {
    if !c.Enabled() { return "", errors.New("openai: missing key") }
    payload, err := Payload(team, records)
    if err != nil { return "", fmt.Errorf("openai payload: %w", err) }
    c.log.Info().Str("model", c.model).Str("team", team).Int("rows", len(records)).Msg("openai summarize call")
    params := openai.ChatCompletionNewParams{
        Model: shared.ChatModel(c.model),
        Messages: []openai.ChatCompletionMessageParamUnion{
            openai.SystemMessage(systemPrompt),
            openai.UserMessage(payload),
        },
    }
    resp, err := c.cli.Chat.Completions.New(ctx, params)
    if err != nil { return "", err }
    if len(resp.Choices) == 0 { return "", errors.New("openai: no choices") }
    return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
