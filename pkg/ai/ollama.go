package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OllamaConfig defines configuration options for the Ollama generator.
type OllamaConfig struct {
	BaseURL       string
	Model         string
	Timeout       time.Duration
	HealthTimeout time.Duration
	Logger        zerolog.Logger
}

// OllamaGenerator implements Generator against the Ollama HTTP API.
type OllamaGenerator struct {
	client *resty.Client
	cfg    OllamaConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOllamaGenerator builds a generator for the configured Ollama server.
func NewOllamaGenerator(cfg OllamaConfig) *OllamaGenerator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "mistral"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultGenerationTimeout
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = DefaultHealthTimeout
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json")

	return &OllamaGenerator{
		client: client,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-writing-api/pkg/ai/ollama"),
		logger: logger.With().Str("component", "ollama_generator").Logger(),
	}
}

// Provider implements Generator.
func (g *OllamaGenerator) Provider() string { return ProviderOllama }

// Model implements Generator.
func (g *OllamaGenerator) Model() string { return g.cfg.Model }

// CheckHealth lists the server's models and looks for the configured one.
// Tags such as "mistral:latest" match "mistral".
func (g *OllamaGenerator) CheckHealth(parent context.Context) bool {
	ctx, cancel := context.WithTimeout(parent, g.cfg.HealthTimeout)
	defer cancel()

	resp, err := g.client.R().SetContext(ctx).Get("/api/tags")
	if err != nil {
		g.logger.Debug().Err(err).Msg("ollama health probe failed")
		return false
	}
	if resp.StatusCode() != 200 {
		g.logger.Debug().Int("status", resp.StatusCode()).Msg("ollama health probe returned non-200")
		return false
	}

	body := resp.String()
	if !gjson.Valid(body) {
		return false
	}

	names := make([]string, 0)
	for _, name := range gjson.Get(body, "models.#.name").Array() {
		names = append(names, name.String())
	}
	return modelListed(names, g.cfg.Model)
}

// Generate posts a non-streaming generate request and returns the response text.
func (g *OllamaGenerator) Generate(parent context.Context, prompt, system string) (string, error) {
	ctx, span := g.tracer.Start(parent, "ollama.generate", trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
		attribute.Int("prompt_length", len(prompt)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	payload := map[string]interface{}{
		"model":  g.cfg.Model,
		"prompt": prompt,
		"stream": false,
	}
	if system != "" {
		payload["system"] = system
	}

	start := time.Now()
	resp, err := g.client.R().SetContext(ctx).SetBody(payload).Post("/api/generate")
	aiDuration.WithLabelValues(ProviderOllama, g.cfg.Model).Observe(time.Since(start).Seconds())

	text, err := g.readResponse(ctx, resp, err)
	if err != nil {
		aiFailures.WithLabelValues(ProviderOllama, g.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Warn().Err(err).Str("model", g.cfg.Model).Msg("ollama generation failed")
		return "", err
	}

	return text, nil
}

func (g *OllamaGenerator) readResponse(ctx context.Context, resp *resty.Response, err error) (string, error) {
	if err != nil {
		return "", &ServiceError{Provider: ProviderOllama, Op: "generate", Timeout: isTimeout(ctx, err), Err: err}
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		return "", &ServiceError{
			Provider:   ProviderOllama,
			Op:         "generate",
			StatusCode: status,
			Err:        fmt.Errorf("unexpected response: %s", snippet(resp.String())),
		}
	}

	body := resp.String()
	if !gjson.Valid(body) {
		return "", &ServiceError{Provider: ProviderOllama, Op: "generate", StatusCode: status, Err: errors.New("response body is not json")}
	}

	return gjson.Get(body, "response").String(), nil
}
