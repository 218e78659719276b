package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OpenAIConfig defines configuration options for the OpenAI generator.
type OpenAIConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	MaxTokens     int
	Temperature   float32
	Timeout       time.Duration
	HealthTimeout time.Duration
	Logger        zerolog.Logger
}

// OpenAIGenerator implements Generator against an OpenAI compatible chat completion API.
type OpenAIGenerator struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIGenerator builds a new generator using the provided configuration.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
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

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-writing-api/pkg/ai/openai"),
		logger: logger.With().Str("component", "openai_generator").Logger(),
	}, nil
}

// Provider implements Generator.
func (g *OpenAIGenerator) Provider() string { return ProviderOpenAI }

// Model implements Generator.
func (g *OpenAIGenerator) Model() string { return g.cfg.Model }

// CheckHealth lists the available models and looks for the configured one.
func (g *OpenAIGenerator) CheckHealth(parent context.Context) bool {
	ctx, cancel := context.WithTimeout(parent, g.cfg.HealthTimeout)
	defer cancel()

	list, err := g.client.ListModels(ctx)
	if err != nil {
		g.logger.Debug().Err(err).Msg("openai health probe failed")
		return false
	}

	names := make([]string, 0, len(list.Models))
	for _, model := range list.Models {
		names = append(names, model.ID)
	}
	return modelListed(names, g.cfg.Model)
}

// Generate sends a chat completion request and returns the first choice's content.
func (g *OpenAIGenerator) Generate(parent context.Context, prompt, system string) (string, error) {
	ctx, span := g.tracer.Start(parent, "openai.generate", trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
		attribute.Int("prompt_length", len(prompt)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	request := openai.ChatCompletionRequest{
		Model:          g.cfg.Model,
		MaxTokens:      g.cfg.MaxTokens,
		Temperature:    g.cfg.Temperature,
		Messages:       messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, request)
	aiDuration.WithLabelValues(ProviderOpenAI, g.cfg.Model).Observe(time.Since(start).Seconds())

	if err == nil && len(resp.Choices) == 0 {
		err = &ServiceError{Provider: ProviderOpenAI, Op: "generate", Err: errors.New("no choices returned")}
	} else if err != nil {
		err = g.classify(ctx, err)
	}
	if err != nil {
		aiFailures.WithLabelValues(ProviderOpenAI, g.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Warn().Err(err).Str("model", g.cfg.Model).Msg("openai generation failed")
		return "", err
	}

	return resp.Choices[0].Message.Content, nil
}

func (g *OpenAIGenerator) classify(ctx context.Context, err error) error {
	serviceErr := &ServiceError{Provider: ProviderOpenAI, Op: "generate", Err: err}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		serviceErr.StatusCode = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		serviceErr.StatusCode = reqErr.HTTPStatusCode
	default:
		serviceErr.Timeout = isTimeout(ctx, err)
	}
	return serviceErr
}
