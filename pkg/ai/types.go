package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// ProviderOllama selects the local Ollama server.
	ProviderOllama = "ollama"
	// ProviderOpenAI selects an OpenAI compatible chat completion API.
	ProviderOpenAI = "openai"

	// DefaultGenerationTimeout bounds a single generate call.
	DefaultGenerationTimeout = 300 * time.Second
	// DefaultHealthTimeout bounds a health probe.
	DefaultHealthTimeout = 5 * time.Second
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "generation_duration_seconds",
		Help:      "Duration of text generation requests",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 180, 300},
	}, []string{"provider", "model"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "generation_failures_total",
		Help:      "Number of failed text generation requests",
	}, []string{"provider", "model"})
)

// Generator is a text generation backend used for marking.
type Generator interface {
	// CheckHealth reports whether the service is reachable and serves the
	// configured model. It never returns an error.
	CheckHealth(ctx context.Context) bool
	// Generate sends a single prompt and returns the raw response text.
	Generate(ctx context.Context, prompt, system string) (string, error)
	Provider() string
	Model() string
}

// ServiceError describes a failed generation call.
type ServiceError struct {
	Provider   string
	Op         string
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *ServiceError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Provider, e.Op)
	switch {
	case e.Timeout:
		b.WriteString(": timed out")
	case e.StatusCode != 0:
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func modelListed(names []string, model string) bool {
	for _, name := range names {
		if strings.Contains(name, model) {
			return true
		}
	}
	return false
}

func snippet(body string) string {
	body = strings.TrimSpace(body)
	if len(body) > 200 {
		return body[:200] + "..."
	}
	return body
}
