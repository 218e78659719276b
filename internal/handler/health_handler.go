package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-writing-api/internal/config"
	"github.com/noah-isme/gema-writing-api/internal/utils"
	"github.com/noah-isme/gema-writing-api/pkg/ai"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string           `json:"status"`
	Timestamp   time.Time        `json:"timestamp"`
	Service     string           `json:"service"`
	Environment string           `json:"environment"`
	Generator   *GeneratorHealth `json:"generator,omitempty"`
}

// GeneratorHealth reports the reachability of the generation backend.
type GeneratorHealth struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Available bool   `json:"available"`
}

// HealthCheck returns a handler that reports application health information.
// An unreachable generator degrades the status without failing the probe.
func HealthCheck(cfg config.Config, generator ai.Generator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
		}

		if generator != nil {
			available := generator.CheckHealth(c.UserContext())
			payload.Generator = &GeneratorHealth{
				Provider:  generator.Provider(),
				Model:     generator.Model(),
				Available: available,
			}
			if !available {
				payload.Status = "degraded"
			}
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
