package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName           string
	AppEnv            string
	AppPort           string
	CORSOrigins       string
	DatabaseURL       string
	RedisURL          string
	JWTSecret         string
	AIProvider        string
	OllamaBaseURL     string
	OllamaModel       string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	GenerationTimeout time.Duration
	HealthTimeout     time.Duration
	RubricDir         string
	ResultCacheTTL    time.Duration
	GradeRateLimit    int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Writing API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("cors.origins", "*")
	v.SetDefault("ai.provider", "ollama")
	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.model", "mistral")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("generation_timeout", "300s")
	v.SetDefault("health_timeout", "5s")
	v.SetDefault("result_cache_ttl", "1h")
	v.SetDefault("grade_rate_limit", 10)

	generationTimeout, err := parseDuration(v, "generation_timeout")
	if err != nil {
		return Config{}, err
	}
	healthTimeout, err := parseDuration(v, "health_timeout")
	if err != nil {
		return Config{}, err
	}
	cacheTTL, err := parseDuration(v, "result_cache_ttl")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:           v.GetString("app.name"),
		AppEnv:            v.GetString("app.env"),
		AppPort:           v.GetString("app.port"),
		CORSOrigins:       v.GetString("cors.origins"),
		DatabaseURL:       v.GetString("database.url"),
		RedisURL:          v.GetString("redis.url"),
		JWTSecret:         v.GetString("jwt.secret"),
		AIProvider:        strings.ToLower(strings.TrimSpace(v.GetString("ai.provider"))),
		OllamaBaseURL:     v.GetString("ollama.base_url"),
		OllamaModel:       v.GetString("ollama.model"),
		OpenAIAPIKey:      v.GetString("openai_api_key"),
		OpenAIBaseURL:     v.GetString("openai.base_url"),
		OpenAIModel:       v.GetString("openai.model"),
		GenerationTimeout: generationTimeout,
		HealthTimeout:     healthTimeout,
		RubricDir:         v.GetString("rubric_dir"),
		ResultCacheTTL:    cacheTTL,
		GradeRateLimit:    v.GetInt("grade_rate_limit"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.AIProvider {
	case "ollama":
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return Config{}, fmt.Errorf("openai api key must be provided for the openai provider")
		}
	default:
		return Config{}, fmt.Errorf("unsupported ai provider %q", cfg.AIProvider)
	}

	if cfg.GradeRateLimit <= 0 {
		cfg.GradeRateLimit = 10
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	value := strings.TrimSpace(v.GetString(key))
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", strings.ReplaceAll(key, "_", " "), err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", strings.ReplaceAll(key, "_", " "))
	}
	return parsed, nil
}
