package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime settings. Credentials are parsed here once and
// injected into the clients that need them; nothing below main reads the
// environment.
type Config struct {
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	// Zero disables the client timeout; streaming completions can be long-lived.
	CompletionTimeout time.Duration `env:"COMPLETION_TIMEOUT" envDefault:"0"`

	ExtractorBaseURL string        `env:"EXTRACTOR_BASE_URL" envDefault:"https://api.firecrawl.dev/v1"`
	ExtractorAPIKey  string        `env:"EXTRACTOR_API_KEY"`
	ExtractorTimeout time.Duration `env:"EXTRACTOR_TIMEOUT" envDefault:"2m"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
