package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

type Config struct {
	// HTTP listen address when RUN_LOCAL is true
	Address  string `env:"ADDRESS" envDefault:":8080"`
	RunLocal bool   `env:"RUN_LOCAL" envDefault:"false"`
	// "dev" or "prod"
	LogMode string `env:"LOG_MODE" envDefault:"prod"`

	AWS    AWS
	OpenAI OpenAI
	Redis  Redis

	ExplainTimeout   time.Duration `env:"EXPLAIN_TIMEOUT" envDefault:"8s"`
	IdempotencyTTL   time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"48h"`
	MetricsNamespace string        `env:"METRICS_NAMESPACE" envDefault:"OutfitPipeline"`
	// worker: receipt links are ReceiptBaseURL + order id
	ReceiptBaseURL string `env:"RECEIPT_BASE_URL" envDefault:"https://shop.example.com/receipts/"`
}

type AWS struct {
	Region string `env:"AWS_REGION" envDefault:"us-east-1"`
	// optional, e.g. http://localhost:4566 for localstack
	Endpoint string `env:"AWS_ENDPOINT_URL"`

	CartsTable       string `env:"CARTS_TABLE" envDefault:"carts"`
	OrdersTable      string `env:"ORDERS_TABLE" envDefault:"orders"`
	IdempotencyTable string `env:"IDEMPOTENCY_TABLE" envDefault:"idempotency"`
	QueueURL         string `env:"ORDERS_QUEUE_URL"`
}

type OpenAI struct {
	APIKey     string `env:"OPENAI_API_KEY"`
	BaseURL    string `env:"OPENAI_BASE_URL"`
	Model      string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	MaxRetries int    `env:"OPENAI_MAX_RETRIES" envDefault:"2"`
}

// Enabled reports whether explanations should call the model.
func (o OpenAI) Enabled() bool { return o.APIKey != "" }

type Redis struct {
	Addr     string        `env:"REDIS_ADDR"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	TTL      time.Duration `env:"EXPLAIN_CACHE_TTL" envDefault:"24h"`
}

func (r Redis) Enabled() bool { return r.Addr != "" }

// Load loads .env (if present) and parses environment variables into Config.
func Load() (Config, error) {
	// Load .env if available; ignore error if file does not exist
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the process environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.LogMode != "dev" && cfg.LogMode != "prod" {
		return Config{}, fmt.Errorf("parse env: LOG_MODE must be dev or prod, got %q", cfg.LogMode)
	}
	return cfg, nil
}
