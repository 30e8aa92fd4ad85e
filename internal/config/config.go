package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Service struct {
	Environment string `envconfig:"SERVICE_ENVIRONMENT" required:"true"`
	APIPort     string `envconfig:"SERVICE_API_PORT" default:"8080"`
	HealthPort  string `envconfig:"COLLECTOR_HEALTH_PORT" default:"8081"`
}

type ClickHouse struct {
	Host            string `envconfig:"CLICKHOUSE_HOST" required:"true"`
	Port            string `envconfig:"CLICKHOUSE_PORT" required:"true"`
	Database        string `envconfig:"CLICKHOUSE_DB" required:"true"`
	User            string `envconfig:"CLICKHOUSE_USER" default:""`
	Password        string `envconfig:"CLICKHOUSE_PASSWORD" default:""`
	UseTLS          bool   `envconfig:"CLICKHOUSE_USE_TLS" default:"false"`
	MaxOpenConns    int    `envconfig:"CLICKHOUSE_MAX_OPEN_CONNS" default:"5"`
	MaxIdleConns    int    `envconfig:"CLICKHOUSE_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime int    `envconfig:"CLICKHOUSE_CONN_MAX_LIFETIME_SEC" default:"3600"`
}

type Valkey struct {
	Enabled       bool   `envconfig:"VALKEY_IDEMPOTENCY_ENABLED" default:"true"`
	FailOpen      bool   `envconfig:"VALKEY_IDEMPOTENCY_FAIL_OPEN" default:"true"`
	Host          string `envconfig:"VALKEY_HOST" default:"localhost"`
	Port          string `envconfig:"VALKEY_PORT" default:"6379"`
	Password      string `envconfig:"VALKEY_PASSWORD" default:""`
	DedupTTLHours int    `envconfig:"VALKEY_DEDUP_TTL_HOURS" default:"168"`
}

type SQS struct {
	Enabled         bool   `envconfig:"SQS_ADAPTER_ENABLED" default:"false"`
	Endpoint        string `envconfig:"SQS_ENDPOINT"`
	QueueURL        string `envconfig:"SQS_QUEUE_URL"`
	Region          string `envconfig:"SQS_REGION" default:"eu-west-1"`
	PollIntervalSec int    `envconfig:"SQS_POLL_INTERVAL_SEC" default:"60"`
}

type Alertmanager struct {
	Enabled         bool   `envconfig:"ALERTMANAGER_ADAPTER_ENABLED" default:"true"`
	BaseURL         string `envconfig:"ALERTMANAGER_BASE_URL" default:"http://localhost:9093"`
	PollIntervalSec int    `envconfig:"ALERTMANAGER_POLL_INTERVAL_SEC" default:"300"`
}

type ModelHealth struct {
	Enabled               bool     `envconfig:"MODELHEALTH_ADAPTER_ENABLED" default:"false"`
	BaseURL               string   `envconfig:"MODELHEALTH_BASE_URL"`
	Models                []string `envconfig:"MODELHEALTH_MODELS"`
	PollIntervalSec       int      `envconfig:"MODELHEALTH_POLL_INTERVAL_SEC" default:"300"`
	WindowSize            int      `envconfig:"MODELHEALTH_WINDOW_SIZE" default:"10"`
	ErrorRateThreshold    float64  `envconfig:"MODELHEALTH_ERROR_RATE_THRESHOLD" default:"0.5"`
	MinSamples            int      `envconfig:"MODELHEALTH_MIN_SAMPLES" default:"5"`
	RequiredConsecutiveOK int      `envconfig:"MODELHEALTH_REQUIRED_CONSECUTIVE_OK" default:"3"`
}

type Runner struct {
	Scope            string `envconfig:"COLLECTOR_SCOPE" default:"prod"`
	RunTimeoutSec    int    `envconfig:"RUN_TIMEOUT_SEC" default:"60"`
	SkewToleranceSec int    `envconfig:"CLOCK_SKEW_TOLERANCE_SEC" default:"30"`
}

type Config struct {
	Service      Service
	ClickHouse   ClickHouse
	Valkey       Valkey
	SQS          SQS
	Alertmanager Alertmanager
	ModelHealth  ModelHealth
	Runner       Runner
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}
