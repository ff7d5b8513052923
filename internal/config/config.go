package config

import (
	"fmt"
	"slices"
	"time"

	pkgconfig "github.com/utafrali/facetsearch/pkg/config"
)

// Search engine backends.
const (
	EngineMemory        = "memory"
	EngineElasticsearch = "elasticsearch"
	EnginePostgres      = "postgres"
)

// Schema registry sources.
const (
	RegistryFile     = "file"
	RegistryPostgres = "postgres"
)

// Schema cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config holds all configuration for the search service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort        int           `env:"SEARCH_HTTP_PORT" envDefault:"8010"`
	RequestTimeout  time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	CORSOrigins     []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	HealthTimeout   time.Duration `env:"HEALTH_CHECK_TIMEOUT" envDefault:"5s"`

	// Search
	SearchEngine string        `env:"SEARCH_ENGINE" envDefault:"elasticsearch"`
	QueryTimeout time.Duration `env:"SEARCH_QUERY_TIMEOUT" envDefault:"5s"`

	// Elasticsearch
	ElasticsearchURL   string `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200"`
	ElasticsearchIndex string `env:"ELASTICSEARCH_INDEX" envDefault:"listings"`

	// Refresh policy of writes: true, false or wait_for.
	ElasticsearchRefresh string `env:"ELASTICSEARCH_REFRESH" envDefault:"wait_for"`

	// Attribute schema registry
	SchemaRegistry string        `env:"SCHEMA_REGISTRY" envDefault:"file"`
	CatalogFile    string        `env:"CATALOG_FILE" envDefault:"config/catalog.yaml"`
	SchemaCache    string        `env:"SCHEMA_CACHE" envDefault:"memory"`
	SchemaCacheTTL time.Duration `env:"SCHEMA_CACHE_TTL" envDefault:"5m"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"facetsearch"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"facetsearch"`
	PostgresDB   string `env:"SEARCH_DB_NAME" envDefault:"facetsearch"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`
	SlowQueryThresholdMs  int   `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Catalog export used by reindex; reindex is disabled when empty
	CatalogServiceURL string        `env:"CATALOG_SERVICE_URL" envDefault:""`
	ReindexPageSize   int           `env:"REINDEX_PAGE_SIZE" envDefault:"100"`
	ReindexTimeout    time.Duration `env:"REINDEX_TIMEOUT" envDefault:"30m"`

	// AdminToken guards /api/index; the routes are open when empty
	AdminToken string `env:"ADMIN_TOKEN" envDefault:""`

	// Kafka
	KafkaEnabled        bool          `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers        []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID        string        `env:"KAFKA_GROUP_ID" envDefault:"search-service"`
	KafkaDLQEnabled     bool          `env:"KAFKA_DLQ_ENABLED" envDefault:"true"`
	IdempotencyStore    string        `env:"KAFKA_IDEMPOTENCY_STORE" envDefault:"memory"`
	IdempotencyTTL      time.Duration `env:"KAFKA_IDEMPOTENCY_TTL" envDefault:"24h"`
	KafkaRetryBackoffMs int           `env:"KAFKA_RETRY_BACKOFF_MS" envDefault:"100"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofEnabled      bool     `env:"PPROF_ENABLED" envDefault:"false"`
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`
}

// Load reads configuration from environment variables. Extra options, such
// as dotenv files, are passed through to the loader.
func Load(opts ...pkgconfig.Option) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg, opts...); err != nil {
		return nil, fmt.Errorf("load search config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if !slices.Contains([]string{EngineMemory, EngineElasticsearch, EnginePostgres}, c.SearchEngine) {
		return fmt.Errorf("SEARCH_ENGINE must be one of memory, elasticsearch, postgres, got %q", c.SearchEngine)
	}
	if !slices.Contains([]string{RegistryFile, RegistryPostgres}, c.SchemaRegistry) {
		return fmt.Errorf("SCHEMA_REGISTRY must be file or postgres, got %q", c.SchemaRegistry)
	}
	if !slices.Contains([]string{CacheNone, CacheMemory, CacheRedis}, c.SchemaCache) {
		return fmt.Errorf("SCHEMA_CACHE must be one of none, memory, redis, got %q", c.SchemaCache)
	}
	if !slices.Contains([]string{CacheMemory, CacheRedis}, c.IdempotencyStore) {
		return fmt.Errorf("KAFKA_IDEMPOTENCY_STORE must be memory or redis, got %q", c.IdempotencyStore)
	}
	if c.SearchEngine == EngineElasticsearch && c.ElasticsearchURL == "" {
		return fmt.Errorf("ELASTICSEARCH_URL is required for the elasticsearch engine")
	}
	if c.SearchEngine == EngineElasticsearch && !slices.Contains([]string{"true", "false", "wait_for"}, c.ElasticsearchRefresh) {
		return fmt.Errorf("ELASTICSEARCH_REFRESH must be one of true, false, wait_for, got %q", c.ElasticsearchRefresh)
	}
	if c.SchemaRegistry == RegistryFile && c.CatalogFile == "" {
		return fmt.Errorf("CATALOG_FILE is required for the file registry")
	}
	if c.UsesPostgres() && c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.UsesRedis() && c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.QueryTimeout <= 0 {
		return fmt.Errorf("SEARCH_QUERY_TIMEOUT must be positive, got %s", c.QueryTimeout)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("HTTP_REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.ReindexPageSize < 1 || c.ReindexPageSize > 500 {
		return fmt.Errorf("REINDEX_PAGE_SIZE must be between 1 and 500, got %d", c.ReindexPageSize)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// UsesPostgres reports whether the engine or the registry needs PostgreSQL.
func (c *Config) UsesPostgres() bool {
	return c.SearchEngine == EnginePostgres || c.SchemaRegistry == RegistryPostgres
}

// UsesRedis reports whether the schema cache or the idempotency store needs Redis.
func (c *Config) UsesRedis() bool {
	return c.SchemaCache == CacheRedis || (c.KafkaEnabled && c.IdempotencyStore == CacheRedis)
}
