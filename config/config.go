package config

import "time"

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"servio-fusion-api"`
	Environment                   string   `env:"ENVIRONMENT" env-default:"development"`
	Port                          int      `env:"PORT" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"30"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// PostgreSQL (catalog snapshots)
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:""`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"fusion"`
	DatabaseSSLMode               string        `env:"DB_SQL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Redis (catalog read cache)
	RedisEnabled    bool          `env:"REDIS_ENABLED" env-default:"true"`
	RedisHost       string        `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort       int           `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword   string        `env:"REDIS_PASSWORD" env-default:""`
	RedisDB         int           `env:"REDIS_DB" env-default:"0"`
	CatalogCacheTTL time.Duration `env:"CATALOG_CACHE_TTL" env-default:"5m"`

	// Kafka Producer (catalog lifecycle events for the display tier)
	KafkaEnabled      bool     `env:"KAFKA_ENABLED" env-default:"true"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaOutputTopic  string   `env:"KAFKA_OUTPUT_TOPIC" env-default:"catalog-events"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Source fetcher (scraped catalog listings)
	SourceFetchTimeout       time.Duration `env:"SOURCE_FETCH_TIMEOUT" env-default:"30s"`
	SourceFetchRetryAttempts int           `env:"SOURCE_FETCH_RETRY_ATTEMPTS" env-default:"3"`

	// Vision hint extraction (Gemini)
	GeminiAPIKey              string        `env:"GEMINI_API_KEY" env-default:""`
	GeminiModel               string        `env:"GEMINI_MODEL" env-default:"gemini-2.0-flash"`
	VisionTimeout             time.Duration `env:"VISION_TIMEOUT" env-default:"60s"`
	VisionRetryAttempts       int           `env:"VISION_RETRY_ATTEMPTS" env-default:"3"`
	HintExtractionConcurrency int           `env:"HINT_EXTRACTION_CONCURRENCY" env-default:"4"`

	// Fusion engine
	MatchThreshold   float64 `env:"MATCH_THRESHOLD" env-default:"0.70"`
	CollisionEpsilon float64 `env:"COLLISION_EPSILON" env-default:"5.0"`
	ItemsPerPage     int     `env:"ITEMS_PER_PAGE" env-default:"6"`
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "local"
}

