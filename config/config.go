package config

import "time"

// Config is the complete engine configuration.
type Config struct {
	// Engine controls executor behavior.
	Engine EngineConfig `yaml:"engine" env:"ENGINE"`

	// Checkpoint selects and configures the persistence backend.
	Checkpoint CheckpointConfig `yaml:"checkpoint" env:"CHECKPOINT"`

	// Redis connection settings, used when the checkpoint backend is
	// "redis".
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database connection settings, used when the checkpoint backend
	// is "database".
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry configures OpenTelemetry export.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// EngineConfig controls the graph executor.
type EngineConfig struct {
	// MaxSteps is the step ceiling per run.
	MaxSteps int `yaml:"max_steps" env:"MAX_STEPS"`
	// Concurrency bounds parallel runs in a RunManager batch.
	Concurrency int `yaml:"concurrency" env:"CONCURRENCY"`
	// StepTimeout bounds a single node invocation; zero disables.
	StepTimeout time.Duration `yaml:"step_timeout" env:"STEP_TIMEOUT"`
}

// CheckpointConfig selects the persistence backend.
type CheckpointConfig struct {
	// Backend: memory, file, redis, database.
	Backend string `yaml:"backend" env:"BACKEND"`
	// Dir is the base directory for the file backend.
	Dir string `yaml:"dir" env:"DIR"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr      string `yaml:"addr" env:"ADDR"`
	Password  string `yaml:"password" env:"PASSWORD"`
	DB        int    `yaml:"db" env:"DB"`
	PoolSize  int    `yaml:"pool_size" env:"POOL_SIZE"`
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// DatabaseConfig configures the SQL backend.
type DatabaseConfig struct {
	// Driver: sqlite is the embedded default.
	Driver string `yaml:"driver" env:"DRIVER"`
	// DSN is the connection string; for sqlite a file path or
	// ":memory:".
	DSN             string        `yaml:"dsn" env:"DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json or console.
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths are zap sink URLs; defaults to stdout.
	OutputPaths  []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// DefaultConfig returns the configuration used when nothing overrides
// it.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxSteps:    100,
			Concurrency: 4,
		},
		Checkpoint: CheckpointConfig{
			Backend: "memory",
			Dir:     "data",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "stategraph:",
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "stategraph.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stdout"},
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "stategraph",
			SampleRate:   1.0,
		},
	}
}
