// Package stategraph provides a top-level convenience entry point for
// building and running workflow graphs with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/stategraph"
//
//	b := stategraph.NewBuilder("assistant")
//	b.AddNode("classify", classify)
//	b.AddEdge("classify", stategraph.End)
//	b.SetEntry("classify")
//	g, err := b.Compile()
//	run, err := g.Invoke(ctx, initial)
//
// This is a thin wrapper around [graph] and [checkpoint]; both produce
// identical results. Use this package when you prefer the shorter
// import path.
package stategraph

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/stategraph/checkpoint"
	"github.com/BaSui01/stategraph/config"
	"github.com/BaSui01/stategraph/graph"
)

// End is the terminal routing sentinel.
const End = graph.End

// Re-export the core types so callers never need to import graph/.
type (
	State         = graph.State
	NodeFunc      = graph.NodeFunc
	RouterFunc    = graph.RouterFunc
	Reducer       = graph.Reducer
	Builder       = graph.Builder
	CompiledGraph = graph.CompiledGraph
	Run           = graph.Run
	RunStatus     = graph.RunStatus
	Definition    = graph.Definition
)

// NewState creates an empty state.
var NewState = graph.NewState

// StateFrom creates a state from a plain map.
var StateFrom = graph.StateFrom

// NewBuilder creates a graph builder.
var NewBuilder = graph.NewBuilder

// MarkPause marks a node update so the run suspends for approval.
var MarkPause = graph.MarkPause

// WithMaxSteps overrides the per-run step ceiling.
var WithMaxSteps = graph.WithMaxSteps

// WithCheckpointStore enables durable checkpointing.
var WithCheckpointStore = graph.WithCheckpointStore

// OpenStore constructs the checkpoint backend named by the
// configuration: memory, file, redis, or database.
func OpenStore(cfg *config.Config) (checkpoint.Store, error) {
	switch cfg.Checkpoint.Backend {
	case "", "memory":
		return checkpoint.NewMemoryStore(), nil
	case "file":
		return checkpoint.NewFileStore(cfg.Checkpoint.Dir)
	case "redis":
		return checkpoint.NewRedisStore(checkpoint.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
	case "database":
		db, err := openDatabase(cfg.Database)
		if err != nil {
			return nil, err
		}
		return checkpoint.NewGormStore(db)
	default:
		return nil, fmt.Errorf("unknown checkpoint backend: %s", cfg.Checkpoint.Backend)
	}
}

func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.Driver != "sqlite" {
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
	db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// NewLogger builds a zap logger from the log configuration.
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}
	zc.DisableCaller = !cfg.EnableCaller

	return zc.Build()
}
