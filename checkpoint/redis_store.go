package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/stategraph/types"
)

// RedisConfig configures the Redis-backed store.
type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password" json:"password"`
	DB        int    `yaml:"db" json:"db"`
	PoolSize  int    `yaml:"pool_size" json:"pool_size"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// RedisStore is a Redis-based Store suitable for distributed
// deployments. Checkpoint payloads live under string keys; a sorted
// set per run indexes step numbers for latest/list queries.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "stategraph:"
	}
	return &RedisStore{client: client, keyPrefix: prefix + "ckpt:"}, nil
}

func (s *RedisStore) dataKey(runID string, step int) string {
	return fmt.Sprintf("%sdata:%s:%d", s.keyPrefix, runID, step)
}

func (s *RedisStore) indexKey(runID string) string {
	return s.keyPrefix + "run:" + runID
}

func (s *RedisStore) Save(ctx context.Context, cp *Checkpoint) error {
	if cp == nil {
		return types.NewError(types.ErrCheckpointConflict, "checkpoint cannot be nil")
	}

	stored := cp.clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	// SETNX enforces append-only: a pre-existing (run, step) key is a
	// conflict, never an overwrite.
	ok, err := s.client.SetNX(ctx, s.dataKey(cp.RunID, cp.Step), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return types.NewError(types.ErrCheckpointConflict,
			fmt.Sprintf("checkpoint already exists for step %d", cp.Step)).
			WithRun(cp.RunID, cp.Step)
	}

	return s.client.ZAdd(ctx, s.indexKey(cp.RunID), redis.Z{
		Score:  float64(cp.Step),
		Member: cp.Step,
	}).Err()
}

func (s *RedisStore) Load(ctx context.Context, runID string, step int) (*Checkpoint, error) {
	data, err := s.client.Get(ctx, s.dataKey(runID, step)).Bytes()
	if err == redis.Nil {
		return nil, types.NewError(types.ErrNoCheckpoint,
			fmt.Sprintf("no checkpoint at step %d", step)).WithRun(runID, step)
	}
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *RedisStore) LoadLatest(ctx context.Context, runID string) (*Checkpoint, error) {
	members, err := s.client.ZRevRange(ctx, s.indexKey(runID), 0, 0).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, types.NewError(types.ErrNoCheckpoint, "run has no checkpoints").WithRun(runID, 0)
	}
	var step int
	if _, err := fmt.Sscanf(members[0], "%d", &step); err != nil {
		return nil, fmt.Errorf("corrupt step index entry %q: %w", members[0], err)
	}
	return s.Load(ctx, runID, step)
}

func (s *RedisStore) List(ctx context.Context, runID string) ([]*Checkpoint, error) {
	members, err := s.client.ZRange(ctx, s.indexKey(runID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*Checkpoint, 0, len(members))
	for _, m := range members {
		var step int
		if _, err := fmt.Sscanf(m, "%d", &step); err != nil {
			continue
		}
		cp, err := s.Load(ctx, runID, step)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, runID string) error {
	members, err := s.client.ZRange(ctx, s.indexKey(runID), 0, -1).Result()
	if err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	for _, m := range members {
		var step int
		if _, err := fmt.Sscanf(m, "%d", &step); err != nil {
			continue
		}
		pipe.Del(ctx, s.dataKey(runID, step))
	}
	pipe.Del(ctx, s.indexKey(runID))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ensure RedisStore implements Store.
var _ Store = (*RedisStore)(nil)
