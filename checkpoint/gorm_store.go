package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/BaSui01/stategraph/types"
)

// checkpointRecord is the GORM model behind GormStore. The composite
// unique index on (run_id, step) enforces append-only at the database
// level.
type checkpointRecord struct {
	ID        uint   `gorm:"primaryKey"`
	RunID     string `gorm:"column:run_id;size:64;uniqueIndex:idx_run_step;index"`
	Step      int    `gorm:"uniqueIndex:idx_run_step"`
	Node      string `gorm:"size:128"`
	NextNode  string `gorm:"size:128"`
	Status    string `gorm:"size:16"`
	State     []byte
	CreatedAt time.Time
}

func (checkpointRecord) TableName() string { return "graph_checkpoints" }

// GormStore is a SQL-backed Store working against any GORM dialect
// (sqlite for embedded deployments, any server database the caller
// opens themselves).
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the checkpoint table and returns the store.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.AutoMigrate(&checkpointRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate checkpoint table: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Save(ctx context.Context, cp *Checkpoint) error {
	if cp == nil {
		return types.NewError(types.ErrCheckpointConflict, "checkpoint cannot be nil")
	}

	createdAt := cp.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	record := checkpointRecord{
		RunID:     cp.RunID,
		Step:      cp.Step,
		Node:      cp.Node,
		NextNode:  cp.NextNode,
		Status:    cp.Status,
		State:     []byte(cp.State),
		CreatedAt: createdAt,
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing checkpointRecord
		err := tx.Where("run_id = ? AND step = ?", cp.RunID, cp.Step).First(&existing).Error
		if err == nil {
			return types.NewError(types.ErrCheckpointConflict,
				fmt.Sprintf("checkpoint already exists for step %d", cp.Step)).
				WithRun(cp.RunID, cp.Step)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(&record).Error
	})
}

func (s *GormStore) Load(ctx context.Context, runID string, step int) (*Checkpoint, error) {
	var record checkpointRecord
	err := s.db.WithContext(ctx).
		Where("run_id = ? AND step = ?", runID, step).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrNoCheckpoint,
			fmt.Sprintf("no checkpoint at step %d", step)).WithRun(runID, step)
	}
	if err != nil {
		return nil, err
	}
	return record.toCheckpoint(), nil
}

func (s *GormStore) LoadLatest(ctx context.Context, runID string) (*Checkpoint, error) {
	var record checkpointRecord
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("step DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrNoCheckpoint, "run has no checkpoints").WithRun(runID, 0)
	}
	if err != nil {
		return nil, err
	}
	return record.toCheckpoint(), nil
}

func (s *GormStore) List(ctx context.Context, runID string) ([]*Checkpoint, error) {
	var records []checkpointRecord
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("step ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	out := make([]*Checkpoint, 0, len(records))
	for i := range records {
		out = append(out, records[i].toCheckpoint())
	}
	return out, nil
}

func (s *GormStore) Delete(ctx context.Context, runID string) error {
	return s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Delete(&checkpointRecord{}).Error
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *checkpointRecord) toCheckpoint() *Checkpoint {
	return &Checkpoint{
		RunID:     r.RunID,
		Step:      r.Step,
		Node:      r.Node,
		NextNode:  r.NextNode,
		Status:    r.Status,
		State:     append([]byte(nil), r.State...),
		CreatedAt: r.CreatedAt,
	}
}

// Ensure GormStore implements Store.
var _ Store = (*GormStore)(nil)
