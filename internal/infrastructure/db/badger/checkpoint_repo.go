package badgerdb

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/bitlift/bitlift/internal/core/domain"
	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

const checkpointDir = "checkpoints"

type checkpointRepository struct {
	store *badgerhold.Store
}

func NewCheckpointRepository(baseDir string, logger badger.Logger) (domain.CheckpointRepository, error) {
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, checkpointDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %s", err)
	}
	return &checkpointRepository{store}, nil
}

func (r *checkpointRepository) Get(ctx context.Context, listenerID string) (*domain.SyncCheckpoint, error) {
	var checkpoint domain.SyncCheckpoint
	err := r.store.Get(listenerID, &checkpoint)
	if err == badgerhold.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return &checkpoint, nil
}

func (r *checkpointRepository) Put(ctx context.Context, checkpoint domain.SyncCheckpoint) error {
	return r.store.Upsert(checkpoint.ListenerID, checkpoint)
}

func (r *checkpointRepository) Delete(ctx context.Context, listenerID string) error {
	err := r.store.Delete(listenerID, domain.SyncCheckpoint{})
	if err == badgerhold.ErrNotFound {
		return nil
	}
	return err
}

func (r *checkpointRepository) Close() {
	// nolint:all
	r.store.Close()
}
