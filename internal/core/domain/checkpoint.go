package domain

import "context"

// SyncCheckpoint is the last-processed on-chain log position for one event
// listener, persisted so reconciliation resumes where it left off instead of
// re-scanning from genesis. Height is a block number on EVM chains and a slot
// on Solana.
type SyncCheckpoint struct {
	ListenerID string
	Height     uint64
	UpdatedAt  int64
}

// CheckpointRepository stores reconciliation checkpoints by listener id.
type CheckpointRepository interface {
	Get(ctx context.Context, listenerID string) (*SyncCheckpoint, error)
	Put(ctx context.Context, checkpoint SyncCheckpoint) error
	Delete(ctx context.Context, listenerID string) error
	Close()
}
