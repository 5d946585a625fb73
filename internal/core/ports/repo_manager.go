package ports

import "github.com/bitlift/bitlift/internal/core/domain"

type RepoManager interface {
	Swaps() domain.SwapRepository
	Checkpoints() domain.CheckpointRepository
	Close()
}
