package db

import (
	"fmt"

	"github.com/bitlift/bitlift/internal/core/domain"
	"github.com/bitlift/bitlift/internal/core/ports"
	badgerdb "github.com/bitlift/bitlift/internal/infrastructure/db/badger"
	"github.com/dgraph-io/badger/v4"
)

type ServiceConfig struct {
	DbType   string
	BaseDir  string
	DbLogger badger.Logger
}

type service struct {
	swapRepo       domain.SwapRepository
	checkpointRepo domain.CheckpointRepository
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	switch config.DbType {
	case "badger":
		swapRepo, err := badgerdb.NewSwapRepository(config.BaseDir, config.DbLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to open swap db: %s", err)
		}
		checkpointRepo, err := badgerdb.NewCheckpointRepository(config.BaseDir, config.DbLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to open checkpoint db: %s", err)
		}
		return &service{swapRepo, checkpointRepo}, nil
	default:
		return nil, fmt.Errorf("unsupported db type %q, must be: badger", config.DbType)
	}
}

func (s *service) Swaps() domain.SwapRepository {
	return s.swapRepo
}

func (s *service) Checkpoints() domain.CheckpointRepository {
	return s.checkpointRepo
}

func (s *service) Close() {
	s.swapRepo.Close()
	s.checkpointRepo.Close()
}
