package storage

import (
	"context"
	"fmt"

	"github.com/absmach/fedcoord/pkg/crypto"
	"github.com/absmach/fedcoord/pkg/round"
)

type sealedCheckpoints struct {
	repo   CheckpointRepository
	sealer *crypto.Sealer
}

// NewSealedCheckpoints encrypts checkpoint payloads before they reach repo.
// The run id and label are authenticated alongside the payload, so a
// checkpoint copied under another key fails to open.
func NewSealedCheckpoints(repo CheckpointRepository, hexKey string) (CheckpointRepository, error) {
	key, err := crypto.ParseKey(hexKey)
	if err != nil {
		return nil, err
	}
	sealer, err := crypto.NewSealer(key)
	if err != nil {
		return nil, err
	}

	return &sealedCheckpoints{repo: repo, sealer: sealer}, nil
}

func associatedData(runID, label string) []byte {
	return []byte(runID + "/" + label)
}

func (s *sealedCheckpoints) Save(ctx context.Context, c round.Checkpoint) error {
	data, err := s.sealer.Seal(c.Data, associatedData(c.RunID, c.Label))
	if err != nil {
		return fmt.Errorf("failed to seal checkpoint: %w", err)
	}
	c.Data = data
	c.Sealed = true

	return s.repo.Save(ctx, c)
}

func (s *sealedCheckpoints) Get(ctx context.Context, runID, label string) (round.Checkpoint, error) {
	c, err := s.repo.Get(ctx, runID, label)
	if err != nil {
		return round.Checkpoint{}, err
	}
	if !c.Sealed {
		return c, nil
	}

	data, err := s.sealer.Open(c.Data, associatedData(runID, label))
	if err != nil {
		return round.Checkpoint{}, fmt.Errorf("failed to open checkpoint: %w", err)
	}
	c.Data = data
	c.Sealed = false

	return c, nil
}
