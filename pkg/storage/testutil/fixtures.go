package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	pkgerrors "github.com/absmach/fedcoord/pkg/errors"
	"github.com/absmach/fedcoord/pkg/round"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type RoundRepository interface {
	Save(ctx context.Context, r round.Record) error
	Get(ctx context.Context, runID string, n uint64) (round.Record, error)
	List(ctx context.Context, runID string, offset, limit uint64) ([]round.Record, uint64, error)
}

type CheckpointRepository interface {
	Save(ctx context.Context, c round.Checkpoint) error
	Get(ctx context.Context, runID, label string) (round.Checkpoint, error)
}

func TestRecord(runID string, n uint64) round.Record {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Add(time.Duration(n) * time.Minute)

	return round.Record{
		RunID:        runID,
		Round:        n,
		Status:       round.StatusCompleted,
		LearningRate: 0.01,
		Contributors: 2,
		Outcomes: []round.Outcome{
			{WorkerID: "alice", OK: true, Loss: 0.5, NumSamples: 64, Duration: time.Second},
			{WorkerID: "bob", OK: true, Loss: 0.7, NumSamples: 64, Duration: 2 * time.Second},
			{WorkerID: "charlie", Error: "worker timed out", Duration: 5 * time.Second},
		},
		Evaluations: []round.Evaluation{
			{Label: "federated model", Accuracy: 0.5, Correct: 5, Total: 10, Histogram: []uint64{5, 5}},
		},
		StartedAt:  started,
		FinishedAt: started.Add(30 * time.Second),
	}
}

func TestCheckpoint(runID, label string) round.Checkpoint {
	return round.Checkpoint{
		RunID:     runID,
		Label:     label,
		Round:     3,
		Data:      []byte{0xa2, 0x61, 0x76, 0x01},
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// RunRoundRepositoryTests exercises behaviour every backend shares.
func RunRoundRepositoryTests(t *testing.T, repo RoundRepository) {
	t.Helper()
	ctx := context.Background()

	t.Run("save and get", func(t *testing.T) {
		runID := uuid.NewString()
		rec := TestRecord(runID, 1)
		require.NoError(t, repo.Save(ctx, rec))

		got, err := repo.Get(ctx, runID, 1)
		require.NoError(t, err)
		assertRecordEqual(t, rec, got)
	})

	t.Run("save replaces", func(t *testing.T) {
		runID := uuid.NewString()
		rec := TestRecord(runID, 1)
		rec.Status = round.StatusRunning
		rec.FinishedAt = time.Time{}
		rec.Evaluations = nil
		require.NoError(t, repo.Save(ctx, rec))

		rec = TestRecord(runID, 1)
		rec.Status = round.StatusFailed
		rec.Error = "no contributions"
		require.NoError(t, repo.Save(ctx, rec))

		got, err := repo.Get(ctx, runID, 1)
		require.NoError(t, err)
		assertRecordEqual(t, rec, got)

		_, total, err := repo.List(ctx, runID, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), total)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := repo.Get(ctx, uuid.NewString(), 7)
		assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
	})

	t.Run("list is ordered by round", func(t *testing.T) {
		runID := uuid.NewString()
		other := uuid.NewString()
		for _, n := range []uint64{10, 2, 1, 11, 3} {
			require.NoError(t, repo.Save(ctx, TestRecord(runID, n)))
		}
		require.NoError(t, repo.Save(ctx, TestRecord(other, 1)))

		cases := []struct {
			desc   string
			offset uint64
			limit  uint64
			want   []uint64
		}{
			{desc: "all", offset: 0, limit: 0, want: []uint64{1, 2, 3, 10, 11}},
			{desc: "first page", offset: 0, limit: 2, want: []uint64{1, 2}},
			{desc: "second page", offset: 2, limit: 2, want: []uint64{3, 10}},
			{desc: "past the end", offset: 10, limit: 2, want: []uint64{}},
		}

		for _, tc := range cases {
			t.Run(tc.desc, func(t *testing.T) {
				records, total, err := repo.List(ctx, runID, tc.offset, tc.limit)
				require.NoError(t, err)
				assert.Equal(t, uint64(5), total)
				got := []uint64{}
				for _, r := range records {
					got = append(got, r.Round)
				}
				assert.Equal(t, tc.want, got, fmt.Sprintf("offset %d limit %d", tc.offset, tc.limit))
			})
		}
	})
}

func RunCheckpointRepositoryTests(t *testing.T, repo CheckpointRepository) {
	t.Helper()
	ctx := context.Background()

	t.Run("save and get", func(t *testing.T) {
		runID := uuid.NewString()
		c := TestCheckpoint(runID, round.RoundLabel(3))
		require.NoError(t, repo.Save(ctx, c))

		got, err := repo.Get(ctx, runID, round.RoundLabel(3))
		require.NoError(t, err)
		assert.Equal(t, c.Data, got.Data)
		assert.Equal(t, c.Round, got.Round)
		assert.True(t, c.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("final overwrites", func(t *testing.T) {
		runID := uuid.NewString()
		c := TestCheckpoint(runID, round.FinalLabel)
		require.NoError(t, repo.Save(ctx, c))

		c.Data = []byte{1, 2, 3}
		c.Round = 40
		require.NoError(t, repo.Save(ctx, c))

		got, err := repo.Get(ctx, runID, round.FinalLabel)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3}, got.Data)
		assert.Equal(t, uint64(40), got.Round)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := repo.Get(ctx, uuid.NewString(), round.FinalLabel)
		assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
	})
}

func assertRecordEqual(t *testing.T, want, got round.Record) {
	t.Helper()

	assert.Equal(t, want.RunID, got.RunID)
	assert.Equal(t, want.Round, got.Round)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.LearningRate, got.LearningRate)
	assert.Equal(t, want.Contributors, got.Contributors)
	assert.Equal(t, want.Outcomes, got.Outcomes)
	assert.Equal(t, want.Evaluations, got.Evaluations)
	assert.Equal(t, want.Error, got.Error)
	assert.True(t, want.StartedAt.Equal(got.StartedAt), "started_at %v != %v", want.StartedAt, got.StartedAt)
	assert.True(t, want.FinishedAt.Equal(got.FinishedAt), "finished_at %v != %v", want.FinishedAt, got.FinishedAt)
}
