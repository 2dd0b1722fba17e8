package storage_test

import (
	"context"
	"encoding/hex"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/absmach/fedcoord/pkg/round"
	"github.com/absmach/fedcoord/pkg/storage"
	"github.com/absmach/fedcoord/pkg/storage/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hexKey = strings.Repeat("ab", 32)

func TestMemoryRepositories(t *testing.T) {
	repos, err := storage.NewRepositories(storage.Config{Type: "memory"})
	require.NoError(t, err)
	assert.Nil(t, repos.Closer)

	testutil.RunRoundRepositoryTests(t, repos.Rounds)
	testutil.RunCheckpointRepositoryTests(t, repos.Checkpoints)
}

func TestNewRepositories(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		desc string
		cfg  storage.Config
		err  error
	}{
		{desc: "default is memory", cfg: storage.Config{}},
		{desc: "sqlite", cfg: storage.Config{Type: "sqlite", SQLitePath: filepath.Join(dir, "fl.db")}},
		{desc: "badger", cfg: storage.Config{Type: "badger", BadgerPath: filepath.Join(dir, "badger")}},
		{desc: "sealed memory", cfg: storage.Config{Type: "memory", CheckpointKey: hexKey}},
		{desc: "unknown backend", cfg: storage.Config{Type: "etcd"}, err: storage.ErrUnsupportedType},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			repos, err := storage.NewRepositories(tc.cfg)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			if repos.Closer != nil {
				t.Cleanup(func() { repos.Closer.Close() })
			}
			testutil.RunCheckpointRepositoryTests(t, repos.Checkpoints)
		})
	}
}

func TestSealedCheckpoints(t *testing.T) {
	ctx := context.Background()
	plain, err := storage.NewRepositories(storage.Config{})
	require.NoError(t, err)

	sealed, err := storage.NewSealedCheckpoints(plain.Checkpoints, hexKey)
	require.NoError(t, err)

	c := testutil.TestCheckpoint("run", round.FinalLabel)
	require.NoError(t, sealed.Save(ctx, c))

	raw, err := plain.Checkpoints.Get(ctx, "run", round.FinalLabel)
	require.NoError(t, err)
	assert.True(t, raw.Sealed)
	assert.NotEqual(t, c.Data, raw.Data)

	got, err := sealed.Get(ctx, "run", round.FinalLabel)
	require.NoError(t, err)
	assert.False(t, got.Sealed)
	assert.Equal(t, c.Data, got.Data)

	raw.Label = round.RoundLabel(1)
	require.NoError(t, plain.Checkpoints.Save(ctx, raw))
	_, err = sealed.Get(ctx, "run", round.RoundLabel(1))
	assert.Error(t, err)

	_, err = storage.NewSealedCheckpoints(plain.Checkpoints, hex.EncodeToString([]byte("short")))
	assert.Error(t, err)
}

func TestInMemoryStorageList(t *testing.T) {
	ctx := context.Background()
	s := storage.NewInMemoryStorage()
	for _, k := range []string{"run/3", "run/1", "run/2", "other/1"} {
		require.NoError(t, s.Put(ctx, k, k))
	}

	cases := []struct {
		desc   string
		offset uint64
		limit  uint64
		want   []any
	}{
		{desc: "no limit", offset: 0, limit: 0, want: []any{"run/1", "run/2", "run/3"}},
		{desc: "window", offset: 1, limit: 1, want: []any{"run/2"}},
		{desc: "huge limit", offset: 1, limit: math.MaxUint64, want: []any{"run/2", "run/3"}},
		{desc: "past the end", offset: 5, limit: 1},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			got, total, err := s.List(ctx, "run/", tc.offset, tc.limit)
			require.NoError(t, err)
			assert.Equal(t, uint64(3), total)
			assert.Equal(t, tc.want, got)
		})
	}
}
