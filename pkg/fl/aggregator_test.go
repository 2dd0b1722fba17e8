package fl_test

import (
	"errors"
	"testing"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(t *testing.T, layers map[string][]float64, order ...string) model.Snapshot {
	t.Helper()

	var s model.Snapshot
	for _, name := range order {
		data := layers[name]
		s.Set(name, model.Tensor{Shape: []int{len(data)}, Data: data})
	}
	require.NoError(t, s.Validate())

	return s
}

func TestFedAvgAggregate(t *testing.T) {
	agg := fl.NewFedAvgAggregator()

	cases := []struct {
		desc    string
		updates []fl.Update
		want    model.Snapshot
		err     error
	}{
		{
			desc: "single update is returned unchanged",
			updates: []fl.Update{
				{WorkerID: "alice", Model: snapshot(t, map[string][]float64{"w": {0.1, 0.7, -3}, "b": {2}}, "w", "b")},
			},
			want: snapshot(t, map[string][]float64{"w": {0.1, 0.7, -3}, "b": {2}}, "w", "b"),
		},
		{
			desc: "two updates average to the midpoint",
			updates: []fl.Update{
				{WorkerID: "alice", Model: snapshot(t, map[string][]float64{"w": {1, 2}}, "w")},
				{WorkerID: "bob", Model: snapshot(t, map[string][]float64{"w": {3, 6}}, "w")},
			},
			want: snapshot(t, map[string][]float64{"w": {2, 4}}, "w"),
		},
		{
			desc: "uniform weighting ignores sample counts",
			updates: []fl.Update{
				{WorkerID: "alice", NumSamples: 1000, Model: snapshot(t, map[string][]float64{"w": {0}}, "w")},
				{WorkerID: "bob", NumSamples: 1, Model: snapshot(t, map[string][]float64{"w": {9}}, "w")},
				{WorkerID: "charlie", NumSamples: 10, Model: snapshot(t, map[string][]float64{"w": {3}}, "w")},
			},
			want: snapshot(t, map[string][]float64{"w": {4}}, "w"),
		},
		{
			desc: "layer missing from some updates is averaged over the rest",
			updates: []fl.Update{
				{WorkerID: "alice", Model: snapshot(t, map[string][]float64{"w": {2}, "extra": {10}}, "w", "extra")},
				{WorkerID: "bob", Model: snapshot(t, map[string][]float64{"w": {4}}, "w")},
			},
			want: snapshot(t, map[string][]float64{"w": {3}, "extra": {10}}, "w", "extra"),
		},
		{
			desc:    "no updates",
			updates: nil,
			err:     fl.ErrNoUpdates,
		},
		{
			desc: "shape mismatch",
			updates: []fl.Update{
				{WorkerID: "alice", Model: snapshot(t, map[string][]float64{"w": {1, 2}}, "w")},
				{WorkerID: "bob", Model: snapshot(t, map[string][]float64{"w": {1, 2, 3}}, "w")},
			},
			err: fl.ErrShapeMismatch,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := agg.Aggregate(tc.updates)
			if tc.err != nil {
				assert.True(t, errors.Is(err, tc.err), "expected %v, got %v", tc.err, err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFedAvgKeysAreUnion(t *testing.T) {
	updates := []fl.Update{
		{WorkerID: "charlie", Model: snapshot(t, map[string][]float64{"c": {1}}, "c")},
		{WorkerID: "alice", Model: snapshot(t, map[string][]float64{"a": {1}, "shared": {1}}, "a", "shared")},
		{WorkerID: "bob", Model: snapshot(t, map[string][]float64{"shared": {3}, "b": {1}}, "shared", "b")},
	}

	got, err := fl.NewFedAvgAggregator().Aggregate(updates)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c", "shared"}, got.Names())
	assert.Equal(t, []string{"a", "shared", "b", "c"}, got.Names())

	shared, ok := got.Get("shared")
	require.True(t, ok)
	assert.Equal(t, []float64{2}, shared.Data)
}

func TestFedAvgDoesNotMutateInputs(t *testing.T) {
	a := snapshot(t, map[string][]float64{"w": {1}}, "w")
	b := snapshot(t, map[string][]float64{"w": {3}}, "w")

	got, err := fl.NewFedAvgAggregator().Aggregate([]fl.Update{{WorkerID: "a", Model: a}, {WorkerID: "b", Model: b}})
	require.NoError(t, err)
	got.Layers[0].Tensor.Data[0] = 42

	w, _ := a.Get("w")
	assert.Equal(t, []float64{1}, w.Data)
}

func TestWeightedFedAvg(t *testing.T) {
	agg := fl.NewWeightedFedAvgAggregator()

	got, err := agg.Aggregate([]fl.Update{
		{WorkerID: "alice", NumSamples: 10, Model: snapshot(t, map[string][]float64{"w": {1, 2, 3}}, "w")},
		{WorkerID: "bob", NumSamples: 30, Model: snapshot(t, map[string][]float64{"w": {5, 6, 7}}, "w")},
	})
	require.NoError(t, err)
	w, _ := got.Get("w")
	assert.InDeltaSlice(t, []float64{4, 5, 6}, w.Data, 1e-12)

	_, err = agg.Aggregate([]fl.Update{
		{WorkerID: "alice", Model: snapshot(t, map[string][]float64{"w": {1}}, "w")},
	})
	assert.ErrorIs(t, err, fl.ErrZeroWeight)
}

func TestNewAggregator(t *testing.T) {
	for _, mode := range []string{"", fl.ModeMean, fl.ModeWeighted} {
		agg, err := fl.NewAggregator(mode)
		assert.NoError(t, err)
		assert.NotNil(t, agg)
	}

	_, err := fl.NewAggregator("median")
	assert.ErrorIs(t, err, fl.ErrUnknownMode)
}

func TestUpdatesSkipsFailures(t *testing.T) {
	loss := 0.3
	m := snapshot(t, map[string][]float64{"w": {1}}, "w")

	results := []fl.Result{
		fl.Success("alice", fl.FitResponse{WorkerID: "alice", Model: &m, Loss: &loss, NumSamples: 4}),
		fl.Success("bob", fl.FitResponse{WorkerID: "bob"}),
		fl.Failure("charlie", fl.ErrWorkerTimeout),
	}

	assert.True(t, results[0].OK())
	assert.Equal(t, 0.3, results[0].Loss)
	assert.False(t, results[1].OK())
	assert.ErrorIs(t, results[1].Err, fl.ErrNoModel)
	assert.False(t, results[2].OK())

	updates := fl.Updates(results)
	require.Len(t, updates, 1)
	assert.Equal(t, "alice", updates[0].WorkerID)
	assert.Equal(t, uint64(4), updates[0].NumSamples)
}
