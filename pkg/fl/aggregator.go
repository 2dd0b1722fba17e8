package fl

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/absmach/fedcoord/pkg/model"
)

const (
	ModeMean     = "mean"
	ModeWeighted = "weighted"
)

type fedAvg struct {
	weighted bool
}

// NewFedAvgAggregator averages every parameter uniformly over the
// contributing updates.
func NewFedAvgAggregator() Aggregator {
	return &fedAvg{}
}

// NewWeightedFedAvgAggregator weights every update by its sample count.
func NewWeightedFedAvgAggregator() Aggregator {
	return &fedAvg{weighted: true}
}

func NewAggregator(mode string) (Aggregator, error) {
	switch mode {
	case "", ModeMean:
		return NewFedAvgAggregator(), nil
	case ModeWeighted:
		return NewWeightedFedAvgAggregator(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}
}

type accumulator struct {
	shape  []int
	sum    []float64
	weight float64
}

// Aggregate computes the parameter-wise mean. A layer present in only
// some updates is averaged over the updates that carry it.
func (f *fedAvg) Aggregate(updates []Update) (model.Snapshot, error) {
	if len(updates) == 0 {
		return model.Snapshot{}, ErrNoUpdates
	}

	sorted := slices.Clone(updates)
	slices.SortStableFunc(sorted, func(a, b Update) int {
		return cmp.Compare(a.WorkerID, b.WorkerID)
	})

	var order []string
	accs := make(map[string]*accumulator)

	for _, u := range sorted {
		if err := u.Model.Validate(); err != nil {
			return model.Snapshot{}, fmt.Errorf("update from %s: %w", u.WorkerID, err)
		}

		w := 1.0
		if f.weighted {
			w = float64(u.NumSamples)
		}

		for _, l := range u.Model.Layers {
			acc, ok := accs[l.Name]
			if !ok {
				acc = &accumulator{
					shape: slices.Clone(l.Tensor.Shape),
					sum:   make([]float64, len(l.Tensor.Data)),
				}
				accs[l.Name] = acc
				order = append(order, l.Name)
			}
			if !slices.Equal(acc.shape, l.Tensor.Shape) {
				return model.Snapshot{}, fmt.Errorf("%w: layer %s from %s has shape %v, expected %v",
					ErrShapeMismatch, l.Name, u.WorkerID, l.Tensor.Shape, acc.shape)
			}
			for i, v := range l.Tensor.Data {
				acc.sum[i] += w * v
			}
			acc.weight += w
		}
	}

	out := model.Snapshot{Layers: make([]model.Layer, 0, len(order))}
	for _, name := range order {
		acc := accs[name]
		if acc.weight == 0 {
			return model.Snapshot{}, fmt.Errorf("%w: layer %s", ErrZeroWeight, name)
		}
		data := make([]float64, len(acc.sum))
		for i, s := range acc.sum {
			data[i] = s / acc.weight
		}
		out.Layers = append(out.Layers, model.Layer{
			Name:   name,
			Tensor: model.Tensor{Shape: acc.shape, Data: data},
		})
	}

	return out, nil
}
