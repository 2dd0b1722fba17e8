package trainer

import (
	"fmt"
	"slices"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	DatasetTraining = "training"
	DatasetTesting  = "testing"
)

// DatasetConfig describes a synthetic classification problem made of one
// Gaussian blob per class. Blob centres depend on Seed only, so workers
// sharing a seed agree on the problem while drawing different samples.
type DatasetConfig struct {
	Classes         int     `toml:"classes"`
	Features        int     `toml:"features"`
	SamplesPerClass int     `toml:"samples_per_class"`
	Spread          float64 `toml:"spread"`
	Seed            uint64  `toml:"seed"`
}

// Validate rejects configurations that cannot produce a sample matrix.
func (c DatasetConfig) Validate() error {
	switch {
	case c.Classes <= 0:
		return fmt.Errorf("%w: classes must be positive", ErrInvalidDataset)
	case c.Features <= 0:
		return fmt.Errorf("%w: features must be positive", ErrInvalidDataset)
	case c.SamplesPerClass <= 0:
		return fmt.Errorf("%w: samples_per_class must be positive", ErrInvalidDataset)
	case c.Spread < 0:
		return fmt.Errorf("%w: spread must not be negative", ErrInvalidDataset)
	}

	return nil
}

func DefaultDatasetConfig() DatasetConfig {
	return DatasetConfig{
		Classes:         10,
		Features:        16,
		SamplesPerClass: 200,
		Spread:          1.0,
		Seed:            1,
	}
}

type Dataset struct {
	X       *mat.Dense
	Labels  []int
	Classes int
}

// Synthetic draws SamplesPerClass points for each class. Different stream
// values yield independent samples around the same centres.
func Synthetic(cfg DatasetConfig, stream uint64) Dataset {
	centres := distuv.Normal{Mu: 0, Sigma: 3, Src: rand.NewSource(cfg.Seed)}
	noise := distuv.Normal{Mu: 0, Sigma: cfg.Spread, Src: rand.NewSource(cfg.Seed*7919 + stream + 1)}

	mu := make([][]float64, cfg.Classes)
	for c := range mu {
		mu[c] = make([]float64, cfg.Features)
		for f := range mu[c] {
			mu[c][f] = centres.Rand()
		}
	}

	n := cfg.Classes * cfg.SamplesPerClass
	if n == 0 {
		return Dataset{Classes: cfg.Classes}
	}

	data := make([]float64, 0, n*cfg.Features)
	labels := make([]int, 0, n)
	for range cfg.SamplesPerClass {
		for c := range cfg.Classes {
			for f := range cfg.Features {
				data = append(data, mu[c][f]+noise.Rand())
			}
			labels = append(labels, c)
		}
	}

	return Dataset{
		X:       mat.NewDense(n, cfg.Features, data),
		Labels:  labels,
		Classes: cfg.Classes,
	}
}

func (d Dataset) Len() int {
	return len(d.Labels)
}

// Filter keeps only the samples whose label is in classes. An empty
// classes list keeps everything.
func (d Dataset) Filter(classes []int) Dataset {
	if len(classes) == 0 || d.Len() == 0 {
		return d
	}

	_, features := d.X.Dims()
	var (
		data   []float64
		labels []int
	)
	for i, l := range d.Labels {
		if !slices.Contains(classes, l) {
			continue
		}
		data = append(data, d.X.RawRowView(i)...)
		labels = append(labels, l)
	}
	if len(labels) == 0 {
		return Dataset{Classes: d.Classes}
	}

	return Dataset{
		X:       mat.NewDense(len(labels), features, data),
		Labels:  labels,
		Classes: d.Classes,
	}
}

// Batch returns rows [start, start+size) wrapping around the end.
func (d Dataset) Batch(start, size int) (*mat.Dense, []int) {
	n := d.Len()
	if size > n {
		size = n
	}
	_, features := d.X.Dims()
	x := mat.NewDense(size, features, nil)
	y := make([]int, size)
	for i := range size {
		row := (start + i) % n
		x.SetRow(i, d.X.RawRowView(row))
		y[i] = d.Labels[row]
	}

	return x, y
}
