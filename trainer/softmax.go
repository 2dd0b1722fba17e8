package trainer

import (
	"errors"
	"fmt"
	"math"

	"github.com/absmach/fedcoord/pkg/model"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	LayerWeight = "fc.weight"
	LayerBias   = "fc.bias"
)

var ErrModelLayout = errors.New("model does not match the softmax layout")

// Softmax is a single fully connected layer followed by softmax, the
// smallest model that exercises federated averaging end to end.
type Softmax struct {
	W *mat.Dense // classes x features
	B []float64
}

// NewSoftmax initialises weights with small seeded Gaussian noise.
func NewSoftmax(features, classes int, seed uint64) *Softmax {
	dist := distuv.Normal{Mu: 0, Sigma: 0.01, Src: rand.NewSource(seed)}
	w := make([]float64, classes*features)
	for i := range w {
		w[i] = dist.Rand()
	}

	return &Softmax{
		W: mat.NewDense(classes, features, w),
		B: make([]float64, classes),
	}
}

// FromSnapshot rebuilds a model from fc.weight and fc.bias.
func FromSnapshot(s model.Snapshot) (*Softmax, error) {
	w, ok := s.Get(LayerWeight)
	if !ok || len(w.Shape) != 2 {
		return nil, fmt.Errorf("%w: missing or malformed %s", ErrModelLayout, LayerWeight)
	}
	b, ok := s.Get(LayerBias)
	if !ok || len(b.Shape) != 1 || b.Shape[0] != w.Shape[0] {
		return nil, fmt.Errorf("%w: missing or malformed %s", ErrModelLayout, LayerBias)
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}

	return &Softmax{
		W: mat.NewDense(w.Shape[0], w.Shape[1], append([]float64(nil), w.Data...)),
		B: append([]float64(nil), b.Data...),
	}, nil
}

func (m *Softmax) Dims() (features, classes int) {
	classes, features = m.W.Dims()

	return features, classes
}

func (m *Softmax) Snapshot() model.Snapshot {
	classes, features := m.W.Dims()
	w := make([]float64, 0, classes*features)
	for i := range classes {
		w = append(w, m.W.RawRowView(i)...)
	}

	var s model.Snapshot
	s.Set(LayerWeight, model.Tensor{Shape: []int{classes, features}, Data: w})
	s.Set(LayerBias, model.Tensor{Shape: []int{classes}, Data: append([]float64(nil), m.B...)})

	return s
}

// Probabilities returns an n x classes matrix of row-wise softmax outputs.
func (m *Softmax) Probabilities(x *mat.Dense) *mat.Dense {
	n, _ := x.Dims()
	classes, _ := m.W.Dims()

	p := mat.NewDense(n, classes, nil)
	p.Mul(x, m.W.T())
	for i := range n {
		row := p.RawRowView(i)
		top := math.Inf(-1)
		for j := range row {
			row[j] += m.B[j]
			top = math.Max(top, row[j])
		}
		var sum float64
		for j := range row {
			row[j] = math.Exp(row[j] - top)
			sum += row[j]
		}
		for j := range row {
			row[j] /= sum
		}
	}

	return p
}

// Loss is the mean cross-entropy of p against labels y.
func Loss(p *mat.Dense, y []int) float64 {
	var loss float64
	for i, label := range y {
		loss -= math.Log(math.Max(p.At(i, label), 1e-12))
	}

	return loss / float64(len(y))
}

// Predict returns the arg-max class for each row of p.
func Predict(p *mat.Dense) []int {
	n, _ := p.Dims()
	out := make([]int, n)
	for i := range n {
		row := p.RawRowView(i)
		best := 0
		for j := range row {
			if row[j] > row[best] {
				best = j
			}
		}
		out[i] = best
	}

	return out
}

// Step applies one gradient descent update on the batch and returns the
// batch loss measured before the update.
func (m *Softmax) Step(x *mat.Dense, y []int, lr float64) float64 {
	n, _ := x.Dims()
	p := m.Probabilities(x)
	loss := Loss(p, y)

	// dL/dlogits = (p - onehot(y)) / n
	for i, label := range y {
		p.Set(i, label, p.At(i, label)-1)
	}
	p.Scale(1/float64(n), p)

	var grad mat.Dense
	grad.Mul(p.T(), x)
	grad.Scale(lr, &grad)
	m.W.Sub(m.W, &grad)

	classes := len(m.B)
	for j := range classes {
		var g float64
		for i := range n {
			g += p.At(i, j)
		}
		m.B[j] -= lr * g
	}

	return loss
}
