package schedule

import "math"

const (
	DefaultDecayFactor = 0.98
	DefaultFloorRatio  = 0.01
)

// Decay is a multiplicative learning-rate schedule with a floor at
// FloorRatio times the initial rate.
type Decay struct {
	Initial    float64
	Factor     float64
	FloorRatio float64
}

func NewDecay(initial float64) Decay {
	return Decay{
		Initial:    initial,
		Factor:     DefaultDecayFactor,
		FloorRatio: DefaultFloorRatio,
	}
}

func (d Decay) Floor() float64 {
	return d.Initial * d.FloorRatio
}

// Next returns the rate for the following round.
func (d Decay) Next(lr float64) float64 {
	return math.Max(d.Factor*lr, d.Floor())
}

// At returns the rate after n decay steps.
func (d Decay) At(n uint64) float64 {
	return math.Max(math.Pow(d.Factor, float64(n))*d.Initial, d.Floor())
}

// Rates lists the rate used in each of the given rounds, starting at
// round 1 with the initial rate.
func (d Decay) Rates(rounds uint64) []float64 {
	rates := make([]float64, 0, rounds)
	lr := d.Initial
	for range rounds {
		rates = append(rates, lr)
		lr = d.Next(lr)
	}

	return rates
}
