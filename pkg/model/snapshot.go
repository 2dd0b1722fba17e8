// Package model holds the parameter snapshots exchanged between the
// coordinator and its workers.
package model

import (
	"fmt"
	"slices"
)

// Tensor is a dense row-major parameter tensor.
type Tensor struct {
	Shape []int     `json:"shape" cbor:"shape"`
	Data  []float64 `json:"data"  cbor:"data"`
}

// NewTensor validates that data fills shape exactly.
func NewTensor(shape []int, data []float64) (Tensor, error) {
	t := Tensor{Shape: shape, Data: data}
	if err := t.Validate(); err != nil {
		return Tensor{}, err
	}

	return t, nil
}

func Zeros(shape ...int) Tensor {
	t := Tensor{Shape: slices.Clone(shape)}
	t.Data = make([]float64, t.Size())

	return t
}

// Size is the number of elements described by the shape.
func (t Tensor) Size() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range t.Shape {
		n *= d
	}

	return n
}

func (t Tensor) Validate() error {
	for _, d := range t.Shape {
		if d <= 0 {
			return fmt.Errorf("%w: non-positive dimension %d", ErrInvalidTensor, d)
		}
	}
	if len(t.Data) != t.Size() {
		return fmt.Errorf("%w: shape %v wants %d values, got %d", ErrInvalidTensor, t.Shape, t.Size(), len(t.Data))
	}

	return nil
}

func (t Tensor) SameShape(o Tensor) bool {
	return slices.Equal(t.Shape, o.Shape)
}

func (t Tensor) Clone() Tensor {
	return Tensor{
		Shape: slices.Clone(t.Shape),
		Data:  slices.Clone(t.Data),
	}
}

type Layer struct {
	Name   string `json:"name"   cbor:"name"`
	Tensor Tensor `json:"tensor" cbor:"tensor"`
}

// Snapshot is an ordered mapping from layer name to parameter tensor.
// A snapshot handed to another party must not be mutated afterwards;
// callers that need to change it work on a Clone.
type Snapshot struct {
	Layers []Layer `json:"layers" cbor:"layers"`
}

func New(layers ...Layer) (Snapshot, error) {
	s := Snapshot{Layers: make([]Layer, 0, len(layers))}
	for _, l := range layers {
		if _, ok := s.Get(l.Name); ok {
			return Snapshot{}, fmt.Errorf("%w: %s", ErrDuplicateLayer, l.Name)
		}
		s.Layers = append(s.Layers, l)
	}
	if err := s.Validate(); err != nil {
		return Snapshot{}, err
	}

	return s, nil
}

// Set replaces the tensor of an existing layer or appends a new one.
func (s *Snapshot) Set(name string, t Tensor) {
	for i := range s.Layers {
		if s.Layers[i].Name == name {
			s.Layers[i].Tensor = t

			return
		}
	}
	s.Layers = append(s.Layers, Layer{Name: name, Tensor: t})
}

func (s Snapshot) Get(name string) (Tensor, bool) {
	for _, l := range s.Layers {
		if l.Name == name {
			return l.Tensor, true
		}
	}

	return Tensor{}, false
}

// Names returns the layer names in insertion order.
func (s Snapshot) Names() []string {
	names := make([]string, len(s.Layers))
	for i, l := range s.Layers {
		names[i] = l.Name
	}

	return names
}

func (s Snapshot) Len() int {
	return len(s.Layers)
}

// NumParams is the total number of scalar parameters.
func (s Snapshot) NumParams() int {
	n := 0
	for _, l := range s.Layers {
		n += len(l.Tensor.Data)
	}

	return n
}

func (s Snapshot) Clone() Snapshot {
	c := Snapshot{Layers: make([]Layer, len(s.Layers))}
	for i, l := range s.Layers {
		c.Layers[i] = Layer{Name: l.Name, Tensor: l.Tensor.Clone()}
	}

	return c
}

func (s Snapshot) Validate() error {
	seen := make(map[string]struct{}, len(s.Layers))
	for _, l := range s.Layers {
		if l.Name == "" {
			return ErrEmptyLayerName
		}
		if _, ok := seen[l.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateLayer, l.Name)
		}
		seen[l.Name] = struct{}{}
		if err := l.Tensor.Validate(); err != nil {
			return fmt.Errorf("layer %s: %w", l.Name, err)
		}
	}

	return nil
}
