package model

import "errors"

var (
	ErrInvalidTensor   = errors.New("tensor data does not match its shape")
	ErrEmptyLayerName  = errors.New("empty layer name")
	ErrDuplicateLayer  = errors.New("duplicate layer name")
	ErrVersionMismatch = errors.New("model protocol version mismatch")
)
