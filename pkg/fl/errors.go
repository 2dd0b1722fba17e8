package fl

import "errors"

var (
	ErrNoUpdates     = errors.New("no updates provided for aggregation")
	ErrShapeMismatch = errors.New("layer shape differs between updates")
	ErrZeroWeight    = errors.New("total aggregation weight is zero")
	ErrUnknownMode   = errors.New("unknown aggregation mode")
	ErrNoModel       = errors.New("worker returned no model")
	ErrWorkerTimeout = errors.New("worker did not respond before the round deadline")
	ErrInvalidRange  = errors.New("invalid class range")
)
