package api

import (
	"errors"

	"github.com/absmach/fedcoord/pkg/api"
	pkgerrors "github.com/absmach/fedcoord/pkg/errors"
)

var errLimitSize = errors.New("limit exceeds maximum size")

type roundReq struct {
	round uint64
}

func (r *roundReq) validate() error {
	if r.round == 0 {
		return errors.New("round numbers start at 1")
	}

	return nil
}

type checkpointReq struct {
	label string
}

func (r *checkpointReq) validate() error {
	if r.label == "" {
		return pkgerrors.ErrEmptyKey
	}

	return nil
}

type listEntityReq struct {
	offset, limit uint64
}

func (e *listEntityReq) validate() error {
	if e.limit > api.MaxLimitSize {
		return errLimitSize
	}

	return nil
}
