package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/absmach/fedcoord/pkg/api"
	pkgerrors "github.com/absmach/fedcoord/pkg/errors"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeError(t *testing.T) {
	cases := []struct {
		desc   string
		err    error
		status int
	}{
		{
			desc:   "validation error",
			err:    errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData),
			status: http.StatusBadRequest,
		},
		{
			desc:   "malformed entity",
			err:    fmt.Errorf("decode: %w", pkgerrors.ErrMalformed),
			status: http.StatusBadRequest,
		},
		{
			desc:   "missing entity",
			err:    fmt.Errorf("round 4 %w", pkgerrors.ErrNotFound),
			status: http.StatusNotFound,
		},
		{
			desc:   "conflicting state",
			err:    fmt.Errorf("run in progress: %w", pkgerrors.ErrConflict),
			status: http.StatusConflict,
		},
		{
			desc:   "unexpected error",
			err:    errors.New("disk on fire"),
			status: http.StatusInternalServerError,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			rec := httptest.NewRecorder()
			api.EncodeError(context.Background(), tc.err, rec)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, api.ContentType, rec.Header().Get("Content-Type"))

			var body struct {
				Error string `json:"error"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tc.err.Error(), body.Error)
		})
	}
}
