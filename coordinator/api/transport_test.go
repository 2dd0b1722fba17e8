package api_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/coordinator/api"
	"github.com/absmach/fedcoord/coordinator/mocks"
	pkgerrors "github.com/absmach/fedcoord/pkg/errors"
	"github.com/absmach/fedcoord/pkg/model"
	"github.com/absmach/fedcoord/pkg/round"
	"github.com/absmach/fedcoord/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) (*httptest.Server, *mocks.MockService) {
	t.Helper()

	svc := new(mocks.MockService)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := httptest.NewServer(api.MakeHandler(svc, logger, "test-instance"))
	t.Cleanup(ts.Close)

	return ts, svc
}

func get(t *testing.T, url string) (int, map[string]any) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	return resp.StatusCode, body
}

func TestStatus(t *testing.T) {
	ts, svc := newServer(t)

	acc := 0.91
	svc.On("Status", mock.Anything).Return(coordinator.Status{
		RunID:        "run",
		State:        coordinator.StateRunning,
		Round:        3,
		Rounds:       40,
		LearningRate: 0.098,
		Trainers:     3,
		Accuracy:     &acc,
	}, nil)

	code, body := get(t, ts.URL+"/status")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "running", body["state"])
	assert.Equal(t, float64(3), body["round"])
	assert.Equal(t, 0.91, body["accuracy"])
}

func TestListWorkers(t *testing.T) {
	ts, svc := newServer(t)

	page := worker.WorkerPage{
		Offset: 1,
		Limit:  2,
		Total:  4,
		Workers: []worker.Worker{
			{ID: "bob", Name: "Bob", Address: "ws://localhost:8778", Role: "trainer"},
			{ID: "charlie", Name: "Charlie", Address: "ws://localhost:8779", Role: "trainer"},
		},
	}

	cases := []struct {
		desc   string
		query  string
		call   bool
		status int
	}{
		{
			desc:   "valid page",
			query:  "?offset=1&limit=2",
			call:   true,
			status: http.StatusOK,
		},
		{
			desc:   "non numeric offset",
			query:  "?offset=abc",
			status: http.StatusBadRequest,
		},
		{
			desc:   "limit too large",
			query:  "?limit=100000",
			status: http.StatusBadRequest,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			if tc.call {
				svc.On("ListWorkers", mock.Anything, uint64(1), uint64(2)).Return(page, nil).Once()
			}

			code, body := get(t, ts.URL+"/workers"+tc.query)
			assert.Equal(t, tc.status, code)
			if tc.call {
				assert.Equal(t, float64(4), body["total"])
				assert.Len(t, body["workers"], 2)
			}
		})
	}
	svc.AssertExpectations(t)
}

func TestRounds(t *testing.T) {
	ts, svc := newServer(t)

	rec := round.Record{RunID: "run", Round: 2, Status: round.StatusCompleted, Contributors: 3}
	svc.On("GetRound", mock.Anything, uint64(2)).Return(rec, nil)
	svc.On("GetRound", mock.Anything, uint64(9)).Return(round.Record{}, pkgerrors.ErrNotFound)
	svc.On("ListRounds", mock.Anything, uint64(0), uint64(100)).Return(round.Page{
		Limit:  100,
		Total:  1,
		Rounds: []round.Record{rec},
	}, nil)

	cases := []struct {
		desc   string
		path   string
		status int
	}{
		{desc: "list rounds", path: "/rounds", status: http.StatusOK},
		{desc: "get round", path: "/rounds/2", status: http.StatusOK},
		{desc: "missing round", path: "/rounds/9", status: http.StatusNotFound},
		{desc: "round zero", path: "/rounds/0", status: http.StatusBadRequest},
		{desc: "invalid round", path: "/rounds/first", status: http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			code, _ := get(t, ts.URL+tc.path)
			assert.Equal(t, tc.status, code)
		})
	}
}

func TestGlobalModel(t *testing.T) {
	ts, svc := newServer(t)

	snap, err := model.New(
		model.Layer{Name: "fc.weight", Tensor: model.Tensor{Shape: []int{2, 2}, Data: []float64{1, 2, 3, 4}}},
		model.Layer{Name: "fc.bias", Tensor: model.Tensor{Shape: []int{2}, Data: []float64{0, 1}}},
	)
	require.NoError(t, err)

	svc.On("GlobalModel", mock.Anything).Return(coordinator.GlobalModel{RunID: "run", Round: 5, Model: snap}, nil).Once()
	code, body := get(t, ts.URL+"/model")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(6), body["num_params"])
	assert.Equal(t, float64(5), body["round"])

	svc.On("GlobalModel", mock.Anything).Return(coordinator.GlobalModel{}, coordinator.ErrNoModel).Once()
	code, _ = get(t, ts.URL+"/model")
	assert.Equal(t, http.StatusNotFound, code)

	svc.On("GlobalModel", mock.Anything).Return(coordinator.GlobalModel{}, errors.New("boom")).Once()
	code, _ = get(t, ts.URL+"/model")
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestCheckpoint(t *testing.T) {
	ts, svc := newServer(t)

	snap, err := model.New(
		model.Layer{Name: "fc.bias", Tensor: model.Tensor{Shape: []int{3}, Data: []float64{0, 1, 2}}},
	)
	require.NoError(t, err)

	svc.On("Checkpoint", mock.Anything, round.FinalLabel).Return(coordinator.GlobalModel{RunID: "run", Round: 40, Model: snap}, nil)
	svc.On("Checkpoint", mock.Anything, "round-99").Return(coordinator.GlobalModel{}, pkgerrors.ErrNotFound)

	cases := []struct {
		desc   string
		path   string
		status int
		round  float64
	}{
		{desc: "final model", path: "/checkpoints/final", status: http.StatusOK, round: 40},
		{desc: "unknown label", path: "/checkpoints/round-99", status: http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			code, body := get(t, ts.URL+tc.path)
			assert.Equal(t, tc.status, code)
			if tc.status == http.StatusOK {
				assert.Equal(t, tc.round, body["round"])
				assert.Equal(t, float64(3), body["num_params"])
			}
		})
	}
}
