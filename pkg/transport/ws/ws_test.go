package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type fakeBackend struct {
	block chan struct{}
}

func (b *fakeBackend) Info(context.Context) (fl.WorkerInfo, error) {
	return fl.WorkerInfo{ID: "alice", Role: fl.RoleTrainer, ProtocolVersion: model.ProtocolVersion, NumSamples: 12}, nil
}

func (b *fakeBackend) Fit(ctx context.Context, req fl.FitRequest) (fl.FitResponse, error) {
	if req.Device == "block" {
		select {
		case <-b.block:
		case <-ctx.Done():
			return fl.FitResponse{}, ctx.Err()
		}
	}
	if req.BatchSize == 0 {
		return fl.FitResponse{WorkerID: "alice"}, nil
	}

	out := req.Model.Clone()
	for i := range out.Layers {
		for j := range out.Layers[i].Tensor.Data {
			out.Layers[i].Tensor.Data[j] += req.LearningRate
		}
	}
	loss := float64(req.Round)

	return fl.FitResponse{WorkerID: "alice", Model: &out, Loss: &loss, NumSamples: 12}, nil
}

func (b *fakeBackend) Evaluate(_ context.Context, req fl.EvalRequest) (fl.EvalResponse, error) {
	if req.DatasetKey != "testing" {
		return fl.EvalResponse{}, fmt.Errorf("unknown dataset %q", req.DatasetKey)
	}

	return fl.EvalResponse{WorkerID: "alice", Label: req.Label, Correct: 3, Total: 4, Histogram: []uint64{1, 3}}, nil
}

func newTestClient(t *testing.T, backend Backend) (*Client, *httptest.Server) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(NewServer(backend, logger))
	t.Cleanup(srv.Close)

	client, err := Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, srv
}

func TestHello(t *testing.T) {
	client, _ := newTestClient(t, &fakeBackend{})

	info, err := client.Hello(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", info.ID)
	assert.Equal(t, fl.RoleTrainer, info.Role)
	assert.Equal(t, model.ProtocolVersion, info.ProtocolVersion)
	assert.Equal(t, uint64(12), info.NumSamples)
}

func TestFit(t *testing.T) {
	client, _ := newTestClient(t, &fakeBackend{})

	snap, err := model.New(
		model.Layer{Name: "fc.weight", Tensor: model.Tensor{Shape: []int{2, 2}, Data: []float64{1, 2, 3, 4}}},
		model.Layer{Name: "fc.bias", Tensor: model.Tensor{Shape: []int{2}, Data: []float64{0, 0}}},
	)
	require.NoError(t, err)

	cases := []struct {
		desc      string
		req       fl.FitRequest
		wantModel bool
	}{
		{
			desc:      "trained model is returned",
			req:       fl.FitRequest{Round: 3, Model: snap, BatchSize: 64, MaxBatches: 1, LearningRate: 0.5},
			wantModel: true,
		},
		{
			desc: "worker without data returns no model",
			req:  fl.FitRequest{Round: 1, Model: snap},
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			resp, err := client.Fit(context.Background(), tc.req)
			require.NoError(t, err)
			assert.Equal(t, "alice", resp.WorkerID)
			if !tc.wantModel {
				assert.Nil(t, resp.Model)
				assert.Nil(t, resp.Loss)

				return
			}
			require.NotNil(t, resp.Model)
			require.NotNil(t, resp.Loss)
			assert.Equal(t, 3.0, *resp.Loss)
			assert.Equal(t, snap.Names(), resp.Model.Names())
			w, _ := resp.Model.Get("fc.weight")
			assert.Equal(t, []float64{1.5, 2.5, 3.5, 4.5}, w.Data)
		})
	}
}

func TestEvaluate(t *testing.T) {
	client, _ := newTestClient(t, &fakeBackend{})

	resp, err := client.Evaluate(context.Background(), fl.EvalRequest{Label: "federated model", DatasetKey: "testing", BatchSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, "federated model", resp.Label)
	assert.Equal(t, 0.75, resp.Accuracy())
	assert.Equal(t, []uint64{1, 3}, resp.Histogram)

	_, err = client.Evaluate(context.Background(), fl.EvalRequest{DatasetKey: "training"})
	assert.ErrorIs(t, err, ErrRemote)
	assert.Contains(t, err.Error(), "unknown dataset")
}

func TestUnknownMethod(t *testing.T) {
	client, _ := newTestClient(t, &fakeBackend{})

	err := client.call(context.Background(), "shutdown", nil, nil)
	assert.ErrorIs(t, err, ErrRemote)
	assert.Contains(t, err.Error(), ErrUnknownMethod.Error())
}

func TestConcurrentCalls(t *testing.T) {
	client, _ := newTestClient(t, &fakeBackend{})

	snap, err := model.New(model.Layer{Name: "w", Tensor: model.Tensor{Shape: []int{1}, Data: []float64{0}}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := client.Fit(context.Background(), fl.FitRequest{Round: uint64(i), Model: snap, BatchSize: 1, LearningRate: float64(i)})
			if assert.NoError(t, err) && assert.NotNil(t, resp.Model) {
				w, _ := resp.Model.Get("w")
				assert.Equal(t, []float64{float64(i)}, w.Data)
				assert.Equal(t, float64(i), *resp.Loss)
			}
		}()
	}
	wg.Wait()
}

func TestCallContextCancel(t *testing.T) {
	backend := &fakeBackend{block: make(chan struct{})}
	defer close(backend.block)
	client, _ := newTestClient(t, backend)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Fit(ctx, fl.FitRequest{Device: "block", BatchSize: 1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	info, err := client.Hello(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", info.ID)
}

func TestCallAfterClose(t *testing.T) {
	client, _ := newTestClient(t, &fakeBackend{})
	require.NoError(t, client.Close())

	_, err := client.Hello(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDialErrors(t *testing.T) {
	_, err := Dial(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyAddress)

	srv := httptest.NewServer(nil)
	addr := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	_, err = Dial(context.Background(), addr)
	assert.Error(t, err)
}
