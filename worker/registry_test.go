package worker_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/model"
	"github.com/absmach/fedcoord/worker"
	"github.com/absmach/fedcoord/worker/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func tutorialWorkers() []worker.Worker {
	return []worker.Worker{
		{ID: "alice", Address: "ws://localhost:8777", Role: fl.RoleTrainer, Classes: "0-3"},
		{ID: "bob", Name: "Bob", Address: "ws://localhost:8778", Role: fl.RoleTrainer, Classes: "4-6"},
		{ID: "charlie", Address: "ws://localhost:8779", Role: fl.RoleTrainer, Classes: "7-9"},
		{ID: "testing", Address: "ws://localhost:8780", Role: fl.RoleEvaluator},
	}
}

func TestNewRegistry(t *testing.T) {
	cases := []struct {
		desc    string
		workers func() []worker.Worker
		err     error
	}{
		{
			desc:    "tutorial layout",
			workers: tutorialWorkers,
		},
		{
			desc: "duplicate id",
			workers: func() []worker.Worker {
				ws := tutorialWorkers()
				ws[1].ID = "alice"

				return ws
			},
			err: worker.ErrDuplicateID,
		},
		{
			desc: "empty address",
			workers: func() []worker.Worker {
				ws := tutorialWorkers()
				ws[2].Address = ""

				return ws
			},
			err: worker.ErrEmptyAddress,
		},
		{
			desc: "empty id",
			workers: func() []worker.Worker {
				ws := tutorialWorkers()
				ws[0].ID = ""

				return ws
			},
			err: worker.ErrEmptyID,
		},
		{
			desc: "id clashes with the aggregate label",
			workers: func() []worker.Worker {
				ws := tutorialWorkers()
				ws[2].ID = fl.FederatedLabel

				return ws
			},
			err: worker.ErrReservedID,
		},
		{
			desc:    "no trainers",
			workers: func() []worker.Worker { return tutorialWorkers()[3:] },
			err:     worker.ErrNoTrainers,
		},
		{
			desc:    "no evaluator",
			workers: func() []worker.Worker { return tutorialWorkers()[:3] },
			err:     worker.ErrNoEvaluator,
		},
		{
			desc: "two evaluators",
			workers: func() []worker.Worker {
				ws := tutorialWorkers()
				ws[0].Role = fl.RoleEvaluator

				return ws
			},
			err: worker.ErrNoEvaluator,
		},
		{
			desc: "unknown role",
			workers: func() []worker.Worker {
				ws := tutorialWorkers()
				ws[0].Role = "observer"

				return ws
			},
			err: worker.ErrUnknownRole,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			reg, err := worker.NewRegistry(tc.workers())
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)

			trainers := reg.Trainers()
			require.Len(t, trainers, 3)
			assert.Equal(t, []string{"alice", "bob", "charlie"}, []string{trainers[0].ID, trainers[1].ID, trainers[2].ID})
			assert.NotEmpty(t, trainers[0].Name)
			assert.Equal(t, "Bob", trainers[1].Name)
			assert.Equal(t, "testing", reg.Evaluator().ID)
		})
	}
}

func newConnected(t *testing.T) (*worker.Registry, map[string]*mocks.MockClient) {
	t.Helper()

	reg, err := worker.NewRegistry(tutorialWorkers())
	require.NoError(t, err)

	clients := make(map[string]*mocks.MockClient)
	addrs := make(map[string]*mocks.MockClient)
	for _, w := range tutorialWorkers() {
		c := new(mocks.MockClient)
		c.On("Hello", mock.Anything).Return(fl.WorkerInfo{
			ID:              w.ID,
			Role:            w.Role,
			ProtocolVersion: model.ProtocolVersion,
			NumSamples:      100,
		}, nil)
		c.On("Close").Return(nil)
		clients[w.ID] = c
		addrs[w.Address] = c
	}

	err = reg.Connect(context.Background(), func(_ context.Context, addr string) (worker.Client, error) {
		return addrs[addr], nil
	})
	require.NoError(t, err)

	return reg, clients
}

func TestConnect(t *testing.T) {
	reg, clients := newConnected(t)

	for _, w := range reg.All() {
		assert.True(t, w.Online, w.ID)
		assert.Equal(t, uint64(100), w.Samples)
	}

	tr, err := reg.Trainer("bob")
	require.NoError(t, err)
	assert.Same(t, clients["bob"], tr)

	ev, err := reg.EvaluatorClient()
	require.NoError(t, err)
	assert.Same(t, clients["testing"], ev)

	_, err = reg.Trainer("dave")
	assert.ErrorIs(t, err, worker.ErrNotConnected)

	require.NoError(t, reg.Close())
	for _, c := range clients {
		c.AssertCalled(t, "Close")
	}
	_, err = reg.Trainer("bob")
	assert.ErrorIs(t, err, worker.ErrNotConnected)
}

func TestConnectFailures(t *testing.T) {
	errDial := errors.New("connection refused")

	cases := []struct {
		desc string
		info func(w worker.Worker) fl.WorkerInfo
		dial error
		err  error
	}{
		{
			desc: "dial failure",
			info: func(w worker.Worker) fl.WorkerInfo {
				return fl.WorkerInfo{ID: w.ID, Role: w.Role, ProtocolVersion: model.ProtocolVersion}
			},
			dial: errDial,
			err:  errDial,
		},
		{
			desc: "protocol version mismatch",
			info: func(w worker.Worker) fl.WorkerInfo {
				return fl.WorkerInfo{ID: w.ID, Role: w.Role, ProtocolVersion: model.ProtocolVersion + 1}
			},
			err: model.ErrVersionMismatch,
		},
		{
			desc: "identity mismatch",
			info: func(w worker.Worker) fl.WorkerInfo {
				return fl.WorkerInfo{ID: "mallory", Role: w.Role, ProtocolVersion: model.ProtocolVersion}
			},
			err: worker.ErrIdentityMismatch,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			reg, err := worker.NewRegistry(tutorialWorkers())
			require.NoError(t, err)

			var opened []*mocks.MockClient
			byAddr := make(map[string]worker.Worker)
			for _, w := range tutorialWorkers() {
				byAddr[w.Address] = w
			}

			dial := func(_ context.Context, addr string) (worker.Client, error) {
				w := byAddr[addr]
				if tc.dial != nil && w.ID == "charlie" {
					return nil, tc.dial
				}
				c := new(mocks.MockClient)
				c.On("Hello", mock.Anything).Return(tc.info(w), nil)
				c.On("Close").Return(nil)
				opened = append(opened, c)

				return c, nil
			}

			err = reg.Connect(context.Background(), dialSerial(dial))
			assert.ErrorIs(t, err, tc.err)
			for _, c := range opened {
				c.AssertCalled(t, "Close")
			}
			_, err = reg.Trainer("alice")
			assert.ErrorIs(t, err, worker.ErrNotConnected)
		})
	}
}

// dialSerial guards a test dialer that appends to a shared slice.
func dialSerial(d worker.Dialer) worker.Dialer {
	ch := make(chan struct{}, 1)

	return func(ctx context.Context, addr string) (worker.Client, error) {
		ch <- struct{}{}
		defer func() { <-ch }()

		return d(ctx, addr)
	}
}

func TestList(t *testing.T) {
	reg, err := worker.NewRegistry(tutorialWorkers())
	require.NoError(t, err)

	cases := []struct {
		desc   string
		offset uint64
		limit  uint64
		ids    []string
	}{
		{desc: "all", offset: 0, limit: 10, ids: []string{"alice", "bob", "charlie", "testing"}},
		{desc: "no limit", offset: 0, limit: 0, ids: []string{"alice", "bob", "charlie", "testing"}},
		{desc: "window", offset: 1, limit: 2, ids: []string{"bob", "charlie"}},
		{desc: "past the end", offset: 9, limit: 2, ids: []string{}},
		{desc: "huge limit", offset: 1, limit: math.MaxUint64, ids: []string{"bob", "charlie", "testing"}},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			page := reg.List(tc.offset, tc.limit)
			assert.Equal(t, uint64(4), page.Total)
			ids := []string{}
			for _, w := range page.Workers {
				ids = append(ids, w.ID)
				assert.False(t, w.Online)
			}
			assert.Equal(t, tc.ids, ids)
		})
	}

	w, err := reg.Get("charlie")
	require.NoError(t, err)
	assert.Equal(t, "7-9", w.Classes)

	_, err = reg.Get("dave")
	assert.ErrorIs(t, err, worker.ErrWorkerNotFound)
}
