package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/0x6flab/namegenerator"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/model"
	"github.com/absmach/fedcoord/pkg/transport/ws"
	"golang.org/x/sync/errgroup"
)

var (
	ErrDuplicateID      = errors.New("duplicate worker id")
	ErrEmptyID          = errors.New("empty worker id")
	ErrReservedID       = errors.New("worker id is reserved")
	ErrEmptyAddress     = errors.New("empty worker address")
	ErrUnknownRole      = errors.New("unknown worker role")
	ErrNoTrainers       = errors.New("at least one trainer is required")
	ErrNoEvaluator      = errors.New("exactly one evaluator is required")
	ErrNotConnected     = errors.New("worker is not connected")
	ErrIdentityMismatch = errors.New("worker reported a different identity")
	ErrWorkerNotFound   = errors.New("worker not found")

	namegen = namegenerator.NewGenerator()
)

// Client is a live connection to one worker.
type Client interface {
	fl.Trainer
	fl.Evaluator
	Hello(ctx context.Context) (fl.WorkerInfo, error)
	Close() error
}

// Dialer opens a connection to the worker at addr.
type Dialer func(ctx context.Context, addr string) (Client, error)

// DialWebsocket is the Dialer used in production.
func DialWebsocket(ctx context.Context, addr string) (Client, error) {
	c, err := ws.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}

	return c, nil
}

// Registry holds the fixed set of workers taking part in a run: the
// trainers in configuration order and a single evaluator.
type Registry struct {
	trainers  []Worker
	evaluator Worker

	mu      sync.RWMutex
	clients map[string]Client
	infos   map[string]fl.WorkerInfo
}

func NewRegistry(workers []Worker) (*Registry, error) {
	r := &Registry{
		clients: make(map[string]Client),
		infos:   make(map[string]fl.WorkerInfo),
	}

	seen := make(map[string]struct{}, len(workers))
	evaluators := 0
	for _, w := range workers {
		switch {
		case w.ID == "":
			return nil, ErrEmptyID
		case w.ID == fl.FederatedLabel:
			return nil, fmt.Errorf("%w: %q", ErrReservedID, w.ID)
		case w.Address == "":
			return nil, fmt.Errorf("%w: %s", ErrEmptyAddress, w.ID)
		}
		if _, ok := seen[w.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, w.ID)
		}
		seen[w.ID] = struct{}{}

		if w.Name == "" {
			w.Name = namegen.Generate()
		}

		switch w.Role {
		case fl.RoleTrainer:
			r.trainers = append(r.trainers, w)
		case fl.RoleEvaluator:
			evaluators++
			r.evaluator = w
		default:
			return nil, fmt.Errorf("%w: %q for %s", ErrUnknownRole, w.Role, w.ID)
		}
	}

	if len(r.trainers) == 0 {
		return nil, ErrNoTrainers
	}
	if evaluators != 1 {
		return nil, fmt.Errorf("%w: got %d", ErrNoEvaluator, evaluators)
	}

	return r, nil
}

// Connect dials every worker and checks its handshake. Any failure
// closes the connections opened so far.
func (r *Registry) Connect(ctx context.Context, dial Dialer) error {
	all := r.All()
	clients := make([]Client, len(all))
	infos := make([]fl.WorkerInfo, len(all))

	g, gctx := errgroup.WithContext(ctx)
	for i, w := range all {
		g.Go(func() error {
			c, err := dial(gctx, w.Address)
			if err != nil {
				return fmt.Errorf("worker %s: %w", w.ID, err)
			}
			clients[i] = c

			info, err := c.Hello(gctx)
			if err != nil {
				return fmt.Errorf("worker %s handshake: %w", w.ID, err)
			}
			if err := model.CheckVersion(info.ProtocolVersion); err != nil {
				return fmt.Errorf("worker %s: %w", w.ID, err)
			}
			if info.ID != w.ID || info.Role != w.Role {
				return fmt.Errorf("%w: configured %s/%s, got %s/%s",
					ErrIdentityMismatch, w.ID, w.Role, info.ID, info.Role)
			}
			infos[i] = info

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var errs []error
		for _, c := range clients {
			if c != nil {
				errs = append(errs, c.Close())
			}
		}

		return errors.Join(append([]error{err}, errs...)...)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, w := range all {
		r.clients[w.ID] = clients[i]
		r.infos[w.ID] = infos[i]
	}

	return nil
}

// Trainers returns the trainers in configuration order.
func (r *Registry) Trainers() []Worker {
	out := make([]Worker, len(r.trainers))
	for i, w := range r.trainers {
		out[i] = r.decorate(w)
	}

	return out
}

func (r *Registry) Evaluator() Worker {
	return r.decorate(r.evaluator)
}

// All lists the trainers followed by the evaluator.
func (r *Registry) All() []Worker {
	return append(r.Trainers(), r.Evaluator())
}

func (r *Registry) Get(id string) (Worker, error) {
	for _, w := range r.All() {
		if w.ID == id {
			return w, nil
		}
	}

	return Worker{}, fmt.Errorf("%w: %s", ErrWorkerNotFound, id)
}

func (r *Registry) List(offset, limit uint64) WorkerPage {
	all := r.All()
	total := uint64(len(all))

	page := WorkerPage{
		Offset:  offset,
		Limit:   limit,
		Total:   total,
		Workers: []Worker{},
	}
	if offset >= total {
		return page
	}
	end := total
	if limit > 0 && limit < total-offset {
		end = offset + limit
	}
	page.Workers = all[offset:end]

	return page
}

func (r *Registry) Trainer(id string) (fl.Trainer, error) {
	return r.client(id)
}

func (r *Registry) EvaluatorClient() (fl.Evaluator, error) {
	return r.client(r.evaluator.ID)
}

func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for id, c := range r.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("worker %s: %w", id, err))
		}
		delete(r.clients, id)
	}

	return errors.Join(errs...)
}

func (r *Registry) client(id string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, id)
	}

	return c, nil
}

func (r *Registry) decorate(w Worker) Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if info, ok := r.infos[w.ID]; ok {
		w.Samples = info.NumSamples
	}
	_, w.Online = r.clients[w.ID]

	return w
}
