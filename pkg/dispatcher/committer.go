package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/ember/pkg/balancer"
	"github.com/cuemby/ember/pkg/log"
	"github.com/cuemby/ember/pkg/metrics"
	"github.com/cuemby/ember/pkg/storage"
	"github.com/rs/zerolog"
)

var (
	// ErrStopped is returned once the committer has been stopped
	ErrStopped = errors.New("committer stopped")

	// ErrNotLeader is returned by replicated committers on a follower
	ErrNotLeader = errors.New("not the leader")
)

// Committer serialises transitions against the one authoritative scheduler.
// If ctx ends after the command was handed over, the transition may still
// be applied.
type Committer interface {
	Commit(ctx context.Context, cmd balancer.Command) (balancer.Result, error)
	State(ctx context.Context) (balancer.Scheduler, error)
}

// Local is a Committer that owns the scheduler in a single goroutine. Every
// command and read goes through its request channel, so transitions are
// applied one at a time in arrival order.
type Local struct {
	reqCh    chan request
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  atomic.Bool
	stopOnce sync.Once

	// owned by the run goroutine
	state balancer.Scheduler
	store storage.Store

	logger zerolog.Logger
}

type request struct {
	cmd   *balancer.Command
	reply chan response
}

type response struct {
	result balancer.Result
	state  balancer.Scheduler
	err    error
}

// NewLocal creates a committer holding initial. When store is not nil every
// successful transition is saved before the caller is answered.
func NewLocal(initial balancer.Scheduler, store storage.Store) *Local {
	return &Local{
		reqCh:  make(chan request),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		state:  initial,
		store:  store,
		logger: log.WithComponent("committer"),
	}
}

// Start begins serving requests
func (l *Local) Start() {
	if l.started.Swap(true) {
		return
	}
	go l.run()
}

// Stop stops serving and waits for the owner goroutine to exit
func (l *Local) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	if l.started.Load() {
		<-l.doneCh
	}
}

// Commit applies cmd
func (l *Local) Commit(ctx context.Context, cmd balancer.Command) (balancer.Result, error) {
	resp, err := l.do(ctx, &cmd)
	if err != nil {
		return balancer.Result{}, err
	}
	return resp.result, resp.err
}

// State returns the current scheduler value
func (l *Local) State(ctx context.Context) (balancer.Scheduler, error) {
	resp, err := l.do(ctx, nil)
	return resp.state, err
}

func (l *Local) do(ctx context.Context, cmd *balancer.Command) (response, error) {
	req := request{cmd: cmd, reply: make(chan response, 1)}

	select {
	case l.reqCh <- req:
	case <-l.stopCh:
		return response{}, ErrStopped
	case <-ctx.Done():
		return response{}, ctx.Err()
	}

	select {
	case resp := <-req.reply:
		return resp, nil
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
}

func (l *Local) run() {
	defer close(l.doneCh)

	for {
		select {
		case req := <-l.reqCh:
			req.reply <- l.handle(req)
		case <-l.stopCh:
			return
		}
	}
}

func (l *Local) handle(req request) response {
	if req.cmd == nil {
		return response{state: l.state}
	}

	res, next, err := l.state.Apply(*req.cmd)
	if err != nil {
		return response{state: l.state, err: err}
	}
	l.state = next
	l.persist()
	return response{result: res, state: next}
}

func (l *Local) persist() {
	if l.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.store.Save(ctx, l.state.Snapshot()); err != nil {
		metrics.SchedulingErrorsTotal.WithLabelValues("persist").Inc()
		l.logger.Error().Err(err).Msg("failed to persist scheduler snapshot")
	}
}
