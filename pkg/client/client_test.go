package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuemby/ember/pkg/api"
	"github.com/cuemby/ember/pkg/balancer"
	"github.com/cuemby/ember/pkg/balancer/balancertest"
	"github.com/cuemby/ember/pkg/dispatcher"
	"github.com/cuemby/ember/pkg/events"
	"github.com/cuemby/ember/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *events.Broker) {
	t.Helper()

	s, err := balancer.New(balancertest.DefaultConfig())
	require.NoError(t, err)
	local := dispatcher.NewLocal(s, nil)
	local.Start()
	t.Cleanup(local.Stop)

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	srv := api.NewServer(dispatcher.New(local, dispatcher.WithBroker(broker)), api.WithBroker(broker))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	c, err := NewClient(ts.URL)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, broker
}

func TestNewClientAddress(t *testing.T) {
	c, err := NewClient("127.0.0.1:7070")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:7070", c.baseURL.String())

	c, err = NewClient("https://ember.internal/")
	require.NoError(t, err)
	assert.Equal(t, "https://ember.internal", c.baseURL.String())

	_, err = NewClient("")
	assert.Error(t, err)
	_, err = NewClient("ftp://host")
	assert.Error(t, err)
}

func TestClientRoundTrip(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	ready := types.StateRefOf(types.WorkerStatusReady)
	w, err := c.AddWorker(ctx, api.AddWorkerRequest{ID: "w1", Environment: balancertest.Env("python"), State: &ready})
	require.NoError(t, err)
	assert.True(t, w.Ready)

	a, err := c.Submit(ctx, api.SubmitRequest{Environment: balancertest.Env("python"), Origin: "10.0.0.1", ID: "run-1"})
	require.NoError(t, err)
	assert.Equal(t, "w1", a.WorkerID)

	_, err = c.Submit(ctx, api.SubmitRequest{Environment: balancertest.Env("python"), ID: "run-1"})
	assert.ErrorIs(t, err, balancer.ErrDuplicateTaskID)
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 409, apiErr.StatusCode)

	workers, err := c.ListWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Len(t, workers[0].Backlog, 1)

	require.NoError(t, c.Complete(ctx, "w1", "run-1"))
	assert.ErrorIs(t, c.Cancel(ctx, "w1", "run-1"), balancer.ErrTaskNotFound)

	h, err := c.History(ctx)
	require.NoError(t, err)
	assert.Len(t, h.Records, 1)

	require.NoError(t, c.UpdateState(ctx, "w1", types.StateRefOf(types.WorkerStatusDraining)))
	_, err = c.Submit(ctx, api.SubmitRequest{Environment: balancertest.Env("python")})
	assert.ErrorIs(t, err, balancer.ErrNoWorkerAvailable)

	r, err := c.RemoveWorker(ctx, "w1")
	require.NoError(t, err)
	assert.Zero(t, r.Orphans)

	_, err = c.GetWorker(ctx, "w1")
	assert.ErrorIs(t, err, balancer.ErrWorkerNotFound)

	_, err = c.ClusterInfo(ctx)
	var notFound *Error
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, 404, notFound.StatusCode)
}

func TestClientEvents(t *testing.T) {
	c, broker := newTestClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan events.Event, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.Events(ctx, func(e events.Event) error {
			got <- e
			return errors.New("enough")
		}, events.EventWorkerAdded)
	}()

	require.Eventually(t, func() bool { return broker.SubscriberCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	_, err := c.AddWorker(ctx, api.AddWorkerRequest{ID: "w9", Environment: balancertest.Env("go")})
	require.NoError(t, err)

	select {
	case e := <-got:
		assert.Equal(t, events.EventWorkerAdded, e.Type)
		assert.Equal(t, "w9", e.WorkerID)
	case <-ctx.Done():
		t.Fatal("no event received")
	}
	assert.EqualError(t, <-done, "enough")
}
