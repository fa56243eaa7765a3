package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentdock/channel"
	"github.com/hupe1980/agentdock/core"
)

type stubHooks struct {
	initErr       error
	shutdownErr   error
	shutdownDelay time.Duration
	process       func(ctx context.Context, task core.Task) (any, error)

	initCalls     atomic.Int32
	shutdownCalls atomic.Int32
}

func (s *stubHooks) Initialize(context.Context) error {
	s.initCalls.Add(1)
	return s.initErr
}

func (s *stubHooks) Shutdown(context.Context) error {
	s.shutdownCalls.Add(1)
	if s.shutdownDelay > 0 {
		time.Sleep(s.shutdownDelay)
	}
	return s.shutdownErr
}

func (s *stubHooks) ProcessTask(ctx context.Context, task core.Task) (any, error) {
	if s.process != nil {
		return s.process(ctx, task)
	}
	return nil, nil
}

type lifecycleRecorder struct {
	mu     sync.Mutex
	events []core.LifecycleEvent
}

func (r *lifecycleRecorder) watch(ch core.Channel) {
	ch.Watch(func(_ context.Context, msg core.Message) {
		if ev, ok := msg.Payload.(core.LifecycleEvent); ok {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
		}
	})
}

func (r *lifecycleRecorder) snapshot() []core.LifecycleEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.LifecycleEvent, len(r.events))
	copy(out, r.events)
	return out
}

func TestStartTransitionsToRunning(t *testing.T) {
	ch := channel.NewInMemory()
	defer ch.Close()

	hooks := &stubHooks{}
	a := New("worker", ch, hooks)
	assert.Equal(t, core.StatusIdle, a.Status())

	require.NoError(t, a.Start(context.Background()))
	assert.Equal(t, core.StatusRunning, a.Status())
	assert.Equal(t, int32(1), hooks.initCalls.Load())
}

func TestStartWhileRunningIsWarningNoOp(t *testing.T) {
	ch := channel.NewInMemory()
	defer ch.Close()

	hooks := &stubHooks{}
	a := New("worker", ch, hooks)
	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, a.Start(context.Background()))
	assert.Equal(t, int32(1), hooks.initCalls.Load(), "initialize must run exactly once")
}

func TestStartInitializeFailure(t *testing.T) {
	ch := channel.NewInMemory()

	hooks := &stubHooks{initErr: errors.New("no backend")}
	a := New("worker", ch, hooks)

	rec := &lifecycleRecorder{}
	rec.watch(ch)

	err := a.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, core.StatusError, a.Status())
	assert.Equal(t, int64(1), a.Metrics().ErrorCount)

	ch.Close() // drain announcements
	errorEvents := 0
	for _, ev := range rec.snapshot() {
		if ev.Status == core.StatusError {
			errorEvents++
			assert.Contains(t, ev.Reason, "no backend")
		}
	}
	assert.Equal(t, 1, errorEvents, "error event emitted exactly once")
}

func TestStopIsIdempotent(t *testing.T) {
	ch := channel.NewInMemory()
	defer ch.Close()

	hooks := &stubHooks{}
	a := New("worker", ch, hooks)
	require.NoError(t, a.Start(context.Background()))

	require.NoError(t, a.Stop(context.Background()))
	require.NoError(t, a.Stop(context.Background()))
	assert.Equal(t, core.StatusStopped, a.Status())
	assert.Equal(t, int32(1), hooks.shutdownCalls.Load(), "shutdown must run exactly once")
}

func TestStopConcurrentRunsShutdownOnce(t *testing.T) {
	ch := channel.NewInMemory()
	defer ch.Close()

	// A slow hook keeps the first Stop in flight while the second one runs
	// its already-stopped check.
	hooks := &stubHooks{shutdownDelay: 50 * time.Millisecond}
	a := New("worker", ch, hooks)
	require.NoError(t, a.Start(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, a.Stop(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, core.StatusStopped, a.Status())
	assert.Equal(t, int32(1), hooks.shutdownCalls.Load(), "shutdown must run exactly once")
}

func TestStopSwallowsShutdownHookFailure(t *testing.T) {
	ch := channel.NewInMemory()
	defer ch.Close()

	hooks := &stubHooks{shutdownErr: errors.New("flaky")}
	a := New("worker", ch, hooks)
	require.NoError(t, a.Start(context.Background()))
	assert.NoError(t, a.Stop(context.Background()), "shutdown must not throw")
	assert.Equal(t, core.StatusStopped, a.Status())
}

func TestSendRequestRoundTrip(t *testing.T) {
	ch := channel.NewInMemory()
	defer ch.Close()

	responder := New("echo", ch, &stubHooks{
		process: func(_ context.Context, task core.Task) (any, error) {
			return task.Payload, nil
		},
	})
	require.NoError(t, responder.Start(context.Background()))

	caller := New("caller", ch, &stubHooks{})
	require.NoError(t, caller.Start(context.Background()))

	out, err := caller.SendRequest(context.Background(), "echo", "ping")
	require.NoError(t, err)
	assert.Equal(t, "ping", out)

	m := responder.Metrics()
	assert.Equal(t, int64(1), m.TasksCompleted)
	assert.Equal(t, int64(0), m.TasksInProgress)
	assert.False(t, m.LastActivity.IsZero())
}

func TestSendRequestRemoteError(t *testing.T) {
	ch := channel.NewInMemory()
	defer ch.Close()

	responder := New("broken", ch, &stubHooks{
		process: func(context.Context, core.Task) (any, error) {
			return nil, errors.New("cannot comply")
		},
	})
	require.NoError(t, responder.Start(context.Background()))

	caller := New("caller", ch, &stubHooks{})
	require.NoError(t, caller.Start(context.Background()))

	_, err := caller.SendRequest(context.Background(), "broken", nil)
	require.Error(t, err)

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "cannot comply", remote.Payload)
	assert.Equal(t, int64(1), responder.Metrics().ErrorCount)
}

func TestSendRequestToUnknownAddressTimesOut(t *testing.T) {
	ch := channel.NewInMemory()
	defer ch.Close()

	caller := New("caller", ch, &stubHooks{}, func(o *Options) {
		o.RequestTimeout = 50 * time.Millisecond
	})
	require.NoError(t, caller.Start(context.Background()))

	start := time.Now()
	_, err := caller.SendRequest(context.Background(), "ghost", nil)
	require.Error(t, err)
	// The channel cannot distinguish "no listener" from "slow listener":
	// this must be a timeout failure, not a not-found failure.
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestSendRequestContextCancellation(t *testing.T) {
	ch := channel.NewInMemory()
	defer ch.Close()

	caller := New("caller", ch, &stubHooks{}, func(o *Options) {
		o.RequestTimeout = time.Minute
	})
	require.NoError(t, caller.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := caller.SendRequest(ctx, "ghost", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEventsAreNotAnswered(t *testing.T) {
	ch := channel.NewInMemory()
	defer ch.Close()

	a := New("worker", ch, &stubHooks{})
	require.NoError(t, a.Start(context.Background()))

	reply := make(chan core.Message, 1)
	ch.Subscribe("observer", func(_ context.Context, msg core.Message) {
		reply <- msg
	})

	ev := core.NewMessage("observer", "worker", core.KindEvent, "notice")
	require.NoError(t, ch.Publish(context.Background(), ev))

	select {
	case <-reply:
		t.Fatal("event envelope was answered")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMetricsUptimeOnlyWhileRunning(t *testing.T) {
	ch := channel.NewInMemory()
	defer ch.Close()

	a := New("worker", ch, &stubHooks{})
	assert.Zero(t, a.Metrics().Uptime)

	require.NoError(t, a.Start(context.Background()))
	time.Sleep(10 * time.Millisecond)
	assert.Greater(t, a.Metrics().Uptime, time.Duration(0))

	require.NoError(t, a.Stop(context.Background()))
	assert.Zero(t, a.Metrics().Uptime)
}
