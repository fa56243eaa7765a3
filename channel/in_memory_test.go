package channel

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentdock/core"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	ch := NewInMemory()
	defer ch.Close()

	got := make(chan core.Message, 1)
	ch.Subscribe("worker", func(_ context.Context, msg core.Message) {
		got <- msg
	})

	err := ch.Publish(context.Background(), core.NewMessage("caller", "worker", core.KindRequest, "hello"))
	require.NoError(t, err)

	select {
	case msg := <-got:
		assert.Equal(t, "hello", msg.Payload)
		assert.Equal(t, "caller", msg.From)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestPublishUnknownAddressDropsSilently(t *testing.T) {
	ch := NewInMemory()
	defer ch.Close()

	err := ch.Publish(context.Background(), core.NewMessage("caller", "ghost", core.KindRequest, nil))
	assert.NoError(t, err)
}

func TestOnceClaimsCorrelatedResponse(t *testing.T) {
	ch := NewInMemory()
	defer ch.Close()

	// A subscriber under the caller's address must not see the response
	// once a correlation listener claims it.
	leaked := make(chan core.Message, 1)
	ch.Subscribe("caller", func(_ context.Context, msg core.Message) {
		leaked <- msg
	})

	claimed := make(chan core.Message, 1)
	corrID := core.NewID()
	ch.Once(corrID, func(_ context.Context, msg core.Message) {
		claimed <- msg
	})

	resp := core.NewMessage("worker", "caller", core.KindResponse, 42)
	resp.CorrelationID = corrID
	require.NoError(t, ch.Publish(context.Background(), resp))

	select {
	case msg := <-claimed:
		assert.Equal(t, 42, msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("correlation listener never fired")
	}

	select {
	case <-leaked:
		t.Fatal("subscriber saw a claimed response")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOnceFiresAtMostOnce(t *testing.T) {
	ch := NewInMemory()
	defer ch.Close()

	var fired atomic.Int32
	corrID := core.NewID()
	ch.Once(corrID, func(_ context.Context, _ core.Message) {
		fired.Add(1)
	})

	resp := core.NewMessage("worker", "caller", core.KindResponse, nil)
	resp.CorrelationID = corrID
	require.NoError(t, ch.Publish(context.Background(), resp))
	require.NoError(t, ch.Publish(context.Background(), resp))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestOnceCancelDeregisters(t *testing.T) {
	ch := NewInMemory()
	defer ch.Close()

	fired := make(chan struct{}, 1)
	corrID := core.NewID()
	cancel := ch.Once(corrID, func(_ context.Context, _ core.Message) {
		fired <- struct{}{}
	})
	cancel()

	resp := core.NewMessage("worker", "caller", core.KindResponse, nil)
	resp.CorrelationID = corrID
	require.NoError(t, ch.Publish(context.Background(), resp))

	select {
	case <-fired:
		t.Fatal("cancelled listener fired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAnnounceReachesAllWatchers(t *testing.T) {
	ch := NewInMemory()
	defer ch.Close()

	var seen atomic.Int32
	for i := 0; i < 3; i++ {
		ch.Watch(func(_ context.Context, _ core.Message) {
			seen.Add(1)
		})
	}

	ch.Announce(context.Background(), core.NewMessage("orc", "", core.KindEvent, "ping"))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(3), seen.Load())
}

func TestUnwatchRemovesWatcher(t *testing.T) {
	ch := NewInMemory()
	defer ch.Close()

	var seen atomic.Int32
	unwatch := ch.Watch(func(_ context.Context, _ core.Message) {
		seen.Add(1)
	})
	unwatch()

	ch.Announce(context.Background(), core.NewMessage("orc", "", core.KindEvent, nil))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), seen.Load())
}

func TestPanickingHandlerIsRecovered(t *testing.T) {
	ch := NewInMemory()
	defer ch.Close()

	ch.Subscribe("bad", func(_ context.Context, _ core.Message) {
		panic("boom")
	})
	ok := make(chan struct{}, 1)
	ch.Subscribe("good", func(_ context.Context, _ core.Message) {
		ok <- struct{}{}
	})

	require.NoError(t, ch.Publish(context.Background(), core.NewMessage("x", "bad", core.KindRequest, nil)))
	require.NoError(t, ch.Publish(context.Background(), core.NewMessage("x", "good", core.KindRequest, nil)))

	select {
	case <-ok:
	case <-time.After(time.Second):
		t.Fatal("delivery stopped after handler panic")
	}
}

func TestCloseWaitsForInFlightDeliveries(t *testing.T) {
	ch := NewInMemory()

	var inFlight, finished atomic.Int32
	ch.Subscribe("slow", func(_ context.Context, _ core.Message) {
		inFlight.Add(1)
		time.Sleep(50 * time.Millisecond)
		finished.Add(1)
	})

	// Hammer Publish from several goroutines while Close races them: every
	// handler that starts must have finished by the time Close returns.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = ch.Publish(context.Background(), core.NewMessage("x", "slow", core.KindRequest, nil))
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	ch.Close()

	assert.Equal(t, inFlight.Load(), finished.Load(), "Close returned with a handler still running")
	wg.Wait()
}

func TestPublishAfterClose(t *testing.T) {
	ch := NewInMemory()
	ch.Close()
	err := ch.Publish(context.Background(), core.NewMessage("x", "y", core.KindRequest, nil))
	assert.ErrorIs(t, err, ErrClosed)
}
