package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/micmetrics/pkg/audio"
)

func bufferAt(ts int64) audio.SampleBuffer {
	return audio.NewSampleBuffer([]float32{float32(ts)}, ts, 8000)
}

func collect(sub *Subscription) []int64 {
	var out []int64
	for buf := range sub.C {
		out = append(out, buf.Timestamp)
	}
	return out
}

func TestHubDeliversInOrderToEverySubscriber(t *testing.T) {
	hub := NewHub(HubConfig{SubscriberBuffer: 1})
	subs := []*Subscription{hub.Subscribe(), hub.Subscribe(), hub.Subscribe()}

	var wg sync.WaitGroup
	got := make([][]int64, len(subs))
	for i, sub := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = collect(sub)
		}()
	}

	for ts := range int64(50) {
		require.NoError(t, hub.Publish(context.Background(), bufferAt(ts)))
	}
	hub.Close()
	wg.Wait()

	for i := range subs {
		require.Len(t, got[i], 50, "subscriber %d", i)
		for j, ts := range got[i] {
			assert.Equal(t, int64(j), ts)
		}
	}
}

func TestHubPublishAfterClose(t *testing.T) {
	hub := NewHub(DefaultHubConfig())
	hub.Close()
	hub.Close()

	assert.ErrorIs(t, hub.Publish(context.Background(), bufferAt(0)), ErrHubClosed)

	sub := hub.Subscribe()
	_, ok := <-sub.C
	assert.False(t, ok)
	sub.Cancel()
}

func TestHubDropWhenFull(t *testing.T) {
	hub := NewHub(HubConfig{SubscriberBuffer: 2, DropWhenFull: true})
	sub := hub.Subscribe()

	for ts := range int64(5) {
		require.NoError(t, hub.Publish(context.Background(), bufferAt(ts)))
	}
	hub.Close()

	assert.Equal(t, []int64{0, 1}, collect(sub))
	assert.Equal(t, uint64(3), sub.Dropped())
}

func TestHubBlockingPublishHonoursContext(t *testing.T) {
	hub := NewHub(HubConfig{SubscriberBuffer: 0})
	sub := hub.Subscribe()
	defer sub.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := hub.Publish(ctx, bufferAt(0))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHubCancelUnblocksPublisher(t *testing.T) {
	hub := NewHub(HubConfig{SubscriberBuffer: 0})
	slow := hub.Subscribe()
	fast := hub.Subscribe()

	var fastGot []int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		fastGot = collect(fast)
	}()

	published := make(chan error, 1)
	go func() {
		published <- hub.Publish(context.Background(), bufferAt(7))
	}()

	// slow never reads; cancelling it must let the publish finish
	slow.Cancel()
	require.NoError(t, <-published)
	assert.Equal(t, 1, hub.Subscribers())

	_, ok := <-slow.C
	assert.False(t, ok)

	hub.Close()
	<-done
	assert.Equal(t, []int64{7}, fastGot)
}
