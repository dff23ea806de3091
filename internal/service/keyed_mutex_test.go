package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"creatoros-backend/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := service.NewKeyedMutex()
	ctx := context.Background()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := km.Lock(ctx, "org-1")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
	assert.Equal(t, 0, km.Len())
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	km := service.NewKeyedMutex()
	ctx := context.Background()

	unlockA, err := km.Lock(ctx, "org-a")
	require.NoError(t, err)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, err := km.Lock(ctx, "org-b")
		if err == nil {
			unlockB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestKeyedMutex_ContextCancelWhileWaiting(t *testing.T) {
	km := service.NewKeyedMutex()

	unlock, err := km.Lock(context.Background(), "org-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = km.Lock(ctx, "org-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, km.Len())

	unlock()
	unlock()
	assert.Equal(t, 0, km.Len())
}

func TestKeyedMutex_CanceledBeforeLock(t *testing.T) {
	km := service.NewKeyedMutex()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := km.Lock(ctx, "org-1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, km.Len())
}
