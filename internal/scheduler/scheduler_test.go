package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEveryRunsImmediatelyAndRepeats(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var n atomic.Int32
	done := make(chan struct{})

	go func() {
		Every(ctx, 20*time.Millisecond, "test", func(context.Context) error {
			if n.Add(1) == 2 {
				return errors.New("second run fails")
			}
			return nil
		}, nil)
		close(done)
	}()

	assert.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Every did not return after cancel")
	}
}

func TestEveryStopsWhenCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var n atomic.Int32
	Every(ctx, time.Hour, "test", func(context.Context) error {
		n.Add(1)
		return nil
	}, nil)
	assert.Equal(t, int32(1), n.Load())
}
