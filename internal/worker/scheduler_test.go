package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchedulerTicksImmediatelyAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var n atomic.Int32

	s := NewScheduler(time.Hour, func(context.Context) {
		n.Add(1)
		cancel()
	})

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.EqualValues(t, 1, n.Load())
}

func TestSchedulerSurvivesPanic(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var n atomic.Int32

	s := NewScheduler(time.Millisecond, func(context.Context) {
		if n.Add(1) == 1 {
			panic("boom")
		}
		cancel()
	})
	s.Run(ctx)
	assert.GreaterOrEqual(t, n.Load(), int32(2))
}
