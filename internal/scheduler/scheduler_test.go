package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextTimesAlignsToInterval(t *testing.T) {
	s := &AlignedScheduler{Interval: 5 * time.Minute, Offset: 10 * time.Second}

	now := time.Date(2026, 8, 28, 12, 3, 17, 0, time.UTC)
	nextClose, wakeAt, wait := s.nextTimes(now)

	assert.Equal(t, time.Date(2026, 8, 28, 12, 5, 0, 0, time.UTC), nextClose)
	assert.Equal(t, time.Date(2026, 8, 28, 12, 5, 10, 0, time.UTC), wakeAt)
	assert.Equal(t, wakeAt.Sub(now), wait)
}

func TestNextTimesExactlyOnBoundary(t *testing.T) {
	s := &AlignedScheduler{Interval: 5 * time.Minute}

	now := time.Date(2026, 8, 28, 12, 5, 0, 0, time.UTC)
	nextClose, _, _ := s.nextTimes(now)
	assert.Equal(t, time.Date(2026, 8, 28, 12, 10, 0, 0, time.UTC), nextClose)
}

func TestStartStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewAlignedScheduler(ctx, time.Hour, 0)

	done := make(chan struct{})
	go func() {
		s.Start(func() {})
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestStartRunImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewAlignedScheduler(ctx, time.Hour, 0)
	s.RunImmediately = true

	ran := make(chan struct{}, 1)
	go s.Start(func() {
		select {
		case ran <- struct{}{}:
		default:
		}
		cancel()
	})

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run immediately")
	}
}
