package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchStopsWithoutWaitingForTheNextTick(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())
	var cycles int32
	ran := make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		done <- watch(ctx, time.Hour, func(context.Context) error {
			atomic.AddInt32(&cycles, 1)
			ran <- struct{}{}
			return nil
		}, logger)
	}()

	<-ran
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch kept waiting for the ticker after cancellation")
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&cycles), "the first cycle runs immediately")
}

func TestWatchKeepsGoingAfterAFailedCycle(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var cycles int32

	err := watch(ctx, 5*time.Millisecond, func(context.Context) error {
		if atomic.AddInt32(&cycles, 1) == 3 {
			cancel()
		}
		return errors.New("provider down")
	}, logger)
	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&cycles))
}

func TestWatchRejectsNonPositiveInterval(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := watch(context.Background(), 0, func(context.Context) error { return nil }, logger)
	assert.Error(t, err)
}
