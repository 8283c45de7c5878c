// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information

package sync2_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"submitter.io/submitter/shared/sync2"
)

func TestCycleRunsImmediately(t *testing.T) {
	cycle := sync2.NewCycle(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		done <- cycle.Run(ctx, func(ctx context.Context) error {
			select {
			case ran <- struct{}{}:
			default:
			}
			return nil
		})
	}()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("cycle did not run immediately")
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestCycleStopsOnError(t *testing.T) {
	cycle := sync2.NewCycle(time.Millisecond)

	expected := errors.New("boom")
	err := cycle.Run(context.Background(), func(ctx context.Context) error {
		return expected
	})
	require.ErrorIs(t, err, expected)
}

func TestCycleTriggerWait(t *testing.T) {
	cycle := sync2.NewCycle(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs := make(chan struct{}, 10)
	done := make(chan error, 1)
	go func() {
		done <- cycle.Run(ctx, func(ctx context.Context) error {
			runs <- struct{}{}
			return nil
		})
	}()

	<-runs
	cycle.TriggerWait()
	select {
	case <-runs:
	default:
		t.Fatal("trigger did not run the function")
	}

	cycle.Stop()
	require.NoError(t, <-done)
}