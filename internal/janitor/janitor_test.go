package janitor

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

	"github.com/pavel-fokin/dropcode/internal/content"
)

type fakeMaintainer struct {
	purges atomic.Int32
	sweeps atomic.Int32
	err    error
}

func (f *fakeMaintainer) PurgeAll(context.Context) (*content.PurgeResult, error) {
	f.purges.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &content.PurgeResult{}, nil
}

func (f *fakeMaintainer) SweepExpired(context.Context) (*content.SweepResult, error) {
	f.sweeps.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &content.SweepResult{}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestJanitorRunsJobsPeriodically(t *testing.T) {
	svc := &fakeMaintainer{}
	j := New(svc, 10*time.Millisecond, 10*time.Millisecond, discardLogger())

	j.Start(context.Background())
	require.Eventually(t, func() bool {
		return svc.purges.Load() >= 2 && svc.sweeps.Load() >= 2
	}, time.Second, 5*time.Millisecond)
	j.Stop()

	purges, sweeps := svc.purges.Load(), svc.sweeps.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, purges, svc.purges.Load(), "no purge after Stop")
	assert.Equal(t, sweeps, svc.sweeps.Load(), "no sweep after Stop")
}

func TestJanitorDoesNotPurgeOnStart(t *testing.T) {
	svc := &fakeMaintainer{}
	j := New(svc, time.Hour, time.Hour, discardLogger())

	j.Start(context.Background())
	require.Eventually(t, func() bool { return svc.sweeps.Load() == 1 }, time.Second, 5*time.Millisecond)
	j.Stop()

	assert.Equal(t, int32(0), svc.purges.Load())
}

func TestJanitorDisabledJobs(t *testing.T) {
	svc := &fakeMaintainer{}
	j := New(svc, 0, 0, discardLogger())

	j.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	j.Stop()

	assert.Equal(t, int32(0), svc.purges.Load())
	assert.Equal(t, int32(0), svc.sweeps.Load())
}

func TestJanitorSurvivesErrors(t *testing.T) {
	svc := &fakeMaintainer{err: errors.New("store down")}
	j := New(svc, time.Hour, time.Hour, discardLogger())

	j.RunPurge(context.Background())
	j.RunSweep(context.Background())

	assert.Equal(t, int32(1), svc.purges.Load())
	assert.Equal(t, int32(1), svc.sweeps.Load())
}

func TestJanitorStopsWithParentContext(t *testing.T) {
	svc := &fakeMaintainer{}
	j := New(svc, 5*time.Millisecond, 0, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	j.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		j.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
