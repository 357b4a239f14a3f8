package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/aurorawatch/internal/models"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		hour    int
		minute  int
		wantErr bool
	}{
		{"12:00", 12, 0, false},
		{"00:00", 0, 0, false},
		{"23:59", 23, 59, false},
		{" 7:05 ", 7, 5, false},
		{"24:00", 0, 0, true},
		{"12:60", 0, 0, true},
		{"noon", 0, 0, true},
		{"12:00:00", 0, 0, true},
		{"", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			h, m, err := ParseTimeOfDay(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.hour, h)
			assert.Equal(t, tt.minute, m)
		})
	}
}

func TestAddDaily_NextRunInTimezone(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	s := New(chicago, time.Minute)
	require.NoError(t, s.AddDaily("daily-report", "12:00", func(context.Context) {}))

	// 10:00 CST on Jan 15 is 16:00 UTC.
	after := time.Date(2024, 1, 15, 16, 0, 0, 0, time.UTC)
	next, ok := s.NextRun("daily-report", after)
	require.True(t, ok)
	assert.True(t, next.Equal(time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)), "got %s", next)

	// Past noon rolls over to the next day.
	next, _ = s.NextRun("daily-report", time.Date(2024, 1, 15, 19, 0, 0, 0, time.UTC))
	assert.True(t, next.Equal(time.Date(2024, 1, 16, 18, 0, 0, 0, time.UTC)), "got %s", next)
}

func TestAddInterval_NextRun(t *testing.T) {
	s := New(time.UTC, time.Minute)
	require.NoError(t, s.AddInterval("check", 30*time.Minute, func(context.Context) {}))

	after := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	next, ok := s.NextRun("check", after)
	require.True(t, ok)
	assert.Equal(t, after.Add(30*time.Minute), next)
}

func TestAdd_Validation(t *testing.T) {
	s := New(time.UTC, time.Minute)

	assert.ErrorIs(t, s.AddInterval("fast", 10*time.Millisecond, func(context.Context) {}), models.ErrInvalidInput)
	assert.ErrorIs(t, s.AddDaily("bad", "25:00", func(context.Context) {}), models.ErrInvalidInput)

	require.NoError(t, s.AddDaily("daily", "12:00", func(context.Context) {}))
	assert.Error(t, s.AddDaily("daily", "13:00", func(context.Context) {}))

	_, ok := s.NextRun("missing", time.Now())
	assert.False(t, ok)
}

func TestStart_RunsJobWithDeadline(t *testing.T) {
	s := New(time.UTC, 5*time.Second)
	ran := make(chan bool, 4)
	require.NoError(t, s.AddInterval("tick", time.Second, func(ctx context.Context) {
		_, hasDeadline := ctx.Deadline()
		ran <- hasDeadline
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		assert.NoError(t, s.Stop(stopCtx))
	}()

	select {
	case hasDeadline := <-ran:
		assert.True(t, hasDeadline)
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run")
	}
}

func TestStart_RecoversPanics(t *testing.T) {
	s := New(time.UTC, time.Second)
	ran := make(chan struct{}, 8)
	var runs atomic.Int32
	require.NoError(t, s.AddInterval("boom", time.Second, func(context.Context) {
		if runs.Add(1) == 1 {
			panic("boom")
		}
		ran <- struct{}{}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	for i := 0; i < 2; i++ {
		select {
		case <-ran:
		case <-time.After(5 * time.Second):
			t.Fatalf("job did not run again after panicking (runs: %d)", runs.Load())
		}
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	assert.NoError(t, s.Stop(stopCtx))
}
