package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextRun(t *testing.T) {
	loc := time.FixedZone("clinic", 2*3600)
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before today's slot", time.Date(2025, 6, 1, 0, 1, 0, 0, loc), time.Date(2025, 6, 1, 0, 5, 0, 0, loc)},
		{"exactly at slot", time.Date(2025, 6, 1, 0, 5, 0, 0, loc), time.Date(2025, 6, 2, 0, 5, 0, 0, loc)},
		{"after slot", time.Date(2025, 6, 1, 13, 0, 0, 0, loc), time.Date(2025, 6, 2, 0, 5, 0, 0, loc)},
		{"month rollover", time.Date(2025, 6, 30, 23, 59, 0, 0, loc), time.Date(2025, 7, 1, 0, 5, 0, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextRun(tt.now, 0, 5); !got.Equal(tt.want) {
				t.Errorf("NextRun = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDaily_RunsAtStartupAndOnTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks := make(chan time.Time)
	var runs atomic.Int32
	done := make(chan struct{})

	d := &Daily{
		Hour: 0, Minute: 5,
		Log: zerolog.Nop(),
		Job: func(ctx context.Context) (int, error) {
			if runs.Add(1) == 2 {
				cancel()
			}
			return 1, nil
		},
		now:   func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
		after: func(time.Duration) <-chan time.Time { return ticks },
	}

	go func() {
		d.Run(ctx)
		close(done)
	}()

	ticks <- time.Now()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
	if got := runs.Load(); got != 2 {
		t.Errorf("runs = %d, want 2", got)
	}
}

func TestDaily_TimeoutAppliesToRun(t *testing.T) {
	var sawDeadline bool
	d := &Daily{
		Timeout: time.Minute,
		Log:     zerolog.Nop(),
		Job: func(ctx context.Context) (int, error) {
			_, sawDeadline = ctx.Deadline()
			return 0, errors.New("boom")
		},
	}
	d.runOnce(context.Background())
	if !sawDeadline {
		t.Error("expected run context to carry a deadline")
	}
}
