package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewEpochClockValidation(t *testing.T) {
	t.Parallel()

	origin := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)

	if _, err := NewEpochClock(time.Time{}, time.Hour); !errors.Is(err, ErrValidation) {
		t.Fatalf("NewEpochClock() error = %v, want ErrValidation", err)
	}
	if _, err := NewEpochClock(origin, 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("NewEpochClock() error = %v, want ErrValidation", err)
	}
	if _, err := NewEpochClock(origin, 7*24*time.Hour); err != nil {
		t.Fatalf("NewEpochClock() unexpected error = %v", err)
	}
}

func TestEpochClockCurrentEpoch(t *testing.T) {
	t.Parallel()

	origin := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)
	week := 7 * 24 * time.Hour
	clock := EpochClock{Origin: origin, Length: week}

	tests := []struct {
		name string
		now  time.Time
		want uint64
	}{
		{name: "before origin", now: origin.Add(-time.Hour), want: 0},
		{name: "at origin", now: origin, want: 0},
		{name: "mid first epoch", now: origin.Add(3 * 24 * time.Hour), want: 0},
		{name: "one nanosecond before rollover", now: origin.Add(week - time.Nanosecond), want: 0},
		{name: "exactly one epoch", now: origin.Add(week), want: 1},
		{name: "several epochs in", now: origin.Add(10*week + time.Minute), want: 10},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := clock.CurrentEpoch(tt.now); got != tt.want {
				t.Fatalf("CurrentEpoch(%s) = %d, want %d", tt.now, got, tt.want)
			}
		})
	}
}

func TestEpochClockEpochStart(t *testing.T) {
	t.Parallel()

	origin := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)
	clock := EpochClock{Origin: origin, Length: 24 * time.Hour}

	if got := clock.EpochStart(0); !got.Equal(origin) {
		t.Fatalf("EpochStart(0) = %s, want %s", got, origin)
	}
	if got := clock.EpochStart(3); !got.Equal(origin.Add(72 * time.Hour)) {
		t.Fatalf("EpochStart(3) = %s, want %s", got, origin.Add(72*time.Hour))
	}
}
