package domain

import (
	"fmt"
	"time"
)

// EpochClock derives a monotonically increasing epoch number from wall-clock
// time given a fixed origin and period length.
type EpochClock struct {
	Origin time.Time
	Length time.Duration
}

func NewEpochClock(origin time.Time, length time.Duration) (EpochClock, error) {
	if origin.IsZero() {
		return EpochClock{}, fmt.Errorf("%w: epoch origin is required", ErrValidation)
	}
	if length <= 0 {
		return EpochClock{}, fmt.Errorf("%w: epoch length must be positive", ErrValidation)
	}
	return EpochClock{Origin: origin, Length: length}, nil
}

// CurrentEpoch returns 0 before the origin, otherwise the floor of the
// elapsed time divided by the epoch length.
func (c EpochClock) CurrentEpoch(now time.Time) uint64 {
	if now.Before(c.Origin) {
		return 0
	}
	return uint64(now.Sub(c.Origin) / c.Length)
}

// EpochStart returns the wall-clock start of a given epoch.
func (c EpochClock) EpochStart(epoch uint64) time.Time {
	return c.Origin.Add(time.Duration(epoch) * c.Length)
}
