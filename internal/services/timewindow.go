package services

import "time"

// DefaultEditWindow is how long images and ground truths stay mutable.
const DefaultEditWindow = 24 * time.Hour

// IsLocked reports whether more than window has elapsed between ts and now.
// A zero ts is rejected with ErrMissingTimestamp; timestamps in the future
// count as no time elapsed.
func IsLocked(ts time.Time, window time.Duration, now time.Time) (bool, error) {
	if ts.IsZero() {
		return false, ErrMissingTimestamp
	}
	if window <= 0 {
		window = DefaultEditWindow
	}
	elapsed := now.Sub(ts)
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed > window, nil
}

// TimeWindow binds IsLocked to a window and a clock.
type TimeWindow struct {
	Window time.Duration
	Now    func() time.Time
}

// IsLocked applies the package-level IsLocked with w's window and clock.
func (w TimeWindow) IsLocked(ts time.Time) (bool, error) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	return IsLocked(ts, w.Window, now())
}

// requireUnlocked maps a locked or invalid timestamp to a service error.
func (w TimeWindow) requireUnlocked(ts time.Time) error {
	locked, err := w.IsLocked(ts)
	if err != nil {
		return err
	}
	if locked {
		return ErrEditWindowExpired
	}
	return nil
}
