package retry

import (
	"math"
	"time"

	"browserfetch/internal/faults"
)

// Strategy is the retry policy data attached to a classified failure.
type Strategy = faults.Strategy

// ImmediateDelay is the fixed pause used by the Immediate strategy.
const ImmediateDelay = 100 * time.Millisecond

// DelayFor returns the wait before retry number attempt (1-based), or false
// when the strategy does not allow that attempt.
func DelayFor(s Strategy, attempt int) (time.Duration, bool) {
	if attempt < 1 || attempt > s.MaxAttempts {
		return 0, false
	}
	switch s.Mode {
	case faults.ModeImmediate:
		return ImmediateDelay, true
	case faults.ModeExponentialBackoff:
		delay := float64(s.InitialDelay) * math.Pow(s.BackoffFactor, float64(attempt-1))
		if math.IsNaN(delay) || math.IsInf(delay, 0) || delay > float64(s.MaxDelay) {
			return s.MaxDelay, true
		}
		if delay < 0 {
			return 0, true
		}
		return time.Duration(delay), true
	case faults.ModeLinearBackoff:
		return s.DelayIncrement * time.Duration(attempt), true
	default:
		return 0, false
	}
}

// Schedule lists every delay the strategy permits, in order.
func Schedule(s Strategy) []time.Duration {
	var out []time.Duration
	for attempt := 1; ; attempt++ {
		delay, ok := DelayFor(s, attempt)
		if !ok {
			return out
		}
		out = append(out, delay)
	}
}
