package faults

import (
	"fmt"
	"time"
)

const msec = time.Millisecond

// StrategyMode selects how the retry engine interprets a Strategy.
type StrategyMode int

const (
	ModeNoRetry StrategyMode = iota
	ModeImmediate
	ModeExponentialBackoff
	ModeLinearBackoff
)

func (m StrategyMode) String() string {
	switch m {
	case ModeNoRetry:
		return "no_retry"
	case ModeImmediate:
		return "immediate"
	case ModeExponentialBackoff:
		return "exponential_backoff"
	case ModeLinearBackoff:
		return "linear_backoff"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func (m StrategyMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Strategy is pure data describing whether and how long to wait before a
// retry. Only the fields relevant to Mode are meaningful.
type Strategy struct {
	Mode           StrategyMode  `json:"mode"`
	MaxAttempts    int           `json:"max_attempts,omitempty"`
	InitialDelay   time.Duration `json:"initial_delay,omitempty"`
	MaxDelay       time.Duration `json:"max_delay,omitempty"`
	BackoffFactor  float64       `json:"backoff_factor,omitempty"`
	DelayIncrement time.Duration `json:"delay_increment,omitempty"`
}

func NoRetry() Strategy { return Strategy{Mode: ModeNoRetry} }

func Immediate(maxAttempts int) Strategy {
	return Strategy{Mode: ModeImmediate, MaxAttempts: maxAttempts}
}

func Exponential(maxAttempts int, initial, maxDelay time.Duration, factor float64) Strategy {
	return Strategy{
		Mode:          ModeExponentialBackoff,
		MaxAttempts:   maxAttempts,
		InitialDelay:  initial,
		MaxDelay:      maxDelay,
		BackoffFactor: factor,
	}
}

func Linear(maxAttempts int, increment time.Duration) Strategy {
	return Strategy{Mode: ModeLinearBackoff, MaxAttempts: maxAttempts, DelayIncrement: increment}
}

func (s Strategy) String() string {
	switch s.Mode {
	case ModeNoRetry:
		return "no retry"
	case ModeImmediate:
		return fmt.Sprintf("immediate (max %d)", s.MaxAttempts)
	case ModeExponentialBackoff:
		return fmt.Sprintf("exponential (max %d, %s..%s x%g)", s.MaxAttempts, s.InitialDelay, s.MaxDelay, s.BackoffFactor)
	case ModeLinearBackoff:
		return fmt.Sprintf("linear (max %d, +%s)", s.MaxAttempts, s.DelayIncrement)
	default:
		return s.Mode.String()
	}
}
