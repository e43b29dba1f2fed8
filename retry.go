package pocketflow

import "time"

// RetryBuilder provides a fluent way to construct RetryPolicy values for
// nodes that embed BaseNode or take a policy option.
type RetryBuilder struct {
	policy RetryPolicy
}

// Retry creates a RetryBuilder allowing maxAttempts Exec attempts in total.
//
// maxAttempts <= 0 is treated as 1 (no retries).
func Retry(maxAttempts int) RetryBuilder {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return RetryBuilder{
		policy: RetryPolicy{
			MaxRetries: maxAttempts,
		},
	}
}

// WithDelay waits delay between attempts.
func (r RetryBuilder) WithDelay(delay time.Duration) RetryBuilder {
	p := r.policy
	p.Delay = delay
	p.Multiplier = 1.0
	p.MaxDelay = 0
	return RetryBuilder{policy: p}
}

// WithExponentialBackoff configures exponential backoff:
//
//   - initial is the delay before the first retry.
//   - multiplier > 1 grows the delay each attempt (default 2.0 if <= 0).
//   - max caps the delay; if <= 0, there is no cap.
//
// Example:
//
//	Retry(3).WithExponentialBackoff(100*time.Millisecond, 2.0, 2*time.Second)
func (r RetryBuilder) WithExponentialBackoff(initial time.Duration, multiplier float64, max time.Duration) RetryBuilder {
	p := r.policy
	p.Delay = initial
	p.MaxDelay = max
	if multiplier <= 0 {
		multiplier = 2.0
	}
	p.Multiplier = multiplier
	return RetryBuilder{policy: p}
}

// Immediate disables any sleep between retries.
// Retries will still respect the attempt count.
func (r RetryBuilder) Immediate() RetryBuilder {
	p := r.policy
	p.Delay = 0
	p.MaxDelay = 0
	p.Multiplier = 0
	return RetryBuilder{policy: p}
}

// Policy returns the underlying RetryPolicy.
func (r RetryBuilder) Policy() RetryPolicy {
	return r.policy
}
