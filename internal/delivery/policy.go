package delivery

import "time"

// RetryPolicy decides when a failed delivery is retried.
type RetryPolicy interface {
	// Next returns the retry time after the given number of failed attempts,
	// or false when the delivery is exhausted.
	Next(failedAttempts int, now time.Time) (time.Time, bool)
}

// NextRetry is Next as a nullable time, the shape the ledger stores.
func NextRetry(p RetryPolicy, failedAttempts int, now time.Time) *time.Time {
	if p == nil {
		return nil
	}
	t, ok := p.Next(failedAttempts, now)
	if !ok {
		return nil
	}
	t = t.UTC()
	return &t
}

// DelaySchedule retries after a fixed list of delays. Once the list runs
// out the last delay repeats until MaxAttempts failures have been seen.
type DelaySchedule struct {
	Delays      []time.Duration
	MaxAttempts int
}

// DefaultWebhookSchedule is 1, 5, 15 and 60 minutes, four attempts in all.
// The 60 minute delay only applies when MaxAttempts is raised above 4.
func DefaultWebhookSchedule() DelaySchedule {
	return DelaySchedule{
		Delays:      []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute, time.Hour},
		MaxAttempts: 4,
	}
}

func (s DelaySchedule) Next(failedAttempts int, now time.Time) (time.Time, bool) {
	if len(s.Delays) == 0 || failedAttempts < 1 || failedAttempts >= s.maxAttempts() {
		return time.Time{}, false
	}
	i := failedAttempts - 1
	if i >= len(s.Delays) {
		i = len(s.Delays) - 1
	}
	return now.Add(s.Delays[i]), true
}

func (s DelaySchedule) maxAttempts() int {
	if s.MaxAttempts > 0 {
		return s.MaxAttempts
	}
	return len(s.Delays)
}

// LinearBackoff waits Step after the live failure and n×Step after the
// n-th failed retry, until MaxRetries retries have failed.
type LinearBackoff struct {
	Step       time.Duration
	MaxRetries int
}

// DefaultChatBackoff is +5m after the live failure, then +5m, +10m and
// exhausted on the third failed retry.
func DefaultChatBackoff() LinearBackoff {
	return LinearBackoff{Step: 5 * time.Minute, MaxRetries: 3}
}

func (b LinearBackoff) Next(failedAttempts int, now time.Time) (time.Time, bool) {
	retries := failedAttempts - 1
	if b.Step <= 0 || failedAttempts < 1 || retries >= b.MaxRetries {
		return time.Time{}, false
	}
	return now.Add(b.Step * time.Duration(max(retries, 1))), true
}
