package orchestrator

import "time"

// trackerPostBackoff retries a failed tracker activity post with a capped
// exponential schedule (200ms doubling per attempt, capped at 10s). It is
// separate from the schedule internal/snapshot.Writer uses for its
// disk-write retries, which starts at 100ms and caps at 5s.
func trackerPostBackoff(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * 200 * time.Millisecond
	if d > 10*time.Second {
		return 10 * time.Second
	}
	return d
}

const maxTrackerPostAttempts = 5
