package enricher

import (
	"sync"
	"time"
)

// rateLimitMu and nextAllowed implement a single process-wide throttle
// shared by every Client instance, matching the original's single
// module-level lock: all LLM calls across providers share one cadence.
var (
	rateLimitMu sync.Mutex
	nextAllowed time.Time
)

// applyRateLimit blocks the caller, if necessary, until minInterval has
// elapsed since the previous call was released. The wait and the deadline
// bump both happen under the same lock acquisition — a second caller queued
// behind the first observes the bumped deadline, not the pre-wait one.
func applyRateLimit(minInterval time.Duration) {
	if minInterval <= 0 {
		return
	}

	rateLimitMu.Lock()
	defer rateLimitMu.Unlock()

	now := time.Now()
	wait := nextAllowed.Sub(now)
	if wait > 0 {
		time.Sleep(wait)
		now = time.Now()
	}
	nextAllowed = now.Add(minInterval)
}
