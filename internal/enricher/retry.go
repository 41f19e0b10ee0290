package enricher

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// parseRetryAfterSeconds parses a Retry-After header value, which may be
// either an integer count of seconds or an HTTP-date. Returns nil when the
// header is absent or unparsable in either form.
func parseRetryAfterSeconds(raw string) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if seconds, err := strconv.Atoi(raw); err == nil {
		return &seconds
	}

	if when, err := http.ParseTime(raw); err == nil {
		delta := int(time.Until(when).Seconds())
		if delta < 0 {
			delta = 0
		}
		return &delta
	}

	return nil
}
