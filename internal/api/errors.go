package api

import "strings"

// isAlreadyExists reports whether err is one of the store's duplicate-key
// errors (feeds.rss_url, keywords.phrase, mentions' idempotency tuple). The
// store wraps these as plain errors rather than a typed sentinel, so this
// matches on the message they all share.
func isAlreadyExists(err error) bool {
	return err != nil && strings.Contains(err.Error(), "already exists")
}
