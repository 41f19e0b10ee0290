// Package detector scans transcript text for keyword mentions under each
// keyword's match policy (contains, exact_word, regex).
package detector

import (
	"log/slog"
	"regexp"
	"strings"
)

// SegmentRadius bounds how much context surrounds a match on each side.
const SegmentRadius = 300

// Keyword is the minimal shape the detector needs from a store.Keyword.
type Keyword struct {
	ID        string
	Phrase    string
	MatchType string
}

// Match is one keyword hit with its surrounding transcript context.
type Match struct {
	KeywordID         string
	Phrase            string
	MatchedText       string
	TranscriptSegment string
}

// Detect scans transcript for every keyword, in input order, returning
// matches in ascending position within each keyword's scan. A keyword whose
// regex fails to compile is logged and skipped — it never fails the
// episode.
func Detect(transcript string, keywords []Keyword) []Match {
	var matches []Match
	lowerTranscript := strings.ToLower(transcript)

	for _, kw := range keywords {
		switch kw.MatchType {
		case "regex":
			matches = append(matches, matchRegex(transcript, kw, kw.Phrase)...)
		case "exact_word":
			pattern := `\b` + regexp.QuoteMeta(kw.Phrase) + `\b`
			matches = append(matches, matchRegex(transcript, kw, pattern)...)
		default: // "contains"
			matches = append(matches, matchContains(transcript, lowerTranscript, kw)...)
		}
	}

	return matches
}

func matchRegex(transcript string, kw Keyword, pattern string) []Match {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		slog.Warn("invalid keyword pattern, skipping", "keyword_id", kw.ID, "phrase", kw.Phrase, "err", err)
		return nil
	}

	var matches []Match
	for _, loc := range re.FindAllStringIndex(transcript, -1) {
		start, end := loc[0], loc[1]
		matches = append(matches, Match{
			KeywordID:         kw.ID,
			Phrase:            kw.Phrase,
			MatchedText:       transcript[start:end],
			TranscriptSegment: extractSegment(transcript, start, end),
		})
	}
	return matches
}

// matchContains scans case-insensitively, advancing past the end of each
// match (non-overlapping), preserving the transcript's original casing in
// matched_text.
func matchContains(transcript, lowerTranscript string, kw Keyword) []Match {
	phraseLower := strings.ToLower(kw.Phrase)
	if phraseLower == "" {
		return nil
	}

	var matches []Match
	start := 0
	for {
		idx := strings.Index(lowerTranscript[start:], phraseLower)
		if idx == -1 {
			break
		}
		idx += start
		end := idx + len(kw.Phrase)
		matches = append(matches, Match{
			KeywordID:         kw.ID,
			Phrase:            kw.Phrase,
			MatchedText:       transcript[idx:end],
			TranscriptSegment: extractSegment(transcript, idx, end),
		})
		start = end
	}
	return matches
}

// extractSegment returns text[max(0,start-radius):min(len,end+radius)],
// prefixed with "..." when the left window was truncated and suffixed with
// "..." when the right window was truncated.
func extractSegment(text string, start, end int) string {
	segStart := start - SegmentRadius
	if segStart < 0 {
		segStart = 0
	}
	segEnd := end + SegmentRadius
	if segEnd > len(text) {
		segEnd = len(text)
	}

	var b strings.Builder
	if segStart > 0 {
		b.WriteString("...")
	}
	b.WriteString(text[segStart:segEnd])
	if segEnd < len(text) {
		b.WriteString("...")
	}
	return b.String()
}
