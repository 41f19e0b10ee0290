package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsMatchPreservesCasing(t *testing.T) {
	transcript := "Welcome... Acme Corp... acme corp's platform... Acme Corp really stands out."
	matches := Detect(transcript, []Keyword{{ID: "kw-1", Phrase: "Acme Corp", MatchType: "contains"}})

	assert.Len(t, matches, 3)
	var matchedText []string
	for _, m := range matches {
		matchedText = append(matchedText, m.MatchedText)
	}
	assert.Equal(t, []string{"Acme Corp", "acme corp", "Acme Corp"}, matchedText)
}

func TestExactWordExcludesSubstringMatches(t *testing.T) {
	transcript := "The game is changing in the gaming world"
	matches := Detect(transcript, []Keyword{{ID: "kw-1", Phrase: "game", MatchType: "exact_word"}})

	assert.Len(t, matches, 1)
	assert.Equal(t, "game", matches[0].MatchedText)
}

func TestRegexSkipsInvalidPatternWithoutFailing(t *testing.T) {
	transcript := "anything goes here"
	matches := Detect(transcript, []Keyword{{ID: "kw-1", Phrase: "(unclosed", MatchType: "regex"}})

	assert.Empty(t, matches)
}

func TestRegexMatchesCaseInsensitively(t *testing.T) {
	transcript := "Our Revenue grew by 20% this quarter"
	matches := Detect(transcript, []Keyword{{ID: "kw-1", Phrase: "revenue", MatchType: "regex"}})

	assert.Len(t, matches, 1)
	assert.Equal(t, "Revenue", matches[0].MatchedText)
}

func TestSegmentIncludesMatchVerbatimAndIsBounded(t *testing.T) {
	transcript := strings.Repeat("a", 500) + "NEEDLE" + strings.Repeat("b", 500)
	matches := Detect(transcript, []Keyword{{ID: "kw-1", Phrase: "NEEDLE", MatchType: "contains"}})

	assert.Len(t, matches, 1)
	segment := matches[0].TranscriptSegment
	assert.Contains(t, segment, "NEEDLE")
	assert.True(t, strings.HasPrefix(segment, "..."))
	assert.True(t, strings.HasSuffix(segment, "..."))
	assert.LessOrEqual(t, len(segment), len("NEEDLE")+2*SegmentRadius+6)
}

func TestSegmentNoEllipsisAtTranscriptBoundaries(t *testing.T) {
	transcript := "NEEDLE at the very start of a short transcript"
	matches := Detect(transcript, []Keyword{{ID: "kw-1", Phrase: "NEEDLE", MatchType: "contains"}})

	assert.Len(t, matches, 1)
	assert.False(t, strings.HasPrefix(matches[0].TranscriptSegment, "..."))
}

func TestKeywordOrderAndPositionOrderIsStable(t *testing.T) {
	transcript := "alpha appears, then beta appears, then alpha appears again"
	keywords := []Keyword{
		{ID: "kw-beta", Phrase: "beta", MatchType: "contains"},
		{ID: "kw-alpha", Phrase: "alpha", MatchType: "contains"},
	}
	matches := Detect(transcript, keywords)

	assert.Len(t, matches, 3)
	assert.Equal(t, "kw-beta", matches[0].KeywordID)
	assert.Equal(t, "kw-alpha", matches[1].KeywordID)
	assert.Equal(t, "kw-alpha", matches[2].KeywordID)
}
