// Package feedparser wraps gofeed to satisfy the Feed Parser contract:
// given a feed URL, return feed metadata and a list of candidate episodes.
package feedparser

import (
	"context"
	"strings"
	"time"

	"podlistener/internal/pipelineerr"

	"github.com/mmcdole/gofeed"
)

// FeedMeta is the feed-level metadata recovered from the source.
type FeedMeta struct {
	Title    *string
	ImageURL *string
}

// EpisodeCandidate is one entry recovered from a feed, not yet persisted.
// Entries with an empty GUID are still emitted; callers MUST reject them
// before persisting, since an empty GUID can't be deduplicated against
// future polls.
type EpisodeCandidate struct {
	GUID        string
	Title       *string
	AudioURL    *string
	PublishedAt *time.Time
}

// ParseResult is what ParseFeed returns on success.
type ParseResult struct {
	Meta     FeedMeta
	Episodes []EpisodeCandidate
}

// Parser fetches and parses RSS/Atom feeds via gofeed.
type Parser struct {
	gofeed *gofeed.Parser
}

// New builds a Parser.
func New() *Parser {
	return &Parser{gofeed: gofeed.NewParser()}
}

// Parse fetches url and extracts feed metadata plus candidate episodes. It
// returns a *pipelineerr.FeedParseError when the source is malformed AND no
// usable entries were recovered; a feed with some malformed items but at
// least one good one is not an error.
func (p *Parser) Parse(ctx context.Context, url string) (*ParseResult, error) {
	feed, err := p.gofeed.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, &pipelineerr.FeedParseError{URL: url, Cause: err}
	}

	result := &ParseResult{
		Meta: FeedMeta{
			Title:    nonEmpty(feed.Title),
			ImageURL: feedImageURL(feed),
		},
	}

	for _, item := range feed.Items {
		result.Episodes = append(result.Episodes, EpisodeCandidate{
			GUID:        episodeGUID(item),
			Title:       nonEmpty(item.Title),
			AudioURL:    nonEmpty(audioURL(item)),
			PublishedAt: item.PublishedParsed,
		})
	}

	return result, nil
}

// audioURL returns the URL of the first enclosure whose media type carries
// the audio/ prefix. An item's own link is never an audio file, so it is
// not used as a fallback here.
func audioURL(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if strings.HasPrefix(enc.Type, "audio/") {
			return enc.URL
		}
	}
	return ""
}

// episodeGUID falls back entry id -> entry link -> empty string.
func episodeGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	if item.Link != "" {
		return item.Link
	}
	return ""
}

func feedImageURL(feed *gofeed.Feed) *string {
	if feed.Image != nil && feed.Image.URL != "" {
		return &feed.Image.URL
	}
	return nil
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
