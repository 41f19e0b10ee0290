package feedparser

import (
	"testing"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
)

func TestAudioURLPrefersAudioEnclosure(t *testing.T) {
	item := &gofeed.Item{
		Link: "https://example.com/episode-page",
		Enclosures: []*gofeed.Enclosure{
			{URL: "https://example.com/cover.jpg", Type: "image/jpeg"},
			{URL: "https://example.com/ep.mp3", Type: "audio/mpeg"},
		},
	}

	assert.Equal(t, "https://example.com/ep.mp3", audioURL(item))
}

func TestAudioURLIgnoresNonAudioLink(t *testing.T) {
	item := &gofeed.Item{Link: "https://example.com/episode-page"}
	assert.Equal(t, "", audioURL(item))
}

func TestAudioURLEmptyWhenNeitherPresent(t *testing.T) {
	item := &gofeed.Item{}
	assert.Equal(t, "", audioURL(item))
}

func TestEpisodeGUIDFallbackOrder(t *testing.T) {
	cases := []struct {
		name string
		item *gofeed.Item
		want string
	}{
		{"uses guid when present", &gofeed.Item{GUID: "guid-1", Link: "https://example.com/a"}, "guid-1"},
		{"falls back to link", &gofeed.Item{Link: "https://example.com/a"}, "https://example.com/a"},
		{"empty when neither present", &gofeed.Item{}, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, episodeGUID(tc.item))
		})
	}
}
