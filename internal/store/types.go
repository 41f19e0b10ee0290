package store

import "time"

// EpisodeStatus is one node of the episode processing status machine:
// pending -> queued -> downloading -> transcribing -> analyzing ->
// {completed, failed}.
type EpisodeStatus string

const (
	StatusPending      EpisodeStatus = "pending"
	StatusQueued       EpisodeStatus = "queued"
	StatusDownloading  EpisodeStatus = "downloading"
	StatusTranscribing EpisodeStatus = "transcribing"
	StatusAnalyzing    EpisodeStatus = "analyzing"
	StatusCompleted    EpisodeStatus = "completed"
	StatusFailed       EpisodeStatus = "failed"
)

// MatchType is a Keyword's scan policy.
type MatchType string

const (
	MatchContains  MatchType = "contains"
	MatchExactWord MatchType = "exact_word"
	MatchRegex     MatchType = "regex"
)

// Sentiment is one of a Mention's four enrichment sentiment buckets.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
	SentimentMixed    Sentiment = "mixed"
)

// Feed is a subscribed RSS/Atom source.
type Feed struct {
	ID           string
	RSSURL       string
	Title        *string
	ImageURL     *string
	LastPolledAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Episode is a single audio item sighted under a Feed, keyed by its
// feed-assigned GUID.
type Episode struct {
	ID             string
	FeedID         string
	GUID           string
	Title          *string
	AudioURL       *string
	PublishedAt    *time.Time
	Status         EpisodeStatus
	TranscriptText *string
	ErrorMessage   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Keyword is a user-defined phrase to scan transcripts for.
type Keyword struct {
	ID        string
	Phrase    string
	MatchType MatchType
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Mention is a persisted match of a Keyword inside an Episode's transcript,
// enriched with LLM-derived attributes.
type Mention struct {
	ID                string
	EpisodeID         string
	KeywordID         string
	MatchedText       string
	TranscriptSegment string
	Sentiment         *Sentiment
	SentimentScore    *float64
	ContextSummary    *string
	Topics            []string
	IsBuyingSignal    bool
	IsPainPoint       bool
	IsRecommendation  bool
	RawLLMResponse    []byte
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AppSetting is a single runtime-mutable configuration key/value row.
type AppSetting struct {
	Key       string
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Runtime AppSetting keys used to override the transcription env defaults.
const (
	SettingTranscriptionProvider    = "transcription_provider"
	SettingTranscriptionExternalURL = "transcription_external_url"
	SettingTranscriptionAPIKey      = "transcription_external_api_key"
	SettingTranscriptionModel       = "transcription_model"
)
