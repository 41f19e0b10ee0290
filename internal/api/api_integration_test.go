//go:build integration
// +build integration

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"podlistener/internal/config"
	"podlistener/internal/queue"
	"podlistener/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDeps(t *testing.T) Deps {
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, config.DatabaseURL)
	if err != nil || pool.Ping(ctx) != nil {
		t.Skipf("skipping test: postgres not available: %v", err)
	}
	s := store.NewPostgresStore(pool)
	require.NoError(t, s.Migrate(ctx))

	q, err := queue.NewQueue(ctx)
	if err != nil {
		t.Skipf("skipping test: redis not available: %v", err)
	}
	q.SetKeyPrefix(fmt.Sprintf("apitest:%d", time.Now().UnixNano()))

	t.Cleanup(func() { q.Close() })
	return Deps{Store: s, Queue: q}
}

func newTestRouter(deps Deps) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	SetupRoutes(r, deps)
	return r
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(Deps{})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/health", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateFeedThenDuplicateConflicts(t *testing.T) {
	deps := setupTestDeps(t)
	r := newTestRouter(deps)

	body := strings.NewReader(`{"rss_url":"https://example.com/feed.xml"}`)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/feeds", body)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var created FeedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)

	w2 := httptest.NewRecorder()
	req2, _ := http.NewRequest("POST", "/api/feeds", strings.NewReader(`{"rss_url":"https://example.com/feed.xml"}`))
	req2.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w2, req2)
	assert.Equal(t, http.StatusConflict, w2.Code)
}

func TestGetFeedNotFound(t *testing.T) {
	deps := setupTestDeps(t)
	r := newTestRouter(deps)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/feeds/00000000-0000-0000-0000-000000000000", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListEpisodesRequiresFeedID(t *testing.T) {
	deps := setupTestDeps(t)
	r := newTestRouter(deps)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/episodes", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestListEpisodesByFeedID(t *testing.T) {
	deps := setupTestDeps(t)
	r := newTestRouter(deps)
	ctx := context.Background()

	feed, err := deps.Store.CreateFeed(ctx, "https://example.com/list-episodes-test.xml")
	require.NoError(t, err)
	title := "ep"
	audioURL := "https://example.com/ep.mp3"
	_, _, err = deps.Store.UpsertEpisodeByGUID(ctx, feed.ID, "guid-list-1", &title, &audioURL, nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/episodes?feed_id="+feed.ID, nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var episodes []EpisodeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &episodes))
	assert.Len(t, episodes, 1)
	assert.Empty(t, episodes[0].TranscriptText)
}

func TestDeleteFeedNotFound(t *testing.T) {
	deps := setupTestDeps(t)
	r := newTestRouter(deps)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/api/feeds/00000000-0000-0000-0000-000000000000", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateKeywordInvalidMatchType(t *testing.T) {
	deps := setupTestDeps(t)
	r := newTestRouter(deps)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/keywords", strings.NewReader(`{"phrase":"widgets","match_type":"fuzzy"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRetryEnrichmentConflictsWithoutTranscript(t *testing.T) {
	deps := setupTestDeps(t)
	r := newTestRouter(deps)
	ctx := context.Background()

	feed, err := deps.Store.CreateFeed(ctx, "https://example.com/retry-test.xml")
	require.NoError(t, err)
	title := "ep"
	audioURL := "https://example.com/ep.mp3"
	episode, _, err := deps.Store.UpsertEpisodeByGUID(ctx, feed.ID, "guid-retry-1", &title, &audioURL, nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/episodes/"+episode.ID+"/retry-enrichment", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRetryEnrichmentAllowsEmptyTranscript(t *testing.T) {
	deps := setupTestDeps(t)
	r := newTestRouter(deps)
	ctx := context.Background()

	feed, err := deps.Store.CreateFeed(ctx, "https://example.com/retry-test-2.xml")
	require.NoError(t, err)
	title := "ep"
	audioURL := "https://example.com/ep.mp3"
	episode, _, err := deps.Store.UpsertEpisodeByGUID(ctx, feed.ID, "guid-retry-2", &title, &audioURL, nil)
	require.NoError(t, err)
	require.NoError(t, deps.Store.SetEpisodeTranscript(ctx, episode.ID, ""))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/episodes/"+episode.ID+"/retry-enrichment", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestDashboardStatsBucketsByStatus(t *testing.T) {
	deps := setupTestDeps(t)
	r := newTestRouter(deps)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/dashboard/stats", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var stats DashboardStatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.GreaterOrEqual(t, stats.Feeds, 0)
}
