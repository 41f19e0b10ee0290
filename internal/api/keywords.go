package api

import (
	"log/slog"
	"net/http"
	"strings"

	"podlistener/internal/store"

	"github.com/gin-gonic/gin"
)

// KeywordResponse is one keyword as returned to API callers.
type KeywordResponse struct {
	ID        string `json:"id"`
	Phrase    string `json:"phrase"`
	MatchType string `json:"match_type"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type createKeywordRequest struct {
	Phrase    string `json:"phrase" binding:"required"`
	MatchType string `json:"match_type" binding:"required"`
}

var validMatchTypes = map[string]store.MatchType{
	string(store.MatchContains):  store.MatchContains,
	string(store.MatchExactWord): store.MatchExactWord,
	string(store.MatchRegex):     store.MatchRegex,
}

// HandleListKeywords returns a handler that lists every keyword, newest
// first — display order, distinct from the insertion order ListKeywords
// gives the detector so mention ordering stays stable across a retry.
// @Summary      List keywords
// @Description  List all registered keywords, newest first
// @Tags         keywords
// @Produce      json
// @Success      200  {array}   KeywordResponse
// @Failure      500  {object}  map[string]string
// @Router       /keywords [get]
func HandleListKeywords(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		keywords, err := deps.Store.ListKeywords(ctx)
		if err != nil {
			slog.Error("list keywords failed", "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list keywords"})
			return
		}

		out := make([]KeywordResponse, 0, len(keywords))
		for i := len(keywords) - 1; i >= 0; i-- {
			out = append(out, toKeywordResponse(keywords[i]))
		}

		c.JSON(http.StatusOK, out)
	}
}

// HandleCreateKeyword returns a handler that registers a new keyword to
// scan transcripts for.
// @Summary      Create keyword
// @Description  Register a new keyword phrase and its match strategy
// @Tags         keywords
// @Accept       json
// @Produce      json
// @Param        body body createKeywordRequest true "Keyword to register"
// @Success      201  {object}  KeywordResponse
// @Failure      409  {object}  map[string]string
// @Failure      422  {object}  map[string]string
// @Router       /keywords [post]
func HandleCreateKeyword(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createKeywordRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Phrase) == "" {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "phrase is required"})
			return
		}

		matchType, ok := validMatchTypes[req.MatchType]
		if !ok {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "match_type must be one of contains, exact_word, regex"})
			return
		}

		ctx := c.Request.Context()
		keyword, err := deps.Store.CreateKeyword(ctx, req.Phrase, matchType)
		if err != nil {
			if isAlreadyExists(err) {
				c.JSON(http.StatusConflict, gin.H{"error": "a keyword with this phrase is already registered"})
				return
			}
			slog.Error("create keyword failed", "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create keyword"})
			return
		}

		c.JSON(http.StatusCreated, toKeywordResponse(keyword))
	}
}

// HandleDeleteKeyword returns a handler that removes a keyword, cascading
// to the mentions it produced.
// @Summary      Delete keyword
// @Description  Remove a keyword, cascading to the mentions it produced
// @Tags         keywords
// @Param        id path string true "Keyword ID"
// @Success      204
// @Failure      404  {object}  map[string]string
// @Router       /keywords/{id} [delete]
func HandleDeleteKeyword(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		ctx := c.Request.Context()

		keyword, err := deps.Store.GetKeyword(ctx, id)
		if err != nil {
			slog.Error("get keyword failed", "keyword_id", id, "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete keyword"})
			return
		}
		if keyword == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "keyword not found"})
			return
		}

		if err := deps.Store.DeleteKeyword(ctx, id); err != nil {
			slog.Error("delete keyword failed", "keyword_id", id, "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete keyword"})
			return
		}

		c.Status(http.StatusNoContent)
	}
}

func toKeywordResponse(k *store.Keyword) KeywordResponse {
	return KeywordResponse{
		ID:        k.ID,
		Phrase:    k.Phrase,
		MatchType: string(k.MatchType),
		CreatedAt: k.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt: k.UpdatedAt.UTC().Format(timeLayout),
	}
}
