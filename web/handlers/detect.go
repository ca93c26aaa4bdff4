package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openeduhub/duplicate-detection/cache"
	"github.com/openeduhub/duplicate-detection/detect"
	"github.com/openeduhub/duplicate-detection/web/middleware"
)

// requestTimeout bounds one detection end to end, including all
// upstream fan-out.
const requestTimeout = 55 * time.Second

// DetectHandler serves the duplicate-detection endpoints. Each request
// passes validation, then the rate limiter, then the cache.
type DetectHandler struct {
	pipeline      *detect.Pipeline
	responseCache *cache.Cache
	limiter       *middleware.IPRateLimiter
	maxCandidates int
	logger        *zap.Logger
}

// NewDetectHandler creates the detection handler. maxCandidates is the
// configured ceiling for client-supplied limits.
func NewDetectHandler(pipeline *detect.Pipeline, responseCache *cache.Cache, limiter *middleware.IPRateLimiter, maxCandidates int, logger *zap.Logger) *DetectHandler {
	return &DetectHandler{
		pipeline:      pipeline,
		responseCache: responseCache,
		limiter:       limiter,
		maxCandidates: maxCandidates,
		logger:        logger,
	}
}

type detectParams struct {
	SimilarityThreshold *float64 `json:"similarity_threshold"`
	SearchFields        []string `json:"search_fields"`
	MaxCandidates       *int     `json:"max_candidates"`
}

type byNodeRequest struct {
	NodeID string `json:"node_id"`
	detectParams
}

type byMetadataRequest struct {
	Metadata detect.Metadata `json:"metadata"`
	detectParams
}

// ByNode detects duplicates of an existing repository node.
func (h *DetectHandler) ByNode(c *gin.Context) {
	var req byNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithClientError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.NodeID) == "" {
		respondWithClientError(c, http.StatusBadRequest, "node_id is required")
		return
	}

	opts, msg := h.buildOptions(req.detectParams)
	if msg != "" {
		respondWithClientError(c, http.StatusBadRequest, msg)
		return
	}
	if !h.allow(c) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	resp, err := h.pipeline.DetectByNode(ctx, req.NodeID, opts)
	if err != nil {
		respondWithError(c, statusForError(err), err, "Duplicate detection failed: "+err.Error(), h.logger,
			zap.String("node_id", req.NodeID))
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ByMetadata detects duplicates of a caller-supplied metadata record.
// Responses are cached; by-node results are not, their inputs can
// change upstream between calls.
func (h *DetectHandler) ByMetadata(c *gin.Context) {
	var req byMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithClientError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	opts, msg := h.buildOptions(req.detectParams)
	if msg != "" {
		respondWithClientError(c, http.StatusBadRequest, msg)
		return
	}
	if !h.allow(c) {
		return
	}

	key := detect.CacheKey(req.Metadata, opts)
	if cached, ok := h.responseCache.Get(key); ok {
		h.logger.Debug("Detection cache hit", zap.String("key", key))
		c.JSON(http.StatusOK, cached)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	resp, err := h.pipeline.DetectByMetadata(ctx, req.Metadata, opts)
	if err != nil {
		respondWithError(c, statusForError(err), err, "Duplicate detection failed: "+err.Error(), h.logger)
		return
	}

	h.responseCache.Set(key, resp)
	c.JSON(http.StatusOK, resp)
}

// allow consumes a rate limit token for the client. On exhaustion it
// writes the 429 response and returns false.
func (h *DetectHandler) allow(c *gin.Context) bool {
	ip := c.ClientIP()
	allowed := h.limiter.Allow(ip)

	c.Header("X-RateLimit-Limit", strconv.Itoa(h.limiter.Limit()))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(h.limiter.Remaining(ip)))

	if !allowed {
		h.logger.Warn("Rate limit exceeded",
			zap.String("client_ip", ip),
			zap.String("path", c.Request.URL.Path))

		c.Header("Retry-After", "60")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": "Rate limit exceeded",
		})
		return false
	}
	return true
}

// buildOptions validates and defaults the request parameters. The
// returned message is non-empty on validation failure.
func (h *DetectHandler) buildOptions(params detectParams) (detect.Options, string) {
	opts := detect.Options{
		Threshold:     detect.DefaultThreshold,
		SearchFields:  detect.DefaultSearchFields,
		MaxCandidates: h.maxCandidates,
	}

	if params.SimilarityThreshold != nil {
		t := *params.SimilarityThreshold
		if t < 0 || t > 1 {
			return opts, "similarity_threshold must be between 0.0 and 1.0"
		}
		opts.Threshold = t
	}

	if len(params.SearchFields) > 0 {
		for _, f := range params.SearchFields {
			switch f {
			case detect.FieldTitle, detect.FieldDescription, detect.FieldKeywords, detect.FieldURL:
			default:
				return opts, "unknown search field: " + f
			}
		}
		opts.SearchFields = params.SearchFields
	}

	if params.MaxCandidates != nil {
		mc := *params.MaxCandidates
		if mc < 1 {
			return opts, "max_candidates must be at least 1"
		}
		// Clamp to the configured ceiling rather than rejecting
		if mc > h.maxCandidates {
			mc = h.maxCandidates
		}
		opts.MaxCandidates = mc
	}

	return opts, ""
}
