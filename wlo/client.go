// Package wlo is the client for the edu-sharing repository REST API.
// It exposes the two upstream operations the service depends on:
// node metadata lookup and field-scoped search.
package wlo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/openeduhub/duplicate-detection/errors"
)

// Upstream search properties. URL searches hit the exact-match property,
// everything else goes through the free-text search word.
const (
	PropertyWWWURL     = "ccm:wwwurl"
	PropertySearchWord = "ngsearchword"
)

const (
	repository  = "-home-"
	metadataSet = "mds_oeh"

	// pageSize is the upstream's page size; larger requests paginate.
	pageSize = 100

	backoffStart = 250 * time.Millisecond
	backoffCap   = 2 * time.Second

	redirectTimeout = 10 * time.Second
)

// Client talks to the edu-sharing API with retry and pagination handling.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	logger     *zap.Logger
}

// NewClient creates a repository client. timeout bounds each individual
// HTTP call; the caller's context bounds the whole operation.
func NewClient(baseURL string, timeout time.Duration, maxRetries int, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// FetchNode fetches the full metadata of a node. Returns ErrNotFound for
// unknown ids and ErrUpstreamFatal when the repository cannot be reached.
func (c *Client) FetchNode(ctx context.Context, nodeID string) (*Node, error) {
	endpoint := fmt.Sprintf("%s/node/v1/nodes/%s/%s/metadata?propertyFilter=-all-",
		c.baseURL, repository, url.PathEscape(nodeID))

	resp, err := c.doWithRetry(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrUpstreamFatal, "fetch metadata for node %s: %v", nodeID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "node %s", nodeID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Wrapf(apperrors.ErrUpstreamFatal, "fetch metadata for node %s: status %d", nodeID, resp.StatusCode)
	}

	var payload struct {
		Node *Node `json:"node"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrUpstreamFatal, "decode node metadata: "+err.Error())
	}
	if payload.Node == nil {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "node %s", nodeID)
	}

	return payload.Node, nil
}

// Search runs a field-scoped search, transparently paginating until
// maxItems results are collected or the upstream runs out.
func (c *Client) Search(ctx context.Context, property, query string, maxItems int) ([]Node, error) {
	endpoint := fmt.Sprintf("%s/search/v1/queries/%s/%s/ngsearch", c.baseURL, repository, metadataSet)

	body, err := json.Marshal(map[string]any{
		"criteria": []map[string]any{
			{"property": property, "values": []string{query}},
		},
	})
	if err != nil {
		return nil, err
	}

	var all []Node
	skipCount := 0

	for len(all) < maxItems {
		remaining := maxItems - len(all)
		currentPage := pageSize
		if remaining < currentPage {
			currentPage = remaining
		}

		pageURL := endpoint + "?" + url.Values{
			"contentType":    {"FILES"},
			"maxItems":       {strconv.Itoa(currentPage)},
			"skipCount":      {strconv.Itoa(skipCount)},
			"propertyFilter": {"-all-"},
		}.Encode()

		resp, err := c.doWithRetry(ctx, http.MethodPost, pageURL, body)
		if err != nil {
			return all, apperrors.Wrapf(apperrors.ErrUpstreamTransient, "search %s=%q: %v", property, query, err)
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return all, apperrors.Wrapf(apperrors.ErrUpstreamTransient, "search %s=%q: status %d", property, query, resp.StatusCode)
		}

		var payload struct {
			Nodes []Node `json:"nodes"`
		}
		err = json.NewDecoder(resp.Body).Decode(&payload)
		resp.Body.Close()
		if err != nil {
			return all, apperrors.Wrapf(apperrors.ErrUpstreamTransient, "search %s=%q: decode: %v", property, query, err)
		}

		if len(payload.Nodes) == 0 {
			break
		}

		all = append(all, payload.Nodes...)

		// Short page means the upstream is out of results
		if len(payload.Nodes) < currentPage {
			break
		}
		skipCount += len(payload.Nodes)

		if maxItems > pageSize {
			c.logger.Debug("Search pagination",
				zap.String("property", property),
				zap.Int("fetched", len(all)),
				zap.Int("max", maxItems))
		}
	}

	return all, nil
}

// CheckRedirect follows the redirect chain of a URL and returns the
// final location. Best-effort: any failure returns the original URL and
// false without surfacing an error.
func (c *Client) CheckRedirect(ctx context.Context, rawURL string) (string, bool) {
	if rawURL == "" {
		return rawURL, false
	}

	ctx, cancel := context.WithTimeout(ctx, redirectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return rawURL, false
	}
	req.Header.Set("User-Agent", "wlo-duplicate-detection/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return rawURL, false
	}
	resp.Body.Close()

	final := resp.Request.URL.String()
	if final == "" || final == rawURL {
		return rawURL, false
	}

	c.logger.Debug("Resolved URL redirect",
		zap.String("url", rawURL),
		zap.String("final", final))
	return final, true
}

// doWithRetry issues the request, retrying network errors and 5xx
// responses with exponential backoff. 4xx responses are returned as-is.
func (c *Client) doWithRetry(ctx context.Context, method, endpoint string, body []byte) (*http.Response, error) {
	var lastErr error
	backoff := backoffStart

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > backoffCap {
				backoff = backoffCap
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Debug("Upstream request failed",
				zap.String("url", endpoint),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}

		if resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			c.logger.Debug("Upstream returned server error",
				zap.String("url", endpoint),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1))
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}
