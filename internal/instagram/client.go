// Package instagram publishes reels through the Instagram Graph API.
//
// Publishing is a multi-step process:
//  1. Create a reel media container (video uploaded via public URL)
//  2. Poll container status until server-side processing finishes
//  3. Publish the container
//  4. Fetch the permalink of the published media
//
// Every API failure is classified so the executor can decide between
// retry and terminal failure: expired tokens are auth errors, throttling
// is rate limiting, rejected media is a validation error, and anything
// transport-level or 5xx is transient.
package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/reel-scheduler/internal/jobutil"
)

const (
	// defaultBaseURL is the Instagram Graph API base URL.
	defaultBaseURL = "https://graph.instagram.com/v22.0"

	// defaultTimeout is the HTTP client timeout for API calls.
	defaultTimeout = 30 * time.Second

	// Video container processing poll settings.
	initialPollInterval = 5 * time.Second
	maxPollInterval     = 30 * time.Second
	defaultPollTimeout  = 5 * time.Minute
)

// Graph API error codes that map to specific failure kinds.
const (
	errCodeInvalidToken  = 190
	errCodeAppRateLimit  = 4
	errCodeUserRateLimit = 17
	errCodePageRateLimit = 32
)

// Client publishes reels via the Graph API.
type Client struct {
	httpClient  *http.Client
	accessToken string
	userID      string
	baseURL     string
}

// NewClient creates an Instagram API client. accessToken and userID are
// loaded from SSM Parameter Store at cold start.
func NewClient(accessToken, userID string) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: defaultTimeout},
		accessToken: accessToken,
		userID:      userID,
		baseURL:     defaultBaseURL,
	}
}

// --- API response types ---

// apiResponse is the generic Instagram Graph API response.
type apiResponse struct {
	ID    string  `json:"id"`
	Error *apiErr `json:"error,omitempty"`
}

type apiErr struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id,omitempty"`
}

// containerStatusResponse is the response from GET /{container_id}?fields=status_code.
type containerStatusResponse struct {
	ID         string  `json:"id"`
	StatusCode string  `json:"status_code"` // IN_PROGRESS, FINISHED, ERROR
	Status     string  `json:"status,omitempty"`
	Error      *apiErr `json:"error,omitempty"`
}

// mediaListResponse is the response from GET /{user_id}/media.
type mediaListResponse struct {
	Data []struct {
		ID        string `json:"id"`
		Permalink string `json:"permalink"`
	} `json:"data"`
	Error *apiErr `json:"error,omitempty"`
}

// permalinkResponse is the response from GET /{media_id}?fields=permalink.
type permalinkResponse struct {
	ID        string  `json:"id"`
	Permalink string  `json:"permalink"`
	Error     *apiErr `json:"error,omitempty"`
}

// --- Publishing ---

// PublishRequest describes one reel publish call.
type PublishRequest struct {
	VideoURL       string // public (presigned) URL of the rendered MP4
	CoverURL       string // optional public URL of the cover JPEG
	Caption        string
	IdempotencyKey string // stable per content item across retries
	ShareToFeed    bool
}

// PublishResult is the outcome of a successful publish.
type PublishResult struct {
	MediaID   string
	Permalink string
}

// PublishReel runs the full container-create, process-wait, publish
// sequence and returns the published media id and permalink.
func (c *Client) PublishReel(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	containerID, err := c.createReelContainer(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := c.WaitForContainer(ctx, containerID, defaultPollTimeout); err != nil {
		return nil, err
	}

	mediaID, err := c.publish(ctx, containerID, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	permalink, err := c.Permalink(ctx, mediaID)
	if err != nil {
		// The post exists; a permalink fetch failure must not fail the job.
		log.Warn().Err(err).Str("mediaId", mediaID).Msg("Failed to fetch permalink after publish")
		permalink = ""
	}

	log.Info().
		Str("mediaId", mediaID).
		Str("permalink", permalink).
		Msg("Reel published")
	return &PublishResult{MediaID: mediaID, Permalink: permalink}, nil
}

// createReelContainer creates the media container for a reel.
func (c *Client) createReelContainer(ctx context.Context, req PublishRequest) (string, error) {
	params := url.Values{
		"video_url":     {req.VideoURL},
		"media_type":    {"REELS"},
		"caption":       {req.Caption},
		"share_to_feed": {fmt.Sprintf("%t", req.ShareToFeed)},
		"access_token":  {c.accessToken},
	}
	if req.CoverURL != "" {
		params.Set("cover_url", req.CoverURL)
	}
	if req.IdempotencyKey != "" {
		params.Set("idempotency_key", req.IdempotencyKey)
	}

	resp, err := c.postForm(ctx, fmt.Sprintf("/%s/media", c.userID), params)
	if err != nil {
		return "", fmt.Errorf("create reel container: %w", err)
	}
	log.Info().Str("containerId", resp.ID).Msg("Reel container created")
	return resp.ID, nil
}

// publish publishes a processed media container and returns the media id.
func (c *Client) publish(ctx context.Context, containerID, idempotencyKey string) (string, error) {
	params := url.Values{
		"creation_id":  {containerID},
		"access_token": {c.accessToken},
	}
	if idempotencyKey != "" {
		params.Set("idempotency_key", idempotencyKey)
	}

	resp, err := c.postForm(ctx, fmt.Sprintf("/%s/media_publish", c.userID), params)
	if err != nil {
		return "", fmt.Errorf("publish container %s: %w", containerID, err)
	}
	log.Info().Str("containerId", containerID).Str("mediaId", resp.ID).Msg("Container published")
	return resp.ID, nil
}

// --- Status polling ---

// ContainerStatus returns the processing status of a media container:
// IN_PROGRESS, FINISHED, or ERROR.
func (c *Client) ContainerStatus(ctx context.Context, containerID string) (string, error) {
	var status containerStatusResponse
	endpoint := fmt.Sprintf("/%s?fields=status_code,status&access_token=%s",
		containerID, url.QueryEscape(c.accessToken))
	if err := c.getJSON(ctx, endpoint, &status, func() *apiErr { return status.Error }); err != nil {
		return "", fmt.Errorf("container status %s: %w", containerID, err)
	}
	return status.StatusCode, nil
}

// WaitForContainer polls container status until FINISHED or ERROR.
// Poll interval doubles from 5s up to 30s.
func (c *Client) WaitForContainer(ctx context.Context, containerID string, timeout time.Duration) error {
	if timeout == 0 {
		timeout = defaultPollTimeout
	}

	deadline := time.Now().Add(timeout)
	interval := initialPollInterval

	for {
		if time.Now().After(deadline) {
			return jobutil.Ef(jobutil.KindTransientNetwork, "wait for container",
				"container %s: timed out after %s waiting for processing", containerID, timeout)
		}

		status, err := c.ContainerStatus(ctx, containerID)
		switch {
		case err != nil && !jobutil.Retryable(err):
			return err
		case err != nil:
			log.Warn().Err(err).Str("containerId", containerID).Msg("Container status poll error, retrying")
		case status == "FINISHED":
			log.Debug().Str("containerId", containerID).Msg("Container processing finished")
			return nil
		case status == "ERROR":
			return jobutil.Ef(jobutil.KindValidation, "wait for container",
				"container %s: processing failed on Instagram's side", containerID)
		case status == "IN_PROGRESS":
			log.Debug().Str("containerId", containerID).Dur("nextPoll", interval).Msg("Container still processing")
		default:
			log.Warn().Str("containerId", containerID).Str("status", status).Msg("Unknown container status")
		}

		select {
		case <-ctx.Done():
			return jobutil.E(jobutil.KindTransientNetwork, "wait for container", ctx.Err())
		case <-time.After(interval):
		}

		interval = interval * 2
		if interval > maxPollInterval {
			interval = maxPollInterval
		}
	}
}

// --- Recovery lookups ---

// LookupPublished checks whether a reel with the given idempotency key
// was already published. Used after an ambiguous publish outcome (crash
// or network error mid-call) to avoid a duplicate post.
func (c *Client) LookupPublished(ctx context.Context, idempotencyKey string) (*PublishResult, bool, error) {
	var list mediaListResponse
	endpoint := fmt.Sprintf("/%s/media?fields=id,permalink&idempotency_key=%s&access_token=%s",
		c.userID, url.QueryEscape(idempotencyKey), url.QueryEscape(c.accessToken))
	if err := c.getJSON(ctx, endpoint, &list, func() *apiErr { return list.Error }); err != nil {
		return nil, false, fmt.Errorf("lookup published %s: %w", idempotencyKey, err)
	}
	if len(list.Data) == 0 {
		return nil, false, nil
	}
	return &PublishResult{
		MediaID:   list.Data[0].ID,
		Permalink: list.Data[0].Permalink,
	}, true, nil
}

// Permalink fetches the public URL of a published media item.
func (c *Client) Permalink(ctx context.Context, mediaID string) (string, error) {
	var resp permalinkResponse
	endpoint := fmt.Sprintf("/%s?fields=permalink&access_token=%s",
		mediaID, url.QueryEscape(c.accessToken))
	if err := c.getJSON(ctx, endpoint, &resp, func() *apiErr { return resp.Error }); err != nil {
		return "", fmt.Errorf("fetch permalink %s: %w", mediaID, err)
	}
	return resp.Permalink, nil
}

// --- Error classification ---

// classify maps an HTTP status plus Graph API error payload to a failure
// kind the executor understands.
func classify(statusCode int, apiError *apiErr) jobutil.Kind {
	if apiError != nil {
		switch apiError.Code {
		case errCodeInvalidToken:
			return jobutil.KindAuth
		case errCodeAppRateLimit, errCodeUserRateLimit, errCodePageRateLimit:
			return jobutil.KindRateLimited
		}
	}
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return jobutil.KindAuth
	case statusCode == http.StatusTooManyRequests:
		return jobutil.KindRateLimited
	case statusCode >= 400 && statusCode < 500:
		return jobutil.KindValidation
	default:
		return jobutil.KindTransientNetwork
	}
}

func newAPIError(op string, statusCode int, e *apiErr) error {
	return jobutil.Ef(classify(statusCode, e), op,
		"Instagram API error: %s (type: %s, code: %d)", e.Message, e.Type, e.Code)
}

// --- Internal helpers ---

// postForm sends a form-encoded POST and decodes the generic response.
func (c *Client) postForm(ctx context.Context, endpoint string, params url.Values) (*apiResponse, error) {
	start := time.Now()
	log.Debug().Str("method", http.MethodPost).Str("path", endpoint).Msg("Instagram API request")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint,
		strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		log.Debug().Dur("duration", duration).Err(err).Msg("Instagram API response")
		return nil, jobutil.E(jobutil.KindTransientNetwork, "instagram request", err)
	}
	defer httpResp.Body.Close()

	log.Debug().Int("statusCode", httpResp.StatusCode).Dur("duration", duration).Msg("Instagram API response")

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, jobutil.E(jobutil.KindTransientNetwork, "instagram request", err)
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, jobutil.Ef(classify(httpResp.StatusCode, nil), "instagram request",
			"parse response: %v (body: %s)", err, truncate(string(body), 200))
	}

	if resp.Error != nil {
		log.Error().
			Str("errorMessage", resp.Error.Message).
			Str("errorType", resp.Error.Type).
			Int("errorCode", resp.Error.Code).
			Msg("Instagram API error")
		return nil, newAPIError("instagram request", httpResp.StatusCode, resp.Error)
	}
	if httpResp.StatusCode >= 400 {
		return nil, jobutil.Ef(classify(httpResp.StatusCode, nil), "instagram request",
			"unexpected status %d (body: %s)", httpResp.StatusCode, truncate(string(body), 200))
	}

	if resp.ID == "" {
		return nil, jobutil.Ef(jobutil.KindValidation, "instagram request",
			"unexpected response: no ID returned (body: %s)", truncate(string(body), 200))
	}
	return &resp, nil
}

// getJSON sends a GET and decodes into out. errOf extracts the embedded
// API error after decoding.
func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}, errOf func() *apiErr) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return jobutil.E(jobutil.KindTransientNetwork, "instagram request", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return jobutil.E(jobutil.KindTransientNetwork, "instagram request", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return jobutil.Ef(classify(httpResp.StatusCode, nil), "instagram request",
			"parse response: %v (body: %s)", err, truncate(string(body), 200))
	}
	if e := errOf(); e != nil {
		return newAPIError("instagram request", httpResp.StatusCode, e)
	}
	if httpResp.StatusCode >= 400 {
		return jobutil.Ef(classify(httpResp.StatusCode, nil), "instagram request",
			"unexpected status %d", httpResp.StatusCode)
	}
	return nil
}

// truncate returns the first n characters of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
