// Package jira is the issue-tracker client: JQL search, changelog retrieval,
// and decomposition of raw issue JSON into defect records.
package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bouncer/internal/logging"
)

// Client is a high-level client for the Jira REST v2 API.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures the Client during construction.
type Option func(*clientConfig) error

type clientConfig struct {
	httpClient *http.Client
	logger     *slog.Logger
	timeout    time.Duration
}

// New creates a Client for the given Jira instance. Credentials are sent as
// HTTP basic auth on every request.
func New(baseURL, username, password string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("jira: baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	cfg := &clientConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	httpClient := cfg.httpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.timeout > 0 {
		httpClient.Timeout = cfg.timeout
	}

	logger := cfg.logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Client{
		baseURL:    baseURL,
		username:   username,
		password:   password,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *clientConfig) error {
		cfg.httpClient = c
		return nil
	}
}

// WithLogger configures structured logging.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *clientConfig) error {
		cfg.logger = l
		return nil
	}
}

// WithTimeout sets a timeout on the HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(cfg *clientConfig) error {
		cfg.timeout = d
		return nil
	}
}

// APIError is a non-2xx response from Jira.
type APIError struct {
	Operation  string
	StatusCode int
	Messages   []string
}

func (e *APIError) Error() string {
	if len(e.Messages) > 0 {
		return fmt.Sprintf("%s: jira returned %d: %s", e.Operation, e.StatusCode, strings.Join(e.Messages, "; "))
	}
	return fmt.Sprintf("%s: jira returned %d", e.Operation, e.StatusCode)
}

// errorBody is Jira's standard error envelope.
type errorBody struct {
	ErrorMessages []string          `json:"errorMessages"`
	Errors        map[string]string `json:"errors"`
}

// doJSON executes a GET and decodes the JSON response into dst. Non-2xx
// responses become an *APIError.
func (c *Client) doJSON(ctx context.Context, url, operation string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", operation, err)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	c.logger.Debug("API request", "operation", operation, "url", url)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: do request: %w", operation, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("API response", "operation", operation, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{Operation: operation, StatusCode: resp.StatusCode}
		var body errorBody
		if json.Unmarshal(respBody, &body) == nil {
			apiErr.Messages = body.ErrorMessages
			for field, msg := range body.Errors {
				apiErr.Messages = append(apiErr.Messages, field+": "+msg)
			}
		}
		if len(apiErr.Messages) == 0 && len(respBody) > 0 {
			apiErr.Messages = []string{string(respBody)}
		}
		return apiErr
	}

	if dst != nil {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			return fmt.Errorf("%s: decode response: %w", operation, err)
		}
	}
	return nil
}

// SearchOption adds a clause to the JQL query.
type SearchOption func(clauses *[]string)

// WithIssueType filters by issue type (e.g. "defect").
func WithIssueType(t string) SearchOption {
	return func(clauses *[]string) {
		*clauses = append(*clauses, fmt.Sprintf("issuetype = %s", t))
	}
}

// WithStatus filters by current status.
func WithStatus(status string) SearchOption {
	return func(clauses *[]string) {
		*clauses = append(*clauses, fmt.Sprintf("status = %q", status))
	}
}

// WithUpdatedBetween restricts results to issues updated inside the window.
// Bounds use Jira's yyyy/MM/dd date literal form.
func WithUpdatedBetween(start, end time.Time) SearchOption {
	return func(clauses *[]string) {
		*clauses = append(*clauses,
			fmt.Sprintf("updated >= %q", start.Format("2006/01/02")),
			fmt.Sprintf("updated <= %q", end.Format("2006/01/02")))
	}
}

// searchPageSize is Jira's default page cap for /search.
const searchPageSize = 50

// Search runs a JQL query for a project and returns every matching issue,
// auto-paginating via startAt.
func (c *Client) Search(ctx context.Context, project string, opts ...SearchOption) ([]Issue, error) {
	clauses := []string{fmt.Sprintf("project = '%s'", project)}
	for _, opt := range opts {
		opt(&clauses)
	}
	jql := strings.Join(clauses, " AND ")

	var all []Issue
	startAt := 0
	for {
		u := fmt.Sprintf("%s/rest/api/2/search?jql=%s&startAt=%d&maxResults=%d",
			c.baseURL, url.QueryEscape(jql), startAt, searchPageSize)

		var page searchResponse
		if err := c.doJSON(ctx, u, "search issues", &page); err != nil {
			return nil, err
		}
		all = append(all, page.Issues...)

		startAt += len(page.Issues)
		if len(page.Issues) == 0 || startAt >= page.Total {
			break
		}
	}

	c.logger.Debug("search complete", "project", project, "jql", jql, "issues", len(all))
	return all, nil
}

// ChangeLog fetches one issue with its changelog expanded.
func (c *Client) ChangeLog(ctx context.Context, key string) (*ChangeLogResponse, error) {
	u := fmt.Sprintf("%s/rest/api/2/issue/%s?expand=changelog", c.baseURL, url.PathEscape(key))

	var resp ChangeLogResponse
	if err := c.doJSON(ctx, u, "get changelog", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BrowseURL returns the human-facing link for an issue key.
func (c *Client) BrowseURL(key string) string {
	return c.baseURL + "/browse/" + key
}
