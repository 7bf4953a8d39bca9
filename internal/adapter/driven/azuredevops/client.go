// Package azuredevops implements the GitClient port over the Azure DevOps
// REST API 7.0.
package azuredevops

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/gregjones/httpcache"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
	"github.com/ericfisherdev/devpulse/internal/domain/port/driven"
	"github.com/ericfisherdev/devpulse/internal/metrics"
)

const (
	apiVersion = "7.0"
	provider   = "azure_devops"

	// DefaultBaseURL is the Azure DevOps Services endpoint.
	DefaultBaseURL = "https://dev.azure.com"

	defaultInitialInterval = 300 * time.Millisecond
	backoffMultiplier      = 1.5
	maxRetries             = 2
	requestTimeout         = 30 * time.Second
)

// Compile-time interface satisfaction check.
var _ driven.GitClient = (*Client)(nil)

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("azure devops API error %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the request may succeed if repeated.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// Client implements the driven.GitClient port for one Azure DevOps
// organization authenticated with a personal access token.
type Client struct {
	http         *http.Client
	baseURL      string
	organization string
	pat          string
	breaker      *gobreaker.CircuitBreaker[[]byte]

	initialInterval time.Duration
}

// NewClient creates a Client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching for GETs)
//  2. retry with exponential backoff on 429 and 5xx
//  3. a circuit breaker around each retried request
func NewClient(baseURL, organization, pat string) *Client {
	httpClient := &http.Client{
		Transport: httpcache.NewMemoryCacheTransport(),
		Timeout:   requestTimeout,
	}
	return NewClientWithHTTPClient(httpClient, baseURL, organization, pat)
}

// NewClientWithHTTPClient creates a Client with a custom http.Client. Tests
// use it to point the client at an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, organization, pat string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	name := "azure-devops:" + organization
	metrics.RecordCircuitBreakerState(name, 0)

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		// Client errors say nothing about upstream health.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return !apiErr.Retryable()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			metrics.RecordCircuitBreakerState(name, stateToFloat(to))
		},
	})

	return &Client{
		http:            httpClient,
		baseURL:         strings.TrimRight(baseURL, "/"),
		organization:    organization,
		pat:             pat,
		breaker:         breaker,
		initialInterval: defaultInitialInterval,
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// ValidateConnection lists a single project to check the credentials.
func (c *Client) ValidateConnection(ctx context.Context) error {
	q := url.Values{}
	q.Set("$top", "1")

	var resp listResponse[project]
	if err := c.get(ctx, c.orgURL("_apis/projects"), q, &resp); err != nil {
		return fmt.Errorf("validate connection to %s: %w", c.organization, err)
	}
	return nil
}

// ListProjects returns every project of the organization.
func (c *Client) ListProjects(ctx context.Context) ([]model.RemoteProject, error) {
	var projects []model.RemoteProject

	for skip := 0; ; skip += pageSize {
		q := url.Values{}
		q.Set("$top", fmt.Sprint(pageSize))
		q.Set("$skip", fmt.Sprint(skip))

		var resp listResponse[project]
		if err := c.get(ctx, c.orgURL("_apis/projects"), q, &resp); err != nil {
			return nil, fmt.Errorf("list projects (skip %d): %w", skip, err)
		}

		for _, p := range resp.Value {
			projects = append(projects, model.RemoteProject{ID: p.ID, Name: p.Name, Description: p.Description})
		}
		if len(resp.Value) < pageSize {
			break
		}
	}

	if projects == nil {
		projects = []model.RemoteProject{}
	}
	return projects, nil
}

// ListRepositories returns the git repositories of a project.
func (c *Client) ListRepositories(ctx context.Context, projectName string) ([]model.RemoteRepository, error) {
	var resp listResponse[repository]
	if err := c.get(ctx, c.orgURL(pathEscape(projectName), "_apis/git/repositories"), nil, &resp); err != nil {
		return nil, fmt.Errorf("list repositories of %s: %w", projectName, err)
	}

	repos := make([]model.RemoteRepository, 0, len(resp.Value))
	for _, r := range resp.Value {
		repos = append(repos, model.RemoteRepository{
			ID:            r.ID,
			Name:          r.Name,
			Project:       r.Project.Name,
			DefaultBranch: trimRef(r.DefaultBranch),
			URL:           r.WebURL,
		})
	}
	return repos, nil
}

// orgURL joins path segments under the organization root.
func (c *Client) orgURL(segments ...string) string {
	return c.baseURL + "/" + pathEscape(c.organization) + "/" + strings.Join(segments, "/")
}

// repoURL joins path segments under a repository's git API root.
func (c *Client) repoURL(ref driven.RepoRef, segments ...string) string {
	parts := append([]string{pathEscape(ref.Project), "_apis/git/repositories", pathEscape(ref.RepositoryID)}, segments...)
	return c.orgURL(parts...)
}

func pathEscape(s string) string {
	return url.PathEscape(s)
}

func (c *Client) get(ctx context.Context, rawURL string, query url.Values, dest any) error {
	return c.do(ctx, http.MethodGet, rawURL, query, nil, dest)
}

func (c *Client) post(ctx context.Context, rawURL string, body, dest any) error {
	return c.do(ctx, http.MethodPost, rawURL, nil, body, dest)
}

// do sends a request through the circuit breaker and the retry policy and
// decodes the JSON response into dest.
func (c *Client) do(ctx context.Context, method, rawURL string, query url.Values, body, dest any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api-version", apiVersion)
	target := rawURL + "?" + query.Encode()

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	data, err := c.breaker.Execute(func() ([]byte, error) {
		return c.retry(ctx, method, target, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("azure devops unavailable: %w", err)
		}
		return err
	}

	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}

func (c *Client) retry(ctx context.Context, method, target string, payload []byte) ([]byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialInterval
	policy.Multiplier = backoffMultiplier
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	var data []byte
	op := func() error {
		var err error
		data, err = c.attempt(ctx, method, target, payload)
		if err == nil {
			return nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		metrics.RecordUpstreamRetry(provider)
		slog.Debug("retrying azure devops request", "method", method, "url", target, "wait", wait, "error", err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, maxRetries), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) attempt(ctx context.Context, method, target string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth("", c.pat)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordUpstreamRequest(provider, 0)
		return nil, fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	metrics.RecordUpstreamRequest(provider, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
