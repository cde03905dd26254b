// Package client talks to a running changelog server.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/saint0x/ggchangelog/pkg/changelog"
	"github.com/saint0x/ggchangelog/pkg/models"
	"github.com/saint0x/ggchangelog/pkg/pipeline"
	"github.com/saint0x/ggchangelog/pkg/progress"
)

// Client calls the changelog HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the server at baseURL. A nil httpClient uses a
// client without a timeout, since generation and progress calls are long.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpClient,
	}
}

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// GenerateRequest mirrors the body of POST /generate-changelog.
type GenerateRequest struct {
	Owner     string `json:"owner"`
	Repo      string `json:"repo"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

// GenerateResponse is a successful generation.
type GenerateResponse struct {
	Success    bool                 `json:"success"`
	Changelog  *changelog.Changelog `json:"changelog"`
	Repository *models.Repository   `json:"repository,omitempty"`
	Stats      pipeline.Stats       `json:"stats"`
}

// Health checks if the server is healthy
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.get(ctx, "/health", nil)
}

// Generate runs a generation and waits for its result.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate-changelog", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var out GenerateResponse
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	if !out.Success || out.Changelog == nil {
		return nil, errors.New("server did not return a changelog")
	}
	return &out, nil
}

// Repositories lists the stored repositories.
func (c *Client) Repositories(ctx context.Context) ([]models.Repository, error) {
	var repos []models.Repository
	if err := c.get(ctx, "/repositories", &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

// Repository fetches one repository with its changelog.
func (c *Client) Repository(ctx context.Context, id uint) (*models.Repository, error) {
	var repo models.Repository
	if err := c.get(ctx, fmt.Sprintf("/repositories/%d", id), &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

// Progress opens the progress stream of owner/repo. ready is called once the
// server confirmed the subscription; fn gets every later event. It returns
// after a terminal event, when the server closes the stream or ctx ends.
func (c *Client) Progress(ctx context.Context, owner, repo string, ready func(), fn func(progress.Event)) error {
	q := url.Values{"owner": {owner}, "repo": {repo}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/generate-changelog/progress?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to open progress stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	first := true
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var ev progress.Event
		if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &ev); err != nil {
			return fmt.Errorf("failed to parse progress event: %w", err)
		}
		if first {
			first = false
			if ready != nil {
				ready()
			}
			continue
		}
		fn(ev)
		if ev.Terminal() {
			return nil
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse server response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var e struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		msg = e.Error
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}
