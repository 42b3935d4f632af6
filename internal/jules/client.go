// Package jules talks to the Jules coding-agent API and reconciles remote
// session state into the board.
package jules

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/byjit/jules-board/pkg/models"
)

// AutomationModeAutoPR asks the remote agent to open a pull request on
// completion.
const AutomationModeAutoPR = "AUTO_CREATE_PR"

// Client is a thin HTTP client for the sessions API. Every call carries the
// API key header and is bounded by the configured timeout.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Configured reports whether an API key is set. Without one, no request is
// ever issued.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type createSessionRequest struct {
	Prompt         string        `json:"prompt"`
	SourceContext  sourceContext `json:"sourceContext"`
	AutomationMode string        `json:"automationMode"`
	Title          string        `json:"title"`
}

type sourceContext struct {
	Source            string            `json:"source"`
	GithubRepoContext githubRepoContext `json:"githubRepoContext"`
}

type githubRepoContext struct {
	StartingBranch string `json:"startingBranch"`
}

type sessionResponse struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// CreateSession starts a remote session for a story and returns the opaque
// session name.
func (c *Client) CreateSession(ctx context.Context, story *models.Story, project *models.Project) (string, error) {
	prompt, err := BuildPrompt(project, story)
	if err != nil {
		return "", fmt.Errorf("build session prompt: %w", err)
	}

	reqBody := createSessionRequest{
		Prompt: prompt,
		SourceContext: sourceContext{
			Source:            project.GitRepo,
			GithubRepoContext: githubRepoContext{StartingBranch: project.GitBranch},
		},
		AutomationMode: AutomationModeAutoPR,
		Title:          story.Title,
	}

	var result sessionResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/sessions", reqBody, &result); err != nil {
		return "", err
	}
	if result.Name == "" {
		return "", fmt.Errorf("sessions api returned no session name")
	}
	return result.Name, nil
}

// GetSession fetches the current state string for a session. An absent state
// is reported as UNKNOWN.
func (c *Client) GetSession(ctx context.Context, name string) (string, error) {
	var result sessionResponse
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/"+name, nil, &result); err != nil {
		return "", err
	}
	if result.State == "" {
		return models.SessionStateUnknown, nil
	}
	return result.State, nil
}

// DeleteSession tears down a remote session.
func (c *Client) DeleteSession(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, c.baseURL+"/"+name, nil, nil)
}

func (c *Client) do(ctx context.Context, method, url string, reqBody, result any) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sessions api: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sessions api: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
