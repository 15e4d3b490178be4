// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jeranaias/minillm/internal/model"
)

const (
	// DefaultBaseURL is the backend address used when none is configured.
	DefaultBaseURL = "http://localhost:8000"

	// DefaultMaxTokens is sent with Generate when the caller passes zero.
	DefaultMaxTokens = 100

	// MaxResponseSize caps the bytes read from any response body.
	MaxResponseSize = 10 * 1024 * 1024
)

// ErrMissingAuthURL is returned when /api/auth/github answers without a URL.
var ErrMissingAuthURL = errors.New("backend returned no auth_url")

// =============================================================================
// WIRE TYPES
// =============================================================================

type authURLResponse struct {
	AuthURL string `json:"auth_url"`
}

type meResponse struct {
	User struct {
		ID        model.UserID `json:"id"`
		Username  string       `json:"username"`
		AvatarURL *string      `json:"avatar_url"`
	} `json:"user"`
	Usage model.Usage `json:"usage"`
}

type generateRequest struct {
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
}

type generateResponse struct {
	Response             string      `json:"response"`
	InferenceTimeSeconds *float64    `json:"inference_time_seconds"`
	Usage                model.Usage `json:"usage"`
}

// GenerateResult is a successful generation.
type GenerateResult struct {
	Text string
	// InferenceSeconds is nil when the backend runs in test mode.
	InferenceSeconds *float64
	Usage            model.Usage
}

// Health is the backend's /health report.
type Health struct {
	Status         string `json:"status"`
	LLMModelLoaded bool   `json:"llm_model_loaded"`
	TestMode       bool   `json:"test_mode"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client calls the Mini LLM backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxTokens  int
}

// NewClient creates a client for baseURL sending through httpClient.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		maxTokens:  DefaultMaxTokens,
	}
}

// WithMaxTokens sets the max_tokens sent when Generate is given zero.
func (c *Client) WithMaxTokens(n int) *Client {
	if n > 0 {
		c.maxTokens = n
	}
	return c
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// AuthURL asks the backend for the OAuth provider's authorization URL.
func (c *Client) AuthURL(ctx context.Context) (string, error) {
	var out authURLResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/github", nil, &out); err != nil {
		return "", err
	}
	if out.AuthURL == "" {
		return "", ErrMissingAuthURL
	}
	return out.AuthURL, nil
}

// CurrentUser resolves the identity and usage of the stored token.
func (c *Client) CurrentUser(ctx context.Context) (*model.User, error) {
	var out meResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &out); err != nil {
		return nil, err
	}
	user := &model.User{
		ID:       out.User.ID,
		Username: out.User.Username,
		Usage:    out.Usage,
	}
	if out.User.AvatarURL != nil {
		user.AvatarURL = *out.User.AvatarURL
	}
	return user, nil
}

// Generate sends prompt byte-for-byte. maxTokens <= 0 uses the client default.
func (c *Client) Generate(ctx context.Context, prompt string, maxTokens int) (*GenerateResult, error) {
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	var out generateResponse
	req := generateRequest{Prompt: prompt, MaxTokens: maxTokens}
	if err := c.do(ctx, http.MethodPost, "/api/llm/generate", req, &out); err != nil {
		return nil, err
	}
	return &GenerateResult{
		Text:             out.Response,
		InferenceSeconds: out.InferenceTimeSeconds,
		Usage:            out.Usage,
	}, nil
}

// Health reports backend liveness. It needs no credential.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs one JSON exchange. A nil body sends no payload.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := readResponse(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return handleErrorResponse(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// readResponse reads the body with a size cap.
func readResponse(resp *http.Response) ([]byte, error) {
	limited := io.LimitReader(resp.Body, MaxResponseSize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}
