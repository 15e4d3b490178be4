// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/minillm/internal/gateway"
)

type staticToken string

func (s staticToken) Get() (string, bool) { return string(s), s != "" }

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	gw := gateway.New(staticToken("abc123")).WithLogger(log.New(io.Discard, "", 0))
	return NewClient(srv.URL+"/", gw.Client(0))
}

// =============================================================================
// AUTH ENDPOINT TESTS
// =============================================================================

func TestAuthURL(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/github", r.URL.Path)
		io.WriteString(w, `{"auth_url":"https://github.com/login/oauth/authorize?client_id=x"}`)
	})

	u, err := c.AuthURL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/login/oauth/authorize?client_id=x", u)
}

func TestAuthURL_Missing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	})
	_, err := c.AuthURL(context.Background())
	assert.ErrorIs(t, err, ErrMissingAuthURL)
}

func TestCurrentUser(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/me", r.URL.Path)
		assert.Equal(t, "Bearer abc123", r.Header.Get("Authorization"))
		io.WriteString(w, `{"user":{"id":"1","username":"ada"},
			"usage":{"requests_today":3,"limit_per_day":100,"requests_last_minute":1,"limit_per_minute":10}}`)
	})

	user, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, "1", user.ID)
	assert.Equal(t, "ada", user.Username)
	assert.False(t, user.HasAvatar())
	assert.Equal(t, 3, user.Usage.RequestsToday)
	assert.Equal(t, 100, user.Usage.LimitPerDay)
	assert.Equal(t, 1, user.Usage.RequestsLastMinute)
	assert.Equal(t, 10, user.Usage.LimitPerMinute)
}

func TestCurrentUser_NumericIDAndAvatar(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"user":{"id":583231,"username":"octocat","avatar_url":"https://avatars/u/1"},"usage":{}}`)
	})

	user, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, "583231", user.ID)
	assert.Equal(t, "https://avatars/u/1", user.AvatarURL)
}

func TestCurrentUser_Unauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"detail":"Invalid token: Signature has expired"}`)
	})

	_, err := c.CurrentUser(context.Background())
	assert.True(t, gateway.IsUnauthorized(err))
	_, hasDetail := DetailMessage(err)
	assert.False(t, hasDetail)
}

// =============================================================================
// GENERATE TESTS
// =============================================================================

func TestGenerate_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/llm/generate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "  hello\n", req["prompt"])
		assert.EqualValues(t, 100, req["max_tokens"])

		io.WriteString(w, `{"response":"hi","inference_time_seconds":0.42,
			"usage":{"requests_today":4,"limit_per_day":100,"requests_last_minute":2,"limit_per_minute":10}}`)
	})

	res, err := c.Generate(context.Background(), "  hello\n", 0)
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Text)
	require.NotNil(t, res.InferenceSeconds)
	assert.Equal(t, 0.42, *res.InferenceSeconds)
	assert.Equal(t, 4, res.Usage.RequestsToday)
}

func TestGenerate_MaxTokens(t *testing.T) {
	var got float64
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		json.NewDecoder(r.Body).Decode(&req)
		got = req["max_tokens"].(float64)
		io.WriteString(w, `{"response":"x","usage":{}}`)
	})

	_, err := c.WithMaxTokens(256).Generate(context.Background(), "p", 0)
	require.NoError(t, err)
	assert.EqualValues(t, 256, got)

	_, err = c.Generate(context.Background(), "p", 32)
	require.NoError(t, err)
	assert.EqualValues(t, 32, got)
}

func TestGenerate_TestModeOmitsInferenceTime(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"response":"[TEST MODE] Mock response for: p...","usage":{},"user":"ada"}`)
	})

	res, err := c.Generate(context.Background(), "p", 0)
	require.NoError(t, err)
	assert.Nil(t, res.InferenceSeconds)
}

func TestGenerate_ErrorDetails(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		detail string
	}{
		{"string detail", 500, `{"detail":"rate limited"}`, "rate limited"},
		{"rate limit object", 429,
			`{"detail":{"error":"Rate limit exceeded","limit_type":"per_minute","limit":10,"retry_after_seconds":60}}`,
			"Rate limit exceeded (retry in 60s)"},
		{"object without retry", 429, `{"detail":{"error":"Daily rate limit exceeded"}}`, "Daily rate limit exceeded"},
		{"validation list", 422, `{"detail":[{"loc":["body","prompt"],"msg":"field required"}]}`, "field required"},
		{"no detail", 503, `{}`, ""},
		{"not json", 502, `<html>Bad Gateway</html>`, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			})

			_, err := c.Generate(context.Background(), "p", 0)
			require.Error(t, err)

			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.status, apiErr.Status)
			assert.Equal(t, tc.detail, apiErr.Detail)

			detail, ok := DetailMessage(err)
			assert.Equal(t, tc.detail != "", ok)
			assert.Equal(t, tc.detail, detail)
		})
	}
}

func TestError_Message(t *testing.T) {
	e := &Error{Status: 429, Detail: "Rate limit exceeded"}
	assert.Contains(t, e.Error(), "429")
	assert.Contains(t, e.Error(), "Rate limit exceeded")
	assert.Equal(t, "backend error (HTTP 500)", (&Error{Status: 500}).Error())
}

func TestGenerate_ResponseTooLarge(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"response":"`)
		io.WriteString(w, strings.Repeat("a", MaxResponseSize))
		io.WriteString(w, `"}`)
	})

	_, err := c.Generate(context.Background(), "p", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum size")
}

func TestGenerate_ContextCanceled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Generate(ctx, "p", 0)
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// HEALTH TESTS
// =============================================================================

func TestHealth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		io.WriteString(w, `{"status":"ok","llm_model_loaded":false,"test_mode":true}`)
	})

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.True(t, h.TestMode)
	assert.False(t, h.LLMModelLoaded)
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("", nil)
	assert.Equal(t, DefaultBaseURL, c.BaseURL())
}
