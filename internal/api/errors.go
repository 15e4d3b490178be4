// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// FallbackGenerateMessage is shown when a failed generation carries no detail.
const FallbackGenerateMessage = "Failed to generate response"

// Error is a non-2xx, non-401 response from the backend.
type Error struct {
	Status int
	// Detail is the human-readable message from the response body, or ""
	// when the body carried none.
	Detail string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend error (HTTP %d): %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("backend error (HTTP %d)", e.Status)
}

// DetailMessage returns the server-provided detail of err, if it has one.
func DetailMessage(err error) (string, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail, true
	}
	return "", false
}

// errorBody is the FastAPI error envelope. detail is a string for plain
// HTTPExceptions, an object for rate limiting and a list for validation.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

type rateLimitDetail struct {
	Error             string `json:"error"`
	LimitType         string `json:"limit_type"`
	Limit             int    `json:"limit"`
	RetryAfterSeconds *int   `json:"retry_after_seconds"`
}

type validationDetail struct {
	Msg string `json:"msg"`
}

// handleErrorResponse converts an error response to an *Error.
func handleErrorResponse(statusCode int, body []byte) error {
	return &Error{Status: statusCode, Detail: parseDetail(body)}
}

func parseDetail(body []byte) string {
	var env errorBody
	if err := json.Unmarshal(body, &env); err != nil || len(env.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(env.Detail, &s); err == nil {
		return s
	}

	var rl rateLimitDetail
	if err := json.Unmarshal(env.Detail, &rl); err == nil && rl.Error != "" {
		if rl.RetryAfterSeconds != nil {
			return fmt.Sprintf("%s (retry in %ds)", rl.Error, *rl.RetryAfterSeconds)
		}
		return rl.Error
	}

	var list []validationDetail
	if err := json.Unmarshal(env.Detail, &list); err == nil {
		var msgs []string
		for _, d := range list {
			if d.Msg != "" {
				msgs = append(msgs, d.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
