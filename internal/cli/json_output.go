// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// json_output.go - Machine-readable output for --json commands.
package cli

import (
	"encoding/json"
	"io"
	"time"

	"github.com/jeranaias/minillm/internal/model"
)

// JSONResponse is the envelope every --json command prints.
type JSONResponse struct {
	Success bool `json:"success"`

	// Data contains the command-specific response data
	Data interface{} `json:"data"`

	// Error is the error message if Success is false, null otherwise
	Error *string `json:"error"`

	Timestamp string `json:"timestamp"`
	Command   string `json:"command,omitempty"`
}

// NewJSONResponse creates a successful response.
func NewJSONResponse(command string, data interface{}) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates an error response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	errStr := err.Error()
	return &JSONResponse{
		Success:   false,
		Error:     &errStr,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Print writes the response to w, indented.
func (r *JSONResponse) Print(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// OutputJSON runs handler and prints its result as a JSONResponse. The
// handler's error is printed in the envelope and returned.
func OutputJSON(w io.Writer, command string, handler func() (interface{}, error)) error {
	data, err := handler()
	if err != nil {
		NewJSONErrorResponse(command, err).Print(w)
		return err
	}
	return NewJSONResponse(command, data).Print(w)
}

// =============================================================================
// COMMAND-SPECIFIC DATA STRUCTURES
// =============================================================================

// WhoamiData is the whoami --json payload.
type WhoamiData struct {
	ID        string      `json:"id"`
	Username  string      `json:"username"`
	AvatarURL *string     `json:"avatar_url"`
	Usage     model.Usage `json:"usage"`
}

// StatusData is the status --json payload.
type StatusData struct {
	BackendURL string        `json:"backend_url"`
	Backend    StatusBackend `json:"backend"`
	Storage    string        `json:"storage"`
	Session    StatusSession `json:"session"`
}

// StatusBackend describes backend reachability.
type StatusBackend struct {
	Reachable      bool   `json:"reachable"`
	Status         string `json:"status,omitempty"`
	LLMModelLoaded bool   `json:"llm_model_loaded"`
	TestMode       bool   `json:"test_mode"`
	Error          string `json:"error,omitempty"`
}

// StatusSession describes the stored session.
type StatusSession struct {
	State    string `json:"state"`
	Username string `json:"username,omitempty"`
}

// VersionData is the version --json payload.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}
