// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role identifies the variant of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleError     Role = "error"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleError:
		return "Error"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPES
// =============================================================================

// Message is one entry of a conversation log.
//
// The set of implementations is closed: UserMessage, AssistantMessage and
// ErrorMessage. Messages are values and are never modified after creation.
type Message interface {
	MessageID() string
	Timestamp() time.Time
	Role() Role
	Content() string

	sealed()
}

type header struct {
	id string
	at time.Time
}

func newHeader() header {
	return header{id: uuid.NewString(), at: time.Now()}
}

func (h header) MessageID() string    { return h.id }
func (h header) Timestamp() time.Time { return h.at }
func (header) sealed()                {}

// UserMessage holds a prompt exactly as the user submitted it.
type UserMessage struct {
	header
	Text string
}

// NewUserMessage creates a user message.
func NewUserMessage(text string) UserMessage {
	return UserMessage{header: newHeader(), Text: text}
}

func (UserMessage) Role() Role        { return RoleUser }
func (m UserMessage) Content() string { return m.Text }

// AssistantMessage holds a generated response.
type AssistantMessage struct {
	header
	Text string

	inference    float64
	hasInference bool
}

// NewAssistantMessage creates an assistant message. inferenceSeconds may be
// nil when the backend did not report a duration.
func NewAssistantMessage(text string, inferenceSeconds *float64) AssistantMessage {
	m := AssistantMessage{header: newHeader(), Text: text}
	if inferenceSeconds != nil {
		m.inference, m.hasInference = *inferenceSeconds, true
	}
	return m
}

func (AssistantMessage) Role() Role        { return RoleAssistant }
func (m AssistantMessage) Content() string { return m.Text }

// InferenceTime returns the reported inference duration, if any.
func (m AssistantMessage) InferenceTime() (float64, bool) {
	return m.inference, m.hasInference
}

// ErrorMessage holds a failed generation, shown inline in the log.
type ErrorMessage struct {
	header
	Text string
}

// NewErrorMessage creates an error message.
func NewErrorMessage(text string) ErrorMessage {
	return ErrorMessage{header: newHeader(), Text: text}
}

func (ErrorMessage) Role() Role        { return RoleError }
func (m ErrorMessage) Content() string { return m.Text }

// =============================================================================
// LOG
// =============================================================================

// Log is an append-only sequence of messages in submission order.
//
// Log is not safe for concurrent use; its owner serializes access.
type Log struct {
	messages []Message
}

// Append adds m to the end of the log.
func (l *Log) Append(m Message) {
	l.messages = append(l.messages, m)
}

// Len returns the number of messages.
func (l *Log) Len() int {
	return len(l.messages)
}

// Messages returns a copy of the log contents.
func (l *Log) Messages() []Message {
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}
