// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared by the session and
// conversation layers.
//
// # Key Types
//
//   - Message: closed sum of UserMessage, AssistantMessage and ErrorMessage
//   - Log: append-only, submission-ordered sequence of messages
//   - User: the identity resolved from /api/auth/me
//   - Usage: server-reported quota counters, mirrored verbatim
//
// # Usage
//
//	var log model.Log
//	log.Append(model.NewUserMessage("hello"))
//	for _, m := range log.Messages() {
//	    switch m := m.(type) {
//	    case model.UserMessage:
//	    case model.AssistantMessage:
//	    case model.ErrorMessage:
//	    }
//	}
package model
