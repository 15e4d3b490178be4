// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation owns one conversation: the append-only message log,
// the Idle/Submitting state machine and the last observed usage snapshot.
//
// # Submitting
//
// A submission has two halves. Begin runs synchronously: it rejects blank
// prompts and concurrent submissions, appends the user's message, clears the
// draft and enters Submitting. Run performs the generation call and appends
// exactly one Assistant or Error message before returning to Idle.
//
//	sub, err := ctrl.Begin(text)
//	if err != nil {
//	    return // ErrEmptyPrompt or ErrBusy: nothing changed
//	}
//	msg, err := sub.Run(ctx)
//
// Submit does both in one call. An authorization failure appends nothing:
// the session layer has already been invalidated by then.
package conversation
