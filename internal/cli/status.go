// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// status.go - Backend health and session state.
//
// Command: status
// Short:   Show backend reachability, token storage and session state
// Aliases: s
//
// Flags:
//   --json   Output the report as JSON
package cli

import (
	"context"
	"fmt"

	"github.com/jeranaias/minillm/internal/app"
	"github.com/jeranaias/minillm/internal/config"
	"github.com/jeranaias/minillm/internal/session"
)

// HandleStatus prints the status report.
func HandleStatus(ctx context.Context, cfg *config.Config, args Args, env Env) error {
	a, err := openApp(cfg, env)
	if err != nil {
		return err
	}
	defer a.Close()

	data := collectStatus(ctx, a)
	if args.JSON {
		return NewJSONResponse("status", data).Print(env.Stdout)
	}

	fmt.Fprintln(env.Stdout, TitleStyle.Render("minillm status"))
	fmt.Fprintln(env.Stdout, RenderSeparator(41))
	fmt.Fprintln(env.Stdout, RenderField("Backend", data.BackendURL))
	fmt.Fprintln(env.Stdout, RenderField("Health", formatBackend(data.Backend)))
	fmt.Fprintln(env.Stdout, RenderField("Token store", data.Storage))
	fmt.Fprintln(env.Stdout, RenderField("Session", formatSession(data.Session)))
	return nil
}

// collectStatus gathers the report. The session is only resolved when the
// backend answers, so an outage does not cost the user their stored token.
func collectStatus(ctx context.Context, a *app.App) StatusData {
	data := StatusData{
		BackendURL: a.API.BaseURL(),
		Storage:    a.StoreDescription(),
	}

	health, err := a.Health(ctx)
	if err != nil {
		data.Backend.Error = err.Error()
		if a.Tokens.Present() {
			data.Session.State = "unverified"
		} else {
			data.Session.State = session.StateAnonymous.String()
		}
		return data
	}
	data.Backend = StatusBackend{
		Reachable:      true,
		Status:         health.Status,
		LLMModelLoaded: health.LLMModelLoaded,
		TestMode:       health.TestMode,
	}

	snap := a.Sessions.Start(ctx)
	data.Session.State = snap.State.String()
	if snap.User != nil {
		data.Session.Username = snap.User.Username
	}
	return data
}

func formatBackend(b StatusBackend) string {
	if !b.Reachable {
		return RenderStatus("unreachable") + " " + b.Error
	}
	s := RenderStatus("ok") + " " + b.Status
	if b.LLMModelLoaded {
		s += ", model loaded"
	} else {
		s += ", " + WarningStyle.Render("model not loaded")
	}
	if b.TestMode {
		s += ", test mode"
	}
	return s
}

func formatSession(s StatusSession) string {
	switch s.State {
	case session.StateEstablished.String():
		return RenderStatus("ok") + " logged in as " + s.Username
	case "unverified":
		return RenderStatus("unknown") + " token stored, backend unreachable"
	default:
		return RenderStatus("anonymous") + " not logged in"
	}
}
