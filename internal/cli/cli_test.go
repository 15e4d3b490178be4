// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/minillm/internal/app"
	"github.com/jeranaias/minillm/internal/authflow"
	"github.com/jeranaias/minillm/internal/config"
	"github.com/jeranaias/minillm/internal/session"
	"github.com/jeranaias/minillm/internal/storage"
	"github.com/jeranaias/minillm/internal/token"
)

// =============================================================================
// PARSE TESTS
// =============================================================================

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		argv     []string
		wantCmd  Command
		wantErr  bool
		validate func(*testing.T, Args)
	}{
		{name: "no args starts tui", argv: nil, wantCmd: CmdTUI},
		{name: "explicit tui", argv: []string{"tui"}, wantCmd: CmdTUI},
		{
			name:    "ask joins words",
			argv:    []string{"ask", "what", "is", "go"},
			wantCmd: CmdAsk,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "what is go", a.Prompt)
			},
		},
		{
			name:    "ask flags",
			argv:    []string{"ask", "-n", "5", "--raw", "hi"},
			wantCmd: CmdAsk,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, 5, a.MaxTokens)
				assert.True(t, a.Raw)
				assert.Equal(t, "hi", a.Prompt)
			},
		},
		{
			name:    "ask long max-tokens with equals",
			argv:    []string{"ask", "--max-tokens=250", "hi"},
			wantCmd: CmdAsk,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, 250, a.MaxTokens)
			},
		},
		{name: "negative max tokens", argv: []string{"ask", "-n", "-1", "x"}, wantCmd: CmdAsk, wantErr: true},
		{
			name:    "global flags before command",
			argv:    []string{"--config", "/tmp/c.toml", "-v", "whoami", "--json"},
			wantCmd: CmdWhoami,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "/tmp/c.toml", a.ConfigPath)
				assert.True(t, a.Verbose)
				assert.True(t, a.JSON)
			},
		},
		{
			name:    "global flag after command",
			argv:    []string{"status", "--verbose"},
			wantCmd: CmdStatus,
			validate: func(t *testing.T, a Args) {
				assert.True(t, a.Verbose)
			},
		},
		{name: "status alias", argv: []string{"s"}, wantCmd: CmdStatus},
		{name: "commands are case-insensitive", argv: []string{"LOGIN"}, wantCmd: CmdLogin},
		{name: "logout", argv: []string{"logout"}, wantCmd: CmdLogout},
		{name: "chat", argv: []string{"chat"}, wantCmd: CmdChat},
		{
			name:    "config defaults to show",
			argv:    []string{"config"},
			wantCmd: CmdConfig,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "show", a.Subcommand)
			},
		},
		{
			name:    "config set joins value",
			argv:    []string{"config", "set", "backend.user_agent", "my", "client"},
			wantCmd: CmdConfig,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "set", a.Subcommand)
				assert.Equal(t, "backend.user_agent", a.ConfigKey)
				assert.Equal(t, "my client", a.ConfigVal)
			},
		},
		{name: "config get needs key", argv: []string{"config", "get"}, wantCmd: CmdConfig, wantErr: true},
		{name: "config set needs value", argv: []string{"config", "set", "ui.theme"}, wantCmd: CmdConfig, wantErr: true},
		{name: "unknown config subcommand", argv: []string{"config", "reset"}, wantCmd: CmdConfig, wantErr: true},
		{name: "help flag", argv: []string{"--help"}, wantCmd: CmdHelp},
		{name: "command help flag", argv: []string{"ask", "-h"}, wantCmd: CmdHelp},
		{name: "help command", argv: []string{"help"}, wantCmd: CmdHelp},
		{name: "unknown command", argv: []string{"frobnicate"}, wantCmd: CmdHelp, wantErr: true},
		{name: "unknown flag", argv: []string{"whoami", "--bogus"}, wantCmd: CmdWhoami, wantErr: true},
		{name: "json not valid on ask", argv: []string{"ask", "--json", "x"}, wantCmd: CmdAsk, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args, err := Parse(tt.argv)
			assert.Equal(t, tt.wantCmd, cmd)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUsage)
				return
			}
			require.NoError(t, err)
			if tt.validate != nil {
				tt.validate(t, args)
			}
		})
	}
}

func TestCommand_String(t *testing.T) {
	assert.Equal(t, "ask", CmdAsk.String())
	assert.Equal(t, "status", CmdStatus.String())
	assert.Equal(t, "tui", CmdTUI.String())
	assert.Equal(t, "help", CmdHelp.String())
}

func TestPrintUsageAndVersion(t *testing.T) {
	var buf bytes.Buffer
	PrintUsage(&buf)
	assert.Contains(t, buf.String(), "minillm ask")
	assert.Contains(t, buf.String(), Version)

	buf.Reset()
	require.NoError(t, HandleVersion(Args{JSON: true}, Env{Stdout: &buf}))
	var resp JSONResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "version", resp.Command)
}

// =============================================================================
// FAKE BACKEND
// =============================================================================

type backend struct {
	srv *httptest.Server

	mu        sync.Mutex
	revoked   bool
	prompts   []string
	maxTokens []int
	generate  http.HandlerFunc
}

func newBackend(t *testing.T) *backend {
	b := &backend{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/github", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"auth_url":"https://github.com/login/oauth/authorize?client_id=x"}`)
	})
	mux.HandleFunc("/api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"detail":"Invalid token"}`)
			return
		}
		io.WriteString(w, `{"user":{"id":"7","username":"ada","avatar_url":"https://example.com/a.png"},
			"usage":{"requests_today":3,"limit_per_day":100,"requests_last_minute":0,"limit_per_minute":10}}`)
	})
	mux.HandleFunc("/api/llm/generate", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"detail":"Invalid token"}`)
			return
		}
		var req struct {
			Prompt    string `json:"prompt"`
			MaxTokens int    `json:"max_tokens"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		b.mu.Lock()
		b.prompts = append(b.prompts, req.Prompt)
		b.maxTokens = append(b.maxTokens, req.MaxTokens)
		h := b.generate
		b.mu.Unlock()

		if h != nil {
			h(w, r)
			return
		}
		io.WriteString(w, `{"response":"Hello **there**","inference_time_seconds":0.42,
			"usage":{"requests_today":4,"limit_per_day":100,"requests_last_minute":1,"limit_per_minute":10}}`)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"healthy","llm_model_loaded":true,"test_mode":true}`)
	})
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) authorized(r *http.Request) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.revoked && r.Header.Get("Authorization") == "Bearer abc123"
}

func (b *backend) setGenerate(h http.HandlerFunc) {
	b.mu.Lock()
	b.generate = h
	b.mu.Unlock()
}

func (b *backend) lastPrompt() (string, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.prompts) == 0 {
		return "", 0
	}
	return b.prompts[len(b.prompts)-1], b.maxTokens[len(b.maxTokens)-1]
}

// =============================================================================
// HARNESS
// =============================================================================

type harness struct {
	cfg    *config.Config
	tokens *token.Store
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	env    Env
}

func newHarness(t *testing.T, b *backend) *harness {
	t.Setenv(config.EnvHome, t.TempDir())

	cfg := config.Default()
	cfg.Backend.URL = b.srv.URL
	cfg.Storage.Path = filepath.Join(t.TempDir(), "session.json")
	cfg.Auth.CallbackAddr = "127.0.0.1:0"
	cfg.Auth.LoginTimeoutSecs = 5

	file, err := storage.NewFile(cfg.Storage.Path)
	require.NoError(t, err)

	h := &harness{
		cfg:    cfg,
		tokens: token.NewStore(file).WithLogger(log.New(io.Discard, "", 0)),
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
	}
	h.env = Env{
		Stdout:   h.stdout,
		Stderr:   h.stderr,
		Logger:   log.New(io.Discard, "", 0),
		StdinTTY: true,
	}
	return h
}

func (h *harness) login(t *testing.T) {
	require.NoError(t, h.tokens.Set("abc123"))
}

// =============================================================================
// ASK
// =============================================================================

func TestHandleAsk_Success(t *testing.T) {
	b := newBackend(t)
	h := newHarness(t, b)
	h.login(t)

	err := HandleAsk(context.Background(), h.cfg, Args{Prompt: "hi"}, h.env)
	require.NoError(t, err)

	// Not a terminal: printed as-is.
	assert.Equal(t, "Hello **there**\n", h.stdout.String())
	assert.Contains(t, h.stderr.String(), "Generated in 0.42s")

	prompt, maxTokens := b.lastPrompt()
	assert.Equal(t, "hi", prompt)
	assert.Equal(t, 100, maxTokens)
}

func TestHandleAsk_MaxTokensOverride(t *testing.T) {
	b := newBackend(t)
	h := newHarness(t, b)
	h.login(t)

	require.NoError(t, HandleAsk(context.Background(), h.cfg, Args{Prompt: "hi", MaxTokens: 7}, h.env))
	_, maxTokens := b.lastPrompt()
	assert.Equal(t, 7, maxTokens)
}

func TestHandleAsk_HidesInferenceTimeWhenDisabled(t *testing.T) {
	b := newBackend(t)
	h := newHarness(t, b)
	h.login(t)
	h.cfg.UI.ShowInferenceTime = false

	require.NoError(t, HandleAsk(context.Background(), h.cfg, Args{Prompt: "hi"}, h.env))
	assert.Empty(t, h.stderr.String())
}

func TestHandleAsk_ReadsPipedStdin(t *testing.T) {
	b := newBackend(t)
	h := newHarness(t, b)
	h.login(t)
	h.env.StdinTTY = false
	h.env.Stdin = strings.NewReader("from a pipe\n")

	require.NoError(t, HandleAsk(context.Background(), h.cfg, Args{}, h.env))
	prompt, _ := b.lastPrompt()
	assert.Equal(t, "from a pipe\n", prompt)
}

func TestHandleAsk_NoPrompt(t *testing.T) {
	h := newHarness(t, newBackend(t))
	h.login(t)

	err := HandleAsk(context.Background(), h.cfg, Args{Prompt: "   "}, h.env)
	assert.ErrorIs(t, err, ErrNoPrompt)

	h.env.StdinTTY = false
	h.env.Stdin = strings.NewReader("  \n")
	err = HandleAsk(context.Background(), h.cfg, Args{}, h.env)
	assert.ErrorIs(t, err, ErrNoPrompt)
}

func TestHandleAsk_StdinTooLarge(t *testing.T) {
	h := newHarness(t, newBackend(t))
	h.env.StdinTTY = false
	h.env.Stdin = strings.NewReader(strings.Repeat("x", MaxStdinPrompt+1))

	err := HandleAsk(context.Background(), h.cfg, Args{}, h.env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestHandleAsk_NotLoggedIn(t *testing.T) {
	b := newBackend(t)
	h := newHarness(t, b)

	err := HandleAsk(context.Background(), h.cfg, Args{Prompt: "hi"}, h.env)
	assert.ErrorIs(t, err, app.ErrNotAuthenticated)
	prompt, _ := b.lastPrompt()
	assert.Empty(t, prompt, "no generation without a session")
}

func TestHandleAsk_BackendDetail(t *testing.T) {
	b := newBackend(t)
	h := newHarness(t, b)
	h.login(t)
	b.setGenerate(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"detail":{"error":"Rate limit exceeded","limit_type":"minute","retry_after_seconds":60}}`)
	})

	err := HandleAsk(context.Background(), h.cfg, Args{Prompt: "hi"}, h.env)
	require.Error(t, err)
	assert.Equal(t, "Rate limit exceeded (retry in 60s)", err.Error())
	assert.Empty(t, h.stdout.String())
}

func TestHandleAsk_FallbackMessage(t *testing.T) {
	b := newBackend(t)
	h := newHarness(t, b)
	h.login(t)
	b.setGenerate(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `oops`)
	})

	err := HandleAsk(context.Background(), h.cfg, Args{Prompt: "hi"}, h.env)
	require.Error(t, err)
	assert.Equal(t, "Failed to generate response", err.Error())
}

func TestHandleAsk_UnauthorizedClearsToken(t *testing.T) {
	b := newBackend(t)
	h := newHarness(t, b)
	h.login(t)
	b.setGenerate(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"detail":"Token expired"}`)
	})

	err := HandleAsk(context.Background(), h.cfg, Args{Prompt: "hi"}, h.env)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.False(t, h.tokens.Present())
}

// =============================================================================
// WHOAMI / LOGOUT
// =============================================================================

func TestHandleWhoami(t *testing.T) {
	h := newHarness(t, newBackend(t))
	h.login(t)

	require.NoError(t, HandleWhoami(context.Background(), h.cfg, Args{}, h.env))
	out := h.stdout.String()
	assert.Contains(t, out, "ada")
	assert.Contains(t, out, "https://example.com/a.png")
	assert.Contains(t, out, "Today: 3 / 100")
}

func TestHandleWhoami_JSON(t *testing.T) {
	h := newHarness(t, newBackend(t))
	h.login(t)

	require.NoError(t, HandleWhoami(context.Background(), h.cfg, Args{JSON: true}, h.env))

	var resp struct {
		Success bool       `json:"success"`
		Data    WhoamiData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "7", resp.Data.ID)
	assert.Equal(t, "ada", resp.Data.Username)
	require.NotNil(t, resp.Data.AvatarURL)
	assert.Equal(t, 3, resp.Data.Usage.RequestsToday)
}

func TestHandleWhoami_JSONNotLoggedIn(t *testing.T) {
	h := newHarness(t, newBackend(t))

	err := HandleWhoami(context.Background(), h.cfg, Args{JSON: true}, h.env)
	assert.ErrorIs(t, err, app.ErrNotAuthenticated)

	var resp JSONResponse
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Contains(t, *resp.Error, "not logged in")
}

func TestHandleWhoami_RejectedTokenIsCleared(t *testing.T) {
	b := newBackend(t)
	h := newHarness(t, b)
	require.NoError(t, h.tokens.Set("stale"))

	err := HandleWhoami(context.Background(), h.cfg, Args{}, h.env)
	assert.ErrorIs(t, err, app.ErrNotAuthenticated)
	assert.False(t, h.tokens.Present())
}

func TestHandleLogout_Idempotent(t *testing.T) {
	h := newHarness(t, newBackend(t))
	h.login(t)

	require.NoError(t, HandleLogout(context.Background(), h.cfg, Args{}, h.env))
	assert.False(t, h.tokens.Present())
	require.NoError(t, HandleLogout(context.Background(), h.cfg, Args{}, h.env))
	assert.Equal(t, 2, strings.Count(h.stdout.String(), "Logged out."))
}

// =============================================================================
// LOGIN
// =============================================================================

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestHandleLogin_CallbackEstablishesSession(t *testing.T) {
	h := newHarness(t, newBackend(t))
	addr := freeAddr(t)
	h.cfg.Auth.CallbackAddr = addr

	done := make(chan error, 1)
	go func() {
		done <- HandleLogin(context.Background(), h.cfg, Args{}, h.env)
	}()

	callback := "http://" + addr + "/auth/callback?token=abc123"
	require.Eventually(t, func() bool {
		resp, err := http.Get(callback)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("login did not finish")
	}

	out := h.stdout.String()
	assert.Contains(t, out, "https://github.com/login/oauth/authorize")
	assert.Contains(t, out, "Logged in as ada.")
	tok, ok := h.tokens.Get()
	require.True(t, ok)
	assert.Equal(t, "abc123", tok)
}

func TestHandleLogin_AlreadyLoggedIn(t *testing.T) {
	h := newHarness(t, newBackend(t))
	h.login(t)

	require.NoError(t, HandleLogin(context.Background(), h.cfg, Args{}, h.env))
	assert.Contains(t, h.stdout.String(), "Already logged in as ada.")
}

func TestHandleLogin_BackendDown(t *testing.T) {
	b := newBackend(t)
	h := newHarness(t, b)
	b.srv.Close()

	err := HandleLogin(context.Background(), h.cfg, Args{}, h.env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login URL")
}

func TestLoginError(t *testing.T) {
	established := authflow.Result{Session: session.Snapshot{
		State: session.StateEstablished,
		User:  nil,
	}}

	tests := []struct {
		name string
		res  authflow.Result
		err  error
		want string
	}{
		{name: "timeout", err: context.DeadlineExceeded, want: "timed out"},
		{name: "canceled", err: context.Canceled, want: "canceled"},
		{name: "listener closed", err: authflow.ErrListenerClosed, want: "canceled"},
		{name: "missing token", err: authflow.ErrMissingToken, want: "no token"},
		{name: "other", err: errors.New("boom"), want: "boom"},
		{name: "rejected token", res: authflow.Result{}, want: "not accepted"},
		{name: "no user", res: established, want: "not accepted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := loginError(tt.res, tt.err)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrLoginFailed)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// =============================================================================
// STATUS
// =============================================================================

func TestHandleStatus_LoggedIn(t *testing.T) {
	b := newBackend(t)
	h := newHarness(t, b)
	h.login(t)

	require.NoError(t, HandleStatus(context.Background(), h.cfg, Args{}, h.env))
	out := h.stdout.String()
	assert.Contains(t, out, b.srv.URL)
	assert.Contains(t, out, "healthy")
	assert.Contains(t, out, "test mode")
	assert.Contains(t, out, "file (")
	assert.Contains(t, out, "logged in as ada")
}

func TestHandleStatus_JSON(t *testing.T) {
	h := newHarness(t, newBackend(t))

	require.NoError(t, HandleStatus(context.Background(), h.cfg, Args{JSON: true}, h.env))
	var resp struct {
		Data StatusData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &resp))
	assert.True(t, resp.Data.Backend.Reachable)
	assert.True(t, resp.Data.Backend.LLMModelLoaded)
	assert.Equal(t, "anonymous", resp.Data.Session.State)
}

func TestHandleStatus_BackendDownKeepsToken(t *testing.T) {
	b := newBackend(t)
	h := newHarness(t, b)
	h.login(t)
	b.srv.Close()

	require.NoError(t, HandleStatus(context.Background(), h.cfg, Args{}, h.env))
	assert.Contains(t, h.stdout.String(), "backend unreachable")
	assert.True(t, h.tokens.Present())
}

// =============================================================================
// CONFIG
// =============================================================================

func TestHandleConfig_GetAndPath(t *testing.T) {
	h := newHarness(t, newBackend(t))

	require.NoError(t, HandleConfig(h.cfg, Args{Subcommand: "get", ConfigKey: "backend.max_tokens"}, h.env))
	assert.Equal(t, "100\n", h.stdout.String())

	h.stdout.Reset()
	require.NoError(t, HandleConfig(h.cfg, Args{Subcommand: "path"}, h.env))
	assert.True(t, strings.HasSuffix(strings.TrimSpace(h.stdout.String()), "config.toml"))

	err := HandleConfig(h.cfg, Args{Subcommand: "get", ConfigKey: "nope.key"}, h.env)
	assert.Error(t, err)
}

func TestHandleConfig_Show(t *testing.T) {
	h := newHarness(t, newBackend(t))

	require.NoError(t, HandleConfig(h.cfg, Args{Subcommand: "show"}, h.env))
	out := h.stdout.String()
	for _, section := range []string{"[backend]", "[auth]", "[storage]", "[ui]", "[log]"} {
		assert.Contains(t, out, section)
	}
	assert.Contains(t, out, h.cfg.Backend.URL)
}

func TestHandleConfig_SetWritesFile(t *testing.T) {
	h := newHarness(t, newBackend(t))
	path := filepath.Join(t.TempDir(), "minillm.toml")
	args := Args{ConfigPath: path, Subcommand: "set", ConfigKey: "ui.word_wrap", ConfigVal: "100"}

	require.NoError(t, HandleConfig(h.cfg, args, h.env))
	assert.Contains(t, h.stdout.String(), "ui.word_wrap = 100")

	loaded, err := config.LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, 100, loaded.UI.WordWrap)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestHandleConfig_SetDoesNotPersistEnvOverrides(t *testing.T) {
	h := newHarness(t, newBackend(t))
	t.Setenv("MINILLM_API_URL", "http://from-env:9000")
	path := filepath.Join(t.TempDir(), "config.yaml")
	args := Args{ConfigPath: path, Subcommand: "set", ConfigKey: "ui.theme", ConfigVal: "dark"}

	require.NoError(t, HandleConfig(h.cfg, args, h.env))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "from-env")
	assert.Contains(t, string(data), "theme: dark")
}

func TestHandleConfig_SetRejectsInvalid(t *testing.T) {
	h := newHarness(t, newBackend(t))
	path := filepath.Join(t.TempDir(), "config.toml")

	err := HandleConfig(h.cfg, Args{ConfigPath: path, Subcommand: "set", ConfigKey: "ui.theme", ConfigVal: "neon"}, h.env)
	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "invalid values are not saved")
}

// =============================================================================
// CHAT
// =============================================================================

func newChat(t *testing.T, b *backend) (*chatSession, *harness) {
	h := newHarness(t, b)
	h.login(t)

	a, err := openApp(h.cfg, h.env)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	_, err = requireSession(context.Background(), a)
	require.NoError(t, err)
	conv, err := a.NewConversation()
	require.NoError(t, err)
	return newChatSession(a, conv, h.cfg, h.env), h
}

func TestChatSession_Prompt(t *testing.T) {
	s, h := newChat(t, newBackend(t))

	quit, err := s.handleLine(context.Background(), "  hello  ")
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Contains(t, h.stdout.String(), "Hello **there**")
	assert.Contains(t, h.stdout.String(), "Generated in 0.42s")
	assert.Equal(t, 2, len(s.conv.Snapshot().Messages))
}

func TestChatSession_ErrorMessage(t *testing.T) {
	b := newBackend(t)
	s, h := newChat(t, b)
	b.setGenerate(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"detail":"Model not loaded"}`)
	})

	quit, err := s.handleLine(context.Background(), "hello")
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Contains(t, h.stdout.String(), "Error: Model not loaded")
}

func TestChatSession_Commands(t *testing.T) {
	s, h := newChat(t, newBackend(t))
	ctx := context.Background()

	quit, err := s.handleLine(ctx, "")
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Empty(t, h.stdout.String())

	_, _ = s.handleLine(ctx, "/help")
	assert.Contains(t, h.stdout.String(), "/usage")

	h.stdout.Reset()
	_, _ = s.handleLine(ctx, "/usage")
	assert.Contains(t, h.stdout.String(), "Today: 3 / 100")

	h.stdout.Reset()
	_, _ = s.handleLine(ctx, "/frob")
	assert.Contains(t, h.stdout.String(), "Unknown command /frob")
	assert.Empty(t, s.conv.Snapshot().Messages, "commands never reach the backend")

	quit, err = s.handleLine(ctx, "/quit")
	require.NoError(t, err)
	assert.True(t, quit)
}

func TestChatSession_Logout(t *testing.T) {
	s, h := newChat(t, newBackend(t))

	quit, err := s.handleLine(context.Background(), "/logout")
	require.NoError(t, err)
	assert.True(t, quit)
	assert.False(t, h.tokens.Present())
}

func TestChatSession_Unauthorized(t *testing.T) {
	b := newBackend(t)
	s, h := newChat(t, b)
	b.mu.Lock()
	b.revoked = true
	b.mu.Unlock()

	quit, err := s.handleLine(context.Background(), "hello")
	assert.True(t, quit)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Contains(t, h.stdout.String(), "session has expired")
	assert.False(t, h.tokens.Present())
	assert.Len(t, s.conv.Snapshot().Messages, 1, "only the user message is logged")
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func TestRenderStatus(t *testing.T) {
	assert.Contains(t, RenderStatus("ok"), "[OK]")
	assert.Contains(t, RenderStatus("unreachable"), "[FAIL]")
	assert.Contains(t, RenderStatus("anonymous"), "[WARN]")
	assert.Contains(t, RenderStatus("other"), "[OTHER]")
}

func TestOutputJSON_Error(t *testing.T) {
	var buf bytes.Buffer
	err := OutputJSON(&buf, "whoami", func() (interface{}, error) {
		return nil, errors.New("nope")
	})
	require.Error(t, err)

	var resp JSONResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "nope", *resp.Error)
	assert.NotEmpty(t, resp.Timestamp)
}
