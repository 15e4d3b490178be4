// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/minillm/internal/api"
	"github.com/jeranaias/minillm/internal/gateway"
	"github.com/jeranaias/minillm/internal/model"
	"github.com/jeranaias/minillm/internal/util"
)

const (
	// DefaultTimeout bounds one generation call.
	DefaultTimeout = 120 * time.Second

	// TimeoutMessage is appended when a generation exceeds the timeout.
	TimeoutMessage = "Request timed out"

	// CanceledMessage is appended when the caller abandons a generation.
	CanceledMessage = "Request canceled"
)

var (
	// ErrEmptyPrompt is returned by Begin for an empty or blank prompt.
	ErrEmptyPrompt = errors.New("empty prompt")

	// ErrBusy is returned by Begin while a generation is in flight.
	ErrBusy = errors.New("a request is already in progress")
)

// Generator performs text generation.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (*api.GenerateResult, error)
}

// UsageSource fetches the current user, whose usage is mirrored.
type UsageSource interface {
	CurrentUser(ctx context.Context) (*model.User, error)
}

// Status is the submission state.
type Status int

const (
	StatusIdle Status = iota
	StatusSubmitting
)

// String returns the status name.
func (s Status) String() string {
	if s == StatusSubmitting {
		return "submitting"
	}
	return "idle"
}

// State is a copy of the conversation state.
type State struct {
	Messages []model.Message
	Status   Status
	// Usage is nil until the first observation.
	Usage *model.Usage
	Draft string
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns one conversation.
type Controller struct {
	gen       Generator
	users     UsageSource
	logger    *log.Logger
	timeout   time.Duration
	maxTokens int

	mu         sync.Mutex
	log        model.Log
	submitting bool
	usage      *model.Usage
	usageSeq   uint64
	draft      string
}

// New creates an idle controller with an empty log.
func New(gen Generator, users UsageSource) *Controller {
	return &Controller{
		gen:     gen,
		users:   users,
		logger:  log.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger.
func (c *Controller) WithLogger(logger *log.Logger) *Controller {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// WithTimeout bounds each generation call. Zero disables the bound.
func (c *Controller) WithTimeout(d time.Duration) *Controller {
	c.timeout = d
	return c
}

// WithMaxTokens sets max_tokens for generations. Zero uses the client default.
func (c *Controller) WithMaxTokens(n int) *Controller {
	c.maxTokens = n
	return c
}

// WithUsage seeds the usage snapshot, typically from session resolution.
func (c *Controller) WithUsage(u *model.Usage) *Controller {
	if u != nil {
		v := *u
		c.usage = &v
	}
	return c
}

// SetDraft replaces the input buffer.
func (c *Controller) SetDraft(s string) {
	c.mu.Lock()
	c.draft = s
	c.mu.Unlock()
}

// Status returns the submission state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitting {
		return StatusSubmitting
	}
	return StatusIdle
}

// Snapshot returns a copy of the state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{Messages: c.log.Messages(), Draft: c.draft}
	if c.submitting {
		st.Status = StatusSubmitting
	}
	if c.usage != nil {
		u := *c.usage
		st.Usage = &u
	}
	return st
}

// =============================================================================
// SUBMISSION
// =============================================================================

// Submission is a begun generation waiting to run.
type Submission struct {
	c      *Controller
	prompt string
	once   sync.Once
}

// Prompt returns the submitted text, unmodified.
func (s *Submission) Prompt() string {
	return s.prompt
}

// Begin starts a submission of text. Blank text returns ErrEmptyPrompt and
// a submission in flight returns ErrBusy; in both cases nothing changes.
func (c *Controller) Begin(text string) (*Submission, error) {
	if util.IsBlank(text) {
		return nil, ErrEmptyPrompt
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitting {
		return nil, ErrBusy
	}
	c.log.Append(model.NewUserMessage(text))
	c.draft = ""
	c.submitting = true
	return &Submission{c: c, prompt: text}, nil
}

// Submit begins and runs a submission.
func (c *Controller) Submit(ctx context.Context, text string) (model.Message, error) {
	sub, err := c.Begin(text)
	if err != nil {
		return nil, err
	}
	return sub.Run(ctx)
}

// Run performs the generation and appends its outcome.
//
// On success the Assistant message is returned with a nil error. On failure
// the appended Error message is returned with the cause. On an authorization
// failure nothing is appended and the message is nil. Run acts only once;
// later calls return (nil, ErrBusy).
func (s *Submission) Run(ctx context.Context) (model.Message, error) {
	ran := false
	var msg model.Message
	var err error
	s.once.Do(func() {
		ran = true
		msg, err = s.c.run(ctx, s.prompt)
	})
	if !ran {
		return nil, ErrBusy
	}
	return msg, err
}

func (c *Controller) run(ctx context.Context, prompt string) (model.Message, error) {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := c.gen.Generate(callCtx, prompt, c.maxTokens)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitting = false

	if err == nil {
		m := model.NewAssistantMessage(res.Text, res.InferenceSeconds)
		c.log.Append(m)
		u := res.Usage
		c.usage = &u
		c.usageSeq++
		c.logger.Printf("GENERATE_OK | chars=%d requests_today=%d duration=%v",
			len(res.Text), u.RequestsToday, time.Since(start))
		return m, nil
	}

	if gateway.IsUnauthorized(err) {
		c.logger.Printf("GENERATE_UNAUTHORIZED | response dropped")
		return nil, err
	}

	text := failureText(ctx, callCtx, err)
	m := model.NewErrorMessage(text)
	c.log.Append(m)
	c.logger.Printf("GENERATE_FAILED | err=%v", err)
	return m, err
}

// failureText picks the Error message content for a failed generation.
func failureText(parent, call context.Context, err error) string {
	if detail, ok := api.DetailMessage(err); ok {
		return detail
	}
	if parent.Err() == nil && errors.Is(call.Err(), context.DeadlineExceeded) {
		return TimeoutMessage
	}
	if errors.Is(err, context.Canceled) {
		return CanceledMessage
	}
	return api.FallbackGenerateMessage
}

// =============================================================================
// USAGE
// =============================================================================

// RefreshUsage replaces the usage snapshot with the backend's current one.
// Failures are logged and otherwise ignored; the log is never touched.
func (c *Controller) RefreshUsage(ctx context.Context) {
	c.mu.Lock()
	seq := c.usageSeq
	c.mu.Unlock()

	user, err := c.users.CurrentUser(ctx)
	if err != nil {
		c.logger.Printf("USAGE_REFRESH_FAILED | err=%v", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.usageSeq != seq {
		// A generation reported newer counters meanwhile.
		return
	}
	u := user.Usage
	c.usage = &u
	c.usageSeq++
}

// =============================================================================
// BUBBLE TEA INTEGRATION
// =============================================================================

// ResultMsg reports a finished submission.
type ResultMsg struct {
	Message model.Message
	Err     error
}

// UsageRefreshedMsg reports a finished usage refresh.
type UsageRefreshedMsg struct{}

// Cmd runs the submission on the command goroutine.
func (s *Submission) Cmd(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		msg, err := s.Run(ctx)
		return ResultMsg{Message: msg, Err: err}
	}
}

// RefreshUsageCmd refreshes usage on the command goroutine.
func (c *Controller) RefreshUsageCmd(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		c.RefreshUsage(ctx)
		return UsageRefreshedMsg{}
	}
}
