// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"log"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/minillm/internal/model"
)

// =============================================================================
// STATE
// =============================================================================

// State is the session lifecycle state.
type State int

const (
	StateUnknown State = iota
	StateResolving
	StateEstablished
	StateAnonymous
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateResolving:
		return "resolving"
	case StateEstablished:
		return "established"
	case StateAnonymous:
		return "anonymous"
	default:
		return "invalid"
	}
}

// Settled reports whether the manager has left Unknown and Resolving.
func (s State) Settled() bool {
	return s == StateEstablished || s == StateAnonymous
}

// Snapshot is a point-in-time copy of the manager state.
type Snapshot struct {
	State State
	// User is non-nil only in StateEstablished.
	User *model.User
	// Err is the failure that produced StateAnonymous, if any.
	Err error
	// Seq increases with every transition.
	Seq uint64
}

// =============================================================================
// DEPENDENCIES
// =============================================================================

// TokenStore is the persisted bearer token slot.
type TokenStore interface {
	Set(tok string) error
	Get() (string, bool)
	Clear() error
}

// UserResolver fetches the user for the stored token.
type UserResolver interface {
	CurrentUser(ctx context.Context) (*model.User, error)
}

// =============================================================================
// SESSION MANAGER
// =============================================================================

// Manager owns the session state machine.
type Manager struct {
	mu sync.Mutex

	tokens   TokenStore
	resolver UserResolver
	logger   *log.Logger

	state State
	user  *model.User
	err   error
	seq   uint64

	// generation invalidates in-flight resolutions.
	generation uint64
	// resolvedToken is the token the current state was derived from.
	resolvedToken string
	// pendingToken is the token under resolution while StateResolving.
	pendingToken string

	listeners map[int]func(Snapshot)
	nextID    int
}

// NewManager creates a manager in StateUnknown.
func NewManager(tokens TokenStore, resolver UserResolver) *Manager {
	return &Manager{
		tokens:    tokens,
		resolver:  resolver,
		logger:    log.Default(),
		listeners: make(map[int]func(Snapshot)),
	}
}

// WithLogger sets the logger for session events.
func (m *Manager) WithLogger(logger *log.Logger) *Manager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// User returns a copy of the established user, or nil.
func (m *Manager) User() *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyUser(m.user)
}

// Snapshot returns the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Start performs the startup resolution and returns the settled state.
func (m *Manager) Start(ctx context.Context) Snapshot {
	return m.resolve(ctx, "startup")
}

// Reestablish re-runs the startup resolution, typically after a new token
// has been stored.
func (m *Manager) Reestablish(ctx context.Context) Snapshot {
	return m.resolve(ctx, "reestablish")
}

// Adopt stores tok and resolves it. Storing under the manager lock keeps a
// stale failing resolution from clearing the new token.
func (m *Manager) Adopt(ctx context.Context, tok string) (Snapshot, error) {
	m.mu.Lock()
	m.generation++
	err := m.tokens.Set(tok)
	m.mu.Unlock()
	if err != nil {
		return m.Snapshot(), err
	}
	return m.resolve(ctx, "callback"), nil
}

// Logout clears the token and moves to Anonymous from any state. Calling it
// again is harmless.
func (m *Manager) Logout() error {
	return m.end("logout", nil)
}

// Invalidate is Logout on behalf of the system, for example after the
// backend rejected the credential.
func (m *Manager) Invalidate(reason string) error {
	return m.end(reason, errors.New(reason))
}

// Resync reconciles the state with a token changed by another process.
func (m *Manager) Resync(ctx context.Context) Snapshot {
	tok, ok := m.tokens.Get()

	m.mu.Lock()
	state, resolved, pending := m.state, m.resolvedToken, m.pendingToken
	m.mu.Unlock()

	switch {
	case !ok && state != StateAnonymous:
		m.mu.Lock()
		m.generation++
		m.setLocked(StateAnonymous, nil, nil, "")
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.logger.Printf("SESSION_RESYNC | token removed externally")
		m.notify(snap)
		return snap
	case ok && tok != resolved && tok != pending:
		return m.resolve(ctx, "resync")
	default:
		return m.Snapshot()
	}
}

func (m *Manager) end(reason string, cause error) error {
	m.mu.Lock()
	m.generation++
	err := m.tokens.Clear()
	m.setLocked(StateAnonymous, nil, cause, "")
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if cause == nil {
		m.logger.Printf("SESSION_LOGOUT")
	} else {
		m.logger.Printf("SESSION_INVALIDATED | reason=%s", reason)
	}
	if err != nil {
		m.logger.Printf("SESSION_CLEAR_FAILED | err=%v", err)
	}
	m.notify(snap)
	return err
}

func (m *Manager) resolve(ctx context.Context, trigger string) Snapshot {
	m.mu.Lock()
	m.generation++
	gen := m.generation

	tok, ok := m.tokens.Get()
	if !ok {
		m.setLocked(StateAnonymous, nil, nil, "")
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.logger.Printf("SESSION_ANONYMOUS | trigger=%s reason=no_token", trigger)
		m.notify(snap)
		return snap
	}

	m.setLocked(StateResolving, nil, nil, "")
	m.pendingToken = tok
	resolving := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(resolving)

	user, err := m.resolver.CurrentUser(ctx)

	m.mu.Lock()
	if gen != m.generation {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.logger.Printf("SESSION_STALE_RESOLUTION | trigger=%s", trigger)
		return snap
	}

	if err == nil && user != nil {
		m.setLocked(StateEstablished, copyUser(user), nil, tok)
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.logger.Printf("SESSION_ESTABLISHED | trigger=%s user=%s", trigger, user.Username)
		m.notify(snap)
		return snap
	}

	if err == nil {
		err = errors.New("empty user")
	}
	// Failure of any kind: drop the token so the next start is clean.
	m.generation++
	if clearErr := m.tokens.Clear(); clearErr != nil {
		m.logger.Printf("SESSION_CLEAR_FAILED | err=%v", clearErr)
	}
	m.setLocked(StateAnonymous, nil, err, "")
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Printf("SESSION_RESOLVE_FAILED | trigger=%s err=%v", trigger, err)
	m.notify(snap)
	return snap
}

func (m *Manager) setLocked(state State, user *model.User, err error, tok string) {
	m.state = state
	m.user = user
	m.err = err
	m.resolvedToken = tok
	m.pendingToken = ""
	m.seq++
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{State: m.state, User: copyUser(m.user), Err: m.err, Seq: m.seq}
}

func copyUser(u *model.User) *model.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// =============================================================================
// CALLBACKS
// =============================================================================

// Subscribe registers fn for every transition. fn runs on the goroutine that
// caused the transition, outside the manager lock.
func (m *Manager) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *Manager) notify(snap Snapshot) {
	m.mu.Lock()
	fns := make([]func(Snapshot), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// =============================================================================
// BUBBLE TEA INTEGRATION
// =============================================================================

// ChangedMsg carries a session transition into a Bubble Tea program.
type ChangedMsg struct {
	Snapshot Snapshot
}

// Channel delivers transitions on a buffered channel. When the buffer is
// full the oldest pending snapshot is dropped, so the newest always arrives.
func (m *Manager) Channel(buffer int) (<-chan Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Snapshot, buffer)
	var mu sync.Mutex
	unsubscribe := m.Subscribe(func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		for {
			select {
			case ch <- s:
				return
			default:
				select {
				case <-ch:
				default:
				}
			}
		}
	})
	return ch, unsubscribe
}

// WaitCmd waits for the next transition on ch.
func WaitCmd(ch <-chan Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return nil
		}
		return ChangedMsg{Snapshot: snap}
	}
}
