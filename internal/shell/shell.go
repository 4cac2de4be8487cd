// Package shell holds the top-level view router: which of the three
// exclusive screens is active and the state each one carries.
package shell

import (
	"sync"

	"github.com/ShahHtetNaing/GATE-IELTS/internal/model"
	"github.com/ShahHtetNaing/GATE-IELTS/internal/session"
)

// View is the active screen. Exactly one of the three variants is live at
// any moment; switching views discards the previous variant's state.
type View interface {
	isView()
	Name() string
}

// Dashboard is the module-selection screen. It carries no state.
type Dashboard struct{}

func (Dashboard) isView()      {}
func (Dashboard) Name() string { return "dashboard" }

// Running wraps an active test session.
type Running struct {
	Session *session.Controller
}

func (Running) isView()      {}
func (Running) Name() string { return "test" }

// Results carries the finished session's outcome.
type Results struct {
	Result model.SessionResult
}

func (Results) isView()      {}
func (Results) Name() string { return "results" }

// Shell is the router itself. Safe for concurrent use.
type Shell struct {
	mu   sync.Mutex
	view View
}

// New starts on the dashboard.
func New() *Shell {
	return &Shell{view: Dashboard{}}
}

// View returns the active screen.
func (s *Shell) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Controller returns the active session when a test is running.
func (s *Shell) Controller() (*session.Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.view.(Running)
	if !ok {
		return nil, false
	}
	return r.Session, true
}

// StartTest moves from the dashboard into a running session. Only the
// dashboard can start a test; a running or finished session must be left
// first.
func (s *Shell) StartTest(c *session.Controller) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.view.(Dashboard); !ok {
		return session.ErrInvalidState
	}
	s.view = Running{Session: c}
	return nil
}

// FinishTest moves from a running session to its results.
func (s *Shell) FinishTest(res model.SessionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.view.(Running); !ok {
		return session.ErrInvalidState
	}
	s.view = Results{Result: res}
	return nil
}

// CancelTest abandons the running session and returns to the dashboard.
// The session is cancelled before the view switches so no media handle
// outlives it.
func (s *Shell) CancelTest() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.view.(Running)
	if !ok {
		return session.ErrInvalidState
	}
	r.Session.Cancel()
	s.view = Dashboard{}
	return nil
}

// Back returns from the results screen to the dashboard, discarding the
// displayed result.
func (s *Shell) Back() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.view.(Results); !ok {
		return session.ErrInvalidState
	}
	s.view = Dashboard{}
	return nil
}
