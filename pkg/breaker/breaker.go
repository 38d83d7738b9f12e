// Package breaker implements the process-wide trading circuit breaker.
//
// A venue "trading disabled" response trips the breaker. The trading loop
// checks it cooperatively at the top of every cycle, account, market and
// before each submission; in-flight requests are not interrupted. Once the
// pause window has elapsed the breaker closes again.
package breaker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nardis556/ikon-loadGenerator/pkg/util"
)

// Status is a point-in-time view for operators.
type Status struct {
	Enabled    bool      `json:"enabled"`
	Reason     string    `json:"reason,omitempty"`
	DisabledAt time.Time `json:"disabledAt,omitempty"`
	ResumeAt   time.Time `json:"resumeAt,omitempty"`
	Pauses     int64     `json:"pauses"`
}

// TradingState is safe for concurrent use. A Disable that returns
// happens-before any Enabled call that observes it.
type TradingState struct {
	enabled atomic.Bool
	pauses  atomic.Int64
	pause   time.Duration
	clock   util.Clock

	mu         sync.Mutex
	reason     string
	disabledAt time.Time

	// OnChange, if set, is called after every transition.
	OnChange func(enabled bool, reason string)
}

func New(pause time.Duration, clock util.Clock) *TradingState {
	if clock == nil {
		clock = util.RealClock{}
	}
	s := &TradingState{pause: pause, clock: clock}
	s.enabled.Store(true)
	return s
}

func (s *TradingState) Enabled() bool { return s.enabled.Load() }

// PauseDuration is the window a trip lasts.
func (s *TradingState) PauseDuration() time.Duration { return s.pause }

// Disable opens the breaker. It reports whether this call tripped it;
// repeated trips while already open keep the original resume time.
func (s *TradingState) Disable(reason string) bool {
	s.mu.Lock()
	if !s.enabled.Load() {
		s.mu.Unlock()
		return false
	}
	s.reason = reason
	s.disabledAt = s.clock.Now()
	s.enabled.Store(false)
	s.mu.Unlock()

	s.pauses.Add(1)
	if s.OnChange != nil {
		s.OnChange(false, reason)
	}
	return true
}

// Enable closes the breaker immediately.
func (s *TradingState) Enable() {
	s.mu.Lock()
	if s.enabled.Load() {
		s.mu.Unlock()
		return
	}
	s.reason = ""
	s.disabledAt = time.Time{}
	s.enabled.Store(true)
	s.mu.Unlock()

	if s.OnChange != nil {
		s.OnChange(true, "")
	}
}

// WaitIfDisabled returns at once when trading is enabled. Otherwise it
// sleeps out the rest of the pause window, re-enables trading and reports
// paused=true. A context error aborts the wait and leaves the breaker open.
func (s *TradingState) WaitIfDisabled(ctx context.Context) (paused bool, err error) {
	for !s.enabled.Load() {
		s.mu.Lock()
		resumeAt := s.disabledAt.Add(s.pause)
		s.mu.Unlock()

		if err := util.Sleep(ctx, s.clock, resumeAt.Sub(s.clock.Now())); err != nil {
			return true, err
		}
		s.mu.Lock()
		due := !s.clock.Now().Before(s.disabledAt.Add(s.pause))
		s.mu.Unlock()
		if due {
			s.Enable()
		}
		paused = true
	}
	return paused, nil
}

func (s *TradingState) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Enabled: s.enabled.Load(),
		Reason:  s.reason,
		Pauses:  s.pauses.Load(),
	}
	if !st.Enabled {
		st.DisabledAt = s.disabledAt
		st.ResumeAt = s.disabledAt.Add(s.pause)
	}
	return st
}
