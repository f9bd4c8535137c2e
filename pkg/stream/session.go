package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/micmetrics/pkg/logging"
)

// StateKind enumerates the session lifecycle
type StateKind int

const (
	StateIdle StateKind = iota
	StateStreaming
	StateError
)

func (k StateKind) String() string {
	switch k {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// State is a snapshot of the session. SampleTime is set while streaming and
// Message when the last run failed.
type State struct {
	Kind       StateKind `json:"kind"`
	SampleTime int64     `json:"sample_time,omitempty"`
	Message    string    `json:"message,omitempty"`
}

func (s State) String() string {
	switch s.Kind {
	case StateStreaming:
		return fmt.Sprintf("streaming(%d)", s.SampleTime)
	case StateError:
		return fmt.Sprintf("error(%s)", s.Message)
	default:
		return s.Kind.String()
	}
}

// SessionConfig holds configuration for a streaming session
type SessionConfig struct {
	Hub HubConfig `json:"hub"`
	// Timeout bounds a whole run; zero means no limit
	Timeout time.Duration `json:"timeout"`
}

// RunResult summarizes one completed run
type RunResult struct {
	Buffers   int           `json:"buffers"`
	Samples   int64         `json:"samples"`
	Dropped   uint64        `json:"dropped"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
}

// Session owns one capture pipeline: it pumps a Source through a Hub to a
// set of consumers and tracks the lifecycle state. Only one run may be
// active at a time.
type Session struct {
	config *SessionConfig
	logger logging.Logger

	mu        sync.RWMutex
	state     State
	listeners []func(State)
}

// NewSession creates a new session with default configuration
func NewSession() *Session {
	return NewSessionWithConfig(nil)
}

// NewSessionWithConfig creates a new session with custom configuration
func NewSessionWithConfig(config *SessionConfig) *Session {
	if config == nil {
		config = &SessionConfig{Hub: DefaultHubConfig()}
	}

	return &Session{
		config: config,
		logger: logging.WithFields(logging.Fields{
			"component": "stream_session",
		}),
	}
}

// State returns the current state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// OnStateChange registers fn to be called on every state transition.
// Callbacks run on the pumping goroutine and must not block.
func (s *Session) OnStateChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	listeners := s.listeners
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}

// begin moves the session to streaming unless a run is already active
func (s *Session) begin() error {
	s.mu.Lock()
	if s.state.Kind == StateStreaming {
		s.mu.Unlock()
		return ErrSessionBusy
	}
	s.state = State{Kind: StateStreaming}
	listeners := s.listeners
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(State{Kind: StateStreaming})
	}
	return nil
}

// Run streams src to every consumer until the source is exhausted, a
// consumer fails, or ctx ends. The session returns to idle after a clean
// run and moves to the error state otherwise.
func (s *Session) Run(ctx context.Context, src Source, consumers ...Consumer) (*RunResult, error) {
	if src == nil {
		return nil, NewStreamError(ErrCodeInvalidConfig, "no source provided", nil)
	}
	if err := s.begin(); err != nil {
		return nil, err
	}

	logger := s.logger.WithFields(logging.Fields{
		"function":       "Run",
		"consumer_count": len(consumers),
	})
	logger.Info("Starting stream")

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	hub := NewHub(s.config.Hub)
	subs := make([]*Subscription, len(consumers))
	for i := range consumers {
		subs[i] = hub.Subscribe()
	}

	result := &RunResult{StartTime: time.Now()}
	g, gctx := errgroup.WithContext(ctx)

	for i, c := range consumers {
		sub := subs[i]
		g.Go(func() error {
			defer sub.Cancel()
			return c.Consume(gctx, sub.C)
		})
	}

	g.Go(func() error {
		defer hub.Close()
		for {
			buf, err := src.Next(gctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return NewStreamError(ErrCodeSource, "failed to read from source", err)
			}

			s.setState(State{Kind: StateStreaming, SampleTime: buf.Timestamp})
			if err := hub.Publish(gctx, buf); err != nil {
				return err
			}
			result.Buffers++
			result.Samples += int64(len(buf.Samples))
		}
	})

	err := g.Wait()

	for _, sub := range subs {
		result.Dropped += sub.Dropped()
	}
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	if err != nil {
		s.setState(State{Kind: StateError, Message: err.Error()})
		logger.Error(err, "Stream failed", logging.Fields{
			"buffers": result.Buffers,
		})
		return result, err
	}

	s.setState(State{Kind: StateIdle})
	fields := logging.Fields{
		"buffers":     result.Buffers,
		"samples":     result.Samples,
		"duration_ms": result.Duration.Milliseconds(),
	}
	if result.Dropped > 0 {
		fields["dropped"] = result.Dropped
		logger.Warn("Stream completed with dropped buffers", fields)
	} else {
		logger.Info("Stream completed", fields)
	}
	return result, nil
}

// GetConfig returns the current session configuration
func (s *Session) GetConfig() *SessionConfig {
	return s.config
}
