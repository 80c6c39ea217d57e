package retry

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/errorcue/errorcue/pkg/models"
)

// Outcome is the result of one simulated retry.
type Outcome struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message"`
	Response map[string]any `json:"response"`
}

// Simulator draws retry outcomes from a Profile. Safe for concurrent use.
type Simulator struct {
	profile Profile
	now     func() time.Time

	mu   sync.Mutex
	rand func() float64
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithRand replaces the random source. f must return values in [0, 1).
func WithRand(f func() float64) Option {
	return func(s *Simulator) { s.rand = f }
}

// WithClock replaces the clock used in response payloads.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

// NewSimulator creates a Simulator for profile.
func NewSimulator(profile Profile, opts ...Option) *Simulator {
	s := &Simulator{
		profile: profile,
		now:     time.Now,
		rand:    rand.Float64,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Simulate draws one outcome for errorType.
func (s *Simulator) Simulate(errorType string) Outcome {
	c := s.profile.For(errorType)

	s.mu.Lock()
	draw := s.rand()
	s.mu.Unlock()

	success := draw < c.SuccessRate
	msg := c.FailureMessage
	if success {
		msg = c.SuccessMessage
	}
	return Outcome{
		Success:  success,
		Message:  msg,
		Response: s.response(errorType, success),
	}
}

func (s *Simulator) response(errorType string, success bool) map[string]any {
	switch errorType {
	case models.ErrorTypeAuthExpired:
		return map[string]any{"tokenRefreshed": success}
	case models.ErrorTypeRateLimit:
		return map[string]any{"rateLimitReset": s.now().UTC().Add(time.Hour).Format(time.RFC3339)}
	case models.ErrorTypeConnectionFailed:
		status := "fail"
		if success {
			status = "pass"
		}
		return map[string]any{"connectionTest": status}
	default:
		return map[string]any{"retryAttempt": true}
	}
}
