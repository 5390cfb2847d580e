// Package status carries short messages for the editor's status line.
package status

import (
	"sync"
	"time"

	"github.com/sst/mentions/internal/pubsub"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelDebug Level = "debug"
)

// DefaultTTL is how long a message stays on the status line.
const DefaultTTL = 4 * time.Second

// StatusMessage is a status update to be displayed in the UI.
type StatusMessage struct {
	Level     Level         `json:"level"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
	TTL       time.Duration `json:"ttl"`
}

// Expired reports whether the message should no longer be shown at now.
func (m StatusMessage) Expired(now time.Time) bool {
	return m.TTL > 0 && now.Sub(m.Timestamp) >= m.TTL
}

type Service interface {
	pubsub.Subscriber[StatusMessage]
	pubsub.Listener[StatusMessage]
	Info(message string)
	Warn(message string)
	Error(message string)
	Debug(message string)
	// Latest returns the most recent message, if any.
	Latest() (StatusMessage, bool)
}

type service struct {
	*pubsub.Broker[StatusMessage]
	ttl    time.Duration
	now    func() time.Time

	mu     sync.Mutex
	latest *StatusMessage
}

type Option func(*service)

func WithTTL(ttl time.Duration) Option {
	return func(s *service) {
		s.ttl = ttl
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

func NewService(opts ...Option) Service {
	s := &service{
		Broker: pubsub.NewBroker[StatusMessage](),
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Info(message string) {
	s.publish(LevelInfo, message)
}

func (s *service) Warn(message string) {
	s.publish(LevelWarn, message)
}

func (s *service) Error(message string) {
	s.publish(LevelError, message)
}

func (s *service) Debug(message string) {
	s.publish(LevelDebug, message)
}

func (s *service) Latest() (StatusMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return StatusMessage{}, false
	}
	return *s.latest, true
}

func (s *service) publish(level Level, message string) {
	msg := StatusMessage{
		Level:     level,
		Message:   message,
		Timestamp: s.now(),
		TTL:       s.ttl,
	}
	s.mu.Lock()
	s.latest = &msg
	s.mu.Unlock()
	s.Publish(pubsub.EventTypeCreated, msg)
}
