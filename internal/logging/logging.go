package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/go-logfmt/logfmt"
	"github.com/google/uuid"
	"github.com/sst/mentions/internal/pubsub"
)

type Log struct {
	ID         string
	Timestamp  time.Time
	Level      string
	Message    string
	Attributes map[string]string
}

const (
	EventLogCreated pubsub.EventType = "log_created"

	DefaultCapacity = 1000
)

type Service interface {
	pubsub.Subscriber[Log]

	Create(ctx context.Context, timestamp time.Time, level, message string, attributes map[string]string) error
	ListAll(ctx context.Context, limit int) ([]Log, error)
	Shutdown()
}

// service keeps the most recent records in memory.
type service struct {
	mu       sync.RWMutex
	logs     []Log
	capacity int
	closed   bool
	broker   *pubsub.Broker[Log]
}

var (
	globalMu             sync.RWMutex
	globalLoggingService Service
)

func NewService(capacity int) Service {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &service{
		capacity: capacity,
		broker:   pubsub.NewBroker[Log](),
	}
}

func InitService(capacity int) error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLoggingService != nil {
		return fmt.Errorf("logging service already initialized")
	}
	globalLoggingService = NewService(capacity)
	return nil
}

// GetService returns the global service, or nil before InitService.
func GetService() Service {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLoggingService
}

// ShutdownService closes and forgets the global service.
func ShutdownService() {
	globalMu.Lock()
	s := globalLoggingService
	globalLoggingService = nil
	globalMu.Unlock()
	if s != nil {
		s.Shutdown()
	}
}

func (s *service) Create(ctx context.Context, timestamp time.Time, level, message string, attributes map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if level == "" {
		level = "info"
	}
	if attributes == nil {
		attributes = make(map[string]string)
	}
	log := Log{
		ID:         uuid.New().String(),
		Timestamp:  timestamp,
		Level:      level,
		Message:    message,
		Attributes: attributes,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("logging service closed")
	}
	if len(s.logs) == s.capacity {
		copy(s.logs, s.logs[1:])
		s.logs = s.logs[:len(s.logs)-1]
	}
	s.logs = append(s.logs, log)
	s.mu.Unlock()

	s.broker.Publish(EventLogCreated, log)
	return nil
}

// ListAll returns up to limit records, newest first. A non-positive limit
// returns everything kept.
func (s *service) ListAll(ctx context.Context, limit int) ([]Log, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.logs)
	if limit > 0 && limit < n {
		n = limit
	}
	logs := make([]Log, 0, n)
	for i := len(s.logs) - 1; i >= 0 && len(logs) < n; i-- {
		logs = append(logs, s.logs[i])
	}
	return logs, nil
}

func (s *service) Subscribe(ctx context.Context) <-chan pubsub.Event[Log] {
	return s.broker.Subscribe(ctx)
}

func (s *service) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.broker.Shutdown()
}

func Create(ctx context.Context, timestamp time.Time, level, message string, attributes map[string]string) error {
	s := GetService()
	if s == nil {
		return fmt.Errorf("logging service not initialized")
	}
	return s.Create(ctx, timestamp, level, message, attributes)
}

func ListAll(ctx context.Context, limit int) ([]Log, error) {
	s := GetService()
	if s == nil {
		return nil, nil
	}
	return s.ListAll(ctx, limit)
}

func Subscribe(ctx context.Context) <-chan pubsub.Event[Log] {
	s := GetService()
	if s == nil {
		ch := make(chan pubsub.Event[Log])
		close(ch)
		return ch
	}
	return s.Subscribe(ctx)
}

type slogWriter struct {
	target func() Service
}

func (sw *slogWriter) Write(p []byte) (n int, err error) {
	// Example: time=2024-05-09T12:34:56.789-05:00 level=INFO msg="search failed" kind=topic
	d := logfmt.NewDecoder(bytes.NewReader(p))
	for d.ScanRecord() {
		var timestamp time.Time
		var level string
		var message string
		attributes := make(map[string]string)
		hasTimestamp := false

		for d.ScanKeyval() {
			key := string(d.Key())
			value := string(d.Value())

			switch key {
			case "time":
				parsedTime, timeErr := time.Parse(time.RFC3339Nano, value)
				if timeErr != nil {
					parsedTime, timeErr = time.Parse(time.RFC3339, value)
				}
				if timeErr != nil {
					continue
				}
				timestamp = parsedTime
				hasTimestamp = true
			case "level":
				level = strings.ToLower(value)
			case "msg", "message":
				message = value
			default:
				attributes[key] = value
			}
		}
		if d.Err() != nil {
			return len(p), fmt.Errorf("logfmt.ScanRecord: %w", d.Err())
		}

		if !hasTimestamp {
			timestamp = time.Now()
		}

		s := sw.target()
		if s == nil {
			continue
		}
		// slog holds its handler lock while writing, so failures go straight
		// to stderr instead of back through slog.
		if err := s.Create(context.Background(), timestamp, level, message, attributes); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR [logging.slogWriter]: failed to keep log: %v\n", err)
		}
	}
	if d.Err() != nil {
		return len(p), fmt.Errorf("logfmt.ScanRecord final: %w", d.Err())
	}
	return len(p), nil
}

// NewSlogWriter decodes logfmt records written by slog.TextHandler into the
// global service.
func NewSlogWriter() io.Writer {
	return &slogWriter{target: GetService}
}

// NewServiceWriter is NewSlogWriter bound to a specific service.
func NewServiceWriter(s Service) io.Writer {
	return &slogWriter{target: func() Service { return s }}
}

// RecoverPanic is a common function to handle panics gracefully.
// It logs the error, creates a panic log file with stack trace,
// and executes an optional cleanup function.
func RecoverPanic(name string, cleanup func()) {
	if r := recover(); r != nil {
		writePanic(name, r, os.TempDir())
		if cleanup != nil {
			cleanup()
		}
	}
}

func writePanic(name string, r any, dir string) string {
	// Use slog directly here, as our service might be the one panicking.
	slog.Error(fmt.Sprintf("Panic in %s: %v", name, r))

	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("%s/mentions-panic-%s-%s.log", dir, name, timestamp)

	file, err := os.Create(filename)
	if err != nil {
		slog.Error("Failed to create panic log file", "file", filename, "error", err)
		return ""
	}
	defer file.Close()
	fmt.Fprintf(file, "Panic in %s: %v\n\n", name, r)
	fmt.Fprintf(file, "Time: %s\n\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(file, "Stack Trace:\n%s\n", string(debug.Stack()))
	slog.Info("Panic details written", "file", filename)
	return filename
}
