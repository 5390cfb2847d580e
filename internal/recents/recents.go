// Package recents remembers confirmed selections so they can be offered as
// presets the next time the same trigger opens.
package recents

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sst/mentions/internal/suggest"
	"github.com/sst/mentions/internal/trigger"
)

type Entry struct {
	Kind   trigger.Kind
	Ref    string
	Label  string
	Detail string
	Uses   int
	UsedAt time.Time
}

type Service interface {
	Record(ctx context.Context, e Entry) error
	List(ctx context.Context, kind trigger.Kind, limit int) ([]Entry, error)
	Presets(ctx context.Context, limit int) ([]suggest.Preset, error)
	Clear(ctx context.Context) error
	Close() error
}

type service struct {
	db  *sql.DB
	now func() time.Time
}

type Option func(*service)

func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

func NewService(db *sql.DB, opts ...Option) Service {
	s := &service{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to the database in dataDir and returns a service owning it.
func Open(ctx context.Context, dataDir string, opts ...Option) (Service, error) {
	db, err := Connect(ctx, dataDir)
	if err != nil {
		return nil, err
	}
	return NewService(db, opts...), nil
}

// Record stores e as the most recent use of its Kind and Ref.
func (s *service) Record(ctx context.Context, e Entry) error {
	if e.Ref == "" || e.Kind == "" {
		return fmt.Errorf("recent entry needs a kind and a ref")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recents (kind, ref, label, detail, uses, used_at)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT (kind, ref) DO UPDATE SET
			label = excluded.label,
			detail = excluded.detail,
			uses = recents.uses + 1,
			used_at = excluded.used_at`,
		string(e.Kind), e.Ref, e.Label, e.Detail, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("db.RecordRecent: %w", err)
	}
	return nil
}

// List returns the most recently used entries, newest first. An empty kind
// lists every kind.
func (s *service) List(ctx context.Context, kind trigger.Kind, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, ref, label, detail, uses, used_at
		FROM recents
		WHERE ? = '' OR kind = ?
		ORDER BY used_at DESC
		LIMIT ?`,
		string(kind), string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("db.ListRecents: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e      Entry
			k      string
			usedAt int64
		)
		if err := rows.Scan(&k, &e.Ref, &e.Label, &e.Detail, &e.Uses, &usedAt); err != nil {
			return nil, fmt.Errorf("db.ListRecents: %w", err)
		}
		e.Kind = trigger.Kind(k)
		e.UsedAt = time.Unix(0, usedAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db.ListRecents: %w", err)
	}
	return entries, nil
}

// Presets returns up to limit recents per kind, newest first.
func (s *service) Presets(ctx context.Context, limit int) ([]suggest.Preset, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, ref, label, detail FROM (
			SELECT kind, ref, label, detail, used_at,
				ROW_NUMBER() OVER (PARTITION BY kind ORDER BY used_at DESC) AS n
			FROM recents
		)
		WHERE n <= ?
		ORDER BY used_at DESC`, limit)
	if err != nil {
		return nil, fmt.Errorf("db.RecentPresets: %w", err)
	}
	defer rows.Close()

	var presets []suggest.Preset
	for rows.Next() {
		var p suggest.Preset
		var k string
		if err := rows.Scan(&k, &p.ID, &p.Label, &p.Detail); err != nil {
			return nil, fmt.Errorf("db.RecentPresets: %w", err)
		}
		p.Kind = trigger.Kind(k)
		presets = append(presets, p)
	}
	return presets, rows.Err()
}

func (s *service) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM recents`); err != nil {
		return fmt.Errorf("db.ClearRecents: %w", err)
	}
	return nil
}

func (s *service) Close() error {
	return s.db.Close()
}
