// Package audit is the append-only audit log of control-plane actions. Events
// are written as newline-delimited JSON and the most recent ones are kept in
// memory for listing and metrics aggregation.
package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/agent-control-plane/internal/fsutil"
	"github.com/upb/agent-control-plane/models"
	"github.com/upb/agent-control-plane/services"
	"go.uber.org/zap"
)

const (
	// DefaultListLimit is used when a list request names no limit
	DefaultListLimit = 100
	// DefaultMaxInMemoryEvents bounds the ring buffer when unset
	DefaultMaxInMemoryEvents = 5000
)

// Options configures a Store
type Options struct {
	Path              string
	MaxInMemoryEvents int
	// MaxFileSizeBytes triggers rotation to <Path>.1 once exceeded; zero disables it
	MaxFileSizeBytes int64
	// RetentionDays prunes older events on startup; zero disables it
	RetentionDays int
}

// Store is the sole writer of the audit log file and its in-memory tail
type Store struct {
	mu       sync.Mutex
	opts     Options
	events   *ring
	now      func() time.Time
	newID    func() string
	onAppend func(models.AuditEvent)
	logger   *zap.Logger
}

// Option customizes a Store
type Option func(*Store)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithAppendHook registers fn to observe every appended event
func WithAppendHook(fn func(models.AuditEvent)) Option {
	return func(s *Store) { s.onAppend = fn }
}

// ListOptions filters List results
type ListOptions struct {
	Type  models.AuditEventType
	Limit int
}

// NewStore prepares the log directory, applies retention and rotation, and
// loads the newest MaxInMemoryEvents valid events.
func NewStore(opts Options, logger *zap.Logger, options ...Option) (*Store, error) {
	if opts.Path == "" {
		return nil, services.NewValidationError("audit persist path is required")
	}
	if opts.MaxInMemoryEvents <= 0 {
		opts.MaxInMemoryEvents = DefaultMaxInMemoryEvents
	}

	s := &Store{
		opts:   opts,
		events: newRing(opts.MaxInMemoryEvents),
		now:    time.Now,
		newID:  uuid.NewString,
		logger: logger,
	}
	for _, o := range options {
		o(s)
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	s.prune()
	s.rotateIfNeeded()
	s.load()
	return s, nil
}

// Path returns the active log file path
func (s *Store) Path() string {
	return s.opts.Path
}

// storedEvent mirrors AuditEvent with a raw timestamp so lines can be
// validated before they are trusted.
type storedEvent struct {
	ID        string         `json:"id"`
	Timestamp string         `json:"timestamp"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
}

func parseLine(line []byte) (models.AuditEvent, bool) {
	var raw storedEvent
	if err := json.Unmarshal(line, &raw); err != nil {
		return models.AuditEvent{}, false
	}
	if raw.ID == "" || raw.Type == "" || raw.Payload == nil {
		return models.AuditEvent{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
	if err != nil {
		return models.AuditEvent{}, false
	}
	return models.AuditEvent{
		ID:        raw.ID,
		Timestamp: ts,
		Type:      models.AuditEventType(raw.Type),
		Payload:   raw.Payload,
	}, true
}

// lineTimestamp reads only the timestamp of a stored line. Retention keys on
// it alone, so lines the ring would skip still survive while recent.
func lineTimestamp(line []byte) (time.Time, bool) {
	var raw struct {
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(line, &raw); err != nil {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) > 0 {
			lines = append(lines, line)
		}
	}
	return lines
}

// prune drops events older than the retention window along with lines
// without a parseable timestamp. The file is rewritten only when something
// was dropped.
func (s *Store) prune() {
	if s.opts.RetentionDays <= 0 {
		return
	}
	data, err := os.ReadFile(s.opts.Path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("skipping audit retention", zap.String("path", s.opts.Path), zap.Error(err))
		}
		return
	}

	cutoff := s.now().Add(-time.Duration(s.opts.RetentionDays) * 24 * time.Hour)
	var kept bytes.Buffer
	dropped := 0
	for _, line := range splitLines(data) {
		ts, ok := lineTimestamp(line)
		if !ok || ts.Before(cutoff) {
			dropped++
			continue
		}
		kept.Write(line)
		kept.WriteByte('\n')
	}
	if dropped == 0 {
		return
	}

	if err := fsutil.WriteFileAtomic(s.opts.Path, kept.Bytes()); err != nil {
		s.logger.Warn("failed to rewrite pruned audit log", zap.String("path", s.opts.Path), zap.Error(err))
		return
	}
	s.logger.Info("audit log pruned",
		zap.String("path", s.opts.Path),
		zap.Int("dropped", dropped),
		zap.Int("retention_days", s.opts.RetentionDays))
}

// rotateIfNeeded moves an oversized log to <path>.1, replacing any previous
// generation, and starts a fresh empty file.
func (s *Store) rotateIfNeeded() {
	if s.opts.MaxFileSizeBytes <= 0 {
		return
	}
	info, err := os.Stat(s.opts.Path)
	if err != nil || info.Size() <= s.opts.MaxFileSizeBytes {
		return
	}

	rotated := s.opts.Path + ".1"
	if err := os.Rename(s.opts.Path, rotated); err != nil {
		s.logger.Warn("audit rotation failed", zap.String("path", s.opts.Path), zap.Error(err))
		return
	}
	if err := os.WriteFile(s.opts.Path, nil, 0o644); err != nil {
		s.logger.Warn("failed to start fresh audit log", zap.String("path", s.opts.Path), zap.Error(err))
		return
	}
	s.logger.Info("audit log rotated", zap.String("rotated_to", rotated), zap.Int64("size", info.Size()))
}

func (s *Store) load() {
	f, err := os.Open(s.opts.Path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to open audit log", zap.String("path", s.opts.Path), zap.Error(err))
		}
		return
	}
	defer f.Close()

	skipped := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		event, ok := parseLine(line)
		if !ok {
			skipped++
			continue
		}
		s.events.push(event)
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("audit log read stopped early", zap.String("path", s.opts.Path), zap.Error(err))
	}
	if skipped > 0 {
		s.logger.Warn("skipped malformed audit lines", zap.Int("count", skipped))
	}
}

// Append records a new event in memory and on disk. The in-memory copy is
// kept even when the file write fails; the error is returned so callers can
// log it.
func (s *Store) Append(eventType models.AuditEventType, payload map[string]any) (models.AuditEvent, error) {
	if payload == nil {
		payload = map[string]any{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	event := models.AuditEvent{
		ID:        s.newID(),
		Timestamp: s.now().UTC(),
		Type:      eventType,
		Payload:   payload,
	}
	s.events.push(event)

	if s.onAppend != nil {
		s.onAppend(event)
	}

	line, err := json.Marshal(event)
	if err != nil {
		return event, services.WrapInternal("failed to encode audit event", err)
	}
	if err := fsutil.AppendLine(s.opts.Path, line); err != nil {
		s.logger.Error("failed to append audit event", zap.String("type", string(eventType)), zap.Error(err))
		return event, services.WrapInternal("failed to append audit event", err)
	}
	s.rotateIfNeeded()
	return event, nil
}

// List returns up to limit events, newest first, optionally filtered by type.
// Limit is clamped to [1, MaxInMemoryEvents].
func (s *Store) List(opts ListOptions) []models.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := clamp(opts.Limit, 1, s.events.cap())
	out := make([]models.AuditEvent, 0, min(limit, s.events.len()))
	for i := s.events.len() - 1; i >= 0 && len(out) < limit; i-- {
		event := s.events.at(i)
		if opts.Type != "" && event.Type != opts.Type {
			continue
		}
		out = append(out, event)
	}
	return out
}

// snapshot copies the in-memory events oldest first
func (s *Store) snapshot() ([]models.AuditEvent, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.AuditEvent, 0, s.events.len())
	s.events.each(func(e models.AuditEvent) { out = append(out, e) })
	return out, s.now()
}
