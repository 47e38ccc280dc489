// Package approval implements the human-in-the-loop approval workflow:
// keyed approval records with TTL expiry and a durable JSON snapshot.
package approval

import (
	"encoding/json"
	"errors"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/agent-control-plane/internal/fsutil"
	"github.com/upb/agent-control-plane/models"
	"github.com/upb/agent-control-plane/services"
	"go.uber.org/zap"
)

// Store owns every approval record and the snapshot file that backs them
type Store struct {
	mu     sync.Mutex
	ttl    time.Duration
	path   string
	byID   map[string]*models.ApprovalRequest
	now    func() time.Time
	newID  func() string
	logger *zap.Logger
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides approval id generation
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// NewStore loads the snapshot at path, if any, and returns the store.
// An unreadable or corrupt snapshot yields an empty store.
func NewStore(ttl time.Duration, path string, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		ttl:    ttl,
		path:   path,
		byID:   make(map[string]*models.ApprovalRequest),
		now:    time.Now,
		newID:  uuid.NewString,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.load()
	return s
}

func (s *Store) load() {
	if s.path == "" {
		return
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to read approvals snapshot", zap.String("path", s.path), zap.Error(err))
		}
		return
	}

	var items []models.ApprovalRequest
	if err := json.Unmarshal(data, &items); err != nil {
		s.logger.Warn("ignoring corrupt approvals snapshot", zap.String("path", s.path), zap.Error(err))
		return
	}

	for i := range items {
		if items[i].ID == "" {
			continue
		}
		item := items[i]
		s.byID[item.ID] = &item
	}
	s.logger.Info("approvals loaded", zap.String("path", s.path), zap.Int("count", len(s.byID)))
}

// Create registers a pending approval for call and persists the snapshot
func (s *Store) Create(call models.ToolCallRecord, reason string) (models.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	item := &models.ApprovalRequest{
		ID:        s.newID(),
		ToolCall:  call,
		Reason:    reason,
		Status:    models.ApprovalStatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.byID[item.ID] = item

	if err := s.persistLocked(); err != nil {
		delete(s.byID, item.ID)
		return models.ApprovalRequest{}, err
	}
	return *item, nil
}

// Get returns the approval with id, applying any due expiry first
func (s *Store) Get(id string) (models.ApprovalRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.byID[id]
	if !ok {
		return models.ApprovalRequest{}, false
	}
	if s.expireLocked(item, s.now()) {
		s.persistBestEffortLocked()
	}
	return *item, true
}

// List returns every approval in creation order, optionally filtered by status.
// An empty status returns all entries.
func (s *Store) List(status models.ApprovalStatus) []models.ApprovalRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expireAllLocked() > 0 {
		s.persistBestEffortLocked()
	}

	out := make([]models.ApprovalRequest, 0, len(s.byID))
	for _, item := range s.byID {
		if status != "" && item.Status != status {
			continue
		}
		out = append(out, *item)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Decide applies a reviewer verdict. The first decision on a pending entry
// wins; deciding an entry that is already terminal returns it unchanged.
// The bool result is false when id is unknown.
func (s *Store) Decide(id string, decision models.ApprovalDecision) (models.ApprovalRequest, bool, error) {
	if decision.Status != models.ApprovalStatusApproved && decision.Status != models.ApprovalStatusRejected {
		return models.ApprovalRequest{}, false, services.NewValidationError("decision and actor are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.byID[id]
	if !ok {
		return models.ApprovalRequest{}, false, nil
	}

	now := s.now()
	if s.expireLocked(item, now) {
		s.persistBestEffortLocked()
	}
	if item.Status != models.ApprovalStatusPending {
		return *item, true, nil
	}

	prev := *item
	decidedAt := now.UTC()
	item.Status = decision.Status
	item.DecidedAt = &decidedAt
	item.DecidedBy = decision.Actor
	item.Note = decision.Note

	if err := s.persistLocked(); err != nil {
		*item = prev
		return models.ApprovalRequest{}, true, err
	}
	return *item, true, nil
}

// ExpireDue transitions every overdue pending entry to expired and persists
// when anything changed. It returns the number of entries expired.
func (s *Store) ExpireDue() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.expireAllLocked()
	if n == 0 {
		return 0, nil
	}
	return n, s.persistLocked()
}

// StatusCounts returns the current number of entries in each status
func (s *Store) StatusCounts() map[models.ApprovalStatus]int {
	counts := map[models.ApprovalStatus]int{
		models.ApprovalStatusPending:  0,
		models.ApprovalStatusApproved: 0,
		models.ApprovalStatusRejected: 0,
		models.ApprovalStatusExpired:  0,
	}
	for _, item := range s.List("") {
		counts[item.Status]++
	}
	return counts
}

// TTL returns the lifetime given to new approvals
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// expireLocked moves a pending item past its deadline to expired
func (s *Store) expireLocked(item *models.ApprovalRequest, now time.Time) bool {
	if item.Status != models.ApprovalStatusPending || now.Before(item.ExpiresAt) {
		return false
	}
	item.Status = models.ApprovalStatusExpired
	return true
}

func (s *Store) expireAllLocked() int {
	now := s.now()
	n := 0
	for _, item := range s.byID {
		if s.expireLocked(item, now) {
			n++
		}
	}
	return n
}

func (s *Store) snapshotLocked() []models.ApprovalRequest {
	items := make([]models.ApprovalRequest, 0, len(s.byID))
	for _, item := range s.byID {
		items = append(items, *item)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items
}

func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}
	if err := fsutil.WriteJSONAtomic(s.path, s.snapshotLocked()); err != nil {
		s.logger.Error("failed to persist approvals", zap.String("path", s.path), zap.Error(err))
		return services.WrapInternal("failed to persist approvals", err)
	}
	return nil
}

// persistBestEffortLocked records expiry transitions observed on read.
// A failure leaves the in-memory state authoritative until the next write.
func (s *Store) persistBestEffortLocked() {
	_ = s.persistLocked()
}
