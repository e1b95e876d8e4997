package auction

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/auction-sync/internal/model"
)

// entry is one tracked snapshot with its observer reference count.
type entry struct {
	snap model.Snapshot
	refs int
}

// Store holds the live snapshot for every observed item.
type Store struct {
	tieBreak TieBreak
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
}

// NewStore creates an empty Store.
func NewStore(tb TieBreak, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		tieBreak: tb,
		logger:   logger,
		now:      time.Now,
		entries:  make(map[string]*entry),
	}
}

// Track adds a reference to snap.ItemID, seeding it with snap when the item
// is not yet tracked. An already tracked item keeps its merged state. The
// returned release drops the reference; the entry is deleted with the last one.
func (s *Store) Track(snap model.Snapshot) (release func()) {
	itemID := snap.ItemID

	s.mu.Lock()
	e, ok := s.entries[itemID]
	if !ok {
		e = &entry{snap: snap.Clone()}
		if e.snap.UpdatedAt.IsZero() {
			e.snap.UpdatedAt = s.now()
		}
		s.entries[itemID] = e
	}
	e.refs++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if cur, ok := s.entries[itemID]; ok && cur == e {
				cur.refs--
				if cur.refs <= 0 {
					delete(s.entries, itemID)
				}
			}
		})
	}
}

// Snapshot returns a copy of the tracked snapshot for itemID.
func (s *Store) Snapshot(itemID string) (model.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[itemID]
	if !ok {
		return model.Snapshot{}, false
	}
	return e.snap.Clone(), true
}

// ApplyUpdate merges u into the tracked snapshot.
func (s *Store) ApplyUpdate(u Update) (model.Snapshot, Outcome) {
	return s.apply(u.ItemID, func(cur model.Snapshot) (model.Snapshot, Outcome) {
		return MergeUpdate(cur, u)
	})
}

// ApplyBid merges e into the tracked snapshot.
func (s *Store) ApplyBid(e BidEvent) (model.Snapshot, Outcome) {
	return s.apply(e.ItemID, func(cur model.Snapshot) (model.Snapshot, Outcome) {
		return MergeBid(cur, e, s.tieBreak)
	})
}

// Len returns the number of tracked items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) apply(itemID string, merge func(model.Snapshot) (model.Snapshot, Outcome)) (model.Snapshot, Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[itemID]
	if !ok {
		s.logger.Debug("dropping merge for untracked item", "item_id", itemID)
		return model.Snapshot{}, OutcomeOrphaned
	}

	next, outcome := merge(e.snap)
	if outcome != OutcomeApplied {
		if outcome == OutcomeRegressed || outcome == OutcomeInvalid {
			s.logger.Warn("rejected auction event",
				"item_id", itemID,
				"outcome", outcome.String(),
				"status", e.snap.Status,
			)
		}
		return e.snap.Clone(), outcome
	}

	next.Revision = e.snap.Revision + 1
	next.UpdatedAt = s.now()
	e.snap = next
	return next.Clone(), OutcomeApplied
}
