// Package reconcile implements the notification reconciliation core: an
// in-memory store merging live socket events with polled pending-item
// snapshots, plus the alert signal driven by its aggregate counts.
package reconcile

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/propdesk/agent-console/internal/category"
)

// ErrMissingID is returned when a backend record arrives without an
// identifier. Identifiers are required; the console never synthesizes one.
var ErrMissingID = errors.New("reconcile: item has no identifier")

// Item is a single notification held by the store. Domain fields vary per
// category and are display-only, so they stay loosely typed.
type Item struct {
	ID        string                 `json:"id"`
	Category  category.Category      `json:"category"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	Pending   bool                   `json:"pending"`
}

// Options tune documented source behaviors that are preserved deliberately.
type Options struct {
	// PendingCountsAreSnapshots makes each pending poll overwrite the
	// category's pending count with the batch length instead of adding to
	// it. This mirrors the upstream dashboard, which treats every poll as
	// an authoritative snapshot.
	PendingCountsAreSnapshots bool

	// Clock overrides the receipt-time default for CreatedAt, for tests.
	Clock func() time.Time
}

// Store holds per-category new and pending item lists with parallel counts
// and a processed-id set suppressing duplicate live deliveries.
//
// Counts are maintained incrementally with a floor of zero rather than
// re-derived from list lengths; under overlapping new/pending ids they can
// drift until the next pending poll, which is tolerated.
type Store struct {
	mu sync.Mutex

	newItems      map[category.Category][]Item
	newCounts     map[category.Category]int
	pendingItems  map[category.Category][]Item
	pendingCounts map[category.Category]int

	processed map[string]struct{}

	snapshotCounts bool
	now            func() time.Time
}

// NewStore constructs an empty store.
func NewStore(opts Options) *Store {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Store{
		newItems:       make(map[category.Category][]Item),
		newCounts:      make(map[category.Category]int),
		pendingItems:   make(map[category.Category][]Item),
		pendingCounts:  make(map[category.Category]int),
		processed:      make(map[string]struct{}),
		snapshotCounts: opts.PendingCountsAreSnapshots,
		now:            now,
	}
}

// ExtractID pulls the backend identifier from a raw record, accepting the
// Mongo-style "_id" key or a plain "id".
func ExtractID(raw map[string]interface{}) (string, bool) {
	for _, key := range []string{"_id", "id"} {
		if v, ok := raw[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// ApplyLive merges one socket-delivered record into the new-items list.
// Records already seen this session are dropped unless pending is set;
// pending items may re-announce and are never filtered by the processed set.
// The second return value reports whether the record was applied.
func (s *Store) ApplyLive(c category.Category, raw map[string]interface{}, pending bool) (Item, bool, error) {
	if !category.Valid(c) {
		return Item{}, false, fmt.Errorf("reconcile: %w: %q", errUnknownCategory, c)
	}

	id, ok := ExtractID(raw)
	if !ok {
		return Item{}, false, fmt.Errorf("reconcile: category %s: %w", c, ErrMissingID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.processed[id]; seen && !pending {
		return Item{}, false, nil
	}
	s.processed[id] = struct{}{}

	item := s.buildItem(c, id, raw, pending)
	s.newItems[c] = append([]Item{item}, s.newItems[c]...)
	s.newCounts[c]++

	return item, true, nil
}

// ApplyPendingBatch merges one polled snapshot for a category. Items are
// prepended to the pending list; the pending count is set to the batch
// length (snapshot mode) or incremented by it. Records without identifiers
// are skipped and reported in the aggregated error.
func (s *Store) ApplyPendingBatch(c category.Category, raws []map[string]interface{}) (int, error) {
	if !category.Valid(c) {
		return 0, fmt.Errorf("reconcile: %w: %q", errUnknownCategory, c)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs error
	batch := make([]Item, 0, len(raws))
	for _, raw := range raws {
		id, ok := ExtractID(raw)
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("reconcile: category %s: %w", c, ErrMissingID))
			continue
		}
		s.processed[id] = struct{}{}
		batch = append(batch, s.buildItem(c, id, raw, true))
	}

	s.pendingItems[c] = append(batch, s.pendingItems[c]...)
	if s.snapshotCounts {
		s.pendingCounts[c] = len(batch)
	} else {
		s.pendingCounts[c] += len(batch)
	}

	return len(batch), errs
}

// RemoveByAssignment drops the item claimed by another agent from both
// lists. Only counts for lists the item was actually removed from are
// decremented, clamped at zero.
func (s *Store) RemoveByAssignment(c category.Category, id string) (removedNew, removedPending bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if filtered, hit := removeID(s.newItems[c], id); hit {
		s.newItems[c] = filtered
		s.newCounts[c] = floorDec(s.newCounts[c])
		removedNew = true
	}
	if filtered, hit := removeID(s.pendingItems[c], id); hit {
		s.pendingItems[c] = filtered
		s.pendingCounts[c] = floorDec(s.pendingCounts[c])
		removedPending = true
	}
	return removedNew, removedPending
}

// Resolve removes an accepted or rejected item from the list it was surfaced
// in and returns it so callers can restore it when a rollback is requested.
func (s *Store) Resolve(c category.Category, id string, wasPending bool) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.newItems[c]
	if wasPending {
		items = s.pendingItems[c]
	}

	var removed Item
	found := false
	filtered := items[:0:0]
	for _, item := range items {
		if !found && item.ID == id {
			removed = item
			found = true
			continue
		}
		filtered = append(filtered, item)
	}
	if !found {
		return Item{}, false
	}

	if wasPending {
		s.pendingItems[c] = filtered
		s.pendingCounts[c] = floorDec(s.pendingCounts[c])
	} else {
		s.newItems[c] = filtered
		s.newCounts[c] = floorDec(s.newCounts[c])
	}
	return removed, true
}

// Restore re-inserts a previously resolved item, used when a failed upstream
// mutation is configured to roll the optimistic removal back.
func (s *Store) Restore(item Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.Pending {
		s.pendingItems[item.Category] = append([]Item{item}, s.pendingItems[item.Category]...)
		s.pendingCounts[item.Category]++
		return
	}
	s.newItems[item.Category] = append([]Item{item}, s.newItems[item.Category]...)
	s.newCounts[item.Category]++
}

// ClearPending empties a category's pending queue, returning how many items
// were dropped. New items are left untouched.
func (s *Store) ClearPending(c category.Category) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := len(s.pendingItems[c])
	s.pendingItems[c] = nil
	s.pendingCounts[c] = 0
	return dropped
}

// NewCount returns the running new-item count for a category.
func (s *Store) NewCount(c category.Category) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newCounts[c]
}

// PendingCount returns the running pending count for a category.
func (s *Store) PendingCount(c category.Category) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingCounts[c]
}

// TotalCount returns the aggregate of all new and pending counts. The alert
// signal loops exactly while this is positive and the agent is active.
func (s *Store) TotalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, n := range s.newCounts {
		total += n
	}
	for _, n := range s.pendingCounts {
		total += n
	}
	return total
}

// CategorySnapshot is the per-category view handed to the UI.
type CategorySnapshot struct {
	Category     category.Category `json:"category"`
	Label        string            `json:"label"`
	NewItems     []Item            `json:"new_items"`
	NewCount     int               `json:"new_count"`
	PendingItems []Item            `json:"pending_items"`
	PendingCount int               `json:"pending_count"`
}

// Snapshot describes the full store state at a point in time.
type Snapshot struct {
	Categories []CategorySnapshot `json:"categories"`
	Total      int                `json:"total"`
}

// Snapshot returns a deep copy of the store state in category declaration
// order.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Categories: make([]CategorySnapshot, 0, len(category.Categories()))}
	for _, d := range category.All() {
		cs := CategorySnapshot{
			Category:     d.Category,
			Label:        d.Label,
			NewItems:     copyItems(s.newItems[d.Category]),
			NewCount:     s.newCounts[d.Category],
			PendingItems: copyItems(s.pendingItems[d.Category]),
			PendingCount: s.pendingCounts[d.Category],
		}
		snap.Total += cs.NewCount + cs.PendingCount
		snap.Categories = append(snap.Categories, cs)
	}
	return snap
}

var errUnknownCategory = errors.New("unknown category")

func (s *Store) buildItem(c category.Category, id string, raw map[string]interface{}, pending bool) Item {
	createdAt := s.now()
	if v, ok := raw["createdAt"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			createdAt = parsed
		}
	}

	fields := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		fields[k] = v
	}

	return Item{
		ID:        id,
		Category:  c,
		Fields:    fields,
		CreatedAt: createdAt,
		Pending:   pending,
	}
}

func removeID(items []Item, id string) ([]Item, bool) {
	hit := false
	filtered := items[:0:0]
	for _, item := range items {
		if item.ID == id {
			hit = true
			continue
		}
		filtered = append(filtered, item)
	}
	if !hit {
		return items, false
	}
	return filtered, true
}

func floorDec(n int) int {
	if n <= 0 {
		return 0
	}
	return n - 1
}

func copyItems(items []Item) []Item {
	if len(items) == 0 {
		return []Item{}
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
