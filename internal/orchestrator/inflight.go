package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/dreamware/clusterctl/internal/cluster"
)

// OperationKey identifies one control operation for duplicate suppression.
// An empty LogicalID denotes a class-wide status query.
type OperationKey struct {
	Class     cluster.RoleClass `json:"class"`
	Action    cluster.Action    `json:"action"`
	LogicalID string            `json:"id,omitempty"`
}

func (k OperationKey) String() string {
	return fmt.Sprintf("%s_%s_%s", k.Class, k.Action, k.LogicalID)
}

// inflightSet is the set of pending operations. It is a set, not a queue:
// acquiring a key that is already held fails immediately.
type inflightSet struct {
	mu   sync.Mutex
	keys map[OperationKey]time.Time // key -> time acquired
}

func newInflightSet() *inflightSet {
	return &inflightSet{keys: make(map[OperationKey]time.Time)}
}

// acquire inserts key and reports whether it was absent.
func (s *inflightSet) acquire(key OperationKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.keys[key]; busy {
		return false
	}
	s.keys[key] = time.Now()
	return true
}

func (s *inflightSet) release(key OperationKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
}

func (s *inflightSet) contains(key OperationKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}

// list returns the pending keys sorted by class, logical id, then action.
func (s *inflightSet) list() []OperationKey {
	s.mu.Lock()
	keys := make([]OperationKey, 0, len(s.keys))
	for k := range s.keys {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	slices.SortFunc(keys, func(a, b OperationKey) int {
		switch {
		case a.Class != b.Class:
			return int(a.Class) - int(b.Class)
		case a.LogicalID != b.LogicalID:
			if a.LogicalID < b.LogicalID {
				return -1
			}
			return 1
		default:
			return int(a.Action) - int(b.Action)
		}
	})
	return keys
}
