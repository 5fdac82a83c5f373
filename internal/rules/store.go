package rules

import (
	"fmt"
	"sync/atomic"

	"github.com/joseph-ayodele/doc-intake/internal/common"
)

// Store holds the active rule set. Readers never block; Replace swaps the
// whole set so a classification never sees a half-updated one.
type Store struct {
	cur atomic.Pointer[RuleSet]
}

// NewStore returns a Store holding rs.
func NewStore(rs *RuleSet) *Store {
	s := &Store{}
	s.cur.Store(rs)
	return s
}

// Current returns the active rule set.
func (s *Store) Current() *RuleSet {
	return s.cur.Load()
}

// Replace installs rs. A nil set, or one with the active version, is rejected.
func (s *Store) Replace(rs *RuleSet) error {
	if rs == nil {
		return fmt.Errorf("%w: nil rule set", common.ErrInvalidInput)
	}
	old := s.cur.Load()
	if old != nil && old.Version == rs.Version {
		return fmt.Errorf("%w: rule set version %q is already active", common.ErrInvalidInput, rs.Version)
	}
	if !s.cur.CompareAndSwap(old, rs) {
		return fmt.Errorf("%w: rule set replaced concurrently", common.ErrInvalidInput)
	}
	return nil
}
