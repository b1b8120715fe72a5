package chat

import (
	"fmt"
	"slices"
)

// List is a conversation's messages ordered newest first. Every List handed
// to a caller is a complete snapshot.
type List []Message

// Normalize returns a copy ordered by CreatedAt descending with duplicate IDs
// removed. The first occurrence of an ID wins; ties keep their input order.
func (l List) Normalize() List {
	out := make(List, 0, len(l))
	seen := make(map[string]struct{}, len(l))
	for _, m := range l {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	slices.SortStableFunc(out, func(a, b Message) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

// Validate checks the newest-first ordering and ID uniqueness invariants.
func (l List) Validate() error {
	seen := make(map[string]struct{}, len(l))
	for i, m := range l {
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("duplicate message id %q at index %d", m.ID, i)
		}
		seen[m.ID] = struct{}{}
		if i > 0 && m.CreatedAt.After(l[i-1].CreatedAt) {
			return fmt.Errorf("message %q at index %d is newer than its predecessor", m.ID, i)
		}
	}
	return nil
}

// Equal reports whether both lists hold the same messages in the same order.
func (l List) Equal(o List) bool {
	return slices.EqualFunc(l, o, Message.Equal)
}

// IDs returns the message IDs in list order.
func (l List) IDs() []string {
	ids := make([]string, len(l))
	for i, m := range l {
		ids[i] = m.ID
	}
	return ids
}
