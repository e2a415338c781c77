// Package snapshot defines the membership snapshot of a user's lists and the
// invariants every snapshot crossing a store or API boundary must satisfy.
package snapshot

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// ErrMalformedSnapshot is returned when a snapshot does not satisfy its invariants,
// either because a store could not decode it or because a record is incomplete.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// ListID identifies a list, it is stable for as long as the list exists.
type ListID string

// AccountHandle is `username` or `username@origin-server`. Handles are compared
// by exact string match, no case or unicode folding is applied.
type AccountHandle string

// Username returns the part of the handle before the first `@`.
func (h AccountHandle) Username() string {
	username, _, _ := strings.Cut(string(h), "@")
	return username
}

// Server returns the origin server of the handle, or "" if it has none.
func (h AccountHandle) Server() string {
	_, server, _ := strings.Cut(string(h), "@")
	return server
}

// CanonicalHandle returns the canonical form of an `acct` value as returned by
// the API. Accounts local to `instance` come back without a server suffix, so
// `@instance` is appended to them. An empty instance leaves acct untouched.
func CanonicalHandle(acct, instance string) AccountHandle {
	acct = strings.TrimPrefix(acct, "@")
	if instance == "" || strings.Contains(acct, "@") {
		return AccountHandle(acct)
	}
	return AccountHandle(acct + "@" + instance)
}

// ListEntry is the recorded state of one list.
type ListEntry struct {
	Title   string
	Members []AccountHandle
}

// ListSnapshot maps every list to its recorded state.
type ListSnapshot map[ListID]ListEntry

// IDs returns the list ids of the snapshot in ascending order.
func (s ListSnapshot) IDs() []ListID {
	ids := make([]ListID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	SortIDs(ids)
	return ids
}

// SortIDs sorts list ids in place in the same order as IDs.
func SortIDs(ids []ListID) {
	sort.Slice(ids, func(i, j int) bool {
		return lessID(ids[i], ids[j])
	})
}

// lessID orders numeric ids numerically (Mastodon ids are decimal strings) and
// falls back to lexical order otherwise.
func lessID(a, b ListID) bool {
	if len(a) != len(b) && isDigits(string(a)) && isDigits(string(b)) {
		return len(a) < len(b)
	}
	return a < b
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the snapshot.
func (s ListSnapshot) Clone() ListSnapshot {
	if s == nil {
		return nil
	}
	out := make(ListSnapshot, len(s))
	for id, entry := range s {
		out[id] = ListEntry{
			Title:   entry.Title,
			Members: slices.Clone(entry.Members),
		}
	}
	return out
}

// Canonical returns a copy of the snapshot with every member in canonical
// form for `instance`. Baselines written before handles were canonicalized
// hold local accounts without a server suffix.
func (s ListSnapshot) Canonical(instance string) ListSnapshot {
	if s == nil {
		return nil
	}
	out := make(ListSnapshot, len(s))
	for id, entry := range s {
		var members []AccountHandle
		for _, member := range entry.Members {
			members = append(members, CanonicalHandle(string(member), instance))
		}
		out[id] = ListEntry{Title: entry.Title, Members: members}
	}
	return out
}

// MemberCount returns the total amount of members across every list.
func (s ListSnapshot) MemberCount() int {
	total := 0
	for _, entry := range s {
		total += len(entry.Members)
	}
	return total
}

// Validate checks the invariants of the snapshot, the returned error wraps
// ErrMalformedSnapshot and names the offending list.
func (s ListSnapshot) Validate() error {
	for _, id := range s.IDs() {
		entry := s[id]
		if id == "" {
			return fmt.Errorf("%w: list with empty id", ErrMalformedSnapshot)
		}
		if entry.Title == "" {
			return fmt.Errorf("%w: list %s has no title", ErrMalformedSnapshot, id)
		}
		for i, member := range entry.Members {
			if member == "" {
				return fmt.Errorf("%w: list %s has an empty member at position %d", ErrMalformedSnapshot, id, i)
			}
		}
	}
	return nil
}

// Duplicates returns every handle that appears more than once in members, in
// order of their second appearance.
func Duplicates(members []AccountHandle) []AccountHandle {
	seen := make(map[AccountHandle]int, len(members))
	var dups []AccountHandle
	for _, m := range members {
		seen[m]++
		if seen[m] == 2 {
			dups = append(dups, m)
		}
	}
	return dups
}
