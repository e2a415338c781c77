// Package reconcile compares a stored baseline against a freshly fetched
// snapshot and classifies every membership change.
package reconcile

import (
	"errors"
	"fmt"
	"sort"

	"github.com/leoncowle/mastodon-misc/internal/snapshot"

	"github.com/antzucaro/matchr"
)

// ErrDuplicateMember is returned in strict mode when either snapshot holds the
// same account twice in one list.
var ErrDuplicateMember = errors.New("duplicate member")

// ListChange is the classification of one list present in both snapshots.
// Every member of either side lands in exactly one of Unchanged, Added or
// Removed. Each set is sorted.
type ListChange struct {
	ID        snapshot.ListID
	Title     string
	Unchanged []snapshot.AccountHandle
	Added     []snapshot.AccountHandle
	Removed   []snapshot.AccountHandle
	// Hints pairs Removed accounts with a similar Added account, which usually
	// means the account moved to another server.
	Hints []MigrationHint
}

// Drifted is true when the list gained or lost members.
func (c ListChange) Drifted() bool {
	return len(c.Added) > 0 || len(c.Removed) > 0
}

type MigrationHint struct {
	From       snapshot.AccountHandle
	To         snapshot.AccountHandle
	Similarity float64
}

// NewListNotice is a list that has no baseline yet.
type NewListNotice struct {
	ID      snapshot.ListID
	Title   string
	Members int
}

type ChangeReport struct {
	// Lists holds a change for every list present in both snapshots, in
	// ascending id order.
	Lists    []ListChange
	NewLists []NewListNotice
	// Deleted are baseline lists that no longer exist. They are never
	// compared.
	Deleted []snapshot.ListID
	// HasNovelty is true when any list gained members or a new list showed
	// up, meaning the baseline is stale.
	HasNovelty bool
}

// Removal is a single account that dropped out of a list.
type Removal struct {
	ListID    snapshot.ListID
	ListTitle string
	Account   snapshot.AccountHandle
}

// Removals flattens the Removed sets of every list.
func (r ChangeReport) Removals() []Removal {
	var out []Removal
	for _, change := range r.Lists {
		for _, account := range change.Removed {
			out = append(out, Removal{
				ListID:    change.ID,
				ListTitle: change.Title,
				Account:   account,
			})
		}
	}
	return out
}

// Change returns the change of a given list, if it was compared.
func (r ChangeReport) Change(id snapshot.ListID) (ListChange, bool) {
	for _, change := range r.Lists {
		if change.ID == id {
			return change, true
		}
	}
	return ListChange{}, false
}

type Options struct {
	// Strict fails reconciliation when a list holds duplicate members instead
	// of collapsing them.
	Strict bool
	// HintThreshold is the minimum Jaro-Winkler similarity of two usernames
	// for a migration hint, 0 disables hints.
	HintThreshold float64
}

type Reconciler struct {
	opts Options
}

func New(opts Options) *Reconciler {
	return &Reconciler{opts: opts}
}

// Reconcile classifies the differences between stored and current. It does not
// modify either snapshot. Malformed input results in an error wrapping
// snapshot.ErrMalformedSnapshot.
func (r *Reconciler) Reconcile(stored, current snapshot.ListSnapshot) (ChangeReport, error) {
	err := stored.Validate()
	if err != nil {
		return ChangeReport{}, fmt.Errorf("stored: %w", err)
	}
	err = current.Validate()
	if err != nil {
		return ChangeReport{}, fmt.Errorf("current: %w", err)
	}

	var report ChangeReport
	for _, id := range stored.IDs() {
		live, ok := current[id]
		if !ok {
			report.Deleted = append(report.Deleted, id)
			continue
		}
		baseline := stored[id]

		if r.opts.Strict {
			if err := checkDuplicates(id, "stored", baseline.Members); err != nil {
				return ChangeReport{}, err
			}
			if err := checkDuplicates(id, "current", live.Members); err != nil {
				return ChangeReport{}, err
			}
		}

		change := diff(id, live.Title, baseline.Members, live.Members)
		if r.opts.HintThreshold > 0 {
			change.Hints = migrationHints(change.Removed, change.Added, r.opts.HintThreshold)
		}
		if len(change.Added) > 0 {
			report.HasNovelty = true
		}
		report.Lists = append(report.Lists, change)
	}

	for _, id := range current.IDs() {
		if _, ok := stored[id]; ok {
			continue
		}
		entry := current[id]
		report.NewLists = append(report.NewLists, NewListNotice{
			ID:      id,
			Title:   entry.Title,
			Members: len(set(entry.Members)),
		})
		report.HasNovelty = true
	}

	return report, nil
}

func checkDuplicates(id snapshot.ListID, side string, members []snapshot.AccountHandle) error {
	dups := snapshot.Duplicates(members)
	if len(dups) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s list %s: %v", ErrDuplicateMember, side, id, dups)
}

func set(members []snapshot.AccountHandle) map[snapshot.AccountHandle]struct{} {
	out := make(map[snapshot.AccountHandle]struct{}, len(members))
	for _, m := range members {
		out[m] = struct{}{}
	}
	return out
}

func diff(id snapshot.ListID, title string, stored, current []snapshot.AccountHandle) ListChange {
	storedSet := set(stored)
	currentSet := set(current)

	change := ListChange{ID: id, Title: title}
	for m := range storedSet {
		if _, ok := currentSet[m]; ok {
			change.Unchanged = append(change.Unchanged, m)
		} else {
			change.Removed = append(change.Removed, m)
		}
	}
	for m := range currentSet {
		if _, ok := storedSet[m]; !ok {
			change.Added = append(change.Added, m)
		}
	}

	sortHandles(change.Unchanged)
	sortHandles(change.Added)
	sortHandles(change.Removed)
	return change
}

func sortHandles(handles []snapshot.AccountHandle) {
	sort.Slice(handles, func(i, j int) bool {
		return handles[i] < handles[j]
	})
}

// migrationHints picks, for every removed account, the added account of the
// same list whose username is the most similar one.
func migrationHints(removed, added []snapshot.AccountHandle, threshold float64) []MigrationHint {
	var hints []MigrationHint
	for _, from := range removed {
		var best MigrationHint
		for _, to := range added {
			similarity := matchr.JaroWinkler(from.Username(), to.Username(), false)
			if similarity < threshold || similarity <= best.Similarity {
				continue
			}
			best = MigrationHint{From: from, To: to, Similarity: similarity}
		}
		if best.To != "" {
			hints = append(hints, best)
		}
	}
	return hints
}
