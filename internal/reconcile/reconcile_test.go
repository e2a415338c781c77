package reconcile

import (
	"errors"
	"testing"

	"github.com/leoncowle/mastodon-misc/internal/snapshot"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

type handles = []snapshot.AccountHandle

func TestReconcileScenario(t *testing.T) {
	stored := snapshot.ListSnapshot{
		"L1": {Title: "Friends", Members: handles{"a", "b", "c"}},
	}
	current := snapshot.ListSnapshot{
		"L1": {Title: "Friends", Members: handles{"a", "b"}},
		"L2": {Title: "New", Members: handles{"x"}},
	}

	report, err := New(Options{}).Reconcile(stored, current)
	if err != nil {
		t.Fatal(err)
	}

	diff := cmp.Diff(ChangeReport{
		Lists: []ListChange{{
			ID:        "L1",
			Title:     "Friends",
			Unchanged: handles{"a", "b"},
			Removed:   handles{"c"},
		}},
		NewLists:   []NewListNotice{{ID: "L2", Title: "New", Members: 1}},
		HasNovelty: true,
	}, report, cmpopts.EquateEmpty())
	if diff != "" {
		t.Fatal(diff)
	}

	require.Equal(t, []Removal{{ListID: "L1", ListTitle: "Friends", Account: "c"}}, report.Removals())
}

func TestReconcileIdempotent(t *testing.T) {
	testCases := []snapshot.ListSnapshot{
		{},
		{"1": {Title: "Empty"}},
		{
			"1": {Title: "Friends", Members: handles{"a", "b@far.social"}},
			"2": {Title: "Work", Members: handles{"c", "c", "d"}},
		},
	}

	for _, current := range testCases {
		report, err := New(Options{HintThreshold: 0.8}).Reconcile(current, current)
		require.NoError(t, err)
		require.False(t, report.HasNovelty)
		require.Empty(t, report.NewLists)
		require.Empty(t, report.Deleted)
		require.Len(t, report.Lists, len(current))
		for _, change := range report.Lists {
			require.Empty(t, change.Added)
			require.Empty(t, change.Removed)
			require.Empty(t, change.Hints)
			require.False(t, change.Drifted())
		}
	}
}

func TestReconcileClassificationIsDisjoint(t *testing.T) {
	stored := snapshot.ListSnapshot{"1": {Title: "T", Members: handles{"a", "b", "c", "d"}}}
	current := snapshot.ListSnapshot{"1": {Title: "T", Members: handles{"e", "d", "b", "f"}}}

	report, err := New(Options{}).Reconcile(stored, current)
	require.NoError(t, err)

	change, ok := report.Change("1")
	require.True(t, ok)
	require.Equal(t, handles{"b", "d"}, change.Unchanged)
	require.Equal(t, handles{"e", "f"}, change.Added)
	require.Equal(t, handles{"a", "c"}, change.Removed)
	require.True(t, report.HasNovelty)

	seen := map[snapshot.AccountHandle]int{}
	for _, set := range []handles{change.Unchanged, change.Added, change.Removed} {
		for _, h := range set {
			seen[h]++
		}
	}
	require.Len(t, seen, 6)
	for h, count := range seen {
		require.Equal(t, 1, count, h)
	}
}

func TestReconcileDeletedListIsSilent(t *testing.T) {
	stored := snapshot.ListSnapshot{
		"1": {Title: "Kept", Members: handles{"a"}},
		"2": {Title: "Gone", Members: handles{"x", "y"}},
	}
	current := snapshot.ListSnapshot{
		"1": {Title: "Kept", Members: handles{"a"}},
	}

	report, err := New(Options{}).Reconcile(stored, current)
	require.NoError(t, err)
	require.Equal(t, []snapshot.ListID{"2"}, report.Deleted)
	require.Empty(t, report.Removals())
	require.False(t, report.HasNovelty)
	_, ok := report.Change("2")
	require.False(t, ok)
}

func TestReconcileTitleFromCurrent(t *testing.T) {
	stored := snapshot.ListSnapshot{"1": {Title: "Old name", Members: handles{"a"}}}
	current := snapshot.ListSnapshot{"1": {Title: "New name"}}

	report, err := New(Options{}).Reconcile(stored, current)
	require.NoError(t, err)
	require.Equal(t, []Removal{{ListID: "1", ListTitle: "New name", Account: "a"}}, report.Removals())
}

func TestReconcileExactMatch(t *testing.T) {
	stored := snapshot.ListSnapshot{"1": {Title: "T", Members: handles{"Alice@x.social"}}}
	current := snapshot.ListSnapshot{"1": {Title: "T", Members: handles{"alice@x.social"}}}

	report, err := New(Options{}).Reconcile(stored, current)
	require.NoError(t, err)
	change, _ := report.Change("1")
	require.Equal(t, handles{"Alice@x.social"}, change.Removed)
	require.Equal(t, handles{"alice@x.social"}, change.Added)
}

func TestReconcileDuplicates(t *testing.T) {
	stored := snapshot.ListSnapshot{"1": {Title: "T", Members: handles{"a", "b"}}}
	current := snapshot.ListSnapshot{"1": {Title: "T", Members: handles{"a", "a", "b"}}}

	report, err := New(Options{}).Reconcile(stored, current)
	require.NoError(t, err)
	change, _ := report.Change("1")
	require.Equal(t, handles{"a", "b"}, change.Unchanged)
	require.False(t, change.Drifted())

	_, err = New(Options{Strict: true}).Reconcile(stored, current)
	require.True(t, errors.Is(err, ErrDuplicateMember))
	require.Contains(t, err.Error(), "current list 1")
}

func TestReconcileMalformed(t *testing.T) {
	good := snapshot.ListSnapshot{"1": {Title: "T", Members: handles{"a"}}}
	bad := snapshot.ListSnapshot{"1": {Members: handles{"a"}}}

	_, err := New(Options{}).Reconcile(bad, good)
	require.True(t, errors.Is(err, snapshot.ErrMalformedSnapshot))
	require.Contains(t, err.Error(), "stored")

	_, err = New(Options{}).Reconcile(good, bad)
	require.True(t, errors.Is(err, snapshot.ErrMalformedSnapshot))
	require.Contains(t, err.Error(), "current")
}

func TestReconcileInputsUntouched(t *testing.T) {
	stored := snapshot.ListSnapshot{"1": {Title: "T", Members: handles{"c", "a", "b"}}}
	current := snapshot.ListSnapshot{"1": {Title: "T", Members: handles{"b", "a"}}}
	storedCopy := stored.Clone()
	currentCopy := current.Clone()

	_, err := New(Options{}).Reconcile(stored, current)
	require.NoError(t, err)
	require.Equal(t, storedCopy, stored)
	require.Equal(t, currentCopy, current)
}

func TestMigrationHints(t *testing.T) {
	stored := snapshot.ListSnapshot{"1": {Title: "T", Members: handles{
		"leoncowle@old.social",
		"someone@old.social",
	}}}
	current := snapshot.ListSnapshot{"1": {Title: "T", Members: handles{
		"leoncowle@hachyderm.io",
		"zzz@other.social",
	}}}

	report, err := New(Options{HintThreshold: 0.9}).Reconcile(stored, current)
	require.NoError(t, err)

	change, _ := report.Change("1")
	require.Len(t, change.Hints, 1)
	require.Equal(t, snapshot.AccountHandle("leoncowle@old.social"), change.Hints[0].From)
	require.Equal(t, snapshot.AccountHandle("leoncowle@hachyderm.io"), change.Hints[0].To)
	require.InDelta(t, 1.0, change.Hints[0].Similarity, 0.0001)

	report, err = New(Options{}).Reconcile(stored, current)
	require.NoError(t, err)
	change, _ = report.Change("1")
	require.Empty(t, change.Hints)
}
