package drift

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leoncowle/mastodon-misc/internal/components/telemetry"
	"github.com/leoncowle/mastodon-misc/internal/fetcher"
	"github.com/leoncowle/mastodon-misc/internal/mastodon"
	"github.com/leoncowle/mastodon-misc/internal/reconcile"
	"github.com/leoncowle/mastodon-misc/internal/report"
	"github.com/leoncowle/mastodon-misc/internal/snapshot"
	"github.com/leoncowle/mastodon-misc/internal/store"

	"github.com/stretchr/testify/require"
)

type handles = []snapshot.AccountHandle

// staticFetcher returns a fixed live state, lists in `failed` fail.
type staticFetcher struct {
	live   snapshot.ListSnapshot
	failed map[snapshot.ListID]error
	err    error
	calls  int
}

func (f *staticFetcher) Fetch(ctx context.Context, sel fetcher.Selection) (fetcher.FetchResult, error) {
	f.calls++
	if f.err != nil {
		return fetcher.FetchResult{}, f.err
	}
	result := fetcher.FetchResult{
		Snapshot: snapshot.ListSnapshot{},
		Failed:   map[snapshot.ListID]error{},
	}
	for id, entry := range f.live {
		if !sel.IsAll() && !containsID(sel.IDs, id) {
			continue
		}
		if err := f.failed[id]; err != nil {
			result.Failed[id] = &fetcher.FetchError{ListID: id, Err: err}
			continue
		}
		result.Snapshot[id] = entry
	}
	return result, nil
}

func containsID(ids []snapshot.ListID, id snapshot.ListID) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}
	return false
}

type fakeVerifier struct {
	err error
}

func (v fakeVerifier) VerifyCredentials(ctx context.Context) (mastodon.Account, error) {
	return mastodon.Account{Acct: "me"}, v.err
}

type recordingNotifier struct {
	removals []reconcile.Removal
	err      error
}

func (n *recordingNotifier) NotifyRemoval(ctx context.Context, removal reconcile.Removal) error {
	n.removals = append(n.removals, removal)
	return n.err
}

type brokenStore struct {
	loadErr error
	saveErr error
}

func (s brokenStore) Load(ctx context.Context) (snapshot.ListSnapshot, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return snapshot.ListSnapshot{}, nil
}

func (s brokenStore) Save(ctx context.Context, snap snapshot.ListSnapshot) error {
	return s.saveErr
}

func (s brokenStore) Close() error {
	return nil
}

var storedBaseline = snapshot.ListSnapshot{
	"L1": {Title: "Friends", Members: handles{"a", "b", "c"}},
}

var liveState = snapshot.ListSnapshot{
	"L1": {Title: "Friends", Members: handles{"a", "b"}},
	"L2": {Title: "New", Members: handles{"x"}},
}

type harness struct {
	runner   *Runner
	fetcher  *staticFetcher
	store    *store.MemoryStore
	notifier *recordingNotifier
	tel      *telemetry.Recorder
	out      *bytes.Buffer
}

func setup(baseline, live snapshot.ListSnapshot) harness {
	h := harness{
		fetcher:  &staticFetcher{live: live},
		store:    store.NewMemoryStore(),
		notifier: &recordingNotifier{},
		tel:      telemetry.NewRecorder(),
		out:      &bytes.Buffer{},
	}
	if baseline != nil {
		h.store = store.NewMemoryStoreWith(baseline)
	}
	h.runner = NewRunner(Deps{
		Verifier:  fakeVerifier{},
		Fetcher:   h.fetcher,
		Store:     h.store,
		Notifier:  h.notifier,
		Printer:   report.NewPrinter(h.out),
		StoreName: "memory",
	}, h.tel)
	return h
}

func (h harness) saved(t testing.TB) snapshot.ListSnapshot {
	s, err := h.store.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestFirstRunSavesBaseline(t *testing.T) {
	h := setup(nil, liveState)

	outcome, err := h.runner.Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, ModeReset, outcome.Mode)
	require.True(t, outcome.Saved)
	require.Equal(t, liveState, h.saved(t))
	require.True(t, h.tel.Has(telemetry.KindWarning, report_run_baseline))
	require.Contains(t, h.out.String(), "Saved current state of lists out to 'memory'...")
}

func TestCompareScenario(t *testing.T) {
	h := setup(storedBaseline, liveState)

	outcome, err := h.runner.Run(context.Background(), Options{Notify: true})
	require.NoError(t, err)
	require.Equal(t, ModeCompare, outcome.Mode)
	require.False(t, outcome.Saved)
	require.True(t, outcome.Report.HasNovelty)
	require.Equal(t, []reconcile.Removal{{ListID: "L1", ListTitle: "Friends", Account: "c"}}, h.notifier.removals)
	require.Contains(t, h.out.String(), "MISSING:  L1 Friends c")

	// the baseline is untouched without a persistence policy
	require.Equal(t, storedBaseline, h.saved(t))
	require.Equal(t, 0, h.store.Saves())
}

func TestCompareWithoutNotify(t *testing.T) {
	h := setup(storedBaseline, liveState)

	_, err := h.runner.Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Empty(t, h.notifier.removals)
}

func TestNotifyFailureIsNotFatal(t *testing.T) {
	h := setup(storedBaseline, liveState)
	h.notifier.err = errors.New("422")

	outcome, err := h.runner.Run(context.Background(), Options{Notify: true})
	require.NoError(t, err)
	require.Equal(t, 1, outcome.NotifyFailures)
	require.True(t, h.tel.Has(telemetry.KindWarning, report_run_notify))
}

func TestExplicitReset(t *testing.T) {
	h := setup(storedBaseline, liveState)

	outcome, err := h.runner.Run(context.Background(), Options{Reset: true})
	require.NoError(t, err)
	require.Equal(t, ModeReset, outcome.Mode)
	require.Equal(t, liveState, h.saved(t))
	require.Empty(t, h.notifier.removals)
}

func TestResetKeepsBaselineOfFailedLists(t *testing.T) {
	h := setup(storedBaseline, liveState)
	h.fetcher.failed = map[snapshot.ListID]error{"L1": errors.New("500")}

	outcome, err := h.runner.Run(context.Background(), Options{Reset: true})
	require.NoError(t, err)
	require.Contains(t, outcome.Failed, snapshot.ListID("L1"))
	require.Equal(t, snapshot.ListSnapshot{
		"L1": storedBaseline["L1"],
		"L2": liveState["L2"],
	}, h.saved(t))
	require.Contains(t, h.out.String(), "WARNING: could not fetch list (id:L1)")
}

func TestFailedListIsNotCompared(t *testing.T) {
	h := setup(storedBaseline, liveState)
	h.fetcher.failed = map[snapshot.ListID]error{"L1": errors.New("500")}

	outcome, err := h.runner.Run(context.Background(), Options{Notify: true, PersistOnDrift: true})
	require.NoError(t, err)
	require.Empty(t, outcome.Report.Removals())
	require.Empty(t, outcome.Report.Deleted)
	require.Empty(t, h.notifier.removals)

	// L2 is new so the baseline is rewritten, L1 must survive it
	require.True(t, outcome.Saved)
	require.Equal(t, storedBaseline["L1"], h.saved(t)["L1"])
}

func TestSelectionLeavesOtherListsAlone(t *testing.T) {
	baseline := snapshot.ListSnapshot{
		"L1": {Title: "Friends", Members: handles{"a"}},
		"L3": {Title: "Other", Members: handles{"z"}},
	}
	live := snapshot.ListSnapshot{
		"L1": {Title: "Friends", Members: handles{"a"}},
		"L3": {Title: "Other"},
	}
	h := setup(baseline, live)

	outcome, err := h.runner.Run(context.Background(), Options{
		Selection:      fetcher.Lists("L1"),
		PersistOnDrift: true,
	})
	require.NoError(t, err)
	require.Empty(t, outcome.Report.Deleted)
	require.Empty(t, outcome.Report.Removals())
	require.False(t, outcome.Saved)

	_, err = h.runner.Run(context.Background(), Options{Selection: fetcher.Lists("L1"), Reset: true})
	require.NoError(t, err)
	require.Equal(t, baseline, h.saved(t))
}

func TestPersistOnDrift(t *testing.T) {
	h := setup(storedBaseline, liveState)

	outcome, err := h.runner.Run(context.Background(), Options{PersistOnDrift: true})
	require.NoError(t, err)
	require.True(t, outcome.Saved)
	require.Equal(t, liveState, h.saved(t))

	// nothing drifted the second time around
	outcome, err = h.runner.Run(context.Background(), Options{PersistOnDrift: true})
	require.NoError(t, err)
	require.False(t, outcome.Saved)
	require.Equal(t, 1, h.store.Saves())
}

func TestAdoptNewLists(t *testing.T) {
	h := setup(storedBaseline, liveState)

	outcome, err := h.runner.Run(context.Background(), Options{AdoptNewLists: true})
	require.NoError(t, err)
	require.True(t, outcome.Saved)
	require.Equal(t, snapshot.ListSnapshot{
		"L1": storedBaseline["L1"],
		"L2": liveState["L2"],
	}, h.saved(t))

	// the removal keeps being reported until the baseline is reset
	outcome, err = h.runner.Run(context.Background(), Options{AdoptNewLists: true})
	require.NoError(t, err)
	require.False(t, outcome.Saved)
	require.Len(t, outcome.Report.Removals(), 1)
}

func TestDeletedListIsSilent(t *testing.T) {
	baseline := snapshot.ListSnapshot{
		"L1": {Title: "Friends", Members: handles{"a"}},
		"L9": {Title: "Gone", Members: handles{"x", "y"}},
	}
	h := setup(baseline, snapshot.ListSnapshot{"L1": {Title: "Friends", Members: handles{"a"}}})

	outcome, err := h.runner.Run(context.Background(), Options{Notify: true})
	require.NoError(t, err)
	require.Equal(t, []snapshot.ListID{"L9"}, outcome.Report.Deleted)
	require.Empty(t, h.notifier.removals)
	require.NotContains(t, h.out.String(), "MISSING")
}

func TestAuthFailureIsFatal(t *testing.T) {
	h := setup(storedBaseline, liveState)
	h.runner.deps.Verifier = fakeVerifier{err: fmt.Errorf("%w: 401", mastodon.ErrAuth)}

	_, err := h.runner.Run(context.Background(), Options{})
	require.True(t, errors.Is(err, mastodon.ErrAuth))
	require.Equal(t, 0, h.fetcher.calls)
}

func TestFetchFailureIsFatal(t *testing.T) {
	h := setup(storedBaseline, liveState)
	h.fetcher.err = errors.New("get lists: 503")

	_, err := h.runner.Run(context.Background(), Options{})
	require.Error(t, err)
	require.Equal(t, 0, h.store.Saves())
}

func TestMalformedBaseline(t *testing.T) {
	malformed := fmt.Errorf("%w: list 1 has no title", snapshot.ErrMalformedSnapshot)
	runner := NewRunner(Deps{
		Fetcher: &staticFetcher{live: liveState},
		Store:   brokenStore{loadErr: malformed},
	}, telemetry.NewRecorder())

	_, err := runner.Run(context.Background(), Options{})
	require.True(t, errors.Is(err, snapshot.ErrMalformedSnapshot))

	// a reset is how a malformed baseline gets repaired
	outcome, err := runner.Run(context.Background(), Options{Reset: true})
	require.NoError(t, err)
	require.True(t, outcome.Saved)
}

func TestSaveFailureIsFatal(t *testing.T) {
	runner := NewRunner(Deps{
		Fetcher: &staticFetcher{live: liveState},
		Store:   brokenStore{saveErr: errors.New("disk full")},
	}, telemetry.NewRecorder())

	_, err := runner.Run(context.Background(), Options{Reset: true})
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "disk full"))
}

// listPager serves every list in a single page.
type listPager struct {
	lists   []mastodon.List
	members map[string][]string
}

func (p listPager) GetLists(ctx context.Context) ([]mastodon.List, error) {
	return p.lists, nil
}

func (p listPager) GetListAccountsPage(ctx context.Context, listID string, limit int, cursor mastodon.Cursor) (mastodon.Page, error) {
	if !cursor.IsZero() {
		return mastodon.Page{}, nil
	}
	var page mastodon.Page
	for i, acct := range p.members[listID] {
		page.Accounts = append(page.Accounts, mastodon.Account{
			ID:       mastodon.ID(fmt.Sprint(i + 1)),
			Username: strings.Split(acct, "@")[0],
			Acct:     acct,
		})
	}
	return page, nil
}

func TestScriptBaselineWithLocalHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), store.DefaultFile)
	err := os.WriteFile(path, []byte(`{"1": {"title": "Friends", "accounts": ["leon", "bob@other.social"]}}`), 0600)
	if err != nil {
		t.Fatal(err)
	}

	tel := telemetry.NewRecorder()
	pager := listPager{
		lists:   []mastodon.List{{ID: "1", Title: "Friends"}},
		members: map[string][]string{"1": {"leon", "bob@other.social"}},
	}
	notifier := &recordingNotifier{}
	out := &bytes.Buffer{}
	runner := NewRunner(Deps{
		Fetcher:  fetcher.New(pager, fetcher.Config{Instance: "hachyderm.io"}, tel),
		Store:    store.NewFileStore(path),
		Notifier: notifier,
		Printer:  report.NewPrinter(out),
		Instance: "hachyderm.io",
	}, tel)

	outcome, err := runner.Run(context.Background(), Options{Notify: true})
	require.NoError(t, err)
	require.Equal(t, ModeCompare, outcome.Mode)
	require.Empty(t, outcome.Report.Removals())
	require.False(t, outcome.Report.HasNovelty)

	change, ok := outcome.Report.Change("1")
	require.True(t, ok)
	require.Empty(t, change.Added)
	require.Equal(t, handles{"bob@other.social", "leon@hachyderm.io"}, change.Unchanged)
	require.Empty(t, notifier.removals)
	require.NotContains(t, out.String(), "MISSING")

	// a reset rewrites the baseline in canonical form
	_, err = runner.Run(context.Background(), Options{Reset: true})
	require.NoError(t, err)
	saved, err := store.NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, handles{"leon@hachyderm.io", "bob@other.social"}, saved["1"].Members)
}
