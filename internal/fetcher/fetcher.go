// Package fetcher builds a ListSnapshot of the live membership of the lists
// owned by the authenticated account.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/leoncowle/mastodon-misc/internal/assert"
	"github.com/leoncowle/mastodon-misc/internal/components/telemetry"
	"github.com/leoncowle/mastodon-misc/internal/mastodon"
	"github.com/leoncowle/mastodon-misc/internal/snapshot"

	"golang.org/x/sync/errgroup"
)

const (
	report_fetch_lists       = "fetch.lists"
	report_fetch_list        = "fetch.list"
	report_fetch_duplicates  = "fetch.duplicates"
	report_fetch_members     = "fetch.members"
	report_fetch_list_failed = "fetch.list-failed"
)

var (
	// ErrUnknownList is returned for a requested list the account does not own.
	ErrUnknownList = errors.New("list does not exist")
	// ErrCursorLoop is returned when the server hands back a cursor that was
	// already requested for the same list.
	ErrCursorLoop = errors.New("pagination cursor repeated")
	// ErrDuplicateMember is returned in strict mode when a list contains the
	// same account more than once.
	ErrDuplicateMember = errors.New("duplicate member")
)

// FetchError is the failure of a single list, the rest of the run is not
// affected by it.
type FetchError struct {
	ListID snapshot.ListID
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch list %s: %v", e.ListID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Pager is the subset of the Mastodon API the fetcher needs, *mastodon.Client
// implements it.
type Pager interface {
	GetLists(ctx context.Context) ([]mastodon.List, error)
	GetListAccountsPage(ctx context.Context, listID string, limit int, cursor mastodon.Cursor) (mastodon.Page, error)
}

// Selection is either every list of the account or an explicit set of ids.
type Selection struct {
	IDs []snapshot.ListID
}

// All selects every list owned by the account.
func All() Selection {
	return Selection{}
}

// Lists selects the given lists, an empty call is the same as All.
func Lists(ids ...snapshot.ListID) Selection {
	return Selection{IDs: ids}
}

func (s Selection) IsAll() bool {
	return len(s.IDs) == 0
}

type Config struct {
	// PageSize is the requested amount of accounts per page, the server may
	// return less. Defaults to 80 (the Mastodon maximum).
	PageSize int
	// Concurrency is the amount of lists fetched at the same time.
	Concurrency int
	// Strict fails a list that contains the same account twice instead of
	// letting comparison collapse it.
	Strict bool
	// Instance is appended to local accounts, see snapshot.CanonicalHandle.
	Instance string
}

type FetchResult struct {
	Snapshot snapshot.ListSnapshot
	// Failed holds a *FetchError for every selected list that could not be
	// fetched, those lists are absent from Snapshot.
	Failed map[snapshot.ListID]error
}

type Fetcher struct {
	pager Pager
	cfg   Config
	tel   telemetry.API
}

func New(pager Pager, cfg Config, tel telemetry.API) *Fetcher {
	assert.NotNil(pager, "pager")
	assert.NotNil(tel, "telemetry")

	if cfg.PageSize <= 0 {
		cfg.PageSize = 80
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	return &Fetcher{
		pager: pager,
		cfg:   cfg,
		tel:   telemetry.NewScopedAPI("fetcher", tel),
	}
}

// Fetch retrieves the current membership of the selected lists.
//
// The list of lists is always requested since it is the source of titles,
// failing to get it fails the whole fetch. A list whose pages fail is recorded
// in FetchResult.Failed and whatever was already paged for it is discarded.
// A rejected token (mastodon.ErrAuth) while paging fails the whole fetch.
func (f *Fetcher) Fetch(ctx context.Context, sel Selection) (FetchResult, error) {
	lists, err := f.pager.GetLists(ctx)
	if err != nil {
		f.tel.ReportBroken(report_fetch_lists, err)
		return FetchResult{}, fmt.Errorf("get lists: %w", err)
	}

	titles := make(map[snapshot.ListID]string, len(lists))
	var owned []snapshot.ListID
	for _, l := range lists {
		id := snapshot.ListID(l.ID)
		if _, ok := titles[id]; ok {
			continue
		}
		titles[id] = l.Title
		owned = append(owned, id)
	}

	result := FetchResult{
		Snapshot: snapshot.ListSnapshot{},
		Failed:   map[snapshot.ListID]error{},
	}

	targets := owned
	if !sel.IsAll() {
		targets = nil
		requested := map[snapshot.ListID]bool{}
		for _, id := range sel.IDs {
			if requested[id] {
				continue
			}
			requested[id] = true
			if _, ok := titles[id]; !ok {
				result.Failed[id] = &FetchError{ListID: id, Err: ErrUnknownList}
				f.tel.ReportWarning(report_fetch_list_failed, result.Failed[id])
				continue
			}
			targets = append(targets, id)
		}
	}

	var mutex sync.Mutex
	group := errgroup.Group{}
	group.SetLimit(f.cfg.Concurrency)

	for _, id := range targets {
		group.Go(func() error {
			members, err := f.fetchList(ctx, id)

			mutex.Lock()
			defer mutex.Unlock()

			if err != nil {
				fetchErr := &FetchError{ListID: id, Err: err}
				result.Failed[id] = fetchErr
				f.tel.ReportWarning(report_fetch_list_failed, fetchErr)
				return nil
			}
			result.Snapshot[id] = snapshot.ListEntry{
				Title:   titles[id],
				Members: members,
			}
			return nil
		})
	}
	group.Wait()

	if err := ctx.Err(); err != nil {
		return FetchResult{}, err
	}
	for _, id := range targets {
		if err := result.Failed[id]; err != nil && errors.Is(err, mastodon.ErrAuth) {
			return FetchResult{}, err
		}
	}

	f.tel.ReportCount(report_fetch_members, int64(result.Snapshot.MemberCount()))
	return result, nil
}

// fetchList pages through a single list until the server returns an empty
// page or no continuation.
func (f *Fetcher) fetchList(ctx context.Context, id snapshot.ListID) ([]snapshot.AccountHandle, error) {
	var members []snapshot.AccountHandle
	requested := map[string]bool{}
	cursor := mastodon.Cursor{}

	for {
		key := cursor.String()
		if requested[key] {
			f.tel.ReportBroken(
				report_fetch_list,
				ErrCursorLoop,
				telemetry.KV{Key: "list", Value: id},
				telemetry.KV{Key: "cursor", Value: key},
			)
			return nil, fmt.Errorf("%w: %s", ErrCursorLoop, key)
		}
		requested[key] = true

		page, err := f.pager.GetListAccountsPage(ctx, string(id), f.cfg.PageSize, cursor)
		if err != nil {
			return nil, err
		}

		for _, account := range page.Accounts {
			acct := account.Acct
			if acct == "" {
				acct = account.Username
			}
			if acct == "" {
				return nil, fmt.Errorf("account %s has no handle", account.ID)
			}
			members = append(members, snapshot.CanonicalHandle(acct, f.cfg.Instance))
		}

		if len(page.Accounts) == 0 || page.Next.IsZero() {
			break
		}
		cursor = page.Next
	}

	dups := snapshot.Duplicates(members)
	if len(dups) > 0 {
		if f.cfg.Strict {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateMember, dups)
		}
		f.tel.ReportWarning(
			report_fetch_duplicates,
			telemetry.KV{Key: "list", Value: id},
			telemetry.KV{Key: "accounts", Value: dups},
		)
	}

	f.tel.ReportDebug(
		report_fetch_list,
		telemetry.KV{Key: "list", Value: id},
		telemetry.KV{Key: "members", Value: len(members)},
	)
	return members, nil
}
