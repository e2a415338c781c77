// Package drift runs a full check: fetch the live lists, load the baseline,
// then either replace the baseline or compare against it.
package drift

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/leoncowle/mastodon-misc/internal/assert"
	"github.com/leoncowle/mastodon-misc/internal/components/telemetry"
	"github.com/leoncowle/mastodon-misc/internal/fetcher"
	"github.com/leoncowle/mastodon-misc/internal/mastodon"
	"github.com/leoncowle/mastodon-misc/internal/notify"
	"github.com/leoncowle/mastodon-misc/internal/reconcile"
	"github.com/leoncowle/mastodon-misc/internal/report"
	"github.com/leoncowle/mastodon-misc/internal/snapshot"
	"github.com/leoncowle/mastodon-misc/internal/store"
)

const (
	report_run_verify   = "run.verify-credentials"
	report_run_fetch    = "run.fetch"
	report_run_baseline = "run.baseline"
	report_run_save     = "run.save"
	report_run_notify   = "run.notify"
	report_run_removals = "run.removals"
	report_run_failed   = "run.failed-lists"
)

type Mode string

const (
	ModeReset   Mode = "reset"
	ModeCompare Mode = "compare"
)

// Verifier checks the token before anything is fetched.
type Verifier interface {
	VerifyCredentials(ctx context.Context) (mastodon.Account, error)
}

type SnapshotFetcher interface {
	Fetch(ctx context.Context, sel fetcher.Selection) (fetcher.FetchResult, error)
}

type Options struct {
	// Reset replaces the baseline with the live state instead of comparing.
	Reset     bool
	Selection fetcher.Selection
	// Notify forwards every removal to the notifier.
	Notify bool
	// PersistOnDrift saves the live state after a comparison that found
	// any difference.
	PersistOnDrift bool
	// AdoptNewLists adds lists without a baseline to the baseline, existing
	// entries are left untouched.
	AdoptNewLists bool
}

type Outcome struct {
	Mode    Mode
	Report  reconcile.ChangeReport
	Current snapshot.ListSnapshot
	Failed  map[snapshot.ListID]error
	// Saved is true when the baseline was written.
	Saved          bool
	NotifyFailures int
}

type Deps struct {
	// Verifier is optional.
	Verifier   Verifier
	Fetcher    SnapshotFetcher
	Reconciler *reconcile.Reconciler
	Store      store.Store
	// Notifier defaults to notify.Nop.
	Notifier notify.Notifier
	// Printer defaults to discarding output.
	Printer *report.Printer
	// StoreName is how the store is named in printed output.
	StoreName string
	// Instance canonicalizes the handles of the baseline the same way the
	// fetcher canonicalizes live handles.
	Instance string
}

type Runner struct {
	deps Deps
	tel  telemetry.API
}

func NewRunner(deps Deps, tel telemetry.API) *Runner {
	assert.NotNil(deps.Fetcher, "fetcher")
	assert.NotNil(deps.Store, "store")
	assert.NotNil(tel, "telemetry")

	if deps.Reconciler == nil {
		deps.Reconciler = reconcile.New(reconcile.Options{})
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Printer == nil {
		deps.Printer = report.NewPrinter(io.Discard)
	}
	if deps.StoreName == "" {
		deps.StoreName = "store"
	}

	return &Runner{
		deps: deps,
		tel:  telemetry.NewScopedAPI("drift", tel),
	}
}

// Run performs one check. Errors returned from Run are fatal to the run:
// a rejected token, failing to list the lists, a malformed baseline or a
// failing store. Lists that fail individually only show up in
// Outcome.Failed.
func (r *Runner) Run(ctx context.Context, opts Options) (Outcome, error) {
	if r.deps.Verifier != nil {
		account, err := r.deps.Verifier.VerifyCredentials(ctx)
		if err != nil {
			r.tel.ReportBroken(report_run_verify, err)
			return Outcome{}, fmt.Errorf("verify credentials: %w", err)
		}
		r.tel.ReportDebug(report_run_verify, telemetry.KV{Key: "account", Value: account.Acct})
	}

	result, err := r.deps.Fetcher.Fetch(ctx, opts.Selection)
	if err != nil {
		r.tel.ReportBroken(report_run_fetch, err)
		return Outcome{}, fmt.Errorf("fetch: %w", err)
	}
	r.deps.Printer.FetchFailures(result.Failed)
	r.tel.ReportCount(report_run_failed, int64(len(result.Failed)))

	stored, err := r.deps.Store.Load(ctx)
	reset := opts.Reset
	switch {
	case err == nil:
	case errors.Is(err, store.ErrBaselineMissing):
		r.tel.ReportWarning(report_run_baseline, "no baseline saved yet, saving the current state")
		reset = true
		stored = nil
	case errors.Is(err, snapshot.ErrMalformedSnapshot) && opts.Reset:
		r.tel.ReportWarning(report_run_baseline, "overwriting malformed baseline", err)
		stored = nil
	default:
		r.tel.ReportBroken(report_run_baseline, err)
		return Outcome{}, fmt.Errorf("load baseline: %w", err)
	}

	stored = stored.Canonical(r.deps.Instance)

	outcome := Outcome{
		Current: result.Snapshot,
		Failed:  result.Failed,
	}
	if reset {
		outcome.Mode = ModeReset
		next := r.carryOver(stored, result, opts.Selection)
		err = r.save(ctx, next)
		if err != nil {
			return outcome, err
		}
		outcome.Saved = true
		r.deps.Printer.Saved(r.deps.StoreName, next)
		return outcome, nil
	}

	outcome.Mode = ModeCompare
	comparable := stored.Clone()
	for id := range comparable {
		if !r.fetched(id, result, opts.Selection) {
			delete(comparable, id)
		}
	}

	changes, err := r.deps.Reconciler.Reconcile(comparable, result.Snapshot)
	if err != nil {
		r.tel.ReportBroken(report_run_baseline, err)
		return outcome, fmt.Errorf("reconcile: %w", err)
	}
	outcome.Report = changes
	r.deps.Printer.Changes(changes)

	removals := changes.Removals()
	r.tel.ReportCount(report_run_removals, int64(len(removals)))
	if opts.Notify {
		for _, removal := range removals {
			err := r.deps.Notifier.NotifyRemoval(ctx, removal)
			if err != nil {
				outcome.NotifyFailures++
				r.tel.ReportWarning(
					report_run_notify,
					err,
					telemetry.KV{Key: "list", Value: removal.ListID},
					telemetry.KV{Key: "account", Value: removal.Account},
				)
			}
		}
	}

	drifted := len(removals) > 0 || changes.HasNovelty
	switch {
	case opts.PersistOnDrift && drifted:
		err = r.save(ctx, r.carryOver(stored, result, opts.Selection))
		if err != nil {
			return outcome, err
		}
		outcome.Saved = true
	case opts.AdoptNewLists && len(changes.NewLists) > 0:
		next := stored.Clone()
		for _, notice := range changes.NewLists {
			next[notice.ID] = result.Snapshot[notice.ID]
		}
		err = r.save(ctx, next)
		if err != nil {
			return outcome, err
		}
		outcome.Saved = true
	}

	return outcome, nil
}

// fetched reports whether the live state of a list is known this run. Lists
// that failed or were not selected are neither compared nor dropped.
func (r *Runner) fetched(id snapshot.ListID, result fetcher.FetchResult, sel fetcher.Selection) bool {
	if _, failed := result.Failed[id]; failed {
		return false
	}
	if sel.IsAll() {
		return true
	}
	for _, selected := range sel.IDs {
		if selected == id {
			return true
		}
	}
	return false
}

// carryOver builds the next baseline out of the live state, keeping the stored
// entries of lists whose live state is unknown.
func (r *Runner) carryOver(stored snapshot.ListSnapshot, result fetcher.FetchResult, sel fetcher.Selection) snapshot.ListSnapshot {
	next := result.Snapshot.Clone()
	if next == nil {
		next = snapshot.ListSnapshot{}
	}
	for id, entry := range stored {
		if r.fetched(id, result, sel) {
			continue
		}
		next[id] = entry
	}
	return next
}

func (r *Runner) save(ctx context.Context, s snapshot.ListSnapshot) error {
	err := r.deps.Store.Save(ctx, s)
	if err != nil {
		r.tel.ReportBroken(report_run_save, err)
		return fmt.Errorf("save baseline: %w", err)
	}
	r.tel.ReportDebug(
		report_run_save,
		telemetry.KV{Key: "lists", Value: len(s)},
		telemetry.KV{Key: "members", Value: s.MemberCount()},
	)
	return nil
}
