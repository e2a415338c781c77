// Package report prints runs to the console.
package report

import (
	"fmt"
	"io"

	"github.com/leoncowle/mastodon-misc/internal/reconcile"
	"github.com/leoncowle/mastodon-misc/internal/snapshot"

	"github.com/jedib0t/go-pretty/v6/table"
)

type Printer struct {
	out io.Writer
	// Verbose also prints members that are still in their list.
	Verbose bool
	// Tables renders go-pretty tables after the line report.
	Tables bool
}

func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

func (p *Printer) println(args ...any) {
	fmt.Fprintln(p.out, args...)
}

func (p *Printer) printf(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

// Saved prints the baseline that was just written to `where`.
func (p *Printer) Saved(where string, s snapshot.ListSnapshot) {
	p.printf("Saved current state of lists out to '%s'...\n", where)

	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.AppendHeader(table.Row{"ID", "Name", "Member count"})
	for _, id := range s.IDs() {
		t.AppendRow(table.Row{id, s[id].Title, len(s[id].Members)})
	}
	t.AppendFooter(table.Row{"", "Total", s.MemberCount()})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

// FetchFailures prints a warning for every list that could not be fetched.
func (p *Printer) FetchFailures(failed map[snapshot.ListID]error) {
	ids := make([]snapshot.ListID, 0, len(failed))
	for id := range failed {
		ids = append(ids, id)
	}
	snapshot.SortIDs(ids)
	for _, id := range ids {
		p.printf("WARNING: could not fetch list (id:%s), it is left out of this run: %v\n", id, failed[id])
	}
}

// Changes prints every classified member of the report, one line each.
func (p *Printer) Changes(r reconcile.ChangeReport) {
	for _, change := range r.Lists {
		if p.Verbose {
			for _, m := range change.Unchanged {
				p.println("Good   : ", change.ID, change.Title, m)
			}
		}
		for _, m := range change.Added {
			p.printf("INFO: New list member found that isn't in your saved list: %s (id:%s) : %s\n", change.Title, change.ID, m)
		}
		for _, m := range change.Removed {
			p.println("MISSING: ", change.ID, change.Title, m)
		}
		for _, hint := range change.Hints {
			p.printf("HINT: %s may have moved to %s (similarity %.2f)\n", hint.From, hint.To, hint.Similarity)
		}
	}
	for _, notice := range r.NewLists {
		p.printf("INFO: New list found that isn't in your saved lists: %s (id:%s) : %d members\n", notice.Title, notice.ID, notice.Members)
	}

	if p.Tables {
		p.driftTable(r)
	}

	if r.HasNovelty {
		p.println("INFO: Your saved lists are out of date, run with --reset to save the current state.")
	}
}

func (p *Printer) driftTable(r reconcile.ChangeReport) {
	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.AppendHeader(table.Row{"List", "ID", "Unchanged", "Added", "Removed"})
	for _, change := range r.Lists {
		t.AppendRow(table.Row{change.Title, change.ID, len(change.Unchanged), len(change.Added), len(change.Removed)})
	}
	for _, notice := range r.NewLists {
		t.AppendRow(table.Row{notice.Title + " (new)", notice.ID, "", notice.Members, ""})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
