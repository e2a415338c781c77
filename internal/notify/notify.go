// Package notify forwards removed list members to the user.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/leoncowle/mastodon-misc/internal/reconcile"
	"github.com/leoncowle/mastodon-misc/internal/snapshot"
)

// Notifier is told about every account that dropped out of a list.
type Notifier interface {
	NotifyRemoval(ctx context.Context, removal reconcile.Removal) error
}

// FormatRemoval renders the message sent for a removal. Handles without a
// server are local to `instance`.
func FormatRemoval(removal reconcile.Removal, instance string) string {
	return fmt.Sprintf(
		"An account dropped out of one of your lists:\n\nList: \"%s\" (id:%s)\nAcct: %s",
		removal.ListTitle,
		removal.ListID,
		snapshot.CanonicalHandle(string(removal.Account), instance),
	)
}

// Multi notifies every notifier, a failing notifier does not stop the others.
type Multi []Notifier

func (m Multi) NotifyRemoval(ctx context.Context, removal reconcile.Removal) error {
	var errs []error
	for _, n := range m {
		err := n.NotifyRemoval(ctx, removal)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards every removal.
type Nop struct{}

func (Nop) NotifyRemoval(ctx context.Context, removal reconcile.Removal) error {
	return nil
}
