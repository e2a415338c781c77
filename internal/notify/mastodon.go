package notify

import (
	"context"

	"github.com/leoncowle/mastodon-misc/internal/assert"
	"github.com/leoncowle/mastodon-misc/internal/components/telemetry"
	"github.com/leoncowle/mastodon-misc/internal/mastodon"
	"github.com/leoncowle/mastodon-misc/internal/reconcile"
)

const report_notify_mastodon = "notify.mastodon"

// StatusPoster is satisfied by *mastodon.Client.
type StatusPoster interface {
	PostStatus(ctx context.Context, status mastodon.Status) (mastodon.PostedStatus, error)
}

type MastodonOptions struct {
	// Instance is appended to local handles in the message.
	Instance   string
	Visibility mastodon.Visibility
	// Prefix is put in front of every message, ex. to tell apart where the
	// check ran.
	Prefix string
}

// MastodonNotifier posts a status for every removal, by default only visible
// to the posting account.
type MastodonNotifier struct {
	poster StatusPoster
	opts   MastodonOptions
	tel    telemetry.API
}

func NewMastodonNotifier(poster StatusPoster, opts MastodonOptions, tel telemetry.API) MastodonNotifier {
	assert.NotNil(poster, "status poster")
	assert.NotNil(tel, "telemetry")
	if opts.Visibility == "" {
		opts.Visibility = mastodon.VisibilityDirect
	}
	return MastodonNotifier{
		poster: poster,
		opts:   opts,
		tel:    tel,
	}
}

func (n MastodonNotifier) NotifyRemoval(ctx context.Context, removal reconcile.Removal) error {
	text := FormatRemoval(removal, n.opts.Instance)
	if n.opts.Prefix != "" {
		text = n.opts.Prefix + "\n\n" + text
	}

	posted, err := n.poster.PostStatus(ctx, mastodon.Status{
		Text:       text,
		Visibility: n.opts.Visibility,
	})
	if err != nil {
		n.tel.ReportBroken(
			report_notify_mastodon,
			err,
			telemetry.KV{Key: "list", Value: removal.ListID},
			telemetry.KV{Key: "account", Value: removal.Account},
		)
		return err
	}
	n.tel.ReportDebug(report_notify_mastodon, telemetry.KV{Key: "status", Value: posted.Url})
	return nil
}
