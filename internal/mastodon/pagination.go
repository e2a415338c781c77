package mastodon

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/leoncowle/mastodon-misc/internal/components/telemetry"

	"github.com/go-resty/resty/v2"
)

// Cursor tells GetListAccountsPage where to continue from. The zero value
// requests the first page.
type Cursor struct {
	// NextUrl is the rel="next" target of the previous response's Link header.
	NextUrl string
	// MaxID is the id of the last account of the previous page, it is used
	// when the server does not send Link headers.
	MaxID string
}

func (c Cursor) IsZero() bool {
	return c.NextUrl == "" && c.MaxID == ""
}

func (c Cursor) String() string {
	if c.NextUrl != "" {
		return c.NextUrl
	}
	if c.MaxID != "" {
		return "max_id=" + c.MaxID
	}
	return "<start>"
}

type Page struct {
	Accounts []Account
	// Next is zero when there is no page after this one.
	Next Cursor
}

var linkEntry = regexp.MustCompile(`<([^>]+)>\s*((?:;\s*[^;,]+)*)`)
var relParam = regexp.MustCompile(`rel\s*=\s*"?([^";,]+)"?`)

// parseLinkHeader maps each rel of a Link header to its target url.
func parseLinkHeader(values []string) map[string]string {
	out := map[string]string{}
	for _, value := range values {
		for _, match := range linkEntry.FindAllStringSubmatch(value, -1) {
			rel := relParam.FindStringSubmatch(match[2])
			if rel == nil {
				continue
			}
			for _, name := range strings.Fields(rel[1]) {
				out[name] = match[1]
			}
		}
	}
	return out
}

// nextCursor decides how to continue after a page. If the server sent a Link
// header at all, it is authoritative: no rel="next" means this was the last
// page. Otherwise the last account id is handed back as max_id, which costs one
// extra empty request at the end.
func nextCursor(res *resty.Response, accounts []Account) Cursor {
	links := res.Header().Values("Link")
	if len(links) > 0 {
		return Cursor{NextUrl: parseLinkHeader(links)["next"]}
	}
	if len(accounts) == 0 {
		return Cursor{}
	}
	return Cursor{MaxID: string(accounts[len(accounts)-1].ID)}
}

// GetListAccountsPage fetches one page of members of a list. `limit` is the
// requested page size, the server may return fewer accounts than that.
func (c *Client) GetListAccountsPage(ctx context.Context, listID string, limit int, cursor Cursor) (Page, error) {
	req := c.http.R().SetContext(ctx)

	var res *resty.Response
	var err error
	if cursor.NextUrl != "" {
		res, err = req.Get(cursor.NextUrl)
	} else {
		req.SetPathParam("id", listID)
		if limit > 0 {
			req.SetQueryParam("limit", strconv.Itoa(limit))
		}
		if cursor.MaxID != "" {
			req.SetQueryParam("max_id", cursor.MaxID)
		}
		res, err = req.Get("/api/v1/lists/{id}/accounts")
	}
	if err != nil {
		c.tel.ReportBroken(
			report_client_get_list_accounts,
			fmt.Errorf("fetch: %w", err),
			telemetry.KV{Key: "list", Value: listID},
		)
		return Page{}, err
	}
	if err := checkResponse(res); err != nil {
		c.tel.ReportBroken(
			report_client_get_list_accounts,
			err,
			telemetry.KV{Key: "list", Value: listID},
		)
		return Page{}, err
	}

	var accounts []Account
	err = json.Unmarshal(res.Body(), &accounts)
	if err != nil {
		c.tel.ReportBroken(
			report_client_get_list_accounts,
			fmt.Errorf("unmarshal json: %w", err),
			telemetry.KV{Key: "list", Value: listID},
		)
		return Page{}, err
	}

	page := Page{Accounts: accounts, Next: nextCursor(res, accounts)}
	c.tel.ReportDebug(
		report_client_get_list_accounts,
		telemetry.KV{Key: "list", Value: listID},
		telemetry.KV{Key: "cursor", Value: cursor.String()},
		telemetry.KV{Key: "accounts", Value: len(accounts)},
	)
	return page, nil
}
