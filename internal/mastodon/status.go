package mastodon

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mazen160/go-random"
)

type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
	VisibilityDirect   Visibility = "direct"
)

// ParseVisibility validates a visibility name, "" defaults to direct.
func ParseVisibility(value string) (Visibility, error) {
	switch Visibility(value) {
	case "":
		return VisibilityDirect, nil
	case VisibilityPublic, VisibilityUnlisted, VisibilityPrivate, VisibilityDirect:
		return Visibility(value), nil
	}
	return "", fmt.Errorf("mastodon: unknown visibility %q", value)
}

type Status struct {
	Text       string
	Visibility Visibility
}

type PostedStatus struct {
	ID  ID     `json:"id"`
	Url string `json:"url"`
}

// PostStatus publishes a status as the authenticated account. An idempotency
// key is attached so a retried request does not publish twice.
func (c *Client) PostStatus(ctx context.Context, status Status) (PostedStatus, error) {
	visibility := status.Visibility
	if visibility == "" {
		visibility = VisibilityDirect
	}

	key, err := random.String(24)
	if err != nil {
		c.tel.ReportBroken(report_client_post_status, fmt.Errorf("idempotency key: %w", err))
		return PostedStatus{}, err
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", key).
		SetFormData(map[string]string{
			"status":     status.Text,
			"visibility": string(visibility),
		}).
		Post("/api/v1/statuses")
	if err != nil {
		c.tel.ReportBroken(report_client_post_status, fmt.Errorf("fetch: %w", err))
		return PostedStatus{}, err
	}
	if err := checkResponse(res); err != nil {
		c.tel.ReportBroken(report_client_post_status, err)
		return PostedStatus{}, err
	}

	var posted PostedStatus
	err = json.Unmarshal(res.Body(), &posted)
	if err != nil {
		c.tel.ReportBroken(report_client_post_status, fmt.Errorf("unmarshal json: %w", err))
		return PostedStatus{}, err
	}
	return posted, nil
}
