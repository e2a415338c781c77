package mastodon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/leoncowle/mastodon-misc/internal/assert"
	"github.com/leoncowle/mastodon-misc/internal/components/telemetry"
	libtelemetry "github.com/leoncowle/mastodon-misc/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_client_verify_credentials = "client.verify-credentials"
	report_client_get_lists          = "client.get-lists"
	report_client_get_list_accounts  = "client.get-list-accounts"
	report_client_post_status        = "client.post-status"
)

// ErrAuth is returned when the token is missing or rejected by the instance.
var ErrAuth = errors.New("mastodon: credential missing or rejected")

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mastodon: %s %s responded with %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// Unwrap makes errors.Is(err, ErrAuth) hold for 401 and 403 responses.
func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden {
		return ErrAuth
	}
	return nil
}

type Options struct {
	// Instance is the domain of the instance, without scheme or path (ex. "hachyderm.io").
	Instance string
	// BaseUrl overrides the https://<Instance> base, mostly for tests.
	BaseUrl string
	// Token is sent as a bearer token, it is never inspected.
	Token   string
	Timeout time.Duration
	// RequestsPerSecond limits outgoing requests, 0 disables the limiter.
	RequestsPerSecond float64
	UserAgent         string
}

// Client is a small client for the subset of the Mastodon REST API this
// repository needs.
type Client struct {
	http     *resty.Client
	tel      telemetry.API
	instance string
}

func NewClient(opts Options, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel, "telemetry")
	tel = telemetry.NewScopedAPI("mastodon", tel)

	baseUrl := opts.BaseUrl
	if baseUrl == "" {
		if opts.Instance == "" {
			return nil, fmt.Errorf("mastodon: an instance or base url must be specified")
		}
		if strings.Contains(opts.Instance, "/") {
			return nil, fmt.Errorf("mastodon: instance %q should be a bare domain", opts.Instance)
		}
		baseUrl = fmt.Sprintf("https://%s", opts.Instance)
	}
	if opts.Token == "" {
		return nil, fmt.Errorf("%w: no access token configured", ErrAuth)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "listdrift (+https://github.com/leoncowle/mastodon-misc)"
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(baseUrl)
	httpClient.SetTimeout(timeout)
	httpClient.SetAuthToken(opts.Token)
	httpClient.SetHeader("user-agent", userAgent)
	httpClient.SetHeader("accept", "application/json")

	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(httpClient, tel)
	libtelemetry.InstrumentResty(httpClient, "listdrift/mastodon/http")

	return &Client{
		http:     httpClient,
		tel:      tel,
		instance: opts.Instance,
	}, nil
}

// Instance returns the configured instance domain.
func (c *Client) Instance() string {
	return c.instance
}

func checkResponse(res *resty.Response) error {
	if res.IsSuccess() {
		return nil
	}
	body := res.String()
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return &StatusError{
		Method: res.Request.Method,
		URL:    res.Request.URL,
		Code:   res.StatusCode(),
		Body:   body,
	}
}

// ID is an entity id. Mastodon sends ids as strings but some compatible
// servers send plain numbers, both decode into the same value.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

type Account struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
	Acct     string `json:"acct"`
}

type List struct {
	ID    ID     `json:"id"`
	Title string `json:"title"`
}

// VerifyCredentials returns the account the token belongs to, a rejected token
// results in an error wrapping ErrAuth.
func (c *Client) VerifyCredentials(ctx context.Context) (Account, error) {
	res, err := c.http.R().
		SetContext(ctx).
		Get("/api/v1/accounts/verify_credentials")
	if err != nil {
		c.tel.ReportBroken(report_client_verify_credentials, fmt.Errorf("fetch: %w", err))
		return Account{}, err
	}
	if err := checkResponse(res); err != nil {
		c.tel.ReportBroken(report_client_verify_credentials, err)
		return Account{}, err
	}

	var account Account
	err = json.Unmarshal(res.Body(), &account)
	if err != nil {
		c.tel.ReportBroken(report_client_verify_credentials, fmt.Errorf("unmarshal json: %w", err))
		return Account{}, err
	}
	return account, nil
}

// GetLists returns every list owned by the authenticated account.
func (c *Client) GetLists(ctx context.Context) ([]List, error) {
	res, err := c.http.R().
		SetContext(ctx).
		Get("/api/v1/lists")
	if err != nil {
		c.tel.ReportBroken(report_client_get_lists, fmt.Errorf("fetch: %w", err))
		return nil, err
	}
	if err := checkResponse(res); err != nil {
		c.tel.ReportBroken(report_client_get_lists, err)
		return nil, err
	}

	var lists []List
	err = json.Unmarshal(res.Body(), &lists)
	if err != nil {
		c.tel.ReportBroken(report_client_get_lists, fmt.Errorf("unmarshal json: %w", err))
		return nil, err
	}
	c.tel.ReportDebug(report_client_get_lists, telemetry.KV{Key: "count", Value: len(lists)})
	return lists, nil
}
