package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/leoncowle/mastodon-misc/internal/chrono"
	"github.com/leoncowle/mastodon-misc/internal/components/telemetry"
	"github.com/leoncowle/mastodon-misc/internal/drift"
	"github.com/leoncowle/mastodon-misc/internal/fetcher"
	"github.com/leoncowle/mastodon-misc/internal/mastodon"
	"github.com/leoncowle/mastodon-misc/internal/notify"
	"github.com/leoncowle/mastodon-misc/internal/reconcile"
	"github.com/leoncowle/mastodon-misc/internal/report"
	"github.com/leoncowle/mastodon-misc/internal/snapshot"
	"github.com/leoncowle/mastodon-misc/internal/store"
	"github.com/leoncowle/mastodon-misc/lib/configutil"

	"dario.cat/mergo"
)

type MastodonNotifyConfig struct {
	Enabled bool `json:"enabled"`
	// Token falls back to MASTOPOSTTOKEN, then to the list token.
	Token      string `json:"token"`
	Visibility string `json:"visibility"`
	Prefix     string `json:"prefix"`
}

type EmailNotifyConfig struct {
	Enabled bool              `json:"enabled"`
	Smtp    notify.SmtpConfig `json:"smtp"`
}

type NotifyConfig struct {
	Mastodon MastodonNotifyConfig `json:"mastodon"`
	Email    EmailNotifyConfig    `json:"email"`
}

type ServeConfig struct {
	Port int `json:"port"`
	// Schedule is a cron spec for compare runs, empty disables it.
	Schedule string `json:"schedule"`
}

type Config struct {
	// Instance is the bare domain of the instance (ex. "hachyderm.io"),
	// falls back to MASTOINSTANCE.
	Instance string `json:"instance"`
	// Token needs the read:lists and read:accounts scopes, falls back to
	// MASTOLISTTOKEN.
	Token string `json:"token"`
	// Lists restricts runs to the given list ids, empty means every list.
	Lists             []string     `json:"lists"`
	PageSize          int          `json:"page_size"`
	Concurrency       int          `json:"concurrency"`
	Strict            bool         `json:"strict"`
	Verbose           bool         `json:"verbose"`
	Tables            bool         `json:"tables"`
	RequestsPerSecond float64      `json:"requests_per_second"`
	HintThreshold     float64      `json:"hint_threshold"`
	Store             store.Config `json:"store"`
	Notify            NotifyConfig `json:"notify"`
	PersistOnDrift    bool         `json:"persist_on_drift"`
	AdoptNewLists     bool         `json:"adopt_new_lists"`
	Serve             ServeConfig  `json:"serve"`
}

func defaultConfig() Config {
	return Config{
		PageSize:          80,
		Concurrency:       4,
		RequestsPerSecond: 5,
		HintThreshold:     0.92,
		Serve:             ServeConfig{Port: 8080},
	}
}

// loadConfig reads the config file (a missing file is not an error) and fills
// credentials from the environment and the optional .env file.
func loadConfig(path string) (Config, error) {
	err := configutil.LoadDotenv()
	if err != nil {
		return Config{}, err
	}

	cfg := defaultConfig()
	fromFile, err := configutil.ReadConfig[Config](path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Debug("config file not found, using defaults and environment", "path", path)
	case err != nil:
		return Config{}, err
	default:
		// file values win over defaults, zero values keep the default
		err = mergo.Merge(&cfg, fromFile, mergo.WithOverride)
		if err != nil {
			return Config{}, err
		}
	}

	cfg.Instance = configutil.EnvOr(cfg.Instance, "MASTOINSTANCE")
	cfg.Token = configutil.EnvOr(cfg.Token, "MASTOLISTTOKEN")
	cfg.Notify.Mastodon.Token = configutil.EnvOr(cfg.Notify.Mastodon.Token, "MASTOPOSTTOKEN")
	if cfg.Notify.Mastodon.Token == "" {
		cfg.Notify.Mastodon.Token = cfg.Token
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Instance == "" {
		return fmt.Errorf("no instance configured, set \"instance\" or MASTOINSTANCE")
	}
	if c.Token == "" {
		return fmt.Errorf("%w: set \"token\" or MASTOLISTTOKEN", mastodon.ErrAuth)
	}
	if c.HintThreshold < 0 || c.HintThreshold > 1 {
		return fmt.Errorf("hint_threshold must be between 0 and 1, got %v", c.HintThreshold)
	}
	return nil
}

func (c Config) selection() fetcher.Selection {
	ids := make([]snapshot.ListID, len(c.Lists))
	for i, id := range c.Lists {
		ids[i] = snapshot.ListID(id)
	}
	return fetcher.Lists(ids...)
}

func (c Config) storeName() string {
	switch c.Store.Driver {
	case store.DriverSQL:
		return c.Store.Database
	case store.DriverS3:
		key := c.Store.S3.Key
		if key == "" {
			key = store.DefaultFile
		}
		return fmt.Sprintf("s3://%s/%s", c.Store.S3.Bucket, key)
	case store.DriverMemory:
		return "memory"
	}
	if c.Store.File == "" {
		return store.DefaultFile
	}
	return c.Store.File
}

// app is everything a run needs, built once per process.
type app struct {
	runner *drift.Runner
	store  store.Store
}

func (a app) Close() error {
	return a.store.Close()
}

func buildNotifier(cfg Config, tel telemetry.API) (notify.Notifier, error) {
	var notifiers notify.Multi

	if cfg.Notify.Mastodon.Enabled {
		visibility, err := mastodon.ParseVisibility(cfg.Notify.Mastodon.Visibility)
		if err != nil {
			return nil, err
		}
		poster, err := mastodon.NewClient(mastodon.Options{
			Instance:          cfg.Instance,
			Token:             cfg.Notify.Mastodon.Token,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}, tel)
		if err != nil {
			return nil, fmt.Errorf("post client: %w", err)
		}
		notifiers = append(notifiers, notify.NewMastodonNotifier(poster, notify.MastodonOptions{
			Instance:   cfg.Instance,
			Visibility: visibility,
			Prefix:     cfg.Notify.Mastodon.Prefix,
		}, tel))
	}

	if cfg.Notify.Email.Enabled {
		if cfg.Notify.Email.Smtp.Server == "" || cfg.Notify.Email.Smtp.EmailAddress == "" {
			return nil, fmt.Errorf("email notifications need notify.email.smtp.server and email_address")
		}
		notifiers = append(notifiers, notify.NewEmailNotifier(cfg.Notify.Email.Smtp, cfg.Instance, tel))
	}

	return notifiers, nil
}

func buildApp(ctx context.Context, cfg Config, tel telemetry.API, out io.Writer) (app, error) {
	err := cfg.validate()
	if err != nil {
		return app{}, err
	}

	client, err := mastodon.NewClient(mastodon.Options{
		Instance:          cfg.Instance,
		Token:             cfg.Token,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, tel)
	if err != nil {
		return app{}, err
	}

	notifier, err := buildNotifier(cfg, tel)
	if err != nil {
		return app{}, err
	}

	baseline, err := store.Open(ctx, cfg.Store, chrono.NewStandardTime())
	if err != nil {
		return app{}, fmt.Errorf("open store: %w", err)
	}

	printer := report.NewPrinter(out)
	printer.Verbose = cfg.Verbose
	printer.Tables = cfg.Tables

	runner := drift.NewRunner(drift.Deps{
		Verifier: client,
		Fetcher: fetcher.New(client, fetcher.Config{
			PageSize:    cfg.PageSize,
			Concurrency: cfg.Concurrency,
			Strict:      cfg.Strict,
			Instance:    cfg.Instance,
		}, tel),
		Reconciler: reconcile.New(reconcile.Options{
			Strict:        cfg.Strict,
			HintThreshold: cfg.HintThreshold,
		}),
		Store:     baseline,
		Notifier:  notifier,
		Printer:   printer,
		StoreName: cfg.storeName(),
		Instance:  cfg.Instance,
	}, tel)

	return app{runner: runner, store: baseline}, nil
}

func (c Config) runOptions(reset, notifyEnabled bool) drift.Options {
	return drift.Options{
		Reset:          reset,
		Selection:      c.selection(),
		Notify:         notifyEnabled,
		PersistOnDrift: c.PersistOnDrift,
		AdoptNewLists:  c.AdoptNewLists,
	}
}
