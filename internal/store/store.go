// Package store persists the baseline snapshot. Every driver reads and writes
// the whole baseline at once, there is a single writer per run.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/leoncowle/mastodon-misc/internal/chrono"
	"github.com/leoncowle/mastodon-misc/internal/snapshot"
)

// ErrBaselineMissing is returned by Load when nothing was ever saved.
var ErrBaselineMissing = errors.New("baseline missing")

// Store is the persisted baseline.
//
// Load returns ErrBaselineMissing when there is no baseline and an error
// wrapping snapshot.ErrMalformedSnapshot when the stored data cannot be
// decoded. Save replaces the baseline with the given snapshot, preserving the
// order of members.
type Store interface {
	Load(ctx context.Context) (snapshot.ListSnapshot, error)
	Save(ctx context.Context, s snapshot.ListSnapshot) error
	Close() error
}

type Driver string

const (
	DriverFile   Driver = "file"
	DriverSQL    Driver = "sql"
	DriverS3     Driver = "s3"
	DriverMemory Driver = "memory"
)

type Config struct {
	// Driver defaults to "file".
	Driver Driver `json:"driver"`
	// File is the path of the JSON baseline for the file driver.
	File string `json:"file"`
	// Database is a sqlite path (or ":memory:") or a libsql url for the sql
	// driver.
	Database string   `json:"database"`
	S3       S3Config `json:"s3"`
}

// DefaultFile is the file the baseline is kept in when none is configured.
const DefaultFile = "masto_get_list_members.json"

// Open selects a Store implementation from the config.
func Open(ctx context.Context, cfg Config, clock chrono.TimeAPI) (Store, error) {
	if clock == nil {
		clock = chrono.NewStandardTime()
	}

	driver := cfg.Driver
	if driver == "" {
		driver = DriverFile
	}
	switch driver {
	case DriverFile:
		path := cfg.File
		if path == "" {
			path = DefaultFile
		}
		return NewFileStore(path), nil
	case DriverSQL:
		return OpenSQLStore(ctx, cfg.Database, clock)
	case DriverS3:
		return NewS3Store(ctx, cfg.S3, clock)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
