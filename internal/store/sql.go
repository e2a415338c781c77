package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leoncowle/mastodon-misc/internal/chrono"
	"github.com/leoncowle/mastodon-misc/internal/snapshot"
	"github.com/leoncowle/mastodon-misc/internal/store/db"
)

// SQLStore keeps the baseline in a sqlite or libsql database.
type SQLStore struct {
	db     *sql.DB
	qry    *db.Queries
	makeTx db.MakeTx
	clock  chrono.TimeAPI
}

// OpenSQLStore opens (and creates if needed) the baseline database. `dsn` is
// either a sqlite path or a libsql://, http:// or https:// url.
func OpenSQLStore(ctx context.Context, dsn string, clock chrono.TimeAPI) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sql store: a database must be specified")
	}

	driver := "sqlite"
	if isRemoteDSN(dsn) {
		driver = "libsql"
	}
	database, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// every connection to ":memory:" is its own database
		database.SetMaxOpenConns(1)
		if !strings.Contains(dsn, ":memory:") {
			_, err = database.ExecContext(ctx, "PRAGMA journal_mode=WAL")
			if err != nil {
				database.Close()
				return nil, err
			}
		}
	}

	err = migrate(ctx, database)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("sql store: apply schema: %w", err)
	}
	return NewSQLStore(database, clock), nil
}

// NewSQLStore wraps a database that already has the schema applied.
func NewSQLStore(database *sql.DB, clock chrono.TimeAPI) *SQLStore {
	if clock == nil {
		clock = chrono.NewStandardTime()
	}
	return &SQLStore{
		db:     database,
		qry:    db.New(database),
		makeTx: db.NewMakeTx(database),
		clock:  clock,
	}
}

func isRemoteDSN(dsn string) bool {
	for _, prefix := range []string{"libsql://", "http://", "https://", "wss://", "ws://"} {
		if strings.HasPrefix(dsn, prefix) {
			return true
		}
	}
	return false
}

func migrate(ctx context.Context, database *sql.DB) error {
	for _, stmt := range strings.Split(db.Schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		_, err := database.ExecContext(ctx, stmt)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context) (snapshot.ListSnapshot, error) {
	_, err := s.qry.GetBaseline(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBaselineMissing
	}
	if err != nil {
		return nil, err
	}

	lists, err := s.qry.GetLists(ctx)
	if err != nil {
		return nil, err
	}
	out := make(snapshot.ListSnapshot, len(lists))
	for _, l := range lists {
		out[snapshot.ListID(l.ID)] = snapshot.ListEntry{Title: l.Title}
	}

	members, err := s.qry.GetListMembers(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		id := snapshot.ListID(m.ListID)
		entry, ok := out[id]
		if !ok {
			return nil, fmt.Errorf("%w: member %s of unknown list %s", snapshot.ErrMalformedSnapshot, m.Account, m.ListID)
		}
		entry.Members = append(entry.Members, snapshot.AccountHandle(m.Account))
		out[id] = entry
	}

	err = out.Validate()
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SavedAt returns when the baseline was last saved.
func (s *SQLStore) SavedAt(ctx context.Context) (time.Time, error) {
	savedAt, err := s.qry.GetBaseline(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrBaselineMissing
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(savedAt, 0).UTC(), nil
}

// Save replaces the whole baseline in a single transaction.
func (s *SQLStore) Save(ctx context.Context, snap snapshot.ListSnapshot) error {
	err := snap.Validate()
	if err != nil {
		return err
	}

	txqry, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		return err
	}
	defer discard()

	err = txqry.DeleteAllListMembers(ctx)
	if err != nil {
		return fmt.Errorf("DeleteAllListMembers: %w", err)
	}
	err = txqry.DeleteAllLists(ctx)
	if err != nil {
		return fmt.Errorf("DeleteAllLists: %w", err)
	}

	for _, id := range snap.IDs() {
		entry := snap[id]
		err = txqry.CreateList(ctx, db.CreateListParams{
			ID:    string(id),
			Title: entry.Title,
		})
		if err != nil {
			return fmt.Errorf("CreateList %s: %w", id, err)
		}
		for i, member := range entry.Members {
			err = txqry.AddListMember(ctx, db.AddListMemberParams{
				ListID:   string(id),
				Position: int64(i),
				Account:  string(member),
			})
			if err != nil {
				return fmt.Errorf("AddListMember %s: %w", id, err)
			}
		}
	}

	err = txqry.SetBaseline(ctx, s.clock.Now().Unix())
	if err != nil {
		return fmt.Errorf("SetBaseline: %w", err)
	}
	return commit()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
