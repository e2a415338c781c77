package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/leoncowle/mastodon-misc/internal/snapshot"
)

// documentEntry is one list in the JSON document format shared by the file and
// s3 drivers: {"<id>": {"title": "...", "accounts": ["..."]}}
type documentEntry struct {
	Title    *string   `json:"title"`
	Accounts *[]string `json:"accounts"`
}

func encodeDocument(s snapshot.ListSnapshot) ([]byte, error) {
	doc := make(map[string]documentEntry, len(s))
	for id, entry := range s {
		title := entry.Title
		accounts := make([]string, len(entry.Members))
		for i, m := range entry.Members {
			accounts[i] = string(m)
		}
		doc[string(id)] = documentEntry{Title: &title, Accounts: &accounts}
	}
	return json.MarshalIndent(doc, "", "  ")
}

func decodeDocument(data []byte) (snapshot.ListSnapshot, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty document", snapshot.ErrMalformedSnapshot)
	}

	var doc map[string]documentEntry
	err := json.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", snapshot.ErrMalformedSnapshot, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document is not an object", snapshot.ErrMalformedSnapshot)
	}

	out := make(snapshot.ListSnapshot, len(doc))
	for id, entry := range doc {
		if entry.Title == nil {
			return nil, fmt.Errorf("%w: list %s is missing \"title\"", snapshot.ErrMalformedSnapshot, id)
		}
		if entry.Accounts == nil {
			return nil, fmt.Errorf("%w: list %s is missing \"accounts\"", snapshot.ErrMalformedSnapshot, id)
		}
		members := make([]snapshot.AccountHandle, len(*entry.Accounts))
		for i, acct := range *entry.Accounts {
			members[i] = snapshot.AccountHandle(acct)
		}
		out[snapshot.ListID(id)] = snapshot.ListEntry{
			Title:   *entry.Title,
			Members: members,
		}
	}

	err = out.Validate()
	if err != nil {
		return nil, err
	}
	return out, nil
}
