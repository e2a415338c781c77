package snapshot

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalHandle(t *testing.T) {
	testCases := []struct {
		acct     string
		instance string
		expected AccountHandle
	}{
		{acct: "leon", instance: "hachyderm.io", expected: "leon@hachyderm.io"},
		{acct: "leon@mastodon.social", instance: "hachyderm.io", expected: "leon@mastodon.social"},
		{acct: "@leon", instance: "hachyderm.io", expected: "leon@hachyderm.io"},
		{acct: "Leon", instance: "hachyderm.io", expected: "Leon@hachyderm.io"},
		{acct: "leon", instance: "", expected: "leon"},
	}

	for _, test := range testCases {
		require.Equal(t, test.expected, CanonicalHandle(test.acct, test.instance))
	}
}

func TestCanonicalHandleIsStable(t *testing.T) {
	first := CanonicalHandle("leon", "hachyderm.io")
	second := CanonicalHandle(string(first), "hachyderm.io")
	require.Equal(t, first, second)
}

func TestCanonicalSnapshot(t *testing.T) {
	stored := ListSnapshot{
		"1": {Title: "Friends", Members: []AccountHandle{"leon", "bob@other.social", "leon@hachyderm.io"}},
		"2": {Title: "Empty"},
	}

	canonical := stored.Canonical("hachyderm.io")
	require.Equal(t, ListSnapshot{
		"1": {Title: "Friends", Members: []AccountHandle{"leon@hachyderm.io", "bob@other.social", "leon@hachyderm.io"}},
		"2": {Title: "Empty"},
	}, canonical)

	// the input is left untouched
	require.Equal(t, AccountHandle("leon"), stored["1"].Members[0])
	require.Nil(t, ListSnapshot(nil).Canonical("hachyderm.io"))
}

func TestHandleParts(t *testing.T) {
	h := AccountHandle("alice@example.social")
	require.Equal(t, "alice", h.Username())
	require.Equal(t, "example.social", h.Server())

	local := AccountHandle("bob")
	require.Equal(t, "bob", local.Username())
	require.Equal(t, "", local.Server())
}

func TestIDsOrdering(t *testing.T) {
	s := ListSnapshot{
		"10":  {Title: "ten"},
		"9":   {Title: "nine"},
		"100": {Title: "hundred"},
		"abc": {Title: "letters"},
	}
	require.Equal(t, []ListID{"9", "10", "100", "abc"}, s.IDs())

	ids := []ListID{"abc", "10", "9"}
	SortIDs(ids)
	require.Equal(t, []ListID{"9", "10", "abc"}, ids)
}

func TestCloneIsDeep(t *testing.T) {
	s := ListSnapshot{"1": {Title: "Friends", Members: []AccountHandle{"a", "b"}}}
	clone := s.Clone()
	clone["1"].Members[0] = "z"
	require.Equal(t, AccountHandle("a"), s["1"].Members[0])
	require.Nil(t, ListSnapshot(nil).Clone())
}

func TestValidate(t *testing.T) {
	require.NoError(t, ListSnapshot{}.Validate())
	require.NoError(t, ListSnapshot{"1": {Title: "Friends", Members: []AccountHandle{"a"}}}.Validate())

	err := ListSnapshot{"1": {Members: []AccountHandle{"a"}}}.Validate()
	require.True(t, errors.Is(err, ErrMalformedSnapshot))
	require.Contains(t, err.Error(), "list 1 has no title")

	err = ListSnapshot{"1": {Title: "Friends", Members: []AccountHandle{"a", ""}}}.Validate()
	require.True(t, errors.Is(err, ErrMalformedSnapshot))

	err = ListSnapshot{"": {Title: "Friends"}}.Validate()
	require.True(t, errors.Is(err, ErrMalformedSnapshot))
}

func TestDuplicates(t *testing.T) {
	require.Empty(t, Duplicates([]AccountHandle{"a", "b", "c"}))
	require.Equal(
		t,
		[]AccountHandle{"b", "a"},
		Duplicates([]AccountHandle{"a", "b", "b", "a", "b"}),
	)
}

func TestMemberCount(t *testing.T) {
	s := ListSnapshot{
		"1": {Title: "a", Members: []AccountHandle{"x", "y"}},
		"2": {Title: "b", Members: []AccountHandle{"z"}},
	}
	require.Equal(t, 3, s.MemberCount())
}
