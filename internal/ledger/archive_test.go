package ledger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveKeepsEvictedTurns(t *testing.T) {
	archive, err := OpenArchive(":memory:")
	require.NoError(t, err)
	defer archive.Close()

	l := New(2, archive)
	for _, p := range []string{"one", "two", "three", "four"} {
		l.Append(turn("s1", p, true))
	}

	// Memory window holds the last two; the archive holds all four.
	require.Len(t, l.History("s1"), 2)

	archived, err := archive.SessionTurns("s1", 10)
	require.NoError(t, err)
	require.Len(t, archived, 4)
	assert.Equal(t, "one", archived[0].Prompt)
	assert.Equal(t, "four", archived[3].Prompt)

	n, err := archive.SessionCount("s1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestArchiveStoreIsIdempotent(t *testing.T) {
	archive, err := OpenArchive(":memory:")
	require.NoError(t, err)
	defer archive.Close()

	tn := turn("s1", "once", true)
	tn.Number = 1
	require.NoError(t, archive.StoreTurn(&tn))
	require.NoError(t, archive.StoreTurn(&tn))

	n, err := archive.SessionCount("s1")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "double store must not duplicate the turn")
}

func TestArchiveSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "turns.db")

	archive, err := OpenArchive(path)
	require.NoError(t, err)

	tn := turn("s1", "persisted", true)
	tn.Number = 1
	require.NoError(t, archive.StoreTurn(&tn))
	require.NoError(t, archive.Close())

	reopened, err := OpenArchive(path)
	require.NoError(t, err)
	defer reopened.Close()

	turns, err := reopened.SessionTurns("s1", 0)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "persisted", turns[0].Prompt)
}

func TestArchiveSessionsOrderedByFirstTurn(t *testing.T) {
	archive, err := OpenArchive(":memory:")
	require.NoError(t, err)
	defer archive.Close()

	for i, session := range []string{"alpha", "beta", "alpha"} {
		tn := turn(session, "p", true)
		tn.Number = i + 1
		require.NoError(t, archive.StoreTurn(&tn))
	}

	ids, err := archive.Sessions()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, ids)
}

func TestArchiveUnboundedQuery(t *testing.T) {
	archive, err := OpenArchive(":memory:")
	require.NoError(t, err)
	defer archive.Close()

	for i := 1; i <= 150; i++ {
		tn := turn("s1", "p", true)
		tn.Number = i
		require.NoError(t, archive.StoreTurn(&tn))
	}

	// A non-positive limit means everything.
	turns, err := archive.SessionTurns("s1", 0)
	require.NoError(t, err)
	assert.Len(t, turns, 150)

	turns, err = archive.SessionTurns("s1", 10)
	require.NoError(t, err)
	assert.Len(t, turns, 10)
}
