package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anythingllm-sync/pkg/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := New(filepath.Join(t.TempDir(), "uploaded-docs-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func trackedDoc(path string, syncedAt time.Time) models.TrackedDocument {
	return models.TrackedDocument{
		LocalPath:      path,
		SyncedAt:       syncedAt,
		RemoteLocation: "custom-documents/" + filepath.Base(path) + "-1.json",
		Metadata:       `{"title":"` + filepath.Base(path) + `"}`,
	}
}

func TestUpsertAndList(t *testing.T) {
	database := newTestDB(t)
	syncedAt := time.Date(2025, 6, 1, 12, 30, 45, 0, time.UTC)

	require.NoError(t, database.Upsert(trackedDoc("/docs/b.md", syncedAt)))
	require.NoError(t, database.Upsert(trackedDoc("/docs/a.md", syncedAt)))

	docs, err := database.List()
	require.NoError(t, err)
	require.Len(t, docs, 2)

	// Ordered by local path.
	assert.Equal(t, "/docs/a.md", docs[0].LocalPath)
	assert.Equal(t, "/docs/b.md", docs[1].LocalPath)
	assert.Equal(t, "custom-documents/a.md-1.json", docs[0].RemoteLocation)
	assert.Equal(t, `{"title":"a.md"}`, docs[0].Metadata)
}

func TestUpsertReplacesExistingRecord(t *testing.T) {
	database := newTestDB(t)
	first := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, database.Upsert(trackedDoc("/docs/a.md", first)))

	updated := trackedDoc("/docs/a.md", first.Add(time.Hour))
	updated.RemoteLocation = "custom-documents/a.md-2.json"
	require.NoError(t, database.Upsert(updated))

	n, err := database.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	docs, err := database.List()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "custom-documents/a.md-2.json", docs[0].RemoteLocation)
	assert.True(t, docs[0].SyncedAt.Equal(first.Add(time.Hour)))
}

func TestSyncedAtRoundTrip(t *testing.T) {
	database := newTestDB(t)

	// Sub-second precision and zone are dropped on write.
	local := time.FixedZone("UTC+7", 7*3600)
	syncedAt := time.Date(2025, 6, 1, 19, 30, 45, 123456789, local)
	require.NoError(t, database.Upsert(trackedDoc("/docs/a.md", syncedAt)))

	docs, err := database.List()
	require.NoError(t, err)
	require.Len(t, docs, 1)

	expected := time.Date(2025, 6, 1, 12, 30, 45, 0, time.UTC)
	assert.True(t, docs[0].SyncedAt.Equal(expected),
		"got %v, want %v", docs[0].SyncedAt, expected)
}

func TestDelete(t *testing.T) {
	database := newTestDB(t)
	syncedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, database.Upsert(trackedDoc("/docs/a.md", syncedAt)))
	require.NoError(t, database.Upsert(trackedDoc("/docs/b.md", syncedAt)))

	require.NoError(t, database.Delete("/docs/a.md"))

	docs, err := database.List()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "/docs/b.md", docs[0].LocalPath)

	// Deleting an untracked path is not an error.
	assert.NoError(t, database.Delete("/docs/never-seen.md"))
}

func TestClear(t *testing.T) {
	database := newTestDB(t)
	syncedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, database.Upsert(trackedDoc("/docs/a.md", syncedAt)))
	require.NoError(t, database.Upsert(trackedDoc("/docs/b.md", syncedAt)))

	require.NoError(t, database.Clear())

	n, err := database.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestListEmptyLedger(t *testing.T) {
	database := newTestDB(t)

	docs, err := database.List()
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uploaded-docs-test.db")
	syncedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	database, err := New(path)
	require.NoError(t, err)
	require.NoError(t, database.Upsert(trackedDoc("/docs/a.md", syncedAt)))
	require.NoError(t, database.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	n, err := reopened.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
