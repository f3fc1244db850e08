package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/recordbase/recordbase/internal/record"
)

// testStores returns one initialized backend of each kind that runs without
// external services. Contract tests run against all of them so file and
// memory stay observably identical.
func testStores(t *testing.T) map[string]Store {
	t.Helper()
	fs := NewFileStore(filepath.Join(t.TempDir(), "db.json"))
	require.NoError(t, fs.Init())
	ms := NewMemoryStore()
	require.NoError(t, ms.Init())
	return map[string]Store{TypeFile: fs, TypeMemory: ms}
}

func recTime(t *testing.T, r record.Record, field string) time.Time {
	t.Helper()
	s, ok := r[field].(string)
	require.True(t, ok)
	ts, err := time.Parse(time.RFC3339Nano, s)
	require.NoError(t, err)
	return ts
}

func TestRoundTrip(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			created, err := s.CreateRecord("users", record.Record{"name": "Jane Doe", "email": "jane@example.com"})
			require.NoError(t, err)
			require.NotEmpty(t, created.ID())
			require.Equal(t, created[record.FieldCreatedAt], created[record.FieldUpdatedAt])

			got, err := s.GetRecord("users", created.ID())
			require.NoError(t, err)
			require.Equal(t, created, got)
		})
	}
}

func TestCreateIgnoresForgedIdentity(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			created, err := s.CreateRecord("users", record.Record{"id": "forged", "createdAt": "1999-01-01T00:00:00Z", "name": "x"})
			require.NoError(t, err)
			require.NotEqual(t, "forged", created.ID())
			require.NotEqual(t, "1999-01-01T00:00:00Z", created[record.FieldCreatedAt])
		})
	}
}

func TestCreateManyUniqueIDs(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ids := map[string]bool{}
			for i := 0; i < 25; i++ {
				r, err := s.CreateRecord("users", record.Record{"n": i})
				require.NoError(t, err)
				require.False(t, ids[r.ID()])
				ids[r.ID()] = true
			}
			recs, err := s.GetCollection("users")
			require.NoError(t, err)
			require.Len(t, recs, 25)
		})
	}
}

func TestUpdatePreservesIdentity(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			created, err := s.CreateRecord("users", record.Record{"name": "Jane Doe", "email": "jane@example.com"})
			require.NoError(t, err)

			updated, err := s.UpdateRecord("users", created.ID(), record.Record{"name": "Jane Smith"})
			require.NoError(t, err)
			require.Equal(t, created.ID(), updated.ID())
			require.Equal(t, created[record.FieldCreatedAt], updated[record.FieldCreatedAt])
			require.Equal(t, "Jane Smith", updated["name"])
			require.Equal(t, "jane@example.com", updated["email"])
			require.False(t, recTime(t, updated, record.FieldUpdatedAt).Before(recTime(t, created, record.FieldUpdatedAt)))
		})
	}
}

func TestUpdateMissing(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.UpdateRecord("users", "nope", record.Record{"a": 1})
			require.ErrorIs(t, err, ErrNotFound)
			_, err = s.UpdateRecord("no-such-collection", "nope", record.Record{"a": 1})
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestDeleteIsTerminal(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			created, err := s.CreateRecord("users", record.Record{"name": "x"})
			require.NoError(t, err)

			removed, err := s.DeleteRecord("users", created.ID())
			require.NoError(t, err)
			require.True(t, removed)

			_, err = s.GetRecord("users", created.ID())
			require.ErrorIs(t, err, ErrNotFound)

			removed, err = s.DeleteRecord("users", created.ID())
			require.NoError(t, err)
			require.False(t, removed)

			removed, err = s.DeleteRecord("no-such-collection", "nope")
			require.NoError(t, err)
			require.False(t, removed)
		})
	}
}

func TestAutoCreateCollection(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			recs, err := s.GetCollection("gadgets")
			require.NoError(t, err)
			require.Empty(t, recs)

			_, err = s.CreateRecord("gadgets", record.Record{"name": "widget"})
			require.NoError(t, err)

			recs, err = s.GetCollection("gadgets")
			require.NoError(t, err)
			require.Len(t, recs, 1)
		})
	}
}

func TestStatsConsistency(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				_, err := s.CreateRecord("users", record.Record{"n": i})
				require.NoError(t, err)
			}
			_, err := s.CreateRecord("posts", record.Record{"title": "t"})
			require.NoError(t, err)

			stats, err := s.Stats()
			require.NoError(t, err)
			require.Equal(t, s.Type(), stats.StorageType)

			total := 0
			for c, n := range stats.Collections {
				recs, err := s.GetCollection(c)
				require.NoError(t, err)
				require.Len(t, recs, n)
				total += n
			}
			require.Equal(t, total, stats.TotalRecords)
			require.Equal(t, len(stats.Collections), stats.TotalCollections)
		})
	}
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			created, err := s.CreateRecord("users", record.Record{"name": "original"})
			require.NoError(t, err)
			created["name"] = "tampered"

			got, err := s.GetRecord("users", created.ID())
			require.NoError(t, err)
			require.Equal(t, "original", got["name"])
			got["name"] = "tampered again"

			recs, err := s.GetCollection("users")
			require.NoError(t, err)
			require.Equal(t, "original", recs[0]["name"])
		})
	}
}

func TestBackupSnapshot(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			created, err := s.CreateRecord("users", record.Record{"name": "x"})
			require.NoError(t, err)

			b, err := s.Backup()
			require.NoError(t, err)
			require.Equal(t, s.Type(), b.Metadata.StorageType)
			require.NotEmpty(t, b.Metadata.CreatedAt)
			require.Equal(t, 1, b.Metadata.Stats.Collections["users"])
			require.Equal(t, created.ID(), b.Data["users"][0].ID())

			// the snapshot is detached from live state
			b.Data["users"][0]["name"] = "tampered"
			got, err := s.GetRecord("users", created.ID())
			require.NoError(t, err)
			require.Equal(t, "x", got["name"])
		})
	}
}

func TestClearResetsToSeed(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.CreateRecord("gadgets", record.Record{"name": "widget"})
			require.NoError(t, err)

			require.NoError(t, s.Clear())

			stats, err := s.Stats()
			require.NoError(t, err)
			require.Equal(t, 0, stats.TotalRecords)
			require.ElementsMatch(t, record.DefaultCollections, statKeys(stats))
		})
	}
}

func TestHealthCheckLeavesNoResidue(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			before, err := s.Stats()
			require.NoError(t, err)

			require.True(t, s.HealthCheck())

			after, err := s.Stats()
			require.NoError(t, err)
			require.Equal(t, before.TotalRecords, after.TotalRecords)
			require.Equal(t, before.TotalCollections, after.TotalCollections)
			require.NotContains(t, after.Collections, healthCheckCollection)
		})
	}
}

// TestBackendParity drives both backends through the same operation sequence
// and compares the observable records, masking only the timestamps and ids
// each backend generated for itself.
func TestBackendParity(t *testing.T) {
	stores := testStores(t)
	type step struct {
		rec record.Record
	}
	steps := []step{
		{record.Record{"name": "Jane", "role": "admin"}},
		{record.Record{"name": "Joe", "role": "user"}},
	}

	results := map[string][]record.Record{}
	for name, s := range stores {
		var out []record.Record
		var ids []string
		for _, st := range steps {
			r, err := s.CreateRecord("users", st.rec)
			require.NoError(t, err)
			ids = append(ids, r.ID())
		}
		_, err := s.UpdateRecord("users", ids[0], record.Record{"role": "owner"})
		require.NoError(t, err)
		removed, err := s.DeleteRecord("users", ids[1])
		require.NoError(t, err)
		require.True(t, removed)

		recs, err := s.GetCollection("users")
		require.NoError(t, err)
		for _, r := range recs {
			c := r.Clone()
			delete(c, record.FieldID)
			delete(c, record.FieldCreatedAt)
			delete(c, record.FieldUpdatedAt)
			out = append(out, c)
		}
		results[name] = out
	}
	require.Equal(t, results[TypeMemory], results[TypeFile])
}

func statKeys(s Stats) []string {
	out := make([]string, 0, len(s.Collections))
	for k := range s.Collections {
		out = append(out, k)
	}
	return out
}
