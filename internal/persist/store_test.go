package persist

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kayz/stageprompt/internal/promptbuild"
	"github.com/kayz/stageprompt/internal/sections"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "nested", "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRecordsBuilderOutput(t *testing.T) {
	store := newTestStore(t)

	texts := make(map[string]string, len(sections.RequiredKeys))
	for _, key := range sections.RequiredKeys {
		texts[key] = strings.ToUpper(key)
	}
	cat, err := sections.New(texts)
	require.NoError(t, err)
	b := promptbuild.NewBuilder(cat).WithRecorder(store)

	out := b.Build(promptbuild.Request{Stage: promptbuild.StageClosing, Guardrails: "GUARD"})
	b.Build(promptbuild.Request{Stage: promptbuild.StageStartup})
	b.BuildCompact(nil)

	all, err := store.Recent("", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	closing, err := store.Recent("closing", 10)
	require.NoError(t, err)
	require.Len(t, closing, 1)
	assert.Equal(t, out, closing[0].FinalPrompt)
	assert.Equal(t, []string{"core_identity", "language_rules", "closing", "tone_style", "guardrails"}, closing[0].Sections)
	assert.False(t, closing[0].Compact)
	assert.NotEmpty(t, closing[0].RequestDigest)
}

func TestStoreRecentOrderAndLimit(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Record(promptbuild.AuditRecord{
			ID:            id,
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
			Stage:         "startup",
			RequestDigest: "d",
		}))
	}

	recs, err := store.Recent("startup", 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "c", recs[0].ID)
	assert.Equal(t, "b", recs[1].ID)
	assert.True(t, recs[0].Timestamp.Equal(base.Add(2*time.Minute)))
}

func TestStoreCleanup(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Record(promptbuild.AuditRecord{ID: "old", Timestamp: time.Now().AddDate(0, 0, -30), RequestDigest: "d"}))
	require.NoError(t, store.Record(promptbuild.AuditRecord{ID: "new", Timestamp: time.Now(), RequestDigest: "d"}))

	removed, err := store.Cleanup(7)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	recs, err := store.Recent("", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "new", recs[0].ID)

	removed, err = store.Cleanup(0)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
