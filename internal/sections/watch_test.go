package sections

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSectionDir(t *testing.T, dir string, texts map[string]string) {
	t.Helper()
	for key, text := range texts {
		require.NoError(t, os.WriteFile(filepath.Join(dir, key+".md"), []byte(text), 0644))
	}
}

func startWatcher(t *testing.T, path string, load func() (*Catalog, error)) <-chan *Catalog {
	t.Helper()
	reloaded := make(chan *Catalog, 4)
	w, err := NewWatcher(path, load, func(c *Catalog) { reloaded <- c })
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return reloaded
}

func TestWatcherReloadsDirectory(t *testing.T) {
	dir := t.TempDir()
	writeSectionDir(t, dir, fullTexts())
	reloaded := startWatcher(t, dir, func() (*Catalog, error) { return LoadDir(dir) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, ToneStyle+".md"), []byte("calm and warm"), 0644))

	select {
	case cat := <-reloaded:
		text, _ := cat.Get(ToneStyle)
		assert.Equal(t, "calm and warm", text)
	case <-time.After(3 * time.Second):
		t.Fatal("catalog was not reloaded")
	}
}

func TestWatcherKeepsCatalogOnBrokenReload(t *testing.T) {
	dir := t.TempDir()
	writeSectionDir(t, dir, fullTexts())
	reloaded := startWatcher(t, dir, func() (*Catalog, error) { return LoadDir(dir) })

	require.NoError(t, os.Remove(filepath.Join(dir, Closing+".md")))

	select {
	case <-reloaded:
		t.Fatal("reload with a missing section must not be delivered")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherYAMLFileIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sections.yaml")
	writeYAML := func(tone string) {
		var body string
		for key, text := range fullTexts() {
			if key == ToneStyle {
				text = tone
			}
			body += key + ": " + text + "\n"
		}
		require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	}
	writeYAML("first")
	reloaded := startWatcher(t, path, func() (*Catalog, error) { return LoadYAML(path) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	select {
	case <-reloaded:
		t.Fatal("unrelated file must not trigger a reload")
	case <-time.After(200 * time.Millisecond):
	}

	writeYAML("second")
	select {
	case cat := <-reloaded:
		text, _ := cat.Get(ToneStyle)
		assert.Equal(t, "second", text)
	case <-time.After(3 * time.Second):
		t.Fatal("catalog was not reloaded")
	}
}

func TestNewWatcherMissingPath(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "nope"), LoadBuiltin, func(*Catalog) {})
	assert.Error(t, err)
}
