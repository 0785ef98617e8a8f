package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lexandro/volindex-mcp/feed"
)

const eventTimeout = 2 * time.Second

// fakeTree maps a directory record to the records indexed below it.
type fakeTree map[uint64][]uint64

func (f fakeTree) Descendants(id uint64) []uint64 { return f[id] }

func startWatcher(t *testing.T, root string) (*feed.DirSource, <-chan feed.Event) {
	t.Helper()
	return startWatcherWithTree(t, root, nil)
}

func startWatcherWithTree(t *testing.T, root string, tree Tree) (*feed.DirSource, <-chan feed.Event) {
	t.Helper()
	source := feed.NewDirSource("vol", root, feed.DirOptions{})
	events := make(chan feed.Event, 64)
	w, err := NewWatcher(source, func(ev feed.Event) { events <- ev }, tree, nil)
	if err != nil {
		t.Fatalf("creating watcher: %v", err)
	}
	go w.Start()
	t.Cleanup(func() { w.Close() })
	return source, events
}

// waitFor returns the first event for id with the given op.
func waitFor(t *testing.T, events <-chan feed.Event, id uint64, op feed.Op) feed.Event {
	t.Helper()
	deadline := time.After(eventTimeout)
	for {
		select {
		case ev := <-events:
			if ev.RecordID == id && ev.Op == op {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s of record %d", op, id)
			return feed.Event{}
		}
	}
}

func Test_Watcher_CreateAndRemove(t *testing.T) {
	root := t.TempDir()
	_, events := startWatcher(t, root)

	file := filepath.Join(root, "report.pdf")
	if err := os.WriteFile(file, []byte("1234"), 0o644); err != nil {
		t.Fatal(err)
	}
	ev := waitFor(t, events, feed.RecordIDFor("report.pdf"), feed.OpUpsert)
	if ev.Entry.Name != "report.pdf" {
		t.Errorf("expected name 'report.pdf', got '%s'", ev.Entry.Name)
	}

	if err := os.Remove(file); err != nil {
		t.Fatal(err)
	}
	waitFor(t, events, feed.RecordIDFor("report.pdf"), feed.OpDelete)
}

func Test_Watcher_NewDirectoryIsWatched(t *testing.T) {
	root := t.TempDir()
	_, events := startWatcher(t, root)

	dir := filepath.Join(root, "photos")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	ev := waitFor(t, events, feed.RecordIDFor("photos"), feed.OpUpsert)
	if !ev.Entry.IsDirectory {
		t.Error("expected a directory entry")
	}

	if err := os.WriteFile(filepath.Join(dir, "beach.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	ev = waitFor(t, events, feed.RecordIDFor("photos/beach.jpg"), feed.OpUpsert)
	if ev.Entry.ParentID != feed.RecordIDFor("photos") {
		t.Errorf("expected parent to be the photos directory, got %d", ev.Entry.ParentID)
	}
}

func Test_Watcher_IgnoredPaths(t *testing.T) {
	root := t.TempDir()
	_, events := startWatcher(t, root)

	if err := os.WriteFile(filepath.Join(root, "scratch.tmp"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "kept.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	// kept.txt arrives; scratch.tmp never does
	deadline := time.After(eventTimeout)
	for {
		select {
		case ev := <-events:
			if ev.RecordID == feed.RecordIDFor("scratch.tmp") {
				t.Fatal("expected ignored extension to produce no event")
			}
			if ev.RecordID == feed.RecordIDFor("kept.txt") {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for kept.txt")
		}
	}
}

func Test_Watcher_IgnoreFileReload(t *testing.T) {
	root := t.TempDir()
	source, events := startWatcher(t, root)

	if source.Matcher().ShouldIgnore("movie.mkv", false) {
		t.Fatal("expected movie.mkv to be indexed before the ignore file exists")
	}
	if err := os.WriteFile(filepath.Join(root, ".volindexignore"), []byte("*.mkv\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, events, feed.RecordIDFor(".volindexignore"), feed.OpUpsert)

	if !source.Matcher().ShouldIgnore("movie.mkv", false) {
		t.Error("expected ignore rules to be reloaded")
	}
}

func Test_Watcher_DirectoryMovedOutRemovesChildren(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "photos")
	if err := os.MkdirAll(filepath.Join(dir, "2024"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "2024", "beach.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	tree := fakeTree{
		feed.RecordIDFor("photos"): {
			feed.RecordIDFor("photos/2024"),
			feed.RecordIDFor("photos/2024/beach.jpg"),
		},
	}
	_, events := startWatcherWithTree(t, root, tree)

	// moving out of the root reports only the directory itself
	if err := os.Rename(dir, filepath.Join(t.TempDir(), "photos")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, events, feed.RecordIDFor("photos"), feed.OpDelete)
	waitFor(t, events, feed.RecordIDFor("photos/2024"), feed.OpDelete)
	waitFor(t, events, feed.RecordIDFor("photos/2024/beach.jpg"), feed.OpDelete)
}

func Test_Watcher_DirectoryMovedInIsIndexed(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(t.TempDir(), "music")
	if err := os.MkdirAll(filepath.Join(outside, "albums"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(outside, "albums", "track01.flac"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, events := startWatcher(t, root)

	if err := os.Rename(outside, filepath.Join(root, "music")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, events, feed.RecordIDFor("music"), feed.OpUpsert)
	ev := waitFor(t, events, feed.RecordIDFor("music/albums/track01.flac"), feed.OpUpsert)
	if ev.Entry.Name != "track01.flac" {
		t.Errorf("expected name 'track01.flac', got '%s'", ev.Entry.Name)
	}

	// the moved-in subdirectory is watched too
	if err := os.WriteFile(filepath.Join(root, "music", "albums", "track02.flac"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, events, feed.RecordIDFor("music/albums/track02.flac"), feed.OpUpsert)
}
