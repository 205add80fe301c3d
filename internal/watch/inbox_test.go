package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dropicx/docworker/internal/observability"
)

type collector struct {
	mu    sync.Mutex
	paths []string
}

func (c *collector) submit(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, path)
}

func (c *collector) seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

func (c *collector) waitFor(t *testing.T, n int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(c.seen()) >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("saw %d submissions, wanted %d", len(c.seen()), n)
}

func TestInboxSubmitsSettledFiles(t *testing.T) {
	root := t.TempDir()
	c := &collector{}

	in := NewInbox(root, c.submit, observability.Nop())
	in.debounce = 50 * time.Millisecond
	require.NoError(t, in.Start(context.Background()))
	defer in.Stop()

	path := filepath.Join(root, "scan.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7"), 0o644))

	c.waitFor(t, 1, 3*time.Second)
	assert.Equal(t, []string{path}, c.seen())
}

func TestInboxIgnoresUnsupportedExtensions(t *testing.T) {
	root := t.TempDir()
	c := &collector{}

	in := NewInbox(root, c.submit, observability.Nop())
	in.debounce = 30 * time.Millisecond
	require.NoError(t, in.Start(context.Background()))
	defer in.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "scan.partial"), []byte("x"), 0o644))

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, c.seen())
}

func TestInboxCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "inbox")
	in := NewInbox(root, func(string) {}, observability.Nop())
	require.NoError(t, in.Start(context.Background()))
	defer in.Stop()

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSubmitExistingDrainsBacklog(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.pdf"), []byte("%PDF"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.png"), []byte("png"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "skip.txt"), []byte("x"), 0o644))

	c := &collector{}
	in := NewInbox(root, c.submit, observability.Nop())
	require.NoError(t, in.SubmitExisting())

	assert.ElementsMatch(t, []string{
		filepath.Join(root, "a.pdf"),
		filepath.Join(root, "b.png"),
	}, c.seen())
}

func TestAccepted(t *testing.T) {
	assert.True(t, accepted("scan.pdf"))
	assert.True(t, accepted("SCAN.PDF"))
	assert.True(t, accepted("photo.jpeg"))
	assert.False(t, accepted("notes.txt"))
	assert.False(t, accepted("archive"))
}
