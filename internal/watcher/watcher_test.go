package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtdct/ingestor/internal/models"
)

type fakeEnqueuer struct {
	mu    sync.Mutex
	added []string
}

func (f *fakeEnqueuer) Add(filePath string, _, _, _ *string) (*models.QueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, filePath)
	return &models.QueueItem{FilePath: filePath}, nil
}

func (f *fakeEnqueuer) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.added...)
}

func TestWatcher_EnqueuesAfterStabilization(t *testing.T) {
	root := t.TempDir()
	enqueuer := &fakeEnqueuer{}

	w, err := New(root, map[string]bool{".mp4": true}, 20*time.Millisecond, 2, enqueuer)
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	target := filepath.Join(root, "video.mp4")
	require.NoError(t, os.WriteFile(target, []byte("data"), 0o644))

	require.Eventually(t, func() bool {
		return len(enqueuer.snapshot()) == 1
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t, target, enqueuer.snapshot()[0])
}

func TestWatcher_IgnoresNonVideoExtensions(t *testing.T) {
	root := t.TempDir()
	enqueuer := &fakeEnqueuer{}

	w, err := New(root, map[string]bool{".mp4": true}, 20*time.Millisecond, 1, enqueuer)
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("data"), 0o644))

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, enqueuer.snapshot())
}
