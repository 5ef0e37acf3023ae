package badger

import (
	"path/filepath"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// newTestManager opens a throwaway database under the test temp dir.
func newTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()

	logger := arbor.NewLogger()
	manager, err := NewManager(logger, &common.StorageConfig{
		Path: filepath.Join(t.TempDir(), "colligo-test"),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		manager.Close()
	})
	return manager
}
