package scan

import (
	"path/filepath"
	"testing"

	"github.com/9TreyRP/CryptoScanner/internal/config"
)

func sinkConfigForTest(t *testing.T) config.Sink {
	return config.Sink{Type: "file", Path: filepath.Join(t.TempDir(), "found.txt")}
}
