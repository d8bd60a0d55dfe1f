package preflight

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/amankb/internal/config"
)

// MarkerFile records the last successful check in the data directory.
const MarkerFile = ".preflight-passed"

type marker struct {
	PassedAt time.Time `json:"passed_at"`
	Embedder string    `json:"embedder"`
}

// fingerprint identifies the settings a passed check is valid for. Switching
// embedding provider or model forces a new check.
func fingerprint(cfg *config.Config) string {
	return fmt.Sprintf("%s/%s/%d", cfg.Embeddings.Provider, cfg.Embeddings.Model, cfg.Embeddings.Dimensions)
}

// NeedsCheck reports whether checks must run before serving: no marker, an
// unreadable marker, or one written for different embedding settings.
func NeedsCheck(cfg *config.Config) bool {
	m, err := readMarker(cfg.Paths.DataDir)
	if err != nil {
		return true
	}
	return m.Embedder != fingerprint(cfg)
}

// MarkPassed writes the marker for cfg.
func MarkPassed(cfg *config.Config) error {
	dataDir := cfg.Paths.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}
	data, err := json.Marshal(marker{PassedAt: time.Now().UTC(), Embedder: fingerprint(cfg)})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dataDir, MarkerFile), data, 0o644)
}

// ClearMarker removes the marker, forcing a check on the next start.
func ClearMarker(dataDir string) error {
	err := os.Remove(filepath.Join(dataDir, MarkerFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove marker file: %w", err)
	}
	return nil
}

// MarkerAge returns how long ago checks passed, or zero without a marker.
func MarkerAge(dataDir string) time.Duration {
	m, err := readMarker(dataDir)
	if err != nil {
		return 0
	}
	return time.Since(m.PassedAt)
}

func readMarker(dataDir string) (*marker, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, MarkerFile))
	if err != nil {
		return nil, err
	}
	var m marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
