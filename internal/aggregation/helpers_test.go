package aggregation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/crimelens-lab/crimelens/internal/core/incident"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// normalizerWithAliases builds a Normalizer backed by a temporary alias file.
func normalizerWithAliases(t *testing.T, aliases map[string]string) *incident.Normalizer {
	t.Helper()

	data, err := yaml.Marshal(map[string]map[string]string{"aliases": aliases})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "aliases.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	norm, err := incident.NewNormalizer(path)
	require.NoError(t, err)
	return norm
}
