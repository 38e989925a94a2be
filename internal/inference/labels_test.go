package inference

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadLabels(t *testing.T) {
	path := writeTemp(t, "labels.txt", "background\r\ntench, Tinca tinca\n\ngoldfish\n")

	labels, err := LoadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"background", "tench, Tinca tinca", "", "goldfish"}, labels)
}

func TestLoadLabels_Empty(t *testing.T) {
	path := writeTemp(t, "labels.txt", "\n\n")

	_, err := LoadLabels(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyLabels))
}

func TestLoadLabels_Missing(t *testing.T) {
	_, err := LoadLabels(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}
