package inference

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrEmptyLabels is returned when a labels file has no entries.
var ErrEmptyLabels = errors.New("labels file is empty")

// LoadLabels reads one label per line. Line positions are tensor indices, so
// blank lines inside the file are preserved.
func LoadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	text := strings.TrimRight(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyLabels)
	}
	return strings.Split(text, "\n"), nil
}
