package game

import (
	"fmt"
	"os"
	"sort"
)

// ListStories returns the story file names available under dir, sorted.
// Subdirectories are skipped.
func ListStories(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read story directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
