package response

import (
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/example/evoloop/internal/models"
)

// DiffStats counts files and changed lines in a unified diff. An empty diff
// yields zero stats. A malformed diff returns an error; callers treat that
// as a warning, not a rejection.
func DiffStats(code string) (models.DiffStats, error) {
	if strings.TrimSpace(code) == "" {
		return models.DiffStats{}, nil
	}

	fileDiffs, err := diff.NewMultiFileDiffReader(strings.NewReader(code)).ReadAllFiles()
	if err != nil {
		return models.DiffStats{}, fmt.Errorf("failed to parse diff: %w", err)
	}
	if len(fileDiffs) == 0 {
		return models.DiffStats{}, fmt.Errorf("diff contains no file headers")
	}

	var stats models.DiffStats
	for _, fd := range fileDiffs {
		stats.Files++
		s := fd.Stat()
		stats.Added += int(s.Added + s.Changed)
		stats.Deleted += int(s.Deleted + s.Changed)
	}
	return stats, nil
}
