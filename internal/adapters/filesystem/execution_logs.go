package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/evoloop/internal/models"
	"github.com/example/evoloop/internal/ports/secondary"
)

// Log files the harness writes per instance, in order of preference.
var instanceLogNames = []string{"test_output.txt", "run_instance.log"}

// ExecutionLogs reads harness logs laid out as
// <root>/<run_id>/<model_name_or_path>/<instance_id>/.
type ExecutionLogs struct {
	root string
}

// NewExecutionLogs creates a reader rooted at the harness log directory.
func NewExecutionLogs(root string) *ExecutionLogs {
	return &ExecutionLogs{root: root}
}

// InstanceDir returns the directory holding one instance's logs.
func (l *ExecutionLogs) InstanceDir(runID string, slot models.Slot, instanceID string) string {
	model := strings.ReplaceAll(string(slot), "/", "__")
	return filepath.Join(l.root, runID, model, instanceID)
}

// Excerpt returns the first n lines of the instance's log. A missing log
// returns an error wrapping os.ErrNotExist.
func (l *ExecutionLogs) Excerpt(ctx context.Context, runID string, slot models.Slot, instanceID string, n int) (string, error) {
	dir := l.InstanceDir(runID, slot, instanceID)
	for _, name := range instanceLogNames {
		f, err := os.Open(filepath.Join(dir, name))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to open execution log: %w", err)
		}
		defer f.Close()
		return headLines(f, n)
	}
	return "", fmt.Errorf("no execution log for %s in %s: %w", instanceID, dir, os.ErrNotExist)
}

func headLines(f *os.File, n int) (string, error) {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	lines := make([]string, 0, n)
	for len(lines) < n && scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read execution log: %w", err)
	}
	return strings.Join(lines, "\n"), nil
}

// Ensure ExecutionLogs implements the interface
var _ secondary.ExecutionLogs = (*ExecutionLogs)(nil)
