// Package harness runs the SWE-bench evaluation harness as a subprocess and
// reads back its report.
package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/example/evoloop/internal/metrics"
	"github.com/example/evoloop/internal/models"
	"github.com/example/evoloop/internal/ports/secondary"
)

// Options configures the subprocess.
type Options struct {
	Python      string
	DatasetName string
	MaxWorkers  int
	ReportDir   string
	WorkDir     string // harness logs are written relative to this
	Timeout     time.Duration
	Logger      *slog.Logger
}

// Runner implements secondary.Harness.
type Runner struct {
	opts   Options
	logger *slog.Logger
}

// NewRunner creates a harness runner.
func NewRunner(opts Options) *Runner {
	if opts.Python == "" {
		opts.Python = "python"
	}
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{opts: opts, logger: logger}
}

// report is the JSON the harness writes to <report_dir>/<model>.<run_id>.json.
type report struct {
	Total         int      `json:"total_instances"`
	Submitted     int      `json:"submitted_instances"`
	Completed     int      `json:"completed_instances"`
	Resolved      int      `json:"resolved_instances"`
	ResolvedIDs   []string `json:"resolved_ids"`
	UnresolvedIDs []string `json:"unresolved_ids"`
	ErrorIDs      []string `json:"error_ids"`
	EmptyPatchIDs []string `json:"empty_patch_ids"`
}

// Args returns the harness command line for req. The instance ids limit the
// run to the submitted predictions.
func (r *Runner) Args(req secondary.HarnessRequest) []string {
	args := []string{
		"-m", "swebench.harness.run_evaluation",
		"--dataset_name", r.opts.DatasetName,
		"--predictions_path", req.PredictionsPath,
		"--max_workers", strconv.Itoa(r.opts.MaxWorkers),
		"--run_id", req.RunID,
		"--report_dir", r.opts.ReportDir,
	}
	if len(req.InstanceIDs) > 0 {
		args = append(args, "--instance_ids")
		args = append(args, req.InstanceIDs...)
	}
	return args
}

// ReportPath returns where the harness writes the report for req.
func (r *Runner) ReportPath(req secondary.HarnessRequest) string {
	model := strings.ReplaceAll(string(req.Slot), "/", "__")
	return filepath.Join(r.opts.ReportDir, fmt.Sprintf("%s.%s.json", model, req.RunID))
}

// Run executes the harness and parses its report. A non-zero exit, a
// timeout, or a missing or unreadable report is an error.
func (r *Runner) Run(ctx context.Context, req secondary.HarnessRequest) (*models.EvaluationReport, error) {
	if err := os.MkdirAll(r.opts.ReportDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report dir: %w", err)
	}
	reportPath := r.ReportPath(req)
	// A stale report from an earlier attempt must not be mistaken for this one.
	if err := os.Remove(reportPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove stale report: %w", err)
	}

	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.opts.Python, r.Args(req)...)
	cmd.Dir = r.opts.WorkDir
	cmd.WaitDelay = 10 * time.Second
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	logger := r.logger.With("run_id", req.RunID, "slot", string(req.Slot))
	logger.InfoContext(ctx, "running evaluation harness", "predictions", req.PredictionsPath)

	start := time.Now()
	err := cmd.Run()
	r.saveOutput(req, output.Bytes(), logger)
	if ctx.Err() != nil {
		metrics.HarnessDuration.WithLabelValues("timeout").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("harness did not finish: %w", ctx.Err())
	}
	if err != nil {
		metrics.HarnessDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("harness failed: %w\n%s", err, tail(output.String(), 20))
	}
	metrics.HarnessDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	data, err := os.ReadFile(reportPath)
	if err != nil {
		return nil, fmt.Errorf("harness report not found: %w", err)
	}
	var rep report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("failed to parse harness report %s: %w", reportPath, err)
	}
	if rep.Resolved > rep.Submitted {
		return nil, fmt.Errorf("harness report %s claims %d resolved of %d submitted", reportPath, rep.Resolved, rep.Submitted)
	}

	logger.InfoContext(ctx, "evaluation finished",
		"submitted", rep.Submitted, "resolved", rep.Resolved, "duration", time.Since(start))

	return &models.EvaluationReport{
		Slot:          req.Slot,
		RunID:         req.RunID,
		Total:         rep.Total,
		Submitted:     rep.Submitted,
		Completed:     rep.Completed,
		Resolved:      rep.Resolved,
		ResolvedIDs:   rep.ResolvedIDs,
		UnresolvedIDs: rep.UnresolvedIDs,
		ErrorIDs:      rep.ErrorIDs,
		EmptyPatchIDs: rep.EmptyPatchIDs,
	}, nil
}

// saveOutput keeps the harness console output next to the report.
func (r *Runner) saveOutput(req secondary.HarnessRequest, out []byte, logger *slog.Logger) {
	path := strings.TrimSuffix(r.ReportPath(req), ".json") + ".log"
	if err := os.WriteFile(path, out, 0644); err != nil {
		logger.Warn("failed to save harness output", "path", path, "error", err)
	}
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// Ensure Runner implements the interface
var _ secondary.Harness = (*Runner)(nil)
