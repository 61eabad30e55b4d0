package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/evoloop/internal/models"
)

// Dir is the per-project directory holding config, state, and the database.
const Dir = ".evoloop"

// FileName is the config file inside Dir.
const FileName = "config.yaml"

// Environment overrides.
const (
	EnvAPIKey         = "OPENAI_API_KEY"
	EnvBaseURL        = "OPENAI_BASE_URL"
	EnvGeneratorModel = "EVOLOOP_GENERATOR_MODEL"
	EnvJudgeModel     = "EVOLOOP_JUDGE_MODEL"
)

// Benchmark sources.
const (
	SourceFile = "file"
	SourceHub  = "hub"
)

// Config is the evoloop project configuration.
type Config struct {
	Slots           []models.Slot `yaml:"slots"`
	BatchSize       int           `yaml:"batch_size"`
	Budget          int           `yaml:"budget"`
	Threshold       float64       `yaml:"threshold"`
	Concurrency     int           `yaml:"concurrency"`
	LogExcerptLines int           `yaml:"log_excerpt_lines"`
	Seed            int64         `yaml:"seed,omitempty"` // 0 picks a time-based seed

	Generator Backend   `yaml:"generator"`
	Judge     Backend   `yaml:"judge"`
	Harness   Harness   `yaml:"harness"`
	Benchmark Benchmark `yaml:"benchmark"`
	Paths     Paths     `yaml:"paths"`
	Prompts   Prompts   `yaml:"prompts,omitempty"`
	Logging   Logging   `yaml:"logging"`

	MetricsAddr string `yaml:"metrics_addr,omitempty"`

	// APIKey is only ever read from the environment.
	APIKey string `yaml:"-"`
}

// Backend configures one text-generation endpoint.
type Backend struct {
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url,omitempty"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens,omitempty"`
	Timeout     time.Duration `yaml:"timeout"`
	RPS         float64       `yaml:"rps"`
}

// Harness configures the evaluation subprocess.
type Harness struct {
	Python      string        `yaml:"python"`
	DatasetName string        `yaml:"dataset_name"`
	MaxWorkers  int           `yaml:"max_workers"`
	Timeout     time.Duration `yaml:"timeout"`
	ReportDir   string        `yaml:"report_dir"`
	LogDir      string        `yaml:"log_dir"`
}

// Benchmark selects where task instances come from.
type Benchmark struct {
	Source  string `yaml:"source"`
	Path    string `yaml:"path,omitempty"`
	Dataset string `yaml:"dataset,omitempty"`
	Config  string `yaml:"config,omitempty"`
	Split   string `yaml:"split,omitempty"`
	HubURL  string `yaml:"hub_url,omitempty"`
}

// Paths locates the files evoloop owns. Relative paths resolve against the
// project directory.
type Paths struct {
	PromptsFile    string `yaml:"prompts_file"`
	PredictionsDir string `yaml:"predictions_dir"`
	DBPath         string `yaml:"db_path"`
}

// Prompts optionally overrides the built-in templates with files.
type Prompts struct {
	Coder   string `yaml:"coder,omitempty"`
	Judge   string `yaml:"judge,omitempty"`
	Evolver string `yaml:"evolver,omitempty"`
}

// Logging configures the slog handler.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Slots:           append([]models.Slot(nil), models.DefaultSlots...),
		BatchSize:       9,
		Budget:          5,
		Threshold:       0.9,
		Concurrency:     8,
		LogExcerptLines: 50,
		Generator: Backend{
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			Timeout:     5 * time.Minute,
			RPS:         2,
		},
		Judge: Backend{
			Model:       "gpt-4o",
			Temperature: 0.2,
			Timeout:     5 * time.Minute,
			RPS:         1,
		},
		Harness: Harness{
			Python:      "python",
			DatasetName: "princeton-nlp/SWE-bench_Lite",
			MaxWorkers:  20,
			Timeout:     2 * time.Hour,
			ReportDir:   "reports",
			LogDir:      filepath.Join("logs", "run_evaluation"),
		},
		Benchmark: Benchmark{
			Source:  SourceHub,
			Dataset: "princeton-nlp/SWE-bench_Lite",
			Config:  "default",
			Split:   "test",
		},
		Paths: Paths{
			PromptsFile:    filepath.Join(Dir, "prompts.json"),
			PredictionsDir: filepath.Join(Dir, "predictions"),
			DBPath:         filepath.Join(Dir, "evoloop.db"),
		},
		Logging: Logging{Level: "info", Format: "text"},
	}
}

// LoadConfig reads .evoloop/config.yaml from the specified directory.
// A missing file yields the defaults. Environment overrides are applied
// last.
func LoadConfig(dir string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(dir, Dir, FileName)
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes config.yaml to directory
func SaveConfig(dir string, cfg *Config) error {
	evoDir := filepath.Join(dir, Dir)
	if err := os.MkdirAll(evoDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s dir: %w", Dir, err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := filepath.Join(evoDir, FileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// ApplyEnv overlays environment overrides using getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvAPIKey); v != "" {
		c.APIKey = v
	}
	if v := getenv(EnvBaseURL); v != "" {
		c.Generator.BaseURL = v
		c.Judge.BaseURL = v
	}
	if v := getenv(EnvGeneratorModel); v != "" {
		c.Generator.Model = v
	}
	if v := getenv(EnvJudgeModel); v != "" {
		c.Judge.Model = v
	}
}

// Validate checks the values the loop depends on.
func (c *Config) Validate() error {
	var problems []string
	if len(c.Slots) == 0 {
		problems = append(problems, "at least one slot is required")
	}
	seen := map[models.Slot]bool{}
	for _, s := range c.Slots {
		if strings.TrimSpace(string(s)) == "" {
			problems = append(problems, "slot names must not be empty")
		}
		if seen[s] {
			problems = append(problems, fmt.Sprintf("duplicate slot %q", s))
		}
		seen[s] = true
	}
	if c.BatchSize < 1 {
		problems = append(problems, "batch_size must be at least 1")
	}
	if c.Budget < 1 {
		problems = append(problems, "budget must be at least 1")
	}
	if c.Threshold <= 0 || c.Threshold > 1 {
		problems = append(problems, "threshold must be in (0, 1]")
	}
	if c.Concurrency < 1 {
		problems = append(problems, "concurrency must be at least 1")
	}
	if c.LogExcerptLines < 1 {
		problems = append(problems, "log_excerpt_lines must be at least 1")
	}
	switch c.Benchmark.Source {
	case SourceFile:
		if c.Benchmark.Path == "" {
			problems = append(problems, "benchmark.path is required for source \"file\"")
		}
	case SourceHub:
		if c.Benchmark.Dataset == "" {
			problems = append(problems, "benchmark.dataset is required for source \"hub\"")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown benchmark.source %q", c.Benchmark.Source))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Resolve makes p absolute relative to dir.
func Resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
