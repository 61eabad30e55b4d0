// Package wire provides dependency injection for the evoloop application.
// It creates singleton services with lazy initialization.
package wire

import (
	"database/sql"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/example/evoloop/internal/adapters/benchmark"
	cliadapter "github.com/example/evoloop/internal/adapters/cli"
	"github.com/example/evoloop/internal/adapters/filesystem"
	"github.com/example/evoloop/internal/adapters/harness"
	"github.com/example/evoloop/internal/adapters/llm"
	"github.com/example/evoloop/internal/adapters/sqlite"
	"github.com/example/evoloop/internal/app"
	"github.com/example/evoloop/internal/config"
	"github.com/example/evoloop/internal/core/prompt"
	"github.com/example/evoloop/internal/db"
	"github.com/example/evoloop/internal/logging"
	"github.com/example/evoloop/internal/ports/primary"
	"github.com/example/evoloop/internal/ports/secondary"
)

var (
	projectDir = "."

	cfg               *config.Config
	logger            *slog.Logger
	templates         prompt.Set
	database          *sql.DB
	populationService primary.PopulationService
	historyService    primary.RunHistoryService
	once              sync.Once

	cycleService primary.CycleService
	cycleErr     error
	cycleOnce    sync.Once
)

// SetProjectDir selects the directory holding .evoloop/. It must be called
// before any service is requested.
func SetProjectDir(dir string) {
	projectDir = dir
}

// ProjectDir returns the selected project directory.
func ProjectDir() string {
	return projectDir
}

// Config returns the loaded configuration.
func Config() *config.Config {
	once.Do(initServices)
	return cfg
}

// Logger returns the configured logger.
func Logger() *slog.Logger {
	once.Do(initServices)
	return logger
}

// Templates returns the coder, judge and evolver templates in effect.
func Templates() prompt.Set {
	once.Do(initServices)
	return templates
}

// PopulationService returns the singleton PopulationService instance.
func PopulationService() primary.PopulationService {
	once.Do(initServices)
	return populationService
}

// RunHistoryService returns the singleton RunHistoryService instance.
func RunHistoryService() primary.RunHistoryService {
	once.Do(initServices)
	return historyService
}

// CycleService returns the singleton CycleService. Unlike the read-only
// services it needs credentials and a benchmark source, so a missing
// setting is returned as an error instead of aborting.
func CycleService() (primary.CycleService, error) {
	once.Do(initServices)
	cycleOnce.Do(initCycle)
	return cycleService, cycleErr
}

// Benchmark returns the configured task corpus.
func Benchmark() (secondary.Benchmark, error) {
	once.Do(initServices)
	return newBenchmark(cfg)
}

// AgentAdapter returns a new AgentAdapter writing to stdout.
func AgentAdapter() *cliadapter.AgentAdapter {
	return AgentAdapterWithOutput(os.Stdout)
}

// AgentAdapterWithOutput returns a new AgentAdapter writing to the given output.
func AgentAdapterWithOutput(out io.Writer) *cliadapter.AgentAdapter {
	once.Do(initServices)
	return cliadapter.NewAgentAdapter(populationService, out)
}

// RunAdapter returns a new RunAdapter for history commands, writing to stdout.
func RunAdapter() *cliadapter.RunAdapter {
	once.Do(initServices)
	return cliadapter.NewRunAdapter(nil, historyService, os.Stdout)
}

// CycleAdapter returns a new RunAdapter able to start runs, writing to stdout.
func CycleAdapter() (*cliadapter.RunAdapter, error) {
	cycle, err := CycleService()
	if err != nil {
		return nil, err
	}
	return cliadapter.NewRunAdapter(cycle, historyService, os.Stdout), nil
}

// initServices initializes the config, logger, database and the services
// that need nothing else. This is called once via sync.Once.
func initServices() {
	var err error
	cfg, err = config.LoadConfig(projectDir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err = logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Writer: os.Stderr,
	})
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}

	templates, err = loadTemplates(projectDir, cfg.Prompts)
	if err != nil {
		log.Fatalf("failed to load prompt templates: %v", err)
	}

	database, err = db.Open(config.Resolve(projectDir, cfg.Paths.DBPath))
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	// Create repository adapters (secondary ports) - sqlite adapters with injected DB
	agentRepo := sqlite.NewAgentRepository(database)
	runRepo := sqlite.NewRunRepository(database)
	promptState := filesystem.NewPromptStateStore(config.Resolve(projectDir, cfg.Paths.PromptsFile))

	// Create services (primary ports implementation)
	populationService = app.NewPopulationService(agentRepo, promptState, cfg.Slots, templates.Coder, logger.With("component", "population"))
	historyService = app.NewRunHistoryService(runRepo)
}

// initCycle builds the backends, harness and controller.
func initCycle() {
	generator, err := llm.NewClient(backendOptions(llm.RoleGenerator, cfg.Generator))
	if err != nil {
		cycleErr = err
		return
	}
	judge, err := llm.NewClient(backendOptions(llm.RoleJudge, cfg.Judge))
	if err != nil {
		cycleErr = err
		return
	}

	corpus, err := newBenchmark(cfg)
	if err != nil {
		cycleErr = err
		return
	}

	runner := harness.NewRunner(harness.Options{
		Python:      cfg.Harness.Python,
		DatasetName: cfg.Harness.DatasetName,
		MaxWorkers:  cfg.Harness.MaxWorkers,
		ReportDir:   config.Resolve(projectDir, cfg.Harness.ReportDir),
		WorkDir:     projectDir,
		Timeout:     cfg.Harness.Timeout,
		Logger:      logger.With("component", "harness"),
	})
	evaluator := app.NewEvaluationAdapter(
		filesystem.NewPredictionWriter(config.Resolve(projectDir, cfg.Paths.PredictionsDir)),
		runner,
		filesystem.NewExecutionLogs(config.Resolve(projectDir, cfg.Harness.LogDir)),
		logger.With("component", "evaluation"),
	)

	cycleService = app.NewCycleController(app.CycleConfig{
		Slots:     cfg.Slots,
		BatchSize: cfg.BatchSize,
		Budget:    cfg.Budget,
		Threshold: cfg.Threshold,
		Seed:      cfg.Seed,
	}, app.CycleDeps{
		Population: populationService,
		Benchmark:  corpus,
		Generator:  app.NewCandidateGenerator(generator, cfg.Concurrency, logger.With("component", "generator")),
		Evaluator:  evaluator,
		Synthesizer: app.NewFeedbackSynthesizer(judge, evaluator, app.SynthesizerOptions{
			Template:     templates.Judge,
			ExcerptLines: cfg.LogExcerptLines,
			Concurrency:  cfg.Concurrency,
		}, logger.With("component", "feedback")),
		Evolver: app.NewPromptEvolver(judge, templates.Evolver, logger.With("component", "evolver")),
		RunRepo: sqlite.NewRunRepository(database),
	}, logger.With("component", "controller"))
}

func backendOptions(role string, b config.Backend) llm.Options {
	return llm.Options{
		Role:        role,
		APIKey:      cfg.APIKey,
		BaseURL:     b.BaseURL,
		Model:       b.Model,
		Temperature: b.Temperature,
		MaxTokens:   b.MaxTokens,
		Timeout:     b.Timeout,
		RPS:         b.RPS,
		Logger:      logger.With("component", "llm", "role", role),
	}
}

func newBenchmark(c *config.Config) (secondary.Benchmark, error) {
	switch c.Benchmark.Source {
	case config.SourceFile:
		return benchmark.NewFileCorpus(config.Resolve(projectDir, c.Benchmark.Path)), nil
	case config.SourceHub:
		return benchmark.NewHubCorpus(benchmark.HubOptions{
			BaseURL:   c.Benchmark.HubURL,
			Dataset:   c.Benchmark.Dataset,
			Config:    c.Benchmark.Config,
			Split:     c.Benchmark.Split,
			CachePath: filepath.Join(projectDir, config.Dir, "cache", cacheName(c.Benchmark)),
			Logger:    logger.With("component", "benchmark"),
		}), nil
	default:
		return nil, fmt.Errorf("unknown benchmark source %q", c.Benchmark.Source)
	}
}
