// Package wire provides dependency injection for the loom daemon.
// It creates singleton services with lazy initialization.
package wire

import (
	"context"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/loom/internal/adapters/codesearch"
	"github.com/example/loom/internal/adapters/gitexec"
	"github.com/example/loom/internal/adapters/sqlite"
	"github.com/example/loom/internal/app"
	"github.com/example/loom/internal/config"
	"github.com/example/loom/internal/db"
	"github.com/example/loom/internal/logging"
	"github.com/example/loom/internal/ports/primary"
)

var (
	cfg       *config.Config
	logger    zerolog.Logger
	dataDir   string
	gitRoot   string
	databases []*db.DB

	memoryService    primary.MemoryService
	retriever        primary.Retriever
	learningService  primary.LearningService
	analyticsService primary.AnalyticsService
	coordinator      primary.SpecCoordinator
	worktrees        primary.WorktreeManager

	once sync.Once
)

// MemoryService returns the singleton MemoryService instance.
func MemoryService() primary.MemoryService {
	once.Do(initServices)
	return memoryService
}

// Retriever returns the singleton Retriever instance.
func Retriever() primary.Retriever {
	once.Do(initServices)
	return retriever
}

// LearningService returns the singleton LearningService instance.
func LearningService() primary.LearningService {
	once.Do(initServices)
	return learningService
}

// AnalyticsService returns the singleton AnalyticsService instance.
func AnalyticsService() primary.AnalyticsService {
	once.Do(initServices)
	return analyticsService
}

// Coordinator returns the singleton SpecCoordinator instance.
func Coordinator() primary.SpecCoordinator {
	once.Do(initServices)
	return coordinator
}

// Worktrees returns the singleton WorktreeManager instance.
func Worktrees() primary.WorktreeManager {
	once.Do(initServices)
	return worktrees
}

// Config returns the loaded project configuration.
func Config() *config.Config {
	once.Do(initServices)
	return cfg
}

// Logger returns the daemon logger.
func Logger() zerolog.Logger {
	once.Do(initServices)
	return logger
}

// DataDir returns the resolved data directory.
func DataDir() string {
	once.Do(initServices)
	return dataDir
}

// GitRoot returns the resolved project root.
func GitRoot() string {
	once.Do(initServices)
	return gitRoot
}

// CloseAll tears down the database handles in reverse open order.
func CloseAll() {
	for i := len(databases) - 1; i >= 0; i-- {
		databases[i].Close()
	}
	databases = nil
}

// initServices initializes all services and their dependencies.
// This is called once via sync.Once. Databases open in a fixed order
// (memory, governance, embed cache, learning) and close in reverse.
func initServices() {
	dataDir = config.DataDir()
	logger = logging.New(dataDir)
	gitRoot = resolveGitRoot()

	var err error
	cfg, err = config.Load(gitRoot)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	memoryDB, err := db.OpenMemory(dataDir)
	if err != nil {
		log.Fatalf("failed to open memory database: %v", err)
	}
	governanceDB, err := db.OpenGovernance(dataDir)
	if err != nil {
		log.Fatalf("failed to open governance database: %v", err)
	}
	embedCacheDB, err := db.OpenEmbedCache(dataDir)
	if err != nil {
		log.Fatalf("failed to open embed cache database: %v", err)
	}
	learningDB, err := db.OpenLearning(dataDir)
	if err != nil {
		log.Fatalf("failed to open learning database: %v", err)
	}
	databases = []*db.DB{memoryDB, governanceDB, embedCacheDB, learningDB}

	memoryRepo := sqlite.NewMemoryRepository(memoryDB)
	governanceRepo := sqlite.NewGovernanceRepository(governanceDB)
	embedCacheRepo := sqlite.NewEmbedCacheRepository(embedCacheDB)
	learningRepo := sqlite.NewLearningRepository(learningDB)
	analyticsRepo := sqlite.NewAnalyticsRepository(learningDB)

	git := gitexec.NewRunner()
	gitlog := app.NewGitAnalyzer(git, gitRoot)
	code := codesearch.NewClient(cfg.Retrieval.CodeBinary)

	memoryService = app.NewMemoryService(memoryRepo)

	indexer := app.NewGovernanceIndexer(governanceRepo, gitRoot, logger).
		WithEmbedCache(embedCacheRepo)
	retriever = app.NewRetriever(
		indexer, code, gitRoot,
		cfg.Retrieval.CodeEnabled, cfg.Retrieval.GovernanceEnabled,
		logger,
	).WithIndexState(app.NewIndexStateStore(dataDir), gitlog)

	learningService = app.NewLearningService(
		learningRepo, analyticsRepo, memoryRepo, gitlog, cfg, gitRoot, logger)
	analyticsService = app.NewAnalyticsService(analyticsRepo, logger)

	worktrees = app.NewWorktreeService(git, gitRoot, "main", logger)
	coordinator = app.NewCoordinator(
		app.NewSpecStore(gitRoot),
		worktrees,
		memoryRepo,
		cfg.Orchestration.MaxReviewIterations,
		time.Duration(cfg.Orchestration.StaleBusyHours)*time.Hour,
		logger,
	)
}

// resolveGitRoot asks git for the repository toplevel, falling back to the
// working directory outside a repository.
func resolveGitRoot() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	result, err := gitexec.NewRunner().Run(context.Background(), cwd, "rev-parse", "--show-toplevel")
	if err != nil || result.Code != 0 {
		return cwd
	}
	if root := strings.TrimSpace(result.Stdout); root != "" {
		return root
	}
	return cwd
}
