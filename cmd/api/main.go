package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"doctrans/internal/domain"
	"doctrans/internal/engine"
	"doctrans/internal/glossary"
	"doctrans/internal/history"
	"doctrans/internal/http/handlers"
	"doctrans/internal/http/httpapi"
	"doctrans/internal/infra"
	"doctrans/internal/storage"
	"doctrans/internal/task"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	store, err := storage.NewFileStore(cfg.DataDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}
	glossaries := glossary.NewStore(store)

	hist, err := history.NewStore(cfg.HistoryPath, store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load translation history")
	}

	bus := task.NewBus()
	registry := task.NewRegistry(bus, logger)
	babeldoc := engine.NewBabelDOC(cfg.EngineCommand, logger)
	orchestrator := task.NewOrchestrator(
		registry, bus, babeldoc,
		jobBuilder(store, glossaries),
		hist, logger,
	)

	app := handlers.NewApp(logger, orchestrator, store, glossaries, hist)
	app.DefaultModel = cfg.DefaultModel
	app.DefaultBaseURL = cfg.DefaultBaseURL
	app.MaxUploadBytes = cfg.MaxUploadBytes

	router := httpapi.NewRouter(app, cfg, logger)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if err := orchestrator.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("tasks did not settle before deadline")
	}
	logger.Info().Msg("server stopped")
}

// jobBuilder resolves a task's configuration into engine inputs: the
// uploaded document's path, a per-task output directory, and glossary
// file paths.
func jobBuilder(store *storage.FileStore, glossaries *glossary.Store) task.JobBuilder {
	return func(taskID string, cfg domain.JobConfig) (engine.Job, error) {
		inputKey := path.Join(storage.UploadsPrefix, cfg.FileID+".pdf")
		if !store.Exists(inputKey) {
			return engine.Job{}, fmt.Errorf("uploaded file %s not found", cfg.FileID)
		}
		inputPath, err := store.Resolve(inputKey)
		if err != nil {
			return engine.Job{}, err
		}

		outputKey := path.Join(storage.OutputsPrefix, taskID)
		outputDir, err := store.Resolve(outputKey)
		if err != nil {
			return engine.Job{}, err
		}
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return engine.Job{}, fmt.Errorf("create output directory: %w", err)
		}

		var glossaryPaths []string
		for _, id := range cfg.GlossaryIDs {
			p, err := glossaries.Path(id)
			if err != nil {
				return engine.Job{}, fmt.Errorf("glossary %s not found", id)
			}
			glossaryPaths = append(glossaryPaths, p)
		}

		return engine.Job{
			TaskID:        taskID,
			Config:        cfg,
			InputPath:     inputPath,
			OutputDir:     outputDir,
			OutputKey:     outputKey,
			GlossaryPaths: glossaryPaths,
		}, nil
	}
}
