package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finquery/internal/api"
	"finquery/internal/config"
	"finquery/internal/core"
	"finquery/internal/logger"
	"finquery/internal/store"
)

func main() {
	if err := config.LoadConfig(); err != nil {
		// Configuration errors are fatal and reported immediately.
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.New(config.AppConfig.LogLevel)

	// Command line flag for one-shot batch ingestion
	ingestFile := flag.String("ingest", "", "Ingest a transactions JSON file into a new session and exit")
	flag.Parse()

	ctx := context.Background()

	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer dbStore.Close()

	llmService, err := core.NewLLMService(ctx, config.AppConfig.GeminiAPIKey, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize LLM service")
	}
	defer llmService.Close()

	categorizer := core.NewCategorizer(llmService, config.AppConfig, log)
	queryService := core.NewQueryService(llmService, config.AppConfig, log)
	sessions := core.NewSessionManager(dbStore, categorizer, llmService, llmService, queryService, config.AppConfig, log)

	if *ingestFile != "" {
		sessionID, count, err := ingestFromFile(ctx, sessions, *ingestFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", *ingestFile).Msg("ingestion failed")
		}
		log.Info().Str("session_id", sessionID).Int("transactions", count).Msg("ingestion complete, exiting")
		os.Exit(0)
	}

	apiHandler := api.NewAPIHandler(sessions, log)
	router := api.NewRouter(apiHandler)

	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // model calls can take time
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", serverAddr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Str("addr", serverAddr).Msg("server failed")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited gracefully")
}

// ingestFromFile loads a JSON array of normalized transaction records,
// creates a session from it and reports the session id for later queries.
func ingestFromFile(ctx context.Context, sessions *core.SessionManager, path string) (string, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var records []store.TransactionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return "", 0, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	sess, err := sessions.CreateSession(ctx, records)
	if err != nil {
		return "", 0, err
	}
	return sess.ID, len(sess.Transactions()), nil
}
