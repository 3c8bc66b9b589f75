package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/timeline-engine/api"
	"github.com/warp/timeline-engine/store/sqlite"
	"github.com/warp/timeline-engine/timeline"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Int("port", 0, "HTTP server port (overrides config)")
	serveCmd.Flags().String("db", "", "SQLite database path, \":memory:\" for in-memory (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.Server.DB = db
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}

	// Initialize store
	store, err := sqlite.New(cfg.Server.DB)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	svc := timeline.NewService(store, engineCfg)
	handler := api.NewHandler(svc, store)
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins)

	scheduler := api.NewRolloverScheduler(svc, cfg.Scheduler.CheckInterval)
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on http://localhost:%d", cfg.Server.Port)
		log.Printf("API available at http://localhost:%d/api", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("Server stopped")
	return nil
}
