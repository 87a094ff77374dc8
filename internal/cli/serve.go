package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cogkernel/tensorlogic/internal/config"
	"github.com/cogkernel/tensorlogic/internal/engine"
	"github.com/cogkernel/tensorlogic/internal/server"
	"github.com/cogkernel/tensorlogic/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

// envOverrides applies TENSORLOGIC_* environment variables on top of the
// default config.
func envOverrides(cfg *config.Config) {
	if bind := os.Getenv("TENSORLOGIC_BIND"); bind != "" {
		cfg.Server.Bind = bind
	}
	if port := os.Getenv("TENSORLOGIC_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil && n > 0 {
			cfg.Server.Port = n
		}
	}
	if path := os.Getenv("TENSORLOGIC_DB"); path != "" {
		cfg.Database.Path = path
	}
	if capStr := os.Getenv("TENSORLOGIC_CAPACITY"); capStr != "" {
		if n, err := strconv.Atoi(capStr); err == nil && n > 0 {
			cfg.Engine.Capacity = n
		}
	}
	if seed := os.Getenv("TENSORLOGIC_SEED"); seed != "" {
		if n, err := strconv.ParseInt(seed, 10, 64); err == nil {
			cfg.Engine.Seed = n
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	envOverrides(&cfg)

	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	var eng *engine.Engine
	if cfg.Engine.Seed != 0 {
		eng, err = engine.NewSeeded(cfg.Engine.Capacity, cfg.Engine.Seed)
	} else {
		eng, err = engine.New(cfg.Engine.Capacity)
	}
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	// Restore the last snapshot, if any.
	has, err := db.HasSnapshot()
	if err != nil {
		return fmt.Errorf("check snapshot: %w", err)
	}
	if has {
		if err := db.LoadInto(eng); err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		fmt.Fprintf(os.Stderr, "  restored %d atoms, %d rules\n", eng.Space().Len(), len(eng.Rules()))
	}

	srv := server.New(eng, db, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "tensorlogic serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", dbPath)
		fmt.Fprintf(os.Stderr, "  capacity: %d atoms\n", eng.Space().Cap())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	// Persist state before exit so the next serve resumes where we left off.
	if err := db.SaveSnapshot(eng); err != nil {
		fmt.Fprintf(os.Stderr, "save snapshot: %v\n", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
