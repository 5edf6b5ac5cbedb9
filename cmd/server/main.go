/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the fund analytics server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Create engine builder, ingest client, and job registry
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port      HTTP server port (default: 8080)
  -db        SQLite database path (default: mplads.db)
             Use ":memory:" for an in-memory database
  -base-url  Upstream portal endpoint override (default: the public
             tile-report URL; tests and mirrors point this elsewhere)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/mplads.db"

  # Run against a local mirror of the portal
  ./server -base-url=http://localhost:9000/tiles

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skjhavit/mpladsanalyticsdashboard/api"
	"github.com/skjhavit/mpladsanalyticsdashboard/engine"
	"github.com/skjhavit/mpladsanalyticsdashboard/ingest"
	"github.com/skjhavit/mpladsanalyticsdashboard/jobs"
	"github.com/skjhavit/mpladsanalyticsdashboard/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "mplads.db", "SQLite database path")
	baseURL := flag.String("base-url", ingest.DefaultBaseURL, "upstream portal endpoint")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Wire dependencies
	builder := engine.NewBuilder(store)
	registry := jobs.NewMemory()
	refresher := ingest.NewRefresher(ingest.NewClient(*baseURL), store, registry)
	handler := api.NewHandler(builder, store, refresher, registry)

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
