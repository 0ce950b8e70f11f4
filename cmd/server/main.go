/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the loyalty points engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load optional TOML config
  2. Initialize SQLite store
  3. Bootstrap the admin account and seed the catalog
  4. Create API handler and router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: loyalty.db)
           Use ":memory:" for in-memory database
  -config  Optional TOML config file; flags override it

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/loyalty.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run with a config file, on a different port
  ./server -config=loyalty.toml -port=3000

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

	"github.com/fidelity/loyalty-engine/api"
	"github.com/fidelity/loyalty-engine/catalog"
	"github.com/fidelity/loyalty-engine/config"
	"github.com/fidelity/loyalty-engine/ledger"
	"github.com/fidelity/loyalty-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	cfgPath := flag.String("config", "", "Optional TOML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.Database = *dbPath
	}

	// Initialize store
	store, err := sqlite.New(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Ledger service with the configured code scheme
	svc := ledger.NewService(store)
	svc.CodePrefix = cfg.CodePrefix
	svc.CodeWidth = cfg.CodeWidth

	ctx := context.Background()
	admin, err := svc.EnsureAdmin(ctx, cfg.AdminCode, cfg.AdminSecret)
	if err != nil {
		log.Fatalf("Failed to bootstrap admin account: %v", err)
	}
	log.Printf("Admin account ready (code %s)", admin.Code)

	cat := catalog.NewService(store)
	if err := cat.Seed(ctx); err != nil {
		log.Printf("Warning: Failed to seed catalog: %v", err)
	}

	// Create router
	handler := api.NewHandler(svc, cat)
	router := api.NewRouter(handler, cfg.AllowedOrigins)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", cfg.Port)
		log.Printf("📊 API available at http://localhost:%d/api", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
