package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/cexll/jiralabel/internal/api"
	"github.com/cexll/jiralabel/internal/audit"
	"github.com/cexll/jiralabel/internal/config"
	"github.com/cexll/jiralabel/internal/highlight"
	"github.com/cexll/jiralabel/internal/labels"
	"github.com/cexll/jiralabel/internal/session"
	"github.com/cexll/jiralabel/internal/web"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
)

const sweepInterval = time.Minute

var (
	loadDotEnv         = godotenv.Load
	openAuditStore     = audit.Open
	loadRules          = labels.LoadRules
	newWebHandler      = web.NewHandler
	defaultListenServe = http.ListenAndServe
)

func main() {
	if err := run(context.Background(), defaultListenServe); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func run(ctx context.Context, serve func(string, http.Handler) error) error {
	// Load .env file (ignore error if file doesn't exist)
	_ = loadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log.Printf("Starting Jira labeling server...")
	log.Printf("Port: %d", cfg.Port)
	log.Printf("Default Jira instance: %s", cfg.JiraInstance)
	log.Printf("Default filter: %s, chargeable id: %s", cfg.DefaultFilterID, cfg.ChargeableID)

	updates, err := openAuditStore(cfg.AuditDBPath)
	if err != nil {
		return fmt.Errorf("failed to open audit store: %w", err)
	}
	defer updates.Close()
	log.Printf("Audit store: %s", cfg.AuditDBPath)

	rules, err := loadRules(cfg.KeywordsFile)
	if err != nil {
		return fmt.Errorf("failed to load keyword rules: %w", err)
	}
	hl, err := highlight.New(rules)
	if err != nil {
		return fmt.Errorf("failed to compile keyword rules: %w", err)
	}

	store := session.NewStore(cfg.SessionLifetime)
	codec := session.NewCodec(cfg.SecretKey, cfg.SessionLifetime, cfg.CookieSecure)
	sessions := session.NewManager(cfg, store, codec, hl, updates)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go sweepSessions(ctx, store, sweepInterval)

	webHandler, err := newWebHandler(sessions, cfg.JiraInstance)
	if err != nil {
		return fmt.Errorf("failed to initialize web handler: %w", err)
	}

	r := mux.NewRouter()
	r.Use(api.RequestID, api.Logger, api.Recovery)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	api.NewHandler(sessions, updates).RegisterRoutes(r)
	webHandler.RegisterRoutes(r)

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("Server listening on %s", addr)
	log.Printf("UI: http://localhost%s/", addr)
	log.Printf("Health check: http://localhost%s/health", addr)

	if err := serve(addr, r); err != nil {
		return fmt.Errorf("server failed to start: %w", err)
	}

	return nil
}

// sweepSessions drops expired sessions until ctx is done.
func sweepSessions(ctx context.Context, store *session.Store, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.Sweep()
		}
	}
}
