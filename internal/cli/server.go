package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"identity-map-service/internal/app"
	"identity-map-service/internal/catalog"
	"identity-map-service/internal/config"
	"identity-map-service/internal/domain"
	"identity-map-service/internal/infra/memory"
	pgcatalog "identity-map-service/internal/infra/postgres"
	redisstore "identity-map-service/internal/infra/redis"
	transport "identity-map-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the scoring service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	cat, err := loadCatalog(ctx, cfg)
	if err != nil {
		return err
	}
	log.Printf("catalog loaded: %d questions", cat.Len())

	var store app.Store
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store = redisstore.NewStore(client)
	} else {
		store = memory.NewStore()
	}

	service := app.NewService(cat, store)
	handler := transport.NewHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	handler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting identity map service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// loadCatalog prefers Postgres when configured, then a YAML file, then a
// small built-in sample so the binary runs with zero config.
func loadCatalog(ctx context.Context, cfg config.Config) (*catalog.Catalog, error) {
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		return pgcatalog.NewCatalogLoader(pool).Load(ctx)
	}
	if cfg.Catalog.Path != "" {
		return catalog.LoadFile(cfg.Catalog.Path)
	}
	return catalog.New(sampleQuestions())
}

// sampleQuestions provides a minimal catalog; swap in a YAML file or the
// Postgres loader in production.
func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:      "hometown",
			Type:    domain.SingleChoice,
			Options: []string{"local", "nearby", "elsewhere"},
			Weights: map[string]domain.Weight{
				"local":     {X: 2, Y: 0},
				"nearby":    {X: 1, Y: 0},
				"elsewhere": {X: -1, Y: 0},
			},
		},
		{
			ID:   "hotpot_base",
			Type: domain.Combination,
			Weights: map[string]domain.Weight{
				"spicy":  {X: 0, Y: 1},
				"mild":   {X: 0, Y: -1},
				"tomato": {X: 0, Y: 0.5},
			},
		},
	}
}
