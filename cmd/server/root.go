package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/studydeck/internal/config"
	"github.com/ashureev/studydeck/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// env is shared by every command so flags bound to it override the environment.
var env = config.NewViper()

var rootCmd = &cobra.Command{
	Use:   "studydeck",
	Short: "StudyDeck auth and AI backend",
	Long: `studydeck serves the StudyDeck API:
  • email and password auth under /api/auth
  • DeepSeek-backed completions under /api/ai

Running 'studydeck' with no subcommand starts the server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.PersistentFlags().String("port", "", "HTTP listen port (overrides PORT)")
	if err := env.BindPFlag(config.KeyPort, rootCmd.PersistentFlags().Lookup("port")); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(serveCmd, migrateCmd, usersCmd, askCmd)
}

// loadConfig reads .env, when present, and validates the environment.
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}
	return config.FromViper(env)
}

// openStore connects to the configured database and applies the schema.
func openStore(ctx context.Context, cfg *config.Config) (*store.SQLStore, error) {
	repo, err := store.Open(cfg.DB.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := repo.Migrate(ctx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	slog.Info("Database connected", "driver", repo.Driver())
	return repo, nil
}

func closeStore(repo *store.SQLStore) {
	if err := repo.Close(); err != nil {
		slog.Error("Failed to close repository", "error", err)
	}
}
