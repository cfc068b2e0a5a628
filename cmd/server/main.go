// studydeck - auth and AI backend for the StudyDeck app.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/ashureev/studydeck/internal/config"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		var missing *config.MissingError
		if errors.As(err, &missing) {
			slog.Error("Missing required configuration", "vars", missing.Vars)
		} else {
			slog.Error("Command failed", "error", err)
		}
		os.Exit(1)
	}
}
