package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/studydeck/internal/aihook"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const keyBackendURL = "vite_backend_base_url"

var askCmd = &cobra.Command{
	Use:   "ask <prompt>",
	Short: "Send a prompt to a running backend and print the result",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().String("backend", "", "backend base URL (overrides VITE_BACKEND_BASE_URL)")
	askCmd.Flags().Duration("timeout", 2*time.Minute, "give up after this long")
	env.SetDefault(keyBackendURL, "http://localhost:8080")
	if err := env.BindPFlag(keyBackendURL, askCmd.Flags().Lookup("backend")); err != nil {
		panic(err)
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return err
	}

	hook := aihook.New(env.GetString(keyBackendURL), aihook.WithLogger(slog.Default()))
	unsubscribe := hook.Subscribe(func(s aihook.State) {
		if s.IsLoading {
			slog.Info("Waiting for response")
		}
	})
	defer unsubscribe()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	hook.Generate(ctx, strings.Join(args, " "))

	state := hook.State()
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(state); err != nil {
		return err
	}
	if state.Error != "" {
		return errors.New(state.Error)
	}
	return nil
}
