package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ashureev/studydeck/internal/auth"
	"github.com/ashureev/studydeck/internal/domain"
	"github.com/spf13/cobra"
)

// usersCmd is the trusted path for server-owned user fields.
var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage server-owned user fields",
}

var setRoleCmd = &cobra.Command{
	Use:   "set-role <email> <role>",
	Short: "Change a user's role",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUser(cmd, args[0], func(ctx context.Context, svc *auth.Service, u *domain.User) (*domain.User, error) {
			return svc.SetRole(ctx, u.ID, args[1])
		})
	},
}

var setImageCmd = &cobra.Command{
	Use:   "set-image <email> <publicId>",
	Short: "Bind an uploaded image to a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUser(cmd, args[0], func(ctx context.Context, svc *auth.Service, u *domain.User) (*domain.User, error) {
			return svc.SetImageCldPubID(ctx, u.ID, args[1])
		})
	},
}

func init() {
	usersCmd.AddCommand(setRoleCmd, setImageCmd)
}

func withUser(cmd *cobra.Command, email string, fn func(context.Context, *auth.Service, *domain.User) (*domain.User, error)) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	repo, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(repo)

	svc, err := auth.New(auth.NewOptions(cfg), repo, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to initialize auth: %w", err)
	}

	user, err := svc.FindUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("find %s: %w", email, err)
	}
	updated, err := fn(ctx, svc, user)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(updated)
}
