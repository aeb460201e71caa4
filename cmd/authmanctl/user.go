package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/redmonkez12/authman/cmd/authmanctl/ui"
	"github.com/redmonkez12/authman/internal/auth"
	"github.com/redmonkez12/authman/internal/config"
	"github.com/redmonkez12/authman/internal/database"
	"github.com/redmonkez12/authman/internal/email"
	"github.com/redmonkez12/authman/internal/logging"
	"github.com/redmonkez12/authman/internal/user"
)

func newUserCmd() *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		Long:  "Create a user account. Prompts for anything not given as a flag.",
		Args:  cobra.NoArgs,
		RunE:  runUserCreate,
	}
	createCmd.Flags().String("email", "", "Email address")
	createCmd.Flags().String("password", "", "Password (prompted when omitted)")

	resetLinkCmd := &cobra.Command{
		Use:   "reset-link",
		Short: "Issue a password reset token and print its link",
		Args:  cobra.NoArgs,
		RunE:  runUserResetLink,
	}
	resetLinkCmd.Flags().String("email", "", "Email address of the account")
	_ = resetLinkCmd.MarkFlagRequired("email")

	userCmd.AddCommand(createCmd, resetLinkCmd)
	return userCmd
}

// withAuthService opens the database and hands a ready auth.Service to fn
func withAuthService(ctx context.Context, cfg *config.Config, fn func(*auth.Service) error) error {
	sqlDB, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	svc := auth.NewService(
		user.NewRepository(database.NewBunDB(sqlDB)),
		auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		logger,
		auth.WithResetTokenTTL(cfg.Auth.ResetTokenTTL),
	)

	return fn(svc)
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	emailAddr, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")

	// Interactive mode for anything missing
	if emailAddr == "" || password == "" {
		creds, err := ui.RunUserForm(emailAddr)
		if err != nil {
			return fmt.Errorf("form cancelled: %w", err)
		}
		emailAddr, password = creds.Email, creds.Password
	}

	cfg := config.Read()
	return withAuthService(cmd.Context(), cfg, func(svc *auth.Service) error {
		u, err := svc.SignUp(cmd.Context(), emailAddr, password)
		if err != nil {
			ui.PrintError(err.Error())
			return err
		}

		ui.PrintUser(u)
		ui.PrintSuccess("User created")
		return nil
	})
}

func runUserResetLink(cmd *cobra.Command, args []string) error {
	emailAddr, _ := cmd.Flags().GetString("email")

	cfg := config.Read()
	mailer, err := email.NewService(cfg.Email, cfg.Auth.ResetTokenTTL, false)
	if err != nil {
		return err
	}

	return withAuthService(cmd.Context(), cfg, func(svc *auth.Service) error {
		token, u, err := svc.IssueResetToken(cmd.Context(), emailAddr)
		if err != nil {
			ui.PrintError(err.Error())
			return err
		}

		ui.PrintResetLink(u, mailer.ResetLink(token), time.Now().Add(cfg.Auth.ResetTokenTTL))
		return nil
	})
}
