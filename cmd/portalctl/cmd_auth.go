package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/campus/portal/internal/session"
	"github.com/spf13/cobra"
)

// passwordEnv supplies the login password when --password is omitted.
const passwordEnv = "PORTAL_PASSWORD"

type userView struct {
	ID        string `json:"id" yaml:"id"`
	Email     string `json:"email" yaml:"email"`
	Name      string `json:"name" yaml:"name"`
	Role      string `json:"role" yaml:"role"`
	Dashboard string `json:"dashboard" yaml:"dashboard"`
}

func viewOf(u *session.User) userView {
	return userView{
		ID:        string(u.ID),
		Email:     u.Email,
		Name:      u.DisplayName(),
		Role:      u.RoleName,
		Dashboard: u.DashboardPath(),
	}
}

func newLoginCmd(a *app) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv(passwordEnv)
			}
			if password == "" {
				return fmt.Errorf("password required: pass --password or set %s", passwordEnv)
			}
			user, err := a.session.Login(cmd.Context(), session.Credentials{Email: email, Password: password})
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), viewOf(user))
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email (required)")
	cmd.Flags().StringVar(&password, "password", "", "Account password (default: $"+passwordEnv+")")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			expired, err := a.session.Expired(ctx)
			if err != nil {
				return err
			}
			if expired {
				if err := a.session.EnsureFresh(ctx, 0); err != nil {
					if errors.Is(err, session.ErrNotLoggedIn) {
						return errors.New("not signed in")
					}
					return err
				}
			}
			user, err := a.session.CurrentUser(ctx)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), viewOf(user))
		},
	}
}
