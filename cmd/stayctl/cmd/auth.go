package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/MrEthical07/goSession/marketplace"
	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Start a session and store its cookies",
		Long: `Start a session. The password is read from --password or, when that
is empty, from the STAYCTL_PASSWORD environment variable.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("STAYCTL_PASSWORD")
			}
			if password == "" {
				return errors.New("password required (--password or STAYCTL_PASSWORD)")
			}
			user, err := a.api.Login(cmd.Context(), marketplace.Credentials{Email: email, Password: password})
			if err != nil {
				return fmt.Errorf("login failed: %s", marketplace.Message(err))
			}
			return a.render(cmd.OutOrStdout(), user)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget its cookies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.api.Logout(cmd.Context()); err != nil {
				return fmt.Errorf("logout: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := a.api.Me(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), user)
		},
	}
}
