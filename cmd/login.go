package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voicelocal/voicelocal/internal/identity"
	"github.com/voicelocal/voicelocal/internal/output"
)

var loginName string

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Log in as a resident",
	Long: `Save a local identity used by every later command.

There are no passwords: the user id is the part of the email before the @,
and addresses containing "admin" get the admin role.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return loginRun(args[0])
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		return logoutRun()
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the acting user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return whoamiRun()
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginName, "name", "", "Display name (default: the email's local part)")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}

func loginRun(email string) error {
	u, err := identity.FromEmail(email, loginName)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would log in as %s (%s)", u.DisplayName, u.ID)
		return nil
	}

	if err := identityFile().Save(u); err != nil {
		return err
	}
	ui.Success("Logged in as %s (%s)", output.Cyan(u.DisplayName), u.ID)
	if u.IsAdmin() {
		ui.Info("Role: %s", output.Yellow(string(u.Role)))
	}
	return nil
}

func logoutRun() error {
	f := identityFile()
	if _, err := f.Load(); errors.Is(err, identity.ErrNoIdentity) {
		ui.Info("Not logged in.")
		return nil
	}

	if dryRun {
		ui.DryRunMsg("Would remove %s", f.Path)
		return nil
	}

	if err := f.Clear(); err != nil {
		return err
	}
	ui.Success("Logged out")
	return nil
}

func whoamiRun() error {
	u, err := currentActor()
	if err != nil {
		return err
	}
	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(u.ID), u.DisplayName)
	if u.Email != "" {
		fmt.Fprintf(ui.Out, "  Email:  %s\n", u.Email)
	}
	fmt.Fprintf(ui.Out, "  Role:   %s\n", u.Role)
	return nil
}
