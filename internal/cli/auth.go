package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const authTimeout = 30 * time.Second

// addAuthCommands adds account commands.
func addAuthCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Account management",
		Long:  "Create an account, sign in and out, and verify your email address.",
	}

	cmd.AddCommand(newSignUpCmd(app))
	cmd.AddCommand(newSignInCmd(app))
	cmd.AddCommand(newVerifyCmd(app))
	cmd.AddCommand(newSignOutCmd(app))
	cmd.AddCommand(newWhoAmICmd(app))

	rootCmd.AddCommand(cmd)
}

// readPassword returns the --password flag or prompts for it on stdin.
func readPassword(cmd *cobra.Command, output *Output) (string, error) {
	if pw, _ := cmd.Flags().GetString("password"); pw != "" {
		return pw, nil
	}
	if output.IsJSON() {
		return "", fmt.Errorf("--password is required with --json")
	}

	output.Printf("Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newSignUpCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signup <email>",
		Short: "Create an account",
		Example: `  journal auth signup me@example.com --name "Jane Trader"
  journal auth signup me@example.com --password hunter22`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
			defer cancel()

			password, err := readPassword(cmd, output)
			if err != nil {
				return err
			}
			name, _ := cmd.Flags().GetString("name")

			p, err := app.Auth()
			if err != nil {
				return err
			}
			user, token, err := p.SignUp(ctx, args[0], password, name)
			if err != nil {
				output.Error("Sign up failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"user":              user,
					"verificationToken": token,
				})
			}
			output.Success("✓ Account created for %s", user.Email)
			output.Printf("  Verify your email with: journal auth verify %s\n", token)
			return nil
		},
	}
	cmd.Flags().String("password", "", "account password (prompted if omitted)")
	cmd.Flags().String("name", "", "display name")
	return cmd
}

func newSignInCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signin <email>",
		Short: "Sign in and remember the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
			defer cancel()

			password, err := readPassword(cmd, output)
			if err != nil {
				return err
			}

			p, err := app.Auth()
			if err != nil {
				return err
			}
			sess, err := p.SignIn(ctx, args[0], password)
			if err != nil {
				output.Error("Sign in failed: %v", err)
				return err
			}
			if err := app.SessionFile().Save(sess.Token); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(sess)
			}
			output.Success("✓ Signed in as %s", sess.User.Email)
			output.Dim("Session valid until %s", sess.ExpiresAt.Local().Format(time.RFC1123))
			return nil
		},
	}
	cmd.Flags().String("password", "", "account password (prompted if omitted)")
	return cmd
}

func newVerifyCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token>",
		Short: "Verify an email address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
			defer cancel()

			p, err := app.Auth()
			if err != nil {
				return err
			}
			if err := p.VerifyEmail(ctx, args[0]); err != nil {
				output.Error("Verification failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]bool{"verified": true})
			}
			output.Success("✓ Email verified")
			return nil
		},
	}
}

func newSignOutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "End the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
			defer cancel()

			file := app.SessionFile()
			token, err := file.Load()
			if err == nil {
				p, perr := app.Auth()
				if perr != nil {
					return perr
				}
				if err := p.SignOut(ctx, token); err != nil {
					app.Logger.Warn().Err(err).Msg("Failed to end session")
				}
			}
			if err := file.Clear(); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]bool{"signedOut": true})
			}
			output.Success("✓ Signed out")
			return nil
		},
	}
}

func newWhoAmICmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
			defer cancel()

			user, err := app.CurrentUser(ctx)
			if err != nil {
				output.Warning("Not signed in. Use 'journal auth signin <email>'.")
				return err
			}

			if output.IsJSON() {
				return output.JSON(user)
			}
			output.Bold("%s", user.Email)
			if user.DisplayName != "" {
				output.Printf("  Name:     %s\n", user.DisplayName)
			}
			output.Printf("  User ID:  %s\n", user.UID)
			verified := output.ColoredString(ColorYellow, "no")
			if user.EmailVerified {
				verified = output.ColoredString(ColorGreen, "yes")
			}
			output.Printf("  Verified: %s\n", verified)
			return nil
		},
	}
}
