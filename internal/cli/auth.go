// Package cli provides the command-line interface for the premium scanner.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// addAuthCommands adds authentication commands.
func addAuthCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newLoginCmd(app))
	rootCmd.AddCommand(newLogoutCmd(app))
	rootCmd.AddCommand(newAuthStatusCmd(app))
}

func newLoginCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login to Upstox",
		Long: `Login to Upstox via the OAuth authorization flow.

Opens the Upstox authorization dialog in a browser. After approving, you
are redirected to your configured redirect URL with a ?code= parameter.
Paste that code here to complete the exchange.

The access token is valid until 03:30 IST the next morning, when Upstox
invalidates all tokens.`,
		Example: `  pscan login
  pscan login --code=<authorization code>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			if app.Config.Credentials.Upstox.ClientID == "" {
				output.Error("Upstox client_id not configured. Please check your credentials.toml")
				return fmt.Errorf("credentials not configured")
			}

			// Already holding a live session
			if session := app.Auth.Session(); session != nil && session.Valid(time.Now()) {
				return showLoginStatus(app, output)
			}

			// Code provided directly, or pre-configured
			code, _ := cmd.Flags().GetString("code")
			if code == "" {
				code = app.Config.Credentials.Upstox.AuthCode
			}
			if code != "" {
				return completeLogin(ctx, app, output, code)
			}

			loginURL := app.Auth.LoginURL()

			output.Info("Opening Upstox authorization page...")
			output.Println()
			output.Bold("Login URL:")
			output.Println(loginURL)
			output.Println()

			if err := openURL(loginURL); err != nil {
				output.Warning("Could not open browser automatically")
			}

			output.Info("After approving, you'll be redirected to a URL like:")
			output.Dim("  %s?code=XXXXXX", app.Config.Credentials.Upstox.RedirectURL)
			output.Println()
			output.Bold("Paste the code value here:")

			reader := bufio.NewReader(os.Stdin)
			fmt.Print("> ")
			inputCode, _ := reader.ReadString('\n')
			inputCode = strings.TrimSpace(inputCode)

			if inputCode == "" {
				output.Error("No code provided")
				return fmt.Errorf("no code provided")
			}

			return completeLogin(ctx, app, output, inputCode)
		},
	}

	cmd.Flags().String("code", "", "Authorization code from redirect URL")

	return cmd
}

func completeLogin(ctx context.Context, app *App, output *Output, code string) error {
	output.Info("Exchanging authorization code...")

	session, err := app.Auth.Exchange(ctx, code)
	if err != nil {
		output.Error("Login failed: %v", err)
		return err
	}

	output.Success("✓ Login successful!")
	output.Println()
	output.Bold("Session")
	output.Printf("  Expires:    %s (%s remaining)\n",
		FormatDateTime(session.ExpiresAt),
		FormatDuration(time.Until(session.ExpiresAt)))
	return nil
}

// showLoginStatus displays session info for an already valid login.
func showLoginStatus(app *App, output *Output) error {
	session := app.Auth.Session()

	output.Success("✓ Already logged in")
	output.Println()
	output.Bold("Session")
	output.Printf("  Expires:    %s (%s remaining)\n",
		FormatDateTime(session.ExpiresAt),
		FormatDuration(time.Until(session.ExpiresAt)))
	return nil
}

func openURL(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform")
	}
	return cmd.Start()
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Logout from Upstox",
		Long: `Clear the stored session token.

Upstox does not expose a revocation endpoint; the token remains valid
upstream until the daily 03:30 IST cutoff, but this command removes it
from disk so it is no longer used.`,
		Example: `  pscan logout`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			if app.Auth.Session() == nil {
				output.Warning("No active session found.")
				return nil
			}

			if err := app.Auth.Logout(); err != nil {
				output.Error("Logout failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"success":   true,
					"message":   "Logout successful",
					"timestamp": time.Now().Format(time.RFC3339),
				})
			}

			output.Success("✓ Logged out successfully!")
			output.Dim("Session token has been cleared.")

			return nil
		},
	}
}

func newAuthStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "auth-status",
		Short: "Check authentication status",
		Long:  "Display current authentication status and session expiry.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			session := app.Auth.Session()
			if session == nil {
				if output.IsJSON() {
					return output.JSON(map[string]interface{}{"authenticated": false})
				}
				output.Warning("Not authenticated")
				output.Println()
				output.Info("Run 'pscan login' to authenticate")
				return nil
			}

			now := time.Now()
			if !session.Valid(now) {
				if output.IsJSON() {
					return output.JSON(map[string]interface{}{
						"authenticated": false,
						"expired_at":    session.ExpiresAt.Format(time.RFC3339),
					})
				}
				output.Warning("Session expired at %s", FormatDateTime(session.ExpiresAt))
				output.Info("Run 'pscan login' to re-authenticate")
				return nil
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"authenticated": true,
					"expires_at":    session.ExpiresAt.Format(time.RFC3339),
				})
			}

			output.Success("✓ Authenticated")
			output.Println()
			output.Printf("  Session expires: %s (%s remaining)\n",
				FormatDateTime(session.ExpiresAt),
				FormatDuration(session.ExpiresAt.Sub(now)))

			return nil
		},
	}
}
