// Command storefront is a terminal client for the marketplace: sign in,
// browse projects and buy one by card or QR.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/akeditz/storefront/config"
	"github.com/akeditz/storefront/internal/apiclient"
	"github.com/akeditz/storefront/internal/logger"
	"github.com/akeditz/storefront/internal/session"
)

const Version = "1.0.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	cfg     *config.Config
	api     *apiclient.Client
	store   *session.FileStore
	session *session.Session
}

// client returns the backend client bound to the signed-in session.
func (a *app) client() *apiclient.Client {
	return a.session.Client(a.api)
}

func rootCmd() *cobra.Command {
	var (
		apiURL      string
		sessionFile string
		profile     string
	)
	a := &app{}

	cmd := &cobra.Command{
		Use:           "storefront",
		Short:         "Browse and buy projects from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger.SetLevel(cfg.App.LogLevel)
			if apiURL != "" {
				cfg.API.URL = apiURL
			}
			a.cfg = cfg

			a.api = apiclient.New(cfg.API.URL,
				apiclient.WithTimeout(cfg.API.Timeout),
				apiclient.WithAssetBaseURL(cfg.API.BaseURL),
				apiclient.WithRateLimit(cfg.API.RateLimit, cfg.API.Burst),
			)

			if sessionFile == "" {
				if sessionFile, err = session.DefaultFilePath(); err != nil {
					return fmt.Errorf("resolve session file: %w", err)
				}
			}
			a.store = session.NewFileStore(sessionFile)
			a.session, err = session.Open(cmd.Context(), profile, a.store)
			if err != nil {
				return err
			}
			a.session.OnUnauthorized(func() {
				fmt.Fprintln(cmd.ErrOrStderr(), "Your session has expired. Please sign in again.")
			})
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Marketplace API root (overrides API_URL)")
	cmd.PersistentFlags().StringVar(&sessionFile, "session-file", "", "Session file path")
	cmd.PersistentFlags().StringVar(&profile, "profile", "default", "Session profile name")

	cmd.AddCommand(
		loginCmd(a),
		registerCmd(a),
		logoutCmd(a),
		whoamiCmd(a),
		projectsCmd(a),
		purchasesCmd(a),
		checkoutCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "storefront version %s\n", Version)
			},
		},
	)

	return cmd
}

// requireLogin fails commands that need a signed-in user.
func requireLogin(a *app) error {
	if !a.session.Authenticated() {
		return fmt.Errorf("not signed in, run `storefront login` first")
	}
	return nil
}
