package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	// Global flags, applied over config.Load when set
	debug        bool
	apiURL       string
	dbPath       string
	logDir       string
	downloadDir  string
	tenant       string
	timeout      time.Duration
	ephemeral    bool
	requireToken bool
)

// rootCmd starts the interactive chat
var rootCmd = &cobra.Command{
	Use:     "omschat",
	Short:   "OMS order management chat assistant",
	Version: version,
	Long: `omschat is a terminal client for the OMS chat assistant.

It keeps your tenant, user, chat session and access token in a local
SQLite file so the next start resumes the same session.

Run without arguments to start the interactive chat.`,
	SilenceUsage: true,
	RunE:         runInteractive,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Backend base URL (or set OMSCHAT_API_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite file for the stored session (or set OMSCHAT_DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Directory for log, trace and metric files")
	rootCmd.PersistentFlags().StringVar(&downloadDir, "download-dir", "", "Directory where PDF replies are saved")
	rootCmd.PersistentFlags().StringVar(&tenant, "default-tenant", "", "Tenant code used before any login")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Per-request timeout (e.g. 30s)")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "Keep the session in memory only")
	rootCmd.PersistentFlags().BoolVar(&requireToken, "require-token", true, "Require an access token for chat requests")

	loginCmd.Flags().StringVar(&loginTenant, "tenant", "", "Tenant code")
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(sendCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
