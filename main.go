package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	handler "mindforu/api"
	"mindforu/internal/analytics"
	"mindforu/internal/logging"
	"mindforu/internal/models"
	"mindforu/internal/store"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *handler.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mindforu",
	Short: "MindForU - Vapi voice assistant dashboard backend",
	Long: `MindForU serves the dashboard API for Vapi voice assistants, copies
calls from Vapi into MongoDB every hour and mirrors Stripe billing data.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		var err error
		cfg, err = handler.LoadConfig(configPath)
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.LogLevel, cfg.IsProduction(), verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the hourly call sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := handler.NewApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeApp(app)
		return app.Serve(ctx)
	},
}

var (
	syncAssistant string
	syncTimeout   time.Duration
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy new calls from Vapi once and exit",
	Long: `Runs one call sync over every assistant, or over a single assistant
when --assistant is given, and prints the result as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), syncTimeout)
		defer cancel()

		app, err := handler.NewApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeApp(app)

		if syncAssistant == "" {
			result, err := app.Syncer.SyncAll(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		}
		id, err := primitive.ObjectIDFromHex(syncAssistant)
		if err != nil {
			return fmt.Errorf("invalid assistant id %q", syncAssistant)
		}
		result, err := app.Syncer.SyncAssistantByID(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

var (
	statsUser  string
	statsRange string
	statsTZ    string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print dashboard analytics for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		userID, err := primitive.ObjectIDFromHex(statsUser)
		if err != nil {
			return fmt.Errorf("invalid user id %q", statsUser)
		}
		loc, err := time.LoadLocation(statsTZ)
		if err != nil {
			return fmt.Errorf("unknown timezone %q", statsTZ)
		}
		r, err := analytics.ParseRange(statsRange, time.Now())
		if err != nil {
			return err
		}

		app, err := handler.NewApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeApp(app)

		d, err := app.Analytics.Dashboard(ctx, analytics.DashboardQuery{
			Filter:   store.CallFilter{UserID: &userID},
			Range:    r,
			Location: loc,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, d)
	},
}

var promoteDemote bool

var promoteCmd = &cobra.Command{
	Use:   "promote [email]",
	Short: "Grant a user admin access",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := handler.NewApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeApp(app)

		role := models.RoleAdmin
		if promoteDemote {
			role = models.RoleUser
		}
		user, err := app.Store.SetUserRole(ctx, args[0], role)
		if err != nil {
			return fmt.Errorf("failed to update %s: %w", args[0], err)
		}
		logger.Info("👤 role updated", zap.String("email", user.Email), zap.String("role", user.Role))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "mindforu", handler.Version)
	},
}

func closeApp(app *handler.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Close(ctx); err != nil {
		logger.Warn("⚠️  failed to close MongoDB connection", zap.Error(err))
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ./mindforu.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	syncCmd.Flags().StringVar(&syncAssistant, "assistant", "", "Sync only this assistant (database ID)")
	syncCmd.Flags().DurationVar(&syncTimeout, "timeout", 30*time.Minute, "Abort the sync after this long")

	statsCmd.Flags().StringVar(&statsUser, "user", "", "User ID")
	statsCmd.Flags().StringVar(&statsRange, "range", analytics.DefaultRange, "Window: all, <n>d or <n>h")
	statsCmd.Flags().StringVar(&statsTZ, "tz", "UTC", "Timezone for the daily buckets")
	_ = statsCmd.MarkFlagRequired("user")

	promoteCmd.Flags().BoolVar(&promoteDemote, "revoke", false, "Revoke admin access instead")

	rootCmd.AddCommand(serveCmd, syncCmd, statsCmd, promoteCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
