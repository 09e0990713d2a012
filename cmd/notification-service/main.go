package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/amoylab/notification-service/internal/app"
	"github.com/amoylab/notification-service/internal/common/cnst"
	"github.com/amoylab/notification-service/internal/common/config"
	"github.com/amoylab/notification-service/pkg/logger"
	"github.com/amoylab/notification-service/pkg/version"
)

var (
	configPath string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of " + cnst.CommandName,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", cnst.CommandName, version.Get())
		},
	}

	testCmd = &cobra.Command{
		Use:   "test",
		Short: "Validate the configuration file and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, path, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("configuration %s is invalid: %w", configPath, err)
			}
			fmt.Printf("configuration %s is valid\n", path)
			return nil
		},
	}

	rootCmd = &cobra.Command{
		Use:          cnst.CommandName,
		Short:        "Real-time notification fan-out service",
		Long:         `Consumes session lifecycle events and pushes them to connected WebSocket clients, storing what cannot be delivered.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "conf", "c", cnst.NotificationServiceYaml, "path to configuration file")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(testCmd)
}

func run(ctx context.Context) error {
	cfg, path, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	lg, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer lg.Sync()

	lg.Info("loaded configuration",
		zap.String("path", path),
		zap.String("version", version.Get()))

	if cfg.Logger.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := app.New(ctx, cfg, lg)
	if err != nil {
		lg.Error("failed to initialize service", zap.Error(err))
		return err
	}
	return a.Run(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
