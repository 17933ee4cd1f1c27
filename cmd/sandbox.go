package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/denysvitali/ncds-go/pkg/config"
	"github.com/denysvitali/ncds-go/pkg/sandbox"
	"github.com/denysvitali/ncds-go/pkg/telemetry"
)

// sandboxCmd represents the sandbox command
var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Run a local stand-in NCDS gateway",
	Long: `Start a local HTTP server implementing the NCDS gateway endpoints
(list.php, do_upload.php, do_download.php, do_delete.php) so the client can
be exercised without access to the real gateway.`,
	Args: cobra.NoArgs,
	RunE: runSandbox,
}

func init() {
	rootCmd.AddCommand(sandboxCmd)

	sandboxCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	sandboxCmd.Flags().String("data-dir", "", "Directory for stored files (default is a temp dir)")
	sandboxCmd.Flags().String("sandbox-username", "ncds", "Username accepted by the sandbox")
	sandboxCmd.Flags().String("sandbox-password", "ncds", "Password accepted by the sandbox")

	_ = viper.BindPFlag("sandbox.port", sandboxCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("sandbox.data_dir", sandboxCmd.Flags().Lookup("data-dir"))
	_ = viper.BindPFlag("sandbox.username", sandboxCmd.Flags().Lookup("sandbox-username"))
	_ = viper.BindPFlag("sandbox.password", sandboxCmd.Flags().Lookup("sandbox-password"))
}

func runSandbox(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	logger := GetLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.Telemetry.Enabled {
		logger.Info("Initializing OpenTelemetry")
		cleanup, err := telemetry.Initialize(cfg.Telemetry, logger)
		if err != nil {
			logger.Warnf("Failed to initialize telemetry: %v", err)
		} else {
			defer cleanup()
		}
	}

	srv, err := sandbox.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create sandbox: %w", err)
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("sandbox error: %w", err)
	case sig := <-interrupt:
		logger.Infof("Received signal %v, shutting down...", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Errorf("Sandbox shutdown error: %v", err)
			return err
		}

		logger.Info("Sandbox stopped gracefully")
		return nil
	}
}
