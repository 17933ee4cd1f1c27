package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/denysvitali/ncds-go/pkg/config"
	"github.com/denysvitali/ncds-go/pkg/telemetry"
	"github.com/denysvitali/ncds-go/pkg/transfer"
	"github.com/denysvitali/ncds-go/pkg/transport"
)

const separator = "=========="

var putCmd = &cobra.Command{
	Use:   "put <localPath> <remotePath>",
	Short: "Upload a local file",
	Args:  cobra.ExactArgs(2),
	RunE: withClient(func(cmd *cobra.Command, c *transfer.Client, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Source Path:", args[0])
		fmt.Fprintln(out, "Dst Path:", args[1])

		reply, err := c.Put(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, separator)
		fmt.Fprintln(out, reply)
		fmt.Fprintln(out, separator)
		return nil
	}),
}

var getCmd = &cobra.Command{
	Use:   "get <remotePath> <localPath>",
	Short: "Download a remote file by path",
	Args:  cobra.ExactArgs(2),
	RunE: withClient(func(cmd *cobra.Command, c *transfer.Client, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Src Path:", args[0])
		fmt.Fprintln(out, "Dst Path:", args[1])
		return c.Get(cmd.Context(), args[0], args[1])
	}),
}

var getIDCmd = &cobra.Command{
	Use:   "get-id <fileId> <localPath>",
	Short: "Download a remote file by its gateway id",
	Args:  cobra.ExactArgs(2),
	RunE: withClient(func(cmd *cobra.Command, c *transfer.Client, args []string) error {
		fileID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || fileID <= 0 {
			return fmt.Errorf("invalid file id %q", args[0])
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "File ID:", fileID)
		fmt.Fprintln(out, "Dst Path:", args[1])
		return c.GetByID(cmd.Context(), fileID, args[1])
	}),
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the remote listing",
	Args:  cobra.NoArgs,
	RunE: withClient(func(cmd *cobra.Command, c *transfer.Client, _ []string) error {
		listing, err := c.List(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Listing Files")
		fmt.Fprintln(cmd.OutOrStdout(), listing)
		return nil
	}),
}

var deleteCmd = &cobra.Command{
	Use:   "delete <remotePath>",
	Short: "Delete a remote file by path",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(cmd *cobra.Command, c *transfer.Client, args []string) error {
		reply, err := c.Delete(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(putCmd, getCmd, getIDCmd, listCmd, deleteCmd)
}

// withClient loads configuration, starts telemetry when enabled and builds a
// transfer client for the wrapped command.
func withClient(run func(cmd *cobra.Command, c *transfer.Client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		// Arguments were validated by cobra; errors from here on are not usage errors.
		cmd.SilenceUsage = true

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if cfg.Telemetry.Enabled {
			cleanup, err := telemetry.Initialize(cfg.Telemetry, logger)
			if err != nil {
				logger.Warnf("Failed to initialize telemetry: %v", err)
			} else {
				defer cleanup()
			}
		}

		tr, err := transport.New(cfg.Remote, logger)
		if err != nil {
			return fmt.Errorf("failed to create transport: %w", err)
		}
		return run(cmd, transfer.New(tr, logger), args)
	}
}
