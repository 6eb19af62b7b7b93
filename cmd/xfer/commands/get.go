package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/SpatiumPortae/xfer/cmd/xfer/config"
	getter_tui "github.com/SpatiumPortae/xfer/cmd/xfer/tui/getter"
	"github.com/SpatiumPortae/xfer/internal/client"
	"github.com/SpatiumPortae/xfer/internal/file"
	"github.com/SpatiumPortae/xfer/internal/xfer"
	"github.com/SpatiumPortae/xfer/protocol/transfer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ErrTransferFailed makes the process exit with a non-zero status once every result has been reported.
var ErrTransferFailed = errors.New("transfer failed")

// --------------------------------------------------------- Get -------------------------------------------------------

func Get(version string) *cobra.Command {
	getCmd := &cobra.Command{
		Use:   "get <host:port> file1 file2...",
		Short: "Fetch one or more files from an xfer server",
		Long: "The get command requests the given files, in order, from an xfer server and stores them in the " +
			"destination directory. Fetching stops at the first file that could not be received.\n\n" + addressArgDesc,
		Args: cobra.MinimumNArgs(2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to viper.
			if err := viper.BindPFlag("tui_style", cmd.Flags().Lookup("tui-style")); err != nil {
				return fmt.Errorf("binding tui-style flag: %w", err)
			}
			if err := viper.BindPFlag("transport", cmd.Flags().Lookup("transport")); err != nil {
				return fmt.Errorf("binding transport flag: %w", err)
			}
			if err := viper.BindPFlag("idle_timeout", cmd.Flags().Lookup("timeout")); err != nil {
				return fmt.Errorf("binding timeout flag: %w", err)
			}
			if err := viper.BindPFlag("preserve_mod_time", cmd.Flags().Lookup("preserve-mtime")); err != nil {
				return fmt.Errorf("binding preserve-mtime flag: %w", err)
			}

			// Reverse the --yes/-y flag value as it has an inverse relationship
			// with the configuration value 'prompt_overwrite_files'.
			overwriteFlag := cmd.Flags().Lookup("yes")
			if overwriteFlag.Changed {
				shouldOverwrite, _ := strconv.ParseBool(overwriteFlag.Value.String())
				_ = overwriteFlag.Value.Set(strconv.FormatBool(!shouldOverwrite))
			}
			if err := viper.BindPFlag("prompt_overwrite_files", overwriteFlag); err != nil {
				return fmt.Errorf("binding yes flag: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := args[0]
			if err := validateAddress(addr); err != nil {
				return fmt.Errorf("%w: (%s) is not a valid server address", err, addr)
			}
			if err := validateChoice("transport", config.Transports); err != nil {
				return err
			}
			idleTimeout, err := time.ParseDuration(viper.GetString("idle_timeout"))
			if err != nil || idleTimeout <= 0 {
				return fmt.Errorf("invalid idle timeout %q", viper.GetString("idle_timeout"))
			}

			logFile, err := setupLoggingFromViper("get")
			if err != nil {
				return err
			}
			defer logFile.Close()

			dir, _ := cmd.Flags().GetString("dir")
			compress, _ := cmd.Flags().GetBool("gzip")
			dst := file.Destination{
				Dir:             dir,
				Compress:        compress,
				PreserveModTime: viper.GetBool("preserve_mod_time"),
			}
			cfg := &xfer.Config{
				Transport:   viper.GetString("transport"),
				IdleTimeout: idleTimeout,
				Version:     version,
			}
			names := args[1:]

			switch viper.GetString("tui_style") {
			case config.StyleRich:
				return handleGetCommand(addr, names, dst, cfg)
			case config.StyleRaw:
				return handleGetCommandRaw(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), addr, names, dst, cfg)
			default:
				return errors.New("invalid tui style provided")
			}
		},
	}
	getCmd.Flags().StringP("dir", "d", ".", "Directory the received files are stored in")
	getCmd.Flags().BoolP("yes", "y", false, "Overwrite existing files without [y/N] prompts")
	getCmd.Flags().BoolP("gzip", "z", false, "Store the received files gzip compressed as <name>.gz")
	getCmd.Flags().Bool("preserve-mtime", false, "Apply the modification time reported by the server")
	getCmd.Flags().StringP("transport", "t", "", transportFlagDesc)
	getCmd.Flags().String("timeout", "", "Maximum time to wait for data from the server, e.g. 15s")
	getCmd.Flags().StringP("tui-style", "s", "", tuiStyleFlagDesc)
	return getCmd
}

// ------------------------------------------------------ Handlers -----------------------------------------------------

// handleGetCommand is the rich get application.
func handleGetCommand(addr string, names []string, dst file.Destination, cfg *xfer.Config) error {
	opts := []getter_tui.Option{getter_tui.WithConfig(cfg)}
	if viper.GetBool("prompt_overwrite_files") {
		if existing := existingFiles(dst, names); len(existing) > 0 {
			opts = append(opts, getter_tui.WithOverwritePrompt(existing))
		}
	}
	getter := getter_tui.New(addr, names, dst, opts...)
	final, err := getter.Run()
	if err != nil {
		return fmt.Errorf("running getter tui: %w", err)
	}
	fmt.Println("")
	if m, ok := final.(getter_tui.Model); ok && m.Err() != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, m.Err())
	}
	return nil
}

func handleGetCommandRaw(ctx context.Context, in io.Reader, out io.Writer, addr string, names []string, dst file.Destination, cfg *xfer.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	if viper.GetBool("prompt_overwrite_files") {
		input := bufio.NewReader(in)
		var kept []string
		for _, name := range names {
			if dst.Exists(name) && !confirm(input, out, fmt.Sprintf("overwrite %s?", name)) {
				fmt.Fprintf(out, "skipping %s\n", name)
				continue
			}
			kept = append(kept, name)
		}
		names = kept
	}
	if len(names) == 0 {
		return fmt.Errorf("%w: every file was skipped", ErrTransferFailed)
	}

	results, err := xfer.Get(ctx, addr, names, dst, cfg)
	for _, res := range results {
		printResult(out, res)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return nil
}

// ------------------------------------------------------ Helpers ------------------------------------------------------

func existingFiles(dst file.Destination, names []string) []string {
	var existing []string
	for _, name := range names {
		if dst.Exists(name) {
			existing = append(existing, name)
		}
	}
	return existing
}

// printResult writes one line describing the outcome of a single file.
func printResult(out io.Writer, res client.Result) {
	switch res.Outcome {
	case transfer.Success:
		fmt.Fprintf(out, "received %s: %d bytes, modified %s\n",
			res.Name, res.Size, time.Unix(int64(res.ModTime), 0).UTC().Format(time.RFC3339))
	case transfer.NotFoundOnServer:
		fmt.Fprintf(out, "%s does not exist on the server\n", res.Name)
	default:
		fmt.Fprintf(out, "failed to receive %s (%s): %v\n", res.Name, res.Outcome.Name(), res.Err)
	}
}
