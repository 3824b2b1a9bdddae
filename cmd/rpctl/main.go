package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/remoteplay/rpctl/internal/config"
	_ "github.com/remoteplay/rpctl/internal/engine/chiaki"
	_ "github.com/remoteplay/rpctl/internal/engine/replay"
	"github.com/remoteplay/rpctl/internal/logging"
	"github.com/remoteplay/rpctl/internal/version"
)

// OutputFormatter handles output in JSON or human-readable format
type OutputFormatter struct {
	jsonMode bool
}

// newOutputFormatter creates a new formatter based on the command's --json flag
func newOutputFormatter(cmd *cobra.Command) *OutputFormatter {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &OutputFormatter{jsonMode: jsonMode}
}

// Print outputs data in the appropriate format
func (f *OutputFormatter) Print(data interface{}) error {
	if s, ok := data.(string); ok && !f.jsonMode {
		fmt.Println(s)
		return nil
	}
	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(jsonBytes))
	return nil
}

// Success outputs a success message
func (f *OutputFormatter) Success(message string, data map[string]interface{}) error {
	if f.jsonMode {
		output := map[string]interface{}{
			"success": true,
			"message": message,
		}
		for k, v := range data {
			output[k] = v
		}
		return f.Print(output)
	}
	fmt.Println(message)
	return nil
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rpctl",
		Short: "rpctl - remote play session client",
		Long: `rpctl connects to PlayStation consoles registered with Chiaki, streams
their video to a local player or a recording, captures screenshots and drives
the virtual controller from the keyboard or from scripts.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}
	rootCmd.Version = version.String()
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	flags := rootCmd.PersistentFlags()
	flags.Bool("json", false, "Output in JSON format")
	flags.String("config", "", "Path to config.yaml (default ~/.rpctl/config.yaml)")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("engine", "", "Session engine (chiaki, replay:<file>)")
	flags.String("chiaki-config", "", "Path to the Chiaki settings file")

	rootCmd.AddCommand(
		newHostsCommand(),
		newDiscoverCommand(),
		newStatusCommand(),
		newStreamCommand(),
		newScreenshotCommand(),
		newRecordCommand(),
		newControlCommand(),
		newScriptCommand(),
		newHistoryCommand(),
		newVersionCommand(),
	)
	return rootCmd
}

// cfg is loaded once by setup before any command runs.
var cfg *config.Config

func setup(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	loaded, err := config.Load(path)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		loaded.Log.Level = v
	}
	if v, _ := cmd.Flags().GetString("engine"); v != "" {
		loaded.Engine = v
	}
	if v, _ := cmd.Flags().GetString("chiaki-config"); v != "" {
		loaded.Chiaki.ConfigPath = config.ExpandPath(v)
	}
	if !logging.Setup(loaded.Log.Level, loaded.Log.Format, os.Stderr) {
		log.Warn().Str("level", loaded.Log.Level).Msg("unknown log level, using info")
	}
	cfg = loaded
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
