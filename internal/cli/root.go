// Package cli implements the cobra-based CLI commands for classlens.
//
// Each subcommand (tree, list, decompile, serve) is defined in its own file
// within this package. This file defines the root command that serves as
// the parent for all subcommands and handles global flags.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/classlens/internal/model"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command.
var (
	// jsonOutput controls whether command output is formatted as JSON.
	jsonOutput bool

	// verbose enables [verbose] trace lines and debug logging on stderr.
	verbose bool

	// configPath points at an explicit config file. Empty means look for
	// one of config.FileNames in the working directory.
	configPath string
)

// Version, Commit and Date are set at build time via ldflags.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "classlens",
		Short: "Browse and decompile the classes inside JAR archives",
		Long: `classlens loads one or more JAR archives, shows the classes they contain
as a namespace tree grouped by archive and package, and prints the
decompiled source of any class.

Decompiled text is cached per archive and class, so every class is
decompiled at most once per run.`,

		// Errors are printed by Execute, in text or JSON.
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./classlens.{jsonc,json,yaml,yml})")

	rootCmd.AddCommand(NewTreeCommand())
	rootCmd.AddCommand(NewListCommand())
	rootCmd.AddCommand(NewDecompileCommand())
	rootCmd.AddCommand(NewServeCommand())

	return rootCmd
}

// Execute runs the root command and exits with the code that matches the
// returned error. CLIErrors carry their own code; core errors are mapped
// through model.ExitCodeFor.
func Execute(rootCmd *cobra.Command) {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	printError(os.Stderr, err)
	os.Exit(int(model.ExitCodeFor(err)))
}

// printError writes err in the format selected by --json.
func printError(w io.Writer, err error) {
	message, underlying := err.Error(), error(nil)
	if cliErr, ok := err.(*model.CLIError); ok {
		message, underlying = cliErr.Message, cliErr.Err
	}

	if jsonOutput {
		errObj := map[string]any{
			"error": map[string]any{
				"message": message,
				"code":    int(model.ExitCodeFor(err)),
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]any); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	if underlying != nil {
		fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
	} else {
		fmt.Fprintf(w, "Error: %s\n", message)
	}
}

// VerboseLog prints a message to stderr only when verbose mode is enabled.
func VerboseLog(format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[verbose] "+format+"\n", args...)
	}
}

// IsJSONOutput returns whether the --json flag is set.
func IsJSONOutput() bool {
	return jsonOutput
}
