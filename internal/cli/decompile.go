package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/classlens/internal/browser"
	"github.com/shinji-kodama/classlens/internal/config"
	"github.com/shinji-kodama/classlens/internal/model"
)

type decompileFlags struct {
	class     string // --class: archive path or binary name of the class
	container string // --container: archive holding the class
	highlight bool   // --highlight: colorize the output
	style     string // --style: chroma style, overrides the config
	backend   string // --backend: decompiler backend, overrides the config
}

// NewDecompileCommand creates the "decompile" cobra command.
func NewDecompileCommand() *cobra.Command {
	flags := &decompileFlags{}

	cmd := &cobra.Command{
		Use:   "decompile <jar>... --class <path>",
		Short: "Print the decompiled source of a class",
		Long: `Load the given archives and print the source of one class.

The class can be given as an archive path (com/acme/Main.class) or as a
binary name (com.acme.Main). It is looked up in the archive named by
--container, which defaults to the first archive on the command line.

When the class cannot be decompiled, "Error decompiling class" is printed
and the command exits with code 5.

Examples:
  classlens decompile app.jar --class com.acme.Main
  classlens decompile app.jar lib.jar --container lib.jar --class org/lib/Util.class
  classlens decompile app.jar --class com.acme.Main --highlight --style github`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecompile(cmd, args, flags)
		},
	}

	cmd.Flags().StringVar(&flags.class, "class", "", "Class to decompile (path or binary name)")
	cmd.Flags().StringVar(&flags.container, "container", "", "Archive containing the class (default: first archive)")
	cmd.Flags().BoolVar(&flags.highlight, "highlight", false, "Syntax-highlight the output for a 256-color terminal")
	cmd.Flags().StringVar(&flags.style, "style", "", "Highlight style (default: from config, monokai)")
	cmd.Flags().StringVar(&flags.backend, "backend", "", "Decompiler backend: outline, exec, docker (default: from config)")
	_ = cmd.MarkFlagRequired("class")

	return cmd
}

// decompileResultJSON is the --json output of the decompile command.
type decompileResultJSON struct {
	Container string `json:"container"`
	Path      string `json:"path"`
	Source    string `json:"source"`
	Error     string `json:"error,omitempty"`
	Output    string `json:"output,omitempty"`
}

func runDecompile(cmd *cobra.Command, paths []string, flags *decompileFlags) error {
	containerName := flags.container
	if containerName == "" {
		containerName = model.ContainerNameFromPath(paths[0])
	}
	classPath := model.ClassPathFromName(flags.class)

	e, err := newEnv(cmd.Context(), cmd.ErrOrStderr(), paths, envOptions{
		override: func(cfg *config.Config) {
			if flags.style != "" {
				cfg.Highlight.Style = flags.style
			}
			if flags.backend != "" {
				cfg.Decompiler.Backend = flags.backend
			}
		},
	})
	if err != nil {
		return err
	}
	defer e.Close()

	VerboseLog("Decompiling %s from %s", classPath, containerName)
	text, decompileErr := e.session.OnClassSelected(cmd.Context(), containerName, classPath)
	shown, err := browser.Render(text, decompileErr)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if IsJSONOutput() {
		printDecompileJSON(out, containerName, classPath, shown, decompileErr)
		return decompileErr
	}

	if decompileErr != nil {
		var de *model.DecompileError
		if errors.As(decompileErr, &de) && de.Output != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), de.Output)
		}
		fmt.Fprintln(out, shown)
		return decompileErr
	}

	if flags.highlight {
		return HighlightJava(out, shown, e.cfg.Highlight.Style)
	}
	fmt.Fprintln(out, shown)
	return nil
}

func printDecompileJSON(w io.Writer, container, path, source string, err error) {
	result := decompileResultJSON{Container: container, Path: path, Source: source}
	if err != nil {
		result.Error = err.Error()
		var de *model.DecompileError
		if errors.As(err, &de) {
			result.Output = de.Output
		}
	}
	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Fprintln(w, string(data))
}

// HighlightJava writes source colorized as Java for a 256-color terminal.
func HighlightJava(w io.Writer, source, style string) error {
	if err := quick.Highlight(w, source, "java", "terminal256", style); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}
