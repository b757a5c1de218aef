package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/classlens/internal/model"
	"github.com/shinji-kodama/classlens/internal/nstree"
)

// Output formats of the tree command.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

type treeFlags struct {
	filter string // --filter: doublestar glob over class paths
	format string // --format: text, json or yaml
}

var (
	packageStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	classStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	branchStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// NewTreeCommand creates the "tree" cobra command.
func NewTreeCommand() *cobra.Command {
	flags := &treeFlags{}

	cmd := &cobra.Command{
		Use:   "tree <jar>...",
		Short: "Show the namespace tree of one or more archives",
		Long: `Show the classes of the given archives as a tree: one branch per archive,
then one level per package segment, with classes as leaves.

Examples:
  classlens tree app.jar lib.jar
  classlens tree --filter 'com/acme/**' app.jar
  classlens tree --format yaml app.jar`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTree(cmd, args, flags)
		},
	}

	cmd.Flags().StringVar(&flags.filter, "filter", "", "Only show classes whose path matches this glob (e.g. 'com/acme/**')")
	cmd.Flags().StringVar(&flags.format, "format", formatText, "Output format: text, json, yaml")

	return cmd
}

func runTree(cmd *cobra.Command, paths []string, flags *treeFlags) error {
	format := flags.format
	if IsJSONOutput() {
		format = formatJSON
	}
	switch format {
	case formatText, formatJSON, formatYAML:
	default:
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("invalid format %q: valid values are text, json, yaml", format))
	}

	e, err := newEnv(cmd.Context(), cmd.ErrOrStderr(), paths, envOptions{})
	if err != nil {
		return err
	}
	defer e.Close()

	root := e.session.NamespaceTree()
	if flags.filter != "" {
		root, err = e.session.FilteredTree(flags.filter)
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "invalid filter", err)
		}
	}
	VerboseLog("Tree has %d classes", nstree.CountClasses(root))

	return printTree(cmd.OutOrStdout(), root, format)
}

// printTree writes root in the given format.
func printTree(w io.Writer, root *nstree.Node, format string) error {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(root, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(root); err != nil {
			return err
		}
		return enc.Close()
	default:
		fmt.Fprintln(w, RenderTree(root))
	}
	return nil
}

// RenderTree draws the namespace tree with box-drawing branches. Package
// nodes are bold, class nodes show their ".class" file name.
func RenderTree(root *nstree.Node) string {
	t := buildTree(root).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(branchStyle)
	return t.String()
}

func buildTree(n *nstree.Node) *tree.Tree {
	t := tree.Root(packageStyle.Render(n.Display()))
	for _, child := range n.Children {
		if child.IsClass() {
			t.Child(classStyle.Render(child.Display()))
			continue
		}
		t.Child(buildTree(child))
	}
	return t
}
