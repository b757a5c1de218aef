// Package cli — list.go implements the "classlens list" command.
//
// The list command loads the given archives and prints one row per loaded
// container: its name, class and package counts, and the manifest
// Main-Class if there is one. Output is a text table or a JSON object,
// depending on the --json flag.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/classlens/internal/model"
)

// NewListCommand creates the "list" cobra command.
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <jar>...",
		Short: "List the loaded archives",
		Long: `List the given archives with their class counts and main class.

Archives are listed in load order. When more archives are given than the
configured maxContainers, the oldest ones are evicted and not listed.

Examples:
  classlens list app.jar lib.jar
  classlens list --json app.jar`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd.Context(), cmd.ErrOrStderr(), args, envOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			printListResult(cmd.OutOrStdout(), e.session.Containers())
			return nil
		},
	}
	return cmd
}

func printListResult(w io.Writer, containers []*model.Container) {
	if IsJSONOutput() {
		printListResultJSON(w, containers)
	} else {
		printListResultText(w, containers)
	}
}

// listContainerJSON is the JSON output structure for one container.
type listContainerJSON struct {
	Name      string `json:"name"`
	Source    string `json:"source"`
	Classes   int    `json:"classes"`
	Packages  int    `json:"packages"`
	MainClass string `json:"mainClass,omitempty"`
}

// printListResultJSON outputs the containers under a "containers" key.
func printListResultJSON(w io.Writer, containers []*model.Container) {
	type resultJSON struct {
		Containers []listContainerJSON `json:"containers"`
	}

	// Empty slice, not nil, so the output shows [] instead of null.
	result := resultJSON{Containers: make([]listContainerJSON, 0, len(containers))}
	for _, c := range containers {
		result.Containers = append(result.Containers, listContainerJSON{
			Name:      c.Name,
			Source:    c.Source,
			Classes:   len(c.Classes),
			Packages:  CountPackages(c),
			MainClass: c.MainClass,
		})
	}

	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Fprintln(w, string(data))
}

// printListResultText outputs the containers as an aligned table:
//
//	NAME                      CLASSES  PACKAGES  MAIN CLASS
//	app.jar                   42       7         com/acme/Main.class
//	lib.jar                   310      25        -
func printListResultText(w io.Writer, containers []*model.Container) {
	if len(containers) == 0 {
		fmt.Fprintln(w, "No archives loaded.")
		return
	}

	fmt.Fprintf(w, "%-25s %-8s %-9s %s\n", "NAME", "CLASSES", "PACKAGES", "MAIN CLASS")
	for _, c := range containers {
		fmt.Fprintf(w, "%-25s %-8d %-9d %s\n",
			c.Name,
			len(c.Classes),
			CountPackages(c),
			FormatMainClass(c.MainClass),
		)
	}
}

// CountPackages returns the number of distinct packages among the
// container's classes. Classes at the archive root do not count.
func CountPackages(c *model.Container) int {
	seen := make(map[string]struct{})
	for _, e := range c.Classes {
		if p := e.PackagePath(); p != "" {
			seen[p] = struct{}{}
		}
	}
	return len(seen)
}

// FormatMainClass returns mainClass, or "-" when the archive has none.
func FormatMainClass(mainClass string) string {
	if mainClass == "" {
		return "-"
	}
	return mainClass
}
