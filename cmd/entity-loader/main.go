// Package main is the entity-loader command line.
//
// entity-loader reads tabular rows, maps every row onto entity types through
// a YAML mapping document and writes the resulting records, relations and
// associations to PostgreSQL or to an in-memory store:
//
//	entity-loader process --mapping m.yaml --schema s.yaml --input rows.csv
//	entity-loader validate --mapping m.yaml --schema s.yaml
//	entity-loader order --mapping m.yaml --schema s.yaml
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags.
var (
	version = "0.1.0"
	commit  = ""
)

// errRunFailed makes the process exit non-zero after the report was written.
var errRunFailed = errors.New("run failed")

func versionString() string {
	if commit != "" {
		return fmt.Sprintf("entity-loader version %s (commit: %s)", version, commit)
	}

	return fmt.Sprintf("entity-loader version %s-dev", version)
}

// globalFlags are shared by every command.
type globalFlags struct {
	config  string
	mapping string
	schema  string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "entity-loader",
		Short:         "Load tabular rows into related entities through a mapping document",
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("{{.Version}}\n")

	root.PersistentFlags().StringVar(&g.config, "config", "", "YAML config file (env overrides it)")
	root.PersistentFlags().StringVarP(&g.mapping, "mapping", "m", "", "mapping document")
	root.PersistentFlags().StringVarP(&g.schema, "schema", "s", "", "entity schema document")

	root.AddCommand(newProcessCmd(g))
	root.AddCommand(newValidateCmd(g))
	root.AddCommand(newOrderCmd(g))

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}

		os.Exit(1)
	}
}
