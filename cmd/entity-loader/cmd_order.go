package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"entity-loader/internal/importerr"
	"entity-loader/internal/mapping"
	"entity-loader/internal/transform"
)

func newOrderCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "order",
		Short: "Print the execution order of the entity mappings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			docs, err := loadDocuments(g)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			plan, err := mapping.Compile(docs.def, docs.reg, transform.NewRegistry())
			if err != nil {
				var cycle *importerr.DependencyCycleError
				if errors.As(err, &cycle) {
					fmt.Fprintf(out, "cycle: %s\n", strings.Join(cycle.Members, " <-> "))
				}

				return err
			}

			fmt.Fprintf(out, "types: %s\n", strings.Join(plan.Order, " -> "))

			for i, ce := range plan.Entities {
				fmt.Fprintf(out, "%d. %s\n", i+1, ce.Label)
			}

			return nil
		},
	}
}
