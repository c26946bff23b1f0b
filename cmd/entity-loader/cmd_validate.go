package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"entity-loader/internal/mapping"
	"entity-loader/internal/transform"
)

func newValidateCmd(g *globalFlags) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a mapping document against the entity schema",
		Long: `Check a mapping document against the entity schema and print every
diagnostic. Errors make the command fail; warnings fail it only with --strict.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			docs, err := loadDocuments(g)
			if err != nil {
				return err
			}

			diags := mapping.Validate(docs.def, docs.reg, transform.NewRegistry())
			out := cmd.OutOrStdout()

			for _, d := range diags.Errors {
				fmt.Fprintf(out, "error: %s\n", d)
			}

			for _, d := range diags.Warnings {
				fmt.Fprintf(out, "warning: %s\n", d)
			}

			for _, d := range diags.Infos {
				fmt.Fprintf(out, "info: %s\n", d)
			}

			if !diags.IsValid() {
				return fmt.Errorf("mapping %s has %d error(s)", g.mapping, len(diags.Errors))
			}

			if strict && len(diags.Warnings) > 0 {
				return fmt.Errorf("mapping %s has %d warning(s)", g.mapping, len(diags.Warnings))
			}

			fmt.Fprintf(out, "mapping %s is valid\n", g.mapping)

			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "treat warnings as errors")

	return cmd
}
