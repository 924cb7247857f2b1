// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/adiadia/flowsim/internal/demos"
	"github.com/spf13/cobra"
)

func newDemosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demos",
		Short: "List demos and their fixtures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := demos.Load()
			if err != nil {
				return err
			}
			printCatalog(cmd.OutOrStdout(), catalog)
			return nil
		},
	}
}

func printCatalog(w io.Writer, catalog *demos.Catalog) {
	for i, d := range catalog.List() {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s  %s\n", d.Name(), d.Title())
		if modes := d.Modes(); len(modes) > 0 {
			fmt.Fprintf(w, "  modes: %s (default %s)\n", strings.Join(modes, ", "), d.DefaultMode())
		}
		for _, f := range d.Fixtures() {
			marker := " "
			if f.Key == d.DefaultFixture() {
				marker = "*"
			}
			fmt.Fprintf(w, "  %s %-12s %s\n", marker, f.Key, f.Query)
		}
	}
}
