package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vulnverified/certscan/internal/engine"
	"github.com/vulnverified/certscan/internal/output"
	"github.com/vulnverified/certscan/internal/store"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <tree.json>",
		Short: "Check the structure of a domain-tree file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := store.LoadAndValidate(args[0])
			if err != nil {
				return err
			}
			active, inactive, domains := tree.Counts()
			fmt.Fprintf(a.stdout, "%s: %d active subdomains, %d inactive subdomains, %d domains\n",
				args[0], active, inactive, domains)
			return nil
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <certificates.json>",
		Short: "Print a saved certificate map",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			certs, err := store.LoadCertificateFile(args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return output.WriteJSON(a.stdout, certs)
			}
			output.WriteCertificateTable(a.stdout, engine.ScanResult(certs), a.noColor)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the map as JSON")
	return cmd
}
