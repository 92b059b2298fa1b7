package main

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"github.com/vulnverified/certscan/internal/engine"
	"github.com/vulnverified/certscan/internal/output"
	"github.com/vulnverified/certscan/internal/store"
)

func newCertsCmd(a *app) *cobra.Command {
	var (
		tree        bool
		outPath     string
		jsonOutput  bool
		concurrency int
		details     string
	)

	cmd := &cobra.Command{
		Use:   "certs <input.json>",
		Short: "Find certificate IDs for every subdomain in an input file",
		Long: `Reads {"<domain>": ["<subdomain>", ...]} (or a domain-tree file with --tree)
and looks up the certificates issued for each subdomain on crt.sh.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, entry := a.scanLog("certs")

			var input map[string][]string
			if tree {
				t, err := store.LoadAndValidate(args[0])
				if err != nil {
					return err
				}
				m, err := t.SubdomainMap()
				if err != nil {
					a.progress.Warn(fmt.Sprintf("Some domain-tree entries were skipped: %v", err))
				}
				input = m
			} else {
				m, err := store.LoadSubdomainMap(args[0], log)
				if err != nil {
					return err
				}
				input = m
			}

			if concurrency <= 0 {
				concurrency = a.cfg.Scan.Concurrency
			}
			a.cancel.Reset()

			if !a.silent {
				output.WriteHeader(a.stderr, a.noColor)
			}
			a.progress.Stage(1, 1, "Searching certificates...")

			client := a.crtshClient()
			result := engine.ScanCertificates(cmd.Context(), engine.ScanConfig{
				Concurrency: concurrency,
				Logger:      entry,
			}, input, client, log, a.progressSink("certs"), a.cancel)
			a.progress.Complete()

			if outPath != "" {
				if err := store.SaveCertificates(result, outPath); err != nil {
					return err
				}
				a.progress.Log(engine.Successf("Certificates saved to %s", outPath))
			}

			if details != "" {
				records := engine.FetchCertificateDetails(cmd.Context(), uniqueIDs(result), client, log,
					a.progressSink("details"), a.cancel)
				if err := writeJSONFile(details, records); err != nil {
					return err
				}
				a.progress.Log(engine.Successf("Saved %d certificate details to %s", len(records), details))
			}

			if jsonOutput {
				return output.WriteJSON(a.stdout, result)
			}
			output.WriteCertificateTable(a.stdout, result, a.noColor)
			output.WriteScanSummary(a.stdout, result, a.progress.Count(engine.SeverityError), a.noColor)
			return nil
		},
	}

	cmd.Flags().BoolVar(&tree, "tree", false, "Input is a domain-tree file; scan its active subdomains")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Save the certificate map to this JSON file")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the certificate map as JSON to stdout")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Concurrent lookups (default: scan.concurrency)")
	cmd.Flags().StringVar(&details, "details", "", "Also fetch every certificate's details into this JSON file")

	return cmd
}

func newCertCmd(a *app) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "cert <id>...",
		Short: "Fetch the details of certificates by crt.sh ID",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, _ := a.scanLog("cert")
			a.cancel.Reset()

			records := engine.FetchCertificateDetails(cmd.Context(), args, a.crtshClient(), log,
				a.progressSink("details"), a.cancel)
			a.progress.Complete()

			if jsonOutput {
				if err := output.WriteJSON(a.stdout, records); err != nil {
					return err
				}
			} else {
				for _, rec := range records {
					fmt.Fprintf(a.stdout, "=== %s ===\n%s\n\n", rec.ID, rec.Details)
				}
			}

			if len(records) < len(args) {
				return errors.New("some certificates could not be fetched")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the certificates as JSON")
	return cmd
}

func uniqueIDs(result engine.ScanResult) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, list := range result {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids
}

func writeJSONFile(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := output.WriteJSON(f, v); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
