package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vulnverified/certscan/internal/engine"
	"github.com/vulnverified/certscan/internal/output"
	"github.com/vulnverified/certscan/internal/recon"
	"github.com/vulnverified/certscan/internal/store"
)

func newNSCmd(a *app) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "ns <domain>",
		Short: "List the nameservers of a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, _ := a.scanLog("ns")
			a.cancel.Reset()

			var hosts []string
			for e := range a.dnsClient().ResolveNameservers(cmd.Context(), args[0], a.progressSink("ns")) {
				log(e)
				if e.Severity == engine.SeveritySuccess {
					hosts = append(hosts, e.Message)
				}
			}
			a.progress.Complete()

			if len(hosts) == 0 {
				return fmt.Errorf("no nameservers found for %s", args[0])
			}
			if jsonOutput {
				return output.WriteJSON(a.stdout, hosts)
			}
			for _, h := range hosts {
				fmt.Fprintln(a.stdout, h)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the nameservers as JSON")
	return cmd
}

func newAXFRCmd(a *app) *cobra.Command {
	var (
		folder   string
		saveLogs bool
	)

	cmd := &cobra.Command{
		Use:   "axfr <domain>",
		Short: "Try a zone transfer against every nameserver of a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			domain, err := engine.NormalizeDomain(args[0])
			if err != nil {
				return err
			}
			if folder == "" {
				folder = store.SafeName(domain)
			}

			log, _ := a.scanLog("axfr")
			progress := a.progressSink("axfr")
			a.cancel.Reset()

			if !a.silent {
				output.WriteHeader(a.stderr, a.noColor)
			}

			a.progress.Stage(1, 2, "Resolving nameservers...")
			var nameservers []string
			for e := range a.dnsClient().ResolveNameservers(cmd.Context(), domain, progress) {
				log(e)
				if e.Severity == engine.SeveritySuccess {
					nameservers = append(nameservers, e.Message)
				}
			}
			if a.stopRequested(log) {
				a.progress.Complete()
				return nil
			}
			if len(nameservers) == 0 {
				a.progress.Complete()
				return fmt.Errorf("no nameservers found for %s", domain)
			}

			a.progress.Stage(2, 2, "Attempting zone transfers...")
			runner := a.transferRunner()
			var (
				attempt    int
				vulnerable []string
			)
			// Each attempt opens with one info entry, in nameserver order.
			for e := range runner.AttemptZoneTransfers(cmd.Context(), domain, nameservers, folder, progress) {
				log(e)
				switch e.Severity {
				case engine.SeverityInfo:
					attempt++
				case engine.SeveritySuccess:
					vulnerable = append(vulnerable, nameservers[attempt-1])
				}
				// Stop between nameservers; the running transfer still finishes.
				if e.Severity != engine.SeverityInfo && a.stopRequested(log) {
					break
				}
			}
			a.progress.Complete()

			fmt.Fprintf(a.stdout, "Transfer log: %s\n", runner.LogPath(folder))
			if saveLogs {
				path, err := store.SaveAllLogs(a.cfg.DNS.LogDir, a.progress.Transcript(), domain)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "Session log: %s\n", path)
			}

			output.WriteTransferSummary(a.stdout, domain, vulnerable, len(nameservers), a.noColor)
			return nil
		},
	}

	cmd.Flags().StringVar(&folder, "output-folder", "", "Log folder under dns.log_dir (default: the domain)")
	cmd.Flags().BoolVar(&saveLogs, "save-logs", false, "Also save the session log to save_all_results_<domain>.txt")
	return cmd
}

func newRecordsCmd(a *app) *cobra.Command {
	var (
		types      []string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "records <domain>",
		Short: "Query A, AAAA, MX, TXT and CNAME records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, _ := a.scanLog("records")
			client := a.dnsClient()
			a.cancel.Reset()

			if len(types) == 0 {
				types = []string{"A", "AAAA", "MX", "TXT", "CNAME"}
			}

			found := make(map[string][]string)
			var rows [][]string
			for _, name := range types {
				name = strings.ToUpper(strings.TrimSpace(name))
				qtype, ok := recon.RecordTypes[name]
				if !ok {
					return fmt.Errorf("unsupported record type %q", name)
				}
				if a.stopRequested(log) {
					break
				}
				for _, e := range client.LookupRecords(cmd.Context(), args[0], qtype) {
					if e.Severity != engine.SeveritySuccess {
						log(e)
						continue
					}
					found[name] = append(found[name], e.Message)
					rows = append(rows, []string{name, e.Message})
				}
			}

			if jsonOutput {
				return output.WriteJSON(a.stdout, found)
			}
			output.WriteRecordTable(a.stdout, rows, a.noColor)
			return nil
		},
	}

	supported := make([]string, 0, len(recon.RecordTypes))
	for name := range recon.RecordTypes {
		supported = append(supported, name)
	}
	sort.Strings(supported)

	cmd.Flags().StringSliceVarP(&types, "type", "t", nil, "Record types to query ("+strings.Join(supported, ", ")+")")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the records as JSON")
	return cmd
}
