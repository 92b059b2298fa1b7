package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vulnverified/certscan/internal/config"
	"github.com/vulnverified/certscan/internal/engine"
	"github.com/vulnverified/certscan/internal/logger"
	"github.com/vulnverified/certscan/internal/metrics"
	"github.com/vulnverified/certscan/internal/output"
	"github.com/vulnverified/certscan/internal/recon"
	"golang.org/x/time/rate"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	output.Version = version

	a := newApp(os.Stdout, os.Stderr)

	// Set up context with signal handling. The first Ctrl+C stops new
	// lookups, the second aborts in-flight ones.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nInterrupted, finishing in-flight lookups (Ctrl+C again to abort)...")
		a.cancel.Cancel()
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nAborting...")
		cancel()
	}()

	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app carries what every subcommand shares.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath  string
	verbose     bool
	silent      bool
	noColor     bool
	logFormat   string
	metricsAddr string

	cfg      *config.Config
	log      *logger.Logger
	metrics  *metrics.Metrics
	progress *output.Progress
	cancel   *engine.Canceller

	// transferer overrides the configured AXFR backend.
	transferer recon.Transferer
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout: stdout,
		stderr: stderr,
		cancel: engine.NewCanceller(),
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "certscan",
		Short: "Certificate transparency and DNS recon",
		Long:  "Certificate discovery through crt.sh, nameserver resolution, zone transfer checks and DNS record queries.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Config file (default: ./config/certscan.yaml if present)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Show info-level scan lines")
	flags.BoolVar(&a.silent, "silent", false, "Results only, no progress")
	flags.BoolVar(&a.noColor, "no-color", false, "Disable terminal colors")
	flags.StringVar(&a.logFormat, "log-format", "", "Diagnostic log format: text or json")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address")

	rootCmd.AddCommand(
		newCertsCmd(a),
		newCertCmd(a),
		newNSCmd(a),
		newAXFRCmd(a),
		newRecordsCmd(a),
		newValidateCmd(a),
		newShowCmd(a),
	)

	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)
	rootCmd.Version = version
	rootCmd.SetVersionTemplate("certscan {{.Version}}\n")

	return rootCmd
}

// stopRequested reports whether the cancel handle is raised and, if so, logs
// the warning the certificate scan uses.
func (a *app) stopRequested(log engine.LogSink) bool {
	if !a.cancel.Cancelled() {
		return false
	}
	log(engine.Warnf("Scan stopped by user"))
	return true
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if a.metricsAddr != "" {
		cfg.Metrics.Addr = a.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	// Respect NO_COLOR env var.
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		a.noColor = true
	}

	level := logger.ParseLevel(cfg.Log.Level)
	if a.verbose && level < logrus.DebugLevel {
		level = logrus.DebugLevel
	}
	a.log = logger.New(level, cfg.Log.Format == "json")
	a.log.SetOutput(a.stderr)
	if cfg.File != "" {
		a.log.Debugf("Loaded config file: %s", cfg.File)
	}

	a.metrics = metrics.New()
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := a.metrics.Serve(cmd.Context(), cfg.Metrics.Addr); err != nil {
				a.log.WithError(err).Warn("Metrics server stopped")
			}
		}()
	}

	// JSON diagnostics replace the interactive progress output.
	quiet := a.silent || cfg.Log.Format == "json"
	a.progress = output.NewProgress(a.stderr, a.verbose, quiet, a.noColor)
	return nil
}

// scanLog returns the sink every scan writes to, tagged with a fresh scan id.
func (a *app) scanLog(kind string) (engine.LogSink, *logrus.Entry) {
	entry := a.log.WithScan(kind, uuid.NewString())
	progressSink := a.progress.LogSink()
	if a.cfg.Log.Format != "json" {
		return progressSink, entry
	}
	jsonSink := logger.Sink(entry)
	return func(e engine.LogEntry) {
		progressSink(e)
		jsonSink(e)
	}, entry
}

func (a *app) progressSink(kind string) engine.ProgressSink {
	report := a.progress.ProgressSink()
	return func(pct int) {
		report(pct)
		a.metrics.SetProgress(kind, pct)
	}
}

func (a *app) crtshClient() *recon.CrtshClient {
	c := recon.NewCrtshClient(a.cfg.Crtsh.UserAgent)
	c.BaseURL = a.cfg.Crtsh.BaseURL
	c.Timeout = a.cfg.Crtsh.Timeout
	c.Metrics = a.metrics
	if a.cfg.Crtsh.Rate > 0 {
		c.Limiter = rate.NewLimiter(rate.Limit(a.cfg.Crtsh.Rate), a.cfg.Crtsh.Burst)
	}
	return c
}

func (a *app) dnsClient() *recon.DNSClient {
	return recon.NewDNSClient(a.cfg.DNS.Servers, a.cfg.DNS.Timeout)
}

func (a *app) transferRunner() *recon.ZoneTransferRunner {
	var t recon.Transferer = &recon.DigTransferer{
		Path:   a.cfg.AXFR.Tool,
		Runner: &recon.ExecRunner{Logger: a.log.Logger},
	}
	switch {
	case a.transferer != nil:
		t = a.transferer
	case a.cfg.AXFR.Native:
		t = &recon.NativeTransferer{}
	}
	return &recon.ZoneTransferRunner{
		LogDir:     a.cfg.DNS.LogDir,
		Transferer: t,
		Timeout:    a.cfg.AXFR.Timeout,
		Metrics:    a.metrics,
	}
}
