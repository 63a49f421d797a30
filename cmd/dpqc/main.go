// Command dpqc evaluates a battery of data-quality checks against a FHIR
// server and releases each result under differential privacy, subject to a
// total epsilon budget. Business logic lives in the internal packages; this
// layer parses flags and wires dependencies.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"dpqc/internal/audit"
	"dpqc/internal/check"
	"dpqc/internal/check/cql"
	"dpqc/internal/check/native"
	"dpqc/internal/engine"
	"dpqc/internal/fhir"
	"dpqc/internal/platform/config"
	"dpqc/internal/platform/httpserver"
	"dpqc/internal/platform/logger"
	"dpqc/internal/platform/metrics"
	"dpqc/internal/privacy"
	"dpqc/internal/report"
	httpapi "dpqc/internal/transport/http"
)

type options struct {
	baseURL      string
	dir          string
	subjectType  string
	reportType   string
	epsilon      float64
	totalEpsilon float64
	configPath   string
	reportPath   string
	serveAddr    string
	auditDSN     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:          "dpqc -d DIRECTORY [flags] BASE_URL",
		Short:        "Run differentially private quality checks against a FHIR server",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.baseURL = args[0]
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.dir, "dir", "d", "", "directory containing .cql files")
	cmd.Flags().StringVarP(&opts.subjectType, "subject-type", "t", "Patient", "subject type (e.g. Patient, Specimen)")
	cmd.Flags().StringVarP(&opts.reportType, "report-type", "r", "population", "report type: population or subject-list")
	cmd.Flags().Float64VarP(&opts.epsilon, "epsilon", "e", 1.0, "differential privacy epsilon per check")
	cmd.Flags().Float64Var(&opts.totalEpsilon, "total-epsilon", 10.0, "total epsilon budget for the run")
	cmd.Flags().StringVar(&opts.configPath, "config", "", "YAML site profile for the native checks")
	cmd.Flags().StringVar(&opts.reportPath, "report", "", "HTML report path (default from profile)")
	cmd.Flags().StringVar(&opts.serveAddr, "serve", "", "serve the report and metrics on this address after the run")
	cmd.Flags().StringVar(&opts.auditDSN, "audit-dsn", "", "PostgreSQL DSN for the audit trail")
	_ = cmd.MarkFlagRequired("dir")

	return cmd
}

func run(ctx context.Context, opts options) error {
	log := logger.New()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.reportPath != "" {
		cfg.ReportPath = opts.reportPath
	}
	if opts.auditDSN != "" {
		cfg.AuditDSN = opts.auditDSN
	}

	mode, err := check.ParseReportMode(opts.reportType)
	if err != nil {
		return err
	}
	cutoff, err := cfg.CutoffTime(time.Now())
	if err != nil {
		return err
	}

	client := fhir.NewClient(opts.baseURL, fhir.WithPageSize(cfg.PageSize))
	noise := privacy.NewMechanism(rand.NewSource(time.Now().UnixNano()))

	checks, err := cql.Discover(opts.dir, opts.epsilon, client, noise)
	if err != nil {
		return err
	}
	checks = append(checks, native.All(native.Config{
		IdentifierSystem:   cfg.IdentifierSystem,
		SampleDiagnosisURL: cfg.SampleDiagnosisURL,
		StaleCutoff:        cutoff,
	}, opts.epsilon, client, noise)...)

	registry, err := check.NewRegistry(checks...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks := engine.MultiSink{engine.NewLogSink(log)}

	var workers errgroup.Group
	if cfg.AuditDSN != "" {
		store, err := audit.OpenPostgres(ctx, cfg.AuditDSN)
		if err != nil {
			return err
		}
		defer store.Close()

		auditSink, inbox := audit.NewSink(256)
		defer func() {
			auditSink.Close()
			if err := workers.Wait(); err != nil {
				log.Warn("audit trail incomplete", "error", err)
			}
		}()

		worker := audit.NewWorker(store, inbox)
		// The worker gets its own context so the trail flushes even when the
		// run is aborted.
		workers.Go(func() error { return worker.Run(context.Background()) })
		sinks = append(sinks, auditSink)
	}

	eng := engine.New(registry, sinks, metrics.New(nil))
	rep, err := eng.Run(ctx, engine.Params{
		SubjectType: opts.subjectType,
		Mode:        mode,
		Epsilon:     opts.epsilon,
		TotalBudget: opts.totalEpsilon,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}

	if err := report.SaveHTML(cfg.ReportPath, rep, cfg.TotalSubjects); err != nil {
		return err
	}
	log.Info("report saved", "path", cfg.ReportPath, "totalEpsilonUsed", rep.TotalEpsilonUsed)

	if opts.serveAddr != "" {
		handler := httpapi.NewHandler(rep, cfg.TotalSubjects)
		srv := httpserver.New(opts.serveAddr, httpapi.NewRouter(handler))
		log.Info("serving report", "addr", opts.serveAddr)
		return httpserver.Serve(ctx, srv)
	}
	return nil
}
