package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lndambition2025-ops/fiscops/internal/api"
	"github.com/lndambition2025-ops/fiscops/internal/app"
	"github.com/lndambition2025-ops/fiscops/internal/auth"
	"github.com/lndambition2025-ops/fiscops/internal/db"
	"github.com/lndambition2025-ops/fiscops/internal/mcpserver"
	"github.com/lndambition2025-ops/fiscops/internal/report"
	"github.com/lndambition2025-ops/fiscops/internal/scoring"
	"github.com/lndambition2025-ops/fiscops/internal/store"
	"github.com/lndambition2025-ops/fiscops/internal/syncer"

	tea "github.com/charmbracelet/bubbletea"
)

// reportCmd exports the one-page report.
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write the one-page PDF report of the center",
	RunE:  runReport,
}

// serveCmd serves the read-only HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the portfolio over HTTP",
	Long: `Serves a read-only JSON API over the center portfolio:

  GET /env                   boot configuration script
  GET /api/totals            portfolio totals
  GET /api/priorities?n=     ranked priorities
  GET /api/segments          per-IFU aggregates
  GET /api/taxpayers         filtered page (q, ifu, status, page)
  GET /api/taxpayers/{id}    one dossier
  GET /api/report.pdf        one-page report`,
	RunE: runServe,
}

// mcpCmd serves MCP tools on stdio.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose the portfolio to MCP clients over stdio",
	RunE:  runMCP,
}

// seedCmd writes a demo dataset.
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill the center with a synthetic demo portfolio",
	RunE:  runSeed,
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := boot(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	sync := syncer.New(rt.backend, syncer.RealScheduler{}, cfg.Debounce(), logger)
	defer sync.Close()

	var provider auth.Provider
	if rt.db != nil {
		provider = auth.NewSQLProvider(rt.db, rt.kv, cfg.RemoteKey)
	}

	rng := newRand()
	model := app.New(app.Options{
		Settings: rt.settings,
		Mode:     cfg.Mode(),
		CenterID: rt.centerID,
		Load: func(ctx context.Context) (db.Dataset, error) {
			return store.LoadOrSeed(ctx, rt.backend, rt.settings, rng, logger)
		},
		Sync:      sync,
		Auth:      provider,
		ExportDir: cfg.ExportDir,
		Log:       logger,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	rt, err := boot(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	ds, err := store.LoadOrSeed(ctx, rt.backend, rt.settings, newRand(), logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "warning: using demo data:", err)
	}
	totals := scoring.ComputeTotals(ds.Taxpayers, rt.settings.Thresholds)
	pr := scoring.TopPriorities(ds.Taxpayers, rt.settings.Index, scoring.DefaultTopN)
	doc := report.Build(rt.settings, totals, pr)

	if text, _ := cmd.Flags().GetBool("text"); text {
		for _, line := range doc.Lines() {
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	}

	dir, _ := cmd.Flags().GetString("output")
	if dir == "" {
		dir = cfg.ExportDir
	}
	path, err := writeReport(dir, rt.centerID, doc)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func writeReport(dir, centerID string, doc report.Document) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, report.Filename(centerID))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	if err := report.WritePDF(f, doc); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	rt, err := boot(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	primeDataset(ctx, rt)
	addr, _ := cmd.Flags().GetString("addr")
	srv := api.New(rt.settings, rt.backend, rt.centerID, api.Env{URL: cfg.RemoteURL, Key: cfg.RemoteKey}, logger)
	return srv.ListenAndServe(ctx, addr)
}

func runMCP(cmd *cobra.Command, args []string) error {
	rt, err := boot(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()
	primeDataset(cmd.Context(), rt)
	return mcpserver.New(rt.settings, rt.backend, logger).ServeStdio(version)
}

// primeDataset loads the dataset once before readers start, so an empty
// local store is seeded by a single writer.
func primeDataset(ctx context.Context, rt *runtime) {
	if _, err := rt.backend.Load(ctx); err != nil {
		rt.log.Warn("initial load failed", zap.Error(err))
	}
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	rt, err := boot(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	force, _ := cmd.Flags().GetBool("force")
	n, err := seedCenter(ctx, rt, force)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d contribuables écrits pour %s (%s)\n", n, rt.centerID, cfg.Mode())
	return nil
}

// seedCenter writes a synthetic portfolio unless the center already holds
// taxpayers and force is unset.
func seedCenter(ctx context.Context, rt *runtime, force bool) (int, error) {
	if !force {
		existing, err := rt.backend.Load(ctx)
		if err == nil && len(existing.Taxpayers) > 0 {
			return 0, fmt.Errorf("center %s already has %d taxpayers (use --force)", rt.centerID, len(existing.Taxpayers))
		}
	}
	ds := store.Seed(newRand(), rt.settings)
	if err := rt.backend.Save(ctx, ds); err != nil {
		return 0, fmt.Errorf("save seed: %w", err)
	}
	rt.log.Info("seeded center", zap.String("center", rt.centerID), zap.Int("taxpayers", len(ds.Taxpayers)))
	return len(ds.Taxpayers), nil
}
