// Package main provides the nornictrav CLI entry point.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/orneryd/nornictrav/pkg/config"
	"github.com/orneryd/nornictrav/pkg/event"
	"github.com/orneryd/nornictrav/pkg/plan"
	"github.com/orneryd/nornictrav/pkg/storage"
	"github.com/orneryd/nornictrav/pkg/traversal"
)

var (
	version   = "0.1.0"
	commit    = "dev"
	buildTime = "unknown" // Set via ldflags: -X main.buildTime=$(date +%Y%m%d-%H%M%S)
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "nornictrav",
		Short: "nornictrav - graph traversal engine with merge semantics",
		Long: `nornictrav compiles and runs graph traversal plans.

A plan is a YAML list of steps (inject, union, mergeV, mergeE, ...).
Plans are compiled by traversal strategies, then run against an
in-memory or Badger-backed graph store.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", getEnvStr("NORNICTRAV_CONFIG", ""), "Config file (default: search standard locations)")
	rootCmd.PersistentFlags().String("engine", "", "Storage engine: memory or badger (overrides config)")
	rootCmd.PersistentFlags().String("data-dir", "", "Badger data directory (overrides config)")
	rootCmd.PersistentFlags().Bool("in-memory", false, "Run Badger without touching disk")
	rootCmd.PersistentFlags().String("mode", "", "Traversal mode: standard or linear (overrides config and plan)")
	rootCmd.PersistentFlags().StringSlice("disable-strategy", nil, "Strategy to remove from the default set (repeatable)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Log mutation events and strategy rewrites")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("nornictrav v%s (%s) built %s\n", version, commit, buildTime)
		},
	})

	runCmd := &cobra.Command{
		Use:   "run <plan.yaml>",
		Short: "Run a plan and print its results",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}
	runCmd.Flags().Bool("paths", false, "Print each result's path instead of its value")
	runCmd.Flags().Bool("metrics", getEnvBool("NORNICTRAV_METRICS_ENABLED", false), "Print merge and strategy metrics after the run")
	rootCmd.AddCommand(runCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "explain <plan.yaml>",
		Short: "Show a plan before and after strategies",
		Args:  cobra.ExactArgs(1),
		RunE:  runExplain,
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and environment, then applies any flag
// the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.FindConfigFile()
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("engine") {
		cfg.Storage.Engine, _ = flags.GetString("engine")
	}
	if flags.Changed("data-dir") {
		cfg.Storage.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("in-memory") {
		cfg.Storage.InMemory, _ = flags.GetBool("in-memory")
	}
	if flags.Changed("mode") {
		cfg.Traversal.Mode, _ = flags.GetString("mode")
	}
	if flags.Changed("disable-strategy") {
		cfg.Traversal.DisabledStrategies, _ = flags.GetStringSlice("disable-strategy")
	}
	if flags.Changed("verbose") {
		cfg.Logging.Verbose, _ = flags.GetBool("verbose")
	}
	if flags.Changed("metrics") {
		cfg.Metrics.Enabled, _ = flags.GetBool("metrics")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	paths, _ := cmd.Flags().GetBool("paths")
	return runPlan(cmd.Context(), cfg, args[0], cmd.OutOrStdout(), cmd.Flags().Changed("mode"), paths)
}

func runExplain(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return explainPlan(cmd.Context(), cfg, args[0], cmd.OutOrStdout(), cmd.Flags().Changed("mode"))
}

// session is a store plus the traversal options derived from the config.
type session struct {
	store    storage.Engine
	registry *prometheus.Registry
	opts     []traversal.Option
}

func openSession(cfg *config.Config) (*session, error) {
	var store storage.Engine
	switch cfg.Storage.Engine {
	case config.EngineBadger:
		engine, err := storage.NewBadgerEngineWithOptions(storage.BadgerOptions{
			DataDir:    cfg.Storage.DataDir,
			InMemory:   cfg.Storage.InMemory,
			SyncWrites: cfg.Storage.SyncWrites,
			LowMemory:  cfg.Storage.LowMemory,
		})
		if err != nil {
			return nil, err
		}
		store = engine
	default:
		store = storage.NewMemoryEngine()
	}
	log.Printf("[nornictrav] %s", cfg)

	mode, err := traversal.ParseMode(cfg.Traversal.Mode)
	if err != nil {
		store.Close()
		return nil, err
	}
	strategies := traversal.DefaultStrategies().Remove(cfg.Traversal.DisabledStrategies...)

	var sink event.Sink = event.Nop{}
	if cfg.Logging.Verbose {
		sink = event.LogSink{}
	}

	s := &session{
		store: store,
		opts: []traversal.Option{
			traversal.WithStore(store),
			traversal.WithSink(sink),
			traversal.WithMode(mode),
			traversal.WithStrategies(strategies),
			traversal.WithVerbose(cfg.Logging.Verbose),
		},
	}
	if cfg.Metrics.Enabled {
		s.registry = prometheus.NewRegistry()
		s.opts = append(s.opts, traversal.WithMetrics(traversal.NewMetrics(s.registry, cfg.Metrics.Namespace)))
	}
	return s, nil
}

// build loads the plan. forceMode makes the configured mode win over a mode
// set in the plan file.
func (s *session) build(path string, cfg *config.Config, forceMode bool) (*traversal.Traversal, error) {
	p, err := plan.Load(path)
	if err != nil {
		return nil, err
	}
	if forceMode {
		p.Mode = cfg.Traversal.Mode
	}
	return p.Build(s.opts...)
}

func runPlan(ctx context.Context, cfg *config.Config, path string, out io.Writer, forceMode, paths bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer s.store.Close()

	t, err := s.build(path, cfg, forceMode)
	if err != nil {
		return err
	}
	results, err := t.Traversers(ctx)
	if err != nil {
		return err
	}
	for _, r := range results {
		if paths {
			fmt.Fprintln(out, r.Path())
		} else {
			fmt.Fprintln(out, r.Value)
		}
	}

	nodes, _ := s.store.NodeCount()
	edges, _ := s.store.EdgeCount()
	log.Printf("[nornictrav] %d result(s), store has %d node(s) and %d edge(s)", len(results), nodes, edges)

	if s.registry != nil {
		return printMetrics(out, s.registry)
	}
	return nil
}

func explainPlan(ctx context.Context, cfg *config.Config, path string, out io.Writer, forceMode bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer s.store.Close()

	t, err := s.build(path, cfg, forceMode)
	if err != nil {
		return err
	}
	ex, err := t.Explain(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(out, ex)
	return err
}

// printMetrics writes counters and histogram totals as name{labels} value.
func printMetrics(out io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+strconv.Quote(lp.GetValue()))
			}
			name := mf.GetName() + "{" + strings.Join(labels, ",") + "}"
			switch {
			case m.GetCounter() != nil:
				lines = append(lines, fmt.Sprintf("%s %g", name, m.GetCounter().GetValue()))
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				lines = append(lines, fmt.Sprintf("%s count=%d sum=%gs", name, h.GetSampleCount(), h.GetSampleSum()))
			}
		}
	}
	sort.Strings(lines)
	for _, line := range lines {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}

func getEnvStr(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}
