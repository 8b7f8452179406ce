// Package main provides the ontologia CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/orneryd/ontologia/pkg/catalog"
	"github.com/orneryd/ontologia/pkg/config"
	"github.com/orneryd/ontologia/pkg/logging"
	"github.com/orneryd/ontologia/pkg/server"
	"github.com/orneryd/ontologia/pkg/storage"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ontologia",
		Short: "ontologia - read-only HTTP API over an OWL/RDF processor ontology",
		Long: `ontologia loads an OWL/RDF ontology (RDF/XML, Turtle or N-Triples) into an
in-memory or Badger-backed triple store and serves it over HTTP.

Endpoints:
  • /clases              classes declared in the ontology
  • /buscar?q=&clase=    search individuals by name
  • /procesador/{name}   every property of one individual
  • /sparql              SELECT queries`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().String("ontology", "", "Ontology file (overrides config)")
	rootCmd.PersistentFlags().String("format", "", fmt.Sprintf("Ontology format: %s, %s or %s (default: from extension)",
		storage.FormatRDFXML, storage.FormatTurtle, storage.FormatNTriples))
	rootCmd.PersistentFlags().String("engine", "", "Storage engine: memory or badger")
	rootCmd.PersistentFlags().String("data-dir", "", "Badger data directory (empty: in memory)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ontologia v%s (%s)\n", version, commit)
		},
	})

	// Serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
	serveCmd.Flags().String("host", "", "Address to bind")
	serveCmd.Flags().Int("port", 0, "HTTP port")
	rootCmd.AddCommand(serveCmd)

	// Inspect command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "inspect",
		Short: "Load the ontology and print a summary",
		RunE:  runInspect,
	})

	// Query command
	queryCmd := &cobra.Command{
		Use:   "query [sparql]",
		Short: "Run a SELECT query against the ontology",
		Long: `Run a SELECT query against the ontology and print the solutions as a table.
The prefixes onto: and : are bound to the ontology namespace.

Example:
  ontologia query 'SELECT ?s ?f WHERE { ?s a :Procesador ; :frecuencia_max_GHz ?f }'`,
		Args: cobra.MaximumNArgs(1),
		RunE: runQuery,
	}
	queryCmd.Flags().StringP("file", "f", "", "Read the query from a file ('-' for stdin)")
	queryCmd.Flags().Bool("short", true, "Print local names instead of full IRIs")
	rootCmd.AddCommand(queryCmd)

	return rootCmd
}

// loadConfig builds the configuration from file, environment and flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("ontology") {
		cfg.Ontology.Path, _ = flags.GetString("ontology")
	}
	if flags.Changed("format") {
		cfg.Ontology.Format, _ = flags.GetString("format")
	}
	if flags.Changed("engine") {
		cfg.Storage.Engine, _ = flags.GetString("engine")
	}
	if flags.Changed("data-dir") {
		cfg.Storage.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("host") {
		cfg.Server.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer logging.Install(logger)()

	logger.Info("starting ontologia",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Stringer("config", cfg),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	defer cat.Close()

	httpServer, err := server.New(cat, server.ConfigFrom(cfg.Server), logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	// Block until shutdown signal
	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("stopping server: %w", err)
	}
	logger.Info("server stopped", zap.Int64("requests", httpServer.Stats().RequestCount))
	return nil
}

// openQuiet opens the catalog for the one-shot commands, logging only
// warnings to stderr.
func openQuiet(cmd *cobra.Command) (*catalog.Catalog, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if !cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = "warn"
	}
	cfg.Logging.Format = "console"
	cfg.Logging.File = ""

	logger, err := logging.NewWithWriter(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Open(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, err
	}
	if st := cat.Status(); !st.Loaded {
		cat.Close()
		return nil, fmt.Errorf("loading %s: %s", st.Source, st.Error)
	}
	return cat, nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	cat, err := openQuiet(cmd)
	if err != nil {
		return err
	}
	defer cat.Close()

	ctx := cmd.Context()
	st := cat.Status()
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Source:      %s\n", st.Source)
	fmt.Fprintf(out, "Format:      %s\n", st.Format)
	fmt.Fprintf(out, "Engine:      %s\n", st.Engine)
	fmt.Fprintf(out, "Namespace:   %s\n", st.Namespace)
	fmt.Fprintf(out, "Triples:     %d\n", st.TripleCount)
	fmt.Fprintf(out, "Fingerprint: %s\n", st.Fingerprint)
	fmt.Fprintf(out, "Load time:   %s\n", st.LoadDuration)

	classes, err := cat.Classes(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nClasses (%d):\n", len(classes))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, class := range classes {
		listing, err := cat.Individuals(ctx, class)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "  %s\t%d individuals\n", class, len(listing.Names))
	}
	return tw.Flush()
}

func runQuery(cmd *cobra.Command, args []string) error {
	text, err := queryText(cmd, args)
	if err != nil {
		return err
	}

	cat, err := openQuiet(cmd)
	if err != nil {
		return err
	}
	defer cat.Close()

	res, err := cat.Query(cmd.Context(), text)
	if err != nil {
		return err
	}

	short, _ := cmd.Flags().GetBool("short")
	norm := catalog.Normalizer{Base: cat.Namespace()}
	out := cmd.OutOrStdout()

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(res.Vars, "\t"))
	for _, b := range res.Bindings {
		row := make([]string, len(res.Vars))
		for i, v := range res.Vars {
			term, ok := b[v]
			switch {
			case !ok:
				row[i] = "-"
			case short:
				row[i] = norm.Clean(term)
			default:
				row[i] = term.String()
			}
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d row(s)\n", res.Len())
	return nil
}

func queryText(cmd *cobra.Command, args []string) (string, error) {
	file, _ := cmd.Flags().GetString("file")
	switch {
	case file == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		return string(data), err
	case file != "":
		data, err := os.ReadFile(file)
		return string(data), err
	case len(args) == 1:
		return args[0], nil
	}
	return "", errors.New("a query argument or --file is required")
}
