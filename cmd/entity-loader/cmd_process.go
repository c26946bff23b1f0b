package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"entity-loader/internal/config"
	"entity-loader/internal/dbpool"
	"entity-loader/internal/flow"
	"entity-loader/internal/mapping"
	"entity-loader/internal/metrics"
	"entity-loader/internal/report"
	"entity-loader/internal/schema"
	"entity-loader/internal/source"
	"entity-loader/internal/store"
	"entity-loader/internal/transform"
)

type processFlags struct {
	input     string
	format    string
	delimiter string
	dsn       string
	memory    bool

	chunkSize   int
	errorPolicy string
	skipEmpty   bool
	truncate    bool

	report      string
	metricsFile string

	answers     map[string]string
	saveMapping bool
}

func newProcessCmd(g *globalFlags) *cobra.Command {
	f := &processFlags{}

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Load every row of an input file",
		Long: `Load every row of an input file through the mapping document.

Settings are taken from the built-in defaults, the --config file, the
environment, the mapping's flow_config and finally the flags, each
overriding the previous. Without --dsn or DATABASE_URL, or with --memory,
records are kept in memory and only the report is produced.

Interactive transforms (date without a layout, map_values without pairs)
are asked for on stdin before the first row is read, unless every answer
is given with --answer.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProcess(cmd, g, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.input, "input", "i", "", "input file")
	flags.StringVar(&f.format, "format", "", "input format: csv|tsv|json (default: by extension)")
	flags.StringVar(&f.delimiter, "delimiter", "", "CSV delimiter (default: mapping source_schema, then ',')")
	flags.StringVar(&f.dsn, "dsn", "", "PostgreSQL URL (env: DATABASE_URL)")
	flags.BoolVar(&f.memory, "memory", false, "use the in-memory store")
	flags.IntVar(&f.chunkSize, "chunk-size", 0, "progress interval in rows")
	flags.StringVar(&f.errorPolicy, "error-policy", "", "stop|continue")
	flags.BoolVar(&f.skipEmpty, "skip-empty-rows", true, "skip rows whose fields are all blank")
	flags.BoolVar(&f.truncate, "truncate", true, "truncate values longer than the attribute limit")
	flags.StringVar(&f.report, "report", "text", "report format: text|json|none")
	flags.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile (env: METRICS_FILE)")
	flags.StringToStringVar(&f.answers, "answer", nil, "answer for an interactive transform, e.g. date=Y-m-d or Book.published_at/date=d.m.Y")
	flags.BoolVar(&f.saveMapping, "save-mapping", false, "write interactive answers back to the mapping document")

	return cmd
}

func runProcess(cmd *cobra.Command, g *globalFlags, f *processFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if f.input == "" {
		return fmt.Errorf("--input is required")
	}

	switch f.report {
	case "text", "json", "none":
	default:
		return fmt.Errorf("unsupported report format %q", f.report)
	}

	cfg, err := config.Load(g.config)
	if err != nil {
		return err
	}

	log := cfg.Logger()

	docs, err := loadDocuments(g)
	if err != nil {
		return err
	}

	transforms := transform.NewRegistry()

	if err := resolveInteractive(ctx, cmd, g, f, docs.def, transforms); err != nil {
		return err
	}

	opts, err := runOptions(cmd, cfg, f, docs.def)
	if err != nil {
		return err
	}

	st, closeStore, err := openStore(ctx, cfg, f, docs.reg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	src, closer, err := source.Open(f.input, f.format, csvOptions(f, docs.def))
	if err != nil {
		return err
	}
	defer closer.Close()

	res := flow.New(docs.reg, transforms, st, log, opts).Process(ctx, docs.def, src)

	if err := writeReport(cmd.OutOrStdout(), f.report, res); err != nil {
		return err
	}

	metricsFile := cfg.MetricsFile
	if cmd.Flags().Changed("metrics-file") {
		metricsFile = f.metricsFile
	}

	if metricsFile != "" {
		if err := metrics.WriteTextfile(metricsFile); err != nil {
			log.WithError(err).Warn("writing metrics textfile")
		}
	}

	if res.ExitCode() != 0 {
		if f.report == "none" {
			return fmt.Errorf("run failed: %w", res.Err)
		}

		return errRunFailed
	}

	return nil
}

// runOptions layers config, the mapping's flow_config and the flags that
// were set explicitly.
func runOptions(cmd *cobra.Command, cfg *config.Config, f *processFlags, def *mapping.MappingDefinition) (flow.Options, error) {
	opts := flow.Options{
		ChunkSize:          cfg.ChunkSize,
		ErrorPolicy:        mapping.ErrorPolicy(cfg.ErrorPolicy),
		SkipEmptyRows:      cfg.SkipEmptyRows,
		TruncateLongFields: cfg.TruncateLongFields,
	}.WithFlow(def.Flow)

	flags := cmd.Flags()

	if flags.Changed("chunk-size") {
		if f.chunkSize < 1 {
			return opts, fmt.Errorf("--chunk-size must be at least 1, got %d", f.chunkSize)
		}

		opts.ChunkSize = f.chunkSize
	}

	if flags.Changed("error-policy") {
		p := mapping.ErrorPolicy(f.errorPolicy)
		if !p.IsValid() {
			return opts, fmt.Errorf("unsupported error policy %q", f.errorPolicy)
		}

		opts.ErrorPolicy = p
	}

	if flags.Changed("skip-empty-rows") {
		opts.SkipEmptyRows = f.skipEmpty
	}

	if flags.Changed("truncate") {
		opts.TruncateLongFields = f.truncate
	}

	return opts, nil
}

func openStore(
	ctx context.Context, cfg *config.Config, f *processFlags, reg *schema.Registry, log *logrus.Logger,
) (store.Store, func(), error) {
	dsn := cfg.DatabaseURL.Value()
	if f.dsn != "" {
		dsn = f.dsn
	}

	if f.memory || dsn == "" {
		log.Info("using in-memory store")

		return store.NewMemoryStore(reg), func() {}, nil
	}

	pool, err := dbpool.NewPool(ctx, dsn, dbpool.Options{
		MaxConns:         cfg.MaxConns,
		StatementTimeout: cfg.StatementTimeout,
	})
	if err != nil {
		return nil, nil, err
	}

	return store.NewPostgresStore(pool, reg, log), pool.Close, nil
}

func csvOptions(f *processFlags, def *mapping.MappingDefinition) source.CSVOptions {
	delim := f.delimiter
	if delim == "" && def.Source != nil {
		delim = def.Source.Delimiter
	}

	var opts source.CSVOptions

	if delim == `\t` {
		delim = "\t"
	}

	if r := []rune(delim); len(r) == 1 {
		opts.Delimiter = r[0]
	}

	return opts
}

func resolveInteractive(
	ctx context.Context,
	cmd *cobra.Command,
	g *globalFlags,
	f *processFlags,
	def *mapping.MappingDefinition,
	transforms *transform.Registry,
) error {
	if !mapping.NeedsInput(def, transforms) {
		return nil
	}

	var p transform.Prompter = transform.StaticAnswers(f.answers)
	if len(f.answers) == 0 {
		p = linePrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
	}

	if err := mapping.ResolveInteractive(ctx, def, transforms, p); err != nil {
		return err
	}

	if f.saveMapping {
		return mapping.WriteFile(def, g.mapping)
	}

	return nil
}

// linePrompter asks on w and reads one line per answer from r.
func linePrompter(r io.Reader, w io.Writer) transform.Prompter {
	scanner := bufio.NewScanner(r)

	return transform.PrompterFunc(func(_ context.Context, q transform.Question) (string, error) {
		fmt.Fprintf(w, "%s (%s on %s): ", q.Prompt, q.Transform, q.Column)

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", fmt.Errorf("reading answer: %w", err)
			}

			return "", fmt.Errorf("no answer for %s on %s", q.Transform, q.Column)
		}

		return strings.TrimSpace(scanner.Text()), nil
	})
}

func writeReport(w io.Writer, format string, res *flow.Result) error {
	r := report.Build(res)

	switch format {
	case "json":
		return r.WriteJSON(w)
	case "text":
		return r.WriteText(w)
	default:
		return nil
	}
}
