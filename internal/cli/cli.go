package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"rpy-converter/internal/config"
	"rpy-converter/internal/filewalker"
	"rpy-converter/internal/parser"
	"rpy-converter/internal/worker"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Execute runs the CLI application.
func Execute() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries state shared by every subcommand of one invocation.
type app struct {
	cfg     *config.Config
	verbose bool
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "rpyconv",
		Short: "Convert Ren'Py scripts into structured JSON block documents",
		Long: `Parses .rpy visual-novel scripts into ordered block documents and
writes them as JSON. Also checks story flow, loads it into Neo4j and
indexes dialogue for similarity search.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(convertCmd(a))
	rootCmd.AddCommand(checkCmd(a))
	rootCmd.AddCommand(graphCmd(a))
	rootCmd.AddCommand(indexCmd(a))
	rootCmd.AddCommand(searchCmd(a))

	return rootCmd
}

func (a *app) init() error {
	a.cfg = config.Load()

	level, err := zerolog.ParseLevel(a.cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", a.cfg.LogLevel, err)
	}
	if a.verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

// parseOptions merges the parse flags of cmd over the configuration.
func (a *app) parseOptions(cmd *cobra.Command) parser.Options {
	opts := parser.Options{SkipComments: a.cfg.SkipComments, SkipBlankLines: a.cfg.SkipBlankLines}
	if f := cmd.Flags().Lookup("skip-comments"); f != nil && f.Changed {
		opts.SkipComments, _ = cmd.Flags().GetBool("skip-comments")
	}
	if f := cmd.Flags().Lookup("skip-blank-lines"); f != nil && f.Changed {
		opts.SkipBlankLines, _ = cmd.Flags().GetBool("skip-blank-lines")
	}
	return opts
}

func addParseFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("skip-comments", false, "Drop lines starting with #")
	cmd.Flags().Bool("skip-blank-lines", false, "Drop empty lines")
}

// setupContext creates a cancellable context with signal handling.
func setupContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			log.Warn().Msg("Received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

func connectPostgres(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping PostgreSQL: %w", err)
	}
	log.Info().Msg("Connected to PostgreSQL")
	return pool, nil
}

func connectNeo4j(ctx context.Context, cfg *config.Config) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""))
	if err != nil {
		return nil, fmt.Errorf("connect Neo4j: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("verify Neo4j connectivity: %w", err)
	}
	log.Info().Msg("Connected to Neo4j")
	return driver, nil
}

// parsedScript is one successfully parsed script with its path relative to
// the walk root.
type parsedScript struct {
	rel    string
	result *parser.ParseResult
}

// parseAll discovers and parses every script under input. Parse failures
// are logged; the error reports how many files failed.
func parseAll(ctx context.Context, input string, opts parser.Options, workers int) ([]parsedScript, error) {
	w := filewalker.NewWalker(parser.NewRPYParser(opts))
	entries, err := w.Walk(input)
	if err != nil {
		return nil, fmt.Errorf("walk input: %w", err)
	}

	log.Info().Int("files", len(entries)).Str("input", input).Msg("Parsing scripts")

	pool := worker.NewPool[filewalker.FileEntry, *parser.ParseResult](workers, func(ctx context.Context, entry filewalker.FileEntry) (*parser.ParseResult, error) {
		return w.ParseFile(entry)
	})

	var scripts []parsedScript
	failed := 0
	for _, job := range pool.Execute(ctx, entries) {
		if job.Err != nil {
			log.Error().Err(job.Err).Str("file", job.Input.Path).Msg("Parse failed")
			failed++
			continue
		}
		scripts = append(scripts, parsedScript{rel: relPath(job.Input), result: job.Result})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failed > 0 {
		return scripts, fmt.Errorf("%d of %d files failed to parse", failed, len(entries))
	}
	return scripts, nil
}

// relPath is the slash-separated path of entry below its walk root.
func relPath(entry filewalker.FileEntry) string {
	rel, err := filepath.Rel(entry.Root, entry.Path)
	if err != nil {
		return filepath.ToSlash(entry.Path)
	}
	return filepath.ToSlash(rel)
}
