package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"rpy-converter/internal/cache"
	"rpy-converter/internal/export"
	"rpy-converter/internal/filewalker"
	"rpy-converter/internal/parser"
	"rpy-converter/internal/trace"
	"rpy-converter/internal/worker"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func convertCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert <input> <output-dir>",
		Short: "Convert an .rpy file or a directory of scripts into JSON documents",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := setupContext()
			defer cancel()

			opts := convertOptions{
				parse:      a.parseOptions(cmd),
				workers:    a.cfg.WorkerCount,
				traceFile:  a.cfg.TraceFile,
				traceMaxMB: a.cfg.TraceMaxSizeMB,
			}
			if cmd.Flags().Changed("workers") {
				opts.workers, _ = cmd.Flags().GetInt("workers")
			}
			if cmd.Flags().Changed("trace") {
				opts.traceFile, _ = cmd.Flags().GetString("trace")
			}
			opts.validate, _ = cmd.Flags().GetBool("validate")

			if incremental, _ := cmd.Flags().GetBool("incremental"); incremental {
				pool, err := connectPostgres(ctx, a.cfg)
				if err != nil {
					return err
				}
				defer pool.Close()

				docs := cache.NewDocumentCache(pool)
				if err := docs.EnsureSchema(ctx); err != nil {
					return err
				}
				if err := docs.Preload(ctx); err != nil {
					log.Warn().Err(err).Msg("Failed to preload document cache")
				}
				opts.docs = docs
			}

			summary, err := runConvert(ctx, args[0], args[1], opts)
			log.Info().
				Int("converted", summary.converted).
				Int("skipped", summary.skipped).
				Int("failed", summary.failed).
				Str("output", args[1]).
				Msg("Conversion complete")
			return err
		},
	}

	addParseFlags(cmd)
	cmd.Flags().String("trace", "", "Write a JSON-lines parse trace to this file")
	cmd.Flags().Int("workers", 0, "Number of files converted in parallel")
	cmd.Flags().Bool("validate", false, "Check every document against the block schema before writing")
	cmd.Flags().Bool("incremental", false, "Skip scripts unchanged since the last run (needs PostgreSQL)")

	return cmd
}

type convertOptions struct {
	parse      parser.Options
	workers    int
	validate   bool
	traceFile  string
	traceMaxMB int
	docs       *cache.DocumentCache
}

type convertSummary struct {
	converted int
	skipped   int
	failed    int
}

type convertOutcome struct {
	output  string
	blocks  int
	skipped bool
}

// runConvert converts every script under input into outputDir.
func runConvert(ctx context.Context, input, outputDir string, opts convertOptions) (convertSummary, error) {
	var summary convertSummary

	rpy := parser.NewRPYParser(opts.parse)
	if opts.traceFile != "" {
		tl := trace.NewFileLog(opts.traceFile, opts.traceMaxMB)
		defer func() {
			if err := tl.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close trace file")
			}
		}()
		rpy.WithTrace(tl.ForFile)
		log.Info().Str("path", opts.traceFile).Msg("Tracing parse")
	}

	w := filewalker.NewWalker(rpy)
	entries, err := w.Walk(input)
	if err != nil {
		return summary, fmt.Errorf("walk input: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return summary, fmt.Errorf("create output directory: %w", err)
	}

	log.Info().Int("files", len(entries)).Str("options", opts.parse.String()).Msg("Starting conversion")

	pool := worker.NewPool[filewalker.FileEntry, convertOutcome](opts.workers,
		func(ctx context.Context, entry filewalker.FileEntry) (convertOutcome, error) {
			return convertFile(ctx, w, entry, outputDir, opts)
		},
	)

	for _, job := range pool.Execute(ctx, entries) {
		switch {
		case job.Err != nil:
			if !errors.Is(job.Err, context.Canceled) {
				log.Error().Err(job.Err).Str("file", job.Input.Path).Msg("Conversion failed")
			}
			summary.failed++
		case job.Result.skipped:
			log.Debug().Str("file", job.Input.Path).Msg("Unchanged, skipped")
			summary.skipped++
		default:
			log.Debug().
				Str("input", job.Input.Path).
				Str("output", job.Result.output).
				Int("blocks", job.Result.blocks).
				Dur("took", job.Duration).
				Msg("File converted")
			summary.converted++
		}
	}

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	if summary.failed > 0 {
		return summary, fmt.Errorf("%d of %d files failed to convert", summary.failed, len(entries))
	}
	return summary, nil
}

func convertFile(ctx context.Context, w *filewalker.Walker, entry filewalker.FileEntry, outputDir string, opts convertOptions) (convertOutcome, error) {
	outPath, err := export.OutputPath(entry.Root, outputDir, entry.Path)
	if err != nil {
		return convertOutcome{}, err
	}

	rel := relPath(entry)
	if opts.docs != nil {
		content, err := os.ReadFile(entry.Path)
		if err != nil {
			return convertOutcome{}, fmt.Errorf("read %s: %w", rel, err)
		}
		if opts.docs.Unchanged(rel, parser.ContentHash(content), opts.parse.String()) {
			if _, err := os.Stat(outPath); err == nil {
				return convertOutcome{output: outPath, skipped: true}, nil
			}
		}
	}

	result, err := w.ParseFile(entry)
	if err != nil {
		return convertOutcome{}, err
	}

	if opts.validate {
		if err := export.Validate(result.Document); err != nil {
			return convertOutcome{}, fmt.Errorf("validate %s: %w", rel, err)
		}
	}

	if err := export.WriteJSON(outPath, result.Document); err != nil {
		return convertOutcome{}, err
	}

	if opts.docs != nil {
		rec := cache.Record{
			Path:        rel,
			ContentHash: result.ContentHash,
			Options:     opts.parse.String(),
			Document:    result.Document,
		}
		if err := opts.docs.Set(ctx, rec); err != nil {
			log.Warn().Err(err).Str("file", rel).Msg("Failed to record converted document")
		}
	}

	return convertOutcome{output: outPath, blocks: len(result.Document)}, nil
}
