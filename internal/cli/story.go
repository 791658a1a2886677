package cli

import (
	"context"
	"fmt"
	"io"

	"rpy-converter/internal/graph"
	"rpy-converter/internal/search"
	"rpy-converter/internal/textutil"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func checkCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <input>",
		Short: "Report missing jump targets, duplicate labels and unreferenced labels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := setupContext()
			defer cancel()

			scripts, err := parseAll(ctx, args[0], a.parseOptions(cmd), a.cfg.WorkerCount)
			if err != nil {
				return err
			}

			findings := graph.Check(mergeFlows(scripts))
			missing := printFindings(cmd.OutOrStdout(), findings)

			log.Info().Int("files", len(scripts)).Int("findings", len(findings)).Msg("Check complete")
			if missing > 0 {
				return fmt.Errorf("%d transfers to undefined labels", missing)
			}
			return nil
		},
	}
	addParseFlags(cmd)
	return cmd
}

func mergeFlows(scripts []parsedScript) *graph.Flow {
	flows := make([]*graph.Flow, 0, len(scripts))
	for _, s := range scripts {
		flows = append(flows, graph.BuildFlow(s.rel, s.result.Document))
	}
	return graph.Merge(flows...)
}

// printFindings writes one line per finding and returns how many are
// missing targets.
func printFindings(w io.Writer, findings []graph.Finding) int {
	missing := 0
	for _, f := range findings {
		switch f.Kind {
		case graph.MissingTarget:
			missing++
			from := f.From
			if from == "" {
				from = "<top level>"
			}
			fmt.Fprintf(w, "%s: %s: %s -> %s\n", f.File, f.Kind, from, f.Label)
		default:
			fmt.Fprintf(w, "%s: %s: %s\n", f.File, f.Kind, f.Label)
		}
	}
	return missing
}

func graphCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph <input>",
		Short: "Load the story flow into Neo4j and list unreached labels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := setupContext()
			defer cancel()

			scripts, err := parseAll(ctx, args[0], a.parseOptions(cmd), a.cfg.WorkerCount)
			if err != nil {
				return err
			}

			driver, err := connectNeo4j(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer driver.Close(ctx)

			sg := graph.NewStoryGraph(driver)
			if err := sg.EnsureSchema(ctx); err != nil {
				return err
			}
			if err := sg.Upsert(ctx, mergeFlows(scripts)); err != nil {
				return err
			}

			q := graph.NewQuerier(driver)
			out := cmd.OutOrStdout()

			unreached, err := q.UnreachedLabels(ctx)
			if err != nil {
				return err
			}
			for _, name := range unreached {
				fmt.Fprintf(out, "unreached: %s\n", name)
			}

			undeclared, err := q.UndeclaredLabels(ctx)
			if err != nil {
				return err
			}
			for _, name := range undeclared {
				fmt.Fprintf(out, "undeclared: %s\n", name)
			}

			if label, _ := cmd.Flags().GetString("speakers"); label != "" {
				speakers, err := q.SpeakersOf(ctx, label)
				if err != nil {
					return err
				}
				for _, name := range speakers {
					fmt.Fprintf(out, "speaks in %s: %s\n", label, name)
				}
			}
			return nil
		},
	}
	addParseFlags(cmd)
	cmd.Flags().String("speakers", "", "Also list the characters speaking under this label")
	return cmd
}

func indexCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <input>",
		Short: "Embed dialogue lines and store them in PostgreSQL for search",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := setupContext()
			defer cancel()

			scripts, err := parseAll(ctx, args[0], a.parseOptions(cmd), a.cfg.WorkerCount)
			if err != nil {
				return err
			}

			indexer, closeDB, err := a.newIndexer(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			total := 0
			for _, s := range scripts {
				n, err := indexer.IndexDocument(ctx, s.rel, s.result.Document)
				if err != nil {
					return err
				}
				total += n
			}

			log.Info().Int("files", len(scripts)).Int("lines", total).Msg("Indexing complete")
			return nil
		},
	}
	addParseFlags(cmd)
	return cmd
}

func searchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find indexed dialogue lines similar to query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := setupContext()
			defer cancel()

			indexer, closeDB, err := a.newIndexer(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			topK, _ := cmd.Flags().GetInt("top")
			matches, err := indexer.Search(ctx, args[0], topK)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, m := range matches {
				speaker := m.Speaker
				if speaker == "" {
					speaker = "(narrator)"
				}
				fmt.Fprintf(out, "%.3f  %s:%d [%s] %s: %s\n",
					m.Score, m.File, m.Block, m.Label, speaker, textutil.Truncate(m.Content, 80))
			}
			return nil
		},
	}
	cmd.Flags().Int("top", 5, "Number of results")
	return cmd
}

func (a *app) newIndexer(ctx context.Context) (*search.Indexer, func(), error) {
	pool, err := connectPostgres(ctx, a.cfg)
	if err != nil {
		return nil, nil, err
	}

	index := search.NewDialogueIndex(pool, a.cfg.EmbeddingDimensions)
	if err := index.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	client := search.NewEmbeddingClient(a.cfg.EmbeddingAPIKey, a.cfg.EmbeddingModel, a.cfg.EmbeddingBaseURL, a.cfg.EmbeddingDimensions)
	return search.NewIndexer(client, index, a.cfg.BatchSize), pool.Close, nil
}
