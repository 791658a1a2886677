package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog/log"
)

// statement is one parameterised Cypher query.
type statement struct {
	cypher string
	params map[string]any
}

// StoryGraph writes story flows into Neo4j as Label and Character nodes.
type StoryGraph struct {
	driver neo4j.DriverWithContext
}

// NewStoryGraph creates a new story graph writer.
func NewStoryGraph(driver neo4j.DriverWithContext) *StoryGraph {
	return &StoryGraph{driver: driver}
}

// EnsureSchema creates uniqueness constraints on the Neo4j database.
func (sg *StoryGraph) EnsureSchema(ctx context.Context) error {
	session := sg.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	constraints := []string{
		"CREATE CONSTRAINT IF NOT EXISTS FOR (l:Label) REQUIRE l.name IS UNIQUE",
		"CREATE CONSTRAINT IF NOT EXISTS FOR (c:Character) REQUIRE c.name IS UNIQUE",
	}

	for _, c := range constraints {
		if _, err := session.Run(ctx, c, nil); err != nil {
			return fmt.Errorf("create constraint: %w", err)
		}
	}

	log.Info().Msg("Graph schema ensured")
	return nil
}

// Upsert merges every label, transfer and speaker of f into the graph.
func (sg *StoryGraph) Upsert(ctx context.Context, f *Flow) error {
	session := sg.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	for _, st := range flowStatements(f) {
		if _, err := session.Run(ctx, st.cypher, st.params); err != nil {
			return fmt.Errorf("upsert story graph: %w", err)
		}
	}

	log.Info().
		Int("labels", len(f.Labels)).
		Int("edges", len(f.Edges)).
		Int("speaking_labels", len(f.Speakers)).
		Msg("Story graph updated")
	return nil
}

// flowStatements renders f as Cypher. Edge targets are merged without a file
// so labels that are referenced but never declared stay visible.
func flowStatements(f *Flow) []statement {
	var out []statement

	for _, l := range f.Labels {
		out = append(out, statement{
			cypher: `
			MERGE (l:Label {name: $name})
			SET l.file = $file, l.block = $block`,
			params: map[string]any{"name": l.Name, "file": l.File, "block": l.Block},
		})
	}

	for _, e := range f.Edges {
		if e.From == "" {
			continue
		}
		out = append(out, statement{
			cypher: fmt.Sprintf(`
			MERGE (a:Label {name: $from})
			MERGE (b:Label {name: $to})
			MERGE (a)-[r:%s {option: $option}]->(b)
			SET r.file = $file`, e.Kind),
			params: map[string]any{"from": e.From, "to": e.To, "option": e.Option, "file": e.File},
		})
	}

	for label, speakers := range f.Speakers {
		for _, s := range speakers {
			out = append(out, statement{
				cypher: `
				MERGE (c:Character {name: $speaker})
				MERGE (l:Label {name: $label})
				MERGE (c)-[:SPEAKS_IN]->(l)`,
				params: map[string]any{"speaker": s, "label": label},
			})
		}
	}
	return out
}
