package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog/log"
)

// Querier reads structural facts back out of the story graph.
type Querier struct {
	driver neo4j.DriverWithContext
}

// NewQuerier creates a new graph querier.
func NewQuerier(driver neo4j.DriverWithContext) *Querier {
	return &Querier{driver: driver}
}

// UnreachedLabels lists declared labels with no incoming transfer, other
// than the engine entry labels.
func (q *Querier) UnreachedLabels(ctx context.Context) ([]string, error) {
	return q.names(ctx, `
		MATCH (l:Label)
		WHERE l.file IS NOT NULL
		  AND NOT l.name IN $entries
		  AND NOT ()-[:JUMPS_TO|CALLS|CHOICE]->(l)
		RETURN l.name AS name
		ORDER BY name
	`, map[string]any{"entries": EntryLabels})
}

// UndeclaredLabels lists labels that are transfer targets but were never
// declared in any ingested script.
func (q *Querier) UndeclaredLabels(ctx context.Context) ([]string, error) {
	return q.names(ctx, `
		MATCH (l:Label)
		WHERE l.file IS NULL
		RETURN l.name AS name
		ORDER BY name
	`, nil)
}

// SpeakersOf lists the characters speaking under label.
func (q *Querier) SpeakersOf(ctx context.Context, label string) ([]string, error) {
	return q.names(ctx, `
		MATCH (c:Character)-[:SPEAKS_IN]->(l:Label {name: $label})
		RETURN c.name AS name
		ORDER BY name
	`, map[string]any{"label": label})
}

func (q *Querier) names(ctx context.Context, cypher string, params map[string]any) ([]string, error) {
	session := q.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("query graph: %w", err)
	}

	var names []string
	for result.Next(ctx) {
		name, _ := result.Record().Get("name")
		names = append(names, fmt.Sprintf("%v", name))
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("read graph result: %w", err)
	}

	log.Debug().Int("count", len(names)).Msg("Graph query complete")
	return names, nil
}
