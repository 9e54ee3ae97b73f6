package hierarchy

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jGraph mirrors the main task / subtask tree as (:Task)-[:CHILD_OF]->(:Task)
// so ancestry and cycle questions are answered by path queries.
type Neo4jGraph struct {
	Driver neo4j.DriverWithContext
}

func NewNeo4jGraph(driver neo4j.DriverWithContext) *Neo4jGraph {
	return &Neo4jGraph{Driver: driver}
}

// CreatesCycle reports whether putting childID under parentID would close
// a loop, i.e. childID already is parentID or one of its ancestors.
func (g *Neo4jGraph) CreatesCycle(ctx context.Context, childID, parentID string) (bool, error) {
	if childID == parentID {
		return true, nil
	}
	session := g.Driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (child:Task {id: $childId}), (parent:Task {id: $parentId})
			RETURN EXISTS { MATCH (parent)-[:CHILD_OF*1..]->(child) } AS hasCycle
		`
		res, err := tx.Run(ctx, query, map[string]any{
			"childId":  childID,
			"parentId": parentID,
		})
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			val, ok := res.Record().Values[0].(bool)
			if !ok {
				return false, fmt.Errorf("unexpected result type")
			}
			return val, nil
		}
		return false, res.Err()
	})
	if err != nil {
		return false, fmt.Errorf("cycle detection failed: %w", err)
	}
	return result.(bool), nil
}

// Link moves childID under parentID. An empty parentID detaches it.
func (g *Neo4jGraph) Link(ctx context.Context, childID, parentID string) error {
	session := g.Driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		detach := `
			MERGE (child:Task {id: $childId})
			WITH child
			OPTIONAL MATCH (child)-[r:CHILD_OF]->()
			DELETE r
		`
		if _, err := tx.Run(ctx, detach, map[string]any{"childId": childID}); err != nil {
			return nil, err
		}
		if parentID == "" {
			return nil, nil
		}
		attach := `
			MATCH (child:Task {id: $childId})
			MERGE (parent:Task {id: $parentId})
			MERGE (child)-[:CHILD_OF]->(parent)
		`
		_, err := tx.Run(ctx, attach, map[string]any{
			"childId":  childID,
			"parentId": parentID,
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to link task %s under %s: %w", childID, parentID, err)
	}
	return nil
}

// EnsureNode makes sure a node exists for taskID.
func (g *Neo4jGraph) EnsureNode(ctx context.Context, taskID string) error {
	session := g.Driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `MERGE (t:Task {id: $id})`, map[string]any{"id": taskID})
		return nil, err
	})
	return err
}

// MainTaskOf returns the id of the root ancestor of taskID.
func (g *Neo4jGraph) MainTaskOf(ctx context.Context, taskID string) (string, error) {
	session := g.Driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (t:Task {id: $id})
			OPTIONAL MATCH (t)-[:CHILD_OF*1..]->(root:Task)
			WHERE NOT (root)-[:CHILD_OF]->()
			RETURN coalesce(root.id, t.id) AS rootId
		`
		res, err := tx.Run(ctx, query, map[string]any{"id": taskID})
		if err != nil {
			return nil, err
		}
		if res.Next(ctx) {
			id, _ := res.Record().Get("rootId")
			s, _ := id.(string)
			return s, nil
		}
		return "", res.Err()
	})
	if err != nil {
		return "", fmt.Errorf("failed to resolve main task of %s: %w", taskID, err)
	}
	return result.(string), nil
}
