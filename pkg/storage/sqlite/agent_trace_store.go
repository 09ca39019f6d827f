// Package sqlite provides a SQLite mirror of the git notes trace store so
// traces can be queried without walking history.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/tracenotes/pkg/agenttrace"
	"github.com/papercomputeco/tracenotes/pkg/storage"
)

// AgentTraceStore implements storage.AgentTraceStore on SQLite.
type AgentTraceStore struct {
	drv *entsql.Driver
}

// NewAgentTraceStore opens (and migrates) the database at dbPath.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewAgentTraceStore(dbPath string) (*AgentTraceStore, error) {
	// Open the database using the github.com/mattn/go-sqlite3 driver (registered as "sqlite3")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	// SQLite-specific pragmas
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	drv := entsql.OpenDB(dialect.SQLite, db)

	migrate, err := schema.NewMigrate(drv)
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("failed to prepare migration: %w", err)
	}
	if err := migrate.Create(context.Background(), tables...); err != nil {
		drv.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &AgentTraceStore{drv: drv}, nil
}

// Read returns the traces mirrored for revision in stored order.
func (s *AgentTraceStore) Read(ctx context.Context, revision string) ([]*agenttrace.AgentTrace, error) {
	return readRevision(ctx, s.drv, revision)
}

// Write merges traces into revision using the same dedup and consolidation
// rules as the notes store, replacing the revision's rows in one transaction.
func (s *AgentTraceStore) Write(ctx context.Context, revision string, traces []*agenttrace.AgentTrace) error {
	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := readRevision(ctx, tx, revision)
	if err != nil {
		return err
	}

	merged, added := agenttrace.Merge(existing, traces)
	if added == 0 {
		return nil
	}

	// File and id rows go with their trace through ON DELETE CASCADE.
	query, args := builder().Delete(tracesTableName).
		Where(entsql.EQ("revision", revision)).
		Query()
	if err := tx.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("clearing revision %s: %w", revision, err)
	}

	for i, trace := range merged {
		if err := insertTrace(ctx, tx, revision, i, trace); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing revision %s: %w", revision, err)
	}
	return nil
}

// QueryAgentTraces queries agent traces with filtering, newest first.
func (s *AgentTraceStore) QueryAgentTraces(ctx context.Context, query storage.AgentTraceQuery) ([]*agenttrace.AgentTrace, error) {
	t := builder().Table(tracesTableName).As("t")
	sel := builder().Select(t.C("body")).From(t)

	var preds []*entsql.Predicate
	if query.Revision != "" {
		preds = append(preds, entsql.EQ(t.C("revision"), query.Revision))
	}
	if query.ToolName != "" {
		preds = append(preds, entsql.EqualFold(t.C("tool_name"), query.ToolName))
	}
	if query.FilePath != "" {
		f := builder().Table(filesTableName).As("f")
		preds = append(preds, entsql.Exists(
			builder().Select(f.C("path")).From(f).Where(entsql.And(
				entsql.ColumnsEQ(f.C("trace_pk"), t.C("pk")),
				entsql.EqualFold(f.C("path"), query.FilePath),
			)),
		))
	}
	if query.ID != "" {
		i := builder().Table(idsTableName).As("i")
		preds = append(preds, entsql.Exists(
			builder().Select(i.C("id")).From(i).Where(entsql.And(
				entsql.ColumnsEQ(i.C("trace_pk"), t.C("pk")),
				entsql.EQ(i.C("id"), query.ID),
			)),
		))
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}

	sel.OrderBy(entsql.Desc(t.C("ts")), entsql.Asc(t.C("pk")))

	switch {
	case query.Limit > 0:
		sel.Limit(query.Limit).Offset(max(query.Offset, 0))
	case query.Offset > 0:
		// SQLite only accepts OFFSET after a LIMIT; -1 means unbounded.
		sel.Limit(-1).Offset(query.Offset)
	}

	return queryTraces(ctx, s.drv, sel)
}

// Revisions lists every revision with mirrored traces.
func (s *AgentTraceStore) Revisions(ctx context.Context) ([]string, error) {
	query, args := builder().Select("revision").Distinct().
		From(builder().Table(tracesTableName)).
		OrderBy("revision").
		Query()

	rows := &entsql.Rows{}
	if err := s.drv.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("listing revisions: %w", err)
	}
	defer rows.Close()

	var revisions []string
	for rows.Next() {
		var rev string
		if err := rows.Scan(&rev); err != nil {
			return nil, err
		}
		revisions = append(revisions, rev)
	}
	return revisions, rows.Err()
}

// Close closes the database.
func (s *AgentTraceStore) Close() error {
	return s.drv.Close()
}

func builder() *entsql.DialectBuilder {
	return entsql.Dialect(dialect.SQLite)
}

func readRevision(ctx context.Context, q dialect.ExecQuerier, revision string) ([]*agenttrace.AgentTrace, error) {
	sel := builder().Select("body").
		From(builder().Table(tracesTableName)).
		Where(entsql.EQ("revision", revision)).
		OrderBy("position")

	traces, err := queryTraces(ctx, q, sel)
	if err != nil {
		return nil, fmt.Errorf("reading revision %s: %w", revision, err)
	}
	return traces, nil
}

func queryTraces(ctx context.Context, q dialect.ExecQuerier, sel *entsql.Selector) ([]*agenttrace.AgentTrace, error) {
	query, args := sel.Query()

	rows := &entsql.Rows{}
	if err := q.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("querying agent traces: %w", err)
	}
	defer rows.Close()

	traces := []*agenttrace.AgentTrace{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scanning agent trace: %w", err)
		}

		trace := &agenttrace.AgentTrace{}
		if err := json.Unmarshal([]byte(body), trace); err != nil {
			return nil, fmt.Errorf("decoding agent trace: %w", err)
		}
		traces = append(traces, trace)
	}
	return traces, rows.Err()
}

func insertTrace(ctx context.Context, tx dialect.Tx, revision string, position int, trace *agenttrace.AgentTrace) error {
	body, err := json.Marshal(trace)
	if err != nil {
		return fmt.Errorf("encoding agent trace %s: %w", trace.ID, err)
	}

	var ts int64
	if t, ok := trace.Time(); ok {
		ts = t.UnixNano()
	}

	query, args := builder().Insert(tracesTableName).
		Columns("id", "revision", "position", "ts", "tool_name", "body").
		Values(trace.ID, revision, position, ts, trace.ToolName(), string(body)).
		Query()

	var res sql.Result
	if err := tx.Exec(ctx, query, args, &res); err != nil {
		return fmt.Errorf("inserting agent trace %s: %w", trace.ID, err)
	}
	pk, err := res.LastInsertId()
	if err != nil {
		return err
	}

	files := builder().Insert(filesTableName).Columns("trace_pk", "path")
	paths := make(map[string]bool, len(trace.Files))
	for _, f := range trace.Files {
		if paths[f.Path] {
			continue
		}
		paths[f.Path] = true
		files.Values(pk, f.Path)
	}
	if len(paths) > 0 {
		query, args := files.Query()
		if err := tx.Exec(ctx, query, args, nil); err != nil {
			return fmt.Errorf("inserting files of %s: %w", trace.ID, err)
		}
	}

	ids := builder().Insert(idsTableName).Columns("trace_pk", "id")
	seen := map[string]bool{}
	for _, id := range append([]string{trace.ID}, agenttrace.ConsolidatedIDs(trace)...) {
		if seen[id] {
			continue
		}
		seen[id] = true
		ids.Values(pk, id)
	}
	query, args = ids.Query()
	if err := tx.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("inserting ids of %s: %w", trace.ID, err)
	}

	return nil
}

var _ storage.AgentTraceStore = (*AgentTraceStore)(nil)
