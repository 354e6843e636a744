package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/ruletrace/internal/graph"
	"github.com/roach88/ruletrace/internal/ir"
	"github.com/roach88/ruletrace/internal/schema"
)

// DumpRecord is a stored serving dump.
type DumpRecord struct {
	ID    string
	Party schema.Party

	// ArtifactID is empty when the dump is not linked to an artifact.
	ArtifactID string

	Dump *graph.Dump
	Seq  int64
}

// PutDump stores d for party, linked to artifactID when non-empty. The
// artifact must already be stored.
func (s *Store) PutDump(ctx context.Context, party schema.Party, artifactID string, d *graph.Dump) (id string, inserted bool, err error) {
	if _, err := graph.Decode(d); err != nil {
		return "", false, fmt.Errorf("put dump: %w", err)
	}
	id = d.ID()
	link := sql.NullString{String: artifactID, Valid: artifactID != ""}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("put dump: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	seq, err := nextSeq(ctx, tx, "serving_dumps")
	if err != nil {
		return "", false, fmt.Errorf("put dump: %w", err)
	}
	result, err := tx.ExecContext(ctx, `
		INSERT INTO serving_dumps (id, name, party, artifact_id, graph, inputs, outputs, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, d.Name, string(party), link, string(d.Graph), string(d.Inputs), string(d.Outputs), seq)
	if err != nil {
		return "", false, fmt.Errorf("put dump: insert: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("put dump: rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("put dump: commit: %w", err)
	}

	s.logger.Info("dump stored",
		zap.String("id", id),
		zap.String("name", d.Name),
		zap.String("party", string(party)),
		zap.Bool("inserted", n > 0),
	)
	return id, n > 0, nil
}

// GetDump loads the dump with the given id and re-checks its hash.
func (s *Store) GetDump(ctx context.Context, id string) (*DumpRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, party, artifact_id, graph, inputs, outputs, seq
		FROM serving_dumps WHERE id = ?
	`, id)
	rec, err := scanDump(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get dump %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get dump %s: %w", id, err)
	}
	if got := rec.Dump.ID(); got != id {
		return nil, ir.GraphIntegrity("stored dump %s hashes to %s", id, got)
	}
	return rec, nil
}

// ListDumps returns the dumps linked to artifactID, or every dump when
// artifactID is empty, in insertion order.
func (s *Store) ListDumps(ctx context.Context, artifactID string) ([]*DumpRecord, error) {
	query := `
		SELECT id, name, party, artifact_id, graph, inputs, outputs, seq
		FROM serving_dumps`
	var args []any
	if artifactID != "" {
		query += ` WHERE artifact_id = ?`
		args = append(args, artifactID)
	}
	query += ` ORDER BY seq ASC, id COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query dumps: %w", err)
	}
	defer rows.Close()

	out := []*DumpRecord{}
	for rows.Next() {
		rec, err := scanDump(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dump: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dumps: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDump(sc scanner) (*DumpRecord, error) {
	var (
		rec                    DumpRecord
		name, party            string
		link                   sql.NullString
		graphDoc, inputs, outs string
	)
	if err := sc.Scan(&rec.ID, &name, &party, &link, &graphDoc, &inputs, &outs, &rec.Seq); err != nil {
		return nil, err
	}
	rec.Party = schema.Party(party)
	rec.ArtifactID = link.String
	rec.Dump = &graph.Dump{
		Name:    name,
		Graph:   []byte(graphDoc),
		Inputs:  []byte(inputs),
		Outputs: []byte(outs),
	}
	return &rec, nil
}
