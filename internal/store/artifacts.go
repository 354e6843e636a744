package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/ruletrace/internal/ir"
	"github.com/roach88/ruletrace/internal/rule"
)

// ArtifactInfo summarizes a stored artifact.
type ArtifactInfo struct {
	ID      string
	Kind    rule.Kind
	Version string
	Seq     int64
}

// PutArtifact stores a. Uses ON CONFLICT(id) DO NOTHING: storing the
// same artifact again returns its id with inserted=false.
func (s *Store) PutArtifact(ctx context.Context, a *rule.Artifact) (id string, inserted bool, err error) {
	body, err := rule.Save(a)
	if err != nil {
		return "", false, fmt.Errorf("put artifact: %w", err)
	}
	id = a.ID()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("put artifact: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	seq, err := nextSeq(ctx, tx, "rule_artifacts")
	if err != nil {
		return "", false, fmt.Errorf("put artifact: %w", err)
	}
	result, err := tx.ExecContext(ctx, `
		INSERT INTO rule_artifacts (id, kind, version, body, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, string(a.Kind()), a.Version(), string(body), seq)
	if err != nil {
		return "", false, fmt.Errorf("put artifact: insert: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("put artifact: rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("put artifact: commit: %w", err)
	}

	s.logger.Info("artifact stored",
		zap.String("id", id),
		zap.String("kind", string(a.Kind())),
		zap.Bool("inserted", n > 0),
	)
	return id, n > 0, nil
}

// GetArtifact loads the artifact with the given id. The stored bytes are
// re-validated and must still hash to id.
func (s *Store) GetArtifact(ctx context.Context, id string) (*rule.Artifact, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM rule_artifacts WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get artifact %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact %s: %w", id, err)
	}
	a, err := rule.Load([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("get artifact %s: %w", id, err)
	}
	if a.ID() != id {
		return nil, ir.InvalidRule("", "stored artifact %s hashes to %s", id, a.ID())
	}
	return a, nil
}

// ListArtifacts returns every stored artifact in insertion order.
// Returns an empty slice (not nil) if the store is empty.
func (s *Store) ListArtifacts(ctx context.Context) ([]ArtifactInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, version, seq
		FROM rule_artifacts
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	out := []ArtifactInfo{}
	for rows.Next() {
		var info ArtifactInfo
		var kind string
		if err := rows.Scan(&info.ID, &kind, &info.Version, &info.Seq); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		info.Kind = rule.Kind(kind)
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return out, nil
}
