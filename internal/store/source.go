package store

import (
	"context"
	"fmt"

	"github.com/roach88/testworker/internal/domain"
)

// AddSource records an uploaded source.
// Uses ON CONFLICT(path) DO NOTHING - sources are immutable once stored.
func (s *Store) AddSource(ctx context.Context, src domain.Source) error {
	return addSource(ctx, s.db, src)
}

func addSource(ctx context.Context, ex executor, src domain.Source) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO sources (path, type)
		VALUES (?, ?)
		ON CONFLICT(path) DO NOTHING
	`, src.Path, string(src.Type))
	if err != nil {
		return fmt.Errorf("add source %s: %w", src.Path, err)
	}
	return nil
}

// Sources returns every source in ingestion order.
func (s *Store) Sources(ctx context.Context) ([]domain.Source, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, type FROM sources ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	sources := []domain.Source{}
	for rows.Next() {
		var (
			src     domain.Source
			srcType string
		)
		if err := rows.Scan(&src.Path, &srcType); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		src.Type = domain.SourceType(srcType)
		sources = append(sources, src)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}

	return sources, nil
}

// CountSources returns the number of stored sources.
func (s *Store) CountSources(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count sources: %w", err)
	}
	return count, nil
}

// TestSourcePaths returns the paths of test-type sources in ingestion order.
func (s *Store) TestSourcePaths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path FROM sources WHERE type = ? ORDER BY id ASC
	`, string(domain.SourceTypeTest))
	if err != nil {
		return nil, fmt.Errorf("query test sources: %w", err)
	}
	defer rows.Close()

	paths := []string{}
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("scan test source: %w", err)
		}
		paths = append(paths, path)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate test sources: %w", err)
	}

	return paths, nil
}

// NextUncompiledSource returns the first test-type source path, in
// ingestion order, that has no compiled test yet.
func (s *Store) NextUncompiledSource(ctx context.Context) (string, bool, error) {
	var path string
	err := s.db.QueryRowContext(ctx, `
		SELECT s.path FROM sources s
		WHERE s.type = ?
		AND NOT EXISTS (SELECT 1 FROM tests t WHERE t.source = s.path)
		ORDER BY s.id ASC
		LIMIT 1
	`, string(domain.SourceTypeTest)).Scan(&path)
	if err != nil {
		if isNoRows(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("next uncompiled source: %w", err)
	}
	return path, true, nil
}
