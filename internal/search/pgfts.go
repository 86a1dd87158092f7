package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS searches mind maps with PostgreSQL full-text search. It is the
// fallback when Meilisearch is unconfigured or unhealthy.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true: if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search matches against the generated fts column on mind_maps, restricted to
// public maps plus the caller's own.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	visible := "is_public"
	args := []any{q.Text}
	if q.CallerID != "" {
		visible = "(is_public OR user_id = $2)"
		args = append(args, q.CallerID)
	}

	countSQL := fmt.Sprintf(`
		SELECT count(*) FROM mind_maps
		WHERE fts @@ plainto_tsquery('english', $1) AND %s`, visible)

	dataSQL := fmt.Sprintf(`
		SELECT id, title,
			ts_headline('english', coalesce(description, ''), plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			is_public
		FROM mind_maps
		WHERE fts @@ plainto_tsquery('english', $1) AND %s
		ORDER BY ts_rank(fts, plainto_tsquery('english', $1)) DESC
		LIMIT %d OFFSET %d`, visible, limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.IsPublic); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every map's indexable fields for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]MapRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, coalesce(description, ''), coalesce(user_id::text, ''), is_public
		FROM mind_maps
	`)
	if err != nil {
		return nil, fmt.Errorf("load maps: %w", err)
	}
	defer rows.Close()

	records := make([]MapRecord, 0)
	for rows.Next() {
		var record MapRecord
		if err := rows.Scan(&record.ID, &record.Title, &record.Description, &record.OwnerID, &record.IsPublic); err != nil {
			return nil, fmt.Errorf("scan map record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
