package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true: if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search queries chat_threads with plainto_tsquery and ts_rank, using
// ts_headline over the denormalized metadata for snippets.
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

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	where := "t.fts @@ " + tsQuery
	if q.FilterConversationType != "" {
		where += fmt.Sprintf(" AND t.conversation_type = $%d", argN)
		args = append(args, q.FilterConversationType)
		argN++
	}
	if q.FilterOrgID != "" {
		where += fmt.Sprintf(" AND t.organization_id = $%d", argN)
		args = append(args, q.FilterOrgID)
		argN++
	}

	countSQL := "SELECT count(*) FROM chat_threads t WHERE " + where

	dataSQL := fmt.Sprintf(`
		SELECT t.id,
			coalesce(t.metadata->>'title', t.unique_name) AS title,
			ts_headline('english',
				coalesce(t.metadata->'partner'->>'name', '') || ' ' ||
				coalesce(t.metadata->'shipper'->>'name', ''),
				%s, 'MaxFragments=1,MaxWords=30') AS snippet,
			t.conversation_type,
			coalesce(t.quote_id, '') AS quote_id,
			t.organization_id
		FROM chat_threads t
		WHERE %s
		ORDER BY ts_rank(t.fts, %s) DESC
		LIMIT %d OFFSET %d`, tsQuery, where, tsQuery, limit, offset)

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
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.ConversationType, &r.QuoteID, &r.OrganizationID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all indexable threads for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ThreadRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT t.id,
			coalesce(t.metadata->>'title', t.unique_name),
			t.conversation_type,
			coalesce(t.quote_id, ''),
			t.organization_id,
			coalesce(t.metadata->'partner'->>'name', ''),
			coalesce(t.metadata->'shipper'->>'name', '')
		FROM chat_threads t
	`)
	if err != nil {
		return nil, fmt.Errorf("load threads: %w", err)
	}
	defer rows.Close()

	threads := make([]ThreadRecord, 0)
	for rows.Next() {
		var t ThreadRecord
		if err := rows.Scan(&t.ID, &t.Title, &t.ConversationType, &t.QuoteID, &t.OrganizationID, &t.PartnerName, &t.ShipperName); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		threads = append(threads, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threads: %w", err)
	}

	return threads, nil
}
