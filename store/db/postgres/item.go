package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/goccy/go-json"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/likewise/store"
)

// itemColumns is the projection shared by every item query.
// The embedding is read as text so rows without a vector scan cleanly.
const itemColumns = `
	i.id, i.title, i.type, i.year, i.genres, i.tags, i.creators, i.cast_members,
	COALESCE(i.synopsis, ''), i.popularity, i.rating, COALESCE(i.franchise_key, ''),
	COALESCE(i.poster_url, ''), COALESCE(i.source, ''), COALESCE(i.source_id, ''),
	i.availability, i.embedding::text`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanItem scans itemColumns followed by any extra destinations.
func scanItem(row rowScanner, extra ...any) (*store.Item, error) {
	var (
		item         store.Item
		itemType     string
		year         sql.NullInt64
		rating       sql.NullFloat64
		availability []byte
		embedding    sql.NullString
	)
	dest := []any{
		&item.ID,
		&item.Title,
		&itemType,
		&year,
		pq.Array(&item.Genres),
		pq.Array(&item.Tags),
		pq.Array(&item.Creators),
		pq.Array(&item.Cast),
		&item.Synopsis,
		&item.Popularity,
		&rating,
		&item.FranchiseKey,
		&item.PosterURL,
		&item.Source,
		&item.SourceID,
		&availability,
		&embedding,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	item.Type = store.ItemType(itemType)
	if year.Valid {
		y := int(year.Int64)
		item.Year = &y
	}
	if rating.Valid {
		r := rating.Float64
		item.Rating = &r
	}
	if len(availability) > 0 {
		if err := json.Unmarshal(availability, &item.Availability); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal availability")
		}
	}
	if embedding.Valid && embedding.String != "" {
		var vector pgvector.Vector
		if err := vector.Parse(embedding.String); err != nil {
			return nil, errors.Wrap(err, "failed to parse embedding")
		}
		item.Embedding = vector.Slice()
	}
	return &item, nil
}

func scanItemsWithScore(rows *sql.Rows) ([]*store.ItemWithScore, error) {
	results := []*store.ItemWithScore{}
	for rows.Next() {
		var score float64
		item, err := scanItem(rows, &score)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan item")
		}
		results = append(results, &store.ItemWithScore{Item: item, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 10
	}
	return limit
}

// LexicalSearch ranks items by full-text relevance over title, synopsis and tags.
// The 'simple' configuration keeps multilingual titles intact.
func (d *DB) LexicalSearch(ctx context.Context, opts *store.LexicalSearchOptions) ([]*store.ItemWithScore, error) {
	if strings.TrimSpace(opts.Query) == "" {
		return []*store.ItemWithScore{}, nil
	}

	document := `to_tsvector('simple', i.title || ' ' || COALESCE(i.synopsis, '') || ' ' || array_to_string(i.tags, ' '))`
	where, args := []string{document + " @@ plainto_tsquery('simple', " + placeholder(1) + ")"}, []any{opts.Query}
	where, args = filterConditions(opts.Filters, where, args)
	args = append(args, normalizeLimit(opts.Limit))

	query := `
		SELECT ` + itemColumns + `,
			ts_rank_cd(` + document + `, plainto_tsquery('simple', ` + placeholder(1) + `)) AS score
		FROM item i
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY score DESC, i.popularity DESC, i.id
		LIMIT ` + placeholder(len(args))

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to lexical search")
	}
	defer rows.Close()

	return scanItemsWithScore(rows)
}

// VectorSearch ranks items by cosine similarity using pgvector.
// The <=> operator computes cosine distance, so score = 1 - distance.
func (d *DB) VectorSearch(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.ItemWithScore, error) {
	if len(opts.Vector) == 0 {
		return nil, errors.New("vector search requires a query vector")
	}

	where, args := []string{"i.embedding IS NOT NULL"}, []any{pgvector.NewVector(opts.Vector)}
	where, args = filterConditions(opts.Filters, where, args)
	args = append(args, normalizeLimit(opts.Limit))

	query := `
		SELECT ` + itemColumns + `,
			1 - (i.embedding <=> ` + placeholder(1) + `) AS score
		FROM item i
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY i.embedding <=> ` + placeholder(1) + `, i.id
		LIMIT ` + placeholder(len(args))

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to vector search")
	}
	defer rows.Close()

	return scanItemsWithScore(rows)
}

// RandomSample returns matching items in random order.
func (d *DB) RandomSample(ctx context.Context, opts *store.RandomSampleOptions) ([]*store.Item, error) {
	where, args := []string{"1 = 1"}, []any{}
	where, args = filterConditions(opts.Filters, where, args)
	args = append(args, normalizeLimit(opts.Limit))

	query := `
		SELECT ` + itemColumns + `
		FROM item i
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY random()
		LIMIT ` + placeholder(len(args))

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sample items")
	}
	defer rows.Close()

	list := []*store.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan item")
		}
		list = append(list, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// FindSeedByTitle resolves a query to the catalog item whose title is most
// trigram-similar and also matches the query as a full-text title search.
func (d *DB) FindSeedByTitle(ctx context.Context, find *store.FindSeed) (*store.ItemWithScore, error) {
	if strings.TrimSpace(find.Query) == "" {
		return nil, nil
	}

	where := []string{
		"similarity(i.title, " + placeholder(1) + ") > " + placeholder(2),
		"to_tsvector('simple', i.title) @@ plainto_tsquery('simple', " + placeholder(1) + ")",
	}
	args := []any{find.Query, find.MinSimilarity}
	if find.Type != "" {
		where, args = append(where, "i.type = "+placeholder(len(args)+1)), append(args, string(find.Type))
	}

	query := `
		SELECT ` + itemColumns + `,
			similarity(i.title, ` + placeholder(1) + `) AS score
		FROM item i
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY score DESC, i.popularity DESC, i.id
		LIMIT 1`

	var score float64
	item, err := scanItem(d.db.QueryRowContext(ctx, query, args...), &score)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to find seed by title")
	}
	return &store.ItemWithScore{Item: item, Score: score}, nil
}

// FindItemsWithoutEmbedding lists items whose embedding column is NULL.
func (d *DB) FindItemsWithoutEmbedding(ctx context.Context, find *store.FindItemsWithoutEmbedding) ([]*store.Item, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM item i
		WHERE i.embedding IS NULL
		ORDER BY i.popularity DESC, i.id
		LIMIT ` + placeholder(1)

	rows, err := d.db.QueryContext(ctx, query, normalizeLimit(find.Limit))
	if err != nil {
		return nil, errors.Wrap(err, "failed to find items without embedding")
	}
	defer rows.Close()

	list := []*store.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan item")
		}
		list = append(list, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// UpdateItemEmbedding stores a vector for one item.
func (d *DB) UpdateItemEmbedding(ctx context.Context, update *store.UpdateItemEmbedding) error {
	if len(update.Embedding) == 0 {
		return errors.New("embedding is empty")
	}
	result, err := d.db.ExecContext(ctx,
		"UPDATE item SET embedding = "+placeholder(1)+" WHERE id = "+placeholder(2),
		pgvector.NewVector(update.Embedding), update.ID)
	if err != nil {
		return errors.Wrapf(err, "failed to update embedding of item %s", update.ID)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.Errorf("item %s not found", update.ID)
	}
	return nil
}
