package test

import (
	"context"
	"database/sql"

	"github.com/goccy/go-json"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/hrygo/likewise/store"
)

func insertItem(ctx context.Context, db *sql.DB, item *store.Item) error {
	var availability any
	if len(item.Availability) > 0 {
		raw, err := json.Marshal(item.Availability)
		if err != nil {
			return err
		}
		availability = string(raw)
	}
	var embedding any
	if len(item.Embedding) > 0 {
		embedding = pgvector.NewVector(item.Embedding)
	}

	stmt := `
		INSERT INTO item (id, title, type, year, genres, tags, creators, cast_members, synopsis,
			popularity, rating, franchise_key, poster_url, source, source_id, availability, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO NOTHING`
	_, err := db.ExecContext(ctx, stmt,
		item.ID,
		item.Title,
		string(item.Type),
		item.Year,
		pq.Array(nonNil(item.Genres)),
		pq.Array(nonNil(item.Tags)),
		pq.Array(nonNil(item.Creators)),
		pq.Array(nonNil(item.Cast)),
		item.Synopsis,
		item.Popularity,
		item.Rating,
		item.FranchiseKey,
		item.PosterURL,
		item.Source,
		item.SourceID,
		availability,
		embedding,
	)
	return err
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
