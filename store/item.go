package store

import (
	"context"
	"fmt"
	"strings"
)

// ItemType is the catalog kind of an item.
type ItemType string

const (
	ItemTypeMovie ItemType = "movie"
	ItemTypeTV    ItemType = "tv"
	ItemTypeAnime ItemType = "anime"
	ItemTypeBook  ItemType = "book"
)

// ItemTypes lists every item type in type-balancing priority order.
var ItemTypes = []ItemType{ItemTypeMovie, ItemTypeTV, ItemTypeAnime, ItemTypeBook}

// ParseItemType parses a user supplied type. Empty input yields an empty type.
func ParseItemType(s string) (ItemType, error) {
	t := ItemType(strings.ToLower(strings.TrimSpace(s)))
	if t == "" || t.IsValid() {
		return t, nil
	}
	return "", fmt.Errorf("unknown item type: %q", s)
}

// IsValid reports whether t is one of the known item types.
func (t ItemType) IsValid() bool {
	for _, known := range ItemTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Availability is a link to where an item can be watched or read.
type Availability struct {
	Provider string `json:"provider"`
	URL      string `json:"url"`
}

// Item is an immutable catalog record. Items are written by ingestion tooling
// and only read here.
type Item struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Type         ItemType       `json:"type"`
	Year         *int           `json:"year,omitempty"`
	Genres       []string       `json:"genres"`
	Tags         []string       `json:"tags,omitempty"`
	Creators     []string       `json:"creators,omitempty"`
	Cast         []string       `json:"cast,omitempty"`
	Synopsis     string         `json:"synopsis,omitempty"`
	Popularity   float64        `json:"popularity"`
	Rating       *float64       `json:"rating,omitempty"`
	FranchiseKey string         `json:"franchiseKey,omitempty"`
	PosterURL    string         `json:"posterUrl,omitempty"`
	Source       string         `json:"source,omitempty"`
	SourceID     string         `json:"sourceId,omitempty"`
	Availability []Availability `json:"availability,omitempty"`
	Embedding    []float32      `json:"-"`
}

// Clone returns a shallow copy that is safe to mutate at the top level.
func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// EmbeddingText is the text embedded for an item: title, genres and synopsis.
// Stored vectors and on-the-fly anchor vectors use the same text.
func (i *Item) EmbeddingText() string {
	parts := []string{i.Title}
	if len(i.Genres) > 0 {
		parts = append(parts, strings.Join(i.Genres, ", "))
	}
	if i.Synopsis != "" {
		parts = append(parts, i.Synopsis)
	}
	return strings.Join(parts, " ")
}

// RecommendationFilters restricts which items may be returned.
// A nil pointer or empty type means "no constraint".
type RecommendationFilters struct {
	Type    ItemType
	YearMin *int
	YearMax *int
	PopMin  *float64
}

// Matches reports whether item satisfies every set filter.
func (f RecommendationFilters) Matches(item *Item) bool {
	if item == nil {
		return false
	}
	if f.Type != "" && item.Type != f.Type {
		return false
	}
	if f.YearMin != nil && (item.Year == nil || *item.Year < *f.YearMin) {
		return false
	}
	if f.YearMax != nil && (item.Year == nil || *item.Year > *f.YearMax) {
		return false
	}
	if f.PopMin != nil && item.Popularity < *f.PopMin {
		return false
	}
	return true
}

// Key returns a canonical string for the filter, used to deduplicate
// relaxation steps and in log lines.
func (f RecommendationFilters) Key() string {
	var b strings.Builder
	b.WriteString("type=")
	b.WriteString(string(f.Type))
	if f.YearMin != nil {
		fmt.Fprintf(&b, ";yearMin=%d", *f.YearMin)
	}
	if f.YearMax != nil {
		fmt.Fprintf(&b, ";yearMax=%d", *f.YearMax)
	}
	if f.PopMin != nil {
		fmt.Fprintf(&b, ";popMin=%g", *f.PopMin)
	}
	return b.String()
}

// ItemWithScore is a search hit with the score the query produced.
type ItemWithScore struct {
	Item  *Item
	Score float64
}

// LexicalSearchOptions configures a full-text search.
type LexicalSearchOptions struct {
	Query   string
	Filters RecommendationFilters
	Limit   int
}

// VectorSearchOptions configures a cosine-distance search.
type VectorSearchOptions struct {
	Vector  []float32
	Filters RecommendationFilters
	Limit   int
}

// RandomSampleOptions configures a uniform random sample.
type RandomSampleOptions struct {
	Filters RecommendationFilters
	Limit   int
}

// FindSeed is the find condition for a title-similar anchor.
type FindSeed struct {
	Query         string
	Type          ItemType
	MinSimilarity float64
}

// FindItemsWithoutEmbedding is the find condition for the embedding backfill.
type FindItemsWithoutEmbedding struct {
	Limit int
}

// UpdateItemEmbedding replaces the stored vector of one item.
type UpdateItemEmbedding struct {
	ID        string
	Embedding []float32
}

// LexicalSearch ranks items by text relevance.
func (s *Store) LexicalSearch(ctx context.Context, opts *LexicalSearchOptions) ([]*ItemWithScore, error) {
	return s.driver.LexicalSearch(ctx, opts)
}

// VectorSearch ranks items by semantic similarity (1 - cosine distance).
func (s *Store) VectorSearch(ctx context.Context, opts *VectorSearchOptions) ([]*ItemWithScore, error) {
	return s.driver.VectorSearch(ctx, opts)
}

// RandomSample returns a uniformly shuffled sample of matching items.
func (s *Store) RandomSample(ctx context.Context, opts *RandomSampleOptions) ([]*Item, error) {
	return s.driver.RandomSample(ctx, opts)
}

// FindSeedByTitle returns the best title match for a query, or nil when
// nothing clears the similarity threshold.
func (s *Store) FindSeedByTitle(ctx context.Context, find *FindSeed) (*ItemWithScore, error) {
	return s.driver.FindSeedByTitle(ctx, find)
}

// FindItemsWithoutEmbedding returns items that have no stored vector yet,
// most popular first.
func (s *Store) FindItemsWithoutEmbedding(ctx context.Context, find *FindItemsWithoutEmbedding) ([]*Item, error) {
	return s.driver.FindItemsWithoutEmbedding(ctx, find)
}

func (s *Store) UpdateItemEmbedding(ctx context.Context, update *UpdateItemEmbedding) error {
	return s.driver.UpdateItemEmbedding(ctx, update)
}
