package postgres

import (
	"fmt"

	"github.com/hrygo/likewise/store"
)

// placeholder returns a positional placeholder for PostgreSQL ($n).
func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// filterConditions appends the predicates for filters to where/args.
func filterConditions(filters store.RecommendationFilters, where []string, args []any) ([]string, []any) {
	if filters.Type != "" {
		where, args = append(where, "i.type = "+placeholder(len(args)+1)), append(args, string(filters.Type))
	}
	if filters.YearMin != nil {
		where, args = append(where, "i.year >= "+placeholder(len(args)+1)), append(args, *filters.YearMin)
	}
	if filters.YearMax != nil {
		where, args = append(where, "i.year <= "+placeholder(len(args)+1)), append(args, *filters.YearMax)
	}
	if filters.PopMin != nil {
		where, args = append(where, "i.popularity >= "+placeholder(len(args)+1)), append(args, *filters.PopMin)
	}
	return where, args
}
