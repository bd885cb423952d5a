package store

import (
	"context"
	"sort"
	"strings"
)

// Relevance weights used by Search: a match in the name counts for
// more than one in the description, which counts for more than a tag
// match.
const (
	weightName        = 100
	weightDescription = 50
	weightTag         = 25
)

// Search scores every session matching filters against query
// (case-insensitive substring match against name, description, and
// tags) and returns matches ordered by descending relevance, ties
// broken by name, capped at limit (0 means unlimited). An empty or
// whitespace-only query returns an empty result, not an error.
func (s *Store) Search(ctx context.Context, query string, filters Filters, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	sessions, err := s.List(ctx, ListOptions{Filters: filters})
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	var results []SearchResult
	for _, sess := range sessions {
		score := 0
		if strings.Contains(strings.ToLower(sess.Name), needle) {
			score += weightName
		}
		if strings.Contains(strings.ToLower(sess.Description), needle) {
			score += weightDescription
		}
		for _, tag := range sess.Tags {
			if strings.Contains(strings.ToLower(tag), needle) {
				score += weightTag
			}
		}
		if score > 0 {
			results = append(results, SearchResult{Session: sess, RelevanceScore: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].RelevanceScore != results[j].RelevanceScore {
			return results[i].RelevanceScore > results[j].RelevanceScore
		}
		return results[i].Session.Name < results[j].Session.Name
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
