package scraper

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// seenIDs remembers book IDs already handled in this run, so a book that
// shifts between category pages mid-crawl is not processed twice.
type seenIDs struct {
	cache *lru.Cache[int, struct{}]
}

func newSeenIDs(size int) (*seenIDs, error) {
	cache, err := lru.New[int, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("create seen-id cache: %w", err)
	}
	return &seenIDs{cache: cache}, nil
}

// markSeen records id and reports whether it had been seen before.
func (s *seenIDs) markSeen(id int) bool {
	found, _ := s.cache.ContainsOrAdd(id, struct{}{})
	return found
}
