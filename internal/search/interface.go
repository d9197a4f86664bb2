package search

import "github.com/storyhive/storyhive/internal/storage"

// Result is a scored match against the favorites index.
type Result struct {
	Record *storage.FavoriteRecord
	Score  float64
}

// Searcher is the full-text search API over favorited stories. It is
// additive on top of the store's substring Query contract, not a
// replacement for it.
type Searcher interface {
	Search(query string, limit int) ([]*Result, error)
}

// UpdateListener is implemented by engines that maintain an external index
// and want to be told about favorite changes.
type UpdateListener interface {
	OnFavoriteSaved(record *storage.FavoriteRecord)
	OnFavoriteRemoved(id string)
}
