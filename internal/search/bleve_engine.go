package search

import (
	"os"
	"path/filepath"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/storyhive/storyhive/internal/storage"
)

type storyDoc struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Owner       string `json:"owner"`
}

type bleveEngine struct {
	store *storage.Store
	idx   bleve.Index
}

// NewBleveEngine creates or opens a bleve index at indexPath and loads the
// current favorites into it.
func NewBleveEngine(store *storage.Store, indexPath string) (Searcher, error) {
	if mkErr := os.MkdirAll(filepath.Dir(indexPath), 0o755); mkErr != nil {
		_ = mkErr // Open/New below will surface the real failure
	}

	idx, err := bleve.Open(indexPath)
	if err != nil {
		idx, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, err
		}
	}

	be := &bleveEngine{store: store, idx: idx}
	if err := be.reindexAll(); err != nil {
		return nil, err
	}
	return be, nil
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	dm := bleve.NewDocumentMapping()

	name := bleve.NewTextFieldMapping()
	name.Analyzer = standard.Name
	name.Store = true

	desc := bleve.NewTextFieldMapping()
	desc.Analyzer = standard.Name
	desc.Store = true

	owner := bleve.NewTextFieldMapping()
	owner.Analyzer = standard.Name
	owner.Store = true

	dm.AddFieldMappingsAt("name", name)
	dm.AddFieldMappingsAt("description", desc)
	dm.AddFieldMappingsAt("owner", owner)

	im.DefaultMapping = dm
	return im
}

func (e *bleveEngine) reindexAll() error {
	favorites, err := e.store.Query(storage.Filter{})
	if err != nil {
		return err
	}
	batch := e.idx.NewBatch()
	for _, record := range favorites {
		if err := batch.Index(record.ID, docFor(record)); err != nil {
			return err
		}
	}
	return e.idx.Batch(batch)
}

func (e *bleveEngine) Search(query string, limit int) ([]*Result, error) {
	if limit <= 0 {
		limit = 25
	}
	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)

	res, err := e.idx.Search(req)
	if err != nil {
		return nil, err
	}

	var results []*Result
	for _, hit := range res.Hits {
		record, err := e.store.Get(hit.ID)
		if err != nil {
			// The index can lag behind a removal; skip stale hits.
			continue
		}
		results = append(results, &Result{Record: record, Score: hit.Score})
	}
	return results, nil
}

// OnFavoriteSaved implements UpdateListener.
func (e *bleveEngine) OnFavoriteSaved(record *storage.FavoriteRecord) {
	_ = e.idx.Index(record.ID, docFor(record))
}

// OnFavoriteRemoved implements UpdateListener.
func (e *bleveEngine) OnFavoriteRemoved(id string) {
	_ = e.idx.Delete(id)
}

func docFor(record *storage.FavoriteRecord) storyDoc {
	return storyDoc{
		Name:        record.Name,
		Description: record.Description,
		Owner:       record.OwnerName(),
	}
}
