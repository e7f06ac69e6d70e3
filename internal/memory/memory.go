// Package memory backs the `/memory add|recall|list|forget|clear` CLI
// surface (spec.md §6.3): a durable, searchable store of freeform notes
// the user or the model can record and later retrieve by keyword.
// Grounded on dodo's internal/indexer/bm25.go (BM25Index): same
// open-or-create-or-recover-from-corruption lifecycle, the same custom
// bleve.IndexMapping construction (keyword-analyzed id/tag fields,
// standard-analyzed searchable text), repurposed from indexing code chunks
// to indexing conversation memory entries.
package memory

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/google/uuid"

	"github.com/rivulet-labs/convcore/internal/applog"
)

var log = applog.For("memory")

// Entry is one remembered note.
type Entry struct {
	ID        string
	Text      string
	Tags      []string
	CreatedAt time.Time
}

// Store is a bleve-backed index of Entry values.
type Store struct {
	index bleve.Index
	path  string
}

// Open creates or opens the memory index at path. A corrupted index is
// deleted and recreated rather than left unusable, mirroring dodo's
// BM25Index recovery behavior.
func Open(path string) (*Store, error) {
	index, err := bleve.Open(path)
	switch {
	case err == bleve.ErrorIndexPathDoesNotExist:
		index, err = bleve.New(path, buildMapping())
		if err != nil {
			return nil, fmt.Errorf("create memory index: %w", err)
		}
	case err != nil:
		log.Warn().Err(err).Str("path", path).Msg("memory index appears corrupted, recreating")
		if index != nil {
			index.Close()
		}
		if rmErr := os.RemoveAll(path); rmErr != nil {
			log.Warn().Err(rmErr).Msg("failed to remove corrupted memory index")
		}
		index, err = bleve.New(path, buildMapping())
		if err != nil {
			return nil, fmt.Errorf("recreate memory index: %w", err)
		}
	}
	return &Store{index: index, path: path}, nil
}

func buildMapping() mapping.IndexMapping {
	entryMapping := bleve.NewDocumentMapping()

	idField := bleve.NewTextFieldMapping()
	idField.Analyzer = keyword.Name
	idField.Store = true
	entryMapping.AddFieldMappingsAt("id", idField)

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	textField.Store = true
	entryMapping.AddFieldMappingsAt("text", textField)

	tagField := bleve.NewTextFieldMapping()
	tagField.Analyzer = keyword.Name
	tagField.Store = true
	entryMapping.AddFieldMappingsAt("tags", tagField)

	createdField := bleve.NewTextFieldMapping()
	createdField.Analyzer = keyword.Name
	createdField.Store = true
	entryMapping.AddFieldMappingsAt("created_at", createdField)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = entryMapping
	return im
}

// Add indexes a new entry and returns it with its assigned id and
// timestamp populated.
func (s *Store) Add(text string, tags []string) (Entry, error) {
	e := Entry{ID: uuid.NewString(), Text: text, Tags: tags, CreatedAt: time.Now()}
	if err := s.index.Index(e.ID, toDoc(e)); err != nil {
		return Entry{}, fmt.Errorf("index memory entry: %w", err)
	}
	return e, nil
}

// Recall runs a keyword search over stored entries, most relevant first.
func (s *Store) Recall(query string, k int) ([]Entry, error) {
	if k <= 0 {
		k = 10
	}
	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	req.Size = k
	req.Fields = []string{"id", "text", "tags", "created_at"}

	result, err := s.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("recall: %w", err)
	}
	out := make([]Entry, 0, len(result.Hits))
	for _, hit := range result.Hits {
		out = append(out, fromFields(hit.ID, hit.Fields))
	}
	return out, nil
}

// List returns every stored entry, oldest first.
func (s *Store) List() ([]Entry, error) {
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = maxListSize
	req.Fields = []string{"id", "text", "tags", "created_at"}

	result, err := s.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	out := make([]Entry, 0, len(result.Hits))
	for _, hit := range result.Hits {
		out = append(out, fromFields(hit.ID, hit.Fields))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

const maxListSize = 10000

// Forget removes one entry by id. It is a no-op if the id is absent.
func (s *Store) Forget(id string) error {
	return s.index.Delete(id)
}

// Clear removes every entry by recreating the index at the same path.
func (s *Store) Clear() error {
	if err := s.index.Close(); err != nil {
		return fmt.Errorf("close memory index before clear: %w", err)
	}
	if err := os.RemoveAll(s.path); err != nil {
		return fmt.Errorf("remove memory index: %w", err)
	}
	index, err := bleve.New(s.path, buildMapping())
	if err != nil {
		return fmt.Errorf("recreate memory index after clear: %w", err)
	}
	s.index = index
	return nil
}

// Close releases the underlying index.
func (s *Store) Close() error {
	return s.index.Close()
}

func toDoc(e Entry) map[string]any {
	return map[string]any{
		"id":         e.ID,
		"text":       e.Text,
		"tags":       e.Tags,
		"created_at": e.CreatedAt.Format(time.RFC3339Nano),
	}
}

func fromFields(id string, fields map[string]any) Entry {
	e := Entry{ID: id}
	if v, ok := fields["text"].(string); ok {
		e.Text = v
	}
	if v, ok := fields["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			e.CreatedAt = t
		}
	}
	switch v := fields["tags"].(type) {
	case string:
		e.Tags = []string{v}
	case []any:
		for _, t := range v {
			if s, ok := t.(string); ok {
				e.Tags = append(e.Tags, s)
			}
		}
	}
	return e
}
