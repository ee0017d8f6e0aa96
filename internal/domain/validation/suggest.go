package validation

import (
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/template"
)

// conceptDocument is one chart-of-accounts concept as indexed.
type conceptDocument struct {
	Concept string `json:"concept"`
	Kind    string `json:"kind"`
}

// ConceptSuggestion is a whitelist concept scored against a rejected label.
type ConceptSuggestion struct {
	Concept string  `json:"concept"`
	Score   float64 `json:"score"`
}

// ConceptIndex suggests close chart-of-accounts concepts for rejected
// labels using an in-memory full-text index.
type ConceptIndex struct {
	index   bleve.Index
	indexMu sync.RWMutex
}

// NewConceptIndex builds the index over the P&L concept whitelist plus the
// balance sheet section headers.
func NewConceptIndex() (*ConceptIndex, error) {
	index, err := bleve.NewMemOnly(conceptIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create concept index: %w", err)
	}

	batch := index.NewBatch()
	for i, concept := range template.PGCProfitLossConcepts {
		doc := conceptDocument{Concept: concept, Kind: "pyg"}
		if err := batch.Index(fmt.Sprintf("pyg_%d", i), doc); err != nil {
			return nil, fmt.Errorf("failed to index concept %q: %w", concept, err)
		}
	}
	for i, header := range template.BalanceSectionHeaders {
		doc := conceptDocument{Concept: header, Kind: "balance"}
		if err := batch.Index(fmt.Sprintf("balance_%d", i), doc); err != nil {
			return nil, fmt.Errorf("failed to index section %q: %w", header, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		return nil, fmt.Errorf("failed to execute batch index: %w", err)
	}

	return &ConceptIndex{index: index}, nil
}

func conceptIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = simple.Name

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("concept", textFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = simple.Name
	return indexMapping
}

// Suggest returns up to limit whitelist concepts close to the given label,
// best match first. Typo tolerance is one edit per token.
func (ci *ConceptIndex) Suggest(label string, limit int) ([]ConceptSuggestion, error) {
	ci.indexMu.RLock()
	defer ci.indexMu.RUnlock()

	if limit <= 0 {
		limit = 5
	}

	matchQuery := bleve.NewMatchQuery(label)
	matchQuery.SetFuzziness(1)

	searchRequest := bleve.NewSearchRequest(matchQuery)
	searchRequest.Size = limit
	searchRequest.Fields = []string{"concept"}

	searchResults, err := ci.index.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("concept search failed: %w", err)
	}

	suggestions := make([]ConceptSuggestion, 0, len(searchResults.Hits))
	for _, hit := range searchResults.Hits {
		concept, ok := hit.Fields["concept"].(string)
		if !ok {
			continue
		}
		suggestions = append(suggestions, ConceptSuggestion{Concept: concept, Score: hit.Score})
	}
	return suggestions, nil
}

func (ci *ConceptIndex) Close() error {
	ci.indexMu.Lock()
	defer ci.indexMu.Unlock()
	return ci.index.Close()
}
