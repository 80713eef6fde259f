package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/user/bookscan-service/internal/entity"
	"github.com/user/bookscan-service/internal/repository"
	"github.com/user/bookscan-service/internal/similarity"
)

const searchLimit = 50

// Search statuses.
const (
	SearchFound          = "found"
	SearchParsingStarted = "parsing_started"
)

// SearchHit is a stored item with the matcher's verdict for the query.
type SearchHit struct {
	Item    entity.ScrapedItem `json:"item"`
	Similar bool               `json:"similar"`
	Reason  string             `json:"reason"`
}

// SearchResult is the answer of SmartSearch.
type SearchResult struct {
	Status string      `json:"status"`
	Query  string      `json:"query"`
	Hits   []SearchHit `json:"hits"`
	TaskID string      `json:"task_id,omitempty"`
}

// ParseSubmitter enqueues parse jobs.
type ParseSubmitter interface {
	SubmitParse(ctx context.Context, p entity.ParseQueryPayload) (string, error)
}

// SmartSearch answers queries from the record store and falls back to
// scheduling a scrape when nothing is stored.
type SmartSearch struct {
	items  repository.ItemRepository
	jobs   ParseSubmitter
	logger *zap.Logger
}

func NewSmartSearch(items repository.ItemRepository, jobs ParseSubmitter, logger *zap.Logger) *SmartSearch {
	return &SmartSearch{items: items, jobs: jobs, logger: logger}
}

func (s *SmartSearch) Search(ctx context.Context, query string) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrInvalidPayload)
	}

	stored, err := s.items.FindByWords(ctx, similarity.SearchWords(query), searchLimit)
	if err != nil {
		return nil, fmt.Errorf("search stored items: %w", err)
	}

	if len(stored) == 0 {
		id, err := s.jobs.SubmitParse(ctx, entity.ParseQueryPayload{Query: query, Source: entity.SourceChitaiGorod})
		if err != nil {
			return nil, err
		}
		s.logger.Info("nothing stored, parse scheduled", zap.String("query", query), zap.String("task_id", id))
		return &SearchResult{Status: SearchParsingStarted, Query: query, Hits: []SearchHit{}, TaskID: id}, nil
	}

	hits := make([]SearchHit, 0, len(stored))
	for _, item := range stored {
		ok, reason := similarity.IsSimilar(query, item.Title, item.AuthorName())
		hits = append(hits, SearchHit{Item: item, Similar: ok, Reason: reason})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Similar && !hits[j].Similar
	})
	return &SearchResult{Status: SearchFound, Query: query, Hits: hits}, nil
}
