package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/bookscan-service/internal/catalog"
	"github.com/user/bookscan-service/internal/entity"
	"github.com/user/bookscan-service/internal/repository"
	"github.com/user/bookscan-service/pkg/metrics"
)

// PopularQueries are the searches the discount sweep walks.
var PopularQueries = []string{
	"книги", "программирование", "python", "javascript", "java",
	"математика", "бизнес", "психология", "фантастика", "детектив",
}

// SweepOptions tunes DiscountSweep.
type SweepOptions struct {
	Queries     []string
	PageSize    int
	MinDiscount int
	Concurrency int
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Queries  int                  `json:"queries"`
	Failed   int                  `json:"failed"`
	Found    int                  `json:"found"`
	Inserted int                  `json:"inserted"`
	Updated  int                  `json:"updated"`
	Top      []entity.ScrapedItem `json:"top,omitempty"`
}

// DiscountSweep scans popular queries for discounted books and stores them.
type DiscountSweep struct {
	searchers SearcherFactory
	items     repository.ItemRepository
	parseLogs repository.ParseLogRepository
	opts      SweepOptions
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewDiscountSweep(searchers SearcherFactory, items repository.ItemRepository, parseLogs repository.ParseLogRepository, opts SweepOptions, m *metrics.Metrics, logger *zap.Logger) *DiscountSweep {
	if len(opts.Queries) == 0 {
		opts.Queries = PopularQueries
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	return &DiscountSweep{
		searchers: searchers,
		items:     items,
		parseLogs: parseLogs,
		opts:      opts,
		metrics:   m,
		logger:    logger,
	}
}

// Run fetches one page per query, keeps items at or above the minimum
// discount, dedupes them by source id and persists them, highest discount
// first. Individual query failures are logged and counted; the sweep only
// fails when every query failed or the record store errors.
func (s *DiscountSweep) Run(ctx context.Context) (*SweepResult, error) {
	var (
		mu     sync.Mutex
		found  = make(map[string]entity.ScrapedItem)
		failed int
	)

	searcher := s.searchers()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for _, q := range s.opts.Queries {
		g.Go(func() error {
			items, _, err := searcher.SearchProducts(gctx, catalog.SearchQuery{Phrase: q, Limit: s.opts.PageSize})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				s.logger.Warn("sweep query failed", zap.String("query", q), zap.Error(err))
				return nil
			}
			for _, item := range items {
				if item.Discount() < s.opts.MinDiscount {
					continue
				}
				found[item.SourceID] = item
			}
			return nil
		})
	}
	_ = g.Wait()

	result := &SweepResult{Queries: len(s.opts.Queries), Failed: failed}
	if failed == len(s.opts.Queries) && failed > 0 {
		s.saveLog(ctx, "discounts_error", "all sweep queries failed", 0)
		return result, fmt.Errorf("discount sweep: all %d queries failed", failed)
	}

	discounted := make([]entity.ScrapedItem, 0, len(found))
	for _, item := range found {
		discounted = append(discounted, item)
	}
	sort.SliceStable(discounted, func(i, j int) bool {
		if discounted[i].Discount() != discounted[j].Discount() {
			return discounted[i].Discount() > discounted[j].Discount()
		}
		return discounted[i].SourceID < discounted[j].SourceID
	})

	for i := range discounted {
		op, err := s.items.Upsert(ctx, &discounted[i])
		if err != nil {
			return result, fmt.Errorf("upsert discounted item %s: %w", discounted[i].SourceID, err)
		}
		if op == repository.OpInserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}
	s.metrics.AddItemsPersisted("inserted", result.Inserted)
	s.metrics.AddItemsPersisted("updated", result.Updated)

	result.Found = len(discounted)
	result.Top = discounted[:min(10, len(discounted))]

	if result.Found == 0 {
		s.saveLog(ctx, "no_discounts", "no discounted books found", 0)
	} else {
		s.saveLog(ctx, "discounts_found", fmt.Sprintf("stored %d discounted books", result.Found), result.Found)
	}
	s.logger.Info("discount sweep completed",
		zap.Int("queries", result.Queries),
		zap.Int("failed", result.Failed),
		zap.Int("found", result.Found),
		zap.Int("inserted", result.Inserted),
	)
	return result, nil
}

func (s *DiscountSweep) saveLog(ctx context.Context, status, message string, items int) {
	if s.parseLogs == nil {
		return
	}
	entry := &entity.ParseLog{
		Source:  entity.SourceChitaiGorod,
		Query:   "discount_sweep",
		Status:  status,
		Message: message,
		Items:   items,
	}
	if err := s.parseLogs.Save(ctx, entry); err != nil {
		s.logger.Warn("parse log write failed", zap.Error(err))
	}
}
