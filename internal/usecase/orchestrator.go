package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/user/bookscan-service/internal/catalog"
	"github.com/user/bookscan-service/internal/entity"
	"github.com/user/bookscan-service/internal/repository"
	"github.com/user/bookscan-service/internal/similarity"
	"github.com/user/bookscan-service/pkg/metrics"
)

// existingLookupLimit caps how many stored items CheckExisting compares.
const existingLookupLimit = 50

// ProductSearcher fetches normalized products from the catalog.
type ProductSearcher interface {
	SearchProducts(ctx context.Context, q catalog.SearchQuery) ([]entity.ScrapedItem, catalog.NormalizeReport, error)
}

// SearcherFactory returns the searcher for one job. The catalog client hands
// out a session per job so that every job may heal one expired token.
type SearcherFactory func() ProductSearcher

// CredentialChecker is the part of the Credential Store the orchestrator
// consults before scraping.
type CredentialChecker interface {
	Get(ctx context.Context) (*entity.AuthCredential, error)
	TriggerRefresh(ctx context.Context) error
}

// ParseOrchestrator runs one parse_query invocation:
// CheckExisting, Budget, Scrape, Persist, EnqueuePending.
type ParseOrchestrator struct {
	items     repository.ItemRepository
	parseLogs repository.ParseLogRepository
	searchers SearcherFactory
	creds     CredentialChecker
	limiter   *LoadAwareLimiter
	pending   *PendingQueue
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewParseOrchestrator(
	items repository.ItemRepository,
	parseLogs repository.ParseLogRepository,
	searchers SearcherFactory,
	creds CredentialChecker,
	limiter *LoadAwareLimiter,
	pending *PendingQueue,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ParseOrchestrator {
	return &ParseOrchestrator{
		items:     items,
		parseLogs: parseLogs,
		searchers: searchers,
		creds:     creds,
		limiter:   limiter,
		pending:   pending,
		metrics:   m,
		logger:    logger,
	}
}

// Run executes the parse state machine for one query. Catalog failures and a
// missing credential are soft: they are logged and reported in the result
// with a nil error. Only record-store failures and invalid input are returned.
func (o *ParseOrchestrator) Run(ctx context.Context, payload entity.ParseQueryPayload) (*entity.ParseResult, error) {
	payload, err := normalizeParsePayload(payload)
	if err != nil {
		return nil, err
	}
	query := payload.Query
	log := o.logger.With(zap.String("query", query))

	pending, err := o.pending.TakeIfPresent(ctx, query)
	if err != nil {
		log.Warn("pending entry lookup failed", zap.Error(err))
		pending = nil
	}

	matches, err := o.CheckExisting(ctx, query)
	if err != nil {
		o.restorePending(ctx, pending, log)
		return nil, err
	}

	result := &entity.ParseResult{Query: query, Decision: entity.DecisionFullScrape}
	if len(matches) > 0 && pending == nil {
		result.Decision = entity.DecisionSkip
		result.Items = matches
		result.Message = fmt.Sprintf("found %d stored items", len(matches))
		log.Info("parse skipped, similar items stored", zap.Int("matches", len(matches)))
		o.finish(ctx, result, "skipped")
		return result, nil
	}

	limited, budget := o.limiter.ShouldLimit(ctx)
	if pending != nil {
		result.Decision = entity.DecisionTopUp
		additional := max(0, o.limiter.NormalBudget()-pending.AlreadyFetched)
		budget = min(budget, additional)
		result.Offset = pending.AlreadyFetched
	}
	result.Budget = budget
	log = log.With(
		zap.String("decision", string(result.Decision)),
		zap.Int("budget", budget),
		zap.Int("offset", result.Offset),
		zap.Bool("load_limited", limited),
	)

	if budget == 0 {
		result.Items = matches
		result.Message = "budget exhausted, nothing to top up"
		log.Info("parse skipped, no budget left")
		o.finish(ctx, result, "skipped")
		return result, nil
	}

	cred, err := o.creds.Get(ctx)
	if err != nil || cred.Empty() {
		if trigErr := o.creds.TriggerRefresh(ctx); trigErr != nil {
			log.Warn("credential refresh trigger failed", zap.Error(trigErr))
		}
		o.restorePending(ctx, pending, log)
		return o.softFail(ctx, result, matches, ErrCredentialUnavailable, log), nil
	}

	scraped, report, err := o.searchers().SearchProducts(ctx, catalog.SearchQuery{
		Phrase:       query,
		Offset:       result.Offset,
		Limit:        budget,
		FetchDetails: payload.FetchDetails,
	})
	if err != nil {
		o.restorePending(ctx, pending, log)
		var apiErr *catalog.APIError
		if !errors.As(err, &apiErr) {
			return nil, fmt.Errorf("search %q: %w", query, err)
		}
		return o.softFail(ctx, result, matches, err, log), nil
	}

	inserted, updated, err := o.persist(ctx, scraped)
	if err != nil {
		return nil, err
	}
	result.ItemsFound = len(scraped)
	result.ItemsInserted = inserted
	result.ItemsUpdated = updated
	result.Items = scraped

	if len(scraped) >= budget {
		fetched := result.Offset + len(scraped)
		if _, err := o.pending.Add(ctx, query, scraped[0].AuthorName(), fetched); err != nil {
			log.Warn("pending entry write failed", zap.Error(err))
		} else {
			result.PendingQueued = true
		}
	}

	log.Info("parse completed",
		zap.Int("found", len(scraped)),
		zap.Int("inserted", inserted),
		zap.Int("updated", updated),
		zap.Int("malformed", report.Malformed),
		zap.Bool("pending", result.PendingQueued),
	)
	if len(scraped) == 0 {
		result.Message = "no results"
		o.finish(ctx, result, "no_results")
		return result, nil
	}
	result.Message = fmt.Sprintf("saved %d items", len(scraped))
	o.finish(ctx, result, "success")
	return result, nil
}

// CheckExisting returns stored items that the similarity matcher accepts for query.
func (o *ParseOrchestrator) CheckExisting(ctx context.Context, query string) ([]entity.ScrapedItem, error) {
	candidates, err := o.items.FindByWords(ctx, similarity.SearchWords(query), existingLookupLimit)
	if err != nil {
		return nil, fmt.Errorf("find stored items: %w", err)
	}
	var matches []entity.ScrapedItem
	for _, item := range candidates {
		if ok, _ := similarity.IsSimilar(query, item.Title, item.AuthorName()); ok {
			matches = append(matches, item)
		}
	}
	return matches, nil
}

func (o *ParseOrchestrator) persist(ctx context.Context, items []entity.ScrapedItem) (inserted, updated int, err error) {
	for i := range items {
		op, err := o.items.Upsert(ctx, &items[i])
		if err != nil {
			return inserted, updated, fmt.Errorf("upsert item %s: %w", items[i].SourceID, err)
		}
		if op == repository.OpInserted {
			inserted++
		} else {
			updated++
		}
	}
	o.metrics.AddItemsPersisted("inserted", inserted)
	o.metrics.AddItemsPersisted("updated", updated)
	return inserted, updated, nil
}

func (o *ParseOrchestrator) softFail(ctx context.Context, result *entity.ParseResult, matches []entity.ScrapedItem, cause error, log *zap.Logger) *entity.ParseResult {
	result.SoftFailure = softFailureCode(cause)
	result.Items = matches
	result.Message = cause.Error()
	log.Warn("parse soft failure", zap.String("reason", result.SoftFailure), zap.Error(cause))
	o.metrics.IncParseRun("soft_fail")
	o.saveLog(ctx, result, "error")
	return result
}

// restorePending puts back an entry taken at the start of a run that did not
// get to scrape, so the next run still tops up.
func (o *ParseOrchestrator) restorePending(ctx context.Context, entry *entity.PendingScrapeEntry, log *zap.Logger) {
	if entry == nil {
		return
	}
	if _, err := o.pending.Add(ctx, entry.RawQuery, entry.Author, entry.AlreadyFetched); err != nil {
		log.Warn("pending entry restore failed", zap.Error(err))
	}
}

func (o *ParseOrchestrator) finish(ctx context.Context, result *entity.ParseResult, status string) {
	o.metrics.IncParseRun(string(result.Decision))
	o.saveLog(ctx, result, status)
}

func (o *ParseOrchestrator) saveLog(ctx context.Context, result *entity.ParseResult, status string) {
	if o.parseLogs == nil {
		return
	}
	entry := &entity.ParseLog{
		Source:  entity.SourceChitaiGorod,
		Query:   result.Query,
		Status:  status,
		Message: result.Message,
		Items:   result.ItemsFound,
	}
	if err := o.parseLogs.Save(ctx, entry); err != nil {
		o.logger.Warn("parse log write failed", zap.String("query", result.Query), zap.Error(err))
	}
}

func softFailureCode(err error) string {
	if errors.Is(err, ErrCredentialUnavailable) {
		return "credential_unavailable"
	}
	return catalog.KindOf(err).String()
}
