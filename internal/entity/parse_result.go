package entity

import "time"

// ParseDecision is the branch a parse run took after CheckExisting.
type ParseDecision string

const (
	DecisionSkip       ParseDecision = "skip"
	DecisionTopUp      ParseDecision = "top_up"
	DecisionFullScrape ParseDecision = "full_scrape"
)

// ParseResult summarizes one orchestrator run.
type ParseResult struct {
	Query         string        `json:"query"`
	Decision      ParseDecision `json:"decision"`
	Budget        int           `json:"budget"`
	Offset        int           `json:"offset"`
	ItemsFound    int           `json:"items_found"`
	ItemsInserted int           `json:"items_inserted"`
	ItemsUpdated  int           `json:"items_updated"`
	PendingQueued bool          `json:"pending_queued"`
	SoftFailure   string        `json:"soft_failure,omitempty"`
	Items         []ScrapedItem `json:"items,omitempty"`
	Message       string        `json:"message"`
}

// ParseLog mirrors the `parse_logs` PostgreSQL table.
type ParseLog struct {
	ID        int64
	Source    string
	Query     string
	Status    string // "success", "no_results", "skipped", "error"
	Message   string
	Items     int
	CreatedAt time.Time
}
