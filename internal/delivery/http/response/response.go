package response

import (
	"time"

	"github.com/user/bookscan-service/internal/catalog"
)

type TaskAcceptedResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	TaskID  string `json:"task_id"`
}

type SimilarityResponse struct {
	Similar bool   `json:"similar"`
	Reason  string `json:"reason"`
}

// PendingResponse mirrors entity.PendingScrapeEntry.
type PendingResponse struct {
	QueryKey       string    `json:"query_key"`
	RawQuery       string    `json:"raw_query"`
	Author         string    `json:"author,omitempty"`
	AlreadyFetched int       `json:"already_fetched"`
	CreatedAt      time.Time `json:"created_at"`
}

type ParseLogResponse struct {
	ID        int64     `json:"id"`
	Source    string    `json:"source"`
	Query     string    `json:"query"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Items     int       `json:"items"`
	CreatedAt time.Time `json:"created_at"`
}

type StatsResponse struct {
	QueueDepth  int64                  `json:"queue_depth"`
	Catalog     catalog.RateLimitState `json:"catalog"`
	SuccessRate float64                `json:"success_rate"`
}
