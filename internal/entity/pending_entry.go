package entity

import "time"

// PendingScrapeEntry records that a query's scrape was truncated by the load
// budget and should be topped up on the next run.
type PendingScrapeEntry struct {
	QueryKey       string    `json:"query_key"`
	RawQuery       string    `json:"raw_query"`
	Author         string    `json:"author,omitempty"`
	AlreadyFetched int       `json:"already_fetched"`
	CreatedAt      time.Time `json:"created_at"`
}
