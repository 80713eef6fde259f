package request

// SubmitParseRequest is the body of POST /api/parse.
type SubmitParseRequest struct {
	Query        string `json:"query"`
	Source       string `json:"source"`
	FetchDetails bool   `json:"fetch_details"`
}

// PresenceRequest is the body of POST /api/presence.
type PresenceRequest struct {
	UserID string `json:"user_id"`
}
