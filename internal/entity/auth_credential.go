package entity

import "time"

// AuthCredential is the bearer token and cookie jar used against the catalog API.
type AuthCredential struct {
	Token      string            `json:"token"`
	Cookies    map[string]string `json:"cookies,omitempty"`
	AcquiredAt time.Time         `json:"acquired_at"`
	TTLSeconds int               `json:"ttl_seconds"`
}

// Empty reports whether the credential carries no token.
func (c *AuthCredential) Empty() bool {
	return c == nil || c.Token == ""
}

// RefreshOutcome is the status notification emitted after a refresh attempt.
type RefreshOutcome struct {
	Status       string    `json:"status"` // "success" or "error"
	Message      string    `json:"message"`
	TokenPreview string    `json:"token_preview,omitempty"`
	Backend      string    `json:"backend,omitempty"`
	At           time.Time `json:"at"`
}
