package repository

import (
	"context"
	"time"

	"github.com/user/bookscan-service/internal/entity"
)

// CredentialRepository persists the catalog credential in the Shared Cache.
type CredentialRepository interface {
	// Load returns ErrNotFound when neither a token nor cookies are cached.
	Load(ctx context.Context) (*entity.AuthCredential, error)
	// Save overwrites the cached token and cookie jar with the given TTL.
	Save(ctx context.Context, cred *entity.AuthCredential, ttl time.Duration) error
}
