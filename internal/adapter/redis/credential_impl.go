package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/bookscan-service/internal/entity"
	"github.com/user/bookscan-service/internal/repository"
)

// Key names are shared with the deployments that already cache the catalog
// credential, so they keep the catalog's name.
const (
	tokenKey      = "chitai_gorod_token"
	cookiesKey    = "chitai_gorod_cookies"
	acquiredAtKey = "chitai_gorod_token_acquired_at"
)

// CredentialRepoImpl stores the bearer token and cookie jar as plain keys
// with a common TTL.
type CredentialRepoImpl struct {
	client *redis.Client
}

// NewCredentialRepo creates a new instance of CredentialRepoImpl.
func NewCredentialRepo(client *redis.Client) *CredentialRepoImpl {
	return &CredentialRepoImpl{client: client}
}

// Load reads the token, cookie jar and remaining TTL in one round trip.
func (r *CredentialRepoImpl) Load(ctx context.Context) (*entity.AuthCredential, error) {
	pipe := r.client.Pipeline()
	tokenCmd := pipe.Get(ctx, tokenKey)
	cookiesCmd := pipe.Get(ctx, cookiesKey)
	acquiredCmd := pipe.Get(ctx, acquiredAtKey)
	ttlCmd := pipe.TTL(ctx, tokenKey)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	cred := &entity.AuthCredential{}
	if token, err := tokenCmd.Result(); err == nil {
		cred.Token = token
	}
	if raw, err := cookiesCmd.Bytes(); err == nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, &cred.Cookies); err != nil {
			return nil, fmt.Errorf("decode cached cookies: %w", err)
		}
	}
	if cred.Token == "" && len(cred.Cookies) == 0 {
		return nil, repository.ErrNotFound
	}
	if raw, err := acquiredCmd.Result(); err == nil {
		if at, err := time.Parse(time.RFC3339, raw); err == nil {
			cred.AcquiredAt = at
		}
	}
	if ttl, err := ttlCmd.Result(); err == nil && ttl > 0 {
		cred.TTLSeconds = int(ttl.Seconds())
	}
	return cred, nil
}

// Save overwrites the cached credential as a whole. A credential without
// cookies clears the previously cached jar.
func (r *CredentialRepoImpl) Save(ctx context.Context, cred *entity.AuthCredential, ttl time.Duration) error {
	acquired := cred.AcquiredAt
	if acquired.IsZero() {
		acquired = time.Now()
	}
	var cookies []byte
	if len(cred.Cookies) > 0 {
		var err error
		if cookies, err = json.Marshal(cred.Cookies); err != nil {
			return fmt.Errorf("encode cookies: %w", err)
		}
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, tokenKey, cred.Token, ttl)
		pipe.Set(ctx, acquiredAtKey, acquired.UTC().Format(time.RFC3339), ttl)
		if cookies != nil {
			pipe.Set(ctx, cookiesKey, cookies, ttl)
		} else {
			pipe.Del(ctx, cookiesKey)
		}
		return nil
	})
	return err
}
