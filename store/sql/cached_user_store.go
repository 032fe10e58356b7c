package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-identity-sync/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const userCacheKeyPrefix = "go-identity-sync::user::v1"

// CachedUserStore serves FindByExternalID from a read-through cache and drops
// the cached entry after every write, successful or not.
type CachedUserStore struct {
	base  core.UserStore
	cache repositorycache.CacheService
}

// cachedLookup caches misses as well as hits.
type cachedLookup struct {
	Found  bool
	Record core.UserRecord
}

func NewCachedUserStore(base core.UserStore, cacheService repositorycache.CacheService) (*CachedUserStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base user store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: user cache service is required")
	}
	return &CachedUserStore{base: base, cache: cacheService}, nil
}

// UserCacheKey returns go-identity-sync::user::v1::<external_id> with the id
// URL-path escaped.
func UserCacheKey(externalID string) (string, error) {
	trimmed := strings.TrimSpace(externalID)
	if trimmed == "" {
		return "", fmt.Errorf("sqlstore: external id is required")
	}
	return userCacheKeyPrefix + "::" + url.PathEscape(trimmed), nil
}

func (s *CachedUserStore) FindByExternalID(ctx context.Context, externalID string) (*core.UserRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached user store is not configured")
	}
	cacheKey, err := UserCacheKey(externalID)
	if err != nil {
		return nil, err
	}
	lookup, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (cachedLookup, error) {
		found, fetchErr := s.base.FindByExternalID(ctx, externalID)
		if fetchErr != nil {
			return cachedLookup{}, fetchErr
		}
		if found == nil {
			return cachedLookup{}, nil
		}
		return cachedLookup{Found: true, Record: found.Clone()}, nil
	})
	if err != nil {
		return nil, err
	}
	if !lookup.Found {
		return nil, nil
	}
	record := lookup.Record.Clone()
	return &record, nil
}

func (s *CachedUserStore) CreateOrReincarnate(ctx context.Context, record core.UserRecord) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached user store is not configured")
	}
	return s.invalidateAfter(ctx, record.ExternalID, s.base.CreateOrReincarnate(ctx, record))
}

func (s *CachedUserStore) Update(ctx context.Context, externalID string, attributes core.Attributes, version int64, eventID string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached user store is not configured")
	}
	return s.invalidateAfter(ctx, externalID, s.base.Update(ctx, externalID, attributes, version, eventID))
}

func (s *CachedUserStore) Tombstone(ctx context.Context, externalID string, version int64, eventID string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached user store is not configured")
	}
	return s.invalidateAfter(ctx, externalID, s.base.Tombstone(ctx, externalID, version, eventID))
}

// invalidateAfter also runs on failed writes: a version conflict means another
// writer moved the row and the cached copy is stale.
func (s *CachedUserStore) invalidateAfter(ctx context.Context, externalID string, writeErr error) error {
	cacheKey, err := UserCacheKey(externalID)
	if err != nil {
		if writeErr != nil {
			return writeErr
		}
		return err
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil && writeErr == nil {
		return err
	}
	return writeErr
}
