package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/echoself-ai/echoself/internal/domain"
)

const namespaceCacheSize = 4096

// NamespaceResolver maps a twin to its physical vector-index partitions.
//
// Two schemes coexist. The current scheme scopes the partition to the owner
// ("owner-<ref>.twin-<id>"), which is safe across tenants; the legacy scheme
// used the bare twin id. Until every legacy namespace has been backfilled,
// dual-read mode queries both, current first.
type NamespaceResolver struct {
	twins TwinStore
	cache *expirable.LRU[string, []string]
}

// NewNamespaceResolver builds a resolver with a TTL cache keyed by twin id.
// Entries expire after ttl and can be dropped explicitly via Invalidate.
func NewNamespaceResolver(twins TwinStore, ttl time.Duration) *NamespaceResolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &NamespaceResolver{
		twins: twins,
		cache: expirable.NewLRU[string, []string](namespaceCacheSize, nil, ttl),
	}
}

// CurrentNamespace derives the tenant-safe partition key.
func CurrentNamespace(ownerRef, twinID string) string {
	return fmt.Sprintf("owner-%s.twin-%s", ownerRef, twinID)
}

// LegacyNamespace derives the pre-migration partition key.
func LegacyNamespace(twinID string) string {
	return twinID
}

// Resolve returns 1-2 namespace candidates ordered most-specific first. The
// second return reports a degraded resolution (owner lookup failed and only
// the legacy candidate is usable).
//
// A failed lookup is never cached: the next call retries instead of pinning
// the twin to "no owner" until restart. Successful resolutions are cached for
// the TTL, so resolution is idempotent within the window.
func (r *NamespaceResolver) Resolve(ctx context.Context, twin domain.TwinRef, dualRead bool) ([]string, bool) {
	if cached, ok := r.cache.Get(twin.ID); ok {
		return r.applyMode(cached, dualRead), false
	}

	ownerRef := twin.OwnerRef
	if ownerRef == "" {
		resolved, err := r.twins.GetOwnerRef(ctx, twin.ID)
		if err != nil {
			// Legacy-only fallback, not cacheable.
			log.Printf("namespace: owner lookup failed for twin %s (falling back to legacy namespace): %v", twin.ID, err)
			return []string{LegacyNamespace(twin.ID)}, true
		}
		ownerRef = resolved
	}

	candidates := []string{CurrentNamespace(ownerRef, twin.ID), LegacyNamespace(twin.ID)}
	r.cache.Add(twin.ID, candidates)

	return r.applyMode(candidates, dualRead), false
}

// Invalidate drops the cached resolution for a twin, forcing a fresh owner
// lookup on the next request. Used after ownership changes.
func (r *NamespaceResolver) Invalidate(twinID string) {
	r.cache.Remove(twinID)
}

func (r *NamespaceResolver) applyMode(candidates []string, dualRead bool) []string {
	if dualRead || len(candidates) == 0 {
		return candidates
	}
	return candidates[:1]
}
