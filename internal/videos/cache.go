package videos

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"

	"github.com/vidfriends/streamer/internal/logging"
)

const (
	defaultCacheTTL     = 30 * time.Minute
	defaultCacheSize    = 1024
	defaultRetryBackoff = 500 * time.Millisecond
	defaultFetchTimeout = 45 * time.Second
)

// CacheOptions tunes the metadata cache. Non-positive TTL, Size, Backoff and
// Timeout select the defaults.
type CacheOptions struct {
	TTL  time.Duration
	Size int
	// Retries counts attempts after the first, so zero or less never retries.
	Retries int
	Backoff time.Duration
	// Timeout bounds one coalesced resolve across all of its attempts.
	Timeout time.Duration
}

type cacheEntry struct {
	metadata Metadata
	created  time.Time
	expires  time.Time
}

// Cache wraps a Provider with a TTL cache, per-identifier single-flight
// coalescing and a bounded retry policy for transient failures.
type Cache struct {
	base    Provider
	ttl     time.Duration
	timeout time.Duration

	now        func() time.Time
	newBackoff func() retry.Backoff

	// mu orders insertions against expiry removals; lookups go straight to items.
	mu     sync.Mutex
	items  *lru.Cache[Identifier, cacheEntry]
	flight singleflight.Group
}

// NewCache returns a Cache in front of base.
func NewCache(base Provider, opts CacheOptions) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = defaultCacheTTL
	}
	if opts.Size <= 0 {
		opts.Size = defaultCacheSize
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultRetryBackoff
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultFetchTimeout
	}

	// lru.New only fails for non-positive sizes.
	items, _ := lru.New[Identifier, cacheEntry](opts.Size)

	retries, backoff := uint64(opts.Retries), opts.Backoff
	return &Cache{
		base:    base,
		ttl:     opts.TTL,
		timeout: opts.Timeout,
		now:     time.Now,
		newBackoff: func() retry.Backoff {
			return retry.WithMaxRetries(retries, retry.NewExponential(backoff))
		},
		items: items,
	}
}

// Lookup resolves id through the cache using the configured base provider.
func (c *Cache) Lookup(ctx context.Context, id Identifier) (Metadata, error) {
	if c == nil || c.base == nil {
		return Metadata{}, ErrProviderUnavailable
	}
	return c.Resolve(ctx, id, c.base)
}

// Resolve returns live cached metadata for id, or fetches it once for all
// concurrent callers and caches the result. Callers that give up early stop
// waiting without cancelling the shared fetch.
func (c *Cache) Resolve(ctx context.Context, id Identifier, fetch Provider) (Metadata, error) {
	if c == nil || fetch == nil {
		return Metadata{}, ErrProviderUnavailable
	}

	if md, ok := c.get(id); ok {
		return md, nil
	}

	results := c.flight.DoChan(string(id), func() (any, error) {
		if md, ok := c.get(id); ok {
			return md, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		md, err := c.fetch(fetchCtx, id, fetch)
		if err != nil {
			return Metadata{}, err
		}
		c.store(id, md)
		return md, nil
	})

	select {
	case <-ctx.Done():
		return Metadata{}, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return Metadata{}, res.Err
		}
		return res.Val.(Metadata), nil
	}
}

// Len reports the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	return c.items.Len()
}

func (c *Cache) fetch(ctx context.Context, id Identifier, fetch Provider) (Metadata, error) {
	ctx, span := logging.StartSpan(ctx, "metadata.resolve", "video_id", id.String())

	var (
		md      Metadata
		lastErr error
		attempt int
	)
	err := retry.Do(ctx, c.newBackoff(), func(ctx context.Context) error {
		attempt++
		result, err := fetch.Lookup(ctx, id)
		if err == nil {
			md = result
			return nil
		}
		lastErr = err
		if _, limited := AsRateLimited(err); limited {
			return err
		}
		logging.FromContext(ctx).Debug("metadata fetch attempt failed", "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
	if err != nil && lastErr != nil && !errors.Is(err, lastErr) {
		// The overall deadline fired while backing off.
		err = fmt.Errorf("%w (after %d attempts: %v)", lastErr, attempt, err)
	}
	span.End(err)
	if err != nil {
		return Metadata{}, fmt.Errorf("resolve %s: %w", id, err)
	}
	return normalize(md), nil
}

func (c *Cache) get(id Identifier) (Metadata, bool) {
	entry, ok := c.items.Get(id)
	if !ok {
		return Metadata{}, false
	}
	if c.now().Before(entry.expires) {
		return entry.metadata, true
	}

	c.mu.Lock()
	if current, ok := c.items.Peek(id); ok && !c.now().Before(current.expires) {
		c.items.Remove(id)
	}
	c.mu.Unlock()
	return Metadata{}, false
}

func (c *Cache) store(id Identifier, md Metadata) {
	now := c.now()
	c.mu.Lock()
	c.items.Add(id, cacheEntry{metadata: md, created: now, expires: now.Add(c.ttl)})
	c.mu.Unlock()
}
