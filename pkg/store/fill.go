package store

import (
	"context"
	"fmt"

	"github.com/kestrel-cache/itemkernel/pkg/item"
)

// Loader computes the value (and expiry) to store under key on a GetOrFill
// miss. It is invoked with the context GetOrFill was called with and should
// honor it for cancellation and deadlines, the same contract the teacher's
// LoaderFunc documents.
type Loader func(ctx context.Context, key []byte) (val []byte, exptime uint32, err error)

// GetOrFill returns the linked item under key if present and unexpired.
// On a miss it calls loader to compute a replacement and stores it,
// deduplicating concurrent misses for the same key through singleflight so
// a thundering herd of callers runs loader exactly once, the same pattern
// the teacher's pkg/loader.go applies to its GetOrLoad. Like the teacher's
// loaderGroup.load, the context is threaded into the loader and checked
// after the singleflight call returns, so a caller whose ctx is canceled or
// times out while waiting on another goroutine's in-flight load gets that
// error back instead of a stale nil error.
func (s *Store) GetOrFill(ctx context.Context, key []byte, loader Loader) (*item.Item, error) {
	if it, found := s.Get(key); found {
		return it, nil
	}

	_, err, _ := s.sf.Do(string(key), func() (interface{}, error) {
		// Re-check under the flight group: another goroutine may have
		// already filled key while we were queued behind Do.
		if it, found := s.Get(key); found {
			s.Release(it)
			return nil, nil
		}
		val, exptime, err := loader(ctx, key)
		if err != nil {
			return nil, err
		}
		if status := s.Set(key, val, exptime); status != item.OK {
			return nil, fmt.Errorf("store: fill failed to set %q: %s", key, status)
		}
		return nil, nil
	})
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	it, found := s.Get(key)
	if !found {
		return nil, fmt.Errorf("store: fill succeeded but %q was gone on re-read", key)
	}
	return it, nil
}
