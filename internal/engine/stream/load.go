package stream

import (
	"context"
	"errors"

	eerrors "github.com/dshills/streamview/internal/engine/errors"
	"github.com/dshills/streamview/internal/engine/segment"
	"github.com/dshills/streamview/internal/recovery"
)

// LoadSegment serves a random-access segment read through the cache.
//
// The cache key is start rounded down to a chunk boundary, so repeated
// loads within the same chunk hit the same entry. On a miss the read
// goes through the recovery layer with a reduced-length fallback when
// memory is exhausted; the result is cached best-effort and returned.
// Caching never blocks correctness: under memory pressure the cache is
// cleared and the segment is still returned.
func (e *Engine) LoadSegment(ctx context.Context, path string, start, length uint64) (*segment.TextSegment, error) {
	if path == "" || length == 0 {
		return nil, eerrors.NewPathError("load", path, eerrors.ErrInvalidInput)
	}

	key := segment.AlignToChunk(start, e.chunkSize)

	// The cache is keyed by offset alone and follows one file at a
	// time; switching files invalidates it.
	e.mu.Lock()
	if e.cachePath != path {
		if e.cachePath != "" {
			e.cache.Clear()
		}
		e.cachePath = path
	}
	e.mu.Unlock()

	if seg, ok := e.cache.Get(key); ok {
		return seg, nil
	}

	// Load from the chunk boundary through the end of the requested
	// range, at least one full chunk, so the cached entry can serve
	// neighboring requests.
	loadLen := start + length - key
	if loadLen < e.chunkSize {
		loadLen = e.chunkSize
	}

	res := recovery.RecoverMemoryOperation(e.recoverer,
		func() (*segment.TextSegment, error) {
			r := recovery.ExecuteWithRetry(ctx, e.recoverer, "load segment",
				func(ctx context.Context) (*segment.TextSegment, error) {
					return e.reader.ReadSegment(ctx, path, key, loadLen)
				})
			if !r.Success {
				return nil, r.Err
			}
			return r.Value, nil
		},
		func() (*segment.TextSegment, error) {
			// Re-attempt at reduced length when memory is exhausted.
			reduced := loadLen / 2
			if reduced == 0 {
				reduced = 1
			}
			return e.reader.ReadSegment(ctx, path, key, reduced)
		})

	if !res.Success {
		if res.Err != nil {
			return nil, res.Err
		}
		return nil, eerrors.NewPathError("load", path, eerrors.ErrIOFailure)
	}

	seg := res.Value
	if res.Strategy == recovery.StrategyRetry {
		e.cache.Put(key, seg)
	} else {
		// The load only succeeded under memory pressure; keep the
		// cache empty rather than growing it.
		e.cache.ReleaseMemory()
	}
	return seg, nil
}

// LoadSegmentResult reports a cached load together with the recovery
// outcome, for callers that surface attempt counts to the user.
func (e *Engine) LoadSegmentResult(ctx context.Context, path string, start, length uint64) recovery.Result[*segment.TextSegment] {
	seg, err := e.LoadSegment(ctx, path, start, length)
	res := recovery.Result[*segment.TextSegment]{
		Strategy: recovery.StrategyRetry,
		Attempts: 1,
	}
	if err != nil {
		res.Err = err
		res.ErrorMessage = err.Error()
		if eerrors.IsCancelled(err) {
			res.Strategy = recovery.StrategyUserIntervention
		}
		if errors.Is(err, eerrors.ErrMemoryExhausted) {
			res.Strategy = recovery.StrategyGracefulDegradation
		}
		return res
	}
	res.Success = true
	res.Value = seg
	return res
}
