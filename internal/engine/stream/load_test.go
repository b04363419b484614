package stream

import (
	"context"
	"errors"
	"strings"
	"testing"

	eerrors "github.com/dshills/streamview/internal/engine/errors"
	"github.com/dshills/streamview/internal/recovery"
	"github.com/dshills/streamview/internal/vfs"
)

// faultFS fails Open a configured number of times before delegating.
type faultFS struct {
	vfs.VFS
	failures int
	err      error
}

func (f *faultFS) Open(path string) (vfs.File, error) {
	if f.failures > 0 {
		f.failures--
		return nil, f.err
	}
	return f.VFS.Open(path)
}

func TestLoadSegment_Basic(t *testing.T) {
	eng := newTestEngine(t, map[string]string{"/f.txt": "0123456789"}, WithChunkSize(4))

	seg, err := eng.LoadSegment(context.Background(), "/f.txt", 0, 4)
	if err != nil {
		t.Fatalf("LoadSegment failed: %v", err)
	}
	if seg.Content != "0123" {
		t.Errorf("Content = %q", seg.Content)
	}
}

func TestLoadSegment_Validation(t *testing.T) {
	eng := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := eng.LoadSegment(ctx, "", 0, 4); !errors.Is(err, eerrors.ErrInvalidInput) {
		t.Errorf("empty path: got %v", err)
	}
	if _, err := eng.LoadSegment(ctx, "/f.txt", 0, 0); !errors.Is(err, eerrors.ErrInvalidInput) {
		t.Errorf("zero length: got %v", err)
	}
}

func TestLoadSegment_CacheTransparency(t *testing.T) {
	eng := newTestEngine(t, map[string]string{"/f.txt": strings.Repeat("x", 100)}, WithChunkSize(10))
	ctx := context.Background()

	first, err := eng.LoadSegment(ctx, "/f.txt", 20, 5)
	if err != nil {
		t.Fatalf("first load failed: %v", err)
	}
	if eng.Reader().ReadCount() != 1 {
		t.Fatalf("ReadCount = %d after first load", eng.Reader().ReadCount())
	}

	second, err := eng.LoadSegment(ctx, "/f.txt", 20, 5)
	if err != nil {
		t.Fatalf("second load failed: %v", err)
	}
	// Same chunk, no second physical read, identical content.
	if eng.Reader().ReadCount() != 1 {
		t.Errorf("ReadCount = %d, cached load should not hit disk", eng.Reader().ReadCount())
	}
	if second.Content != first.Content || second.StartPosition != first.StartPosition {
		t.Error("cached segment differs from the original load")
	}

	// A request elsewhere in the same chunk is also served from cache.
	if _, err := eng.LoadSegment(ctx, "/f.txt", 27, 2); err != nil {
		t.Fatalf("third load failed: %v", err)
	}
	if eng.Reader().ReadCount() != 1 {
		t.Errorf("ReadCount = %d, same-chunk load should be a hit", eng.Reader().ReadCount())
	}
}

func TestLoadSegment_AlignsToChunkBoundary(t *testing.T) {
	eng := newTestEngine(t, map[string]string{"/f.txt": "0123456789abcdef"}, WithChunkSize(4))

	seg, err := eng.LoadSegment(context.Background(), "/f.txt", 6, 2)
	if err != nil {
		t.Fatalf("LoadSegment failed: %v", err)
	}
	if seg.StartPosition != 4 {
		t.Errorf("StartPosition = %d, want the chunk boundary 4", seg.StartPosition)
	}
	if !strings.HasPrefix(seg.Content, "4567") {
		t.Errorf("Content = %q", seg.Content)
	}
}

func TestLoadSegment_SpansChunks(t *testing.T) {
	eng := newTestEngine(t, map[string]string{"/f.txt": "0123456789abcdef"}, WithChunkSize(4))

	// Range [6, 11) crosses a chunk boundary; the load covers it all.
	seg, err := eng.LoadSegment(context.Background(), "/f.txt", 6, 5)
	if err != nil {
		t.Fatalf("LoadSegment failed: %v", err)
	}
	if seg.StartPosition != 4 || seg.End() < 11 {
		t.Errorf("segment [%d, %d) does not cover requested [6, 11)", seg.StartPosition, seg.End())
	}
}

func TestLoadSegment_SwitchingFilesInvalidatesCache(t *testing.T) {
	eng := newTestEngine(t, map[string]string{
		"/a.txt": strings.Repeat("a", 20),
		"/b.txt": strings.Repeat("b", 20),
	}, WithChunkSize(10))
	ctx := context.Background()

	if _, err := eng.LoadSegment(ctx, "/a.txt", 0, 5); err != nil {
		t.Fatal(err)
	}
	segB, err := eng.LoadSegment(ctx, "/b.txt", 0, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(segB.Content, "bbbbb") {
		t.Errorf("stale cache entry served for a different file: %q", segB.Content)
	}

	// Back to the first file: the cache was cleared, so this is a miss.
	segA, err := eng.LoadSegment(ctx, "/a.txt", 0, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(segA.Content, "aaaaa") {
		t.Errorf("Content = %q", segA.Content)
	}
	if eng.Reader().ReadCount() != 3 {
		t.Errorf("ReadCount = %d, want 3 (one per file switch)", eng.Reader().ReadCount())
	}
}

func TestLoadSegment_EvictionBound(t *testing.T) {
	eng := newTestEngine(t,
		map[string]string{"/f.txt": strings.Repeat("x", 1000)},
		WithChunkSize(10), WithCacheCapacity(3))
	ctx := context.Background()

	for start := uint64(0); start < 100; start += 10 {
		if _, err := eng.LoadSegment(ctx, "/f.txt", start, 5); err != nil {
			t.Fatal(err)
		}
	}
	if eng.Cache().Len() != 3 {
		t.Errorf("cache holds %d entries, want 3", eng.Cache().Len())
	}
}

func TestLoadSegment_MemoryFallbackReducesLength(t *testing.T) {
	base := vfs.NewMemFS()
	base.AddFile("/f.txt", strings.Repeat("x", 100))
	ffs := &faultFS{VFS: base, failures: 1, err: eerrors.ErrMemoryExhausted}

	eng := New(ffs, WithChunkSize(20))

	seg, err := eng.LoadSegment(context.Background(), "/f.txt", 0, 20)
	if err != nil {
		t.Fatalf("LoadSegment failed: %v", err)
	}
	// The fallback re-reads at half length.
	if seg.Length != 10 {
		t.Errorf("Length = %d, want the reduced 10", seg.Length)
	}
	// Loads under memory pressure are not cached.
	if eng.Cache().Len() != 0 {
		t.Errorf("cache holds %d entries, want 0 after pressure", eng.Cache().Len())
	}
}

func TestLoadSegmentResult(t *testing.T) {
	eng := newTestEngine(t, map[string]string{"/f.txt": "0123456789"}, WithChunkSize(4))

	res := eng.LoadSegmentResult(context.Background(), "/f.txt", 0, 4)
	if !res.Success {
		t.Fatalf("expected success: %v", res.Err)
	}
	if res.Value == nil || res.Value.Content != "0123" {
		t.Errorf("Value = %+v", res.Value)
	}

	res = eng.LoadSegmentResult(context.Background(), "", 0, 4)
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.ErrorMessage == "" {
		t.Error("ErrorMessage should be set on failure")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res = eng.LoadSegmentResult(ctx, "/other.txt", 0, 4)
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Strategy != recovery.StrategyUserIntervention {
		t.Errorf("Strategy = %v, want user-intervention", res.Strategy)
	}
}
