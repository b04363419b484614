// Package stream drives chunked reads across whole files, yielding
// decoded segments as a lazy sequence with progress reporting, and
// serves random-access segment loads through an LRU cache.
package stream

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dshills/streamview/internal/engine/cache"
	"github.com/dshills/streamview/internal/engine/chunk"
	eerrors "github.com/dshills/streamview/internal/engine/errors"
	"github.com/dshills/streamview/internal/engine/segment"
	"github.com/dshills/streamview/internal/hyperlink"
	"github.com/dshills/streamview/internal/logging"
	"github.com/dshills/streamview/internal/recovery"
	"github.com/dshills/streamview/internal/vfs"
)

// Engine reads files as sequences of decoded segments.
//
// Two access patterns share one underlying chunk reader: sequential
// streaming over a whole file, and cached random access to individual
// segments. The segment cache is the only mutable shared structure and
// is owned exclusively by this engine instance.
type Engine struct {
	fs        vfs.VFS
	log       *logging.Logger
	reader    *chunk.Reader
	cache     *cache.SegmentCache
	recoverer *recovery.Recoverer
	chunkSize uint64

	mu         sync.RWMutex
	onProgress []func(segment.Progress)
	cachePath  string

	streamsStarted   atomic.Uint64
	segmentsStreamed atomic.Uint64
	bytesProcessed   atomic.Uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithChunkSize sets the fixed chunk size for sequential streaming and
// cache key alignment.
func WithChunkSize(size uint64) Option {
	return func(e *Engine) {
		if size > 0 {
			e.chunkSize = size
		}
	}
}

// WithCacheCapacity sets the segment cache capacity.
func WithCacheCapacity(capacity int) Option {
	return func(e *Engine) {
		e.cache = cache.New(capacity)
	}
}

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithRecoverer sets the recovery policy for cached loads.
func WithRecoverer(r *recovery.Recoverer) Option {
	return func(e *Engine) {
		if r != nil {
			e.recoverer = r
		}
	}
}

// New creates a streaming engine over the given file system.
func New(fsys vfs.VFS, opts ...Option) *Engine {
	e := &Engine{
		fs:        fsys,
		log:       logging.NullLogger,
		cache:     cache.New(cache.DefaultCapacity),
		chunkSize: chunk.DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.WithComponent("stream")
	e.reader = chunk.NewReader(fsys, e.log)
	if e.recoverer == nil {
		e.recoverer = recovery.New(recovery.WithLogger(e.log))
	}
	return e
}

// Reader exposes the underlying chunk reader (read-count
// instrumentation for tests and diagnostics).
func (e *Engine) Reader() *chunk.Reader { return e.reader }

// Cache exposes the segment cache.
func (e *Engine) Cache() *cache.SegmentCache { return e.cache }

// OnProgress registers a handler called after each streamed chunk.
// Handlers run on the streaming goroutine; the engine assumes no
// particular thread affinity for the listener.
func (e *Engine) OnProgress(fn func(segment.Progress)) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onProgress = append(e.onProgress, fn)
}

// StreamOption configures a single Stream call.
type StreamOption func(*streamConfig)

type streamConfig struct {
	progress func(segment.Progress)
}

// WithProgress attaches a progress callback to one Stream call.
func WithProgress(fn func(segment.Progress)) StreamOption {
	return func(c *streamConfig) {
		c.progress = fn
	}
}

// Stream is one in-flight sequential read of a whole file.
//
// Segments arrive on Segments() in strictly increasing StartPosition
// order; the channel closes at end-of-file, on error, or on
// cancellation. Err() is valid once the channel has closed. Close stops
// the stream early and releases the file handle. A Stream is finite and
// not restartable.
type Stream struct {
	id       string
	segments chan segment.TextSegment
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
}

// ID returns the unique identifier of this stream.
func (s *Stream) ID() string { return s.id }

// Segments returns the segment channel.
func (s *Stream) Segments() <-chan segment.TextSegment { return s.segments }

// Err returns the terminal error, if any. Valid after Segments()
// closes. Early termination by the consumer reports ErrCancelled.
func (s *Stream) Err() error {
	<-s.done
	return s.err
}

// Close stops the stream early. The underlying file handle is released
// regardless of how far the consumer read. Safe to call more than once.
func (s *Stream) Close() {
	s.cancel()
	<-s.done
}

// Stream reads path sequentially in fixed-size chunks from offset 0 to
// the end of the content, decoding, normalizing, and extracting links
// per chunk.
//
// The file's encoding is sniffed once from its head and the metadata
// trailer, if any, is located once from its tail before streaming
// begins. Trailer-declared links already carry content-global indices
// and are delivered on the segment covering their position; the trailer
// bytes themselves are never streamed as content.
//
// Cancellation is checked before each chunk read. Decode damage on an
// individual chunk is logged and yields a best-effort segment; the
// stream continues. Progress callbacks fire after each chunk with
// monotonically non-decreasing processed byte counts.
func (e *Engine) Stream(ctx context.Context, path string, opts ...StreamOption) (*Stream, error) {
	var cfg streamConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if path == "" {
		return nil, eerrors.NewPathError("stream", path, eerrors.ErrInvalidInput)
	}

	f, err := e.fs.Open(path)
	if err != nil {
		return nil, eerrors.NewPathError("stream", path, eerrors.Classify(err))
	}
	info, err := e.fs.Stat(path)
	if err != nil {
		f.Close()
		return nil, eerrors.NewPathError("stream", path, eerrors.Classify(err))
	}
	size := uint64(info.Size())

	streamCtx, cancel := context.WithCancel(ctx)
	s := &Stream{
		id:       uuid.New().String(),
		segments: make(chan segment.TextSegment),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	e.streamsStarted.Add(1)
	e.log.WithField("path", path).WithField("stream", s.id).
		Debug("streaming %d bytes in %d-byte chunks", size, e.chunkSize)

	go e.run(streamCtx, s, f, path, size, cfg.progress)

	return s, nil
}

// trailerScanWindow bounds how far from end-of-file a metadata trailer
// is looked for.
const trailerScanWindow = 64 * 1024

// scanTrailer reads the file tail and locates the metadata trailer. It
// returns the declared links and the byte length of the content proper
// (the whole file when no trailer is present).
func (e *Engine) scanTrailer(f vfs.File, size uint64) ([]hyperlink.Link, uint64) {
	window := uint64(trailerScanWindow)
	if window > size {
		window = size
	}
	if window == 0 {
		return nil, size
	}

	buf := make([]byte, window)
	base := size - window
	read := 0
	for read < len(buf) {
		n, err := f.ReadAt(buf[read:], int64(base)+int64(read))
		read += n
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, size
		}
	}

	links, off, ok := hyperlink.FindTrailer(buf[:read])
	if !ok {
		return nil, size
	}
	return links, base + uint64(off)
}

// run is the streaming goroutine. It owns the file handle and always
// releases it.
func (e *Engine) run(ctx context.Context, s *Stream, f vfs.File, path string, size uint64, progress func(segment.Progress)) {
	defer close(s.done)
	defer close(s.segments)
	defer f.Close()

	enc := e.reader.SniffEncoding(f)
	declared, contentSize := e.scanTrailer(f, size)

	var processed uint64
	for offset := uint64(0); offset < contentSize; {
		if err := ctx.Err(); err != nil {
			s.err = eerrors.NewPathError("stream", path, eerrors.Classify(err))
			return
		}

		seg, err := e.reader.SegmentFromFile(f, path, contentSize, offset, e.chunkSize, enc)
		if err != nil {
			// One damaged chunk must not abort the rest of the
			// stream. Emit a placeholder covering the range and
			// continue.
			e.log.WithField("path", path).WithField("stream", s.id).
				Warn("chunk at offset %d damaged: %v", offset, err)
			length := e.chunkSize
			if offset+length > contentSize {
				length = contentSize - offset
			}
			seg = &segment.TextSegment{StartPosition: offset, Length: length}
		}
		if seg.Length == 0 {
			// The file shrank under us; nothing more to read.
			return
		}
		attachDeclared(seg, declared)

		select {
		case s.segments <- *seg:
		case <-ctx.Done():
			s.err = eerrors.NewPathError("stream", path, eerrors.Classify(ctx.Err()))
			return
		}

		offset += seg.Length
		processed += seg.Length
		e.segmentsStreamed.Add(1)
		e.bytesProcessed.Add(seg.Length)
		e.emitProgress(segment.NewProgress(processed, contentSize), progress)
	}
}

// attachDeclared adds the trailer-declared links covered by the
// segment's byte range. Declared indices are content-global already and
// are not shifted.
func attachDeclared(seg *segment.TextSegment, declared []hyperlink.Link) {
	if len(declared) == 0 {
		return
	}
	added := false
	for _, l := range declared {
		if l.StartIndex < 0 {
			continue
		}
		pos := uint64(l.StartIndex)
		if pos >= seg.StartPosition && pos < seg.End() {
			seg.Hyperlinks = append(seg.Hyperlinks, l)
			added = true
		}
	}
	if added {
		sort.SliceStable(seg.Hyperlinks, func(i, j int) bool {
			return seg.Hyperlinks[i].StartIndex < seg.Hyperlinks[j].StartIndex
		})
	}
}

// emitProgress delivers a progress event to the per-call callback and
// every registered handler.
func (e *Engine) emitProgress(p segment.Progress, perCall func(segment.Progress)) {
	if perCall != nil {
		perCall(p)
	}

	// Copy the handler slice to avoid races during iteration.
	e.mu.RLock()
	handlers := make([]func(segment.Progress), len(e.onProgress))
	copy(handlers, e.onProgress)
	e.mu.RUnlock()
	for _, fn := range handlers {
		fn(p)
	}
}
