// Package writer persists content through a temporary file plus backup,
// guaranteeing the destination is never left half-written.
//
// Write protocol: check free space, back up the existing file, write
// the new content to a temp file with periodic flushes, atomically
// replace the destination, then drop the backup. Any failure after the
// backup restores the original before the error is surfaced.
package writer

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	eerrors "github.com/dshills/streamview/internal/engine/errors"
	"github.com/dshills/streamview/internal/hyperlink"
	"github.com/dshills/streamview/internal/logging"
	"github.com/dshills/streamview/internal/recovery"
	"github.com/dshills/streamview/internal/vfs"
)

// File name suffixes for the write protocol.
const (
	BackupSuffix = ".backup"
	TempSuffix   = ".tmp"
)

// Chunked write policy.
const (
	// DefaultFlushEveryLines bounds buffered memory during the
	// line-by-line write.
	DefaultFlushEveryLines = 1000

	// progressLogEveryLines spaces out progress logging for very
	// large outputs.
	progressLogEveryLines = 10000

	// DefaultFreeSpaceFactor is the multiple of the content size that
	// must be free on the destination volume.
	DefaultFreeSpaceFactor = 2

	// lowSpaceFactor marks the point below which free space is logged
	// as low without failing the save.
	lowSpaceFactor = 4
)

// AtomicWriter saves files atomically with backup and rollback.
// At most one save should be in flight per path; the writer never
// mutates the destination until the final replace.
type AtomicWriter struct {
	fs         vfs.VFS
	log        *logging.Logger
	recoverer  *recovery.Recoverer
	flushEvery int
	terminator string
}

// Option configures an AtomicWriter.
type Option func(*AtomicWriter)

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(w *AtomicWriter) {
		if log != nil {
			w.log = log
		}
	}
}

// WithRecoverer sets the retry policy for the replace step.
func WithRecoverer(r *recovery.Recoverer) Option {
	return func(w *AtomicWriter) {
		if r != nil {
			w.recoverer = r
		}
	}
}

// WithFlushEvery sets how many lines are written between flushes.
func WithFlushEvery(lines int) Option {
	return func(w *AtomicWriter) {
		if lines > 0 {
			w.flushEvery = lines
		}
	}
}

// WithLineTerminator sets the terminator written after each line.
func WithLineTerminator(t string) Option {
	return func(w *AtomicWriter) {
		if t != "" {
			w.terminator = t
		}
	}
}

// New creates an AtomicWriter over the given file system.
func New(fsys vfs.VFS, opts ...Option) *AtomicWriter {
	w := &AtomicWriter{
		fs:         fsys,
		log:        logging.NullLogger,
		flushEvery: DefaultFlushEveryLines,
		terminator: "\n",
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.WithComponent("writer")
	if w.recoverer == nil {
		w.recoverer = recovery.New(recovery.WithLogger(w.log))
	}
	return w
}

// Save writes content to path atomically.
func (w *AtomicWriter) Save(ctx context.Context, path, content string) error {
	if err := w.validate(path, content); err != nil {
		return err
	}
	if err := w.checkFreeSpace(path, uint64(len(content))); err != nil {
		return err
	}
	return w.writeProtocol(ctx, path, func(out *bufio.Writer) error {
		return w.writeChunked(ctx, out, strings.NewReader(content))
	})
}

// SaveWithHyperlinks embeds the hyperlink metadata trailer into content
// and saves the result atomically.
func (w *AtomicWriter) SaveWithHyperlinks(ctx context.Context, path, content string, links []hyperlink.Link) error {
	embedded, err := hyperlink.Embed(content, links)
	if err != nil {
		return eerrors.NewPathError("save", path, err)
	}
	return w.Save(ctx, path, embedded)
}

// SaveFrom writes content streamed from r to path atomically, for
// content too large to buffer as one string. sizeHint, when non-zero,
// enables the free-space check.
func (w *AtomicWriter) SaveFrom(ctx context.Context, path string, r io.Reader, sizeHint uint64) error {
	if path == "" {
		return eerrors.NewPathError("save", path, eerrors.ErrInvalidInput)
	}
	if sizeHint > 0 {
		if err := w.checkFreeSpace(path, sizeHint); err != nil {
			return err
		}
	}
	return w.writeProtocol(ctx, path, func(out *bufio.Writer) error {
		return w.writeChunked(ctx, out, r)
	})
}

// validate rejects malformed arguments before any disk activity.
func (w *AtomicWriter) validate(path, content string) error {
	if path == "" {
		return eerrors.NewPathError("save", path, eerrors.ErrInvalidInput)
	}
	if !utf8.ValidString(content) {
		return eerrors.NewPathError("save", path, eerrors.ErrInvalidInput)
	}
	return nil
}

// checkFreeSpace fails fast when the destination volume cannot hold
// twice the content (original plus temp during the replace window) and
// logs when space is merely low.
func (w *AtomicWriter) checkFreeSpace(path string, contentSize uint64) error {
	free, err := w.fs.FreeSpace(w.fs.Dir(path))
	if err != nil {
		// Space probing is advisory; the write itself will surface a
		// real ENOSPC.
		w.log.WithField("path", path).Debug("free space check unavailable: %v", err)
		return nil
	}

	need := contentSize * DefaultFreeSpaceFactor
	if free < need {
		return eerrors.NewPathError("save", path, eerrors.ErrInsufficientSpace)
	}
	if free < contentSize*lowSpaceFactor {
		w.log.WithField("path", path).
			Warn("destination volume low on space: %d bytes free, writing %d", free, contentSize)
	}
	return nil
}

// writeProtocol runs the backup / temp-write / replace / rollback
// sequence around the supplied write function.
func (w *AtomicWriter) writeProtocol(ctx context.Context, path string, write func(*bufio.Writer) error) error {
	backupPath := path + BackupSuffix
	tempPath := path + TempSuffix

	hasBackup := false
	if w.fs.Exists(path) {
		if err := w.fs.CopyFile(path, backupPath); err != nil {
			return eerrors.NewPathError("save", path, eerrors.Classify(err))
		}
		hasBackup = true
	}

	fail := func(err error) error {
		_ = w.fs.Remove(tempPath)
		if hasBackup {
			if rerr := w.fs.CopyFile(backupPath, path); rerr != nil {
				w.log.WithField("path", path).
					Error("rollback from backup failed: %v", rerr)
			}
		}
		return eerrors.NewPathError("save", path, eerrors.Classify(err))
	}

	out, err := w.fs.Create(tempPath)
	if err != nil {
		return fail(err)
	}

	bw := bufio.NewWriter(out)
	if err := write(bw); err != nil {
		out.Close()
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		out.Close()
		return fail(err)
	}
	if err := out.Close(); err != nil {
		return fail(err)
	}

	// The replace may hit transient lock contention; retry it.
	res := recovery.ExecuteWithRetry(ctx, w.recoverer, "replace "+path,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, w.fs.Rename(tempPath, path)
		})
	if !res.Success {
		return fail(res.Err)
	}

	if hasBackup {
		if err := w.fs.Remove(backupPath); err != nil {
			// Best-effort; a stale backup is not a failed save.
			w.log.WithField("path", path).Debug("backup cleanup failed: %v", err)
		}
	}
	return nil
}

// writeChunked copies content line by line, flushing every flushEvery
// lines to bound buffered memory and logging progress for very large
// outputs. A memory-exhaustion condition triggers one flush-and-collect
// recovery attempt; if writing still cannot proceed the error
// propagates so the outer replace step rolls back.
func (w *AtomicWriter) writeChunked(ctx context.Context, out *bufio.Writer, r io.Reader) error {
	br := bufio.NewReaderSize(r, 64*1024)

	lines := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, rerr := br.ReadString('\n')
		if line != "" {
			// A final line without a newline keeps none, so saved
			// content round-trips byte for byte.
			terminated := strings.HasSuffix(line, "\n")
			if terminated {
				line = line[:len(line)-1]
			}
			if err := w.writeLine(out, line, terminated); err != nil {
				return err
			}
			lines++
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			return rerr
		}

		if lines%w.flushEvery == 0 {
			if err := out.Flush(); err != nil {
				return err
			}
		}
		if lines%progressLogEveryLines == 0 {
			w.log.Debug("written %d lines", lines)
		}
	}
	return out.Flush()
}

// writeLine writes one line plus terminator, retrying once after a
// flush-and-collect pass when memory is exhausted.
func (w *AtomicWriter) writeLine(out *bufio.Writer, line string, terminated bool) error {
	write := func() error {
		if _, err := out.WriteString(line); err != nil {
			return err
		}
		if !terminated {
			return nil
		}
		_, err := out.WriteString(w.terminator)
		return err
	}

	err := write()
	if err == nil {
		return nil
	}
	if !errors.Is(err, eerrors.ErrMemoryExhausted) {
		return err
	}

	res := recovery.RecoverMemoryOperation(w.recoverer,
		func() (struct{}, error) {
			if ferr := out.Flush(); ferr != nil {
				return struct{}{}, ferr
			}
			return struct{}{}, write()
		}, nil)
	if !res.Success {
		return res.Err
	}
	return nil
}
