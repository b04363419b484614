package recovery

import (
	"context"
	"errors"
	"io"
	"strings"

	eerrors "github.com/dshills/streamview/internal/engine/errors"
	"github.com/dshills/streamview/internal/vfs"
)

// RecoverFileRead retries the primary read and, on total failure, walks
// an ordered chain of degraded fallbacks, stopping at the first
// success:
//
//  1. plain read-to-end with relaxed expectations,
//  2. bounded streaming read into an accumulating buffer, truncated
//     with an explicit marker past the hard cap,
//  3. head-only read of the file's beginning, annotated as truncated.
//
// Each fallback step's own failure is logged and the chain proceeds; if
// every step fails the overall result is a failure carrying the last
// error. Result.Attempts counts the primary retries plus every fallback
// step tried.
func RecoverFileRead(ctx context.Context, r *Recoverer, fsys vfs.VFS, path string, primary func(ctx context.Context) (string, error)) Result[string] {
	res := ExecuteWithRetry(ctx, r, "read "+path, primary)
	if res.Success || res.Strategy == StrategyUserIntervention {
		return res
	}

	log := r.log.WithField("path", path).WithField("id", res.OperationID)
	log.Warn("primary read failed after %d attempts, entering fallback chain: %s",
		res.Attempts, res.ErrorMessage)

	fallbacks := []struct {
		name string
		fn   func(ctx context.Context) (string, bool, error)
	}{
		{"plain read", func(ctx context.Context) (string, bool, error) {
			value, err := plainRead(fsys, path)
			return value, false, err
		}},
		{"bounded streaming read", func(ctx context.Context) (string, bool, error) {
			return boundedStreamRead(ctx, fsys, path, DefaultStreamReadCap)
		}},
		{"head-only read", func(ctx context.Context) (string, bool, error) {
			return headRead(ctx, fsys, path, DefaultHeadReadLimit)
		}},
	}

	for _, fb := range fallbacks {
		if err := ctx.Err(); err != nil {
			res.Strategy = StrategyUserIntervention
			res.Err = eerrors.Classify(err)
			res.ErrorMessage = res.Err.Error()
			return res
		}

		res.Attempts++
		value, truncated, err := fb.fn(ctx)
		if err == nil {
			res.Success = true
			res.Strategy = StrategyFallback
			res.Value = value
			res.Err = nil
			res.ErrorMessage = ""
			if truncated {
				// Degraded success: the content is usable but incomplete.
				res.Err = eerrors.ErrTruncated
				res.ErrorMessage = res.Err.Error()
			}
			return res
		}
		if eerrors.IsCancelled(err) {
			res.Strategy = StrategyUserIntervention
			res.Err = eerrors.Classify(err)
			res.ErrorMessage = res.Err.Error()
			return res
		}

		log.Warn("%s fallback failed: %v", fb.name, err)
		res.Err = err
		res.ErrorMessage = err.Error()
	}

	res.Strategy = StrategyFallback
	return res
}

// plainRead opens the file read-only with relaxed sharing and reads it
// to the end in one pass.
func plainRead(fsys vfs.VFS, path string) (string, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return "", err
	}
	text, _, err := vfs.DecodeText(data)
	if err != nil {
		return "", err
	}
	return vfs.NormalizeLineEndings(text), nil
}

// boundedStreamRead reads the file in small fixed chunks into an
// accumulating buffer, truncating with an explicit marker once the cap
// is reached so memory use stays bounded. The second result reports
// whether truncation happened.
func boundedStreamRead(ctx context.Context, fsys vfs.VFS, path string, capBytes uint64) (string, bool, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return "", false, err
	}
	defer f.Close()

	var b strings.Builder
	buf := make([]byte, fallbackChunkSize)
	var total uint64
	truncated := false

	for {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		n, err := f.Read(buf)
		if n > 0 {
			if total+uint64(n) > capBytes {
				n = int(capBytes - total)
				truncated = true
			}
			b.Write(buf[:n])
			total += uint64(n)
		}
		if truncated {
			break
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", false, err
		}
	}

	text := vfs.NormalizeLineEndings(b.String())
	if truncated {
		text += TruncationMarker
	}
	return text, truncated, nil
}

// headRead reads only the first limit bytes of the file and annotates
// the result when the file continues past them. The second result
// reports whether the file was longer than what was read.
func headRead(ctx context.Context, fsys vfs.VFS, path string, limit uint64) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	f, err := fsys.Open(path)
	if err != nil {
		return "", false, err
	}
	defer f.Close()

	if info, err := fsys.Stat(path); err == nil && uint64(info.Size()) < limit {
		limit = uint64(info.Size())
	}

	buf := make([]byte, limit)
	read := 0
	for read < len(buf) {
		n, err := f.Read(buf[read:])
		read += n
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", false, err
		}
	}

	text := vfs.NormalizeLineEndings(string(buf[:read]))
	partial := false
	if info, err := fsys.Stat(path); err == nil && uint64(info.Size()) > uint64(read) {
		text += HeadOnlyMarker
		partial = true
	}
	return text, partial, nil
}
