// Package chunk reads byte ranges from disk and turns them into decoded
// text segments: encoding-aware decoding, line-ending normalization,
// and bare-URL extraction happen here, per chunk.
package chunk

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync/atomic"

	eerrors "github.com/dshills/streamview/internal/engine/errors"
	"github.com/dshills/streamview/internal/engine/segment"
	"github.com/dshills/streamview/internal/hyperlink"
	"github.com/dshills/streamview/internal/logging"
	"github.com/dshills/streamview/internal/vfs"
)

// DefaultChunkSize is the default read size for sequential streaming.
const DefaultChunkSize = 8 * 1024

// Reader reads byte ranges from files and produces TextSegments.
// It is stateless apart from instrumentation and safe for concurrent
// use.
type Reader struct {
	fs  vfs.VFS
	log *logging.Logger

	// reads counts physical range reads, for cache-transparency tests.
	reads atomic.Uint64
}

// NewReader creates a chunk reader over the given file system.
func NewReader(fs vfs.VFS, log *logging.Logger) *Reader {
	if log == nil {
		log = logging.NullLogger
	}
	return &Reader{fs: fs, log: log.WithComponent("chunk")}
}

// ReadCount returns the number of physical range reads performed.
func (r *Reader) ReadCount() uint64 {
	return r.reads.Load()
}

// SniffEncoding detects the file's encoding from its leading bytes.
// The detected encoding governs how chunks past the head are decoded.
func (r *Reader) SniffEncoding(f vfs.File) vfs.Encoding {
	var head [3]byte
	n, _ := f.ReadAt(head[:], 0)
	return vfs.DetectEncoding(head[:n])
}

// ReadSegment reads the byte range [start, start+length) from path and
// returns it decoded and normalized, with hyperlinks shifted to
// file-global offsets.
//
// The requested length is clamped so the read never runs past
// end-of-file. A start at or beyond the current file length fails with
// ErrOutOfRange. Decoding or extraction failures do not fail the call:
// the segment is returned with best-effort content and no links,
// because one damaged chunk must not prevent the rest of the file from
// being usable.
func (r *Reader) ReadSegment(ctx context.Context, path string, start, length uint64) (*segment.TextSegment, error) {
	if path == "" {
		return nil, eerrors.NewPathError("read", path, eerrors.ErrInvalidInput)
	}
	if length == 0 {
		return nil, eerrors.NewPathError("read", path, eerrors.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, eerrors.NewPathError("read", path, eerrors.Classify(err))
	}

	f, err := r.fs.Open(path)
	if err != nil {
		return nil, eerrors.NewPathError("read", path, eerrors.Classify(err))
	}
	defer f.Close()

	info, err := r.fs.Stat(path)
	if err != nil {
		return nil, eerrors.NewPathError("read", path, eerrors.Classify(err))
	}

	return r.SegmentFromFile(f, path, uint64(info.Size()), start, length, r.SniffEncoding(f))
}

// SegmentFromFile reads a segment from an already-open file handle.
// The sequential streamer uses this so a whole-file stream opens the
// file exactly once and sniffs the encoding exactly once.
//
// A chunk that ends mid-CRLF is extended by one line-feed unit so the
// pair normalizes inside a single segment instead of producing a bare
// carriage return at the boundary. Segment lengths therefore follow the
// source bytes actually consumed, not the requested length.
func (r *Reader) SegmentFromFile(f vfs.File, path string, size, start, length uint64, enc vfs.Encoding) (*segment.TextSegment, error) {
	if length == 0 {
		return nil, eerrors.NewPathError("read", path, eerrors.ErrInvalidInput)
	}
	if start >= size {
		return nil, eerrors.NewPathError("read", path, eerrors.ErrOutOfRange)
	}

	// Clamp so the read never runs past end-of-file.
	clamped := length
	if start+clamped > size {
		clamped = size - start
	}

	raw, err := r.readRange(f, start, clamped)
	if err != nil {
		return nil, eerrors.NewPathError("read", path, eerrors.Classify(err))
	}
	raw = r.extendPastCRLF(f, raw, start, size, enc)

	seg := &segment.TextSegment{
		StartPosition: start,
		Length:        uint64(len(raw)),
	}
	seg.Content, seg.Hyperlinks = r.decode(path, start, raw, enc)
	return seg, nil
}

// readRange reads exactly length bytes at offset start, retrying
// partial reads until satisfied or end-of-stream.
func (r *Reader) readRange(f vfs.File, start, length uint64) ([]byte, error) {
	r.reads.Add(1)

	buf := make([]byte, length)
	read := 0
	for read < len(buf) {
		n, err := f.ReadAt(buf[read:], int64(start)+int64(read))
		read += n
		if err != nil {
			if errors.Is(err, io.EOF) {
				return buf[:read], nil
			}
			return nil, err
		}
	}
	return buf, nil
}

// crlfUnits returns the encoded byte sequences for '\r' and '\n' under
// the given encoding.
func crlfUnits(enc vfs.Encoding) (cr, lf []byte) {
	switch enc {
	case vfs.EncodingUTF16LE:
		return []byte{0x0D, 0x00}, []byte{0x0A, 0x00}
	case vfs.EncodingUTF16BE:
		return []byte{0x00, 0x0D}, []byte{0x00, 0x0A}
	default:
		return []byte{'\r'}, []byte{'\n'}
	}
}

// extendPastCRLF pulls the line feed of a CRLF pair split across the
// chunk boundary into this chunk, so normalization sees the pair whole.
func (r *Reader) extendPastCRLF(f vfs.File, raw []byte, start, size uint64, enc vfs.Encoding) []byte {
	cr, lf := crlfUnits(enc)
	if !bytes.HasSuffix(raw, cr) {
		return raw
	}
	next := start + uint64(len(raw))
	if next+uint64(len(lf)) > size {
		return raw
	}

	peek := make([]byte, len(lf))
	if n, err := f.ReadAt(peek, int64(next)); n < len(peek) && err != nil {
		return raw
	}
	if !bytes.Equal(peek, lf) {
		return raw
	}
	return append(raw, peek...)
}

// decode turns raw bytes into normalized text and file-global links.
// The head chunk carries the BOM and decodes by detection; later chunks
// decode as continuations of the sniffed encoding. Failures degrade to
// the raw bytes with no links.
//
// Only bare URLs are scanned here. Metadata-trailer links are
// content-global and the streamer resolves them against the file tail,
// where a trailer can span several chunks.
func (r *Reader) decode(path string, start uint64, raw []byte, enc vfs.Encoding) (string, []hyperlink.Link) {
	var (
		text string
		err  error
	)
	if start == 0 {
		text, _, err = vfs.DecodeText(raw)
	} else {
		text, err = vfs.DecodeContinuation(raw, enc)
	}
	if err != nil {
		r.log.WithField("path", path).WithField("offset", start).
			Warn("chunk decode failed, returning raw content: %v", err)
		return string(raw), nil
	}

	text = vfs.NormalizeLineEndings(text)

	links := hyperlink.ScanURLs(text)
	for i := range links {
		links[i].StartIndex += int64(start)
	}
	return text, links
}
