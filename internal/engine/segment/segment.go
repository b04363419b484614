// Package segment defines the data types flowing through the streaming
// engine: decoded file slices, their hyperlink annotations, and
// progress reports.
package segment

import (
	"time"

	"github.com/dshills/streamview/internal/hyperlink"
)

// TextSegment is a decoded slice of a file.
//
// StartPosition and Length describe the covered byte range in the
// source file; Content is the decoded, line-ending-normalized text for
// that range. Segments are immutable once constructed; only
// LastAccessed changes, under the owning cache's lock.
type TextSegment struct {
	// StartPosition is the byte offset of the first source byte.
	StartPosition uint64

	// Length is the number of source bytes covered (not characters).
	Length uint64

	// Content is the decoded, normalized text.
	Content string

	// Hyperlinks are links found in Content, with StartIndex shifted
	// to file-global offsets, ordered by StartIndex.
	Hyperlinks []hyperlink.Link

	// LastAccessed is updated on every cache hit and drives eviction.
	LastAccessed time.Time
}

// End returns the byte offset just past the segment.
func (s *TextSegment) End() uint64 {
	return s.StartPosition + s.Length
}

// Progress reports cumulative streaming progress after each chunk.
type Progress struct {
	// ProcessedBytes is the cumulative byte count processed so far.
	ProcessedBytes uint64

	// TotalBytes is the file size at stream start.
	TotalBytes uint64

	// Percent is processed*100/total, saturating at 100.
	Percent int
}

// NewProgress derives a Progress value with a saturated percentage.
func NewProgress(processed, total uint64) Progress {
	p := Progress{ProcessedBytes: processed, TotalBytes: total}
	switch {
	case total == 0:
		p.Percent = 100
	case processed >= total:
		p.Percent = 100
	default:
		p.Percent = int(processed * 100 / total)
	}
	return p
}

// AlignToChunk rounds position down to a chunk boundary. Chunk-aligned
// offsets are the cache keys for random-access loads.
func AlignToChunk(position, chunkSize uint64) uint64 {
	if chunkSize == 0 {
		return position
	}
	return position - position%chunkSize
}
