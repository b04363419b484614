// Package analyze inspects files to decide whether streaming mode is
// required and to estimate their line count from a head sample.
package analyze

import (
	"errors"
	"io"

	eerrors "github.com/dshills/streamview/internal/engine/errors"
	"github.com/dshills/streamview/internal/logging"
	"github.com/dshills/streamview/internal/vfs"
)

// Analysis thresholds.
const (
	// DefaultStreamingThreshold is the size above which a file is
	// "large" and must be streamed.
	DefaultStreamingThreshold = 50 * 1024 * 1024

	// DefaultSafetyThreshold is the size above which loading a file in
	// full is flagged as risky. Exceeding it is a warning signal, not
	// a failure.
	DefaultSafetyThreshold = 500 * 1024 * 1024

	// DefaultSampleSize is how much of the file head is sampled for
	// line-count estimation.
	DefaultSampleSize = 8 * 1024
)

// StreamingFileInfo is the result of analyzing a file. It is created
// fresh on each Analyze call and never mutated.
type StreamingFileInfo struct {
	FilePath string
	FileSize uint64

	// IsLargeFile is true when the size exceeds the streaming
	// threshold. RequiresStreaming mirrors it.
	IsLargeFile       bool
	RequiresStreaming bool

	// EstimatedLineCount extrapolates the newline density of the
	// sampled head across the whole file. It is intentionally
	// approximate and must never be treated as exact.
	EstimatedLineCount uint64

	// ExceedsSafeLimit is true when the size exceeds the absolute
	// safety threshold.
	ExceedsSafeLimit bool

	// IsBinary is true when the sampled head looks like binary data.
	// Line counts for binary files are meaningless.
	IsBinary bool
}

// Analyzer inspects files. It is read-only: analysis samples at most
// the configured head size and has no side effects.
type Analyzer struct {
	fs  vfs.VFS
	log *logging.Logger

	streamingThreshold uint64
	safetyThreshold    uint64
	sampleSize         uint64
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithThresholds overrides the streaming and safety thresholds.
func WithThresholds(streaming, safety uint64) Option {
	return func(a *Analyzer) {
		if streaming > 0 {
			a.streamingThreshold = streaming
		}
		if safety > 0 {
			a.safetyThreshold = safety
		}
	}
}

// WithSampleSize overrides the head sample size.
func WithSampleSize(n uint64) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.sampleSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(a *Analyzer) {
		if log != nil {
			a.log = log
		}
	}
}

// New creates an Analyzer over the given file system.
func New(fsys vfs.VFS, opts ...Option) *Analyzer {
	a := &Analyzer{
		fs:                 fsys,
		log:                logging.NullLogger,
		streamingThreshold: DefaultStreamingThreshold,
		safetyThreshold:    DefaultSafetyThreshold,
		sampleSize:         DefaultSampleSize,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.WithComponent("analyze")
	return a
}

// Analyze inspects the file at path.
//
// It fails with ErrInvalidInput for an empty path and ErrNotFound for a
// missing file. Very large files (beyond the safety threshold) produce
// a warning signal in the result, never a failure.
func (a *Analyzer) Analyze(path string) (StreamingFileInfo, error) {
	if path == "" {
		return StreamingFileInfo{}, eerrors.NewPathError("analyze", path, eerrors.ErrInvalidInput)
	}

	info, err := a.fs.Stat(path)
	if err != nil {
		return StreamingFileInfo{}, eerrors.NewPathError("analyze", path, eerrors.Classify(err))
	}
	if info.IsDir() {
		return StreamingFileInfo{}, eerrors.NewPathError("analyze", path, eerrors.ErrIsDirectory)
	}

	size := uint64(info.Size())
	result := StreamingFileInfo{
		FilePath:          path,
		FileSize:          size,
		IsLargeFile:       size > a.streamingThreshold,
		ExceedsSafeLimit:  size > a.safetyThreshold,
		RequiresStreaming: size > a.streamingThreshold,
	}

	sample, err := a.sampleHead(path, size)
	if err != nil {
		return StreamingFileInfo{}, eerrors.NewPathError("analyze", path, eerrors.Classify(err))
	}
	result.IsBinary = vfs.IsBinary(sample)
	if !result.IsBinary {
		result.EstimatedLineCount = estimateLineCount(sample, size)
	}

	if result.ExceedsSafeLimit {
		a.log.WithField("path", path).
			Warn("file size %d exceeds safe limit %d, full load is risky", size, a.safetyThreshold)
	}

	return result, nil
}

// sampleHead reads up to the configured sample size from the start of
// the file.
func (a *Analyzer) sampleHead(path string, size uint64) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}

	f, err := a.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sampleLen := a.sampleSize
	if sampleLen > size {
		sampleLen = size
	}

	sample := make([]byte, sampleLen)
	read := 0
	for read < len(sample) {
		n, err := f.Read(sample[read:])
		read += n
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
	}
	return sample[:read], nil
}

// estimateLineCount extrapolates the newline density of the sampled
// head across the whole file. When the sample covers the entire file
// the count is exact.
func estimateLineCount(sample []byte, size uint64) uint64 {
	if size == 0 {
		return 0
	}
	if uint64(len(sample)) >= size {
		return uint64(vfs.CountLines(sample))
	}

	newlines := uint64(vfs.CountNewlines(sample))
	if newlines == 0 {
		// No newline in the sample; the best guess is one long line.
		return 1
	}
	return newlines * size / uint64(len(sample))
}
