// Package main is the command-line front end for the streamview engine:
// analyze a file, stream it to stdout with progress, or save stdin to a
// file atomically.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/streamview/internal/config"
	"github.com/dshills/streamview/internal/engine/analyze"
	"github.com/dshills/streamview/internal/engine/segment"
	"github.com/dshills/streamview/internal/engine/stream"
	"github.com/dshills/streamview/internal/logging"
	"github.com/dshills/streamview/internal/recovery"
	"github.com/dshills/streamview/internal/vfs"
	"github.com/dshills/streamview/internal/writer"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath   string
		analyzePath  string
		streamPath   string
		savePath     string
		showProgress bool
		showVersion  bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file (YAML or TOML)")
	flag.StringVar(&analyzePath, "analyze", "", "Analyze a file and print streaming info")
	flag.StringVar(&streamPath, "stream", "", "Stream a file to stdout")
	flag.StringVar(&savePath, "save", "", "Save stdin to a file atomically")
	flag.BoolVar(&showProgress, "progress", false, "Report streaming progress on stderr")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("streamview %s (%s)\n", version, commit)
		return 0
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	log := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Output: os.Stderr,
		Prefix: "streamview",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fsys := vfs.NewOSFS()
	rec := recovery.New(
		recovery.WithMaxAttempts(cfg.Recovery.MaxAttempts),
		recovery.WithDelays(cfg.Recovery.BaseDelay(), cfg.Recovery.MaxDelay()),
		recovery.WithLogger(log),
	)

	switch {
	case analyzePath != "":
		return runAnalyze(fsys, cfg, log, analyzePath)
	case streamPath != "":
		return runStream(ctx, fsys, cfg, log, rec, streamPath, showProgress)
	case savePath != "":
		return runSave(ctx, fsys, cfg, log, rec, savePath)
	default:
		flag.Usage()
		return 2
	}
}

func runAnalyze(fsys vfs.VFS, cfg config.Config, log *logging.Logger, path string) int {
	analyzer := analyze.New(fsys,
		analyze.WithThresholds(cfg.Analyzer.StreamingThreshold, cfg.Analyzer.SafetyThreshold),
		analyze.WithSampleSize(cfg.Analyzer.SampleSize),
		analyze.WithLogger(log),
	)

	info, err := analyzer.Analyze(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Printf("path:                %s\n", info.FilePath)
	fmt.Printf("size:                %d bytes\n", info.FileSize)
	fmt.Printf("binary:              %v\n", info.IsBinary)
	fmt.Printf("requires streaming:  %v\n", info.RequiresStreaming)
	fmt.Printf("estimated lines:     ~%d\n", info.EstimatedLineCount)
	if info.ExceedsSafeLimit {
		fmt.Printf("warning:             file exceeds the safe full-load limit\n")
	}
	return 0
}

func runStream(ctx context.Context, fsys vfs.VFS, cfg config.Config, log *logging.Logger, rec *recovery.Recoverer, path string, showProgress bool) int {
	eng := stream.New(fsys,
		stream.WithChunkSize(cfg.Engine.ChunkSize),
		stream.WithCacheCapacity(cfg.Engine.CacheCapacity),
		stream.WithLogger(log),
		stream.WithRecoverer(rec),
	)

	var opts []stream.StreamOption
	if showProgress {
		opts = append(opts, stream.WithProgress(func(p segment.Progress) {
			fmt.Fprintf(os.Stderr, "\r%3d%% (%d/%d bytes)", p.Percent, p.ProcessedBytes, p.TotalBytes)
		}))
	}

	s, err := eng.Stream(ctx, path, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer s.Close()

	for seg := range s.Segments() {
		fmt.Print(seg.Content)
	}
	if showProgress {
		fmt.Fprintln(os.Stderr)
	}
	if err := s.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func runSave(ctx context.Context, fsys vfs.VFS, cfg config.Config, log *logging.Logger, rec *recovery.Recoverer, path string) int {
	w := writer.New(fsys,
		writer.WithLogger(log),
		writer.WithRecoverer(rec),
		writer.WithFlushEvery(cfg.Writer.FlushEveryLines),
		writer.WithLineTerminator(cfg.Writer.LineTerminator),
	)

	if err := w.SaveFrom(ctx, path, os.Stdin, 0); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
