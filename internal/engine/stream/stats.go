package stream

import "github.com/dshills/streamview/internal/engine/cache"

// Stats reports engine activity counters.
type Stats struct {
	StreamsStarted   uint64
	SegmentsStreamed uint64
	BytesProcessed   uint64
	PhysicalReads    uint64
	Cache            cache.Stats
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		StreamsStarted:   e.streamsStarted.Load(),
		SegmentsStreamed: e.segmentsStreamed.Load(),
		BytesProcessed:   e.bytesProcessed.Load(),
		PhysicalReads:    e.reader.ReadCount(),
		Cache:            e.cache.Stats(),
	}
}
