package mp4

import (
	"io"
	"math"

	"github.com/ugparu/mp4index"
	"github.com/ugparu/mp4index/utils/logger"
)

// SampleIterator resolves one sample index at a time to its chunk, byte
// range and decode time. Seeks are forward-biased: the cursor walks the run
// lists incrementally and is rewound when a target precedes the cached chunk
// window, making backward seeks the expensive direction.
//
// A SampleTable owns one iterator for its query surface; additional
// iterators over the same table may be created for private read loops. An
// iterator itself is not safe for concurrent use.
type SampleIterator struct {
	table *SampleTable

	positioned  bool // Accessors are valid only while set.
	chunkCached bool // currentChunk* fields hold a fully refilled chunk.

	// Sample-to-chunk run window.
	sampleToChunkIndex    uint32
	firstChunk            uint32
	firstChunkSampleIndex uint32
	stopChunk             uint32
	stopChunkSampleIndex  uint32
	samplesPerChunk       uint32
	chunkDesc             uint32

	// Cached chunk contents.
	currentChunkIndex       uint32
	currentChunkOffset      int64
	currentChunkSampleSizes []uint32

	currentSampleIndex    uint32
	currentSampleOffset   int64
	currentSampleSize     uint32
	currentSampleTime     uint64
	currentSampleDuration uint32

	// Time-to-sample run window.
	timeToSampleIndex uint32
	ttsSampleIndex    uint32
	ttsSampleTime     uint64
	ttsCount          uint32
	ttsDuration       uint32
}

// NewSampleIterator returns a cursor over table. The table keeps its own
// iterator; a separate one avoids disturbing the shared query cursor.
func NewSampleIterator(table *SampleTable) *SampleIterator {
	it := &SampleIterator{table: table}
	it.reset()
	return it
}

// reset rewinds the sample-to-chunk window to the first run. The
// time-to-sample cursor is invalidated independently during SeekTo.
func (it *SampleIterator) reset() {
	it.sampleToChunkIndex = 0
	it.firstChunk = 0
	it.firstChunkSampleIndex = 0
	it.stopChunk = 0
	it.stopChunkSampleIndex = 0
	it.samplesPerChunk = 0
	it.chunkDesc = 0
}

// SeekTo positions the cursor on sampleIndex. io.EOF reports an index at or
// beyond the end of the track. After a failed seek the accessors stay
// invalid until the next successful one.
func (it *SampleIterator) SeekTo(sampleIndex uint32) error {
	if sampleIndex >= it.table.sampleSizes.count {
		return io.EOF
	}

	if !it.table.sampleToChunk.present() ||
		!it.table.chunkOffsets.present() ||
		!it.table.sampleSizes.present() ||
		len(it.table.timeToSample.entries) == 0 {
		return &mp4index.MalformedError{Reason: "sample tables incomplete"}
	}

	if it.positioned && it.currentSampleIndex == sampleIndex {
		return nil
	}

	if !it.positioned || sampleIndex < it.firstChunkSampleIndex {
		it.reset()
	}
	it.positioned = false

	if sampleIndex >= it.stopChunkSampleIndex {
		if err := it.findChunkRange(sampleIndex); err != nil {
			logger.Errorf(it.table, "no chunk run for sample %d: %v", sampleIndex, err)
			return err
		}
	}

	if it.samplesPerChunk == 0 {
		return &mp4index.MalformedError{Box: "stsc", Reason: "zero samples per chunk"}
	}

	chunk := (sampleIndex-it.firstChunkSampleIndex)/it.samplesPerChunk + it.firstChunk

	if !it.chunkCached || chunk != it.currentChunkIndex {
		if err := it.cacheChunk(chunk); err != nil {
			logger.Errorf(it.table, "caching chunk %d failed: %v", chunk, err)
			return err
		}
	}

	rel := (sampleIndex - it.firstChunkSampleIndex) % it.samplesPerChunk
	if rel >= uint32(len(it.currentChunkSampleSizes)) {
		return &mp4index.MalformedError{Box: "stsc", Reason: "chunk run windows overlap"}
	}

	offset := it.currentChunkOffset
	for i := uint32(0); i < rel; i++ {
		offset += int64(it.currentChunkSampleSizes[i])
	}
	it.currentSampleOffset = offset
	it.currentSampleSize = it.currentChunkSampleSizes[rel]

	if sampleIndex < it.ttsSampleIndex {
		it.timeToSampleIndex = 0
		it.ttsSampleIndex = 0
		it.ttsSampleTime = 0
		it.ttsCount = 0
		it.ttsDuration = 0
	}

	if err := it.findSampleTime(sampleIndex); err != nil {
		logger.Errorf(it.table, "no time run for sample %d: %v", sampleIndex, err)
		return err
	}

	it.currentSampleIndex = sampleIndex
	it.positioned = true
	return nil
}

// findChunkRange advances the sample-to-chunk window until it covers
// sampleIndex. The final run extends to a synthetic infinite stop chunk.
func (it *SampleIterator) findChunkRange(sampleIndex uint32) error {
	entries := it.table.sampleToChunk.entries

	for sampleIndex >= it.stopChunkSampleIndex {
		if it.sampleToChunkIndex >= uint32(len(entries)) {
			return &mp4index.OutOfRangeError{What: "sample index beyond sample to chunk runs"}
		}

		it.firstChunkSampleIndex = it.stopChunkSampleIndex

		entry := entries[it.sampleToChunkIndex]
		it.firstChunk = entry.firstChunk
		it.samplesPerChunk = entry.samplesPerChunk
		it.chunkDesc = entry.sampleDescID

		if it.sampleToChunkIndex+1 < uint32(len(entries)) {
			it.stopChunk = entries[it.sampleToChunkIndex+1].firstChunk
			if it.stopChunk < it.firstChunk {
				return &mp4index.OutOfRangeError{What: "sample to chunk runs are not increasing"}
			}

			span := uint64(it.stopChunk-it.firstChunk) * uint64(it.samplesPerChunk)
			if span > math.MaxUint32-uint64(it.firstChunkSampleIndex) {
				return &mp4index.OutOfRangeError{What: "sample to chunk runs overflow"}
			}
			it.stopChunkSampleIndex = it.firstChunkSampleIndex + uint32(span)
		} else {
			it.stopChunk = math.MaxUint32
			it.stopChunkSampleIndex = math.MaxUint32
		}

		it.sampleToChunkIndex++
	}

	return nil
}

// cacheChunk refills the per-chunk size cache, one size query per sample in
// the chunk. The previous chunk's cache stays valid until the new chunk's
// offset resolves; a failure while reading sizes invalidates it.
func (it *SampleIterator) cacheChunk(chunk uint32) error {
	offset, err := it.table.chunkOffsets.offsetAt(chunk)
	if err != nil {
		return err
	}

	it.chunkCached = false

	first := it.firstChunkSampleIndex + (chunk-it.firstChunk)*it.samplesPerChunk
	sizes := it.currentChunkSampleSizes[:0]
	for i := uint32(0); i < it.samplesPerChunk; i++ {
		size, err := it.table.sampleSizes.sizeAt(first + i)
		if err != nil {
			return err
		}
		sizes = append(sizes, size)
	}

	it.currentChunkSampleSizes = sizes
	it.currentChunkOffset = offset
	it.currentChunkIndex = chunk
	it.chunkCached = true
	return nil
}

// findSampleTime advances the time-to-sample window until it covers
// sampleIndex, then reconstructs the decode time from the accumulated run
// prefix plus the remainder within the current run.
func (it *SampleIterator) findSampleTime(sampleIndex uint32) error {
	if sampleIndex >= it.table.sampleSizes.count {
		return &mp4index.OutOfRangeError{What: "sample index beyond sample size table"}
	}

	entries := it.table.timeToSample.entries
	for sampleIndex >= it.ttsSampleIndex+it.ttsCount {
		if it.timeToSampleIndex >= uint32(len(entries)) {
			return &mp4index.OutOfRangeError{What: "sample index beyond time to sample runs"}
		}
		if it.ttsSampleIndex > math.MaxUint32-it.ttsCount {
			return &mp4index.OutOfRangeError{What: "time to sample runs overflow"}
		}

		it.ttsSampleTime += uint64(it.ttsCount) * uint64(it.ttsDuration)
		it.ttsSampleIndex += it.ttsCount

		entry := entries[it.timeToSampleIndex]
		it.ttsCount = entry.count
		it.ttsDuration = entry.delta
		it.timeToSampleIndex++
	}

	it.currentSampleTime = it.ttsSampleTime +
		uint64(it.ttsDuration)*uint64(sampleIndex-it.ttsSampleIndex) +
		uint64(it.table.compositionOffsetFor(sampleIndex))
	it.currentSampleDuration = it.ttsDuration

	return nil
}

func (it *SampleIterator) mustBePositioned() {
	if !it.positioned {
		panic("mp4index: sample iterator is not positioned")
	}
}

// SampleOffset returns the absolute file offset of the current sample.
func (it *SampleIterator) SampleOffset() int64 {
	it.mustBePositioned()
	return it.currentSampleOffset
}

// SampleSize returns the payload size of the current sample.
func (it *SampleIterator) SampleSize() uint32 {
	it.mustBePositioned()
	return it.currentSampleSize
}

// SampleTime returns the decode time of the current sample, composition
// offset included.
func (it *SampleIterator) SampleTime() uint64 {
	it.mustBePositioned()
	return it.currentSampleTime
}

// SampleDuration returns the decode duration of the current sample.
func (it *SampleIterator) SampleDuration() uint32 {
	it.mustBePositioned()
	return it.currentSampleDuration
}

// ChunkIndex returns the chunk containing the current sample.
func (it *SampleIterator) ChunkIndex() uint32 {
	it.mustBePositioned()
	return it.currentChunkIndex
}

// DescIndex returns the sample description index of the current chunk run.
func (it *SampleIterator) DescIndex() uint32 {
	it.mustBePositioned()
	return it.chunkDesc
}
