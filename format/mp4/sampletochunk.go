package mp4

import (
	"github.com/ugparu/mp4index"
	"github.com/ugparu/mp4index/utils/bits/pio"
	"github.com/ugparu/mp4index/utils/logger"
)

const STSC = Tag(0x73747363)

const sampleToChunkEntrySize = 12

// sampleToChunkEntry is one run of the chunk grouping map. firstChunk is
// stored 0-based; the box carries it 1-based.
type sampleToChunkEntry struct {
	firstChunk      uint32
	samplesPerChunk uint32
	sampleDescID    uint32
}

type sampleToChunkTable struct {
	src        mp4index.DataSource
	dataOffset int64
	entries    []sampleToChunkEntry
}

func (t *sampleToChunkTable) present() bool {
	return t.dataOffset >= 0
}

func (t *sampleToChunkTable) parse(dataOffset, dataSize int64, budget *tableBudget) error {
	if t.present() {
		return &mp4index.MalformedError{Box: "stsc", Reason: "duplicate box"}
	}
	if dataOffset < 0 {
		return &mp4index.MalformedError{Box: "stsc", Reason: "negative payload offset"}
	}

	t.dataOffset = dataOffset
	if dataSize < 8 {
		return &mp4index.MalformedError{Box: "stsc", Reason: "truncated box header"}
	}

	var header [8]byte
	if err := readFullAt(t.src, header[:], dataOffset); err != nil {
		return err
	}
	if pio.U32BE(header[:4]) != 0 {
		return &mp4index.MalformedError{Box: "stsc", Reason: "version and flags are not zero"}
	}

	count := pio.U32BE(header[4:])
	if (uint64(dataSize)-8)/sampleToChunkEntrySize < uint64(count) {
		return &mp4index.MalformedError{Box: "stsc", Reason: "box too small for entry count"}
	}
	if !budget.take(uint64(count) * sampleToChunkEntrySize) {
		logger.Errorf("stsc", "table with %d entries exceeds the sample table memory budget", count)
		return &mp4index.OutOfRangeError{What: "sample to chunk table too large"}
	}

	entries := make([]sampleToChunkEntry, count)
	for i := range entries {
		var buf [sampleToChunkEntrySize]byte
		if err := readFullAt(t.src, buf[:], dataOffset+8+int64(i)*sampleToChunkEntrySize); err != nil {
			return err
		}

		// The box format is 1-based; zero is not a valid first chunk.
		first := pio.U32BE(buf[:4])
		if first < 1 {
			logger.Errorf("stsc", "entry %d has zero first chunk", i)
			return &mp4index.MalformedError{Box: "stsc", Reason: "first chunk is zero"}
		}

		entries[i] = sampleToChunkEntry{
			firstChunk:      first - 1,
			samplesPerChunk: pio.U32BE(buf[4:8]),
			sampleDescID:    pio.U32BE(buf[8:]),
		}
	}

	t.entries = entries
	return nil
}
