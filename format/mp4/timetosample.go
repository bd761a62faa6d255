package mp4

import (
	"github.com/ugparu/mp4index"
	"github.com/ugparu/mp4index/utils/bits/pio"
	"github.com/ugparu/mp4index/utils/logger"
)

const STTS = Tag(0x73747473)

const timeToSampleEntrySize = 8

// timeToSampleEntry is one run of identical decode-time deltas.
type timeToSampleEntry struct {
	count uint32
	delta uint32
}

type timeToSampleTable struct {
	src        mp4index.DataSource
	dataOffset int64
	entries    []timeToSampleEntry
}

func (t *timeToSampleTable) present() bool {
	return t.dataOffset >= 0
}

func (t *timeToSampleTable) parse(dataOffset, dataSize int64, budget *tableBudget) error {
	if t.present() {
		return &mp4index.MalformedError{Box: "stts", Reason: "duplicate box"}
	}
	if dataOffset < 0 {
		return &mp4index.MalformedError{Box: "stts", Reason: "negative payload offset"}
	}

	t.dataOffset = dataOffset
	if dataSize < 8 {
		return &mp4index.MalformedError{Box: "stts", Reason: "truncated box header"}
	}

	var header [8]byte
	if err := readFullAt(t.src, header[:], dataOffset); err != nil {
		return err
	}
	if pio.U32BE(header[:4]) != 0 {
		return &mp4index.MalformedError{Box: "stts", Reason: "version and flags are not zero"}
	}

	count := pio.U32BE(header[4:])
	if (uint64(dataSize)-8)/timeToSampleEntrySize < uint64(count) {
		return &mp4index.MalformedError{Box: "stts", Reason: "box too small for entry count"}
	}
	if !budget.take(uint64(count) * timeToSampleEntrySize) {
		logger.Errorf("stts", "table with %d entries exceeds the sample table memory budget", count)
		return &mp4index.OutOfRangeError{What: "time to sample table too large"}
	}

	// The whole run list is fetched in a single read.
	raw := make([]byte, int(count)*timeToSampleEntrySize)
	if err := readFullAt(t.src, raw, dataOffset+8); err != nil {
		return err
	}

	entries := make([]timeToSampleEntry, count)
	for i := range entries {
		entries[i] = timeToSampleEntry{
			count: pio.U32BE(raw[i*timeToSampleEntrySize:]),
			delta: pio.U32BE(raw[i*timeToSampleEntrySize+4:]),
		}
	}

	t.entries = entries
	return nil
}
