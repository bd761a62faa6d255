package mp4

import (
	"sync"

	"github.com/ugparu/mp4index"
	"github.com/ugparu/mp4index/utils/bits/pio"
	"github.com/ugparu/mp4index/utils/logger"
)

const CTTS = Tag(0x63747473)

const compositionOffsetEntrySize = 8

// compositionOffsetEntry is one run of identical composition-time deltas.
type compositionOffsetEntry struct {
	count  uint32
	offset uint32
}

type compositionOffsetTable struct {
	src        mp4index.DataSource
	dataOffset int64
	entries    []compositionOffsetEntry
}

func (t *compositionOffsetTable) present() bool {
	return t.dataOffset >= 0
}

func (t *compositionOffsetTable) parse(dataOffset, dataSize int64, budget *tableBudget) error {
	if t.present() {
		return &mp4index.MalformedError{Box: "ctts", Reason: "duplicate box"}
	}
	if dataOffset < 0 {
		return &mp4index.MalformedError{Box: "ctts", Reason: "negative payload offset"}
	}

	logger.Info("ctts", "track has reordered frames")

	t.dataOffset = dataOffset
	if dataSize < 8 {
		return &mp4index.MalformedError{Box: "ctts", Reason: "truncated box header"}
	}

	var header [8]byte
	if err := readFullAt(t.src, header[:], dataOffset); err != nil {
		return err
	}
	if pio.U32BE(header[:4]) != 0 {
		return &mp4index.MalformedError{Box: "ctts", Reason: "version and flags are not zero"}
	}

	count := pio.U32BE(header[4:])
	// The payload must hold exactly the declared entries and nothing else.
	if uint64(dataSize) != 8+uint64(count)*compositionOffsetEntrySize {
		return &mp4index.MalformedError{Box: "ctts", Reason: "box size does not match entry count"}
	}
	if !budget.take(uint64(count) * compositionOffsetEntrySize) {
		logger.Errorf("ctts", "table with %d entries exceeds the sample table memory budget", count)
		return &mp4index.OutOfRangeError{What: "composition offset table too large"}
	}

	raw := make([]byte, int(count)*compositionOffsetEntrySize)
	if err := readFullAt(t.src, raw, dataOffset+8); err != nil {
		return err
	}

	entries := make([]compositionOffsetEntry, count)
	for i := range entries {
		entries[i] = compositionOffsetEntry{
			count:  pio.U32BE(raw[i*compositionOffsetEntrySize:]),
			offset: pio.U32BE(raw[i*compositionOffsetEntrySize+4:]),
		}
	}

	t.entries = entries
	return nil
}

// compositionDeltaLookup walks the composition offset runs with a cursor of
// its own. It is consulted while the table lock is already held, so it
// carries a separate lock.
type compositionDeltaLookup struct {
	mu               sync.Mutex
	entries          []compositionOffsetEntry
	entryIndex       uint32
	entrySampleIndex uint32
}

func (l *compositionDeltaLookup) setEntries(entries []compositionOffsetEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = entries
	l.entryIndex = 0
	l.entrySampleIndex = 0
}

// offsetFor returns the composition delta of a sample, or 0 when the track
// carries no composition offsets.
func (l *compositionDeltaLookup) offsetFor(sampleIndex uint32) uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		return 0
	}

	if sampleIndex < l.entrySampleIndex {
		l.entryIndex = 0
		l.entrySampleIndex = 0
	}

	for l.entryIndex < uint32(len(l.entries)) {
		entry := l.entries[l.entryIndex]
		if sampleIndex < l.entrySampleIndex+entry.count {
			return entry.offset
		}

		l.entrySampleIndex += entry.count
		l.entryIndex++
	}

	return 0
}
