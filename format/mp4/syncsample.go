package mp4

import (
	"github.com/ugparu/mp4index"
	"github.com/ugparu/mp4index/utils/bits/pio"
	"github.com/ugparu/mp4index/utils/logger"
)

const STSS = Tag(0x73747373)

// syncSampleTable holds the 0-based indices of sync samples. An absent box
// means every sample is a sync sample.
type syncSampleTable struct {
	src        mp4index.DataSource
	dataOffset int64
	samples    []uint32
}

func (t *syncSampleTable) present() bool {
	return t.dataOffset >= 0
}

func (t *syncSampleTable) parse(dataOffset, dataSize int64, budget *tableBudget) error {
	if t.present() {
		return &mp4index.MalformedError{Box: "stss", Reason: "duplicate box"}
	}
	if dataOffset < 0 {
		return &mp4index.MalformedError{Box: "stss", Reason: "negative payload offset"}
	}

	t.dataOffset = dataOffset
	if dataSize < 8 {
		return &mp4index.MalformedError{Box: "stss", Reason: "truncated box header"}
	}

	var header [8]byte
	if err := readFullAt(t.src, header[:], dataOffset); err != nil {
		return err
	}
	if pio.U32BE(header[:4]) != 0 {
		return &mp4index.MalformedError{Box: "stss", Reason: "version and flags are not zero"}
	}

	count := pio.U32BE(header[4:])
	if (uint64(dataSize)-8)/4 < uint64(count) {
		return &mp4index.MalformedError{Box: "stss", Reason: "box too small for entry count"}
	}
	if count < 2 {
		logger.Warningf("stss", "sync sample table has only %d entries", count)
	}
	if !budget.take(uint64(count) * 4) {
		logger.Errorf("stss", "table with %d entries exceeds the sample table memory budget", count)
		return &mp4index.OutOfRangeError{What: "sync sample table too large"}
	}

	raw := make([]byte, 4*int(count))
	if err := readFullAt(t.src, raw, dataOffset+8); err != nil {
		return err
	}

	samples := make([]uint32, count)
	for i := range samples {
		// Entries are 1-based sample numbers.
		samples[i] = pio.U32BE(raw[4*i:]) - 1
	}

	t.samples = samples
	return nil
}
