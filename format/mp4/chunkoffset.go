package mp4

import (
	"github.com/ugparu/mp4index"
	"github.com/ugparu/mp4index/utils/bits/pio"
)

const (
	STCO = Tag(0x7374636f)
	CO64 = Tag(0x636f3634)
)

// chunkOffsetTable resolves chunk start offsets without materializing the box:
// entries are read through the data source on demand, one per lookup.
type chunkOffsetTable struct {
	src        mp4index.DataSource
	dataOffset int64 // Payload offset of the box, -1 until parsed.
	kind       Tag
	count      uint32
}

func (t *chunkOffsetTable) present() bool {
	return t.dataOffset >= 0
}

func (t *chunkOffsetTable) parse(kind Tag, dataOffset, dataSize int64) error {
	if t.present() {
		return &mp4index.MalformedError{Box: kind.String(), Reason: "duplicate box"}
	}
	if kind != STCO && kind != CO64 {
		return &mp4index.MalformedError{Box: kind.String(), Reason: "not a chunk offset box"}
	}
	if dataOffset < 0 {
		return &mp4index.MalformedError{Box: kind.String(), Reason: "negative payload offset"}
	}

	t.dataOffset = dataOffset
	if dataSize < 8 {
		return &mp4index.MalformedError{Box: kind.String(), Reason: "truncated box header"}
	}

	var header [8]byte
	if err := readFullAt(t.src, header[:], dataOffset); err != nil {
		return err
	}
	if pio.U32BE(header[:4]) != 0 {
		return &mp4index.MalformedError{Box: kind.String(), Reason: "version and flags are not zero"}
	}

	count := pio.U32BE(header[4:])
	width := uint64(4)
	if kind == CO64 {
		width = 8
	}
	if (uint64(dataSize)-8)/width < uint64(count) {
		return &mp4index.MalformedError{Box: kind.String(), Reason: "box too small for entry count"}
	}

	t.kind = kind
	t.count = count
	return nil
}

// offsetAt reads the file offset of one chunk directly from the box payload.
func (t *chunkOffsetTable) offsetAt(chunk uint32) (int64, error) {
	if chunk >= t.count {
		return 0, &mp4index.OutOfRangeError{What: "chunk index beyond chunk offset table"}
	}

	if t.kind == CO64 {
		var buf [8]byte
		if err := readFullAt(t.src, buf[:], t.dataOffset+8+8*int64(chunk)); err != nil {
			return 0, err
		}
		return int64(pio.U64BE(buf[:])), nil
	}

	var buf [4]byte
	if err := readFullAt(t.src, buf[:], t.dataOffset+8+4*int64(chunk)); err != nil {
		return 0, err
	}
	return int64(pio.U32BE(buf[:])), nil
}
