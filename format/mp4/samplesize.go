package mp4

import (
	"math"

	"github.com/ugparu/mp4index"
	"github.com/ugparu/mp4index/utils/bits/pio"
	"github.com/ugparu/mp4index/utils/logger"
)

const (
	STSZ = Tag(0x7374737a)
	STZ2 = Tag(0x73747a32)
)

// sampleSizeTable resolves per-sample sizes. Explicit size arrays stay on
// disk and are read through the data source on demand; a nonzero default
// size means the box carries no array at all.
type sampleSizeTable struct {
	src         mp4index.DataSource
	dataOffset  int64
	fieldSize   uint32 // Bit width of one size entry: 4, 8, 16 or 32.
	defaultSize uint32
	count       uint32
}

func (t *sampleSizeTable) present() bool {
	return t.dataOffset >= 0
}

func (t *sampleSizeTable) parse(kind Tag, dataOffset, dataSize int64) error {
	if t.present() {
		return &mp4index.MalformedError{Box: kind.String(), Reason: "duplicate box"}
	}
	if kind != STSZ && kind != STZ2 {
		return &mp4index.MalformedError{Box: kind.String(), Reason: "not a sample size box"}
	}
	if dataOffset < 0 {
		return &mp4index.MalformedError{Box: kind.String(), Reason: "negative payload offset"}
	}

	t.dataOffset = dataOffset
	if dataSize < 12 {
		return &mp4index.MalformedError{Box: kind.String(), Reason: "truncated box header"}
	}

	var header [12]byte
	if err := readFullAt(t.src, header[:], dataOffset); err != nil {
		return err
	}
	if pio.U32BE(header[:4]) != 0 {
		return &mp4index.MalformedError{Box: kind.String(), Reason: "version and flags are not zero"}
	}

	field := pio.U32BE(header[4:8])
	count := pio.U32BE(header[8:])
	// With a nonzero default size no array bounds the count, so it is
	// capped before either arm trusts it.
	if count > (math.MaxUint32-12)/16 {
		logger.Errorf(kind.String(), "declared sample count %d is too large", count)
		return &mp4index.MalformedError{Box: kind.String(), Reason: "sample count too large"}
	}

	var fieldSize, defaultSize uint32
	if kind == STSZ {
		fieldSize = 32
		defaultSize = field
		if defaultSize == 0 && uint64(dataSize) < 12+uint64(count)*4 {
			return &mp4index.MalformedError{Box: kind.String(), Reason: "box too small for sample count"}
		}
	} else {
		// The high 24 bits of the field are reserved and must be zero;
		// the low byte is the entry width in bits.
		if field&0xffffff00 != 0 {
			return &mp4index.MalformedError{Box: kind.String(), Reason: "reserved field size bits are set"}
		}
		fieldSize = field & 0xff
		if fieldSize != 4 && fieldSize != 8 && fieldSize != 16 {
			return &mp4index.MalformedError{Box: kind.String(), Reason: "unsupported field size"}
		}
		if uint64(dataSize) < 12+(uint64(count)*uint64(fieldSize)+4)/8 {
			return &mp4index.MalformedError{Box: kind.String(), Reason: "box too small for sample count"}
		}
	}

	t.fieldSize = fieldSize
	t.defaultSize = defaultSize
	t.count = count
	return nil
}

// sizeAt resolves the compressed size of one sample, reading the packed
// entry on demand.
func (t *sampleSizeTable) sizeAt(sampleIndex uint32) (uint32, error) {
	if sampleIndex >= t.count {
		return 0, &mp4index.OutOfRangeError{What: "sample index beyond sample size table"}
	}

	if t.defaultSize > 0 {
		return t.defaultSize, nil
	}

	switch t.fieldSize {
	case 32:
		var buf [4]byte
		if err := readFullAt(t.src, buf[:], t.dataOffset+12+4*int64(sampleIndex)); err != nil {
			return 0, err
		}
		return pio.U32BE(buf[:]), nil
	case 16:
		var buf [2]byte
		if err := readFullAt(t.src, buf[:], t.dataOffset+12+2*int64(sampleIndex)); err != nil {
			return 0, err
		}
		return uint32(pio.U16BE(buf[:])), nil
	case 8:
		var buf [1]byte
		if err := readFullAt(t.src, buf[:], t.dataOffset+12+int64(sampleIndex)); err != nil {
			return 0, err
		}
		return uint32(buf[0]), nil
	case 4:
		var buf [1]byte
		if err := readFullAt(t.src, buf[:], t.dataOffset+12+int64(sampleIndex/2)); err != nil {
			return 0, err
		}
		// Two samples per byte, even indices in the high nibble.
		if sampleIndex&1 == 0 {
			return uint32(buf[0] >> 4), nil
		}
		return uint32(buf[0] & 0x0f), nil
	default:
		return 0, &mp4index.MalformedError{Box: "stz2", Reason: "unsupported field size"}
	}
}
