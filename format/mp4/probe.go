package mp4

import (
	"fmt"

	gomp4 "github.com/abema/go-mp4"

	"github.com/ugparu/mp4index"
	"github.com/ugparu/mp4index/utils/bits/pio"
	"github.com/ugparu/mp4index/utils/logger"
)

// Handler type tags of interest when probing tracks.
const (
	VideoHandler = Tag(0x76696465) // 'vide'
	SoundHandler = Tag(0x736f756e) // 'soun'
)

// Track couples one track's header fields with its parsed sample table.
type Track struct {
	ID        uint32
	Timescale uint32
	Duration  uint64 // In media timescale units.
	Handler   Tag
	Table     *SampleTable
}

func (t *Track) String() string {
	return fmt.Sprintf("Track(id=%d, handler=%s)", t.ID, t.Handler)
}

// ReadTracks walks the moov box of src and builds a sample table for every
// track whose required boxes are all present. Tracks with incomplete sample
// tables are skipped with a warning; a malformed table box fails the whole
// probe. The source is borrowed by the returned tables and must stay open
// while they are queried.
func ReadTracks(src mp4index.ReadSeekerAt) ([]*Track, error) {
	var (
		tracks  []*Track
		current *Track
		sawMoov bool
	)

	_, err := gomp4.ReadBoxStructure(src, func(h *gomp4.ReadHandle) (interface{}, error) {
		switch h.BoxInfo.Type.String() {
		case "moov":
			sawMoov = true
			return h.Expand()

		case "trak":
			current = &Track{Table: NewSampleTable(src)}
			children, err := h.Expand()
			if err != nil {
				return nil, err
			}
			if current.Table.Valid() {
				logger.Debugf(current, "indexed %d samples in %d chunks",
					current.Table.CountSamples(), current.Table.CountChunkOffsets())
				tracks = append(tracks, current)
			} else {
				logger.Warningf(current, "skipping track with incomplete sample tables")
			}
			current = nil
			return children, nil

		case "mdia", "minf", "stbl":
			return h.Expand()

		case "tkhd":
			if current == nil {
				return nil, nil
			}
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			tkhd := box.(*gomp4.Tkhd)
			current.ID = tkhd.TrackID
			return nil, nil

		case "mdhd":
			if current == nil {
				return nil, nil
			}
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			mdhd := box.(*gomp4.Mdhd)
			current.Timescale = mdhd.Timescale
			if mdhd.Version == 1 {
				current.Duration = mdhd.DurationV1
			} else {
				current.Duration = uint64(mdhd.DurationV0)
			}
			return nil, nil

		case "hdlr":
			if current == nil {
				return nil, nil
			}
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			hdlr := box.(*gomp4.Hdlr)
			current.Handler = Tag(pio.U32BE(hdlr.HandlerType[:]))
			return nil, nil

		case "stco", "co64", "stsc", "stsz", "stz2", "stts", "stss", "ctts":
			if current == nil {
				return nil, nil
			}
			return nil, setTableBox(current.Table, h)
		}

		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	if !sawMoov {
		return nil, &mp4index.MalformedError{Reason: "no movie box"}
	}

	return tracks, nil
}

// setTableBox hands one sample table box payload to the track's table. The
// payload starts past the size and fourcc header abema already consumed.
func setTableBox(table *SampleTable, h *gomp4.ReadHandle) error {
	dataOffset := int64(h.BoxInfo.Offset + h.BoxInfo.HeaderSize)
	dataSize := int64(h.BoxInfo.Size - h.BoxInfo.HeaderSize)

	switch h.BoxInfo.Type.String() {
	case "stco":
		return table.SetChunkOffsetBox(STCO, dataOffset, dataSize)
	case "co64":
		return table.SetChunkOffsetBox(CO64, dataOffset, dataSize)
	case "stsc":
		return table.SetSampleToChunkBox(dataOffset, dataSize)
	case "stsz":
		return table.SetSampleSizeBox(STSZ, dataOffset, dataSize)
	case "stz2":
		return table.SetSampleSizeBox(STZ2, dataOffset, dataSize)
	case "stts":
		return table.SetTimeToSampleBox(dataOffset, dataSize)
	case "stss":
		return table.SetSyncSampleBox(dataOffset, dataSize)
	case "ctts":
		return table.SetCompositionOffsetBox(dataOffset, dataSize)
	}

	return nil
}
