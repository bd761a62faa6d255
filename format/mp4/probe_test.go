package mp4

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	gomp4 "github.com/abema/go-mp4"
	"github.com/stretchr/testify/require"

	"github.com/ugparu/mp4index"
)

type mp4Writer struct {
	w *gomp4.Writer
}

func newMP4Writer(w io.WriteSeeker) *mp4Writer {
	return &mp4Writer{
		w: gomp4.NewWriter(w),
	}
}

func (w *mp4Writer) writeBoxStart(box gomp4.IImmutableBox) error {
	bi := &gomp4.BoxInfo{
		Type: box.GetType(),
	}
	_, err := w.w.StartBox(bi)
	if err != nil {
		return err
	}

	_, err = gomp4.Marshal(w.w, box, gomp4.Context{})
	return err
}

func (w *mp4Writer) writeBoxEnd() error {
	_, err := w.w.EndBox()
	return err
}

func (w *mp4Writer) writeBox(box gomp4.IImmutableBox) error {
	if err := w.writeBoxStart(box); err != nil {
		return err
	}
	return w.writeBoxEnd()
}

// writeTrak emits a video trak whose sample tables describe 6 samples in 3
// chunks. The incomplete variant leaves out the chunk offset box.
func writeTrak(t *testing.T, w *mp4Writer, trackID uint32, complete bool) {
	t.Helper()

	require.NoError(t, w.writeBoxStart(&gomp4.Trak{}))
	require.NoError(t, w.writeBox(&gomp4.Tkhd{
		FullBox: gomp4.FullBox{
			Flags: [3]byte{0, 0, 3},
		},
		TrackID:    trackID,
		DurationV0: 600,
	}))
	require.NoError(t, w.writeBoxStart(&gomp4.Mdia{}))
	require.NoError(t, w.writeBox(&gomp4.Mdhd{
		Timescale:  90000,
		DurationV0: 600,
		Language:   [3]byte{'u', 'n', 'd'},
	}))
	require.NoError(t, w.writeBox(&gomp4.Hdlr{
		HandlerType: [4]byte{'v', 'i', 'd', 'e'},
		Name:        "VideoHandler",
	}))
	require.NoError(t, w.writeBoxStart(&gomp4.Minf{}))
	require.NoError(t, w.writeBoxStart(&gomp4.Stbl{}))
	require.NoError(t, w.writeBox(&gomp4.Stts{
		EntryCount: 1,
		Entries:    []gomp4.SttsEntry{{SampleCount: 6, SampleDelta: 100}},
	}))
	require.NoError(t, w.writeBox(&gomp4.Stsc{
		EntryCount: 1,
		Entries: []gomp4.StscEntry{{
			FirstChunk:             1,
			SamplesPerChunk:        2,
			SampleDescriptionIndex: 1,
		}},
	}))
	require.NoError(t, w.writeBox(&gomp4.Stsz{
		SampleSize:  0,
		SampleCount: 6,
		EntrySize:   []uint32{10, 20, 30, 40, 50, 60},
	}))
	if complete {
		require.NoError(t, w.writeBox(&gomp4.Stco{
			EntryCount:  3,
			ChunkOffset: []uint32{1000, 2000, 3000},
		}))
		require.NoError(t, w.writeBox(&gomp4.Stss{
			EntryCount:   2,
			SampleNumber: []uint32{1, 5},
		}))
		require.NoError(t, w.writeBox(&gomp4.Ctts{
			EntryCount: 1,
			Entries:    []gomp4.CttsEntry{{SampleCount: 6, SampleOffsetV0: 0}},
		}))
	}
	require.NoError(t, w.writeBoxEnd()) // </stbl>
	require.NoError(t, w.writeBoxEnd()) // </minf>
	require.NoError(t, w.writeBoxEnd()) // </mdia>
	require.NoError(t, w.writeBoxEnd()) // </trak>
}

func writeIndexFile(t *testing.T, trackIDs []uint32, incomplete map[uint32]bool) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "index.mp4")
	f, err := os.Create(path)
	require.NoError(t, err)

	w := newMP4Writer(f)
	require.NoError(t, w.writeBox(&gomp4.Ftyp{
		MajorBrand:   [4]byte{'i', 's', 'o', 'm'},
		MinorVersion: 1,
		CompatibleBrands: []gomp4.CompatibleBrandElem{
			{CompatibleBrand: [4]byte{'i', 's', 'o', 'm'}},
			{CompatibleBrand: [4]byte{'i', 's', 'o', '2'}},
		},
	}))
	require.NoError(t, w.writeBoxStart(&gomp4.Moov{}))
	require.NoError(t, w.writeBox(&gomp4.Mvhd{
		Timescale:   1000,
		Rate:        65536,
		Volume:      256,
		Matrix:      [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000},
		NextTrackID: uint32(len(trackIDs) + 1),
	}))
	for _, id := range trackIDs {
		writeTrak(t, w, id, !incomplete[id])
	}
	require.NoError(t, w.writeBoxEnd()) // </moov>
	require.NoError(t, f.Close())

	return path
}

func TestReadTracks(t *testing.T) {
	t.Parallel()

	path := writeIndexFile(t, []uint32{1}, nil)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	tracks, err := ReadTracks(f)
	require.NoError(t, err)
	require.Len(t, tracks, 1)

	track := tracks[0]
	require.Equal(t, uint32(1), track.ID)
	require.Equal(t, uint32(90000), track.Timescale)
	require.Equal(t, uint64(600), track.Duration)
	require.Equal(t, VideoHandler, track.Handler)
	require.NotNil(t, track.Table)
	require.True(t, track.Table.Valid())
	require.Equal(t, uint32(6), track.Table.CountSamples())
	require.Equal(t, uint32(3), track.Table.CountChunkOffsets())
	require.Equal(t, uint32(2), track.Table.CountSyncSamples())

	meta, err := track.Table.SampleMetaAt(3)
	require.NoError(t, err)
	require.Equal(t, int64(2030), meta.Offset)
	require.Equal(t, uint32(40), meta.Size)
	require.Equal(t, uint64(300), meta.DecodeTime)
	require.Equal(t, uint32(100), meta.Duration)
	require.False(t, meta.Sync)

	meta, err = track.Table.SampleMetaAt(4)
	require.NoError(t, err)
	require.True(t, meta.Sync)

	idx, err := track.Table.FindSyncSampleNear(2, mp4index.SeekBefore)
	require.NoError(t, err)
	require.Equal(t, uint32(0), idx)

	idx, err = track.Table.FindSampleAtTime(250, mp4index.SeekClosest)
	require.NoError(t, err)
	require.Equal(t, uint32(3), idx)
}

func TestReadTracksNoMoov(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.mp4")
	f, err := os.Create(path)
	require.NoError(t, err)

	w := newMP4Writer(f)
	require.NoError(t, w.writeBox(&gomp4.Ftyp{
		MajorBrand:   [4]byte{'i', 's', 'o', 'm'},
		MinorVersion: 1,
		CompatibleBrands: []gomp4.CompatibleBrandElem{
			{CompatibleBrand: [4]byte{'i', 's', 'o', 'm'}},
		},
	}))
	require.NoError(t, f.Close())

	f, err = os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = ReadTracks(f)
	var malformed *mp4index.MalformedError
	require.ErrorAs(t, err, &malformed)
}

func TestReadTracksSkipsIncompleteTrack(t *testing.T) {
	t.Parallel()

	path := writeIndexFile(t, []uint32{1, 2}, map[uint32]bool{1: true})

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	tracks, err := ReadTracks(f)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	require.Equal(t, uint32(2), tracks[0].ID)
	require.True(t, tracks[0].Table.Valid())
}
