package mp4index

import (
	"io"
)

// DataSource defines the random-access byte capability an index reads through.
// Sources are borrowed: the index never closes them, and they must stay
// readable for as long as any table built on top of them is queried.
type DataSource interface {
	io.ReaderAt // Reads len(p) bytes at an absolute offset; short reads return an error.
}

// ReadSeekerAt combines the sequential access needed to walk a container's
// box structure with the random access needed for table queries. Both
// *os.File and *bytes.Reader satisfy it.
type ReadSeekerAt interface {
	io.Reader
	io.Seeker
	io.ReaderAt
}

// SampleMeta describes a single media sample located through the index.
type SampleMeta struct {
	Offset     int64  // Absolute file offset of the sample payload.
	Size       uint32 // Payload size in bytes.
	DecodeTime uint64 // Decode timestamp in media timescale units, composition offset included.
	Duration   uint32 // Sample duration in media timescale units.
	Sync       bool   // Whether the sample is a sync (key) sample.
}

// SampleIndex defines the random-access query surface over one track's
// sample tables.
type SampleIndex interface {
	SampleMetaAt(sampleIndex uint32) (SampleMeta, error)                  // Resolves a sample to offset, size and timing.
	FindSampleAtTime(reqTime uint64, mode SeekMode) (uint32, error)       // Locates the sample covering a timestamp.
	FindSyncSampleNear(sampleIndex uint32, mode SeekMode) (uint32, error) // Locates a sync sample near an index.
	FindThumbnailSample() (uint32, error)                                 // Picks a representative early sync sample.
	MaxSampleSize() (uint32, error)                                       // Returns the largest sample size of the track.
	CountSamples() uint32                                                 // Returns the total number of samples.
}

// SeekMode steers time- and sync-based lookups when the requested position
// falls between two samples.
type SeekMode uint8

// Seek mode constants
const (
	SeekClosest SeekMode = iota // Pick whichever candidate is temporally closer.
	SeekBefore                  // Never resolve past the requested position.
	SeekAfter                   // Never resolve before the requested position.
)

// String returns a human-readable seek mode name.
func (m SeekMode) String() string {
	switch m {
	case SeekBefore:
		return "before"
	case SeekAfter:
		return "after"
	case SeekClosest:
		return "closest"
	default:
		return "unknown"
	}
}
