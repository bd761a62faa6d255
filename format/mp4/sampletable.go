package mp4

import (
	"fmt"
	"sync"

	"github.com/ugparu/mp4index"
	"github.com/ugparu/mp4index/utils/logger"
)

const (
	// maxSyncSamplesToScan bounds the thumbnail heuristic to the first sync
	// samples of the track.
	maxSyncSamplesToScan = 20

	// maxTablesBytes caps the memory materialized from untrusted tables.
	maxTablesBytes = 500 * 1024 * 1024
)

type tableBudget struct {
	remaining uint64
}

func newTableBudget() *tableBudget {
	return &tableBudget{remaining: maxTablesBytes}
}

func (b *tableBudget) take(n uint64) bool {
	if n > b.remaining {
		return false
	}
	b.remaining -= n
	return true
}

// SampleTable owns the parsed tables of one track and answers sample
// queries through a single shared iterator. Box parsing runs once,
// single-threaded, before any query traffic; the query surface serializes
// on one lock.
type SampleTable struct {
	mu sync.Mutex

	chunkOffsets  chunkOffsetTable
	sampleToChunk sampleToChunkTable
	sampleSizes   sampleSizeTable
	timeToSample  timeToSampleTable
	syncSamples   syncSampleTable
	compOffsets   compositionOffsetTable
	compLookup    compositionDeltaLookup

	budget   *tableBudget
	iterator *SampleIterator

	lastSyncSampleIndex uint32
}

var _ mp4index.SampleIndex = (*SampleTable)(nil)

// NewSampleTable returns an empty table reading through src. The source is
// borrowed and must stay readable for the table's lifetime.
func NewSampleTable(src mp4index.DataSource) *SampleTable {
	t := &SampleTable{
		chunkOffsets:  chunkOffsetTable{src: src, dataOffset: -1},
		sampleToChunk: sampleToChunkTable{src: src, dataOffset: -1},
		sampleSizes:   sampleSizeTable{src: src, dataOffset: -1},
		timeToSample:  timeToSampleTable{src: src, dataOffset: -1},
		syncSamples:   syncSampleTable{src: src, dataOffset: -1},
		compOffsets:   compositionOffsetTable{src: src, dataOffset: -1},
		budget:        newTableBudget(),
	}
	t.iterator = NewSampleIterator(t)
	return t
}

func (t *SampleTable) String() string {
	return fmt.Sprintf("SampleTable(samples=%d)", t.sampleSizes.count)
}

// SetChunkOffsetBox parses an stco or co64 payload located at dataOffset.
func (t *SampleTable) SetChunkOffsetBox(kind Tag, dataOffset, dataSize int64) error {
	return t.chunkOffsets.parse(kind, dataOffset, dataSize)
}

// SetSampleToChunkBox parses an stsc payload located at dataOffset.
func (t *SampleTable) SetSampleToChunkBox(dataOffset, dataSize int64) error {
	return t.sampleToChunk.parse(dataOffset, dataSize, t.budget)
}

// SetSampleSizeBox parses an stsz or stz2 payload located at dataOffset.
func (t *SampleTable) SetSampleSizeBox(kind Tag, dataOffset, dataSize int64) error {
	return t.sampleSizes.parse(kind, dataOffset, dataSize)
}

// SetTimeToSampleBox parses an stts payload located at dataOffset.
func (t *SampleTable) SetTimeToSampleBox(dataOffset, dataSize int64) error {
	return t.timeToSample.parse(dataOffset, dataSize, t.budget)
}

// SetSyncSampleBox parses an stss payload located at dataOffset.
func (t *SampleTable) SetSyncSampleBox(dataOffset, dataSize int64) error {
	return t.syncSamples.parse(dataOffset, dataSize, t.budget)
}

// SetCompositionOffsetBox parses a ctts payload located at dataOffset.
func (t *SampleTable) SetCompositionOffsetBox(dataOffset, dataSize int64) error {
	if err := t.compOffsets.parse(dataOffset, dataSize, t.budget); err != nil {
		return err
	}
	t.compLookup.setEntries(t.compOffsets.entries)
	return nil
}

func (t *SampleTable) compositionOffsetFor(sampleIndex uint32) uint32 {
	return t.compLookup.offsetFor(sampleIndex)
}

// Valid reports whether every table required for sample queries parsed.
func (t *SampleTable) Valid() bool {
	return t.chunkOffsets.present() &&
		t.sampleToChunk.present() &&
		t.sampleSizes.present() &&
		t.timeToSample.present()
}

// CountSamples returns the total number of samples in the track.
func (t *SampleTable) CountSamples() uint32 {
	return t.sampleSizes.count
}

// CountChunkOffsets returns the number of chunks in the track.
func (t *SampleTable) CountChunkOffsets() uint32 {
	return t.chunkOffsets.count
}

// CountSyncSamples returns the number of sync samples in the track.
func (t *SampleTable) CountSyncSamples() uint32 {
	return uint32(len(t.syncSamples.samples))
}

// SampleMetaAt resolves one sample to its byte range, timing and sync flag.
// io.EOF reports an index at or beyond the end of the track.
func (t *SampleTable) SampleMetaAt(sampleIndex uint32) (mp4index.SampleMeta, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.iterator.SeekTo(sampleIndex); err != nil {
		return mp4index.SampleMeta{}, err
	}

	return mp4index.SampleMeta{
		Offset:     t.iterator.SampleOffset(),
		Size:       t.iterator.SampleSize(),
		DecodeTime: t.iterator.SampleTime(),
		Duration:   t.iterator.SampleDuration(),
		Sync:       t.isSyncSample(sampleIndex),
	}, nil
}

// isSyncSample keeps a forward cursor into the sync list so sequential
// queries stay amortized O(1). Caller holds the table lock.
func (t *SampleTable) isSyncSample(sampleIndex uint32) bool {
	if !t.syncSamples.present() {
		return true
	}

	samples := t.syncSamples.samples
	i := t.lastSyncSampleIndex
	if i >= uint32(len(samples)) || samples[i] > sampleIndex {
		i = 0
	}
	for i < uint32(len(samples)) && samples[i] < sampleIndex {
		i++
	}

	t.lastSyncSampleIndex = i
	return i < uint32(len(samples)) && samples[i] == sampleIndex
}

// MaxSampleSize scans every sample size. O(n), intended for one-time buffer
// sizing rather than per-frame use.
func (t *SampleTable) MaxSampleSize() (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var maxSize uint32
	for i := uint32(0); i < t.sampleSizes.count; i++ {
		size, err := t.sampleSizes.sizeAt(i)
		if err != nil {
			return 0, err
		}
		if size > maxSize {
			maxSize = size
		}
	}
	return maxSize, nil
}

// FindSampleAtTime locates the sample whose decode window covers reqTime,
// given in media timescale units. SeekBefore and SeekAfter keep the result
// on the requested side of reqTime; SeekClosest picks the temporally nearer
// neighbor, resolving exact midpoints to the later sample.
func (t *SampleTable) FindSampleAtTime(reqTime uint64, mode mp4index.SeekMode) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := t.sampleSizes.count
	if total == 0 {
		return 0, &mp4index.OutOfRangeError{What: "track has no samples"}
	}

	var time uint64
	var cur uint32
	for _, entry := range t.timeToSample.entries {
		span := uint64(entry.count) * uint64(entry.delta)
		if reqTime < time+span {
			// Runs with zero delta never cover reqTime, so entry.delta is
			// nonzero here.
			j := uint32((reqTime - time) / uint64(entry.delta))

			index1 := cur + j
			if index1 >= total {
				return 0, &mp4index.OutOfRangeError{What: "requested time beyond last sample"}
			}
			time1 := time + uint64(j)*uint64(entry.delta)

			index2 := index1 + 1
			time2 := time1 + uint64(entry.delta)
			if index2 > total-1 {
				index2 = index1
				time2 = time1
			}

			chosen, chosenTime := index2, time2
			if absDiff(time1, reqTime) < absDiff(time2, reqTime) {
				chosen, chosenTime = index1, time1
			}

			if mode == mp4index.SeekBefore && chosenTime > reqTime {
				chosen = index1
			} else if mode == mp4index.SeekAfter && chosenTime < reqTime {
				chosen = index2
			}
			return chosen, nil
		}

		time += span
		cur += entry.count
	}

	return 0, &mp4index.OutOfRangeError{What: "requested time beyond last sample"}
}

// FindSyncSampleNear locates a sync sample near startSampleIndex. The
// bracketing sync samples are compared by actual decode time, then mode
// keeps the result on the requested side of the start sample. Without an
// stss box every sample is a sync sample and startSampleIndex is returned
// unchanged.
func (t *SampleTable) FindSyncSampleNear(startSampleIndex uint32, mode mp4index.SeekMode) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.syncSamples.present() {
		return startSampleIndex, nil
	}

	samples := t.syncSamples.samples
	n := uint32(len(samples))
	if n == 0 {
		return 0, nil
	}

	var left uint32
	for left < n {
		if samples[left] >= startSampleIndex {
			break
		}
		left++
	}
	if left > 0 {
		left--
	}

	x := samples[left]

	if err := t.iterator.SeekTo(startSampleIndex); err != nil {
		return 0, err
	}
	startTime := t.iterator.SampleTime()

	if err := t.iterator.SeekTo(x); err != nil {
		return 0, err
	}
	xTime := t.iterator.SampleTime()

	if left+1 < n {
		y := samples[left+1]
		if err := t.iterator.SeekTo(y); err != nil {
			return 0, err
		}
		yTime := t.iterator.SampleTime()

		// Pick the sync sample closest in time to the start sample.
		if absDiff(xTime, startTime) > absDiff(yTime, startTime) {
			x = y
			left++
		}
	}

	if mode == mp4index.SeekBefore && x > startSampleIndex {
		if left == 0 {
			return 0, &mp4index.OutOfRangeError{What: "no sync sample before start"}
		}
		left--
		x = samples[left]
		if x > startSampleIndex {
			return 0, &mp4index.MalformedError{Box: "stss", Reason: "sync sample table is not sorted"}
		}
	} else if mode == mp4index.SeekAfter && x < startSampleIndex {
		if left+1 >= n {
			logger.Errorf(t, "no sync sample after sample %d", startSampleIndex)
			return 0, &mp4index.OutOfRangeError{What: "no sync sample after start"}
		}
		left++
		x = samples[left]
		if x < startSampleIndex {
			return 0, &mp4index.MalformedError{Box: "stss", Reason: "sync sample table is not sorted"}
		}
	}

	return x, nil
}

// FindThumbnailSample picks the sync sample with the largest compressed
// size among the first sync samples of the track. Without an stss box
// sample 0 is returned.
func (t *SampleTable) FindThumbnailSample() (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.syncSamples.present() {
		return 0, nil
	}

	numSamplesToScan := len(t.syncSamples.samples)
	if numSamplesToScan > maxSyncSamplesToScan {
		numSamplesToScan = maxSyncSamplesToScan
	}

	var best uint32
	var bestSize uint32
	for i := 0; i < numSamplesToScan; i++ {
		x := t.syncSamples.samples[i]

		size, err := t.sampleSizes.sizeAt(x)
		if err != nil {
			return 0, err
		}

		if i == 0 || size > bestSize {
			best = x
			bestSize = size
		}
	}

	return best, nil
}
