// Package mp4 provides random-access sample indexing for MP4 and QuickTime tracks.
package mp4

import (
	"errors"
	"io"

	"github.com/ugparu/mp4index"
	"github.com/ugparu/mp4index/utils/bits/pio"
)

// Tag is a four-character box type code.
type Tag uint32

func (t Tag) String() string {
	var b [4]byte
	pio.PutU32BE(b[:], uint32(t))
	for i := 0; i < 4; i++ {
		if b[i] == 0 {
			b[i] = ' '
		}
	}
	return string(b[:])
}

// readFullAt reads exactly len(p) bytes at off. A short read is surfaced as a
// ReadError wrapping io.ErrUnexpectedEOF and is never retried.
func readFullAt(src mp4index.DataSource, p []byte, off int64) error {
	n, err := src.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return &mp4index.ReadError{Off: off, Err: err}
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
