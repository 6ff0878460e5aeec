// Package playback streams catalog media to the desktop player with
// HTTP range support, so the video element can seek without pulling
// whole clips over the wire.
package playback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMalformed marks a Range header the server ignores, answering
	// with the full file instead.
	ErrMalformed = errors.New("malformed range header")
	// ErrUnsatisfiable marks a range past the end of the file.
	ErrUnsatisfiable = errors.New("range not satisfiable")
)

// ByteRange is an inclusive byte span within a file.
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

func (r ByteRange) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// ParseRange interprets a Range request header against a file of the
// given size. An empty header returns (nil, nil): serve the whole
// file. Multi-range requests are honored by their first range only.
func ParseRange(header string, size int64) (*ByteRange, error) {
	if header == "" {
		return nil, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, ErrMalformed
	}
	if first, _, multi := strings.Cut(spec, ","); multi {
		spec = strings.TrimSpace(first)
	}
	startPart, endPart, ok := strings.Cut(spec, "-")
	if !ok {
		return nil, ErrMalformed
	}

	if startPart == "" {
		// Suffix form: the last N bytes.
		n, err := strconv.ParseInt(endPart, 10, 64)
		if err != nil || n <= 0 {
			return nil, ErrMalformed
		}
		start := size - n
		if start < 0 {
			start = 0
		}
		return &ByteRange{Start: start, End: size - 1}, nil
	}

	start, err := strconv.ParseInt(startPart, 10, 64)
	if err != nil || start < 0 {
		return nil, ErrMalformed
	}
	if start >= size {
		return nil, ErrUnsatisfiable
	}

	end := size - 1
	if endPart != "" {
		end, err = strconv.ParseInt(endPart, 10, 64)
		if err != nil {
			return nil, ErrMalformed
		}
		if end >= size {
			end = size - 1
		}
	}
	if start > end {
		return nil, ErrUnsatisfiable
	}
	return &ByteRange{Start: start, End: end}, nil
}
