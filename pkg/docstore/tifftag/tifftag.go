// Package tifftag probes TIFF files for the presence of specific IFD tags.
//
// Only the IFD chain is walked; image data is never decoded. Both classic
// TIFF and BigTIFF layouts are understood.
package tifftag

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// WangAnnotation is the tag id of embedded Wang/Kodak imaging annotations
const WangAnnotation uint16 = 32932

// maxIFDs bounds the IFD chain walk on malformed or cyclic files
const maxIFDs = 4096

var (
	// ErrNotTIFF indicates the data does not start with a TIFF header
	ErrNotTIFF = errors.New("not a TIFF file")

	// ErrMalformed indicates an IFD points outside the data
	ErrMalformed = errors.New("malformed TIFF structure")
)

type layout struct {
	order      binary.ByteOrder
	big        bool
	firstIFD   uint64
	entrySize  uint64
	countSize  uint64
	offsetSize uint64
}

// IsTIFF reports whether data starts with a classic or BigTIFF header.
func IsTIFF(data []byte) bool {
	_, err := parseHeader(data)
	return err == nil
}

// HasTag reports whether any IFD of the TIFF in data carries tag.
func HasTag(data []byte, tag uint16) (bool, error) {
	l, err := parseHeader(data)
	if err != nil {
		return false, err
	}

	seen := make(map[uint64]struct{})
	offset := l.firstIFD
	for i := 0; offset != 0; i++ {
		if i >= maxIFDs {
			return false, fmt.Errorf("%w: more than %d IFDs", ErrMalformed, maxIFDs)
		}
		if _, ok := seen[offset]; ok {
			return false, fmt.Errorf("%w: IFD cycle at offset %d", ErrMalformed, offset)
		}
		seen[offset] = struct{}{}

		found, next, err := l.scanIFD(data, offset, tag)
		if err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
		offset = next
	}
	return false, nil
}

// PageCount returns the number of IFDs (pages) in the TIFF.
func PageCount(data []byte) (int, error) {
	l, err := parseHeader(data)
	if err != nil {
		return 0, err
	}
	seen := make(map[uint64]struct{})
	count := 0
	for offset := l.firstIFD; offset != 0; count++ {
		if count >= maxIFDs {
			return 0, fmt.Errorf("%w: more than %d IFDs", ErrMalformed, maxIFDs)
		}
		if _, ok := seen[offset]; ok {
			return 0, fmt.Errorf("%w: IFD cycle at offset %d", ErrMalformed, offset)
		}
		seen[offset] = struct{}{}
		_, next, err := l.scanIFD(data, offset, 0)
		if err != nil {
			return 0, err
		}
		offset = next
	}
	return count, nil
}

func parseHeader(data []byte) (*layout, error) {
	if len(data) < 8 {
		return nil, ErrNotTIFF
	}
	l := &layout{}
	switch string(data[:2]) {
	case "II":
		l.order = binary.LittleEndian
	case "MM":
		l.order = binary.BigEndian
	default:
		return nil, ErrNotTIFF
	}

	switch l.order.Uint16(data[2:4]) {
	case 42:
		l.firstIFD = uint64(l.order.Uint32(data[4:8]))
		l.entrySize, l.countSize, l.offsetSize = 12, 2, 4
	case 43:
		if len(data) < 16 || l.order.Uint16(data[4:6]) != 8 {
			return nil, ErrNotTIFF
		}
		l.big = true
		l.firstIFD = l.order.Uint64(data[8:16])
		l.entrySize, l.countSize, l.offsetSize = 20, 8, 8
	default:
		return nil, ErrNotTIFF
	}
	return l, nil
}

// scanIFD walks one IFD and returns whether tag was found and the next offset
func (l *layout) scanIFD(data []byte, offset uint64, tag uint16) (bool, uint64, error) {
	size := uint64(len(data))
	if offset > size || size-offset < l.countSize {
		return false, 0, fmt.Errorf("%w: IFD offset %d beyond end of data", ErrMalformed, offset)
	}

	var entries uint64
	if l.big {
		entries = l.order.Uint64(data[offset : offset+8])
	} else {
		entries = uint64(l.order.Uint16(data[offset : offset+2]))
	}

	// start <= size holds here; compare remaining lengths so nothing wraps
	start := offset + l.countSize
	remaining := size - start
	if remaining < l.offsetSize || entries > (remaining-l.offsetSize)/l.entrySize {
		return false, 0, fmt.Errorf("%w: IFD at %d with %d entries overruns data", ErrMalformed, offset, entries)
	}
	end := start + entries*l.entrySize

	found := false
	for e := start; e < end; e += l.entrySize {
		if tag != 0 && l.order.Uint16(data[e:e+2]) == tag {
			found = true
		}
	}

	var next uint64
	if l.big {
		next = l.order.Uint64(data[end : end+8])
	} else {
		next = uint64(l.order.Uint32(data[end : end+4]))
	}
	return found, next, nil
}
