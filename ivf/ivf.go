/*
DESCRIPTION
  ivf.go provides a demuxer for the IVF container, which carries AV1
  elementary stream temporal units with per-frame timestamps.

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package ivf provides reading of the IVF container format, a simple frame
// oriented wrapper commonly used for raw AV1 and VP9 bitstreams. Each frame
// record holds one temporal unit of the elementary stream.
package ivf

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/ausocean/av1dec"
)

// Container layout constants.
const (
	fileHeaderSize  = 32
	frameHeaderSize = 12
	magic           = "DKIF"
)

// ErrNotIVF indicates input that does not start with an IVF file header.
var ErrNotIVF = errors.New("input is not an IVF file")

// Header holds the fields of the 32 byte IVF file header.
type Header struct {
	// Codec FourCC, e.g. "AV01".
	FourCC string

	Width, Height int

	// Timestamp timebase as a rational TimebaseNum/TimebaseDen seconds.
	TimebaseNum, TimebaseDen uint32

	// Declared number of frames. Commonly zero or wrong in streamed
	// files, so it is informational only.
	FrameCount uint32
}

// Reader demuxes an IVF stream, yielding one temporal unit per frame
// record.
type Reader struct {
	src    io.Reader
	hdr    Header
	offset int64
}

// NewReader reads and validates the file header of src and returns a Reader
// positioned at the first frame record.
func NewReader(src io.Reader) (*Reader, error) {
	var buf [fileHeaderSize]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return nil, errors.Wrap(err, "could not read file header")
	}
	if string(buf[:4]) != magic {
		return nil, ErrNotIVF
	}
	if hdrLen := binary.LittleEndian.Uint16(buf[6:]); hdrLen != fileHeaderSize {
		return nil, errors.Wrapf(ErrNotIVF, "unexpected header length %d", hdrLen)
	}

	r := &Reader{
		src: src,
		hdr: Header{
			FourCC:      string(buf[8:12]),
			Width:       int(binary.LittleEndian.Uint16(buf[12:])),
			Height:      int(binary.LittleEndian.Uint16(buf[14:])),
			TimebaseDen: binary.LittleEndian.Uint32(buf[16:]),
			TimebaseNum: binary.LittleEndian.Uint32(buf[20:]),
			FrameCount:  binary.LittleEndian.Uint32(buf[24:]),
		},
		offset: fileHeaderSize,
	}
	return r, nil
}

// Header returns the parsed file header.
func (r *Reader) Header() Header {
	return r.hdr
}

// ReadFrame returns the next temporal unit with its timestamp and stream
// offset filled into the data properties. At end of stream the error is
// io.EOF; a frame truncated mid-record reports io.ErrUnexpectedEOF.
func (r *Reader) ReadFrame() (*av1dec.Data, error) {
	var fh [frameHeaderSize]byte
	if _, err := io.ReadFull(r.src, fh[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrap(io.ErrUnexpectedEOF, "could not read frame header")
	}
	size := binary.LittleEndian.Uint32(fh[:])
	ts := binary.LittleEndian.Uint64(fh[4:])

	payload := make([]byte, size)
	if _, err := io.ReadFull(r.src, payload); err != nil {
		return nil, errors.Wrap(io.ErrUnexpectedEOF, "could not read frame payload")
	}

	d := &av1dec.Data{
		Data: payload,
		Props: av1dec.DataProps{
			Timestamp: int64(ts),
			Offset:    r.offset + frameHeaderSize,
			Size:      len(payload),
		},
	}
	r.offset += frameHeaderSize + int64(size)
	return d, nil
}
