/*
DESCRIPTION
  obu.go provides types and constants for AV1 open bitstream units (OBUs),
  and parsing of the OBU header itself.

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package av1dec

import (
	"github.com/ausocean/av1dec/bits"
	"github.com/pkg/errors"
)

// OBUType identifies the type of an open bitstream unit, as defined by
// section 6.2.2 of the AV1 specification.
type OBUType uint8

// OBU types. Values 9-14 are reserved.
const (
	OBUSequenceHeader       OBUType = 1
	OBUTemporalDelimiter    OBUType = 2
	OBUFrameHeader          OBUType = 3
	OBUTileGroup            OBUType = 4
	OBUMetadata             OBUType = 5
	OBUFrame                OBUType = 6
	OBURedundantFrameHeader OBUType = 7
	OBUTileList             OBUType = 8
	OBUPadding              OBUType = 15
)

// Metadata OBU subtypes, from section 6.7.1. Types 6-31 are unregistered
// user private; types above 31 are reserved.
const (
	metaTypeHDRCLL      = 1 // content light level
	metaTypeHDRMDCV     = 2 // mastering display colour volume
	metaTypeScalability = 3
	metaTypeITUTT35     = 4
	metaTypeTimecode    = 5
)

// obuHeader holds the fixed leading fields of an OBU, per section 5.3.2.
type obuHeader struct {
	typ          OBUType
	hasExtension bool
	hasLength    bool
	temporalID   int
	spatialID    int
	forbidden    bool
}

// parseOBUHeader reads the OBU header and, when present, the extension
// header, leaving br positioned at the start of the (possibly length-coded)
// payload.
func parseOBUHeader(br *bits.BitReader) obuHeader {
	var h obuHeader
	h.forbidden = br.ReadBit() != 0
	h.typ = OBUType(br.ReadBits(4))
	h.hasExtension = br.ReadBit() != 0
	h.hasLength = br.ReadBit() != 0
	br.ReadBit() // obu_reserved_1bit
	if h.hasExtension {
		h.temporalID = int(br.ReadBits(3))
		h.spatialID = int(br.ReadBits(2))
		br.ReadBits(3) // extension_header_reserved_3bits
	}
	return h
}

// checkTrailingBits validates the trailing_bits() syntax closing an OBU
// payload: a single 1 bit followed by zero bits to the end of the unit.
// Outside of strict compliance mode only buffer overrun is checked.
func checkTrailingBits(br *bits.BitReader, strict bool) error {
	trailingOne := br.ReadBit()
	if br.Err() != nil {
		return errors.Wrap(ErrInvalidData, "overrun reading trailing bits")
	}
	if !strict {
		return nil
	}
	if trailingOne == 0 || br.Buffered() != 0 {
		return errors.Wrap(ErrInvalidData, "nonzero trailing bits")
	}
	rem := br.Remaining()
	for len(rem) != 0 && rem[len(rem)-1] == 0 {
		rem = rem[:len(rem)-1]
	}
	if len(rem) != 0 {
		return errors.Wrap(ErrInvalidData, "nonzero bytes after trailing bits")
	}
	return nil
}
