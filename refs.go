/*
DESCRIPTION
  refs.go provides the reference frame derivations of the frame header: the
  set_frame_refs() ranking used with short reference signalling, and the
  skip mode reference pair selection.

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
	"math"

	"github.com/ausocean/av1dec/bits"
	"github.com/pkg/errors"
)

// pocDiff returns the signed cyclic distance from order hint poc1 to poc0,
// interpreting the nbits-wide hints as values in [-2^(nbits-1), 2^(nbits-1)).
func pocDiff(nbits, poc0, poc1 int) int {
	if nbits == 0 {
		return 0
	}
	mask := 1 << (nbits - 1)
	diff := poc0 - poc1
	return diff&(mask-1) - diff&mask
}

// refUsed marks an entry of the ranking table as consumed.
const refUsed = math.MinInt32

// deriveShortSignalingRefs reads the last and golden frame slots and fills
// the remaining five references by ranking the slots on their order hint
// distance to the current frame, per set_frame_refs() in section 7.8 of the
// AV1 specification.
func (d *Decoder) deriveShortSignalingRefs(br *bits.BitReader, hdr *FrameHeader) error {
	seq := d.seqHdr

	hdr.RefIdx[0] = int(br.ReadBits(3))
	hdr.RefIdx[1], hdr.RefIdx[2] = -1, -1
	hdr.RefIdx[3] = int(br.ReadBits(3))

	// Entry 0 of mem is a dump slot so that stores through a still unset
	// reference index of -1 land somewhere harmless.
	var mem [TotalRefsPerFrame + 1]int32
	offset := mem[1:]
	earliestRef := -1
	earliestOffset := int32(math.MaxInt32)
	for i := 0; i < TotalRefsPerFrame; i++ {
		ref := d.refHdr(i)
		if ref == nil {
			return errors.Wrap(ErrInvalidData, "frame header: short ref signaling with empty reference slot")
		}
		diff := int32(pocDiff(seq.OrderHintBits, ref.FrameOffset, hdr.FrameOffset))
		offset[i] = diff
		if diff < earliestOffset {
			earliestOffset = diff
			earliestRef = i
		}
	}
	offset[hdr.RefIdx[0]] = refUsed
	offset[hdr.RefIdx[3]] = refUsed

	// Altref: the latest frame, falling back to any unused slot.
	refidx := -1
	var latestOffset int32
	for i := 0; i < TotalRefsPerFrame; i++ {
		if hint := offset[i]; hint >= latestOffset {
			latestOffset = hint
			refidx = i
		}
	}
	mem[refidx+1] = refUsed
	hdr.RefIdx[6] = refidx

	// Bwdref and altref2: the two earliest future frames. Unsigned
	// compares put past frames and used slots beyond any valid distance.
	for i := 4; i < 6; i++ {
		earliest := uint32(math.MaxUint8)
		refidx = -1
		for j := 0; j < TotalRefsPerFrame; j++ {
			if hint := uint32(offset[j]); hint < earliest {
				earliest = hint
				refidx = j
			}
		}
		mem[refidx+1] = refUsed
		hdr.RefIdx[i] = refidx
	}

	// Remaining slots take the latest past frames, then the overall
	// earliest frame when nothing is left.
	for i := 1; i < RefsPerFrame; i++ {
		refidx = hdr.RefIdx[i]
		if refidx >= 0 {
			continue
		}
		latest := uint32(math.MaxUint32) - math.MaxUint8
		for j := 0; j < TotalRefsPerFrame; j++ {
			if hint := uint32(offset[j]); hint >= latest {
				latest = hint
				refidx = j
			}
		}
		mem[refidx+1] = refUsed
		if refidx >= 0 {
			hdr.RefIdx[i] = refidx
		} else {
			hdr.RefIdx[i] = earliestRef
		}
	}
	return nil
}

// deriveSkipMode selects the skip mode reference pair: the nearest past and
// future references when both exist, otherwise the two nearest past
// references, per section 7.8 of the AV1 specification.
func (d *Decoder) deriveSkipMode(hdr *FrameHeader) error {
	seq := d.seqHdr
	if !hdr.SwitchableCompRefs || !hdr.FrameType.interOrSwitch() || !seq.OrderHint {
		return nil
	}

	poc := hdr.FrameOffset
	offBefore, offAfter := -1, -1
	var offBeforeIdx, offAfterIdx int
	for i := 0; i < RefsPerFrame; i++ {
		ref := d.refHdr(hdr.RefIdx[i])
		if ref == nil {
			return errors.Wrap(ErrInvalidData, "frame header: skip mode with empty reference slot")
		}
		refpoc := ref.FrameOffset
		diff := pocDiff(seq.OrderHintBits, refpoc, poc)
		if diff > 0 {
			if offAfter < 0 || pocDiff(seq.OrderHintBits, offAfter, refpoc) > 0 {
				offAfter = refpoc
				offAfterIdx = i
			}
		} else if diff < 0 && (offBefore < 0 ||
			pocDiff(seq.OrderHintBits, refpoc, offBefore) > 0) {
			offBefore = refpoc
			offBeforeIdx = i
		}
	}

	switch {
	case offBefore >= 0 && offAfter >= 0:
		hdr.SkipModeRefs[0] = mini(offBeforeIdx, offAfterIdx)
		hdr.SkipModeRefs[1] = maxi(offBeforeIdx, offAfterIdx)
		hdr.SkipModeAllowed = true
	case offBefore >= 0:
		offBefore2 := -1
		var offBefore2Idx int
		for i := 0; i < RefsPerFrame; i++ {
			ref := d.refHdr(hdr.RefIdx[i])
			if ref == nil {
				return errors.Wrap(ErrInvalidData, "frame header: skip mode with empty reference slot")
			}
			refpoc := ref.FrameOffset
			if pocDiff(seq.OrderHintBits, refpoc, offBefore) < 0 {
				if offBefore2 < 0 || pocDiff(seq.OrderHintBits, refpoc, offBefore2) > 0 {
					offBefore2 = refpoc
					offBefore2Idx = i
				}
			}
		}
		if offBefore2 >= 0 {
			hdr.SkipModeRefs[0] = mini(offBeforeIdx, offBefore2Idx)
			hdr.SkipModeRefs[1] = maxi(offBeforeIdx, offBefore2Idx)
			hdr.SkipModeAllowed = true
		}
	}
	return nil
}
