package av1dec

import (
	"github.com/ausocean/av1dec/bits"
	"github.com/pkg/errors"
)

// WarpType is the global motion model of one reference.
type WarpType int

const (
	WarpIdentity WarpType = iota
	WarpTranslation
	WarpRotZoom
	WarpAffine
)

// WarpedMotionParams holds the global motion model and its parameter matrix
// in the fixed point representation of section 7.10 of the AV1
// specification.
type WarpedMotionParams struct {
	Type   WarpType
	Matrix [6]int32
}

var defaultWMParams = WarpedMotionParams{
	Type:   WarpIdentity,
	Matrix: [6]int32{0, 0, 1 << 16, 0, 0, 1 << 16},
}

// parseGlobalMotion parses global_motion_params(). Each parameter is coded
// subexponentially as a delta against the corresponding parameter of the
// primary reference frame, or against the identity model when there is
// none.
func (d *Decoder) parseGlobalMotion(br *bits.BitReader, hdr *FrameHeader) error {
	for i := range hdr.GMV {
		hdr.GMV[i] = defaultWMParams
	}
	if !hdr.FrameType.interOrSwitch() {
		return nil
	}

	for i := 0; i < RefsPerFrame; i++ {
		gmv := &hdr.GMV[i]
		switch {
		case br.ReadBit() == 0:
			gmv.Type = WarpIdentity
		case br.ReadBit() != 0:
			gmv.Type = WarpRotZoom
		case br.ReadBit() != 0:
			gmv.Type = WarpTranslation
		default:
			gmv.Type = WarpAffine
		}
		if gmv.Type == WarpIdentity {
			continue
		}

		refGMV := &defaultWMParams
		if hdr.PrimaryRefFrame != PrimaryRefNone {
			ref := d.refHdr(hdr.RefIdx[hdr.PrimaryRefFrame])
			if ref == nil {
				return errors.Wrap(ErrInvalidData, "frame header: global motion from empty reference slot")
			}
			refGMV = &ref.GMV[i]
		}
		mat := &gmv.Matrix
		refMat := &refGMV.Matrix

		var nbits, shift uint
		if gmv.Type >= WarpRotZoom {
			mat[2] = 1<<16 + 2*br.ReadSubexp((refMat[2]-1<<16)>>1, 12)
			mat[3] = 2 * br.ReadSubexp(refMat[3]>>1, 12)
			nbits, shift = 12, 10
		} else if hdr.HighPrecisionMV {
			nbits, shift = 9, 13
		} else {
			nbits, shift = 8, 14
		}

		if gmv.Type == WarpAffine {
			mat[4] = 2 * br.ReadSubexp(refMat[4]>>1, 12)
			mat[5] = 1<<16 + 2*br.ReadSubexp((refMat[5]-1<<16)>>1, 12)
		} else {
			mat[4] = -mat[3]
			mat[5] = mat[2]
		}

		mat[0] = br.ReadSubexp(refMat[0]>>shift, nbits) * (int32(1) << shift)
		mat[1] = br.ReadSubexp(refMat[1]>>shift, nbits) * (int32(1) << shift)
	}
	return nil
}
