package av1dec

import (
	"github.com/ausocean/av1dec/bits"
	"github.com/pkg/errors"
)

// FilmGrainData holds the synthesis parameters of the film grain applied to
// a frame, as per section 5.9.30 of the AV1 specification.
type FilmGrainData struct {
	Seed int

	NumYPoints int
	YPoints    [14][2]int

	ChromaScalingFromLuma bool

	NumUVPoints [2]int
	UVPoints    [2][10][2]int

	// grain_scaling_minus_8, plus 8.
	ScalingShift int

	ARCoeffLag int
	ARCoeffsY  [24]int
	ARCoeffsUV [2][25]int

	// ar_coeff_shift_minus_6, plus 6.
	ARCoeffShift int

	GrainScaleShift int

	UVMult     [2]int
	UVLumaMult [2]int
	UVOffset   [2]int

	OverlapFlag           bool
	ClipToRestrictedRange bool
}

// parseFilmGrain parses film_grain_params(). An inter frame may inherit its
// grain parameters from a reference frame, keeping only a fresh seed.
func (d *Decoder) parseFilmGrain(br *bits.BitReader, hdr *FrameHeader) error {
	seq := d.seqHdr
	if !seq.FilmGrainPresent || (!hdr.ShowFrame && !hdr.ShowableFrame) {
		return nil
	}
	fg := &hdr.FilmGrain
	fg.Present = br.ReadBit() != 0
	if !fg.Present {
		return nil
	}

	seed := int(br.ReadBits(16))
	fg.Update = hdr.FrameType != FrameTypeInter || br.ReadBit() != 0
	if !fg.Update {
		refidx := int(br.ReadBits(3))
		var i int
		for i = 0; i < RefsPerFrame; i++ {
			if hdr.RefIdx[i] == refidx {
				break
			}
		}
		ref := d.refHdr(refidx)
		if i == RefsPerFrame || ref == nil {
			return errors.Wrap(ErrInvalidData, "frame header: film grain from unused reference slot")
		}
		fg.Data = ref.FilmGrain.Data
		fg.Data.Seed = seed
		return nil
	}

	fgd := &fg.Data
	fgd.Seed = seed

	fgd.NumYPoints = int(br.ReadBits(4))
	if fgd.NumYPoints > 14 {
		return errors.Wrap(ErrInvalidData, "frame header: too many film grain luma points")
	}
	for i := 0; i < fgd.NumYPoints; i++ {
		fgd.YPoints[i][0] = int(br.ReadBits(8))
		if i != 0 && fgd.YPoints[i-1][0] >= fgd.YPoints[i][0] {
			return errors.Wrap(ErrInvalidData, "frame header: film grain luma points not increasing")
		}
		fgd.YPoints[i][1] = int(br.ReadBits(8))
	}

	if !seq.Monochrome {
		fgd.ChromaScalingFromLuma = br.ReadBit() != 0
	}
	if seq.Monochrome || fgd.ChromaScalingFromLuma ||
		(seq.SSVer == 1 && seq.SSHor == 1 && fgd.NumYPoints == 0) {
		fgd.NumUVPoints[0], fgd.NumUVPoints[1] = 0, 0
	} else {
		for pl := 0; pl < 2; pl++ {
			fgd.NumUVPoints[pl] = int(br.ReadBits(4))
			if fgd.NumUVPoints[pl] > 10 {
				return errors.Wrap(ErrInvalidData, "frame header: too many film grain chroma points")
			}
			for i := 0; i < fgd.NumUVPoints[pl]; i++ {
				fgd.UVPoints[pl][i][0] = int(br.ReadBits(8))
				if i != 0 && fgd.UVPoints[pl][i-1][0] >= fgd.UVPoints[pl][i][0] {
					return errors.Wrap(ErrInvalidData, "frame header: film grain chroma points not increasing")
				}
				fgd.UVPoints[pl][i][1] = int(br.ReadBits(8))
			}
		}
	}

	if seq.SSHor == 1 && seq.SSVer == 1 &&
		(fgd.NumUVPoints[0] != 0) != (fgd.NumUVPoints[1] != 0) {
		return errors.Wrap(ErrInvalidData, "frame header: film grain chroma planes disagree")
	}

	fgd.ScalingShift = int(br.ReadBits(2)) + 8
	fgd.ARCoeffLag = int(br.ReadBits(2))
	numYPos := 2 * fgd.ARCoeffLag * (fgd.ARCoeffLag + 1)
	if fgd.NumYPoints != 0 {
		for i := 0; i < numYPos; i++ {
			fgd.ARCoeffsY[i] = int(br.ReadBits(8)) - 128
		}
	}
	for pl := 0; pl < 2; pl++ {
		if fgd.NumUVPoints[pl] != 0 || fgd.ChromaScalingFromLuma {
			numUVPos := numYPos + b2i(fgd.NumYPoints != 0)
			for i := 0; i < numUVPos; i++ {
				fgd.ARCoeffsUV[pl][i] = int(br.ReadBits(8)) - 128
			}
			if fgd.NumYPoints == 0 {
				fgd.ARCoeffsUV[pl][numUVPos] = 0
			}
		}
	}
	fgd.ARCoeffShift = int(br.ReadBits(2)) + 6
	fgd.GrainScaleShift = int(br.ReadBits(2))
	for pl := 0; pl < 2; pl++ {
		if fgd.NumUVPoints[pl] != 0 {
			fgd.UVMult[pl] = int(br.ReadBits(8)) - 128
			fgd.UVLumaMult[pl] = int(br.ReadBits(8)) - 128
			fgd.UVOffset[pl] = int(br.ReadBits(9)) - 256
		}
	}
	fgd.OverlapFlag = br.ReadBit() != 0
	fgd.ClipToRestrictedRange = br.ReadBit() != 0
	return nil
}
