package av1dec

import (
	"math"

	"github.com/ausocean/av1dec/bits"
	"github.com/pkg/errors"
)

// Maximum structural sizes fixed by the AV1 specification.
const (
	MaxOperatingPoints = 32
	MaxTileCols        = 64
	MaxTileRows        = 64
	MaxSegments        = 8
	MaxCDEFStrengths   = 8

	// RefsPerFrame is the number of forward references an inter frame
	// signals; TotalRefsPerFrame additionally counts the intra frame
	// reference.
	RefsPerFrame      = 7
	TotalRefsPerFrame = 8
)

// ColorPrimaries, TransferCharacteristics and MatrixCoefficients carry the
// code points of ITU-T H.273, which AV1 adopts wholesale. Only the values
// the parser itself inspects are named here.
type ColorPrimaries int

const (
	ColorPrimariesBT709   ColorPrimaries = 1
	ColorPrimariesUnknown ColorPrimaries = 2
)

type TransferCharacteristics int

const (
	TransferUnknown TransferCharacteristics = 2
	TransferSRGB    TransferCharacteristics = 13
)

type MatrixCoefficients int

const (
	MatrixIdentity MatrixCoefficients = 0
	MatrixUnknown  MatrixCoefficients = 2
)

// ChromaSamplePosition locates chroma samples relative to luma for 4:2:0
// streams.
type ChromaSamplePosition int

const (
	ChromaPositionUnknown   ChromaSamplePosition = 0
	ChromaPositionVertical  ChromaSamplePosition = 1 // left-aligned with luma
	ChromaPositionColocated ChromaSamplePosition = 2
)

// PixelLayout is the chroma subsampling arrangement of a frame.
type PixelLayout int

const (
	PixelLayoutI400 PixelLayout = iota // monochrome
	PixelLayoutI420
	PixelLayoutI422
	PixelLayoutI444
)

// FeatureMode is the three-state signal AV1 uses for coding tools that may
// be disabled, enabled, or chosen per frame.
type FeatureMode int

const (
	FeatureOff FeatureMode = iota
	FeatureOn
	FeatureAdaptive
)

// OperatingPoint describes one decodable operating point of a coded video
// sequence: a subset of the stream's temporal and spatial layers together
// with its level and timing model flags.
type OperatingPoint struct {
	// operating_point_idc: bits 0-7 select temporal layers, bits 8-11
	// spatial layers. Zero means the whole stream.
	IDC int

	// seq_level_idx, split into its major (2-7) and minor (0-3) parts.
	MajorLevel, MinorLevel int

	// seq_tier, present only above level 3.
	Tier int

	// decoder_model_present_for_this_op.
	DecoderModelParamPresent bool

	// initial_display_delay_present_for_this_op.
	DisplayModelParamPresent bool

	// initial_display_delay_minus_1, plus 1. Defaults to 10 when absent.
	InitialDisplayDelay int
}

// OperatingParameterInfo holds the per-operating-point decoder model
// parameters. These may legally change between sequence headers of one
// coded video sequence, so they are excluded when headers are compared.
type OperatingParameterInfo struct {
	// decoder_buffer_delay.
	DecoderBufferDelay uint32

	// encoder_buffer_delay.
	EncoderBufferDelay uint32

	// low_delay_mode_flag.
	LowDelayMode bool
}

// SequenceHeader holds the parsed fields of a sequence header OBU, as per
// section 5.5 of the AV1 specification. Derived values such as PixelLayout
// are filled in during parsing.
type SequenceHeader struct {
	// seq_profile.
	Profile int

	// still_picture.
	StillPicture bool

	// reduced_still_picture_header.
	ReducedStillPictureHeader bool

	// timing_info_present_flag.
	TimingInfoPresent bool

	// num_units_in_display_tick.
	NumUnitsInTick uint32

	// time_scale.
	TimeScale uint32

	// equal_picture_interval.
	EqualPictureInterval bool

	// num_ticks_per_picture_minus_1, plus 1.
	NumTicksPerPicture uint32

	// decoder_model_info_present_flag.
	DecoderModelInfoPresent bool

	// buffer_delay_length_minus_1, plus 1.
	EncoderDecoderBufferDelayLength int

	// num_units_in_decoding_tick.
	NumUnitsInDecodingTick uint32

	// buffer_removal_time_length_minus_1, plus 1.
	BufferRemovalDelayLength int

	// frame_presentation_time_length_minus_1, plus 1.
	FramePresentationDelayLength int

	// initial_display_delay_present_flag.
	DisplayModelInfoPresent bool

	// operating_points_cnt_minus_1, plus 1.
	NumOperatingPoints int

	OperatingPoints        [MaxOperatingPoints]OperatingPoint
	OperatingParameterInfo [MaxOperatingPoints]OperatingParameterInfo

	// frame_width_bits_minus_1, plus 1.
	WidthBits int

	// frame_height_bits_minus_1, plus 1.
	HeightBits int

	// max_frame_width_minus_1, plus 1.
	MaxWidth int

	// max_frame_height_minus_1, plus 1.
	MaxHeight int

	// frame_id_numbers_present_flag.
	FrameIDNumbersPresent bool

	// delta_frame_id_length_minus_2, plus 2.
	DeltaFrameIDBits int

	// additional_frame_id_length_minus_1, plus DeltaFrameIDBits plus 1.
	FrameIDBits int

	// use_128x128_superblock.
	SB128 bool

	// enable_filter_intra.
	FilterIntra bool

	// enable_intra_edge_filter.
	IntraEdgeFilter bool

	// enable_interintra_compound.
	InterIntra bool

	// enable_masked_compound.
	MaskedCompound bool

	// enable_warped_motion.
	WarpedMotion bool

	// enable_dual_filter.
	DualFilter bool

	// enable_order_hint.
	OrderHint bool

	// enable_jnt_comp.
	JntComp bool

	// enable_ref_frame_mvs.
	RefFrameMVs bool

	// seq_force_screen_content_tools.
	ScreenContentTools FeatureMode

	// seq_force_integer_mv.
	ForceIntegerMV FeatureMode

	// order_hint_bits_minus_1, plus 1. Zero when order hints are disabled.
	OrderHintBits int

	// enable_superres.
	SuperRes bool

	// enable_cdef.
	CDEF bool

	// enable_restoration.
	Restoration bool

	// Bit depth class derived from high_bitdepth and twelve_bit: 0 for
	// 8-bit, 1 for 10-bit, 2 for 12-bit.
	HighBitDepth int

	// mono_chrome.
	Monochrome bool

	// color_description_present_flag.
	ColorDescriptionPresent bool

	// color_primaries.
	Primaries ColorPrimaries

	// transfer_characteristics.
	Transfer TransferCharacteristics

	// matrix_coefficients.
	Matrix MatrixCoefficients

	// color_range: false for the studio swing, true for full swing.
	ColorRange bool

	// Chroma subsampling factors and the layout they imply.
	SSHor, SSVer int
	Layout       PixelLayout

	// chroma_sample_position.
	ChromaSamplePosition ChromaSamplePosition

	// separate_uv_delta_q.
	SeparateUVDeltaQ bool

	// film_grain_params_present.
	FilmGrainPresent bool
}

// NewSequenceHeader parses a sequence header OBU payload from br. In strict
// mode the compliance checks the specification only recommends, such as zero
// timing denominators and trailing bit padding, are enforced as errors.
func NewSequenceHeader(br *bits.BitReader, strict bool) (*SequenceHeader, error) {
	h := &SequenceHeader{}

	h.Profile = int(br.ReadBits(3))
	if h.Profile > 2 {
		return nil, errors.Wrap(ErrInvalidData, "sequence header: unsupported profile")
	}
	h.StillPicture = br.ReadBit() != 0
	h.ReducedStillPictureHeader = br.ReadBit() != 0
	if h.ReducedStillPictureHeader && !h.StillPicture {
		return nil, errors.Wrap(ErrInvalidData, "sequence header: reduced still picture header without still picture")
	}

	if h.ReducedStillPictureHeader {
		h.NumOperatingPoints = 1
		h.OperatingPoints[0].MajorLevel = int(br.ReadBits(3))
		h.OperatingPoints[0].MinorLevel = int(br.ReadBits(2))
		h.OperatingPoints[0].InitialDisplayDelay = 10
	} else {
		h.TimingInfoPresent = br.ReadBit() != 0
		if h.TimingInfoPresent {
			h.NumUnitsInTick = br.ReadBits(32)
			h.TimeScale = br.ReadBits(32)
			if strict && (h.NumUnitsInTick == 0 || h.TimeScale == 0) {
				return nil, errors.Wrap(ErrInvalidData, "sequence header: zero timing info denominator")
			}
			h.EqualPictureInterval = br.ReadBit() != 0
			if h.EqualPictureInterval {
				n := br.ReadVLC()
				if n == math.MaxUint32 {
					return nil, errors.Wrap(ErrInvalidData, "sequence header: invalid num_ticks_per_picture")
				}
				h.NumTicksPerPicture = n + 1
			}

			h.DecoderModelInfoPresent = br.ReadBit() != 0
			if h.DecoderModelInfoPresent {
				h.EncoderDecoderBufferDelayLength = int(br.ReadBits(5)) + 1
				h.NumUnitsInDecodingTick = br.ReadBits(32)
				if strict && h.NumUnitsInDecodingTick == 0 {
					return nil, errors.Wrap(ErrInvalidData, "sequence header: zero num_units_in_decoding_tick")
				}
				h.BufferRemovalDelayLength = int(br.ReadBits(5)) + 1
				h.FramePresentationDelayLength = int(br.ReadBits(5)) + 1
			}
		}

		h.DisplayModelInfoPresent = br.ReadBit() != 0
		h.NumOperatingPoints = int(br.ReadBits(5)) + 1
		for i := 0; i < h.NumOperatingPoints; i++ {
			op := &h.OperatingPoints[i]
			op.IDC = int(br.ReadBits(12))
			// A nonzero idc must select at least one temporal and one
			// spatial layer.
			if op.IDC != 0 && (op.IDC&0xff == 0 || op.IDC&0xf00 == 0) {
				return nil, errors.Wrap(ErrInvalidData, "sequence header: invalid operating point idc")
			}
			op.MajorLevel = 2 + int(br.ReadBits(3))
			op.MinorLevel = int(br.ReadBits(2))
			if op.MajorLevel > 3 {
				op.Tier = int(br.ReadBit())
			}
			if h.DecoderModelInfoPresent {
				op.DecoderModelParamPresent = br.ReadBit() != 0
				if op.DecoderModelParamPresent {
					opi := &h.OperatingParameterInfo[i]
					opi.DecoderBufferDelay = br.ReadBits(h.EncoderDecoderBufferDelayLength)
					opi.EncoderBufferDelay = br.ReadBits(h.EncoderDecoderBufferDelayLength)
					opi.LowDelayMode = br.ReadBit() != 0
				}
			}
			if h.DisplayModelInfoPresent {
				op.DisplayModelParamPresent = br.ReadBit() != 0
			}
			if op.DisplayModelParamPresent {
				op.InitialDisplayDelay = int(br.ReadBits(4)) + 1
			} else {
				op.InitialDisplayDelay = 10
			}
		}
	}

	h.WidthBits = int(br.ReadBits(4)) + 1
	h.HeightBits = int(br.ReadBits(4)) + 1
	h.MaxWidth = int(br.ReadBits(h.WidthBits)) + 1
	h.MaxHeight = int(br.ReadBits(h.HeightBits)) + 1
	if !h.ReducedStillPictureHeader {
		h.FrameIDNumbersPresent = br.ReadBit() != 0
		if h.FrameIDNumbersPresent {
			h.DeltaFrameIDBits = int(br.ReadBits(4)) + 2
			h.FrameIDBits = int(br.ReadBits(3)) + h.DeltaFrameIDBits + 1
		}
	}

	h.SB128 = br.ReadBit() != 0
	h.FilterIntra = br.ReadBit() != 0
	h.IntraEdgeFilter = br.ReadBit() != 0
	if h.ReducedStillPictureHeader {
		h.ScreenContentTools = FeatureAdaptive
		h.ForceIntegerMV = FeatureAdaptive
	} else {
		h.InterIntra = br.ReadBit() != 0
		h.MaskedCompound = br.ReadBit() != 0
		h.WarpedMotion = br.ReadBit() != 0
		h.DualFilter = br.ReadBit() != 0
		h.OrderHint = br.ReadBit() != 0
		if h.OrderHint {
			h.JntComp = br.ReadBit() != 0
			h.RefFrameMVs = br.ReadBit() != 0
		}
		if br.ReadBit() != 0 {
			h.ScreenContentTools = FeatureAdaptive
		} else {
			h.ScreenContentTools = FeatureMode(br.ReadBit())
		}
		if h.ScreenContentTools != FeatureOff {
			if br.ReadBit() != 0 {
				h.ForceIntegerMV = FeatureAdaptive
			} else {
				h.ForceIntegerMV = FeatureMode(br.ReadBit())
			}
		} else {
			h.ForceIntegerMV = FeatureAdaptive
		}
		if h.OrderHint {
			h.OrderHintBits = int(br.ReadBits(3)) + 1
		}
	}

	h.SuperRes = br.ReadBit() != 0
	h.CDEF = br.ReadBit() != 0
	h.Restoration = br.ReadBit() != 0

	h.HighBitDepth = int(br.ReadBit())
	if h.Profile == 2 && h.HighBitDepth != 0 {
		h.HighBitDepth += int(br.ReadBit())
	}
	if h.Profile != 1 {
		h.Monochrome = br.ReadBit() != 0
	}
	h.ColorDescriptionPresent = br.ReadBit() != 0
	if h.ColorDescriptionPresent {
		h.Primaries = ColorPrimaries(br.ReadBits(8))
		h.Transfer = TransferCharacteristics(br.ReadBits(8))
		h.Matrix = MatrixCoefficients(br.ReadBits(8))
	} else {
		h.Primaries = ColorPrimariesUnknown
		h.Transfer = TransferUnknown
		h.Matrix = MatrixUnknown
	}

	switch {
	case h.Monochrome:
		h.ColorRange = br.ReadBit() != 0
		h.Layout = PixelLayoutI400
		h.SSHor, h.SSVer = 1, 1
		h.ChromaSamplePosition = ChromaPositionUnknown
	case h.Primaries == ColorPrimariesBT709 && h.Transfer == TransferSRGB && h.Matrix == MatrixIdentity:
		// sRGB content is always 4:4:4 full range, and only profiles that
		// can carry 4:4:4 may signal it.
		h.Layout = PixelLayoutI444
		h.ColorRange = true
		if h.Profile != 1 && !(h.Profile == 2 && h.HighBitDepth == 2) {
			return nil, errors.Wrap(ErrInvalidData, "sequence header: sRGB color in a subsampled profile")
		}
	default:
		h.ColorRange = br.ReadBit() != 0
		switch h.Profile {
		case 0:
			h.Layout = PixelLayoutI420
			h.SSHor, h.SSVer = 1, 1
		case 1:
			h.Layout = PixelLayoutI444
		case 2:
			if h.HighBitDepth == 2 {
				h.SSHor = int(br.ReadBit())
				if h.SSHor == 1 {
					h.SSVer = int(br.ReadBit())
				}
			} else {
				h.SSHor = 1
			}
			switch {
			case h.SSHor == 0:
				h.Layout = PixelLayoutI444
			case h.SSVer == 0:
				h.Layout = PixelLayoutI422
			default:
				h.Layout = PixelLayoutI420
			}
		}
		if h.SSHor == 1 && h.SSVer == 1 {
			h.ChromaSamplePosition = ChromaSamplePosition(br.ReadBits(2))
		}
	}
	if strict && h.Matrix == MatrixIdentity && h.Layout != PixelLayoutI444 {
		return nil, errors.Wrap(ErrInvalidData, "sequence header: identity matrix requires 4:4:4")
	}
	if !h.Monochrome {
		h.SeparateUVDeltaQ = br.ReadBit() != 0
	}
	h.FilmGrainPresent = br.ReadBit() != 0

	if err := checkTrailingBits(br, strict); err != nil {
		return nil, errors.Wrap(err, "sequence header")
	}
	return h, nil
}

// sameSequence reports whether a and b describe the same coded video
// sequence. Operating parameter info may change between headers of a single
// sequence, so it is excluded from the comparison.
func sameSequence(a, b *SequenceHeader) bool {
	x, y := *a, *b
	x.OperatingParameterInfo = [MaxOperatingPoints]OperatingParameterInfo{}
	y.OperatingParameterInfo = [MaxOperatingPoints]OperatingParameterInfo{}
	return x == y
}

// sameOperatingParameterInfo reports whether a and b carry the same decoder
// model parameters.
func sameOperatingParameterInfo(a, b *SequenceHeader) bool {
	return a.OperatingParameterInfo == b.OperatingParameterInfo
}

// ParseSequenceHeader scans a span of OBUs for sequence headers, without any
// decoder state, and returns the last one found. It is intended for probing
// stream properties before committing to decode.
func ParseSequenceHeader(data []byte) (*SequenceHeader, error) {
	var found *SequenceHeader
	for off := 0; off < len(data); {
		br := bits.NewBitReader(data[off:])
		oh := parseOBUHeader(br)
		if oh.hasLength {
			l := int(br.ReadULEB128())
			if br.Err() != nil {
				return nil, errors.Wrap(ErrInvalidData, "obu length field")
			}
			if !br.Limit(l) {
				return nil, errors.Wrap(ErrInvalidData, "obu length exceeds data")
			}
		}
		if oh.typ == OBUSequenceHeader {
			h, err := NewSequenceHeader(br, false)
			if err != nil {
				return nil, err
			}
			found = h
		}
		if br.Err() != nil {
			return nil, errors.Wrap(ErrInvalidData, "obu overrun")
		}
		off += br.Size()
	}
	if found == nil {
		return nil, ErrNoSequenceHeader
	}
	return found, nil
}
