/*
DESCRIPTION
  frame.go provides parsing of AV1 frame header OBUs, as per section 5.9 of
  the AV1 specification, including the derivation of values carried over
  from reference frames.

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

// PrimaryRefNone indicates a frame with no primary reference; all context
// carried over from references resets to defaults.
const PrimaryRefNone = 7

// FrameType is the coding type of a frame.
type FrameType int

const (
	FrameTypeKey    FrameType = 0
	FrameTypeInter  FrameType = 1
	FrameTypeIntra  FrameType = 2
	FrameTypeSwitch FrameType = 3
)

// keyOrIntra reports whether t codes without inter prediction.
func (t FrameType) keyOrIntra() bool { return t&1 == 0 }

func (t FrameType) interOrSwitch() bool { return t&1 != 0 }

// FilterMode is the interpolation filter signalled for motion compensation.
type FilterMode int

const (
	Filter8TapRegular FilterMode = iota
	Filter8TapSmooth
	Filter8TapSharp
	FilterBilinear
	FilterSwitchable
)

// TxfmMode selects how transform sizes are coded within a frame.
type TxfmMode int

const (
	TxfmOnly4x4 TxfmMode = iota
	TxfmLargest
	TxfmSwitchable
)

// RestorationType selects the loop restoration filter for one plane.
type RestorationType int

const (
	RestorationNone RestorationType = iota
	RestorationSwitchable
	RestorationWiener
	RestorationSGRProj
)

// SuperResInfo carries the horizontal super resolution scaling state of a
// frame.
type SuperResInfo struct {
	// use_superres.
	Enabled bool

	// coded_denom, plus 9 when enabled, else 8 for unscaled.
	WidthScaleDenominator int
}

// TileInfo holds the tile layout of a frame in superblock units, including
// the derived column and row starts.
type TileInfo struct {
	// uniform_tile_spacing_flag.
	Uniform bool

	MinLog2Cols, MaxLog2Cols, Log2Cols int
	MinLog2Rows, MaxLog2Rows, Log2Rows int

	Cols, Rows int

	// Start of each tile column and row in superblocks. Entry Cols (Rows)
	// holds the frame width (height) in superblocks.
	ColStartSB [MaxTileCols + 1]int
	RowStartSB [MaxTileRows + 1]int

	// context_update_tile_id.
	Update int

	// tile_size_bytes_minus_1, plus 1.
	NumBytes int
}

// QuantInfo holds the frame-level quantiser parameters.
type QuantInfo struct {
	// base_q_idx.
	YAC int

	// DC and AC quantiser deltas per plane.
	YDCDelta, UDCDelta, UACDelta, VDCDelta, VACDelta int

	// using_qmatrix and the per-plane matrix indices.
	QM            bool
	QMY, QMU, QMV int
}

// SegmentationData holds the feature values of one segment.
type SegmentationData struct {
	DeltaQ                    int
	DeltaLFYVert, DeltaLFYHor int
	DeltaLFU, DeltaLFV        int
	Ref                       int // -1 when the reference feature is disabled
	Skip, GlobalMV            bool
}

// SegmentationDataSet is the full per-segment feature table of a frame.
type SegmentationDataSet struct {
	D [MaxSegments]SegmentationData

	// Whether any segment enables a feature evaluated before skip.
	Preskip bool

	// Highest segment id with any active feature; -1 when none.
	LastActiveSegID int
}

// SegmentationInfo holds frame-level segmentation state, including values
// derived from the quantiser such as per-segment losslessness.
type SegmentationInfo struct {
	Enabled    bool
	UpdateMap  bool
	Temporal   bool
	UpdateData bool
	Data       SegmentationDataSet

	Lossless [MaxSegments]bool
	QIdx     [MaxSegments]int
}

// DeltaQInfo and DeltaLFInfo carry the superblock-level quantiser and loop
// filter delta signalling of a frame.
type DeltaQInfo struct {
	Present bool
	ResLog2 int
}

type DeltaLFInfo struct {
	Present bool
	ResLog2 int
	Multi   bool
}

// LoopFilterModeRefDeltas are the per-mode and per-reference loop filter
// level adjustments.
type LoopFilterModeRefDeltas struct {
	ModeDelta [2]int
	RefDelta  [TotalRefsPerFrame]int
}

var defaultModeRefDeltas = LoopFilterModeRefDeltas{
	ModeDelta: [2]int{0, 0},
	RefDelta:  [TotalRefsPerFrame]int{1, 0, 0, 0, -1, 0, -1, -1},
}

// LoopFilterInfo holds the frame-level deblocking filter parameters.
type LoopFilterInfo struct {
	LevelY              [2]int
	LevelU, LevelV      int
	Sharpness           int
	ModeRefDeltaEnabled bool
	ModeRefDeltaUpdate  bool
	ModeRefDeltas       LoopFilterModeRefDeltas
}

// CDEFInfo holds the constrained directional enhancement filter parameters.
type CDEFInfo struct {
	// cdef_damping_minus_3, plus 3.
	Damping int

	// cdef_bits.
	NBits int

	YStrength  [MaxCDEFStrengths]int
	UVStrength [MaxCDEFStrengths]int
}

// RestorationInfo holds the loop restoration configuration. Type is indexed
// by plane group (0 luma, 1 and 2 chroma); UnitSize holds the log2 unit
// sizes for luma and chroma.
type RestorationInfo struct {
	Type     [3]RestorationType
	UnitSize [2]int
}

// FrameHeaderOperatingPoint carries the per-operating-point decoder model
// timing of one frame.
type FrameHeaderOperatingPoint struct {
	// buffer_removal_time.
	BufferRemovalTime uint32
}

// FrameHeader holds the parsed fields of a frame header OBU together with
// all values derived during parsing, such as the tile layout and the
// losslessness flags.
type FrameHeader struct {
	// show_existing_frame, and the slot it displays.
	ShowExistingFrame bool
	ExistingFrameIdx  int

	// frame_type.
	FrameType FrameType

	// Frame dimensions. CodedWidth is the width after super resolution
	// scaling; UpscaledWidth the nominal width.
	CodedWidth    int
	UpscaledWidth int
	Height        int

	// render_width and render_height, plus 1 each.
	RenderWidth, RenderHeight int
	HaveRenderSize            bool

	SuperRes SuperResInfo

	// order_hint.
	FrameOffset int

	// current_frame_id.
	FrameID int

	// frame_presentation_time.
	FramePresentationDelay int

	TemporalID, SpatialID int

	ShowFrame     bool
	ShowableFrame bool

	ErrorResilientMode      bool
	DisableCDFUpdate        bool
	AllowScreenContentTools bool
	ForceIntegerMV          bool
	FrameSizeOverride       bool

	// primary_ref_frame; PrimaryRefNone when absent.
	PrimaryRefFrame int

	BufferRemovalTimePresent bool
	OperatingPoints          [MaxOperatingPoints]FrameHeaderOperatingPoint

	// refresh_frame_flags as a bitmask over the eight reference slots.
	RefreshFrameFlags int

	AllowIntraBC bool

	// frame_refs_short_signaling and the reference slot of each of the
	// seven forward references.
	FrameRefShortSignaling bool
	RefIdx                 [RefsPerFrame]int

	// allow_high_precision_mv.
	HighPrecisionMV bool

	// interpolation_filter.
	SubpelFilterMode FilterMode

	// is_motion_mode_switchable.
	SwitchableMotionMode bool

	// use_ref_frame_mvs.
	UseRefFrameMVs bool

	// Inverse of disable_frame_end_update_cdf.
	RefreshContext bool

	Tiling       TileInfo
	Quant        QuantInfo
	Segmentation SegmentationInfo

	Delta struct {
		Q  DeltaQInfo
		LF DeltaLFInfo
	}

	// Whether every segment of the frame is coded losslessly.
	AllLossless bool

	LoopFilter  LoopFilterInfo
	CDEF        CDEFInfo
	Restoration RestorationInfo

	TxfmMode TxfmMode

	// reference_select.
	SwitchableCompRefs bool

	SkipModeAllowed bool
	SkipModeEnabled bool
	SkipModeRefs    [2]int

	// allow_warped_motion.
	WarpMotion bool

	// reduced_tx_set.
	ReducedTxtpSet bool

	// Global motion parameters per forward reference.
	GMV [RefsPerFrame]WarpedMotionParams

	FilmGrain struct {
		Data    FilmGrainData
		Present bool
		Update  bool
	}
}

// refHdr returns the frame header occupying reference slot i, or nil if the
// slot is empty.
func (d *Decoder) refHdr(i int) *FrameHeader {
	if d.refs[i].pic == nil {
		return nil
	}
	return d.refs[i].pic.FrameHeader
}

// readFrameSize parses frame_size() and render_size(), or inherits both from
// a signalled reference when useRef is set, and derives the coded width from
// the super resolution denominator.
func (d *Decoder) readFrameSize(br *bits.BitReader, hdr *FrameHeader, useRef bool) error {
	seq := d.seqHdr

	if useRef {
		for i := 0; i < RefsPerFrame; i++ {
			if br.ReadBit() == 0 {
				continue
			}
			ref := d.refHdr(hdr.RefIdx[i])
			if ref == nil {
				return errors.Wrap(ErrInvalidData, "frame size from empty reference slot")
			}
			hdr.UpscaledWidth = ref.UpscaledWidth
			hdr.Height = ref.Height
			hdr.RenderWidth = ref.RenderWidth
			hdr.RenderHeight = ref.RenderHeight
			hdr.SuperRes.Enabled = seq.SuperRes && br.ReadBit() != 0
			if hdr.SuperRes.Enabled {
				den := 9 + int(br.ReadBits(3))
				hdr.SuperRes.WidthScaleDenominator = den
				hdr.CodedWidth = maxi((hdr.UpscaledWidth*8+(den>>1))/den,
					mini(16, hdr.UpscaledWidth))
			} else {
				hdr.SuperRes.WidthScaleDenominator = 8
				hdr.CodedWidth = hdr.UpscaledWidth
			}
			return nil
		}
	}

	if hdr.FrameSizeOverride {
		hdr.UpscaledWidth = int(br.ReadBits(seq.WidthBits)) + 1
		hdr.Height = int(br.ReadBits(seq.HeightBits)) + 1
	} else {
		hdr.UpscaledWidth = seq.MaxWidth
		hdr.Height = seq.MaxHeight
	}
	hdr.SuperRes.Enabled = seq.SuperRes && br.ReadBit() != 0
	if hdr.SuperRes.Enabled {
		den := 9 + int(br.ReadBits(3))
		hdr.SuperRes.WidthScaleDenominator = den
		hdr.CodedWidth = maxi((hdr.UpscaledWidth*8+(den>>1))/den,
			mini(16, hdr.UpscaledWidth))
	} else {
		hdr.SuperRes.WidthScaleDenominator = 8
		hdr.CodedWidth = hdr.UpscaledWidth
	}
	hdr.HaveRenderSize = br.ReadBit() != 0
	if hdr.HaveRenderSize {
		hdr.RenderWidth = int(br.ReadBits(16)) + 1
		hdr.RenderHeight = int(br.ReadBits(16)) + 1
	} else {
		hdr.RenderWidth = hdr.UpscaledWidth
		hdr.RenderHeight = hdr.Height
	}
	return nil
}

// parseFrameHeader parses an uncompressed frame header from br, using the
// decoder's active sequence header and reference slots for inherited state.
// On show_existing_frame the remaining header is absent and parsing stops
// after the slot index.
func (d *Decoder) parseFrameHeader(br *bits.BitReader, temporalID, spatialID int) (*FrameHeader, error) {
	seq := d.seqHdr
	hdr := &FrameHeader{TemporalID: temporalID, SpatialID: spatialID}

	if !seq.ReducedStillPictureHeader {
		hdr.ShowExistingFrame = br.ReadBit() != 0
	}
	if hdr.ShowExistingFrame {
		hdr.ExistingFrameIdx = int(br.ReadBits(3))
		if seq.DecoderModelInfoPresent && !seq.EqualPictureInterval {
			hdr.FramePresentationDelay = int(br.ReadBits(seq.FramePresentationDelayLength))
		}
		if seq.FrameIDNumbersPresent {
			hdr.FrameID = int(br.ReadBits(seq.FrameIDBits))
			ref := d.refHdr(hdr.ExistingFrameIdx)
			if ref == nil || ref.FrameID != hdr.FrameID {
				return nil, errors.Wrap(ErrInvalidData, "frame header: shown frame id mismatch")
			}
		}
		return hdr, nil
	}

	if seq.ReducedStillPictureHeader {
		hdr.FrameType = FrameTypeKey
		hdr.ShowFrame = true
	} else {
		hdr.FrameType = FrameType(br.ReadBits(2))
		hdr.ShowFrame = br.ReadBit() != 0
	}
	if hdr.ShowFrame {
		if seq.DecoderModelInfoPresent && !seq.EqualPictureInterval {
			hdr.FramePresentationDelay = int(br.ReadBits(seq.FramePresentationDelayLength))
		}
		hdr.ShowableFrame = hdr.FrameType != FrameTypeKey
	} else {
		hdr.ShowableFrame = br.ReadBit() != 0
	}
	hdr.ErrorResilientMode = (hdr.FrameType == FrameTypeKey && hdr.ShowFrame) ||
		hdr.FrameType == FrameTypeSwitch ||
		seq.ReducedStillPictureHeader || br.ReadBit() != 0

	hdr.DisableCDFUpdate = br.ReadBit() != 0
	if seq.ScreenContentTools == FeatureAdaptive {
		hdr.AllowScreenContentTools = br.ReadBit() != 0
	} else {
		hdr.AllowScreenContentTools = seq.ScreenContentTools == FeatureOn
	}
	if hdr.AllowScreenContentTools {
		if seq.ForceIntegerMV == FeatureAdaptive {
			hdr.ForceIntegerMV = br.ReadBit() != 0
		} else {
			hdr.ForceIntegerMV = seq.ForceIntegerMV == FeatureOn
		}
	}
	if hdr.FrameType.keyOrIntra() {
		hdr.ForceIntegerMV = true
	}

	if seq.FrameIDNumbersPresent {
		hdr.FrameID = int(br.ReadBits(seq.FrameIDBits))
	}

	if !seq.ReducedStillPictureHeader {
		if hdr.FrameType == FrameTypeSwitch {
			hdr.FrameSizeOverride = true
		} else {
			hdr.FrameSizeOverride = br.ReadBit() != 0
		}
	}
	if seq.OrderHint {
		hdr.FrameOffset = int(br.ReadBits(seq.OrderHintBits))
	}
	if !hdr.ErrorResilientMode && hdr.FrameType.interOrSwitch() {
		hdr.PrimaryRefFrame = int(br.ReadBits(3))
	} else {
		hdr.PrimaryRefFrame = PrimaryRefNone
	}

	if seq.DecoderModelInfoPresent {
		hdr.BufferRemovalTimePresent = br.ReadBit() != 0
		if hdr.BufferRemovalTimePresent {
			for i := 0; i < seq.NumOperatingPoints; i++ {
				seqOp := &seq.OperatingPoints[i]
				if !seqOp.DecoderModelParamPresent {
					continue
				}
				inTemporal := seqOp.IDC>>hdr.TemporalID&1 != 0
				inSpatial := seqOp.IDC>>(hdr.SpatialID+8)&1 != 0
				if seqOp.IDC == 0 || (inTemporal && inSpatial) {
					hdr.OperatingPoints[i].BufferRemovalTime =
						br.ReadBits(seq.BufferRemovalDelayLength)
				}
			}
		}
	}

	if hdr.FrameType.keyOrIntra() {
		if hdr.FrameType == FrameTypeKey && hdr.ShowFrame {
			hdr.RefreshFrameFlags = 0xff
		} else {
			hdr.RefreshFrameFlags = int(br.ReadBits(8))
		}
		if hdr.RefreshFrameFlags != 0xff && hdr.ErrorResilientMode && seq.OrderHint {
			for i := 0; i < TotalRefsPerFrame; i++ {
				br.ReadBits(seq.OrderHintBits) // ref_order_hint
			}
		}
		if d.strict && hdr.FrameType == FrameTypeIntra && hdr.RefreshFrameFlags == 0xff {
			return nil, errors.Wrap(ErrInvalidData, "frame header: intra frame refreshing all slots")
		}
		if err := d.readFrameSize(br, hdr, false); err != nil {
			return nil, err
		}
		if hdr.AllowScreenContentTools && !hdr.SuperRes.Enabled {
			hdr.AllowIntraBC = br.ReadBit() != 0
		}
	} else {
		if hdr.FrameType == FrameTypeSwitch {
			hdr.RefreshFrameFlags = 0xff
		} else {
			hdr.RefreshFrameFlags = int(br.ReadBits(8))
		}
		if hdr.ErrorResilientMode && seq.OrderHint {
			for i := 0; i < TotalRefsPerFrame; i++ {
				br.ReadBits(seq.OrderHintBits) // ref_order_hint
			}
		}
		if seq.OrderHint {
			hdr.FrameRefShortSignaling = br.ReadBit() != 0
			if hdr.FrameRefShortSignaling {
				if err := d.deriveShortSignalingRefs(br, hdr); err != nil {
					return nil, err
				}
			}
		}
		for i := 0; i < RefsPerFrame; i++ {
			if !hdr.FrameRefShortSignaling {
				hdr.RefIdx[i] = int(br.ReadBits(3))
			}
			if seq.FrameIDNumbersPresent {
				delta := int(br.ReadBits(seq.DeltaFrameIDBits)) + 1
				refID := (hdr.FrameID + 1<<seq.FrameIDBits - delta) & (1<<seq.FrameIDBits - 1)
				ref := d.refHdr(hdr.RefIdx[i])
				if ref == nil || ref.FrameID != refID {
					return nil, errors.Wrap(ErrInvalidData, "frame header: reference frame id mismatch")
				}
			}
		}
		useRef := !hdr.ErrorResilientMode && hdr.FrameSizeOverride
		if err := d.readFrameSize(br, hdr, useRef); err != nil {
			return nil, err
		}
		if !hdr.ForceIntegerMV {
			hdr.HighPrecisionMV = br.ReadBit() != 0
		}
		if br.ReadBit() != 0 {
			hdr.SubpelFilterMode = FilterSwitchable
		} else {
			hdr.SubpelFilterMode = FilterMode(br.ReadBits(2))
		}
		hdr.SwitchableMotionMode = br.ReadBit() != 0
		if !hdr.ErrorResilientMode && seq.RefFrameMVs && seq.OrderHint &&
			hdr.FrameType.interOrSwitch() {
			hdr.UseRefFrameMVs = br.ReadBit() != 0
		}
	}

	if !seq.ReducedStillPictureHeader && !hdr.DisableCDFUpdate {
		hdr.RefreshContext = br.ReadBit() == 0
	}

	if err := d.parseTiling(br, hdr); err != nil {
		return nil, err
	}
	d.parseQuant(br, hdr)
	if err := d.parseSegmentation(br, hdr); err != nil {
		return nil, err
	}

	if hdr.Quant.YAC != 0 {
		hdr.Delta.Q.Present = br.ReadBit() != 0
		if hdr.Delta.Q.Present {
			hdr.Delta.Q.ResLog2 = int(br.ReadBits(2))
			if !hdr.AllowIntraBC {
				hdr.Delta.LF.Present = br.ReadBit() != 0
				if hdr.Delta.LF.Present {
					hdr.Delta.LF.ResLog2 = int(br.ReadBits(2))
					hdr.Delta.LF.Multi = br.ReadBit() != 0
				}
			}
		}
	}

	deriveLossless(hdr)

	if err := d.parseLoopFilter(br, hdr); err != nil {
		return nil, err
	}
	d.parseCDEF(br, hdr)
	d.parseRestoration(br, hdr)

	if !hdr.AllLossless {
		if br.ReadBit() != 0 {
			hdr.TxfmMode = TxfmSwitchable
		} else {
			hdr.TxfmMode = TxfmLargest
		}
	}
	if hdr.FrameType.interOrSwitch() {
		hdr.SwitchableCompRefs = br.ReadBit() != 0
	}
	if err := d.deriveSkipMode(hdr); err != nil {
		return nil, err
	}
	if hdr.SkipModeAllowed {
		hdr.SkipModeEnabled = br.ReadBit() != 0
	}
	if !hdr.ErrorResilientMode && hdr.FrameType.interOrSwitch() && seq.WarpedMotion {
		hdr.WarpMotion = br.ReadBit() != 0
	}
	hdr.ReducedTxtpSet = br.ReadBit() != 0

	if err := d.parseGlobalMotion(br, hdr); err != nil {
		return nil, err
	}
	if err := d.parseFilmGrain(br, hdr); err != nil {
		return nil, err
	}
	return hdr, nil
}

// parseTiling parses tile_info() and derives the tile column and row starts
// for both the uniform and explicit spacing modes.
func (d *Decoder) parseTiling(br *bits.BitReader, hdr *FrameHeader) error {
	seq := d.seqHdr
	t := &hdr.Tiling

	t.Uniform = br.ReadBit() != 0
	sbSzMin1 := 64<<b2i(seq.SB128) - 1
	sbSzLog2 := 6 + b2i(seq.SB128)
	sbw := (hdr.CodedWidth + sbSzMin1) >> sbSzLog2
	sbh := (hdr.Height + sbSzMin1) >> sbSzLog2
	maxTileWidthSB := 4096 >> sbSzLog2
	maxTileAreaSB := 4096 * 2304 >> (2 * sbSzLog2)
	t.MinLog2Cols = tileLog2(maxTileWidthSB, sbw)
	t.MaxLog2Cols = tileLog2(1, mini(sbw, MaxTileCols))
	t.MaxLog2Rows = tileLog2(1, mini(sbh, MaxTileRows))
	minLog2Tiles := maxi(tileLog2(maxTileAreaSB, sbw*sbh), t.MinLog2Cols)

	if t.Uniform {
		for t.Log2Cols = t.MinLog2Cols; t.Log2Cols < t.MaxLog2Cols && br.ReadBit() != 0; t.Log2Cols++ {
		}
		tileW := 1 + (sbw-1)>>t.Log2Cols
		t.Cols = 0
		for sbx := 0; sbx < sbw; sbx += tileW {
			t.ColStartSB[t.Cols] = sbx
			t.Cols++
		}
		t.MinLog2Rows = maxi(minLog2Tiles-t.Log2Cols, 0)

		for t.Log2Rows = t.MinLog2Rows; t.Log2Rows < t.MaxLog2Rows && br.ReadBit() != 0; t.Log2Rows++ {
		}
		tileH := 1 + (sbh-1)>>t.Log2Rows
		t.Rows = 0
		for sby := 0; sby < sbh; sby += tileH {
			t.RowStartSB[t.Rows] = sby
			t.Rows++
		}
	} else {
		t.Cols = 0
		widestTile := 0
		for sbx := 0; sbx < sbw && t.Cols < MaxTileCols; t.Cols++ {
			tileWidthSB := mini(sbw-sbx, maxTileWidthSB)
			tileW := 1
			if tileWidthSB > 1 {
				tileW = 1 + int(br.ReadUniform(uint32(tileWidthSB)))
			}
			t.ColStartSB[t.Cols] = sbx
			sbx += tileW
			widestTile = maxi(widestTile, tileW)
		}
		t.Log2Cols = tileLog2(1, t.Cols)
		maxArea := sbw * sbh
		if minLog2Tiles != 0 {
			maxArea >>= minLog2Tiles + 1
		}
		maxTileHeightSB := maxi(maxArea/widestTile, 1)

		t.Rows = 0
		for sby := 0; sby < sbh && t.Rows < MaxTileRows; t.Rows++ {
			tileHeightSB := mini(sbh-sby, maxTileHeightSB)
			tileH := 1
			if tileHeightSB > 1 {
				tileH = 1 + int(br.ReadUniform(uint32(tileHeightSB)))
			}
			t.RowStartSB[t.Rows] = sby
			sby += tileH
		}
		t.Log2Rows = tileLog2(1, t.Rows)
	}
	t.ColStartSB[t.Cols] = sbw
	t.RowStartSB[t.Rows] = sbh
	if t.Log2Cols != 0 || t.Log2Rows != 0 {
		t.Update = int(br.ReadBits(t.Log2Cols + t.Log2Rows))
		if t.Update >= t.Cols*t.Rows {
			return errors.Wrap(ErrInvalidData, "frame header: context update tile out of range")
		}
		t.NumBytes = int(br.ReadBits(2)) + 1
	}
	return nil
}

// parseQuant parses quantization_params().
func (d *Decoder) parseQuant(br *bits.BitReader, hdr *FrameHeader) {
	seq := d.seqHdr
	q := &hdr.Quant

	q.YAC = int(br.ReadBits(8))
	if br.ReadBit() != 0 {
		q.YDCDelta = int(br.ReadSignedBits(7))
	}
	if !seq.Monochrome {
		// If the sequence header allows separate U and V deltas, check
		// whether this frame actually uses them.
		diffUVDelta := seq.SeparateUVDeltaQ && br.ReadBit() != 0
		if br.ReadBit() != 0 {
			q.UDCDelta = int(br.ReadSignedBits(7))
		}
		if br.ReadBit() != 0 {
			q.UACDelta = int(br.ReadSignedBits(7))
		}
		if diffUVDelta {
			if br.ReadBit() != 0 {
				q.VDCDelta = int(br.ReadSignedBits(7))
			}
			if br.ReadBit() != 0 {
				q.VACDelta = int(br.ReadSignedBits(7))
			}
		} else {
			q.VDCDelta = q.UDCDelta
			q.VACDelta = q.UACDelta
		}
	}
	q.QM = br.ReadBit() != 0
	if q.QM {
		q.QMY = int(br.ReadBits(4))
		q.QMU = int(br.ReadBits(4))
		if seq.SeparateUVDeltaQ {
			q.QMV = int(br.ReadBits(4))
		} else {
			q.QMV = q.QMU
		}
	}
}

// parseSegmentation parses segmentation_params(). When segment data is not
// updated it is inherited from the primary reference frame.
func (d *Decoder) parseSegmentation(br *bits.BitReader, hdr *FrameHeader) error {
	s := &hdr.Segmentation

	s.Enabled = br.ReadBit() != 0
	if !s.Enabled {
		for i := range s.Data.D {
			s.Data.D[i].Ref = -1
		}
		return nil
	}

	if hdr.PrimaryRefFrame == PrimaryRefNone {
		s.UpdateMap = true
		s.UpdateData = true
	} else {
		s.UpdateMap = br.ReadBit() != 0
		if s.UpdateMap {
			s.Temporal = br.ReadBit() != 0
		}
		s.UpdateData = br.ReadBit() != 0
	}

	if !s.UpdateData {
		priRef := hdr.RefIdx[hdr.PrimaryRefFrame]
		ref := d.refHdr(priRef)
		if ref == nil {
			return errors.Wrap(ErrInvalidData, "frame header: segmentation from empty reference slot")
		}
		s.Data = ref.Segmentation.Data
		return nil
	}

	s.Data.LastActiveSegID = -1
	for i := 0; i < MaxSegments; i++ {
		seg := &s.Data.D[i]
		if br.ReadBit() != 0 {
			seg.DeltaQ = int(br.ReadSignedBits(9))
			s.Data.LastActiveSegID = i
		}
		if br.ReadBit() != 0 {
			seg.DeltaLFYVert = int(br.ReadSignedBits(7))
			s.Data.LastActiveSegID = i
		}
		if br.ReadBit() != 0 {
			seg.DeltaLFYHor = int(br.ReadSignedBits(7))
			s.Data.LastActiveSegID = i
		}
		if br.ReadBit() != 0 {
			seg.DeltaLFU = int(br.ReadSignedBits(7))
			s.Data.LastActiveSegID = i
		}
		if br.ReadBit() != 0 {
			seg.DeltaLFV = int(br.ReadSignedBits(7))
			s.Data.LastActiveSegID = i
		}
		if br.ReadBit() != 0 {
			seg.Ref = int(br.ReadBits(3))
			s.Data.LastActiveSegID = i
			s.Data.Preskip = true
		} else {
			seg.Ref = -1
		}
		if seg.Skip = br.ReadBit() != 0; seg.Skip {
			s.Data.LastActiveSegID = i
			s.Data.Preskip = true
		}
		if seg.GlobalMV = br.ReadBit() != 0; seg.GlobalMV {
			s.Data.LastActiveSegID = i
			s.Data.Preskip = true
		}
	}
	return nil
}

// deriveLossless fills the per-segment quantiser indices and losslessness
// flags from the parsed quantiser and segmentation state.
func deriveLossless(hdr *FrameHeader) {
	q := &hdr.Quant
	deltaLossless := q.YDCDelta == 0 && q.UDCDelta == 0 && q.UACDelta == 0 &&
		q.VDCDelta == 0 && q.VACDelta == 0
	hdr.AllLossless = true
	for i := 0; i < MaxSegments; i++ {
		if hdr.Segmentation.Enabled {
			hdr.Segmentation.QIdx[i] = clipU8(q.YAC + hdr.Segmentation.Data.D[i].DeltaQ)
		} else {
			hdr.Segmentation.QIdx[i] = q.YAC
		}
		hdr.Segmentation.Lossless[i] = hdr.Segmentation.QIdx[i] == 0 && deltaLossless
		hdr.AllLossless = hdr.AllLossless && hdr.Segmentation.Lossless[i]
	}
}

// parseLoopFilter parses loop_filter_params(). Mode and reference deltas are
// inherited from the primary reference frame unless updated here.
func (d *Decoder) parseLoopFilter(br *bits.BitReader, hdr *FrameHeader) error {
	seq := d.seqHdr
	lf := &hdr.LoopFilter

	if hdr.AllLossless || hdr.AllowIntraBC {
		lf.ModeRefDeltaEnabled = true
		lf.ModeRefDeltaUpdate = true
		lf.ModeRefDeltas = defaultModeRefDeltas
		return nil
	}

	lf.LevelY[0] = int(br.ReadBits(6))
	lf.LevelY[1] = int(br.ReadBits(6))
	if !seq.Monochrome && (lf.LevelY[0] != 0 || lf.LevelY[1] != 0) {
		lf.LevelU = int(br.ReadBits(6))
		lf.LevelV = int(br.ReadBits(6))
	}
	lf.Sharpness = int(br.ReadBits(3))

	if hdr.PrimaryRefFrame == PrimaryRefNone {
		lf.ModeRefDeltas = defaultModeRefDeltas
	} else {
		ref := d.refHdr(hdr.RefIdx[hdr.PrimaryRefFrame])
		if ref == nil {
			return errors.Wrap(ErrInvalidData, "frame header: loop filter deltas from empty reference slot")
		}
		lf.ModeRefDeltas = ref.LoopFilter.ModeRefDeltas
	}
	lf.ModeRefDeltaEnabled = br.ReadBit() != 0
	if lf.ModeRefDeltaEnabled {
		lf.ModeRefDeltaUpdate = br.ReadBit() != 0
		if lf.ModeRefDeltaUpdate {
			for i := 0; i < TotalRefsPerFrame; i++ {
				if br.ReadBit() != 0 {
					lf.ModeRefDeltas.RefDelta[i] = int(br.ReadSignedBits(7))
				}
			}
			for i := 0; i < 2; i++ {
				if br.ReadBit() != 0 {
					lf.ModeRefDeltas.ModeDelta[i] = int(br.ReadSignedBits(7))
				}
			}
		}
	}
	return nil
}

// parseCDEF parses cdef_params() when the filter applies to this frame.
func (d *Decoder) parseCDEF(br *bits.BitReader, hdr *FrameHeader) {
	seq := d.seqHdr
	if hdr.AllLossless || !seq.CDEF || hdr.AllowIntraBC {
		return
	}
	hdr.CDEF.Damping = int(br.ReadBits(2)) + 3
	hdr.CDEF.NBits = int(br.ReadBits(2))
	for i := 0; i < 1<<hdr.CDEF.NBits; i++ {
		hdr.CDEF.YStrength[i] = int(br.ReadBits(6))
		if !seq.Monochrome {
			hdr.CDEF.UVStrength[i] = int(br.ReadBits(6))
		}
	}
}

// parseRestoration parses lr_params() when loop restoration applies to this
// frame. Unit sizes are stored as log2 of the size in pixels.
func (d *Decoder) parseRestoration(br *bits.BitReader, hdr *FrameHeader) {
	seq := d.seqHdr
	r := &hdr.Restoration
	if (hdr.AllLossless && !hdr.SuperRes.Enabled) || !seq.Restoration || hdr.AllowIntraBC {
		return
	}

	r.Type[0] = RestorationType(br.ReadBits(2))
	if !seq.Monochrome {
		r.Type[1] = RestorationType(br.ReadBits(2))
		r.Type[2] = RestorationType(br.ReadBits(2))
	}

	if r.Type[0] != RestorationNone || r.Type[1] != RestorationNone ||
		r.Type[2] != RestorationNone {
		r.UnitSize[0] = 6 + b2i(seq.SB128)
		if br.ReadBit() != 0 {
			r.UnitSize[0]++
			if !seq.SB128 {
				r.UnitSize[0] += int(br.ReadBit())
			}
		}
		r.UnitSize[1] = r.UnitSize[0]
		if (r.Type[1] != RestorationNone || r.Type[2] != RestorationNone) &&
			seq.SSHor == 1 && seq.SSVer == 1 {
			r.UnitSize[1] -= int(br.ReadBit())
		}
	} else {
		r.UnitSize[0] = 8
	}
}
