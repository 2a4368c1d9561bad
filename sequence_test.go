/*
DESCRIPTION
  sequence_test.go provides testing for parsing functionality found in
  sequence.go.

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)
*/

package av1dec

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ausocean/av1dec/bits"
)

// minSeqHdrBin is a minimal profile 0 sequence header: one operating point,
// 128x128, 7 bit order hints, adaptive screen content tools, 8 bit 4:2:0.
const minSeqHdrBin = "000" + // u(3) seq_profile = 0
	"0" + // u(1) still_picture = 0
	"0" + // u(1) reduced_still_picture_header = 0
	"0" + // u(1) timing_info_present_flag = 0
	"0" + // u(1) initial_display_delay_present_flag = 0
	"00000" + // u(5) operating_points_cnt_minus_1 = 0
	"000000000000" + // u(12) operating_point_idc[0] = 0
	"000" + // u(3) seq_level_idx[0] major = 2
	"00" + // u(2) seq_level_idx[0] minor = 0
	"0111" + // u(4) frame_width_bits_minus_1 = 7
	"0111" + // u(4) frame_height_bits_minus_1 = 7
	"01111111" + // u(8) max_frame_width_minus_1 = 127
	"01111111" + // u(8) max_frame_height_minus_1 = 127
	"0" + // u(1) frame_id_numbers_present_flag = 0
	"0" + // u(1) use_128x128_superblock = 0
	"0" + // u(1) enable_filter_intra = 0
	"0" + // u(1) enable_intra_edge_filter = 0
	"0" + // u(1) enable_interintra_compound = 0
	"0" + // u(1) enable_masked_compound = 0
	"0" + // u(1) enable_warped_motion = 0
	"0" + // u(1) enable_dual_filter = 0
	"1" + // u(1) enable_order_hint = 1
	"0" + // u(1) enable_jnt_comp = 0
	"0" + // u(1) enable_ref_frame_mvs = 0
	"1" + // u(1) seq_choose_screen_content_tools = 1
	"1" + // u(1) seq_choose_integer_mv = 1
	"110" + // u(3) order_hint_bits_minus_1 = 6
	"0" + // u(1) enable_superres = 0
	"0" + // u(1) enable_cdef = 0
	"0" + // u(1) enable_restoration = 0
	"0" + // u(1) high_bitdepth = 0
	"0" + // u(1) mono_chrome = 0
	"0" + // u(1) color_description_present_flag = 0
	"0" + // u(1) color_range = 0
	"00" + // u(2) chroma_sample_position = 0
	"0" + // u(1) separate_uv_delta_q = 0
	"0" + // u(1) film_grain_params_present = 0
	"1" // trailing bits

// minSeqHdr is the parse of minSeqHdrBin.
func minSeqHdr() *SequenceHeader {
	h := &SequenceHeader{
		NumOperatingPoints:   1,
		WidthBits:            8,
		HeightBits:           8,
		MaxWidth:             128,
		MaxHeight:            128,
		OrderHint:            true,
		OrderHintBits:        7,
		ScreenContentTools:   FeatureAdaptive,
		ForceIntegerMV:       FeatureAdaptive,
		Primaries:            ColorPrimariesUnknown,
		Transfer:             TransferUnknown,
		Matrix:               MatrixUnknown,
		Layout:               PixelLayoutI420,
		SSHor:                1,
		SSVer:                1,
		ChromaSamplePosition: ChromaPositionUnknown,
	}
	h.OperatingPoints[0] = OperatingPoint{MajorLevel: 2, InitialDisplayDelay: 10}
	return h
}

func TestNewSequenceHeader(t *testing.T) {
	tests := []struct {
		in   string
		want *SequenceHeader
	}{
		{
			in:   minSeqHdrBin,
			want: minSeqHdr(),
		},
		{
			in: "000" + // u(3) seq_profile = 0
				"1" + // u(1) still_picture = 1
				"1" + // u(1) reduced_still_picture_header = 1
				"010" + // u(3) seq_level_idx major = 2
				"01" + // u(2) seq_level_idx minor = 1
				"0011" + // u(4) frame_width_bits_minus_1 = 3
				"0011" + // u(4) frame_height_bits_minus_1 = 3
				"0111" + // u(4) max_frame_width_minus_1 = 7
				"0111" + // u(4) max_frame_height_minus_1 = 7
				"0" + // u(1) use_128x128_superblock = 0
				"0" + // u(1) enable_filter_intra = 0
				"0" + // u(1) enable_intra_edge_filter = 0
				"0" + // u(1) enable_superres = 0
				"0" + // u(1) enable_cdef = 0
				"1" + // u(1) enable_restoration = 1
				"0" + // u(1) high_bitdepth = 0
				"0" + // u(1) mono_chrome = 0
				"0" + // u(1) color_description_present_flag = 0
				"1" + // u(1) color_range = 1
				"01" + // u(2) chroma_sample_position = 1
				"0" + // u(1) separate_uv_delta_q = 0
				"1" + // u(1) film_grain_params_present = 1
				"1", // trailing bits
			want: func() *SequenceHeader {
				h := &SequenceHeader{
					StillPicture:              true,
					ReducedStillPictureHeader: true,
					NumOperatingPoints:        1,
					WidthBits:                 4,
					HeightBits:                4,
					MaxWidth:                  8,
					MaxHeight:                 8,
					ScreenContentTools:        FeatureAdaptive,
					ForceIntegerMV:            FeatureAdaptive,
					Restoration:               true,
					Primaries:                 ColorPrimariesUnknown,
					Transfer:                  TransferUnknown,
					Matrix:                    MatrixUnknown,
					ColorRange:                true,
					Layout:                    PixelLayoutI420,
					SSHor:                     1,
					SSVer:                     1,
					ChromaSamplePosition:      ChromaPositionVertical,
					FilmGrainPresent:          true,
				}
				h.OperatingPoints[0] = OperatingPoint{MajorLevel: 2, MinorLevel: 1, InitialDisplayDelay: 10}
				return h
			}(),
		},
	}

	for i, test := range tests {
		bin, err := binToSlice(test.in)
		if err != nil {
			t.Fatalf("error: %v converting binary string to slice for test: %d", err, i)
		}

		h, err := NewSequenceHeader(bits.NewBitReader(bin), false)
		if err != nil {
			t.Fatalf("did not expect error: %v for test: %d", err, i)
		}

		if diff := cmp.Diff(test.want, h); diff != "" {
			t.Errorf("unexpected result for test: %d (-want +got):\n%s", i, diff)
		}
	}
}

func TestNewSequenceHeaderErrors(t *testing.T) {
	tests := []struct {
		in     string
		strict bool
	}{
		// Unsupported profile 3.
		{in: "0110 0000"},

		// Reduced still picture header without still picture.
		{in: "0000 1000"},

		// Zero timing info denominators, rejected in strict mode.
		{
			in:     "0000 01" + "00000000 00000000 00000000 00000000",
			strict: true,
		},

		// sRGB color description in profile 0, which cannot carry 4:4:4.
		{
			in: "000" + "0" + "0" + "0" + "0" + "00000" +
				"000000000000" + "000" + "00" +
				"0111" + "0111" + "01111111" + "01111111" +
				"0" + "0" + "0" + "0" +
				"0" + "0" + "0" + "0" + "1" + "0" + "0" + "1" + "1" + "110" +
				"0" + "0" + "0" +
				"0" + // high_bitdepth
				"0" + // mono_chrome
				"1" + // color_description_present_flag
				"00000001" + // color_primaries = BT.709
				"00001101" + // transfer_characteristics = sRGB
				"00000000", // matrix_coefficients = identity
		},
	}

	for i, test := range tests {
		bin, err := binToSlice(test.in)
		if err != nil {
			t.Fatalf("error: %v converting binary string to slice for test: %d", err, i)
		}

		if _, err := NewSequenceHeader(bits.NewBitReader(bin), test.strict); err == nil {
			t.Errorf("expected error for test: %d", i)
		}
	}
}

func TestNewSequenceHeaderSRGB(t *testing.T) {
	// Profile 1 carries 4:4:4, so an sRGB color description is legal and
	// forces the 4:4:4 full range layout.
	in := "001" + // u(3) seq_profile = 1
		"0" + "0" + "0" + "0" + "00000" +
		"000000000000" + "000" + "00" +
		"0111" + "0111" + "01111111" + "01111111" +
		"0" + // frame_id_numbers_present_flag
		"0" + "0" + "0" +
		"0" + "0" + "0" + "0" + "1" + "0" + "0" + "1" + "1" + "110" +
		"0" + "0" + "0" +
		"0" + // high_bitdepth
		"1" + // color_description_present_flag
		"00000001" + // color_primaries = BT.709
		"00001101" + // transfer_characteristics = sRGB
		"00000000" + // matrix_coefficients = identity
		"0" + // separate_uv_delta_q
		"0" + // film_grain_params_present
		"1" // trailing bits

	bin, err := binToSlice(in)
	if err != nil {
		t.Fatalf("error: %v converting binary string to slice", err)
	}

	h, err := NewSequenceHeader(bits.NewBitReader(bin), true)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if h.Layout != PixelLayoutI444 {
		t.Errorf("unexpected layout: got %v, want 4:4:4", h.Layout)
	}
	if !h.ColorRange {
		t.Error("expected full color range")
	}
	if h.Primaries != ColorPrimariesBT709 || h.Transfer != TransferSRGB || h.Matrix != MatrixIdentity {
		t.Errorf("unexpected color description: %v/%v/%v", h.Primaries, h.Transfer, h.Matrix)
	}
}

func TestParseSequenceHeader(t *testing.T) {
	payload, err := binToSlice(minSeqHdrBin)
	if err != nil {
		t.Fatalf("error: %v converting binary string to slice", err)
	}

	var stream []byte
	stream = append(stream, 0x12, 0x00) // temporal delimiter
	// Sequence header OBU with the forbidden bit set; the stateless probe
	// does not reject it.
	stream = append(stream, 0x8a, byte(len(payload)))
	stream = append(stream, payload...)

	h, err := ParseSequenceHeader(stream)
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if diff := cmp.Diff(minSeqHdr(), h); diff != "" {
		t.Errorf("unexpected result (-want +got):\n%s", diff)
	}

	// A stream with no sequence header reports ErrNoSequenceHeader.
	if _, err := ParseSequenceHeader([]byte{0x12, 0x00}); err != ErrNoSequenceHeader {
		t.Errorf("expected ErrNoSequenceHeader, got: %v", err)
	}
}
