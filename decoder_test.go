/*
DESCRIPTION
  decoder_test.go provides testing for the OBU dispatch and output
  functionality found in decoder.go.

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)
*/

package av1dec

import (
	"testing"

	"github.com/pkg/errors"
)

// captureSink collects the frames the decoder submits.
type captureSink struct {
	frames []*Frame
}

func (s *captureSink) SubmitFrame(f *Frame) error {
	s.frames = append(s.frames, f)
	return nil
}

// testOBU wraps payload in an OBU of the given type with a one byte length
// field. Payloads must be shorter than 128 bytes.
func testOBU(t *testing.T, typ OBUType, payload []byte) []byte {
	if len(payload) > 127 {
		t.Fatalf("testOBU payload too long: %d", len(payload))
	}
	b := []byte{byte(typ)<<3 | 0x02, byte(len(payload))}
	return append(b, payload...)
}

func testOBUBin(t *testing.T, typ OBUType, bin string) []byte {
	payload, err := binToSlice(bin)
	if err != nil {
		t.Fatalf("error: %v converting binary string to slice", err)
	}
	return testOBU(t, typ, payload)
}

// keyFrameStream is a temporal unit carrying a complete shown key frame:
// temporal delimiter, sequence header, and a frame OBU whose tile group
// payload is tile.
func keyFrameStream(t *testing.T, tile []byte) []byte {
	var stream []byte
	stream = append(stream, testOBU(t, OBUTemporalDelimiter, nil)...)
	stream = append(stream, testOBUBin(t, OBUSequenceHeader, minSeqHdrBin)...)

	hdr, err := binToSlice(keyFrameHdrBin)
	if err != nil {
		t.Fatalf("error: %v converting binary string to slice", err)
	}
	stream = append(stream, testOBU(t, OBUFrame, append(hdr, tile...))...)
	return stream
}

func TestDecodeKeyFrame(t *testing.T) {
	sink := &captureSink{}
	d := newTestDecoder(t, WithSink(sink))

	tile := []byte{0xde, 0xad, 0xbe, 0xef}
	in := &Data{Data: keyFrameStream(t, tile), Props: DataProps{Timestamp: 42}}
	if err := d.Parse(in); err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	if len(sink.frames) != 1 {
		t.Fatalf("unexpected number of frames: got %d, want 1", len(sink.frames))
	}
	f := sink.frames[0]
	if f.FrameHeader.FrameType != FrameTypeKey {
		t.Errorf("unexpected frame type: got %v, want key", f.FrameHeader.FrameType)
	}
	if len(f.Tiles) != 1 || f.Tiles[0].Start != 0 || f.Tiles[0].End != 0 {
		t.Fatalf("unexpected tile groups: %+v", f.Tiles)
	}
	if got := f.Tiles[0].Data; string(got) != string(tile) {
		t.Errorf("unexpected tile payload: got % x, want % x", got, tile)
	}

	pic, err := d.TakePicture()
	if err != nil {
		t.Fatalf("did not expect error: %v from TakePicture", err)
	}
	if pic == nil {
		t.Fatal("expected an output picture")
	}
	if !pic.Visible || !pic.Decoded {
		t.Errorf("unexpected picture state: visible %v decoded %v", pic.Visible, pic.Decoded)
	}
	if pic.Props.Timestamp != 42 {
		t.Errorf("unexpected picture timestamp: got %d, want 42", pic.Props.Timestamp)
	}
	wantFlags := PictureFlagNewSequence | PictureFlagNewTemporalUnit
	if pic.Flags != wantFlags {
		t.Errorf("unexpected picture flags: got %b, want %b", pic.Flags, wantFlags)
	}

	if ev := d.Events(); ev != EventFlagNewSequence {
		t.Errorf("unexpected events: got %b, want %b", ev, EventFlagNewSequence)
	}
	if ev := d.Events(); ev != 0 {
		t.Errorf("expected events to be consumed, got %b", ev)
	}

	if pic, err := d.TakePicture(); err != nil || pic != nil {
		t.Errorf("expected no further pictures, got %v, %v", pic, err)
	}

	// A shown key frame refreshes every reference slot.
	for i := range d.refs {
		if d.refs[i].pic == nil {
			t.Errorf("expected reference slot %d to be refreshed", i)
		}
	}
}

func TestShowExistingFrame(t *testing.T) {
	d := newTestDecoder(t)

	if err := d.Parse(&Data{Data: keyFrameStream(t, []byte{0x01})}); err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if _, err := d.TakePicture(); err != nil {
		t.Fatalf("did not expect error: %v from TakePicture", err)
	}

	// Frame header OBU with show_existing_frame selecting slot 0.
	seo := testOBUBin(t, OBUFrameHeader, "1"+ // u(1) show_existing_frame = 1
		"000"+ // u(3) frame_to_show_map_idx = 0
		"1") // trailing bits
	if err := d.Parse(&Data{Data: seo, Props: DataProps{Timestamp: 43}}); err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	pic, err := d.TakePicture()
	if err != nil {
		t.Fatalf("did not expect error: %v from TakePicture", err)
	}
	if pic == nil {
		t.Fatal("expected an output picture")
	}
	if pic.FrameHeader.FrameType != FrameTypeKey || !pic.Visible {
		t.Errorf("unexpected picture: type %v visible %v", pic.FrameHeader.FrameType, pic.Visible)
	}
	if pic.Props.Timestamp != 43 {
		t.Errorf("unexpected picture timestamp: got %d, want 43", pic.Props.Timestamp)
	}
}

func TestStandaloneFrameHeaderAndTileGroup(t *testing.T) {
	sink := &captureSink{}
	d := newTestDecoder(t, WithSink(sink))

	var stream []byte
	stream = append(stream, testOBUBin(t, OBUSequenceHeader, minSeqHdrBin)...)
	stream = append(stream, testOBUBin(t, OBUFrameHeader, keyFrameHdrBin+"1")...)
	stream = append(stream, testOBU(t, OBUTileGroup, []byte{0x01, 0x02})...)

	if err := d.Parse(&Data{Data: stream}); err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if len(sink.frames) != 1 {
		t.Fatalf("unexpected number of frames: got %d, want 1", len(sink.frames))
	}
	if got := sink.frames[0].Tiles[0].Data; len(got) != 2 {
		t.Errorf("unexpected tile payload: % x", got)
	}
}

func TestTileGroupWithoutFrameHeader(t *testing.T) {
	d := newTestDecoder(t)

	var stream []byte
	stream = append(stream, testOBUBin(t, OBUSequenceHeader, minSeqHdrBin)...)
	stream = append(stream, testOBU(t, OBUTileGroup, []byte{0x00})...)

	err := d.Parse(&Data{Data: stream})
	if errors.Cause(err) != ErrNoFrameHeader {
		t.Errorf("expected ErrNoFrameHeader, got: %v", err)
	}
}

func TestFrameWithoutSequenceHeader(t *testing.T) {
	d := newTestDecoder(t)

	stream := testOBUBin(t, OBUFrameHeader, keyFrameHdrBin+"1")
	err := d.Parse(&Data{Data: stream})
	if errors.Cause(err) != ErrNoSequenceHeader {
		t.Errorf("expected ErrNoSequenceHeader, got: %v", err)
	}
}

func TestFrameSizeLimit(t *testing.T) {
	d := newTestDecoder(t, FrameSizeLimit(10000))

	// 128x128 exceeds a 10000 pixel budget.
	err := d.Parse(&Data{Data: keyFrameStream(t, []byte{0x01})})
	if errors.Cause(err) != ErrFrameSizeLimit {
		t.Errorf("expected ErrFrameSizeLimit, got: %v", err)
	}
}

func TestDecodeFramesSkipsIntra(t *testing.T) {
	sink := &captureSink{}
	d := newTestDecoder(t, WithSink(sink), DecodeFrames(DecodeFrameTypeKey))

	// A shown intra (non key) frame refreshing slot 2 only.
	const intraFrameHdrBin = "0" + // u(1) show_existing_frame = 0
		"10" + // u(2) frame_type = INTRA
		"1" + // u(1) show_frame = 1
		"0" + // u(1) error_resilient_mode = 0
		"0" + // u(1) disable_cdf_update = 0
		"0" + // u(1) allow_screen_content_tools = 0
		"0" + // u(1) frame_size_override_flag = 0
		"0000000" + // u(7) order_hint = 0
		"00000100" + // u(8) refresh_frame_flags = 0x04
		"0" + // u(1) render_and_frame_size_different = 0
		"0" + // u(1) disable_frame_end_update_cdf = 0
		"1" + // u(1) uniform_tile_spacing_flag = 1
		"0" + // u(1) increment_tile_cols = 0
		"0" + // u(1) increment_tile_rows = 0
		"01100100" + // u(8) base_q_idx = 100
		"0" + // u(1) delta_coded y dc = 0
		"0" + // u(1) delta_coded u dc = 0
		"0" + // u(1) delta_coded u ac = 0
		"0" + // u(1) using_qmatrix = 0
		"0" + // u(1) segmentation_enabled = 0
		"0" + // u(1) delta_q_present = 0
		"000000" + // u(6) loop_filter_level[0] = 0
		"000000" + // u(6) loop_filter_level[1] = 0
		"000" + // u(3) loop_filter_sharpness = 0
		"0" + // u(1) loop_filter_delta_enabled = 0
		"0" + // u(1) tx_mode_select = 0
		"0" // u(1) reduced_tx_set = 0

	hdr, err := binToSlice(intraFrameHdrBin)
	if err != nil {
		t.Fatalf("error: %v converting binary string to slice", err)
	}

	var stream []byte
	stream = append(stream, testOBUBin(t, OBUSequenceHeader, minSeqHdrBin)...)
	stream = append(stream, testOBU(t, OBUFrame, append(hdr, 0x01))...)

	if err := d.Parse(&Data{Data: stream}); err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	if len(sink.frames) != 0 {
		t.Fatalf("did not expect any submitted frames, got %d", len(sink.frames))
	}
	if pic, err := d.TakePicture(); err != nil || pic != nil {
		t.Errorf("expected no output picture, got %v, %v", pic, err)
	}

	// The skipped frame still refreshes its slot so later frames can
	// reference it, but is marked undecoded.
	if d.refs[2].pic == nil {
		t.Fatal("expected reference slot 2 to be refreshed")
	}
	if d.refs[2].pic.Decoded {
		t.Error("did not expect the skipped frame to be marked decoded")
	}
}

func TestRedundantFrameHeader(t *testing.T) {
	sink := &captureSink{}
	d := newTestDecoder(t, WithSink(sink))

	var stream []byte
	stream = append(stream, testOBUBin(t, OBUSequenceHeader, minSeqHdrBin)...)
	stream = append(stream, testOBUBin(t, OBUFrameHeader, keyFrameHdrBin+"1")...)
	// The redundant copy is ignored while a frame header is active.
	stream = append(stream, testOBUBin(t, OBURedundantFrameHeader, keyFrameHdrBin+"1")...)
	stream = append(stream, testOBU(t, OBUTileGroup, []byte{0x01})...)

	if err := d.Parse(&Data{Data: stream}); err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if len(sink.frames) != 1 {
		t.Fatalf("unexpected number of frames: got %d, want 1", len(sink.frames))
	}
}
