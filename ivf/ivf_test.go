/*
DESCRIPTION
  ivf_test.go provides testing for the IVF demuxer found in ivf.go.

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)
*/

package ivf

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/pkg/errors"
)

// testIVF builds an IVF file holding the given frame payloads with
// timestamps 0, 1, 2...
func testIVF(frames ...[]byte) []byte {
	var buf bytes.Buffer
	hdr := make([]byte, fileHeaderSize)
	copy(hdr, magic)
	binary.LittleEndian.PutUint16(hdr[6:], fileHeaderSize)
	copy(hdr[8:], "AV01")
	binary.LittleEndian.PutUint16(hdr[12:], 1920)
	binary.LittleEndian.PutUint16(hdr[14:], 1080)
	binary.LittleEndian.PutUint32(hdr[16:], 30)
	binary.LittleEndian.PutUint32(hdr[20:], 1)
	binary.LittleEndian.PutUint32(hdr[24:], uint32(len(frames)))
	buf.Write(hdr)

	for i, f := range frames {
		var fh [frameHeaderSize]byte
		binary.LittleEndian.PutUint32(fh[:], uint32(len(f)))
		binary.LittleEndian.PutUint64(fh[4:], uint64(i))
		buf.Write(fh[:])
		buf.Write(f)
	}
	return buf.Bytes()
}

func TestReadFrames(t *testing.T) {
	frames := [][]byte{{0x12, 0x00}, {0x0a, 0x01, 0xff}}
	r, err := NewReader(bytes.NewReader(testIVF(frames...)))
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	hdr := r.Header()
	if hdr.FourCC != "AV01" || hdr.Width != 1920 || hdr.Height != 1080 {
		t.Errorf("unexpected file header: %+v", hdr)
	}
	if hdr.TimebaseDen != 30 || hdr.TimebaseNum != 1 {
		t.Errorf("unexpected timebase: %d/%d", hdr.TimebaseNum, hdr.TimebaseDen)
	}
	if hdr.FrameCount != 2 {
		t.Errorf("unexpected frame count: %d", hdr.FrameCount)
	}

	for i, want := range frames {
		d, err := r.ReadFrame()
		if err != nil {
			t.Fatalf("did not expect error: %v for frame: %d", err, i)
		}
		if !bytes.Equal(d.Data, want) {
			t.Errorf("unexpected payload for frame: %d. Got: % x Want: % x", i, d.Data, want)
		}
		if d.Props.Timestamp != int64(i) {
			t.Errorf("unexpected timestamp for frame: %d. Got: %d", i, d.Props.Timestamp)
		}
		if d.Props.Size != len(want) {
			t.Errorf("unexpected size for frame: %d. Got: %d", i, d.Props.Size)
		}
	}

	if _, err := r.ReadFrame(); err != io.EOF {
		t.Errorf("expected io.EOF at end of stream, got: %v", err)
	}
}

func TestNotIVF(t *testing.T) {
	in := make([]byte, fileHeaderSize)
	copy(in, "RIFF")
	if _, err := NewReader(bytes.NewReader(in)); errors.Cause(err) != ErrNotIVF {
		t.Errorf("expected ErrNotIVF, got: %v", err)
	}
}

func TestTruncatedFrame(t *testing.T) {
	full := testIVF([]byte{0x01, 0x02, 0x03, 0x04})
	r, err := NewReader(bytes.NewReader(full[:len(full)-2]))
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if _, err := r.ReadFrame(); errors.Cause(err) != io.ErrUnexpectedEOF {
		t.Errorf("expected io.ErrUnexpectedEOF, got: %v", err)
	}
}
