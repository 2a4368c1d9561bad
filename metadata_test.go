/*
DESCRIPTION
  metadata_test.go provides testing for parsing functionality found in
  metadata.go.

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)
*/

package av1dec

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ausocean/av1dec/bits"
)

func TestParseMetadataContentLight(t *testing.T) {
	d := newTestDecoder(t)

	in := []byte{
		0x01,       // metadata_type = HDR CLL
		0x03, 0xe8, // max_cll = 1000
		0x01, 0x90, // max_fall = 400
		0x80, // trailing bits
	}
	if err := d.parseMetadata(bits.NewBitReader(in)); err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	want := &ContentLightLevel{MaxContentLightLevel: 1000, MaxFrameAverageLightLevel: 400}
	if diff := cmp.Diff(want, d.contentLight); diff != "" {
		t.Errorf("unexpected result (-want +got):\n%s", diff)
	}
}

func TestParseMetadataMasteringDisplay(t *testing.T) {
	d := newTestDecoder(t)

	in := []byte{
		0x02, // metadata_type = HDR MDCV
		0x00, 0x01, 0x00, 0x02,
		0x00, 0x03, 0x00, 0x04,
		0x00, 0x05, 0x00, 0x06,
		0x00, 0x07, 0x00, 0x08, // white point
		0x01, 0x02, 0x03, 0x04, // max luminance
		0x05, 0x06, 0x07, 0x08, // min luminance
		0x80, // trailing bits
	}
	if err := d.parseMetadata(bits.NewBitReader(in)); err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	want := &MasteringDisplay{
		Primaries:    [3][2]uint16{{1, 2}, {3, 4}, {5, 6}},
		WhitePoint:   [2]uint16{7, 8},
		MaxLuminance: 0x01020304,
		MinLuminance: 0x05060708,
	}
	if diff := cmp.Diff(want, d.masteringDisplay); diff != "" {
		t.Errorf("unexpected result (-want +got):\n%s", diff)
	}
}

func TestParseMetadataITUTT35(t *testing.T) {
	tests := []struct {
		in   []byte
		want []ITUTT35
	}{
		{
			in:   []byte{0x04, 0xb5, 'h', 'e', 'l', 'l', 'o', 0x80},
			want: []ITUTT35{{CountryCode: 0xb5, Payload: []byte("hello")}},
		},
		{
			// Trailing zero padding after the terminator.
			in:   []byte{0x04, 0xb5, 'h', 'i', 0x80, 0x00, 0x00},
			want: []ITUTT35{{CountryCode: 0xb5, Payload: []byte("hi")}},
		},
		{
			// Extension byte follows a 0xff country code.
			in:   []byte{0x04, 0xff, 0x3a, 'x', 'y', 0x80},
			want: []ITUTT35{{CountryCode: 0xff, CountryCodeExtensionByte: 0x3a, Payload: []byte("xy")}},
		},
		{
			// No terminator byte: the message is skipped, not fatal.
			in:   []byte{0x04, 0xb5, 'x'},
			want: nil,
		},
	}

	for i, test := range tests {
		d := newTestDecoder(t)
		if err := d.parseMetadata(bits.NewBitReader(test.in)); err != nil {
			t.Fatalf("did not expect error: %v for test: %d", err, i)
		}
		if diff := cmp.Diff(test.want, d.itutT35); diff != "" {
			t.Errorf("unexpected result for test: %d (-want +got):\n%s", i, diff)
		}
	}
}

func TestParseMetadataUnknownType(t *testing.T) {
	d := newTestDecoder(t)

	// Reserved and user private types are skipped without error.
	for _, in := range [][]byte{{0x21, 0xff}, {0x06, 0x01, 0x02}} {
		if err := d.parseMetadata(bits.NewBitReader(in)); err != nil {
			t.Errorf("did not expect error: %v for type %d", err, in[0])
		}
	}
	if d.contentLight != nil || d.masteringDisplay != nil || len(d.itutT35) != 0 {
		t.Error("did not expect unknown metadata to set decoder state")
	}
}

func TestParseMetadataOverrun(t *testing.T) {
	d := newTestDecoder(t)

	// An unterminated ULEB128 type field is a hard error.
	if err := d.parseMetadata(bits.NewBitReader([]byte{0x80})); err == nil {
		t.Error("expected error for truncated metadata type")
	}
}
