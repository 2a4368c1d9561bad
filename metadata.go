/*
DESCRIPTION
  metadata.go provides parsing of metadata OBUs: HDR content light level,
  HDR mastering display colour volume, and ITU-T T.35 closed data.

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

// ContentLightLevel is the HDR content light level metadata of CTA-861.3.
type ContentLightLevel struct {
	MaxContentLightLevel      int
	MaxFrameAverageLightLevel int
}

// MasteringDisplay is the HDR mastering display colour volume metadata of
// SMPTE ST 2086. Chromaticities are 0.16 fixed point; MaxLuminance is 24.8
// and MinLuminance 18.14 fixed point.
type MasteringDisplay struct {
	// RGB order.
	Primaries  [3][2]uint16
	WhitePoint [2]uint16

	MaxLuminance uint32
	MinLuminance uint32
}

// ITUTT35 is one ITU-T T.35 terminal code message.
type ITUTT35 struct {
	CountryCode              byte
	CountryCodeExtensionByte byte
	Payload                  []byte
}

// parseMetadata parses one metadata OBU payload. Registered types the
// decoder does not consume, and user private types, are skipped silently;
// reserved types are skipped with a log line. A malformed T.35 message is
// skipped rather than failing the stream.
func (d *Decoder) parseMetadata(br *bits.BitReader) error {
	metaType := br.ReadULEB128()
	if br.Err() != nil {
		return errors.Wrap(ErrInvalidData, "metadata: overrun reading type")
	}

	switch metaType {
	case metaTypeHDRCLL:
		cll := &ContentLightLevel{
			MaxContentLightLevel:      int(br.ReadBits(16)),
			MaxFrameAverageLightLevel: int(br.ReadBits(16)),
		}
		if err := checkTrailingBits(br, d.strict); err != nil {
			return errors.Wrap(err, "metadata: content light level")
		}
		d.contentLight = cll

	case metaTypeHDRMDCV:
		md := &MasteringDisplay{}
		for i := 0; i < 3; i++ {
			md.Primaries[i][0] = uint16(br.ReadBits(16))
			md.Primaries[i][1] = uint16(br.ReadBits(16))
		}
		md.WhitePoint[0] = uint16(br.ReadBits(16))
		md.WhitePoint[1] = uint16(br.ReadBits(16))
		md.MaxLuminance = br.ReadBits(32)
		md.MinLuminance = br.ReadBits(32)
		if err := checkTrailingBits(br, d.strict); err != nil {
			return errors.Wrap(err, "metadata: mastering display")
		}
		d.masteringDisplay = md

	case metaTypeITUTT35:
		rem := br.Remaining()
		n := len(rem)
		for n > 0 && rem[n-1] == 0 {
			n-- // trailing_zero_bit x 8
		}
		n-- // trailing_one_bit + trailing_zero_bit x 7
		size := n

		var ext byte
		cc := byte(br.ReadBits(8))
		size--
		if cc == 0xFF {
			ext = byte(br.ReadBits(8))
			size--
		}

		if size <= 0 || rem[n] != 0x80 {
			d.log.Warning("malformed ITU-T T.35 metadata message")
			break
		}

		consumed := n - size
		payload := make([]byte, size)
		copy(payload, rem[consumed:n])
		d.itutT35 = append(d.itutT35, ITUTT35{
			CountryCode:              cc,
			CountryCodeExtensionByte: ext,
			Payload:                  payload,
		})

	case metaTypeScalability, metaTypeTimecode:
		// Known types the decoder has no use for.

	default:
		// Types 6 to 31 are unregistered user private, so stay quiet.
		if metaType < metaTypeHDRCLL || metaType > 31 {
			d.log.Debug("unknown metadata OBU type", "type", int(metaType))
		}
	}
	return nil
}
