/*
DESCRIPTION
  decoder.go provides the Decoder type: the OBU dispatcher, the reference
  slot pool, and the ordered output queue.

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package av1dec provides parsing of AV1 elementary stream headers at the
// open bitstream unit level: sequence headers, frame headers, tile group
// headers and metadata, together with the reference frame state needed to
// parse headers that inherit from previous frames. Tile payloads are not
// entropy decoded; they are handed, delimited, to a configurable sink.
package av1dec

import (
	"sync"

	"github.com/ausocean/av1dec/bits"
	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"
)

// refSlot is one of the eight reference frame slots. The picture handle is
// shared, never mutated in place; refreshing a slot replaces the handle.
type refSlot struct {
	pic      *Picture
	showable bool
}

// frameContext tracks one in-flight frame when the sink completes frames
// asynchronously.
type frameContext struct {
	busy  bool
	err   error
	props DataProps
}

// Decoder parses a stream of OBUs, tracking the sequence header, reference
// slots and metadata needed to parse dependent frame headers, and emits
// Pictures in presentation order. Methods on Decoder must not be called
// concurrently; the mutex guards only the output queue shared with sinks
// calling Frame.Done.
type Decoder struct {
	mu   sync.Mutex
	cond *sync.Cond

	log logging.Logger

	strict          bool
	frameSizeLimit  uint64
	decodeFrameType DecodeFrameType
	operatingPoint  int
	outputInvisible bool
	sink            FrameSink

	operatingPointIDC int
	maxSpatialID      int

	seqHdr   *SequenceHeader
	frameHdr *FrameHeader

	contentLight     *ContentLightLevel
	masteringDisplay *MasteringDisplay
	itutT35          []ITUTT35

	refs [TotalRefsPerFrame]refSlot

	// Tile groups buffered for the frame being assembled, and the total
	// number of tiles they carry.
	tiles  []TileGroup
	nTiles int

	fc         []frameContext
	outDelayed []*Picture
	next       int

	out              *Picture
	cachedError      error
	cachedErrorProps DataProps

	pictureFlags PictureFlags
	eventFlags   EventFlags
}

// NewDecoder returns a Decoder logging through log, configured by the given
// option functions.
func NewDecoder(log logging.Logger, options ...func(*Decoder) error) (*Decoder, error) {
	d := &Decoder{
		log:        log,
		fc:         make([]frameContext, 1),
		outDelayed: make([]*Picture, 1),
	}
	d.cond = sync.NewCond(&d.mu)
	for _, option := range options {
		err := option(d)
		if err != nil {
			return nil, errors.Wrap(err, "option could not be applied")
		}
	}
	return d, nil
}

// SequenceHeader returns the active sequence header, or nil if none has
// been parsed yet.
func (d *Decoder) SequenceHeader() *SequenceHeader {
	return d.seqHdr
}

// Parse consumes every OBU in in, in order. Parsing stops at the first
// failing OBU.
func (d *Decoder) Parse(in *Data) error {
	for off := 0; off < len(in.Data); {
		n, err := d.ParseOBU(&Data{Data: in.Data[off:], Props: in.Props})
		if err != nil {
			return err
		}
		off += n
	}
	return nil
}

// fail records the properties of the failing input, retrievable with
// ErrorProps, and returns err.
func (d *Decoder) fail(in *Data, err error) error {
	d.cachedErrorProps = in.Props
	return err
}

// ParseOBU parses a single OBU from the front of in and returns the number
// of bytes it occupied. An OBU without a length field extends to the end of
// in. Completion of an access unit publishes output as a side effect: a
// picture becomes available from TakePicture, or a Frame is handed to the
// sink.
func (d *Decoder) ParseOBU(in *Data) (int, error) {
	br := bits.NewBitReader(in.Data)
	oh := parseOBUHeader(br)
	if d.strict && oh.forbidden {
		return 0, d.fail(in, errors.Wrap(ErrInvalidData, "obu forbidden bit set"))
	}
	if oh.hasLength {
		l := int(br.ReadULEB128())
		if br.Err() != nil || !br.Limit(l) {
			return 0, d.fail(in, errors.Wrap(ErrInvalidData, "obu length field"))
		}
	}
	if br.Err() != nil {
		return 0, d.fail(in, errors.Wrap(ErrInvalidData, "obu header overrun"))
	}

	// Skip OBUs not belonging to the selected operating point's layers.
	if oh.typ != OBUSequenceHeader && oh.typ != OBUTemporalDelimiter &&
		oh.hasExtension && d.operatingPointIDC != 0 {
		inTemporal := d.operatingPointIDC>>oh.temporalID&1 != 0
		inSpatial := d.operatingPointIDC>>(oh.spatialID+8)&1 != 0
		if !inTemporal || !inSpatial {
			return br.Size(), nil
		}
	}

	switch oh.typ {
	case OBUSequenceHeader:
		if err := d.parseSequenceOBU(br, in); err != nil {
			return 0, err
		}

	case OBURedundantFrameHeader, OBUFrameHeader, OBUFrame:
		if oh.typ == OBURedundantFrameHeader && d.frameHdr != nil {
			break
		}
		if err := d.parseFrameOBU(br, in, oh); err != nil {
			return 0, err
		}

	case OBUTileGroup:
		if err := d.parseTileGroupOBU(br, in); err != nil {
			return 0, err
		}

	case OBUMetadata:
		if err := d.parseMetadata(br); err != nil {
			return 0, d.fail(in, err)
		}

	case OBUTemporalDelimiter:
		d.pictureFlags |= PictureFlagNewTemporalUnit

	case OBUPadding:
		// Nothing to do.

	default:
		d.log.Debug("unknown OBU type", "type", int(oh.typ), "size", br.Size())
	}

	if err := d.finishAccessUnit(in); err != nil {
		return 0, err
	}
	return br.Size(), nil
}

// parseSequenceOBU parses a sequence header OBU and installs it as the
// active sequence, resetting all dependent state when the header starts a
// new coded video sequence.
func (d *Decoder) parseSequenceOBU(br *bits.BitReader, in *Data) error {
	seq, err := NewSequenceHeader(br, d.strict)
	if err != nil {
		d.log.Warning("error parsing sequence header", "error", err.Error())
		return d.fail(in, err)
	}

	opIdx := 0
	if d.operatingPoint < seq.NumOperatingPoints {
		opIdx = d.operatingPoint
	}
	d.operatingPointIDC = seq.OperatingPoints[opIdx].IDC
	if mask := uint(d.operatingPointIDC) >> 8; mask != 0 {
		d.maxSpatialID = ulog2(mask)
	} else {
		d.maxSpatialID = 0
	}

	switch {
	case d.seqHdr == nil:
		d.frameHdr = nil
		d.pictureFlags |= PictureFlagNewSequence
	case !sameSequence(seq, d.seqHdr):
		// A different header starts a new coded video sequence; no
		// previous state may be used.
		d.frameHdr = nil
		d.contentLight = nil
		d.masteringDisplay = nil
		for i := range d.refs {
			d.refs[i] = refSlot{}
		}
		d.pictureFlags |= PictureFlagNewSequence
	case !sameOperatingParameterInfo(seq, d.seqHdr):
		d.pictureFlags |= PictureFlagNewOpParamsInfo
	}
	d.seqHdr = seq
	return nil
}

// parseFrameOBU parses a frame header OBU or the header part of a frame
// OBU, then for the latter continues into the tile group that follows it.
func (d *Decoder) parseFrameOBU(br *bits.BitReader, in *Data, oh obuHeader) error {
	if d.seqHdr == nil {
		return d.fail(in, errors.Wrap(ErrNoSequenceHeader, "frame header"))
	}
	hdr, err := d.parseFrameHeader(br, oh.temporalID, oh.spatialID)
	if err != nil {
		d.log.Warning("error parsing frame header", "error", err.Error())
		return d.fail(in, err)
	}
	d.frameHdr = hdr
	d.tiles = d.tiles[:0]
	d.nTiles = 0

	if oh.typ != OBUFrame {
		// A standalone frame header ends with trailing bits.
		if err := checkTrailingBits(br, d.strict); err != nil {
			d.frameHdr = nil
			return d.fail(in, err)
		}
	}

	if d.frameSizeLimit != 0 &&
		uint64(hdr.UpscaledWidth)*uint64(hdr.Height) > d.frameSizeLimit {
		d.log.Error("frame size exceeds limit", "width", hdr.UpscaledWidth,
			"height", hdr.Height, "limit", d.frameSizeLimit)
		d.frameHdr = nil
		return errors.Wrap(ErrFrameSizeLimit, "frame header")
	}

	if oh.typ != OBUFrame {
		return nil
	}
	// A frame OBU carries header and tile group together; the tile group
	// starts at the next byte boundary.
	if hdr.ShowExistingFrame {
		d.frameHdr = nil
		return d.fail(in, errors.Wrap(ErrInvalidData, "frame OBU with show_existing_frame"))
	}
	br.ByteAlign()
	return d.parseTileGroupOBU(br, in)
}

// parseTileGroupOBU parses a tile group header and buffers the group's
// payload for the frame being assembled.
func (d *Decoder) parseTileGroupOBU(br *bits.BitReader, in *Data) error {
	if d.frameHdr == nil {
		return d.fail(in, errors.Wrap(ErrNoFrameHeader, "tile group"))
	}
	start, end := parseTileHeader(br, &d.frameHdr.Tiling)
	br.ByteAlign()
	if br.Err() != nil {
		return d.fail(in, errors.Wrap(ErrInvalidData, "tile group header overrun"))
	}
	// Tile groups must arrive contiguously and in order, see 6.10.1.
	if start > end || start != d.nTiles {
		d.tiles = d.tiles[:0]
		d.nTiles = 0
		return d.fail(in, errors.Wrap(ErrInvalidData, "tile group out of order"))
	}
	d.tiles = append(d.tiles, TileGroup{Data: br.Remaining(), Start: start, End: end})
	d.nTiles += 1 + end - start
	return nil
}

// finishAccessUnit checks whether the OBU just parsed completed an access
// unit, and if so publishes the resulting picture or submits the assembled
// frame to the sink.
func (d *Decoder) finishAccessUnit(in *Data) error {
	if d.seqHdr == nil || d.frameHdr == nil {
		return nil
	}

	if d.frameHdr.ShowExistingFrame {
		slot := &d.refs[d.frameHdr.ExistingFrameIdx]
		if slot.pic == nil {
			return d.fail(in, errors.Wrap(ErrInvalidData, "show existing frame from empty slot"))
		}
		switch slot.pic.FrameHeader.FrameType {
		case FrameTypeInter, FrameTypeSwitch:
			if d.decodeFrameType > DecodeFrameTypeReference {
				return d.skipFrame()
			}
		case FrameTypeIntra:
			if d.decodeFrameType > DecodeFrameTypeIntra {
				return d.skipFrame()
			}
		}
		if !slot.pic.Decoded {
			return d.fail(in, errors.Wrap(ErrInvalidData, "show existing frame was never decoded"))
		}
		if d.strict && !slot.showable {
			return d.fail(in, errors.Wrap(ErrInvalidData, "show existing frame not showable"))
		}

		out := *slot.pic
		out.ContentLight = d.contentLight
		out.MasteringDisplay = d.masteringDisplay
		out.ITUTT35 = d.itutT35
		d.itutT35 = nil // attached to the outgoing picture, start a fresh list
		out.Props = in.Props
		out.Visible = true
		if len(d.fc) == 1 {
			d.out = &out
			d.eventFlags |= out.Flags.events()
		} else {
			d.mu.Lock()
			d.rotateQueueLocked(&out)
			d.mu.Unlock()
		}

		// Displaying a key frame replicates it into every reference slot,
		// and it may not be shown again.
		if slot.pic.FrameHeader.FrameType == FrameTypeKey {
			rp := slot.pic
			for i := range d.refs {
				d.refs[i] = refSlot{pic: rp}
			}
		}
		d.frameHdr = nil
		return nil
	}

	if d.nTiles != d.frameHdr.Tiling.Cols*d.frameHdr.Tiling.Rows {
		return nil
	}
	switch d.frameHdr.FrameType {
	case FrameTypeInter, FrameTypeSwitch:
		if d.decodeFrameType > DecodeFrameTypeReference ||
			(d.decodeFrameType == DecodeFrameTypeReference && d.frameHdr.RefreshFrameFlags == 0) {
			return d.skipFrame()
		}
	case FrameTypeIntra:
		if d.decodeFrameType > DecodeFrameTypeIntra ||
			(d.decodeFrameType == DecodeFrameTypeReference && d.frameHdr.RefreshFrameFlags == 0) {
			return d.skipFrame()
		}
	}
	if len(d.tiles) == 0 {
		return d.fail(in, errors.Wrap(ErrInvalidData, "frame with no tile data"))
	}
	if err := d.submitFrame(in); err != nil {
		return err
	}
	d.frameHdr = nil
	d.nTiles = 0
	return nil
}

// skipFrame refreshes the reference slots with header-only pictures for a
// frame the decoder is configured not to process.
func (d *Decoder) skipFrame() error {
	hdr := d.frameHdr
	pic := &Picture{SeqHeader: d.seqHdr, FrameHeader: hdr}
	for i := 0; i < TotalRefsPerFrame; i++ {
		if hdr.RefreshFrameFlags&1<<i != 0 {
			d.refs[i] = refSlot{pic: pic}
		}
	}
	d.frameHdr = nil
	d.nTiles = 0
	return nil
}

// rotateQueueLocked advances the delayed output queue by one slot, flushing
// the picture or completion error previously occupying it, and places pic
// in the freed slot. It waits for an in-flight frame using the slot to
// complete. Call with mu held; returns the slot index.
func (d *Decoder) rotateQueueLocked(pic *Picture) int {
	next := d.next
	d.next++
	if d.next == len(d.fc) {
		d.next = 0
	}
	f := &d.fc[next]
	for f.busy {
		d.cond.Wait()
	}
	if f.err != nil {
		d.cachedError = f.err
		d.cachedErrorProps = f.props
		f.err = nil
	} else if p := d.outDelayed[next]; p != nil && d.publishable(p) {
		d.out = p
		d.eventFlags |= p.Flags.events()
	}
	d.outDelayed[next] = pic
	return next
}

// submitFrame builds the output picture for the assembled frame, refreshes
// the reference slots, and hands the frame to the sink.
func (d *Decoder) submitFrame(in *Data) error {
	hdr := d.frameHdr
	pic := &Picture{
		SeqHeader:        d.seqHdr,
		FrameHeader:      hdr,
		ContentLight:     d.contentLight,
		MasteringDisplay: d.masteringDisplay,
		ITUTT35:          d.itutT35,
		Props:            in.Props,
		Flags:            d.pictureFlags,
		Decoded:          true,
		Visible:          hdr.ShowFrame,
	}
	frame := &Frame{
		SeqHeader:        pic.SeqHeader,
		FrameHeader:      hdr,
		Tiles:            d.tiles,
		ContentLight:     pic.ContentLight,
		MasteringDisplay: pic.MasteringDisplay,
		ITUTT35:          pic.ITUTT35,
		Props:            in.Props,
		dec:              d,
		slot:             -1,
	}
	d.pictureFlags = 0
	d.itutT35 = nil
	d.tiles = nil

	multi := len(d.fc) > 1
	if multi {
		d.mu.Lock()
		frame.slot = d.rotateQueueLocked(pic)
		d.fc[frame.slot].busy = true
		d.mu.Unlock()
	}

	for i := 0; i < TotalRefsPerFrame; i++ {
		if hdr.RefreshFrameFlags&1<<i != 0 {
			d.refs[i] = refSlot{pic: pic, showable: hdr.ShowableFrame}
		}
	}

	if d.sink != nil {
		if err := d.sink.SubmitFrame(frame); err != nil {
			frame.Done(nil) // sink reported synchronously, free the context
			return d.fail(in, errors.Wrap(err, "sink rejected frame"))
		}
	} else {
		frame.Done(nil)
	}

	if !multi && d.publishable(pic) {
		d.out = pic
		d.eventFlags |= pic.Flags.events()
	}
	return nil
}

// publishable reports whether p belongs on the output: a presentable frame
// of the selected operating point's top spatial layer.
func (d *Decoder) publishable(p *Picture) bool {
	if !p.Visible && !d.outputInvisible {
		return false
	}
	return p.FrameHeader.SpatialID == d.maxSpatialID
}

// TakePicture returns the next output picture in bitstream order, or nil
// when none is pending. An error deferred from an asynchronously completed
// frame, or recorded by Frame.Done, is returned here once.
func (d *Decoder) TakePicture() (*Picture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cachedError != nil {
		err := d.cachedError
		d.cachedError = nil
		return nil, err
	}
	p := d.out
	d.out = nil
	return p, nil
}

// Drain flushes the delayed output queue at end of stream, waiting for
// in-flight frames. After each call check TakePicture; repeat until both
// return nothing.
func (d *Decoder) Drain() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := 0; i < len(d.fc); i++ {
		if d.out != nil || d.cachedError != nil {
			return
		}
		d.rotateQueueLocked(nil)
	}
}

// Events returns the accumulated stream event flags and clears them.
func (d *Decoder) Events() EventFlags {
	d.mu.Lock()
	defer d.mu.Unlock()
	e := d.eventFlags
	d.eventFlags = 0
	return e
}

// ErrorProps returns the data properties recorded with the most recent
// parse or decode failure.
func (d *Decoder) ErrorProps() DataProps {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cachedErrorProps
}

// Flush discards all stream state except the active sequence header and the
// decoder configuration, as after a seek.
func (d *Decoder) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frameHdr = nil
	d.itutT35 = nil
	d.tiles = nil
	d.nTiles = 0
	for i := range d.refs {
		d.refs[i] = refSlot{}
	}
	for i := range d.fc {
		d.fc[i] = frameContext{}
		d.outDelayed[i] = nil
	}
	d.next = 0
	d.out = nil
	d.cachedError = nil
	d.pictureFlags = 0
	d.eventFlags = 0
}
