/*
DESCRIPTION
  picture.go provides the output side of the decoder: input data properties,
  complete frames handed to a FrameSink, and emitted pictures.

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

// DataProps carries bookkeeping for a span of input data. The decoder never
// interprets these; they travel with the data through parsing and are
// attached to the pictures the data produces.
type DataProps struct {
	// Presentation timestamp in stream time base units.
	Timestamp int64

	// Duration in stream time base units, or 0 when unknown.
	Duration int64

	// Byte offset of the data within the stream, or -1 when unknown.
	Offset int64

	// Size in bytes of the span this was read from.
	Size int
}

// Data is a span of bitstream input holding one or more OBUs.
type Data struct {
	Data  []byte
	Props DataProps
}

// TileGroup is one tile group payload of a frame with its coded tile range.
// Data aliases the input buffer; it is valid for as long as the input is.
type TileGroup struct {
	Data       []byte
	Start, End int
}

// PictureFlags accumulate on the decoder while parsing and attach to the
// next picture produced.
type PictureFlags int

const (
	PictureFlagNewSequence PictureFlags = 1 << iota
	PictureFlagNewOpParamsInfo
	PictureFlagNewTemporalUnit
)

// EventFlags report stream-level events observed since the last call to
// Events.
type EventFlags int

const (
	EventFlagNewSequence EventFlags = 1 << iota
	EventFlagNewOpParamsInfo
)

// events maps the flags of an emitted picture onto decoder event flags.
func (f PictureFlags) events() EventFlags {
	var e EventFlags
	if f&PictureFlagNewSequence != 0 {
		e |= EventFlagNewSequence
	}
	if f&PictureFlagNewOpParamsInfo != 0 {
		e |= EventFlagNewOpParamsInfo
	}
	return e
}

// Picture is one output picture of the decoder: the headers that describe
// it, the metadata active when it was coded, and the properties of the data
// it came from. Pictures are immutable once emitted and may be shared
// between reference slots and the output queue.
type Picture struct {
	SeqHeader   *SequenceHeader
	FrameHeader *FrameHeader

	ContentLight     *ContentLightLevel
	MasteringDisplay *MasteringDisplay
	ITUTT35          []ITUTT35

	Props DataProps
	Flags PictureFlags

	// Decoded indicates tile data was processed for this picture, rather
	// than a header-only reference slot refresh from a skipped frame.
	Decoded bool

	// Visible indicates the picture is to be presented.
	Visible bool
}

// Frame is a complete access unit: a frame header together with all of its
// tile group payloads and the metadata in effect. It is handed to the
// configured FrameSink once the tile set completes.
type Frame struct {
	SeqHeader   *SequenceHeader
	FrameHeader *FrameHeader
	Tiles       []TileGroup

	ContentLight     *ContentLightLevel
	MasteringDisplay *MasteringDisplay
	ITUTT35          []ITUTT35

	Props DataProps

	dec  *Decoder
	slot int
}

// Done reports completion of the frame's processing back to the decoder. A
// sink operating asynchronously over multiple frame contexts must call Done
// exactly once per frame; a non-nil error surfaces from a later TakePicture.
// Calling Done again is a no-op.
func (f *Frame) Done(err error) {
	d := f.dec
	if d == nil {
		return
	}
	f.dec = nil
	d.mu.Lock()
	defer d.mu.Unlock()
	if f.slot >= 0 {
		fc := &d.fc[f.slot]
		fc.busy = false
		if err != nil {
			fc.err = err
			fc.props = f.Props
		}
		d.cond.Broadcast()
	} else if err != nil {
		d.cachedError = err
		d.cachedErrorProps = f.Props
	}
}

// FrameSink consumes complete frames from the decoder. SubmitFrame may
// process synchronously and return any error directly, or retain the frame
// and report completion through Frame.Done when the decoder is configured
// with more than one frame context.
type FrameSink interface {
	SubmitFrame(*Frame) error
}
