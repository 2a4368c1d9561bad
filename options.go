/*
DESCRIPTION
  options.go provides option functions that can be supplied to NewDecoder to
  configure decoder behaviour.

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

import "errors"

// Used to determine whether an option supplied to NewDecoder is valid.
var errInvalidOption = errors.New("invalid option value")

// DecodeFrameType restricts which frame types the decoder fully processes.
// Skipped frames still refresh reference slots with their headers so that
// later frames parse correctly.
type DecodeFrameType int

const (
	DecodeFrameTypeAll DecodeFrameType = iota
	DecodeFrameTypeReference
	DecodeFrameTypeIntra
	DecodeFrameTypeKey
)

// StrictCompliance enforces the checks the specification mandates but real
// streams commonly violate: zero timing denominators, trailing bit padding,
// forbidden OBU header bits, intra frames refreshing every slot, and
// show_existing_frame of non-showable frames.
func StrictCompliance(on bool) func(*Decoder) error {
	return func(d *Decoder) error {
		d.strict = on
		return nil
	}
}

// FrameSizeLimit rejects structurally valid frame headers whose upscaled
// area in pixels exceeds limit, reporting ErrFrameSizeLimit. Zero disables
// the check.
func FrameSizeLimit(limit uint64) func(*Decoder) error {
	return func(d *Decoder) error {
		d.frameSizeLimit = limit
		return nil
	}
}

// DecodeFrames restricts processing to the given frame type class.
func DecodeFrames(t DecodeFrameType) func(*Decoder) error {
	return func(d *Decoder) error {
		if t < DecodeFrameTypeAll || t > DecodeFrameTypeKey {
			return errInvalidOption
		}
		d.decodeFrameType = t
		return nil
	}
}

// WithOperatingPoint selects the operating point used for layer filtering of
// a scalable stream. Points beyond those the sequence header defines fall
// back to operating point 0.
func WithOperatingPoint(idx int) func(*Decoder) error {
	return func(d *Decoder) error {
		if idx < 0 || idx >= MaxOperatingPoints {
			return errInvalidOption
		}
		d.operatingPoint = idx
		return nil
	}
}

// OutputInvisibleFrames emits frames coded with show_frame unset instead of
// holding them for a later show_existing_frame.
func OutputInvisibleFrames(on bool) func(*Decoder) error {
	return func(d *Decoder) error {
		d.outputInvisible = on
		return nil
	}
}

// FrameContexts sets the number of in-flight frames permitted when the sink
// completes frames asynchronously. The output queue preserves bitstream
// order across contexts. Must be at least 1.
func FrameContexts(n int) func(*Decoder) error {
	return func(d *Decoder) error {
		if n < 1 {
			return errInvalidOption
		}
		d.fc = make([]frameContext, n)
		d.outDelayed = make([]*Picture, n)
		return nil
	}
}

// WithSink sets the FrameSink that receives complete frames. Without a sink
// frames complete immediately and only header parsing is performed.
func WithSink(s FrameSink) func(*Decoder) error {
	return func(d *Decoder) error {
		d.sink = s
		return nil
	}
}
