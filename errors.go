/*
DESCRIPTION
  errors.go provides the sentinel errors reported by the decoder. Parse
  functions wrap these with context using github.com/pkg/errors, so callers
  should classify failures with errors.Cause or errors.Is.

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

var (
	// ErrInvalidData indicates malformed or out-of-specification bitstream
	// input: a bit reader under-run, an out-of-range field value, or a
	// broken stream-level invariant. It is never corrected silently.
	ErrInvalidData = errors.New("malformed or invalid bitstream data")

	// ErrFrameSizeLimit indicates a structurally valid frame header whose
	// dimensions exceed the configured decodable frame area. Distinct from
	// ErrInvalidData so callers can tell "valid but too large" apart from
	// "not valid".
	ErrFrameSizeLimit = errors.New("frame dimensions exceed configured limit")

	// ErrNoSequenceHeader indicates frame data arriving before any sequence
	// header, or an input span containing no sequence header at all.
	ErrNoSequenceHeader = errors.New("sequence header not present")

	// ErrNoFrameHeader indicates a tile group arriving with no active frame
	// header to attach to.
	ErrNoFrameHeader = errors.New("frame header not present")
)
