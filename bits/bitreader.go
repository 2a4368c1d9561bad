/*
DESCRIPTION
  bitreader.go provides a bit reader over a byte slice with the fixed-width,
  variable-length and byte-oriented reads required for parsing AV1 open
  bitstream units.

AUTHORS
  Saxon Nelson-Milton <saxon@ausocean.org>, The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package bits provides a bit reader over an in-memory byte slice. The reader
// keeps a sticky error state: once a read overruns the underlying buffer, the
// reader is poisoned and every subsequent read returns zero. Callers are
// expected to check Err after any sequence of reads that may have under-run
// the buffer, rather than after each individual read.
package bits

import (
	"io"
	"math"
)

// BitReader is a cursor over a byte slice providing bit-granular reads.
// The zero value is not usable; use NewBitReader.
type BitReader struct {
	data  []byte
	start int
	pos   int // index of the next byte to be loaded into the cache
	end   int
	cache uint64 // loaded but unconsumed bits, most-significant first
	bits  int    // number of valid bits in cache
	err   error
}

// NewBitReader returns a BitReader reading from the start of data.
func NewBitReader(data []byte) *BitReader {
	return &BitReader{data: data, end: len(data)}
}

// fail poisons the reader. All reads from now on return zero.
func (br *BitReader) fail() {
	br.err = io.ErrUnexpectedEOF
}

// Err returns the sticky error state of the reader; nil if no read has
// overrun the buffer.
func (br *BitReader) Err() error {
	return br.err
}

// refill loads bytes into the cache until at least n bits are available.
// Loads are lazy so that whole-byte reads from byte-aligned positions leave
// the cache empty, which keeps Remaining in step with the logical cursor.
func (br *BitReader) refill(n int) {
	for br.bits < n {
		if br.pos >= br.end {
			br.fail()
			return
		}
		br.cache |= uint64(br.data[br.pos]) << (56 - br.bits)
		br.pos++
		br.bits += 8
	}
}

// ReadBit reads a single bit.
func (br *BitReader) ReadBit() uint32 {
	return br.ReadBits(1)
}

// ReadBits reads n bits, 0 <= n <= 32, returning them in the least
// significant part of the result. After an overrun the result is zero.
func (br *BitReader) ReadBits(n int) uint32 {
	if br.err != nil || n == 0 {
		return 0
	}
	if n > br.bits {
		br.refill(n)
		if br.err != nil {
			return 0
		}
	}
	v := uint32(br.cache >> (64 - n))
	br.cache <<= n
	br.bits -= n
	return v
}

// ReadSignedBits reads an n-bit two's complement signed value, 0 < n <= 32.
func (br *BitReader) ReadSignedBits(n int) int32 {
	v := int64(br.ReadBits(n))
	if v >= 1<<(n-1) {
		v -= 1 << n
	}
	return int32(v)
}

// ReadULEB128 reads a ULEB128-coded unsigned value. Values wider than 32 bits
// and unterminated encodings poison the reader.
func (br *BitReader) ReadULEB128() uint32 {
	var val uint64
	var i int
	more := uint32(0x80)
	for more != 0 && i < 56 {
		v := br.ReadBits(8)
		more = v & 0x80
		val |= uint64(v&0x7f) << i
		i += 7
	}
	if val > math.MaxUint32 || more != 0 {
		br.fail()
		return 0
	}
	return uint32(val)
}

// ReadVLC reads an exp-golomb style variable length code. A code with 32 or
// more leading zeros returns math.MaxUint32.
func (br *BitReader) ReadVLC() uint32 {
	if br.ReadBit() != 0 {
		return 0
	}
	nBits := 0
	for {
		nBits++
		if nBits == 32 {
			return math.MaxUint32
		}
		if br.ReadBit() != 0 {
			break
		}
		if br.err != nil {
			return math.MaxUint32
		}
	}
	return 1<<nBits - 1 + br.ReadBits(nBits)
}

// ReadUniform reads a value in [0, max) using the minimal-bit uniform coding
// of AV1 section 4.10.7 (ns(n)). max must be greater than 1.
func (br *BitReader) ReadUniform(max uint32) uint32 {
	l := ulog2(max) + 1
	m := uint32(1)<<l - max
	v := br.ReadBits(l - 1)
	if v < m {
		return v
	}
	return v<<1 - m + br.ReadBit()
}

// invRecenter is the inverse of the recentering performed when coding a value
// as a distance from a reference, per AV1 section 4.9.5.
func invRecenter(r, v uint32) uint32 {
	switch {
	case v > r<<1:
		return v
	case v&1 == 0:
		return v>>1 + r
	default:
		return r - (v+1)>>1
	}
}

// readSubexpUnsigned reads a subexponentially coded value in [0, n],
// recentered around ref.
func (br *BitReader) readSubexpUnsigned(ref, n uint32) uint32 {
	var v uint32
	for i := 0; ; i++ {
		b := 3
		if i != 0 {
			b = 2 + i
		}
		if n < v+3<<b {
			break
		}
		if br.ReadBit() == 0 {
			v += br.ReadBits(b)
			break
		}
		v += 1 << b
	}
	if ref*2 <= n {
		return invRecenter(ref, v)
	}
	return n - invRecenter(n-ref, v)
}

// ReadSubexp reads a signed subexponentially coded delta relative to ref with
// bit budget n, as used for global motion parameters.
func (br *BitReader) ReadSubexp(ref int32, n uint) int32 {
	return int32(br.readSubexpUnsigned(uint32(ref+1<<n), 2<<n)) - 1<<n
}

// BitPosition reports the number of bits consumed since the start of the
// buffer.
func (br *BitReader) BitPosition() int {
	return (br.pos-br.start)*8 - br.bits
}

// ByteAlign discards bits up to the next byte boundary.
func (br *BitReader) ByteAlign() {
	n := br.bits & 7
	br.cache <<= n
	br.bits -= n
}

// Buffered returns the bits that have been loaded from the buffer but not yet
// consumed, most-significant first. Used for trailing-bits validation.
func (br *BitReader) Buffered() uint64 {
	return br.cache
}

// Remaining returns the whole bytes that have not yet been loaded into the
// bit cache.
func (br *BitReader) Remaining() []byte {
	if br.pos >= br.end {
		return nil
	}
	return br.data[br.pos:br.end]
}

// Size reports the size in bytes of the (possibly limited) span this reader
// covers.
func (br *BitReader) Size() int {
	return br.end - br.start
}

// Limit clips the readable span to n bytes past the current position, and
// reports whether n fit within the remaining span. Reads past the clipped end
// poison the reader, and Size counts only up to the clipped end.
func (br *BitReader) Limit(n int) bool {
	if n > br.end-br.pos {
		return false
	}
	br.end = br.pos + n
	return true
}

func ulog2(v uint32) int {
	n := 0
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}
