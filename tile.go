package av1dec

import "github.com/ausocean/av1dec/bits"

// parseTileHeader parses tile_group_header(), returning the range of coded
// tiles carried by the group. With a single tile, or without an explicit
// position, the group carries every tile of the frame.
func parseTileHeader(br *bits.BitReader, tiling *TileInfo) (start, end int) {
	nTiles := tiling.Cols * tiling.Rows
	havePos := false
	if nTiles > 1 {
		havePos = br.ReadBit() != 0
	}
	if havePos {
		nbits := tiling.Log2Cols + tiling.Log2Rows
		start = int(br.ReadBits(nbits))
		end = int(br.ReadBits(nbits))
	} else {
		end = nTiles - 1
	}
	return start, end
}
