// Package packfile implements decoding of the Git pack binary format:
// scanning the wire stream into entries, and resolving delta entries
// against in-pack and already-stored bases.
package packfile

var signature = []byte{'P', 'A', 'C', 'K'}

const (
	firstLengthBits = uint8(4)   // the first byte into object header has 4 bits to store the length
	lengthBits      = uint8(7)   // subsequent bytes have 7 bits to store the length
	maskFirstLength = 15         // 0000 1111
	maskContinue    = 0x80       // 1000 0000
	maskLength      = uint8(127) // 0111 1111
	maskType        = uint8(112) // 0111 0000

	// maxCopySize is the size of a copy instruction that encodes its
	// size as zero.
	maxCopySize = 0x10000

	// minDeltaSize defines the smallest size for a delta: the two
	// length headers plus at least one instruction.
	minDeltaSize = 4
)
