package packfile

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"

	"github.com/quarry-scm/quarry/plumbing"
	qhash "github.com/quarry-scm/quarry/plumbing/hash"
	qbinary "github.com/quarry-scm/quarry/utils/binary"
)

// testEntry describes one entry of a pack built by buildPack. For
// ofs-deltas, baseIndex names the entry the delta is based on; for
// ref-deltas, baseRef carries the base id.
type testEntry struct {
	typ       plumbing.ObjectType
	payload   []byte
	baseIndex int
	baseRef   plumbing.ObjectID
}

// buildPack serializes a complete version 2 pack, trailing checksum
// included.
func buildPack(t *testing.T, entries ...testEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	buf.Write(packHeader(uint32(len(entries))))

	offsets := make([]int64, len(entries))
	for i, e := range entries {
		offsets[i] = int64(buf.Len())

		buf.Write(entryHead(e.typ, len(e.payload)))

		switch e.typ {
		case plumbing.OFSDeltaObject:
			distance := offsets[i] - offsets[e.baseIndex]
			require.NoError(t, qbinary.WriteVariableWidthInt(&buf, distance))
		case plumbing.REFDeltaObject:
			buf.Write(e.baseRef.Bytes())
		}

		buf.Write(deflate(t, e.payload))
	}

	return appendChecksum(buf.Bytes())
}

func packHeader(objects uint32) []byte {
	head := make([]byte, 0, 12)
	head = append(head, signature...)
	head = binary.BigEndian.AppendUint32(head, uint32(V2))
	return binary.BigEndian.AppendUint32(head, objects)
}

// entryHead encodes the object type and inflated size the way pack
// entries carry them: type in bits 4-6 of the first byte, size in
// 4+7n-bit little-endian groups.
func entryHead(typ plumbing.ObjectType, size int) []byte {
	out := []byte{byte(typ)<<4 | byte(size&0x0f)}
	size >>= 4
	for size > 0 {
		out[len(out)-1] |= maskContinue
		out = append(out, byte(size&0x7f))
		size >>= 7
	}
	return out
}

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func appendChecksum(pack []byte) []byte {
	h := qhash.New(plumbing.SHA1.CryptoHash())
	h.Write(pack)
	return h.Sum(pack)
}

// deltaPayload builds the instruction stream turning a base of baseSz
// bytes into copied plus inserted: one whole-base copy when copied is
// true, then one insert.
func deltaPayload(baseSz int, copied bool, inserted []byte) []byte {
	targetSz := len(inserted)
	if copied {
		targetSz += baseSz
	}

	delta := appendLEB128(nil, uint(baseSz))
	delta = appendLEB128(delta, uint(targetSz))

	if copied {
		// Copy from offset zero; only the low size byte is present.
		delta = append(delta, 0x90, byte(baseSz))
	}
	if len(inserted) > 0 {
		delta = append(delta, byte(len(inserted)))
		delta = append(delta, inserted...)
	}
	return delta
}
