package packfile

import (
	"bytes"

	"github.com/quarry-scm/quarry/plumbing"
)

// See https://github.com/git/git/blob/49fa3dc76179e04b0833542fa52d0f287a4955ac/delta.h
// and https://github.com/git/git/blob/c2c5f6b1e479f2c38e0e01345350620944e3527f/patch-delta.c
// for details about the delta format.

// Delta errors.
var (
	// ErrInvalidDelta is returned when a delta instruction stream is
	// malformed: truncated headers, truncated instructions or an
	// unknown command byte.
	ErrInvalidDelta = NewError("invalid delta")
	// ErrDeltaBaseSize is returned when the base size declared by a
	// delta does not match the base buffer it is applied to.
	ErrDeltaBaseSize = NewError("delta base size mismatch")
	// ErrDeltaCopyOutOfBounds is returned when a copy instruction
	// reads past the end of the base buffer.
	ErrDeltaCopyOutOfBounds = NewError("delta copy out of bounds")
	// ErrDeltaResultSize is returned when applying all instructions
	// yields a buffer whose length differs from the declared result
	// length.
	ErrDeltaResultSize = NewError("delta result size mismatch")
)

type offset struct {
	mask  byte
	shift uint
}

var offsets = []offset{
	{mask: 0x01, shift: 0},
	{mask: 0x02, shift: 8},
	{mask: 0x04, shift: 16},
	{mask: 0x08, shift: 24},
}

var sizes = []offset{
	{mask: 0x10, shift: 0},
	{mask: 0x20, shift: 8},
	{mask: 0x40, shift: 16},
}

// PatchDelta returns the result of applying the modification deltas in
// delta to src.
//
// The instruction walk is strict: a copy instruction whose range
// exceeds the base buffer's bounds, or a final output length that does
// not match the declared result length, fail with an IntegrityError;
// malformed instruction streams fail with a FormatError. Nothing is
// silently truncated.
func PatchDelta(src, delta []byte) ([]byte, error) {
	if len(delta) < minDeltaSize {
		return nil, plumbing.NewFormatError(ErrInvalidDelta)
	}

	srcSz, delta := decodeLEB128(delta)
	if srcSz != uint(len(src)) {
		return nil, plumbing.NewIntegrityError(
			ErrDeltaBaseSize.AddDetails("declared %d, base is %d", srcSz, len(src)))
	}

	if len(delta) == 0 {
		return nil, plumbing.NewFormatError(
			ErrInvalidDelta.AddDetails("truncated result length header"))
	}
	targetSz, delta := decodeLEB128(delta)
	remainingTargetSz := targetSz

	dst := bytes.NewBuffer(make([]byte, 0, targetSz))

	var cmd byte
	for {
		if len(delta) == 0 {
			break
		}

		cmd = delta[0]
		delta = delta[1:]

		switch {
		case isCopyFromSrc(cmd):
			var offset, sz uint
			var err error
			offset, delta, err = decodeOffset(cmd, delta)
			if err != nil {
				return nil, err
			}

			sz, delta, err = decodeSize(cmd, delta)
			if err != nil {
				return nil, err
			}

			if sumOverflows(offset, sz) || offset+sz > srcSz {
				return nil, plumbing.NewIntegrityError(
					ErrDeltaCopyOutOfBounds.AddDetails("copy [%d, %d) over base of %d bytes",
						offset, offset+sz, srcSz))
			}
			dst.Write(src[offset : offset+sz])
			remainingTargetSz -= sz

		case isInsertFromDelta(cmd):
			sz := uint(cmd) // cmd is the size itself
			if uint(len(delta)) < sz {
				return nil, plumbing.NewFormatError(
					ErrInvalidDelta.AddDetails("truncated insert of %d bytes", sz))
			}

			dst.Write(delta[0:sz])
			remainingTargetSz -= sz
			delta = delta[sz:]

		default:
			// cmd == 0 is reserved.
			return nil, plumbing.NewFormatError(ErrInvalidDelta.AddDetails("wrong delta command %d", cmd))
		}

		if remainingTargetSz <= 0 {
			break
		}
	}

	if uint(dst.Len()) != targetSz {
		return nil, plumbing.NewIntegrityError(
			ErrDeltaResultSize.AddDetails("declared %d, produced %d", targetSz, dst.Len()))
	}

	return dst.Bytes(), nil
}

// DeltaSizes returns the declared base and result lengths of a delta
// instruction stream without applying it.
func DeltaSizes(delta []byte) (baseSz, targetSz uint, err error) {
	if len(delta) < minDeltaSize {
		return 0, 0, plumbing.NewFormatError(ErrInvalidDelta)
	}
	baseSz, delta = decodeLEB128(delta)
	if len(delta) == 0 {
		return 0, 0, plumbing.NewFormatError(
			ErrInvalidDelta.AddDetails("truncated result length header"))
	}
	targetSz, _ = decodeLEB128(delta)
	return baseSz, targetSz, nil
}

func isCopyFromSrc(cmd byte) bool {
	return (cmd & maskContinue) != 0
}

func isInsertFromDelta(cmd byte) bool {
	return (cmd&maskContinue) == 0 && cmd != 0
}

// decodeLEB128 decodes a little-endian base-128 length from the head
// of d, returning the value and the remaining bytes.
func decodeLEB128(d []byte) (uint, []byte) {
	if len(d) == 0 {
		return 0, d
	}

	var num, sz uint
	var b byte
	for {
		b = d[sz]
		num |= (uint(b) & uint(maskLength)) << (sz * uint(lengthBits))
		sz++

		if uint(b)&uint(maskContinue) == 0 || sz == uint(len(d)) {
			break
		}
	}

	return num, d[sz:]
}

func decodeOffset(cmd byte, delta []byte) (uint, []byte, error) {
	var offset uint
	for _, o := range offsets {
		if (cmd & o.mask) != 0 {
			if len(delta) == 0 {
				return 0, nil, plumbing.NewFormatError(ErrInvalidDelta.AddDetails("truncated copy offset"))
			}
			offset |= uint(delta[0]) << o.shift
			delta = delta[1:]
		}
	}

	return offset, delta, nil
}

func decodeSize(cmd byte, delta []byte) (uint, []byte, error) {
	var sz uint
	for _, s := range sizes {
		if (cmd & s.mask) != 0 {
			if len(delta) == 0 {
				return 0, nil, plumbing.NewFormatError(ErrInvalidDelta.AddDetails("truncated copy size"))
			}
			sz |= uint(delta[0]) << s.shift
			delta = delta[1:]
		}
	}
	if sz == 0 {
		sz = maxCopySize
	}

	return sz, delta, nil
}

func sumOverflows(a, b uint) bool {
	return a+b < a
}
