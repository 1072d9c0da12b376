package packfile

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"math"
	"sync"

	"github.com/quarry-scm/quarry/plumbing"
	qhash "github.com/quarry-scm/quarry/plumbing/hash"
	"github.com/quarry-scm/quarry/utils/binary"
	gitsync "github.com/quarry-scm/quarry/utils/sync"
	"github.com/quarry-scm/quarry/utils/trace"
)

var (
	// ErrEmptyPackfile is returned when no data is found in the packfile.
	ErrEmptyPackfile = NewError("empty packfile")
	// ErrBadSignature is returned when the signature in the packfile is incorrect.
	ErrBadSignature = NewError("malformed pack file signature")
	// ErrMalformedPackfile is returned when the packfile format is incorrect.
	ErrMalformedPackfile = NewError("malformed pack file")
	// ErrUnsupportedVersion is returned when the packfile version is
	// different than V2.
	ErrUnsupportedVersion = NewError("unsupported packfile version")
	// ErrChecksumMismatch is returned when the trailing checksum does not
	// match the hash of the preceding pack bytes.
	ErrChecksumMismatch = NewError("checksum mismatch")
)

// Scanner provides sequential access to the data stored in a Git packfile.
//
// A Git packfile is a compressed binary format that stores multiple Git
// objects, some of them as deltas against other objects in the same
// stream. Packfiles are used to reduce the size of data when
// transferring or storing Git repositories.
//
// A Git packfile is structured as follows:
//
//	+----------------------------------------------------+
//	|                 PACK File Header                   |
//	+----------------------------------------------------+
//	| "PACK"  | Version Number | Number of Objects       |
//	| (4 bytes)  |  (4 bytes)   |    (4 bytes)           |
//	+----------------------------------------------------+
//	|                  Object Entry #1                   |
//	+----------------------------------------------------+
//	|  Object Header  |  Compressed Object Data / Delta  |
//	| (type + size)   |  (var-length, zlib compressed)   |
//	+----------------------------------------------------+
//	|                         ...                        |
//	+----------------------------------------------------+
//	|                  PACK File Footer                  |
//	+----------------------------------------------------+
//	|     Checksum of preceding bytes (20/32 bytes)      |
//	+----------------------------------------------------+
//
// For upstream docs, refer to https://git-scm.com/docs/gitformat-pack.
//
// The sequence produced by Scan is finite and non-restartable: the
// scanner consumes the underlying stream as it goes.
type Scanner struct {
	// version holds the packfile version.
	version Version
	// objects holds the quantity of objects within the packfile.
	objects uint32
	// objIndex is the current index when going through the packfile objects.
	objIndex int
	// format is the object addressing format of the repository the
	// pack belongs to.
	format plumbing.ObjectFormat
	// hasher is used to hash non-delta objects.
	hasher *plumbing.Hasher
	// crc is used to generate the CRC-32 checksum of each object's content.
	crc hash.Hash32
	// packhash hashes the pack contents so that at the end it is able
	// to validate the packfile's footer checksum against the
	// calculated hash.
	packhash hash.Hash

	// nextFn holds what state function should be executed on the next
	// call to Scan().
	nextFn stateFn
	// packData holds the data for the last successful call to Scan().
	packData PackData
	// err holds the first error that occurred.
	err error

	m sync.Mutex

	*scannerReader
}

// NewScanner creates a new instance of Scanner over the given pack
// stream.
func NewScanner(rs io.Reader, opts ...ScannerOption) *Scanner {
	crc := crc32.NewIEEE()

	r := &Scanner{
		objIndex: -1,
		format:   plumbing.SHA1,
		crc:      crc,
		nextFn:   packHeaderSignature,
	}

	for _, opt := range opts {
		opt(r)
	}

	r.hasher = plumbing.NewHasher(r.format)
	r.packhash = qhash.New(r.format.CryptoHash())
	r.scannerReader = newScannerReader(rs, io.MultiWriter(crc, r.packhash))

	return r
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithObjectFormat sets the object addressing format the scanner uses
// for hashing objects and for the footer checksum. Defaults to SHA1.
func WithObjectFormat(f plumbing.ObjectFormat) ScannerOption {
	return func(s *Scanner) {
		s.format = f
	}
}

// Scan scans a Packfile sequently. Each call will navigate from a
// section to the next, until the entire stream is read.
//
// The section data can be accessed via calls to Data(). Example:
//
//	for scanner.Scan() {
//	    v := scanner.Data().Value()
//
//		switch scanner.Data().Section {
//		case HeaderSection:
//			header := v.(Header)
//			fmt.Println("[Header] Objects Qty:", header.ObjectsQty)
//		case EntrySection:
//			entry := v.(Entry)
//			fmt.Println("[Entry] Object Type:", entry.Type)
//		case FooterSection:
//			checksum := v.(plumbing.ObjectID)
//			fmt.Println("[Footer] Checksum:", checksum)
//		}
//	}
func (r *Scanner) Scan() bool {
	r.m.Lock()
	defer r.m.Unlock()

	if r.err != nil || r.nextFn == nil {
		return false
	}

	if err := scan(r); err != nil {
		r.err = err
		return false
	}

	return true
}

// Data returns the pack data based on the last call to Scan().
func (r *Scanner) Data() PackData {
	return r.packData
}

// Error returns the first error that occurred on the last call to
// Scan(). Once an error occurs, calls to Scan() become a no-op.
func (r *Scanner) Error() error {
	return r.err
}

// Objects returns the quantity of objects declared by the pack header.
func (r *Scanner) Objects() uint32 {
	return r.objects
}

// scan goes through the next stateFn.
//
// State functions are chained by returning a non-nil value for stateFn.
// In such cases, the returned stateFn will be called immediately after
// the current func.
func scan(r *Scanner) error {
	var err error
	for state := r.nextFn; state != nil; {
		state, err = state(r)
		if err != nil {
			return err
		}
	}
	return nil
}

// stateFn defines each individual state within the state machine that
// represents a packfile.
type stateFn func(*Scanner) (stateFn, error)

// packHeaderSignature validates the packfile's header signature and
// returns a FormatError wrapping [ErrBadSignature] if the value
// provided is invalid.
//
// This is always the first state of a packfile and starts the chain
// that handles the entire packfile header.
func packHeaderSignature(r *Scanner) (stateFn, error) {
	start := make([]byte, 4)
	_, err := io.ReadFull(r, start)
	if err != nil {
		if err == io.EOF {
			return nil, plumbing.NewFormatError(ErrEmptyPackfile)
		}
		return nil, plumbing.NewFormatError(fmt.Errorf("%w: %w", ErrBadSignature, err))
	}

	if bytes.Equal(start, signature) {
		return packVersion, nil
	}

	return nil, plumbing.NewFormatError(ErrBadSignature)
}

// packVersion parses the packfile version. It fails with
// [ErrMalformedPackfile] when the version cannot be parsed, and with
// [ErrUnsupportedVersion] when a valid but unsupported version is
// found.
func packVersion(r *Scanner) (stateFn, error) {
	version, err := binary.ReadUint32(r.scannerReader)
	if err != nil {
		return nil, plumbing.NewFormatError(fmt.Errorf("%w: cannot read version", ErrMalformedPackfile))
	}

	v := Version(version)
	if !v.Supported() {
		return nil, plumbing.NewFormatError(ErrUnsupportedVersion)
	}

	r.version = v
	return packObjectsQty, nil
}

// packObjectsQty parses the quantity of objects that the packfile
// contains. If the value cannot be parsed, [ErrMalformedPackfile] is
// returned.
//
// This state ends the packfile header chain.
func packObjectsQty(r *Scanner) (stateFn, error) {
	qty, err := binary.ReadUint32(r.scannerReader)
	if err != nil {
		return nil, plumbing.NewFormatError(fmt.Errorf("%w: cannot read number of objects", ErrMalformedPackfile))
	}

	r.objects = qty
	r.packData = PackData{
		Section: HeaderSection,
		header:  Header{Version: r.version, ObjectsQty: r.objects},
	}
	if qty == 0 {
		r.nextFn = packFooter
	} else {
		r.nextFn = packEntry
	}

	return nil, nil
}

// packEntry handles the object entries within a packfile: the object
// header (type, size and base reference for deltas) followed by the
// zlib-compressed payload, which is inflated and size-checked against
// the declared length.
func packEntry(r *Scanner) (stateFn, error) {
	if r.objIndex+1 >= int(r.objects) {
		return packFooter, nil
	}
	r.objIndex++

	offset := r.scannerReader.offset

	r.scannerReader.Flush()
	r.crc.Reset()

	b, err := r.ReadByte()
	if err != nil {
		return nil, plumbing.NewFormatError(fmt.Errorf("%w: truncated entry header", ErrMalformedPackfile))
	}

	typ := parseType(b)
	if !typ.Valid() {
		return nil, plumbing.NewFormatError(fmt.Errorf("%w: invalid object type: %v", ErrMalformedPackfile, b))
	}

	size, err := readVariableLengthSize(b, r)
	if err != nil {
		return nil, plumbing.NewFormatError(fmt.Errorf("%w: truncated entry size", ErrMalformedPackfile))
	}
	if size > math.MaxInt64 {
		return nil, plumbing.NewFormatError(fmt.Errorf("%w: declared size %d overflows", ErrMalformedPackfile, size))
	}

	entry := Entry{
		Offset: offset,
		Type:   typ,
		Size:   int64(size),
	}

	switch typ {
	case plumbing.OFSDeltaObject:
		distance, err := binary.ReadVariableWidthInt(r.scannerReader)
		if err != nil {
			return nil, plumbing.NewFormatError(fmt.Errorf("%w: truncated base offset", ErrMalformedPackfile))
		}
		entry.BaseOffset = entry.Offset - distance
		if distance <= 0 || entry.BaseOffset < 0 {
			return nil, plumbing.NewFormatError(fmt.Errorf("%w: invalid base offset distance %d", ErrMalformedPackfile, distance))
		}

	case plumbing.REFDeltaObject:
		ref := plumbing.NewObjectID(r.format, nil)
		if _, err := ref.ReadFrom(r.scannerReader); err != nil {
			return nil, plumbing.NewFormatError(fmt.Errorf("%w: truncated base reference", ErrMalformedPackfile))
		}
		entry.BaseRef = ref
	}

	entry.Payload, err = r.inflate(int64(size))
	if err != nil {
		return nil, err
	}

	if !typ.IsDelta() {
		entry.Hash, err = r.hasher.Compute(typ, entry.Payload)
		if err != nil {
			return nil, err
		}
	}

	r.scannerReader.Flush()
	entry.CRC32 = r.crc.Sum32()

	trace.Pack.Printf("packfile: scanned %s entry at offset %d (%d bytes)",
		entry.Type, entry.Offset, entry.Size)

	r.packData.Section = EntrySection
	r.packData.entry = entry

	return nil, nil
}

// maxInflatePrealloc caps how much inflate pre-allocates from the
// declared entry size. The declared size is untrusted until the
// payload actually inflates to it, so larger buffers grow as bytes
// arrive.
const maxInflatePrealloc = 1024 * 1024

// inflate reads one zlib stream from the scanner and returns its
// contents, which must inflate to exactly size bytes.
func (r *Scanner) inflate(size int64) ([]byte, error) {
	zr, err := gitsync.GetZlibReader(r.scannerReader)
	if err != nil {
		return nil, plumbing.NewFormatError(fmt.Errorf("%w: zlib reset error: %s", ErrMalformedPackfile, err))
	}
	defer gitsync.PutZlibReader(zr)

	var buf bytes.Buffer
	buf.Grow(int(min(size, maxInflatePrealloc)))

	// Read one byte over the declared size to detect payloads that
	// inflate beyond it.
	n, err := io.Copy(&buf, io.LimitReader(zr.Reader, size+1))
	if err != nil {
		return nil, plumbing.NewFormatError(fmt.Errorf("%w: %s", ErrMalformedPackfile, err))
	}

	if n != size {
		return nil, plumbing.NewFormatError(
			fmt.Errorf("%w: inflated size %d does not match declared size %d", ErrMalformedPackfile, n, size))
	}

	return buf.Bytes(), nil
}

// packFooter parses the packfile checksum. [ErrMalformedPackfile] is
// returned when the checksum cannot be read; a checksum that does not
// match the hash calculated during the scanning process fails with an
// IntegrityError wrapping [ErrChecksumMismatch].
func packFooter(r *Scanner) (stateFn, error) {
	r.scannerReader.Flush()
	actual := r.packhash.Sum(nil)

	checksum := plumbing.NewObjectID(r.format, nil)
	if _, err := checksum.ReadFrom(r.scannerReader); err != nil {
		return nil, plumbing.NewFormatError(fmt.Errorf("%w: cannot read pack checksum", ErrMalformedPackfile))
	}

	if checksum.Compare(actual) != 0 {
		return nil, plumbing.NewIntegrityError(fmt.Errorf("%w: expected %q but found %q",
			ErrChecksumMismatch, hex.EncodeToString(actual), checksum))
	}

	r.packData.Section = FooterSection
	r.packData.checksum = checksum
	r.nextFn = nil

	return nil, nil
}

func readVariableLengthSize(first byte, reader io.ByteReader) (uint64, error) {
	// Extract the first part of the size (last 4 bits of the first byte).
	size := uint64(first & maskFirstLength)

	// |  0xxxyyyy | xxxxxxxx | xxxxxxxx | ...
	//
	//	  ^^^ ^^^^   ^^^^^^^^   ^^^^^^^^
	//	 Type Size    Part 2      Part 3
	//
	// Check if more bytes are needed to fully determine the size.
	if first&maskContinue != 0 {
		shift := uint(firstLengthBits)

		for {
			b, err := reader.ReadByte()
			if err != nil {
				return 0, err
			}

			// Add the next 7 bits to the size.
			size |= uint64(b&maskLength) << shift

			// Check if the continuation bit is set.
			if b&maskContinue == 0 {
				break
			}

			shift += uint(lengthBits)
		}
	}
	return size, nil
}

func parseType(b byte) plumbing.ObjectType {
	return plumbing.ObjectType((b & maskType) >> firstLengthBits)
}
