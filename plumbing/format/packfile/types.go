package packfile

import (
	"github.com/quarry-scm/quarry/plumbing"
)

// Version represents the packfile version.
type Version uint32

// Packfile versions.
const (
	V2 Version = 2
)

// Supported returns true if the version is supported.
func (v Version) Supported() bool {
	switch v {
	case V2:
		return true
	default:
		return false
	}
}

// Entry is one record inside a pack stream: either a base object with
// its inflated payload, or a delta carrying an inflated instruction
// stream plus a base reference (backward offset or object id).
//
// Entries are transient, scoped to a single decode pass.
type Entry struct {
	// Offset is the position in the pack stream where the entry starts.
	Offset int64
	// Type is the object type declared on the wire, including the two
	// delta types.
	Type plumbing.ObjectType
	// Size is the declared inflated size of Payload.
	Size int64
	// BaseOffset is the absolute pack offset of the base entry, set
	// only for OFSDeltaObject entries.
	BaseOffset int64
	// BaseRef is the id of the base object, set only for
	// REFDeltaObject entries.
	BaseRef plumbing.ObjectID
	// Payload holds the inflated bytes: object content for base
	// entries, the delta instruction stream for delta entries.
	Payload []byte
	// Hash is the object id, set only for non-delta entries.
	Hash plumbing.ObjectID
	// CRC32 is the checksum over the entry's raw pack bytes.
	CRC32 uint32
}

// IsDelta returns true when the entry needs a base to be reconstructed.
func (e *Entry) IsDelta() bool {
	return e.Type.IsDelta()
}

// SectionType represents the type of section in a packfile.
type SectionType int

// Section types.
const (
	HeaderSection SectionType = iota
	EntrySection
	FooterSection
)

// Header represents the packfile header.
type Header struct {
	Version    Version
	ObjectsQty uint32
}

// PackData represents the data returned by the scanner.
type PackData struct {
	Section  SectionType
	header   Header
	entry    Entry
	checksum plumbing.ObjectID
}

// Value returns the value of the PackData based on its section type.
func (p PackData) Value() interface{} {
	switch p.Section {
	case HeaderSection:
		return p.header
	case EntrySection:
		return p.entry
	case FooterSection:
		return p.checksum
	default:
		return nil
	}
}
