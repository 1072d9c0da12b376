// Package object implements decoding of the payloads of the higher
// level object types: tree entries and commit headers. The packfile
// layer treats payloads as opaque bytes; this package is the first one
// that looks inside them.
package object

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/quarry-scm/quarry/plumbing"
)

// ErrMalformedObject is returned when an object payload cannot be
// decoded as its declared type.
var ErrMalformedObject = errors.New("malformed object payload")

// FileMode is the mode of a tree entry, in the octal form git uses on
// the wire.
type FileMode uint32

// Tree entry modes.
const (
	ModeBlob       FileMode = 0o100644
	ModeExecutable FileMode = 0o100755
	ModeSymlink    FileMode = 0o120000
	ModeTree       FileMode = 0o040000
	// ModeSubmodule marks a commit object inside a tree: a submodule
	// reference.
	ModeSubmodule FileMode = 0o160000
)

// Valid returns true for the modes git will accept inside a tree.
func (m FileMode) Valid() bool {
	switch m {
	case ModeBlob, ModeExecutable, ModeSymlink, ModeTree, ModeSubmodule:
		return true
	default:
		return false
	}
}

func (m FileMode) String() string {
	return strconv.FormatUint(uint64(m), 8)
}

// TreeEntry is one item of a tree: a mode, a name and the id of the
// entry's object.
type TreeEntry struct {
	Mode FileMode
	Name string
	ID   plumbing.ObjectID
}

// Tree is the decoded form of a tree object payload.
type Tree struct {
	Entries []TreeEntry
}

// DecodeTree decodes a tree payload. Entries are sequences of
// "<octal mode> <name>\x00<raw id>", with the id width given by the
// object format.
func DecodeTree(payload []byte, f plumbing.ObjectFormat) (*Tree, error) {
	t := &Tree{}
	idSize := f.Size()

	rest := payload
	for len(rest) > 0 {
		header, after, ok := bytes.Cut(rest, []byte{0})
		if !ok || len(after) < idSize {
			return nil, fmt.Errorf("%w: truncated tree entry", ErrMalformedObject)
		}

		modeRaw, name, ok := bytes.Cut(header, []byte{' '})
		if !ok || len(name) == 0 {
			return nil, fmt.Errorf("%w: tree entry header %q", ErrMalformedObject, header)
		}

		mode, err := strconv.ParseUint(string(modeRaw), 8, 32)
		if err != nil || !FileMode(mode).Valid() {
			return nil, fmt.Errorf("%w: tree entry mode %q", ErrMalformedObject, modeRaw)
		}

		id, ok := plumbing.FromBytes(after[:idSize])
		if !ok {
			return nil, fmt.Errorf("%w: tree entry id", ErrMalformedObject)
		}

		t.Entries = append(t.Entries, TreeEntry{
			Mode: FileMode(mode),
			Name: string(name),
			ID:   id,
		})

		rest = after[idSize:]
	}

	return t, nil
}

// Encode serializes the tree in its canonical form, with entries in
// git's tree order: byte-wise by name, directories compared as if
// their name ended in "/".
func (t *Tree) Encode() []byte {
	entries := make([]TreeEntry, len(t.Entries))
	copy(entries, t.Entries)
	sort.Slice(entries, func(i, j int) bool {
		return sortName(entries[i]) < sortName(entries[j])
	})

	var buf bytes.Buffer
	for _, e := range entries {
		fmt.Fprintf(&buf, "%o %s\x00", uint32(e.Mode), e.Name)
		buf.Write(e.ID.Bytes())
	}
	return buf.Bytes()
}

// Find returns the entry with the given name, if present.
func (t *Tree) Find(name string) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeEntry{}, false
}

func sortName(e TreeEntry) string {
	if e.Mode == ModeTree {
		return e.Name + "/"
	}
	return e.Name
}
