package object

import (
	"bufio"
	"bytes"
	"fmt"

	"github.com/quarry-scm/quarry/plumbing"
)

// Commit is the decoded form of a commit object payload: the tree it
// snapshots, its parents, the two signatures and the message.
type Commit struct {
	Tree      plumbing.ObjectID
	Parents   []plumbing.ObjectID
	Author    Signature
	Committer Signature
	Message   string
}

// DecodeCommit decodes a commit payload:
//
//	tree <id>
//	parent <id>
//	...
//	author Name <email> ts ±zone
//	committer Name <email> ts ±zone
//
//	message
//
// Unknown header lines (gpgsig, encoding, ...) are skipped, including
// their continuation lines.
func DecodeCommit(payload []byte, f plumbing.ObjectFormat) (*Commit, error) {
	c := &Commit{}
	r := bufio.NewReader(bytes.NewReader(payload))

	var message bytes.Buffer
	inHeaders := true
	for {
		line, err := r.ReadBytes('\n')
		if len(line) == 0 && err != nil {
			break
		}

		if !inHeaders {
			message.Write(line)
			continue
		}

		line = bytes.TrimRight(line, "\n")
		if len(line) == 0 {
			inHeaders = false
			continue
		}

		// Continuation of a multi-line header, e.g. gpgsig.
		if line[0] == ' ' {
			continue
		}

		key, value, ok := bytes.Cut(line, []byte{' '})
		if !ok {
			return nil, fmt.Errorf("%w: commit header %q", ErrMalformedObject, line)
		}

		switch string(key) {
		case "tree":
			id, idOK := plumbing.FromHex(string(value))
			if !idOK || id.Format() != f {
				return nil, fmt.Errorf("%w: commit tree id %q", ErrMalformedObject, value)
			}
			c.Tree = id

		case "parent":
			id, idOK := plumbing.FromHex(string(value))
			if !idOK || id.Format() != f {
				return nil, fmt.Errorf("%w: commit parent id %q", ErrMalformedObject, value)
			}
			c.Parents = append(c.Parents, id)

		case "author":
			if err := c.Author.Decode(value); err != nil {
				return nil, fmt.Errorf("%w: %s", ErrMalformedObject, err)
			}

		case "committer":
			if err := c.Committer.Decode(value); err != nil {
				return nil, fmt.Errorf("%w: %s", ErrMalformedObject, err)
			}
		}
	}

	if c.Tree.IsZero() {
		return nil, fmt.Errorf("%w: commit without tree header", ErrMalformedObject)
	}

	c.Message = message.String()
	return c, nil
}

// Encode serializes the commit in its canonical form.
func (c *Commit) Encode() []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "tree %s\n", c.Tree)
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	fmt.Fprintf(&buf, "author %s\n", c.Author.Encode())
	fmt.Fprintf(&buf, "committer %s\n", c.Committer.Encode())
	buf.WriteByte('\n')
	buf.WriteString(c.Message)

	return buf.Bytes()
}
