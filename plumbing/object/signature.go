package object

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// Signature is the author or committer line of a commit or tag: who,
// with which email, and when, with the timezone encoded as a fixed
// "±HHMM" offset.
type Signature struct {
	// Name represents a person name. It is an arbitrary string.
	Name string
	// Email is an email, but it cannot be assumed to be well-formed.
	Email string
	// When is the timestamp of the signature.
	When time.Time
}

// Decode decodes a byte slice into a signature:
//
//	Name <email> 1678102132 +0800
func (s *Signature) Decode(b []byte) error {
	open := bytes.LastIndexByte(b, '<')
	close_ := bytes.LastIndexByte(b, '>')
	if open == -1 || close_ == -1 || close_ < open {
		return fmt.Errorf("malformed signature %q", b)
	}

	s.Name = string(bytes.TrimSpace(b[:open]))
	s.Email = string(b[open+1 : close_])

	rest := bytes.TrimSpace(b[close_+1:])
	if len(rest) == 0 {
		// Timestamps are optional on historical tags.
		return nil
	}

	ts, zone, _ := bytes.Cut(rest, []byte{' '})

	seconds, err := strconv.ParseInt(string(ts), 10, 64)
	if err != nil {
		return fmt.Errorf("malformed signature timestamp %q: %w", ts, err)
	}

	loc := time.UTC
	if len(zone) == 5 {
		hours, herr := strconv.Atoi(string(zone[1:3]))
		minutes, merr := strconv.Atoi(string(zone[3:5]))
		if herr == nil && merr == nil {
			offset := (hours*60 + minutes) * 60
			if zone[0] == '-' {
				offset = -offset
			}
			loc = time.FixedZone(string(zone), offset)
		}
	}

	s.When = time.Unix(seconds, 0).In(loc)
	return nil
}

// Encode serializes the signature in its canonical form.
func (s *Signature) Encode() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s <%s> %d %s",
		s.Name, s.Email, s.When.Unix(), s.When.Format("-0700"))
	return buf.Bytes()
}

func (s *Signature) String() string {
	return fmt.Sprintf("%s <%s>", s.Name, s.Email)
}
