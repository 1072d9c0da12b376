package packfile

import (
	"bufio"
	"io"
)

// scannerReader has the following characteristics:
//   - Keeps track of the current read position within the stream.
//   - Writes to the hash writer what it reads, with the aid of a
//     smaller buffer. The buffer helps avoid a performance penalty for
//     performing small writes to the crc32 hash writer.
//   - Implements io.ByteReader, which the zlib inflater requires so
//     that it does not read past the end of an entry's compressed data.
//
// scannerReader is not thread-safe.
type scannerReader struct {
	reader io.Reader
	hash   io.Writer
	rbuf   *bufio.Reader
	wbuf   *bufio.Writer
	offset int64
}

func newScannerReader(r io.Reader, h io.Writer) *scannerReader {
	sr := &scannerReader{
		rbuf: bufio.NewReader(nil),
		wbuf: bufio.NewWriterSize(nil, 64),
		hash: h,
	}
	sr.Reset(r)

	return sr
}

func (r *scannerReader) Reset(reader io.Reader) {
	r.reader = reader
	r.rbuf.Reset(r.reader)
	r.wbuf.Reset(r.hash)
	r.offset = 0
}

func (r *scannerReader) Read(p []byte) (n int, err error) {
	n, err = r.rbuf.Read(p)

	r.offset += int64(n)
	if _, err := r.wbuf.Write(p[:n]); err != nil {
		return n, err
	}
	return
}

func (r *scannerReader) ReadByte() (b byte, err error) {
	b, err = r.rbuf.ReadByte()
	if err == nil {
		r.offset++
		return b, r.wbuf.WriteByte(b)
	}
	return
}

func (r *scannerReader) Flush() error {
	return r.wbuf.Flush()
}
