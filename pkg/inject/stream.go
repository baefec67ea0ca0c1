package inject

import "io"

// DefaultChunkSize is the input chunk and output buffer size used when a
// non-positive size is given to NewReader or NewWriter.
const DefaultChunkSize = 32 * 1024

// Reader pulls chunks from a source io.Reader through a Filter. Each Read
// presents the caller's buffer as the filter's output buffer, so small reads
// exercise the overflow queue and large reads drain it.
type Reader struct {
	src io.Reader
	f   *Filter
	buf []byte

	// in is the unconsumed tail of the last chunk read from src.
	in []byte

	// err is the sticky error returned by src, including io.EOF.
	err error

	bytesIn  int64
	bytesOut int64
}

// NewReader returns a Reader filtering src with f, reading at most chunkSize
// bytes from src at a time.
func NewReader(src io.Reader, f *Filter, chunkSize int) *Reader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	return &Reader{
		src: src,
		f:   f,
		buf: make([]byte, chunkSize),
	}
}

// Read fills p with filtered bytes. It returns the source's error, io.EOF
// included, only once every byte the filter owes has been delivered.
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for {
		if len(r.in) == 0 && r.err == nil {
			n, err := r.src.Read(r.buf)
			r.in = r.buf[:n]
			r.err = err
		}

		consumed, written, _ := r.f.Filter(r.in, p)
		r.in = r.in[consumed:]
		r.bytesIn += int64(consumed)
		r.bytesOut += int64(written)

		if written > 0 {
			return written, nil
		}

		if r.err != nil && len(r.in) == 0 && r.f.Buffered() == 0 {
			return 0, r.err
		}
	}
}

// BytesIn returns the number of source bytes consumed by the filter.
func (r *Reader) BytesIn() int64 {
	return r.bytesIn
}

// BytesOut returns the number of filtered bytes returned to callers.
func (r *Reader) BytesOut() int64 {
	return r.bytesOut
}

// Writer pushes bytes through a Filter into a destination io.Writer using a
// fixed size output buffer.
type Writer struct {
	dst io.Writer
	f   *Filter
	buf []byte

	bytesIn  int64
	bytesOut int64
}

// NewWriter returns a Writer filtering into dst with f. bufSize is the
// capacity of the output buffer handed to the filter on every call.
func NewWriter(dst io.Writer, f *Filter, bufSize int) *Writer {
	if bufSize <= 0 {
		bufSize = DefaultChunkSize
	}

	return &Writer{
		dst: dst,
		f:   f,
		buf: make([]byte, bufSize),
	}
}

// Write filters all of p. Output the filter could not place in the buffer
// stays queued until a later Write or Flush.
func (w *Writer) Write(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		consumed, written, _ := w.f.Filter(p[n:], w.buf)
		n += consumed
		w.bytesIn += int64(consumed)

		if err := w.emit(written); err != nil {
			return n, err
		}
	}

	return n, nil
}

// Flush drains the filter's overflow queue to dst.
func (w *Writer) Flush() error {
	for w.f.Buffered() > 0 {
		_, written, _ := w.f.Filter(nil, w.buf)
		if err := w.emit(written); err != nil {
			return err
		}
	}

	return nil
}

// Close flushes pending output and closes dst if it is an io.Closer.
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}

	if c, ok := w.dst.(io.Closer); ok {
		return c.Close()
	}

	return nil
}

func (w *Writer) emit(n int) error {
	if n == 0 {
		return nil
	}

	written, err := w.dst.Write(w.buf[:n])
	w.bytesOut += int64(written)
	if err != nil {
		return err
	}
	if written < n {
		return io.ErrShortWrite
	}

	return nil
}

// BytesIn returns the number of bytes accepted from callers.
func (w *Writer) BytesIn() int64 {
	return w.bytesIn
}

// BytesOut returns the number of filtered bytes written to dst.
func (w *Writer) BytesOut() int64 {
	return w.bytesOut
}
