// Package inject implements a streaming filter that inserts a script payload
// immediately after an HTML tag marker in a chunked byte stream.
//
// The filter is written against a fixed size output buffer. Bytes that do not
// fit are queued and drained at the start of the next call, so a caller feeding
// chunks of arbitrary alignment into buffers of arbitrary size observes exactly
// the original stream with the payload spliced in after the marker:
//
//	┌──────────┐   ┌──────────────────────┐   ┌────────────┐
//	│ in chunk │──▶│ drain queue, scan in │──▶│ out buffer │
//	└──────────┘   └──────────────────────┘   └────────────┘
//	                      │          ▲
//	                      ▼          │
//	                  ┌────────────────┐
//	                  │ overflow queue │
//	                  └────────────────┘
//
// Callers must keep calling Filter, with an empty chunk if the source is
// exhausted, until it reports Done. Stopping early silently truncates the
// stream or the injected payload.
package inject

// Status reports whether a Filter has finished all the output it owes.
type Status int

const (
	// Done means no bytes are queued and no marker match is in progress.
	Done Status = iota

	// NeedMoreData means bytes are queued or a marker match is in progress;
	// the caller must call Filter again.
	NeedMoreData
)

func (s Status) String() string {
	if s == NeedMoreData {
		return "need_more_data"
	}
	return "done"
}

// Filter is a resumable content-injection transform. It is not safe for
// concurrent use: each stream owns its own Filter.
type Filter struct {
	marker  []byte
	payload []byte
	nonce   string
	policy  Policy
	limit   int

	// offset counts marker bytes matched contiguously so far.
	offset   int
	overflow queue

	injections int
	exhausted  bool
}

// Option configures a Filter created with New.
type Option func(*Filter)

// WithLocation selects the marker the payload follows. Unknown locations
// fall back to LocationHead.
func WithLocation(l Location) Option {
	return func(f *Filter) {
		f.marker = l.Marker()
	}
}

// WithPolicy sets how many markers trigger an injection.
func WithPolicy(p Policy) Option {
	return func(f *Filter) {
		f.policy = p
	}
}

// WithOverflowLimit caps the overflow queue. While n or more bytes are queued
// Filter stops consuming input and the caller must present the unconsumed
// remainder again. Zero or negative means unbounded.
func WithOverflowLimit(n int) Option {
	return func(f *Filter) {
		if n < 0 {
			n = 0
		}
		f.limit = n
	}
}

// WithNonce adds a nonce attribute to the injected script element.
func WithNonce(nonce string) Option {
	return func(f *Filter) {
		f.nonce = nonce
	}
}

// New creates a Filter injecting source, wrapped in a script element.
func New(source string, opts ...Option) *Filter {
	f := &Filter{
		marker: headMarker,
		policy: InjectEvery,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.payload = NewPayload(source, f.nonce)

	return f
}

// Filter transforms one chunk. It first drains queued bytes into out, then
// copies in to out byte by byte, queueing what does not fit and injecting the
// payload after each completed marker. It returns the number of bytes of in
// consumed, the number of bytes written to out, and the resulting status.
func (f *Filter) Filter(in, out []byte) (consumed, written int, status Status) {
	written = f.overflow.drainTo(out)

	for consumed < len(in) {
		if f.limit > 0 && f.overflow.Len() >= f.limit {
			break
		}

		c := in[consumed]
		consumed++

		if written < len(out) {
			out[written] = c
			written++
		} else {
			f.overflow.push(c)
		}

		if f.exhausted {
			continue
		}

		if toLower(c) != f.marker[f.offset] {
			f.offset = 0
			continue
		}

		f.offset++
		if f.offset == len(f.marker) {
			f.offset = 0
			written += f.inject(out[written:])
		}
	}

	return consumed, written, f.status()
}

// inject writes as much of the payload as fits in dst and queues the rest.
func (f *Filter) inject(dst []byte) int {
	n := copy(dst, f.payload)
	f.overflow.pushSlice(f.payload[n:])

	f.injections++
	if f.policy == InjectFirst {
		f.exhausted = true
	}

	return n
}

func (f *Filter) status() Status {
	if f.overflow.Len() > 0 || f.offset > 0 {
		return NeedMoreData
	}
	return Done
}

// Buffered returns the number of queued bytes not yet written to an output
// buffer.
func (f *Filter) Buffered() int {
	return f.overflow.Len()
}

// Injections returns how many times the payload has been injected.
func (f *Filter) Injections() int {
	return f.injections
}

// Payload returns a copy of the bytes injected after a marker.
func (f *Filter) Payload() []byte {
	p := make([]byte, len(f.payload))
	copy(p, f.payload)
	return p
}

// Marker returns the tag text the filter matches.
func (f *Filter) Marker() string {
	return string(f.marker)
}

// Close releases nothing; it exists so a Filter can be handled as an
// io.Closer by hosts that tear filters down explicitly.
func (f *Filter) Close() error {
	return nil
}

func toLower(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
