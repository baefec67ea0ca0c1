package inject

// queue is a FIFO of bytes backed by a single slice. Drained prefixes are
// reclaimed lazily once they make up at least half of the backing array.
type queue struct {
	buf  []byte
	head int
}

func (q *queue) Len() int {
	return len(q.buf) - q.head
}

func (q *queue) push(c byte) {
	q.compact()
	q.buf = append(q.buf, c)
}

func (q *queue) pushSlice(p []byte) {
	if len(p) == 0 {
		return
	}
	q.compact()
	q.buf = append(q.buf, p...)
}

// drainTo copies the oldest queued bytes into dst and removes them.
func (q *queue) drainTo(dst []byte) int {
	if q.Len() == 0 {
		return 0
	}

	n := copy(dst, q.buf[q.head:])
	q.head += n

	if q.head == len(q.buf) {
		q.buf = q.buf[:0]
		q.head = 0
	}

	return n
}

func (q *queue) compact() {
	if q.head == 0 || q.head < cap(q.buf)/2 {
		return
	}
	n := copy(q.buf, q.buf[q.head:])
	q.buf = q.buf[:n]
	q.head = 0
}
