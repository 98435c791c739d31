package otlpmmap

// RingReader is the consumer side of one ring buffer section. At most one
// reader may consume a ring; sharing a RingReader between goroutines is
// forbidden by contract (reader_index has a single owner).
type RingReader struct {
	ring
	h *Reader
}

// TryNext returns the next readable body, if one is published. ok is false
// when the ring is drained. The returned bytes are a view into the mapped
// slot; they are owned by the caller only until Advance passes the returned
// index, after which a writer may reuse the slot.
//
// TryNext fails with ErrVersionMismatch once the file's epoch no longer
// matches the handle's; the caller must Reset the Reader and start over.
func (r *RingReader) TryNext() (body []byte, idx int64, ok bool, err error) {
	if err := r.h.checkEpoch(); err != nil {
		return nil, 0, false, err
	}

	ri := r.seg.loadI64Acq(r.off + ringOffReaderIndex)
	next := ri + 1

	// The slot is readable only once its availability cell carries the
	// generation of this exact wrap; a stale cell means the writer has not
	// published index `next` yet, even if writer_index is far ahead.
	if r.seg.load32Acq(r.availCell(next)) != r.generation(next) {
		return nil, 0, false, nil
	}

	slot := r.slot(next)
	switch r.framing {
	case FramingFixed:
		body = slot
	case FramingVarint:
		l, n, verr := readUvarint(slot)
		if verr != nil {
			return nil, 0, false, verr
		}
		if uint64(n)+l > r.slotSize {
			return nil, 0, false, errf(CodeDecode, "slot %d: length %d overruns slot size %d", next, l, r.slotSize)
		}
		body = slot[n : uint64(n)+l]
	}
	return body, next, true, nil
}

// Advance release-stores reader_index = i, consuming every index up to and
// including i and returning their slots to the writers. i must come from
// TryNext; skipping forward would break FIFO, moving backward is undefined.
func (r *RingReader) Advance(i int64) {
	r.seg.storeI64Rel(r.off+ringOffReaderIndex, i)
}

// Next blocks under the wait strategy until a body is readable. A nil
// strategy spin-yields forever; a strategy that gives up surfaces
// ErrTimeout. The body must be consumed before calling Advance.
func (r *RingReader) Next(ws WaitStrategy) (body []byte, idx int64, err error) {
	if ws == nil {
		ws = defaultWait
	}
	for spin := 0; ; spin++ {
		body, idx, ok, err := r.TryNext()
		if err != nil {
			return nil, 0, err
		}
		if ok {
			return body, idx, nil
		}
		if !ws.Wait(spin) {
			return nil, 0, ErrTimeout
		}
	}
}

// Consume drains every currently readable body through fn, advancing after
// each call. It stops at the first unpublished index and returns the count
// consumed. fn must not retain the body slice.
func (r *RingReader) Consume(fn func(idx int64, body []byte) error) (int, error) {
	n := 0
	for {
		body, idx, ok, err := r.TryNext()
		if err != nil {
			return n, err
		}
		if !ok {
			return n, nil
		}
		if err := fn(idx, body); err != nil {
			return n, err
		}
		r.Advance(idx)
		n++
	}
}
