package otlpmmap

// RingWriter is the producer side of one ring buffer section. It is safe to
// share among goroutines of the writer process (the writer lock admits one
// writer process per file): claims are serialized by CAS on writer_index,
// bodies land in disjoint slots, publication is an independent release
// store per slot.
//
// The append path performs no allocation.
type RingWriter struct {
	ring
}

// TryClaim reserves the next monotonic slot index if the ring has capacity,
// otherwise fails with ErrRingFull. Every successful claim MUST be followed
// by Publish for the same index: an unpublished claim permanently blocks the
// reader at that index.
//
// Most callers want TryAppend or Append instead.
func (w *RingWriter) TryClaim() (int64, error) {
	for {
		wi := w.seg.loadI64(w.off + ringOffWriterIndex)
		candidate := wi + 1
		ri := w.seg.loadI64Acq(w.off + ringOffReaderIndex)
		if candidate-ri > int64(w.slots) {
			return 0, ErrRingFull
		}
		if w.seg.casI64(w.off+ringOffWriterIndex, wi, candidate) {
			return candidate, nil
		}
		// Lost the race to another producer; take a fresh view.
	}
}

// ClaimBlocking retries TryClaim under the wait strategy until capacity
// appears. A nil strategy spin-yields forever; a strategy that gives up
// surfaces ErrTimeout. The obligations of TryClaim apply: the returned
// index MUST be published.
func (w *RingWriter) ClaimBlocking(ws WaitStrategy) (int64, error) {
	if ws == nil {
		ws = defaultWait
	}
	for spin := 0; ; spin++ {
		i, err := w.TryClaim()
		if err == nil || !IsRetryable(err) {
			return i, err
		}
		if !ws.Wait(spin) {
			return 0, ErrTimeout
		}
	}
}

// Slot returns the slot bytes for a claimed index, for callers that fill
// bodies in place before Publish. The bytes are only owned between TryClaim
// and Publish of the same index.
func (w *RingWriter) Slot(i int64) []byte {
	return w.slot(i)
}

// Publish marks a claimed slot readable. The release store on the
// availability cell orders every preceding body write before the reader's
// matching acquire load.
func (w *RingWriter) Publish(i int64) {
	w.seg.store32Rel(w.availCell(i), w.generation(i))
}

// TryAppend claims a slot, frames p into it and publishes it. It fails with
// ErrRingFull on saturation and ErrPayloadTooLarge when p cannot be framed
// into one slot; both are checked before any slot is claimed, so a failed
// TryAppend leaves the ring untouched.
func (w *RingWriter) TryAppend(p []byte) error {
	var prefix int
	switch w.framing {
	case FramingFixed:
		if uint64(len(p)) != w.slotSize {
			return errf(CodePayloadTooLarge, "fixed-body ring takes exactly %d bytes, got %d", w.slotSize, len(p))
		}
	case FramingVarint:
		prefix = uvarintLen(uint64(len(p)))
		if uint64(prefix+len(p)) > w.slotSize {
			return errf(CodePayloadTooLarge, "encoded size %d exceeds slot size %d", prefix+len(p), w.slotSize)
		}
	}

	i, err := w.TryClaim()
	if err != nil {
		return err
	}

	slot := w.slot(i)
	if w.framing == FramingVarint {
		n := putUvarint(slot, uint64(len(p)))
		copy(slot[n:], p)
	} else {
		copy(slot, p)
	}

	w.Publish(i)
	return nil
}

// Append is TryAppend with blocking on saturation: it retries under the wait
// strategy until capacity appears. A nil strategy spin-yields forever; a
// strategy that gives up surfaces ErrTimeout. Non-saturation failures
// propagate immediately.
func (w *RingWriter) Append(p []byte, ws WaitStrategy) error {
	if ws == nil {
		ws = defaultWait
	}
	for spin := 0; ; spin++ {
		err := w.TryAppend(p)
		if err == nil || !IsRetryable(err) {
			return err
		}
		if !ws.Wait(spin) {
			return ErrTimeout
		}
	}
}
