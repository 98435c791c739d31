package otlpmmap

// Dict is the producer side of a dictionary section: an append-only log of
// varint-length-prefixed entries identified by their absolute byte offset in
// the file. Offsets are stable for the life of the epoch; entries never move
// and are never compacted.
//
// Append is safe to call from any number of goroutines: space reservation is
// a single wait-free fetch-add on the section's end pointer, after which
// each producer fills its disjoint range. An entry becomes visible to the
// consumer only through the happens-before edge of whatever ring slot
// carries its offset; the dictionary itself publishes nothing.
type Dict struct {
	fm      *fileMapping
	off     uint64 // absolute offset of the section header
	maxSize uint64
}

func initDict(seg segment, off uint64) {
	seg.store64(off+dictOffEnd, off+dictHeaderSize)
	seg.store64(off+dictOffNumEntries, 0)
	for o := off + 16; o < off+dictHeaderSize; o += 8 {
		seg.store64(o, 0)
	}
}

func attachDict(seg segment, off uint64) error {
	end := seg.load64Acq(off + dictOffEnd)
	if end < off+dictHeaderSize {
		return errf(CodeLayoutMismatch, "dictionary at %d: end pointer %d before entry area", off, end)
	}
	return nil
}

// Append reserves space for the length-prefixed entry, writes it, and
// returns the absolute byte offset of its length prefix. The reservation is
// wait-free; only a reservation that outruns the current mapping pays for a
// file extension. Fails with ErrCapacityExceeded when the file cannot grow.
func (d *Dict) Append(p []byte) (uint64, error) {
	var prefix [maxVarintLen]byte
	n := putUvarint(prefix[:], uint64(len(p)))
	total := uint64(n) + uint64(len(p))

	m := d.fm.cur.Load()
	seg := segment{m.Data()}
	base := seg.add64(d.off+dictOffEnd, total)
	end := base + total

	if end > uint64(m.Size()) {
		grown, err := d.fm.grow(end, d.maxSize)
		if err != nil {
			return 0, err
		}
		m = grown
	}

	data := m.Data()
	copy(data[base:], prefix[:n])
	copy(data[base+uint64(n):], p)

	segment{m.Data()}.add64(d.off+dictOffNumEntries, 1)
	return base, nil
}

// End returns the file offset one past the last reserved byte.
func (d *Dict) End() uint64 {
	return d.fm.seg().load64Acq(d.off + dictOffEnd)
}

// NumEntries returns the advisory entry count. It may lag the true count by
// a short window while appends are in flight.
func (d *Dict) NumEntries() uint64 {
	return d.fm.seg().load64Acq(d.off + dictOffNumEntries)
}

// DictReader is the consumer side of a dictionary section.
type DictReader struct {
	fm  *fileMapping
	off uint64
	h   *Reader
}

// ReadAt decodes the entry at offset and returns a view of its payload. The
// offset must have been obtained from the producer, normally by observing a
// ring record that references it; the publication of that record is what
// guarantees the entry bytes are complete here. The view stays valid until
// the Reader is closed or Reset.
//
// The reader's mapping is re-resolved when the offset lies past it (the
// producer has grown the file). Fails with ErrDecode on a malformed prefix
// or an offset outside the committed area.
func (d *DictReader) ReadAt(offset uint64) ([]byte, error) {
	if err := d.h.checkEpoch(); err != nil {
		return nil, err
	}
	if offset < d.off+dictHeaderSize {
		return nil, errf(CodeDecode, "offset %d inside dictionary header", offset)
	}
	committed := d.End()
	if offset >= committed {
		return nil, errf(CodeDecode, "offset %d at or past dictionary end %d", offset, committed)
	}

	// Make sure the mapping covers the length prefix first, then the
	// payload. A committed entry always lies within the file, so a view
	// that ends mid-prefix just means the writer grew the file since this
	// reader last resolved its mapping.
	m, err := d.fm.require(offset + 1)
	if err != nil {
		return nil, err
	}
	data := m.Data()

	limit := min(uint64(len(data)), offset+maxVarintLen)
	l, n, err := readUvarint(data[offset:limit])
	if err != nil && limit == uint64(len(data)) {
		if m, err = d.fm.require(offset + maxVarintLen); err == nil {
			data = m.Data()
			l, n, err = readUvarint(data[offset : offset+maxVarintLen])
		} else {
			err = errf(CodeDecode, "truncated length prefix at offset %d", offset)
		}
	}
	if err != nil {
		return nil, err
	}

	end := offset + uint64(n) + l
	if end > committed {
		return nil, errf(CodeDecode, "entry at offset %d overruns dictionary end %d", offset, committed)
	}
	if end > uint64(len(data)) {
		if m, err = d.fm.require(end); err != nil {
			return nil, err
		}
		data = m.Data()
	}
	return data[offset+uint64(n) : end], nil
}

// Entries walks every committed entry in file order, calling fn with its
// offset and payload view. The walk relies on entries being contiguous and
// self-delimiting; it stops at the current end pointer. An in-flight entry
// (space reserved, bytes not yet written) is not detected: its bytes are
// decoded as they stand, and unwritten zero bytes read as empty entries.
// fn must not retain the body slice across a Reset.
func (d *DictReader) Entries(fn func(offset uint64, body []byte) error) error {
	end := d.End()
	for off := d.off + dictHeaderSize; off < end; {
		body, err := d.ReadAt(off)
		if err != nil {
			return err
		}
		if err := fn(off, body); err != nil {
			return err
		}
		off += uint64(uvarintLen(uint64(len(body)))) + uint64(len(body))
	}
	return nil
}

// End returns the file offset one past the last byte reserved by the
// producer, as currently visible to this reader.
func (d *DictReader) End() uint64 {
	return d.fm.seg().load64Acq(d.off + dictOffEnd)
}

// NumEntries returns the advisory entry count.
func (d *DictReader) NumEntries() uint64 {
	return d.fm.seg().load64Acq(d.off + dictOffNumEntries)
}
