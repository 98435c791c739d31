package otlpmmap

import (
	"math/bits"
)

// ring is the geometry of one ring buffer section over a mapped segment.
// Both handle types embed it; the capability split (who may claim, who may
// advance the reader) lives in RingWriter and RingReader.
//
// Section layout: a 32-byte header (num_slots, slot_size, reader_index,
// writer_index), an availability array of one i32 generation per slot, then
// the slot area. A slot for monotonic index i lives at position i&(N-1) and
// is readable iff its availability cell equals i>>log2(N). Cells start at -1.
type ring struct {
	seg      segment
	off      uint64 // absolute offset of the section header
	slots    uint64
	mask     int64
	shift    uint
	slotSize uint64
	framing  Framing
	availOff uint64 // absolute offset of the availability array
	slotsOff uint64 // absolute offset of the slot area
}

func newRing(seg segment, off uint64, cfg RingConfig) ring {
	return ring{
		seg:      seg,
		off:      off,
		slots:    cfg.Slots,
		mask:     int64(cfg.Slots) - 1,
		shift:    uint(bits.TrailingZeros64(cfg.Slots)),
		slotSize: cfg.SlotSize,
		framing:  cfg.Framing,
		availOff: off + ringHeaderSize,
		slotsOff: off + ringHeaderSize + 4*cfg.Slots,
	}
}

// initRing formats the section: geometry fields, indices at -1, every
// availability cell at -1. Plain stores only; the caller publishes the file
// epoch with a release store afterwards, which fences all of this.
func initRing(seg segment, off uint64, cfg RingConfig) ring {
	rb := newRing(seg, off, cfg)
	seg.store64(off+ringOffNumSlots, cfg.Slots)
	seg.store64(off+ringOffSlotSize, cfg.SlotSize)
	seg.store64(off+ringOffReaderIndex, ^uint64(0))
	seg.store64(off+ringOffWriterIndex, ^uint64(0))
	for i := uint64(0); i < cfg.Slots; i++ {
		seg.store32(rb.availOff+4*i, -1)
	}
	return rb
}

// attachRing validates an existing section against the expected geometry.
func attachRing(seg segment, off uint64, cfg RingConfig) (ring, error) {
	gotSlots := seg.load64(off + ringOffNumSlots)
	gotSize := seg.load64(off + ringOffSlotSize)
	if gotSlots != cfg.Slots || gotSize != cfg.SlotSize {
		return ring{}, errf(CodeLayoutMismatch,
			"ring at %d: file has %d slots of %d bytes, expected %d of %d",
			off, gotSlots, gotSize, cfg.Slots, cfg.SlotSize)
	}
	return newRing(seg, off, cfg), nil
}

// slot returns the slot bytes for monotonic index i.
func (rb *ring) slot(i int64) []byte {
	base := rb.slotsOff + uint64(i&rb.mask)*rb.slotSize
	return rb.seg.data[base : base+rb.slotSize]
}

// availCell returns the absolute offset of index i's availability cell.
func (rb *ring) availCell(i int64) uint64 {
	return rb.availOff + 4*uint64(i&rb.mask)
}

// generation returns the wrap count encoded in an availability cell for
// monotonic index i.
func (rb *ring) generation(i int64) int32 {
	return int32(i >> rb.shift)
}

// ReaderIndex returns the highest index the reader has consumed, -1 if none.
func (rb *ring) ReaderIndex() int64 {
	return rb.seg.loadI64Acq(rb.off + ringOffReaderIndex)
}

// WriterIndex returns the highest index any writer has claimed, -1 if none.
// Claimed is not readable: slots publish out of claim order.
func (rb *ring) WriterIndex() int64 {
	return rb.seg.loadI64Acq(rb.off + ringOffWriterIndex)
}

// Slots returns the slot count.
func (rb *ring) Slots() uint64 { return rb.slots }

// SlotSize returns the slot size in bytes.
func (rb *ring) SlotSize() uint64 { return rb.slotSize }
