package otlpmmap

import (
	"sync/atomic"
	"unsafe"
)

// segment is a typed view over a byte-addressable mapped region. It exposes
// the only operations permitted on shared header fields: plain and acquire
// loads, plain and release stores, CAS and fetch-add on 8-byte aligned u64
// fields, and acquire/release access to 4-byte aligned i32 array cells.
//
// Go's sync/atomic operations are sequentially consistent, which satisfies
// (and exceeds) the acquire/release contract the on-disk protocol requires.
// All multi-byte values are little-endian on disk; conversion happens here,
// so callers never see raw file bytes.
//
// Offsets handed to a segment must be naturally aligned. The section layout
// guarantees this: the file header and every section header are 8-byte
// aligned, availability arrays are 4-byte aligned.
type segment struct {
	data []byte
}

func (s segment) u64(off uint64) *uint64 {
	return (*uint64)(unsafe.Pointer(&s.data[off]))
}

func (s segment) u32(off uint64) *uint32 {
	return (*uint32)(unsafe.Pointer(&s.data[off]))
}

// load64 performs a plain (non-atomic) read of the u64 at off.
func (s segment) load64(off uint64) uint64 {
	return getUint64LE(s.data[off:])
}

// store64 performs a plain (non-atomic) write of the u64 at off. Only valid
// during single-threaded initialization, before the epoch is published.
func (s segment) store64(off uint64, v uint64) {
	putUint64LE(s.data[off:], v)
}

// load64Acq performs an acquire load of the u64 at off.
func (s segment) load64Acq(off uint64) uint64 {
	return fromLE64(atomic.LoadUint64(s.u64(off)))
}

// store64Rel performs a release store of the u64 at off.
func (s segment) store64Rel(off uint64, v uint64) {
	atomic.StoreUint64(s.u64(off), toLE64(v))
}

// cas64 atomically compares-and-swaps the u64 at off.
func (s segment) cas64(off uint64, old, new uint64) bool {
	return atomic.CompareAndSwapUint64(s.u64(off), toLE64(old), toLE64(new))
}

// add64 atomically fetch-adds delta to the u64 at off and returns the
// previous value.
func (s segment) add64(off uint64, delta uint64) uint64 {
	return atomicAddLE64(s.u64(off), delta)
}

// loadI64 and friends view a u64 field as a signed index (two's complement
// round-trips through the unsigned accessors unchanged).

func (s segment) loadI64(off uint64) int64 {
	return int64(s.load64(off))
}

func (s segment) loadI64Acq(off uint64) int64 {
	return int64(s.load64Acq(off))
}

func (s segment) storeI64Rel(off uint64, v int64) {
	s.store64Rel(off, uint64(v))
}

func (s segment) casI64(off uint64, old, new int64) bool {
	return s.cas64(off, uint64(old), uint64(new))
}

// load32Acq performs an acquire load of the i32 cell at off.
func (s segment) load32Acq(off uint64) int32 {
	return int32(fromLE32(atomic.LoadUint32(s.u32(off))))
}

// store32Rel performs a release store of the i32 cell at off.
func (s segment) store32Rel(off uint64, v int32) {
	atomic.StoreUint32(s.u32(off), toLE32(uint32(v)))
}

// store32 performs a plain write of the i32 cell at off. Initialization only.
func (s segment) store32(off uint64, v int32) {
	putUint32LE(s.data[off:], uint32(v))
}
