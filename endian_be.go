//go:build !amd64 && !386 && !arm64 && !arm && !riscv64 && !mips64le && !mipsle && !ppc64le && !wasm

package otlpmmap

import (
	"encoding/binary"
	"math/bits"
	"sync/atomic"
)

// On big-endian architectures the on-disk little-endian order differs from
// the native one, so every access converts. Fetch-add cannot be expressed as
// a native atomic add on byte-swapped values and degrades to a CAS loop.

//go:nosplit
func putUint64LE(b []byte, v uint64) {
	binary.LittleEndian.PutUint64(b, v)
}

//go:nosplit
func putUint32LE(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}

//go:nosplit
func getUint64LE(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}

//go:nosplit
func getUint32LE(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

//go:nosplit
func toLE64(v uint64) uint64 { return bits.ReverseBytes64(v) }

//go:nosplit
func fromLE64(v uint64) uint64 { return bits.ReverseBytes64(v) }

//go:nosplit
func toLE32(v uint32) uint32 { return bits.ReverseBytes32(v) }

//go:nosplit
func fromLE32(v uint32) uint32 { return bits.ReverseBytes32(v) }

// atomicAddLE64 fetch-adds delta to the little-endian u64 at p and returns
// the previous value.
func atomicAddLE64(p *uint64, delta uint64) uint64 {
	for {
		old := atomic.LoadUint64(p)
		next := toLE64(fromLE64(old) + delta)
		if atomic.CompareAndSwapUint64(p, old, next) {
			return fromLE64(old)
		}
	}
}
