//go:build amd64 || 386 || arm64 || arm || riscv64 || mips64le || mipsle || ppc64le || wasm

package otlpmmap

import (
	"sync/atomic"
	"unsafe"
)

// On little-endian architectures the on-disk byte order is the native one:
// conversions are identity and atomic fetch-add maps directly onto the
// hardware primitive.

//go:nosplit
func putUint64LE(b []byte, v uint64) {
	*(*uint64)(unsafe.Pointer(&b[0])) = v
}

//go:nosplit
func putUint32LE(b []byte, v uint32) {
	*(*uint32)(unsafe.Pointer(&b[0])) = v
}

//go:nosplit
func getUint64LE(b []byte) uint64 {
	return *(*uint64)(unsafe.Pointer(&b[0]))
}

//go:nosplit
func getUint32LE(b []byte) uint32 {
	return *(*uint32)(unsafe.Pointer(&b[0]))
}

//go:nosplit
func toLE64(v uint64) uint64 { return v }

//go:nosplit
func fromLE64(v uint64) uint64 { return v }

//go:nosplit
func toLE32(v uint32) uint32 { return v }

//go:nosplit
func fromLE32(v uint32) uint32 { return v }

// atomicAddLE64 fetch-adds delta to the little-endian u64 at p and returns
// the previous value.
func atomicAddLE64(p *uint64, delta uint64) uint64 {
	return atomic.AddUint64(p, delta) - delta
}
