//go:build windows

package mmap

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// New creates a shared mapping of the first length bytes of fd.
func New(fd int, length int, writable bool) (*Map, error) {
	if length <= 0 {
		return nil, ErrInvalidSize
	}

	handle := windows.Handle(fd)

	prot := uint32(windows.PAGE_READONLY)
	access := uint32(windows.FILE_MAP_READ)
	if writable {
		prot = windows.PAGE_READWRITE
		access = windows.FILE_MAP_WRITE
	}

	maxSizeHigh := uint32(uint64(length) >> 32)
	maxSizeLow := uint32(length)

	mapping, err := windows.CreateFileMapping(handle, nil, prot, maxSizeHigh, maxSizeLow, nil)
	if err != nil {
		return nil, &Error{Op: "CreateFileMapping", Err: err}
	}

	addr, err := windows.MapViewOfFile(mapping, access, 0, 0, uintptr(length))
	if err != nil {
		windows.CloseHandle(mapping)
		return nil, &Error{Op: "MapViewOfFile", Err: err}
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), length)

	return &Map{
		data:     data,
		fd:       fd,
		size:     int64(length),
		writable: writable,
		mapping:  uintptr(mapping),
	}, nil
}

// Sync flushes changes to disk synchronously.
func (m *Map) Sync() error {
	if m.data == nil {
		return ErrNotMapped
	}
	if err := windows.FlushViewOfFile(uintptr(unsafe.Pointer(&m.data[0])), uintptr(m.size)); err != nil {
		return &Error{Op: "FlushViewOfFile", Err: err}
	}
	return nil
}

// SyncAsync schedules a flush to disk without waiting for it.
func (m *Map) SyncAsync() error {
	return m.Sync()
}

// Close releases the mapping. The underlying file handle is untouched.
func (m *Map) Close() error {
	if m.data == nil {
		return nil
	}

	addr := uintptr(unsafe.Pointer(&m.data[0]))
	m.data = nil
	m.size = 0

	if err := windows.UnmapViewOfFile(addr); err != nil {
		return &Error{Op: "UnmapViewOfFile", Err: err}
	}
	if m.mapping != 0 {
		if err := windows.CloseHandle(windows.Handle(m.mapping)); err != nil {
			return &Error{Op: "CloseHandle", Err: err}
		}
		m.mapping = 0
	}
	return nil
}

// Advise is a no-op on Windows.
func (m *Map) Advise(advice int) error { return nil }

// AdviseSequential is a no-op on Windows.
func (m *Map) AdviseSequential() error { return nil }

// AdviseRandom is a no-op on Windows.
func (m *Map) AdviseRandom() error { return nil }
