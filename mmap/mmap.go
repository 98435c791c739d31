// Package mmap provides cross-platform shared memory mapping of files.
//
// The growth model is append-friendly: Extend maps the enlarged file as a
// fresh, independent Map and leaves every previously created Map of the same
// file valid and coherent (the kernel backs both with the same pages). That
// keeps pointers and byte offsets handed out before a grow usable until the
// owning handle decides to unmap.
package mmap

// Map represents one shared, writable or read-only view of a file.
type Map struct {
	data     []byte // mapped memory region
	fd       int    // file descriptor the view was created from
	size     int64  // mapped length
	writable bool
	// Windows-specific mapping handle (zero on Unix)
	mapping uintptr
}

// Data returns the mapped byte slice.
func (m *Map) Data() []byte {
	return m.data
}

// Size returns the mapped length.
func (m *Map) Size() int64 {
	return m.size
}

// Writable reports whether the view was mapped with write permission.
func (m *Map) Writable() bool {
	return m.writable
}

// Error represents an mmap error.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "mmap: " + e.Op + ": " + e.Err.Error()
	}
	return "mmap: " + e.Op
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Common errors
var (
	ErrInvalidSize = &Error{Op: "invalid size"}
	ErrNotMapped   = &Error{Op: "not mapped"}
)

// Extend maps the same file again at newSize bytes and returns the new view.
// The receiver stays mapped and valid; both views observe the same bytes.
// The file must already have been grown to at least newSize.
func (m *Map) Extend(newSize int64) (*Map, error) {
	if m.data == nil {
		return nil, ErrNotMapped
	}
	if newSize <= m.size {
		return nil, ErrInvalidSize
	}
	return New(m.fd, int(newSize), m.writable)
}
