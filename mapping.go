package otlpmmap

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/jsuereth/otlp-mmap/mmap"
)

// sysPageSize is the system's memory page size, cached at init time.
// Dictionary growth always extends the file to a page multiple.
var sysPageSize = uint64(os.Getpagesize())

// roundToPage rounds size up to a page multiple.
func roundToPage(size uint64) uint64 {
	return (size + sysPageSize - 1) &^ (sysPageSize - 1)
}

// fileMapping owns one file's mapping lifecycle for a handle. Growth never
// invalidates an installed mapping: the enlarged file is mapped again, the
// fresh view becomes current, and every old view is retained until Close so
// that offsets and slot pointers handed out earlier stay dereferenceable.
// All views of one file are backed by the same pages, so atomics performed
// through different views stay coherent.
type fileMapping struct {
	f   *os.File
	cur atomic.Pointer[mmap.Map]

	mu  sync.Mutex // serializes grow/refresh
	old []*mmap.Map
}

func openMapping(f *os.File, size uint64) (*fileMapping, error) {
	m, err := mmap.New(int(f.Fd()), int(size), true)
	if err != nil {
		return nil, wrapErr(CodeIO, "map file", err)
	}
	fm := &fileMapping{f: f}
	fm.cur.Store(m)
	return fm, nil
}

func (fm *fileMapping) seg() segment {
	return segment{fm.cur.Load().Data()}
}

// grow extends the file to cover at least need bytes (page-rounded, with
// half-again headroom) and installs a fresh view. Writer side only. maxSize,
// when nonzero, is a hard ceiling; need past it fails with
// ErrCapacityExceeded, as does running out of disk.
func (fm *fileMapping) grow(need, maxSize uint64) (*mmap.Map, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	cur := fm.cur.Load()
	if uint64(cur.Size()) >= need {
		return cur, nil
	}
	if maxSize != 0 && need > maxSize {
		return nil, errf(CodeCapacityExceeded, "need %d bytes, dictionary is capped at %d", need, maxSize)
	}

	newSize := roundToPage(max(need, uint64(cur.Size())+uint64(cur.Size())/2))
	if maxSize != 0 && newSize > maxSize {
		newSize = roundToPage(maxSize)
	}

	if err := fm.f.Truncate(int64(newSize)); err != nil {
		return nil, wrapErr(CodeCapacityExceeded, "extend file", err)
	}
	grown, err := cur.Extend(int64(newSize))
	if err != nil {
		return nil, wrapErr(CodeIO, "remap grown file", err)
	}

	fm.old = append(fm.old, cur)
	fm.cur.Store(grown)
	return grown, nil
}

// require returns a view covering at least need bytes, re-resolving the
// mapping against the file's current size when the installed view is too
// short. Reader side: the file may have been grown by the writer process.
func (fm *fileMapping) require(need uint64) (*mmap.Map, error) {
	cur := fm.cur.Load()
	if uint64(cur.Size()) >= need {
		return cur, nil
	}

	fm.mu.Lock()
	defer fm.mu.Unlock()

	cur = fm.cur.Load()
	if uint64(cur.Size()) >= need {
		return cur, nil
	}

	fi, err := fm.f.Stat()
	if err != nil {
		return nil, wrapErr(CodeIO, "stat grown file", err)
	}
	if uint64(fi.Size()) < need {
		return nil, errf(CodeDecode, "offset beyond end of file (%d > %d)", need, fi.Size())
	}
	grown, err := cur.Extend(fi.Size())
	if err != nil {
		return nil, wrapErr(CodeIO, "remap grown file", err)
	}

	fm.old = append(fm.old, cur)
	fm.cur.Store(grown)
	return grown, nil
}

// close unmaps every view and closes the file.
func (fm *fileMapping) close() error {
	var firstErr error
	if cur := fm.cur.Swap(nil); cur != nil {
		firstErr = cur.Close()
	}
	for _, m := range fm.old {
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	fm.old = nil
	if err := fm.f.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
