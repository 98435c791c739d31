package otlpmmap

import (
	"errors"
	"os"
	"time"
)

// Writer is the producer handle for one transport file. It owns the file
// mapping, the exclusive writer lock, and every producer-side capability:
// ring claims and publication, dictionary appends, section initialization.
//
// A Writer may be shared among goroutines; the per-section handles carry
// their own concurrency contracts.
type Writer struct {
	path   string
	layout Layout
	fm     *fileMapping
	epoch  uint64

	rings []*RingWriter // indexed by section, nil for dictionaries
	dicts []*Dict       // indexed by section, nil for rings
}

// WriterOption configures OpenWriter.
type WriterOption func(*writerOptions)

type writerOptions struct {
	epoch      uint64
	freshEpoch bool
}

// WithFreshEpoch forces re-initialization with a new epoch even when the
// file already carries a valid layout. Every attached reader observes the
// epoch change and must reset. This is the crash-restart policy for a
// producer that does not want to continue a previous lifetime in place.
func WithFreshEpoch() WriterOption {
	return func(o *writerOptions) { o.freshEpoch = true }
}

// WithEpoch overrides the epoch chosen at initialization. The value must be
// nonzero and should be unique per file lifetime; the default is the wall
// clock in nanoseconds.
func WithEpoch(epoch uint64) WriterOption {
	return func(o *writerOptions) { o.epoch = epoch }
}

// OpenWriter creates or attaches the transport file at path.
//
// A missing or empty file is initialized: sections are formatted per the
// layout and the epoch is release-published last, so a concurrent attacher
// never observes a nonzero epoch over half-initialized sections. An
// existing file is attached in place, keeping its epoch and whatever
// unconsumed records it holds; a file whose sections disagree with the
// layout is re-initialized under a fresh epoch.
//
// The writer takes an exclusive advisory lock on the file; a second live
// writer process fails here with ErrIO.
func OpenWriter(path string, layout Layout, opts ...WriterOption) (*Writer, error) {
	var o writerOptions
	for _, opt := range opts {
		opt(&o)
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, wrapErr(CodeIO, "open transport file", err)
	}

	locked, err := tryLockWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if !locked {
		f.Close()
		return nil, errf(CodeIO, "%s: writer lock held by another process", path)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, wrapErr(CodeIO, "stat transport file", err)
	}

	// Never shrink an existing file: a previous lifetime may have grown the
	// dictionary tail, and an attached reader still maps those pages.
	size := max(uint64(fi.Size()), layout.fileSize())
	if uint64(fi.Size()) < size {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, wrapErr(CodeIO, "size transport file", err)
		}
	}

	fm, err := openMapping(f, size)
	if err != nil {
		f.Close()
		return nil, err
	}

	w := &Writer{path: path, layout: layout, fm: fm}

	if o.freshEpoch || uint64(fi.Size()) == 0 {
		err = w.initialize(o.epoch)
	} else if err = w.attach(); err != nil {
		// A writer re-initializes what a reader would have to abort on.
		if errors.Is(err, ErrLayoutMismatch) || errors.Is(err, ErrUninitialized) {
			err = w.initialize(o.epoch)
		}
	}
	if err != nil {
		fm.close()
		return nil, err
	}
	return w, nil
}

// initialize formats the file under a new epoch. Order matters: the epoch is
// zeroed with a release store first, every section and header field is
// formatted with plain stores, and the new epoch is release-published last.
// An attacher that observes a nonzero epoch therefore sees fully formatted
// sections.
func (w *Writer) initialize(epoch uint64) error {
	seg := w.fm.seg()

	seg.store64Rel(offEpoch, 0)

	for off := uint64(8); off < fileHeaderSize; off += 8 {
		seg.store64(off, 0)
	}

	w.rings = make([]*RingWriter, len(w.layout.Sections))
	w.dicts = make([]*Dict, len(w.layout.Sections))
	for i, s := range w.layout.Sections {
		off := w.layout.sectionOffset(i)
		seg.store64(sectionOffsetField(i), off)
		switch s.Kind {
		case SectionRing:
			w.rings[i] = &RingWriter{ring: initRing(seg, off, s.Ring)}
		case SectionDict:
			initDict(seg, off)
			w.dicts[i] = &Dict{fm: w.fm, off: off, maxSize: s.Dict.MaxSize}
		}
	}

	seg.store64(startTimeField(len(w.layout.Sections)), uint64(time.Now().UnixNano()))

	if epoch == 0 {
		epoch = uint64(time.Now().UnixNano())
	}
	w.epoch = epoch
	seg.store64Rel(offEpoch, epoch)
	return nil
}

// attach validates an already initialized file against the layout.
func (w *Writer) attach() error {
	seg := w.fm.seg()

	epoch := seg.load64Acq(offEpoch)
	if epoch == 0 {
		return errf(CodeUninitialized, "%s: zero epoch", w.path)
	}

	w.rings = make([]*RingWriter, len(w.layout.Sections))
	w.dicts = make([]*Dict, len(w.layout.Sections))
	for i, s := range w.layout.Sections {
		off := w.layout.sectionOffset(i)
		if got := seg.load64(sectionOffsetField(i)); got != off {
			return errf(CodeLayoutMismatch, "section %d at offset %d, expected %d", i, got, off)
		}
		switch s.Kind {
		case SectionRing:
			rb, err := attachRing(seg, off, s.Ring)
			if err != nil {
				return err
			}
			w.rings[i] = &RingWriter{ring: rb}
		case SectionDict:
			if err := attachDict(seg, off); err != nil {
				return err
			}
			w.dicts[i] = &Dict{fm: w.fm, off: off, maxSize: s.Dict.MaxSize}
		}
	}

	w.epoch = epoch
	return nil
}

// Epoch returns the epoch this writer initialized or attached under.
func (w *Writer) Epoch() uint64 { return w.epoch }

// Path returns the transport file path.
func (w *Writer) Path() string { return w.path }

// Ring returns the producer handle for section i, which must be a ring.
func (w *Writer) Ring(i int) *RingWriter {
	if i < 0 || i >= len(w.rings) || w.rings[i] == nil {
		panic("otlpmmap: section is not a ring")
	}
	return w.rings[i]
}

// Dict returns the producer handle for section i, which must be a
// dictionary.
func (w *Writer) Dict(i int) *Dict {
	if i < 0 || i >= len(w.dicts) || w.dicts[i] == nil {
		panic("otlpmmap: section is not a dictionary")
	}
	return w.dicts[i]
}

// Sync schedules a flush of the mapped pages to disk. The transport does
// not need it for crash survivability (the page cache outlives the process);
// it only hastens durability against machine loss.
func (w *Writer) Sync() error {
	if err := w.fm.cur.Load().SyncAsync(); err != nil {
		return wrapErr(CodeIO, "sync mapping", err)
	}
	return nil
}

// Close releases the writer lock and every mapping. Records already
// published stay in the file for any reader.
func (w *Writer) Close() error {
	unlockErr := unlockWriter(w.fm.f)
	if err := w.fm.close(); err != nil {
		return err
	}
	return unlockErr
}
