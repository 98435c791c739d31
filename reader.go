package otlpmmap

import (
	"os"
)

// Reader is the consumer handle for one transport file. There is at most
// one reader per file: the reader owns reader_index, and nothing in the
// protocol arbitrates between two consumers.
//
// The Reader caches the file's epoch at attach time. Every operation checks
// it; once the producer re-initializes the file under a new epoch, all
// operations fail with ErrVersionMismatch until Reset is called. After
// Reset (or Close), previously obtained RingReader and DictReader handles
// are invalid.
type Reader struct {
	path   string
	layout Layout
	fm     *fileMapping
	epoch  uint64

	rings []*RingReader
	dicts []*DictReader
}

// OpenReader attaches to the transport file at path. The file must have
// been initialized by a writer: a missing file fails with ErrIO and a zero
// epoch with ErrUninitialized (attach again later). A file whose sections
// disagree with the layout fails with ErrLayoutMismatch; unlike a writer,
// a reader never re-initializes.
func OpenReader(path string, layout Layout) (*Reader, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}

	// Read-write: the reader owns and persists reader_index in the file.
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, wrapErr(CodeIO, "open transport file", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, wrapErr(CodeIO, "stat transport file", err)
	}
	if uint64(fi.Size()) < layout.fileSize() {
		f.Close()
		return nil, errf(CodeUninitialized, "%s: file smaller than layout (%d < %d)", path, fi.Size(), layout.fileSize())
	}

	fm, err := openMapping(f, uint64(fi.Size()))
	if err != nil {
		f.Close()
		return nil, err
	}

	r := &Reader{path: path, layout: layout, fm: fm}
	if err := r.attach(); err != nil {
		fm.close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) attach() error {
	seg := r.fm.seg()

	epoch := seg.load64Acq(offEpoch)
	if epoch == 0 {
		return errf(CodeUninitialized, "%s: zero epoch", r.path)
	}

	r.rings = make([]*RingReader, len(r.layout.Sections))
	r.dicts = make([]*DictReader, len(r.layout.Sections))
	for i, s := range r.layout.Sections {
		off := r.layout.sectionOffset(i)
		if got := seg.load64(sectionOffsetField(i)); got != off {
			return errf(CodeLayoutMismatch, "section %d at offset %d, expected %d", i, got, off)
		}
		switch s.Kind {
		case SectionRing:
			rb, err := attachRing(seg, off, s.Ring)
			if err != nil {
				return err
			}
			r.rings[i] = &RingReader{ring: rb, h: r}
		case SectionDict:
			if err := attachDict(seg, off); err != nil {
				return err
			}
			r.dicts[i] = &DictReader{fm: r.fm, off: off, h: r}
		}
	}

	r.epoch = epoch
	return nil
}

// checkEpoch fails with ErrVersionMismatch once the file's epoch differs
// from the one cached at attach time.
func (r *Reader) checkEpoch() error {
	if r.fm.seg().load64(offEpoch) != r.epoch {
		return ErrVersionMismatch
	}
	return nil
}

// Reset discards all cached state and re-attaches, picking up the file's
// current epoch. Call it after ErrVersionMismatch. Handles obtained from
// the Reader before the Reset are invalid afterwards.
func (r *Reader) Reset() error {
	fresh, err := OpenReader(r.path, r.layout)
	if err != nil {
		return err
	}
	old := r.fm
	*r = *fresh
	for _, rb := range r.rings {
		if rb != nil {
			rb.h = r
		}
	}
	for _, d := range r.dicts {
		if d != nil {
			d.h = r
		}
	}
	return old.close()
}

// Epoch returns the epoch cached at attach time.
func (r *Reader) Epoch() uint64 { return r.epoch }

// Path returns the transport file path.
func (r *Reader) Path() string { return r.path }

// Ring returns the consumer handle for section i, which must be a ring.
func (r *Reader) Ring(i int) *RingReader {
	if i < 0 || i >= len(r.rings) || r.rings[i] == nil {
		panic("otlpmmap: section is not a ring")
	}
	return r.rings[i]
}

// Dict returns the consumer handle for section i, which must be a
// dictionary.
func (r *Reader) Dict(i int) *DictReader {
	if i < 0 || i >= len(r.dicts) || r.dicts[i] == nil {
		panic("otlpmmap: section is not a dictionary")
	}
	return r.dicts[i]
}

// Close releases every mapping. reader_index stays in the file, so a later
// reader resumes where this one stopped.
func (r *Reader) Close() error {
	return r.fm.close()
}
